// Package sanitize strips markup from client-supplied text before it is
// stored. Audit details carry raw request data (user agents, attempted
// usernames, free-form comments) that the admin frontend renders, so any
// HTML in them is removed on the way in.
package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton strict policy: no elements or attributes survive.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text removes all HTML from s. Strings without angle brackets are returned
// untouched so ordinary values (emails, user agents) keep their exact bytes.
func Text(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	return strings.TrimSpace(getPolicy().Sanitize(s))
}

// Details returns a copy of a JSON details object with every string value,
// at any depth, passed through Text. Keys are kept as-is.
func Details(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = value(v)
	}
	return out
}

func value(v any) any {
	switch t := v.(type) {
	case string:
		return Text(t)
	case map[string]any:
		return Details(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = value(item)
		}
		return out
	default:
		return v
	}
}
