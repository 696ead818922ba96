package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"maria.quispe@example.com", "maria.quispe@example.com"},
		{"o'brien & co", "o'brien & co"},
		{"Mozilla/5.0 (X11; Linux x86_64)", "Mozilla/5.0 (X11; Linux x86_64)"},
		{"<script>alert(1)</script>curl/8.0", "curl/8.0"},
		{`<b onclick="x()">bold</b>`, "bold"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Text(tt.in), "input %q", tt.in)
	}
}

func TestDetails(t *testing.T) {
	in := map[string]any{
		"user_agent": "<img src=x onerror=alert(1)>agent",
		"attempts":   3,
		"nested":     map[string]any{"comment": "<i>hi</i>"},
		"list":       []any{"<b>a</b>", 1.5},
	}

	out := Details(in)

	assert.Equal(t, "agent", out["user_agent"])
	assert.Equal(t, 3, out["attempts"])
	assert.Equal(t, "hi", out["nested"].(map[string]any)["comment"])
	assert.Equal(t, []any{"a", 1.5}, out["list"])
	assert.Equal(t, "<img src=x onerror=alert(1)>agent", in["user_agent"], "input is not modified")

	assert.Nil(t, Details(nil))
}
