// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttemptsTotal counts login attempts by outcome
	// (success, invalid_credentials, account_locked, account_inactive, error).
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizdir_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AccountLocksTotal counts locks applied when an account reaches the
	// failure threshold.
	AccountLocksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizdir_account_locks_total",
			Help: "Total number of accounts locked after repeated failures",
		},
	)

	// AuditWriteFailuresTotal counts audit entries that could not be persisted.
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizdir_audit_write_failures_total",
			Help: "Total number of audit entries dropped because the write failed",
		},
	)

	// GeoLookupsTotal counts geolocation provider calls by provider and result
	// (hit, miss, error), plus cache hits under provider "cache".
	GeoLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizdir_geo_lookups_total",
			Help: "Total number of IP geolocation lookups by provider and result",
		},
		[]string{"provider", "result"},
	)

	// GeoLookupDuration observes the wall time of a full location resolution.
	GeoLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bizdir_geo_lookup_duration_seconds",
			Help:    "Time spent resolving an IP location across providers",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
	)
)
