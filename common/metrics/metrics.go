// Package metrics holds the gateway's Prometheus collectors, shared between
// the HTTP middleware and the Upstream Client so both sides of a request can
// record against the same series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RequestsTotal counts every request by route and response status.
var RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relaygate_http_requests_total",
	Help: "Total HTTP requests served, labelled by path and status code.",
}, []string{"path", "status"})

// QuotaExhaustedTotal counts 429 exhaustion events per provider channel,
// incremented by the Upstream Client's rate-limit handling (spec §4.5).
var QuotaExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "relaygate_quota_exhausted_total",
	Help: "Count of accounts marked quota-exhausted, labelled by channel.",
}, []string{"channel"})
