package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals processed, by action and outcome"},
		[]string{"action", "status"},
	)
	AdmissionRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "admission_rejects_total", Help: "Signals rejected before processing"},
		[]string{"reason"},
	)
	RetryAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "retry_attempts_total", Help: "Re-processing attempts pulled off the retry queue"},
	)
	RetryDiscardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "retry_discards_total", Help: "Retry items dropped without success"},
		[]string{"disposition"},
	)
	UpstreamReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "upstream_reconnects_total", Help: "Reconnect attempts to the upstream server"},
	)
	OutboundQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "relay_outbound_queue_depth", Help: "Messages waiting for the upstream connection"},
	)
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tcp_sessions_active", Help: "Authenticated TCP sessions currently connected"},
	)
)

// -----------------------------------------------------------------------------

func init() {
	prometheus.MustRegister(
		SignalsTotal,
		AdmissionRejectsTotal,
		RetryAttemptsTotal,
		RetryDiscardsTotal,
		UpstreamReconnectsTotal,
		OutboundQueueDepth,
		SessionsActive,
	)
}

// -----------------------------------------------------------------------------

// Handler exposes the registry for mounting on an existing HTTP server.
func Handler() http.Handler {
	return promhttp.Handler()
}

// -----------------------------------------------------------------------------

// Serve starts a standalone /metrics endpoint, used by the bridge which has
// no API server of its own. Pass an empty addr to disable.
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
