// Package metrics holds process-wide Prometheus gauges shared by the
// coordinator (which mutates them) and the transport façade (which exposes
// them), following the shape of muti-metroo's metrics package. This is
// pure observability — §12 is explicit it carries no enforcement, matching
// the no-accounts/no-billing non-goal.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shareterm_sessions_active",
		Help: "Number of live sessions on this replica.",
	})
	ShellsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shareterm_shells_active",
		Help: "Number of live shells across all sessions on this replica.",
	})
	ViewersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shareterm_viewers_active",
		Help: "Number of attached viewer WebSockets on this replica.",
	})
	BytesRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shareterm_bytes_relayed_total",
		Help: "Total ciphertext bytes appended to shell logs.",
	})
)

func init() {
	prometheus.MustRegister(SessionsActive, ShellsActive, ViewersActive, BytesRelayed)
}

// Register mounts the Prometheus handler at /metrics.
func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
