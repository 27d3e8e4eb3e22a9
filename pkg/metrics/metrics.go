package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// ScanCycles counts completed scan cycles.
	ScanCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetscan_scan_cycles_total",
		Help: "Completed scan cycles",
	})

	// Probes counts individual probe invocations.
	Probes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetscan_probes_total",
		Help: "Probe invocations (server and gateway)",
	})

	// SitesByStatus counts classified sites per cycle by status.
	SitesByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetscan_sites_status_total",
		Help: "Classified sites by status",
	}, []string{"status"})

	// CycleDuration observes scan cycle wall time.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetscan_scan_cycle_duration_seconds",
		Help:    "Scan cycle duration",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)

// Serve exposes /metrics on addr in the background. The returned server
// should be shut down by the caller.
func Serve(log logrus.FieldLogger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("Metrics server stopped")
		}
	}()

	return srv
}
