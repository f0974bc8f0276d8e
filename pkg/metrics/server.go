package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samuelharden/xapian/pkg/config"
	"github.com/samuelharden/xapian/pkg/httpserver"
)

// Router exposes gatherer at /metrics. A nil gatherer serves the default
// registry.
func Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	if gatherer == nil {
		r.Handle("/metrics", Handler())
	} else {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/metrics", http.StatusFound)
	})
	return r
}

// Serve runs the metrics listener on its own port until ctx ends, so that
// scrapes bypass the API middleware.
func Serve(ctx context.Context, cfg config.MetricsConfig, gatherer prometheus.Gatherer) error {
	if !cfg.Enabled {
		return nil
	}
	return httpserver.New("metrics", config.ServerConfig{
		Port:            cfg.Port,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}, Router(gatherer)).Run(ctx)
}
