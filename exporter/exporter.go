package exporter

import (
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Exporter serves the Prometheus metrics endpoint plus liveness and readiness
// probes for the process.
type Exporter struct {
	cfg    Config
	logger *zap.Logger
}

func NewExporter(cfg Config, logger *zap.Logger) *Exporter {
	return &Exporter{cfg: cfg, logger: logger}
}

// ListenAndServe blocks serving HTTP until the listener fails.
func (e *Exporter) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	address := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	e.logger.Info("serving metrics endpoint", zap.String("address", address))
	if err := http.ListenAndServe(address, mux); err != nil {
		return fmt.Errorf("failed to serve metrics endpoint: %w", err)
	}
	return nil
}
