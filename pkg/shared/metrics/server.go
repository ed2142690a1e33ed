package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes the process's Prometheus registry over /metrics.
type Server struct {
	server *http.Server
	log    *logrus.Logger
}

// NewServer builds a /metrics HTTP server bound to the given port (no
// leading colon). Use port "0" in tests to bind an ephemeral port.
func NewServer(port string, log *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{Addr: ":" + port, Handler: mux},
		log:    log,
	}
}

// StartAsync begins serving in the background; a listener error after
// startup is logged, not returned, matching the fire-and-forget shape every
// other background loop in this repo uses.
func (s *Server) StartAsync() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts the server down, waiting for in-flight scrapes to
// finish up to ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
