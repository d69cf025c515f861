// Package server implements the user facing server that receives requests and forwards them to the inference API adapter.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/edgelesssys/sagemaker-tfs/internal/logging"
	"github.com/edgelesssys/sagemaker-tfs/internal/middleware"
	"github.com/edgelesssys/sagemaker-tfs/internal/process"
	"github.com/edgelesssys/sagemaker-tfs/tfs-proxy/internal/adapter"
	"github.com/spf13/afero"
)

// MetricsPath is the endpoint Prometheus metrics are served at.
const MetricsPath = "/metrics"

type metricsCollector interface {
	Handler() http.Handler
	ObserveRequest(method, path string, status int, duration time.Duration)
}

// Server implements the user facing HTTP REST server.
type Server struct {
	adapter adapter.InferenceAdapter
	metrics metricsCollector

	// dumpDir enables request dumping if set.
	dumpDir string
	fs      afero.Fs

	log *slog.Logger
}

// New creates a new Server.
func New(adapter adapter.InferenceAdapter, metrics metricsCollector, fs afero.Fs, dumpDir string, log *slog.Logger) *Server {
	return &Server{
		adapter: adapter,
		metrics: metrics,
		dumpDir: dumpDir,
		fs:      fs,
		log:     log,
	}
}

// Handler returns the handler serving the adapter endpoints and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+MetricsPath, s.metrics.Handler())
	mux.Handle("/", s.adapter.ServeMux())

	var handler http.Handler = mux
	if s.dumpDir != "" {
		s.log.Warn("Dumping requests and responses", "dir", s.dumpDir)
		handler = middleware.DumpRequestAndResponse(handler, s.fs, s.log, s.dumpDir)
	}
	return middleware.RequestLogger(handler, s.log, s.metrics)
}

// Serve starts the server and blocks until ctx is canceled and the server is shut down.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logging.ErrorLog(s.log),
	}
	return process.HTTPServeContext(ctx, server, listener, s.log)
}
