// Package admin serves the operational HTTP surface: health and
// Prometheus metrics. It runs beside the JSON-RPC listener and is
// optional.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/semdex/internal/version"
)

// ReadyReporter tells the health endpoint whether initialization is
// done.
type ReadyReporter interface {
	Ready() bool
}

// Server is the admin HTTP server.
type Server struct {
	logger *zap.Logger
	srv    *http.Server
}

// New builds the admin server on the given port.
func New(logger *zap.Logger, port int, ready ReadyReporter) *Server {
	r := chi.NewRouter()
	r.Use(recoverer(logger))
	r.Use(chiMiddleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := "ok"
		code := http.StatusOK
		if !ready.Ready() {
			status = "initializing"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"version": version.Version,
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		logger: logger,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Serve blocks until Shutdown or a listener error.
func (s *Server) Serve() error {
	s.logger.Info("Starting admin HTTP server", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in admin handler",
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()),
					)
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, req)
		})
	}
}
