package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"lendingapi/internal/httpx"
)

type registrar interface {
	Register(mux *http.ServeMux, g httpx.Guards)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type routerDeps struct {
	logger      *slog.Logger
	guards      httpx.Guards
	rateLimiter *httpx.RateLimitMiddleware
	corsOrigins []string
	maxBody     int64
	hsts        bool
	checks      map[string]pinger
	routes      []registrar
}

func newRouter(d routerDeps) http.Handler {
	router := http.NewServeMux()

	router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		for name, p := range d.checks {
			if err := p.Ping(ctx); err != nil {
				d.logger.Warn("readiness check failed", "check", name, "error", err)
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	for _, rt := range d.routes {
		rt.Register(router, d.guards)
	}

	return httpx.Chain(router,
		httpx.RecoveryMiddleware(d.logger),
		httpx.RequestIDMiddleware,
		httpx.AccessLogMiddleware(d.logger),
		httpx.SecurityHeaders(d.hsts),
		httpx.CORSMiddleware(d.corsOrigins),
		d.rateLimiter.Middleware,
		httpx.RequestSizeLimitMiddleware(d.maxBody),
	)
}
