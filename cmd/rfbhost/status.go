package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/matst80/rfbhost/internal/host"
	"github.com/matst80/rfbhost/internal/obs"
	"github.com/matst80/rfbhost/internal/state"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statusRouter serves Prometheus metrics plus health and state endpoints.
func statusRouter(h *host.Host, store state.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(collectStats(r.Context(), h, store))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if store.IsClosing() || !store.IsReady() || !h.Running() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return r
}

func startStatusServer(addr string, h *host.Host, store state.Store) *http.Server {
	srv := &http.Server{Addr: addr, Handler: statusRouter(h, store)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Error("status.server", obs.Fields{"err": err.Error(), "addr": addr})
		}
	}()
	return srv
}
