package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portfolio-sync/internal/aggregator"
	"portfolio-sync/internal/notifications"
)

type statusSources struct {
	aggregator    *aggregator.Aggregator
	notifications *notifications.Synchronizer
	authenticated func() bool
	version       string
}

func newRouter(src statusSources) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		state := src.aggregator.State()
		feed := src.notifications.State()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "healthy",
			"version":       src.version,
			"aggregator":    state.Phase,
			"progress":      state.Progress,
			"notifications": src.notifications.Phase(),
			"unread":        feed.UnreadCount,
			"authenticated": src.authenticated(),
		})
	})

	r.Get("/snapshot", func(w http.ResponseWriter, req *http.Request) {
		snap := src.aggregator.Current()
		if snap == nil {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	r.Get("/notifications", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, src.notifications.State())
	})

	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
