// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

// Package api provides the HTTP surface: recommendations, rating
// ingestion, batch rebuild, health, and metrics.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/itemwise/internal/config"
)

// requestIDHeader carries the per-request correlation id.
const requestIDHeader = "X-Request-ID"

// Routes assembles the router around the handler.
func Routes(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if cfg.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/recommendations/{userID}", h.Recommendations)
		r.Post("/ratings", h.Ratings)
		r.Post("/train", h.Train)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestID honors a caller-provided X-Request-ID and generates one
// otherwise, echoing it on the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
