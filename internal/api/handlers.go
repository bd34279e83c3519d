// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/tomtom215/itemwise/internal/cf"
	"github.com/tomtom215/itemwise/internal/config"
	"github.com/tomtom215/itemwise/internal/ingest"
	"github.com/tomtom215/itemwise/internal/logging"
	"github.com/tomtom215/itemwise/internal/metrics"
	"github.com/tomtom215/itemwise/internal/ranking"
)

// Ranker serves top-K requests.
type Ranker interface {
	TopK(ctx context.Context, req ranking.Request) ([]cf.ScoredItem, error)
}

// RatingsPublisher feeds rating events into the training pipeline.
type RatingsPublisher interface {
	PublishRatings(events []ingest.RatingEvent) error
}

// Model exposes the training service operations the API drives.
type Model interface {
	Rebuild(ctx context.Context, ds *cf.Dataset) (*cf.BatchStats, error)
	ItemCount() int
}

// Handler holds the API's collaborators.
type Handler struct {
	ranker    Ranker
	publisher RatingsPublisher
	model     Model
	cfg       config.RankingConfig
	validate  *validator.Validate
}

// NewHandler wires the handler.
func NewHandler(ranker Ranker, publisher RatingsPublisher, model Model, cfg config.RankingConfig) *Handler {
	return &Handler{
		ranker:    ranker,
		publisher: publisher,
		model:     model,
		cfg:       cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Health reports liveness and basic model shape.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"items":  h.model.ItemCount(),
	})
}

// recommendationsResponse is the top-K payload.
type recommendationsResponse struct {
	UserID string          `json:"user_id"`
	Mode   string          `json:"mode"`
	Items  []cf.ScoredItem `json:"items"`
}

// Recommendations serves GET /api/v1/recommendations/{userID}.
// Optional query parameters: k, mode (rank|estimate), min_score,
// include_rated.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		metrics.APIRequestDuration.WithLabelValues("recommendations", r.Method).Observe(time.Since(start).Seconds())
	}()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondErr(w, r, "recommendations", http.StatusBadRequest, "userID is required")
		return
	}

	req := ranking.Request{
		UserID:   userID,
		K:        h.cfg.DefaultK,
		Mode:     cf.ParseMode(h.cfg.Mode),
		MinScore: h.cfg.MinScore,
	}
	q := r.URL.Query()
	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 1 {
			h.respondErr(w, r, "recommendations", http.StatusBadRequest, "k must be a positive integer")
			return
		}
		req.K = k
	}
	if raw := q.Get("mode"); raw != "" {
		if raw != "rank" && raw != "estimate" {
			h.respondErr(w, r, "recommendations", http.StatusBadRequest, "mode must be rank or estimate")
			return
		}
		req.Mode = cf.ParseMode(raw)
	}
	if raw := q.Get("min_score"); raw != "" {
		minScore, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.respondErr(w, r, "recommendations", http.StatusBadRequest, "min_score must be a number")
			return
		}
		req.MinScore = minScore
	}
	if raw := q.Get("include_rated"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondErr(w, r, "recommendations", http.StatusBadRequest, "include_rated must be a boolean")
			return
		}
		req.IncludeRated = include
	}

	items, err := h.ranker.TopK(r.Context(), req)
	if err != nil {
		logging.Error().Err(err).Str("user", userID).Msg("ranking request failed")
		h.respondErr(w, r, "recommendations", http.StatusInternalServerError, "ranking unavailable")
		return
	}

	metrics.APIRequestsTotal.WithLabelValues("recommendations", r.Method, "200").Inc()
	respondJSON(w, http.StatusOK, recommendationsResponse{
		UserID: userID,
		Mode:   req.Mode.String(),
		Items:  items,
	})
}

// ratingsRequest wraps a batch of rating events.
type ratingsRequest struct {
	Ratings []ingest.RatingEvent `json:"ratings" validate:"required,min=1,dive"`
}

// Ratings serves POST /api/v1/ratings by publishing the events onto
// the training pipeline. Accepted events train asynchronously.
func (h *Handler) Ratings(w http.ResponseWriter, r *http.Request) {
	var req ratingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondErr(w, r, "ratings", http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.respondErr(w, r, "ratings", http.StatusBadRequest, "ratings require user_id and an item_id without '-'")
		return
	}

	if err := h.publisher.PublishRatings(req.Ratings); err != nil {
		logging.Error().Err(err).Int("events", len(req.Ratings)).Msg("failed to publish ratings")
		h.respondErr(w, r, "ratings", http.StatusServiceUnavailable, "pipeline unavailable")
		return
	}

	metrics.APIRequestsTotal.WithLabelValues("ratings", r.Method, "202").Inc()
	respondJSON(w, http.StatusAccepted, map[string]any{"accepted": len(req.Ratings)})
}

// trainRequest carries a full dataset for a batch rebuild. Item ids
// must not contain "-", the pair key separator.
type trainRequest struct {
	// Ratings maps userID -> itemID -> rating.
	Ratings map[string]map[string]float64 `json:"ratings" validate:"required,min=1,dive,keys,required,endkeys,dive,keys,required,excludes=-,endkeys"`

	// Timestamps optionally maps userID -> itemID -> rating time.
	Timestamps map[string]map[string]time.Time `json:"timestamps"`
}

// Train serves POST /api/v1/train: it evicts the stored model and
// rebuilds scores and histories from the posted dataset.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondErr(w, r, "train", http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.respondErr(w, r, "train", http.StatusBadRequest, "ratings dataset is required and item ids must not contain '-'")
		return
	}

	ds := &cf.Dataset{Ratings: req.Ratings, Times: req.Timestamps}
	stats, err := h.model.Rebuild(r.Context(), ds)
	if err != nil {
		logging.Error().Err(err).Msg("batch rebuild failed")
		h.respondErr(w, r, "train", http.StatusInternalServerError, "rebuild failed")
		return
	}

	metrics.APIRequestsTotal.WithLabelValues("train", r.Method, "200").Inc()
	respondJSON(w, http.StatusOK, map[string]any{
		"users":       stats.UserCount,
		"items":       stats.ItemCount,
		"ratings":     stats.RatingCount,
		"global_mean": stats.GlobalMean,
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, endpoint string, status int, msg string) {
	metrics.APIRequestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(status)).Inc()
	respondJSON(w, status, map[string]any{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}
