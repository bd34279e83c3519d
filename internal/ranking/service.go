// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

// Package ranking serves top-K recommendation requests from persisted
// pairwise scores, without touching the live training accumulator.
package ranking

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/itemwise/internal/cf"
	"github.com/tomtom215/itemwise/internal/metrics"
)

// Request describes one top-K ranking request.
type Request struct {
	UserID string

	// K caps the number of returned items. K <= 0 returns every
	// candidate above the threshold.
	K int

	// Mode selects rank (decayed, unnormalized) or estimate
	// (normalized) scoring.
	Mode cf.Mode

	// MinScore drops candidates scoring below it.
	MinScore float64

	// IncludeRated keeps items the user has already rated in the
	// result. Off by default; recommendations exclude known items.
	IncludeRated bool
}

// Service ranks candidate items for a user. Each request builds an
// ephemeral accumulator from the persisted score slices touching the
// user's history, so requests are isolated from concurrent training.
type Service struct {
	repo   cf.Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a ranking service over the given repository.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewService(repo cf.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "ranking").Logger(),
		now:    time.Now,
	}
}

// WithClock overrides the clock used for decay weighting. Intended for
// deterministic tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// TopK returns the highest-scoring candidate items for the user,
// descending by score. A user with no history gets an empty result,
// not an error. Storage fetch failures abort the request.
func (s *Service) TopK(ctx context.Context, req Request) ([]cf.ScoredItem, error) {
	start := time.Now()
	out, err := s.topK(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RankingRequests.WithLabelValues(status).Inc()
	metrics.RankingDuration.Observe(time.Since(start).Seconds())
	return out, err
}

func (s *Service) topK(ctx context.Context, req Request) ([]cf.ScoredItem, error) {
	history, err := s.repo.FetchUserHistory(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", req.UserID, err)
	}
	if len(history) == 0 {
		s.logger.Debug().Str("user", req.UserID).Msg("no history, empty ranking")
		return []cf.ScoredItem{}, nil
	}

	rated := make(map[string]struct{}, len(history))
	for _, rec := range history {
		rated[rec.ItemID] = struct{}{}
	}

	// The filtered slice introduces every item id the user's ratings
	// co-occur with; the self-similarity slice then fills in diagonals
	// for exactly those items.
	touching, err := s.repo.FetchScoresTouching(ctx, rated)
	if err != nil {
		return nil, fmt.Errorf("fetch scores touching: %w", err)
	}
	selfScores, err := s.repo.FetchSelfScores(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch self scores: %w", err)
	}

	idx := cf.NewIndex()
	acc := cf.NewAccumulator()
	if err := cf.DecodeScores(touching, idx, acc, false); err != nil {
		return nil, fmt.Errorf("decode filtered scores: %w", err)
	}
	if err := cf.DecodeScores(selfScores, idx, acc, true); err != nil {
		return nil, fmt.Errorf("decode self scores: %w", err)
	}

	pred := cf.NewPredictor(acc, idx).WithClock(s.now)

	scored := make([]cf.ScoredItem, 0, idx.Len())
	candidates := 0
	for _, itemID := range idx.IDs() {
		if !req.IncludeRated {
			if _, ok := rated[itemID]; ok {
				continue
			}
		}
		candidates++

		score := pred.Score(req.Mode, itemID, history)
		if math.IsNaN(score) || score < req.MinScore {
			continue
		}
		// A zero is no signal under a non-negative threshold, but a
		// negative MinScore asks for genuine zero-valued estimates too.
		if score == 0 && req.MinScore >= 0 {
			continue
		}
		scored = append(scored, cf.ScoredItem{ItemID: itemID, Score: score})
	}
	metrics.RankingCandidates.Observe(float64(candidates))

	// Ties break on item id so rankings are stable across runs.
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ItemID < scored[j].ItemID
	})

	if req.K > 0 && len(scored) > req.K {
		scored = scored[:req.K]
	}

	s.logger.Debug().
		Str("user", req.UserID).
		Str("mode", req.Mode.String()).
		Int("candidates", candidates).
		Int("returned", len(scored)).
		Msg("ranking served")
	return scored, nil
}
