// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package repository

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/itemwise/internal/cf"
	"github.com/tomtom215/itemwise/internal/logging"
	"github.com/tomtom215/itemwise/internal/metrics"
)

// BreakerRepository wraps a cf.Repository with a circuit breaker on
// the write path. Training persistence is fire-and-forget, so when the
// store is unhealthy the breaker rejects writes fast instead of
// stacking slow failures behind every training pass. Reads and
// eviction pass through untouched; a degraded read is a correctness
// problem the caller must see.
type BreakerRepository struct {
	inner cf.Repository
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

var _ cf.Repository = (*BreakerRepository)(nil)

// NewBreakerRepository wraps inner with write-path circuit breaking.
// The breaker opens after a 60% failure rate over at least 10 requests
// and probes recovery after 30 seconds.
func NewBreakerRepository(inner cf.Repository, name string) *BreakerRepository {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("repository circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerRepository{inner: inner, cb: cb, name: name}
}

func (b *BreakerRepository) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return err
}

// FetchAllScores passes through to the wrapped repository.
func (b *BreakerRepository) FetchAllScores(ctx context.Context) (map[string]float64, error) {
	return b.inner.FetchAllScores(ctx)
}

// FetchScoresTouching passes through to the wrapped repository.
func (b *BreakerRepository) FetchScoresTouching(ctx context.Context, itemIDs map[string]struct{}) (map[string]float64, error) {
	return b.inner.FetchScoresTouching(ctx, itemIDs)
}

// FetchSelfScores passes through to the wrapped repository.
func (b *BreakerRepository) FetchSelfScores(ctx context.Context) (map[string]float64, error) {
	return b.inner.FetchSelfScores(ctx)
}

// FetchUserHistory passes through to the wrapped repository.
func (b *BreakerRepository) FetchUserHistory(ctx context.Context, userID string) ([]cf.RatingRecord, error) {
	return b.inner.FetchUserHistory(ctx, userID)
}

// SaveUserHistories persists through the circuit breaker.
func (b *BreakerRepository) SaveUserHistories(ctx context.Context, histories map[string][]cf.RatingRecord) error {
	return b.execute(func() error {
		return b.inner.SaveUserHistories(ctx, histories)
	})
}

// SaveScoreDeltas persists through the circuit breaker.
func (b *BreakerRepository) SaveScoreDeltas(ctx context.Context, deltas map[string]float64) error {
	return b.execute(func() error {
		return b.inner.SaveScoreDeltas(ctx, deltas)
	})
}

// Evict passes through to the wrapped repository.
func (b *BreakerRepository) Evict(ctx context.Context, strategy cf.EvictionStrategy) error {
	return b.inner.Evict(ctx, strategy)
}

// FetchScoresChangedSince delegates to the wrapped repository when it
// tracks update timestamps, so wrapping does not hide the capability.
func (b *BreakerRepository) FetchScoresChangedSince(ctx context.Context, since time.Time) (map[string]float64, error) {
	if fetcher, ok := b.inner.(cf.ChangedScoreFetcher); ok {
		return fetcher.FetchScoresChangedSince(ctx, since)
	}
	return nil, cf.ErrUnsupported
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
