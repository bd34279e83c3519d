// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/itemwise/internal/cf"
	"github.com/tomtom215/itemwise/internal/metrics"
)

// MemoryRepository implements cf.Repository with in-process maps.
// It keeps no update timestamps, so time-window eviction and
// changed-since fetches are unsupported.
type MemoryRepository struct {
	mu        sync.RWMutex
	scores    map[string]float64
	histories map[string][]cf.RatingRecord
}

var _ cf.Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		scores:    make(map[string]float64),
		histories: make(map[string][]cf.RatingRecord),
	}
}

// FetchAllScores returns a copy of every persisted pairwise score.
func (r *MemoryRepository) FetchAllScores(ctx context.Context) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64, len(r.scores))
	for key, value := range r.scores {
		out[key] = value
	}
	metrics.RecordRepositoryOp("fetch_all_scores", nil)
	return out, nil
}

// FetchScoresTouching returns scores where either side of the pair is
// in itemIDs.
func (r *MemoryRepository) FetchScoresTouching(ctx context.Context, itemIDs map[string]struct{}) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64)
	for key, value := range r.scores {
		hi, lo, err := cf.SplitPairKey(key)
		if err != nil {
			return nil, fmt.Errorf("corrupt score key %q: %w", key, err)
		}
		if _, ok := itemIDs[hi]; ok {
			out[key] = value
			continue
		}
		if _, ok := itemIDs[lo]; ok {
			out[key] = value
		}
	}
	metrics.RecordRepositoryOp("fetch_scores_touching", nil)
	return out, nil
}

// FetchSelfScores returns the diagonal scores, where both sides of the
// pair name the same item.
func (r *MemoryRepository) FetchSelfScores(ctx context.Context) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64)
	for key, value := range r.scores {
		hi, lo, err := cf.SplitPairKey(key)
		if err != nil {
			return nil, fmt.Errorf("corrupt score key %q: %w", key, err)
		}
		if hi == lo {
			out[key] = value
		}
	}
	metrics.RecordRepositoryOp("fetch_self_scores", nil)
	return out, nil
}

// FetchUserHistory returns a copy of one user's history, or an empty
// list for an unknown user.
func (r *MemoryRepository) FetchUserHistory(ctx context.Context, userID string) ([]cf.RatingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.histories[userID]
	if !ok {
		return []cf.RatingRecord{}, nil
	}
	out := make([]cf.RatingRecord, len(stored))
	copy(out, stored)
	metrics.RecordRepositoryOp("fetch_user_history", nil)
	return out, nil
}

// SaveUserHistories replaces the stored history for each given user.
func (r *MemoryRepository) SaveUserHistories(ctx context.Context, histories map[string][]cf.RatingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, history := range histories {
		stored := make([]cf.RatingRecord, len(history))
		copy(stored, history)
		r.histories[userID] = stored
	}
	metrics.RecordRepositoryOp("save_user_histories", nil)
	return nil
}

// SaveScoreDeltas sums the deltas into the stored scores.
func (r *MemoryRepository) SaveScoreDeltas(ctx context.Context, deltas map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, delta := range deltas {
		r.scores[key] += delta
	}
	metrics.RecordRepositoryOp("save_score_deltas", nil)
	return nil
}

// Evict removes stored scores per the strategy. Time-window eviction
// needs update timestamps this backend does not keep.
func (r *MemoryRepository) Evict(ctx context.Context, strategy cf.EvictionStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch strategy.Kind {
	case cf.EvictAll:
		r.scores = make(map[string]float64)
	case cf.EvictItems:
		targets := make(map[string]struct{}, len(strategy.ItemIDs))
		for _, id := range strategy.ItemIDs {
			targets[id] = struct{}{}
		}
		for key := range r.scores {
			hi, lo, err := cf.SplitPairKey(key)
			if err != nil {
				return fmt.Errorf("corrupt score key %q: %w", key, err)
			}
			_, hitHi := targets[hi]
			_, hitLo := targets[lo]
			if hitHi || hitLo {
				delete(r.scores, key)
			}
		}
	default:
		err := fmt.Errorf("evict %s: %w", strategy.Kind, cf.ErrUnsupported)
		metrics.RecordRepositoryOp("evict", err)
		return err
	}
	metrics.RecordRepositoryOp("evict", nil)
	return nil
}
