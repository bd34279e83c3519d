// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/itemwise/internal/cf"
)

type failingRepository struct {
	*MemoryRepository
	failWrites bool
}

func (f *failingRepository) SaveScoreDeltas(ctx context.Context, deltas map[string]float64) error {
	if f.failWrites {
		return errors.New("store down")
	}
	return f.MemoryRepository.SaveScoreDeltas(ctx, deltas)
}

func TestBreakerRepositoryPassesWritesThrough(t *testing.T) {
	inner := NewMemoryRepository()
	repo := NewBreakerRepository(inner, "test-passthrough")

	err := repo.SaveScoreDeltas(context.Background(), map[string]float64{cf.PairKey("a", "a"): 1})
	if err != nil {
		t.Fatalf("SaveScoreDeltas: %v", err)
	}
	all, err := inner.FetchAllScores(context.Background())
	if err != nil {
		t.Fatalf("FetchAllScores: %v", err)
	}
	if all[cf.PairKey("a", "a")] != 1 {
		t.Errorf("write did not reach inner repository: %v", all)
	}
}

func TestBreakerRepositoryOpensAfterRepeatedFailures(t *testing.T) {
	inner := &failingRepository{MemoryRepository: NewMemoryRepository(), failWrites: true}
	repo := NewBreakerRepository(inner, "test-open")
	ctx := context.Background()
	deltas := map[string]float64{cf.PairKey("a", "a"): 1}

	// Trip threshold is 60% failures over at least 10 requests.
	for i := 0; i < 10; i++ {
		if err := repo.SaveScoreDeltas(ctx, deltas); err == nil {
			t.Fatal("expected failure from inner repository")
		}
	}

	// Breaker now rejects without touching the store.
	inner.failWrites = false
	err := repo.SaveScoreDeltas(ctx, deltas)
	if err == nil {
		t.Fatal("expected rejection from open breaker")
	}
	all, err := inner.FetchAllScores(ctx)
	if err != nil {
		t.Fatalf("FetchAllScores: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("open breaker should not write, got %v", all)
	}
}

func TestBreakerRepositoryReadsBypassBreaker(t *testing.T) {
	inner := &failingRepository{MemoryRepository: NewMemoryRepository(), failWrites: true}
	repo := NewBreakerRepository(inner, "test-reads")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = repo.SaveScoreDeltas(ctx, map[string]float64{cf.PairKey("a", "a"): 1})
	}

	// Reads still work while the write breaker is open.
	if _, err := repo.FetchAllScores(ctx); err != nil {
		t.Errorf("FetchAllScores through open breaker: %v", err)
	}
	if _, err := repo.FetchUserHistory(ctx, "u1"); err != nil {
		t.Errorf("FetchUserHistory through open breaker: %v", err)
	}
}

func TestBreakerRepositoryChangedSinceProbe(t *testing.T) {
	repo := NewBreakerRepository(NewMemoryRepository(), "test-probe")

	_, err := repo.FetchScoresChangedSince(context.Background(), time.Unix(0, 0))
	if !errors.Is(err, cf.ErrUnsupported) {
		t.Errorf("memory-backed breaker should report ErrUnsupported, got %v", err)
	}
}
