// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/itemwise/internal/cf"
)

func openTestRepository(t *testing.T) *BadgerRepository {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close badger: %v", err)
		}
	})
	return NewBadgerRepository(db)
}

func TestBadgerRepositoryScoresRoundTrip(t *testing.T) {
	repo := openTestRepository(t)
	seedScores(t, repo)

	all, err := repo.FetchAllScores(context.Background())
	if err != nil {
		t.Fatalf("FetchAllScores: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 scores, got %d: %v", len(all), all)
	}
	if got := all[cf.PairKey("a", "b")]; got != 8 {
		t.Errorf("a-b score = %v, want 8", got)
	}
}

func TestBadgerRepositoryDeltasAccumulate(t *testing.T) {
	repo := openTestRepository(t)
	seedScores(t, repo)
	seedScores(t, repo)

	all, err := repo.FetchAllScores(context.Background())
	if err != nil {
		t.Fatalf("FetchAllScores: %v", err)
	}
	if got := all[cf.PairKey("a", "b")]; got != 16 {
		t.Errorf("a-b after two delta saves = %v, want 16", got)
	}
}

func TestBadgerRepositoryFetchScoresTouching(t *testing.T) {
	repo := openTestRepository(t)
	seedScores(t, repo)

	got, err := repo.FetchScoresTouching(context.Background(), map[string]struct{}{"a": {}})
	if err != nil {
		t.Fatalf("FetchScoresTouching: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 scores touching a, got %v", got)
	}
	if got[cf.PairKey("a", "a")] != 16 || got[cf.PairKey("a", "b")] != 8 {
		t.Errorf("unexpected scores: %v", got)
	}
}

func TestBadgerRepositoryFetchSelfScores(t *testing.T) {
	repo := openTestRepository(t)
	seedScores(t, repo)

	got, err := repo.FetchSelfScores(context.Background())
	if err != nil {
		t.Fatalf("FetchSelfScores: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 self scores, got %v", got)
	}
}

func TestBadgerRepositoryHistoriesRoundTrip(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	empty, err := repo.FetchUserHistory(ctx, "nobody")
	if err != nil {
		t.Fatalf("FetchUserHistory: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown user should have empty history, got %v", empty)
	}

	history := []cf.RatingRecord{
		{ItemID: "sku-1", Rating: 4.5, Timestamp: time.Unix(1700000090, 0).UTC()},
		{ItemID: "sku-2", Rating: 2},
	}
	err = repo.SaveUserHistories(ctx, map[string][]cf.RatingRecord{"u1": history})
	if err != nil {
		t.Fatalf("SaveUserHistories: %v", err)
	}

	got, err := repo.FetchUserHistory(ctx, "u1")
	if err != nil {
		t.Fatalf("FetchUserHistory: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %v", got)
	}
	if got[0].ItemID != "sku-1" || got[0].Rating != 4.5 {
		t.Errorf("first record mismatch: %+v", got[0])
	}
	if !got[0].Timestamp.Equal(history[0].Timestamp) {
		t.Errorf("timestamp mismatch: got %v, want %v", got[0].Timestamp, history[0].Timestamp)
	}
	if !got[1].Timestamp.IsZero() {
		t.Errorf("absent timestamp should round-trip as zero, got %v", got[1].Timestamp)
	}
}

func TestBadgerRepositoryChangedSince(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	t0 := time.Unix(1700000000, 0).UTC()
	repo.WithClock(func() time.Time { return t0 })
	err := repo.SaveScoreDeltas(ctx, map[string]float64{cf.PairKey("a", "a"): 1})
	if err != nil {
		t.Fatalf("SaveScoreDeltas: %v", err)
	}

	t1 := t0.Add(time.Hour)
	repo.WithClock(func() time.Time { return t1 })
	err = repo.SaveScoreDeltas(ctx, map[string]float64{cf.PairKey("b", "b"): 2})
	if err != nil {
		t.Fatalf("SaveScoreDeltas: %v", err)
	}

	changed, err := repo.FetchScoresChangedSince(ctx, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("FetchScoresChangedSince: %v", err)
	}
	if len(changed) != 1 {
		t.Fatalf("expected 1 changed score, got %v", changed)
	}
	if changed[cf.PairKey("b", "b")] != 2 {
		t.Errorf("unexpected changed scores: %v", changed)
	}
}

func TestBadgerRepositoryEvictAll(t *testing.T) {
	repo := openTestRepository(t)
	seedScores(t, repo)

	if err := repo.Evict(context.Background(), cf.EvictionStrategy{Kind: cf.EvictAll}); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	all, err := repo.FetchAllScores(context.Background())
	if err != nil {
		t.Fatalf("FetchAllScores: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected no scores after EvictAll, got %v", all)
	}
}

func TestBadgerRepositoryEvictItems(t *testing.T) {
	repo := openTestRepository(t)
	seedScores(t, repo)

	err := repo.Evict(context.Background(), cf.EvictionStrategy{
		Kind:    cf.EvictItems,
		ItemIDs: []string{"b"},
	})
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}

	all, err := repo.FetchAllScores(context.Background())
	if err != nil {
		t.Fatalf("FetchAllScores: %v", err)
	}
	if _, ok := all[cf.PairKey("a", "b")]; ok {
		t.Error("a-b should have been evicted")
	}
	if _, ok := all[cf.PairKey("a", "a")]; !ok {
		t.Error("a-a should have survived")
	}
}

func TestBadgerRepositoryEvictTimeWindow(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	t0 := time.Unix(1700000000, 0).UTC()
	repo.WithClock(func() time.Time { return t0 })
	err := repo.SaveScoreDeltas(ctx, map[string]float64{cf.PairKey("old", "old"): 1})
	if err != nil {
		t.Fatalf("SaveScoreDeltas: %v", err)
	}

	t1 := t0.Add(2 * time.Hour)
	repo.WithClock(func() time.Time { return t1 })
	err = repo.SaveScoreDeltas(ctx, map[string]float64{cf.PairKey("new", "new"): 2})
	if err != nil {
		t.Fatalf("SaveScoreDeltas: %v", err)
	}

	err = repo.Evict(ctx, cf.EvictionStrategy{
		Kind:  cf.EvictTimeWindow,
		Begin: t0.Add(-time.Minute),
		End:   t0.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Evict: %v", err)
	}

	all, err := repo.FetchAllScores(ctx)
	if err != nil {
		t.Fatalf("FetchAllScores: %v", err)
	}
	if _, ok := all[cf.PairKey("old", "old")]; ok {
		t.Error("score inside the window should have been evicted")
	}
	if _, ok := all[cf.PairKey("new", "new")]; !ok {
		t.Error("score outside the window should have survived")
	}
}
