// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// stubRepo is an in-memory Repository double recording what the
// trainer persists.
type stubRepo struct {
	histories map[string][]RatingRecord
	deltas    map[string]float64

	historySaves int
	deltaSaves   int

	fetchErr error
	saveErr  error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		histories: make(map[string][]RatingRecord),
		deltas:    make(map[string]float64),
	}
}

func (s *stubRepo) FetchAllScores(ctx context.Context) (map[string]float64, error) {
	return s.deltas, nil
}

func (s *stubRepo) FetchScoresTouching(ctx context.Context, itemIDs map[string]struct{}) (map[string]float64, error) {
	return nil, nil
}

func (s *stubRepo) FetchSelfScores(ctx context.Context) (map[string]float64, error) {
	return nil, nil
}

func (s *stubRepo) FetchUserHistory(ctx context.Context, userID string) ([]RatingRecord, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.histories[userID], nil
}

func (s *stubRepo) SaveUserHistories(ctx context.Context, histories map[string][]RatingRecord) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.historySaves++
	for userID, records := range histories {
		s.histories[userID] = records
	}
	return nil
}

func (s *stubRepo) SaveScoreDeltas(ctx context.Context, deltas map[string]float64) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.deltaSaves++
	for k, v := range deltas {
		s.deltas[k] += v
	}
	return nil
}

func (s *stubRepo) Evict(ctx context.Context, strategy EvictionStrategy) error {
	return nil
}

var _ Repository = (*stubRepo)(nil)

// batchBuild runs the batch trainer over a dataset and returns the
// resulting accumulator and index, the reference for incremental
// equivalence checks.
func batchBuild(t *testing.T, ds *Dataset) (*Accumulator, *Index) {
	t.Helper()
	idx := NewIndex()
	acc := NewAccumulator()
	if _, err := NewBatchTrainer(nil).Train(context.Background(), ds, idx, acc); err != nil {
		t.Fatalf("batch Train() error = %v", err)
	}
	return acc, idx
}

// accumulatorsEqual compares two accumulators cell by cell through
// their id mappings.
func accumulatorsEqual(t *testing.T, got *Accumulator, gotIdx *Index, want *Accumulator, wantIdx *Index) {
	t.Helper()

	if got.Len() != want.Len() {
		t.Errorf("cell count = %d, want %d", got.Len(), want.Len())
	}
	want.Range(func(i, j int, v float64) bool {
		a, _ := wantIdx.ID(i)
		b, _ := wantIdx.ID(j)
		gi, ok := gotIdx.Get(a)
		if !ok {
			t.Errorf("item %q missing from incremental index", a)
			return true
		}
		gj, ok := gotIdx.Get(b)
		if !ok {
			t.Errorf("item %q missing from incremental index", b)
			return true
		}
		if gv := got.Get(gi, gj); math.Abs(gv-v) > 1e-9 {
			t.Errorf("cell (%s,%s) = %v, want %v", a, b, gv, v)
		}
		return true
	})
}

func TestIncrementalTrainer_MatchesBatchForFreshUsers(t *testing.T) {
	ds := &Dataset{Ratings: map[string]map[string]float64{
		"u1": {"A": 2, "B": 2, "C": 4.5},
		"u2": {"A": 2, "B": 2},
		"u3": {"C": 1, "D": -3},
	}}
	wantAcc, wantIdx := batchBuild(t, ds)

	repo := newStubRepo()
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	batch := make(RatingBatch)
	for userID, ratings := range ds.Ratings {
		for itemID, r := range ratings {
			batch[userID] = append(batch[userID], RatingRecord{ItemID: itemID, Rating: r})
		}
	}

	idx := NewIndex()
	acc := NewAccumulator()
	if err := trainer.Train(context.Background(), batch, acc, idx); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	accumulatorsEqual(t, acc, idx, wantAcc, wantIdx)
}

func TestIncrementalTrainer_TwoUserScenario(t *testing.T) {
	repo := newStubRepo()
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()
	batch := RatingBatch{
		"u1": {{ItemID: "A", Rating: 2}, {ItemID: "B", Rating: 2}},
		"u2": {{ItemID: "A", Rating: 2}, {ItemID: "B", Rating: 2}},
	}
	if err := trainer.Train(context.Background(), batch, acc, idx); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	a, _ := idx.Get("A")
	b, _ := idx.Get("B")
	if acc.Get(a, a) != 8 || acc.Get(b, b) != 8 || acc.Get(a, b) != 8 {
		t.Errorf("cells = (%v, %v, %v), want 8 each",
			acc.Get(a, a), acc.Get(b, b), acc.Get(a, b))
	}

	// Persisted deltas carry the same values under canonical keys.
	if repo.deltas[PairKey("A", "B")] != 8 {
		t.Errorf("persisted delta A-B = %v, want 8", repo.deltas[PairKey("A", "B")])
	}
}

func TestIncrementalTrainer_ReRateCorrection(t *testing.T) {
	// User rates A=2, B=3; later re-rates A=4. The accumulator must
	// equal a from-scratch build over the corrected ratings A=4, B=3.
	repo := newStubRepo()
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()

	if err := trainer.Train(context.Background(), RatingBatch{
		"u1": {{ItemID: "A", Rating: 2}, {ItemID: "B", Rating: 3}},
	}, acc, idx); err != nil {
		t.Fatalf("first Train() error = %v", err)
	}
	if err := trainer.Train(context.Background(), RatingBatch{
		"u1": {{ItemID: "A", Rating: 4}},
	}, acc, idx); err != nil {
		t.Fatalf("second Train() error = %v", err)
	}

	wantAcc, wantIdx := batchBuild(t, &Dataset{Ratings: map[string]map[string]float64{
		"u1": {"A": 4, "B": 3},
	}})
	accumulatorsEqual(t, acc, idx, wantAcc, wantIdx)
}

func TestIncrementalTrainer_ReRateLowerKeepsOld(t *testing.T) {
	// The larger rating is the current truth: re-rating A=1 over a
	// stored A=2 must leave the accumulator at the A=2 build.
	repo := newStubRepo()
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()

	for _, batch := range []RatingBatch{
		{"u1": {{ItemID: "A", Rating: 2}, {ItemID: "B", Rating: 3}}},
		{"u1": {{ItemID: "A", Rating: 1}}},
	} {
		if err := trainer.Train(context.Background(), batch, acc, idx); err != nil {
			t.Fatalf("Train() error = %v", err)
		}
	}

	wantAcc, wantIdx := batchBuild(t, &Dataset{Ratings: map[string]map[string]float64{
		"u1": {"A": 2, "B": 3},
	}})
	accumulatorsEqual(t, acc, idx, wantAcc, wantIdx)

	// History still carries the authoritative rating 2.
	for _, rec := range repo.histories["u1"] {
		if rec.ItemID == "A" && rec.Rating != 2 {
			t.Errorf("history rating for A = %v, want 2", rec.Rating)
		}
	}
}

func TestIncrementalTrainer_ConflictingPair(t *testing.T) {
	// Both items of a co-occurring pair re-rated in one batch: the
	// sequential correction must settle them against each other's
	// corrected value.
	repo := newStubRepo()
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()

	for _, batch := range []RatingBatch{
		{"u1": {{ItemID: "A", Rating: 1}, {ItemID: "B", Rating: 2}}},
		{"u1": {{ItemID: "A", Rating: 3}, {ItemID: "B", Rating: 5}}},
	} {
		if err := trainer.Train(context.Background(), batch, acc, idx); err != nil {
			t.Fatalf("Train() error = %v", err)
		}
	}

	wantAcc, wantIdx := batchBuild(t, &Dataset{Ratings: map[string]map[string]float64{
		"u1": {"A": 3, "B": 5},
	}})
	accumulatorsEqual(t, acc, idx, wantAcc, wantIdx)
}

func TestIncrementalTrainer_BridgeTerms(t *testing.T) {
	// A returning user's new item must co-occur with every historical
	// item, not only items of the same batch.
	repo := newStubRepo()
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()

	for _, batch := range []RatingBatch{
		{"u1": {{ItemID: "A", Rating: 2}}},
		{"u1": {{ItemID: "B", Rating: 3}}},
	} {
		if err := trainer.Train(context.Background(), batch, acc, idx); err != nil {
			t.Fatalf("Train() error = %v", err)
		}
	}

	a, _ := idx.Get("A")
	b, _ := idx.Get("B")
	if got := acc.Get(a, b); got != 6 {
		t.Errorf("bridge cell A-B = %v, want 6", got)
	}
}

func TestIncrementalTrainer_HistoryCap(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	repo := newStubRepo()
	trainer := NewIncrementalTrainer(TrainerConfig{MaxHistory: 2}, repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()
	batch := RatingBatch{"u1": {
		{ItemID: "old", Rating: 1, Timestamp: base},
		{ItemID: "mid", Rating: 2, Timestamp: base.Add(time.Hour)},
		{ItemID: "new", Rating: 3, Timestamp: base.Add(2 * time.Hour)},
	}}
	if err := trainer.Train(context.Background(), batch, acc, idx); err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	got := repo.histories["u1"]
	if len(got) != 2 {
		t.Fatalf("persisted %d records, want 2", len(got))
	}
	if got[0].ItemID != "new" || got[1].ItemID != "mid" {
		t.Errorf("persisted items = [%s, %s], want [new, mid]", got[0].ItemID, got[1].ItemID)
	}
}

func TestIncrementalTrainer_SupersedesNotAppends(t *testing.T) {
	repo := newStubRepo()
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()

	for _, batch := range []RatingBatch{
		{"u1": {{ItemID: "A", Rating: 2}}},
		{"u1": {{ItemID: "A", Rating: 4}}},
	} {
		if err := trainer.Train(context.Background(), batch, acc, idx); err != nil {
			t.Fatalf("Train() error = %v", err)
		}
	}

	got := repo.histories["u1"]
	if len(got) != 1 {
		t.Fatalf("history has %d records, want 1 (re-rate replaces)", len(got))
	}
	if got[0].Rating != 4 {
		t.Errorf("history rating = %v, want 4", got[0].Rating)
	}
}

func TestIncrementalTrainer_SkipFlags(t *testing.T) {
	tests := []struct {
		name             string
		cfg              TrainerConfig
		wantHistorySaves int
		wantDeltaSaves   int
	}{
		{name: "both sides persist by default", cfg: TrainerConfig{}, wantHistorySaves: 1, wantDeltaSaves: 1},
		{name: "skip history only", cfg: TrainerConfig{SkipHistoryPersist: true}, wantHistorySaves: 0, wantDeltaSaves: 1},
		{name: "skip scores only", cfg: TrainerConfig{SkipScorePersist: true}, wantHistorySaves: 1, wantDeltaSaves: 0},
		{name: "skip both", cfg: TrainerConfig{SkipHistoryPersist: true, SkipScorePersist: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			trainer := NewIncrementalTrainer(tt.cfg, repo, zerolog.Nop())

			idx := NewIndex()
			acc := NewAccumulator()
			err := trainer.Train(context.Background(), RatingBatch{
				"u1": {{ItemID: "A", Rating: 2}},
			}, acc, idx)
			if err != nil {
				t.Fatalf("Train() error = %v", err)
			}

			if repo.historySaves != tt.wantHistorySaves {
				t.Errorf("history saves = %d, want %d", repo.historySaves, tt.wantHistorySaves)
			}
			if repo.deltaSaves != tt.wantDeltaSaves {
				t.Errorf("delta saves = %d, want %d", repo.deltaSaves, tt.wantDeltaSaves)
			}

			// In-memory state stays usable either way.
			a, _ := idx.Get("A")
			if got := acc.Get(a, a); got != 4 {
				t.Errorf("acc[A][A] = %v, want 4", got)
			}
		})
	}
}

func TestIncrementalTrainer_PersistFailureIsNotFatal(t *testing.T) {
	repo := newStubRepo()
	repo.saveErr = errors.New("storage degraded")
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()
	err := trainer.Train(context.Background(), RatingBatch{
		"u1": {{ItemID: "A", Rating: 2}},
	}, acc, idx)
	if err != nil {
		t.Fatalf("Train() error = %v, want persistence failure swallowed", err)
	}

	a, _ := idx.Get("A")
	if got := acc.Get(a, a); got != 4 {
		t.Errorf("acc[A][A] = %v, want 4 despite persistence failure", got)
	}
}

func TestIncrementalTrainer_FetchFailureAborts(t *testing.T) {
	repo := newStubRepo()
	repo.fetchErr = errors.New("backend down")
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	err := trainer.Train(context.Background(), RatingBatch{
		"u1": {{ItemID: "A", Rating: 2}},
	}, NewAccumulator(), NewIndex())
	if err == nil {
		t.Fatal("Train() with failing history fetch, want error")
	}
}

func TestIncrementalTrainer_InBatchDuplicatesCollapse(t *testing.T) {
	repo := newStubRepo()
	trainer := NewIncrementalTrainer(DefaultTrainerConfig(), repo, zerolog.Nop())

	idx := NewIndex()
	acc := NewAccumulator()
	err := trainer.Train(context.Background(), RatingBatch{
		"u1": {
			{ItemID: "A", Rating: 2},
			{ItemID: "A", Rating: 5},
		},
	}, acc, idx)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	a, _ := idx.Get("A")
	if got := acc.Get(a, a); got != 25 {
		t.Errorf("acc[A][A] = %v, want 25 (larger in-batch rating wins)", got)
	}
}
