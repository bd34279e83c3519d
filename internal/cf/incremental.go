// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// TrainerConfig contains configuration for the incremental trainer.
type TrainerConfig struct {
	// MaxHistory caps the number of rating records persisted per user,
	// most recent first. Default: 50.
	MaxHistory int

	// SkipHistoryPersist disables user-history persistence while
	// keeping the in-memory accumulator usable. Circuit-breaker flag
	// for downstream storage degradation; skipping is silent, never an
	// error.
	SkipHistoryPersist bool

	// SkipScorePersist disables pairwise score-delta persistence, same
	// contract as SkipHistoryPersist.
	SkipScorePersist bool
}

// DefaultTrainerConfig returns the default incremental trainer
// configuration.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{MaxHistory: 50}
}

// RatingBatch is a freshly observed sparse rating batch, arranged as
// user id to that user's new rating records.
type RatingBatch map[string][]RatingRecord

// IncrementalTrainer merges new rating batches into an accumulator and
// the per-user rating histories without rescanning historical data.
//
// The trainer mutates the accumulator in place; callers must serialize
// training passes per accumulator instance and keep predictions out of
// the mutation window (single-writer, many-readers).
type IncrementalTrainer struct {
	config TrainerConfig
	repo   Repository
	logger zerolog.Logger
}

// NewIncrementalTrainer creates an incremental trainer persisting
// through repo.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewIncrementalTrainer(cfg TrainerConfig, repo Repository, logger zerolog.Logger) *IncrementalTrainer {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 50
	}
	return &IncrementalTrainer{
		config: cfg,
		repo:   repo,
		logger: logger.With().Str("component", "incremental_trainer").Logger(),
	}
}

// Train merges the batch into the accumulator and the per-user
// histories. Per user it applies, atomically with respect to the
// accumulator:
//
//  1. conflict detection for re-rated items (the larger of old and new
//     rating becomes the current truth; ties keep the old record),
//  2. self and cross terms within the genuinely new items,
//  3. bridge terms between new items and the user's historical items,
//  4. the algebraic conflict correction that makes a re-rate equal a
//     from-scratch rebuild: (n-o)^2 + 2*o*(n-o) on the diagonal
//     (the expansion of n^2 - o^2) and (n-o)*rating(j) off it.
//
// Only the delta of this pass is handed to the repository, which sums
// it into any previously stored score; the trainer never reads back the
// stored total, so concurrent partitions cannot lose updates.
//
// History fetch failures abort the affected user with an error;
// persistence failures are logged and dropped (fire-and-forget, retry
// is the repository's business if it has one).
func (t *IncrementalTrainer) Train(ctx context.Context, batch RatingBatch, acc *Accumulator, items *Index) error {
	delta := NewAccumulator()
	histories := make(map[string][]RatingRecord, len(batch))

	for userID, records := range batch {
		if len(records) == 0 {
			continue
		}

		stored, err := t.repo.FetchUserHistory(ctx, userID)
		if err != nil {
			return fmt.Errorf("fetch history for user %s: %w", userID, err)
		}

		merged := t.trainUser(records, stored, delta, items)
		histories[userID] = merged
	}

	acc.Merge(delta)

	t.persist(ctx, delta, items, histories)
	return nil
}

// trainUser applies one user's batch to the delta accumulator and
// returns the user's merged, capped history.
func (t *IncrementalTrainer) trainUser(records, stored []RatingRecord, delta *Accumulator, items *Index) []RatingRecord {
	newRatings, newTimes := collapseBatch(records, items)

	// Re-index the stored history into the (possibly extended) item
	// mapping, keeping the stored order for the final cap.
	histRatings := make(map[int]float64, len(stored))
	histRecords := make(map[int]RatingRecord, len(stored))
	order := make([]int, 0, len(stored)+len(newRatings))
	for _, rec := range stored {
		i := items.GetOrAdd(rec.ItemID)
		histRatings[i] = rec.Rating
		histRecords[i] = rec
		order = append(order, i)
	}

	// Conflict detection: items present in both the batch and the
	// stored history. The larger rating wins; a tie keeps the stored
	// record untouched (zero-delta correction).
	type conflict struct {
		item     int
		old, new float64
	}
	var conflicts []conflict
	for i := range newRatings {
		if old, ok := histRatings[i]; ok {
			truth := newRatings[i]
			if truth < old {
				truth = old
			}
			conflicts = append(conflicts, conflict{item: i, old: old, new: truth})
			delete(newRatings, i)
		}
	}
	// Deterministic correction order; the summed delta is
	// order-sensitive only through the running ratings map below.
	sort.Slice(conflicts, func(a, b int) bool { return conflicts[a].item < conflicts[b].item })

	genuinelyNew := make([]int, 0, len(newRatings))
	for i := range newRatings {
		genuinelyNew = append(genuinelyNew, i)
	}
	sort.Ints(genuinelyNew)

	// Self and cross terms within the new batch: exactly what a full
	// co-occurrence build would contribute for these observations.
	for a := 0; a < len(genuinelyNew); a++ {
		for b := a; b < len(genuinelyNew); b++ {
			i, j := genuinelyNew[a], genuinelyNew[b]
			delta.Add(i, j, newRatings[i]*newRatings[j])
		}
	}

	// Bridge terms: the user's historical preferences now co-occur
	// with every newly observed item. Conflicting items bridge with
	// their old rating here; the correction below settles the
	// difference.
	for _, i := range genuinelyNew {
		for j, r := range histRatings {
			delta.Add(i, j, newRatings[i]*r)
		}
	}

	// current tracks the user's up-to-date ratings: history plus the
	// genuinely new items. Corrections read from and write back into
	// it so that pairs of conflicting items settle against each
	// other's already-corrected value.
	current := make(map[int]float64, len(histRatings)+len(newRatings))
	for i, r := range histRatings {
		current[i] = r
	}
	for i, r := range newRatings {
		current[i] = r
	}

	for _, c := range conflicts {
		d := c.new - c.old
		for j, r := range current {
			if j == c.item {
				// n^2 - o^2, expanded so only the delta is applied.
				delta.Add(j, j, d*d+2*c.old*d)
			} else {
				delta.Add(c.item, j, d*r)
			}
		}
		current[c.item] = c.new
	}

	// Merge the batch into the history: every item rated in this batch
	// supersedes its stored record, conflicts at their truth value. A
	// tied conflict keeps the stored record and its timestamp. The
	// merged list is most-recent-first by construction (batch items
	// ahead of the stored records), which the timestamp sort in
	// capHistory preserves for records without timestamps.
	for _, i := range genuinelyNew {
		id, _ := items.ID(i)
		histRecords[i] = RatingRecord{ItemID: id, Rating: newRatings[i], Timestamp: newTimes[i]}
	}
	order = append(append(make([]int, 0, len(order)+len(genuinelyNew)), genuinelyNew...), order...)
	for _, c := range conflicts {
		if c.new != c.old {
			id, _ := items.ID(c.item)
			histRecords[c.item] = RatingRecord{ItemID: id, Rating: c.new, Timestamp: newTimes[c.item]}
		}
	}

	merged := make([]RatingRecord, 0, len(order))
	for _, i := range order {
		merged = append(merged, histRecords[i])
	}
	return capHistory(merged, t.config.MaxHistory)
}

// persist writes the pass's score delta and merged histories, honoring
// the circuit-breaker flags.
func (t *IncrementalTrainer) persist(ctx context.Context, delta *Accumulator, items *Index, histories map[string][]RatingRecord) {
	if !t.config.SkipScorePersist && delta.Len() > 0 {
		deltas := EncodeScores(delta, items, false)
		if err := t.repo.SaveScoreDeltas(ctx, deltas); err != nil {
			t.logger.Warn().Err(err).Int("deltas", len(deltas)).Msg("score delta persistence failed, continuing in-memory")
		}
	}

	if !t.config.SkipHistoryPersist && len(histories) > 0 {
		if err := t.repo.SaveUserHistories(ctx, histories); err != nil {
			t.logger.Warn().Err(err).Int("users", len(histories)).Msg("history persistence failed, continuing in-memory")
		}
	}
}

// collapseBatch resolves the batch into per-item rating and timestamp
// maps, registering items in the index. Duplicate in-batch ratings for
// one item collapse to the larger rating, consistent with the re-rate
// policy.
func collapseBatch(records []RatingRecord, items *Index) (map[int]float64, map[int]time.Time) {
	ratings := make(map[int]float64, len(records))
	times := make(map[int]time.Time, len(records))

	for _, rec := range records {
		i := items.GetOrAdd(rec.ItemID)
		if r, ok := ratings[i]; !ok || rec.Rating > r {
			ratings[i] = rec.Rating
			times[i] = rec.Timestamp
		}
	}
	return ratings, times
}

// capHistory orders records most recent first (records without
// timestamps sort oldest, keeping their relative order) and truncates
// to max.
func capHistory(records []RatingRecord, max int) []RatingRecord {
	sort.SliceStable(records, func(a, b int) bool {
		return records[a].Timestamp.After(records[b].Timestamp)
	})

	if len(records) > max {
		records = records[:max]
	}
	return records
}
