// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import (
	"context"
	"errors"
	"time"
)

// Note: the storage contract lives in this package so backends can be
// implemented without creating circular imports, mirroring how the
// engine consumes its collaborators through a narrow interface.

// ErrUnsupported reports a repository capability the configured backend
// does not provide. It is a configuration error surfaced immediately to
// the caller rather than silently degraded.
var ErrUnsupported = errors.New("operation not supported by storage backend")

// EvictionKind selects an eviction strategy for persisted pairwise
// scores.
type EvictionKind int

const (
	// EvictAll truncates every persisted pairwise score.
	EvictAll EvictionKind = iota
	// EvictTimeWindow removes scores last updated inside [Begin, End),
	// scanning at most Size entries per pass.
	EvictTimeWindow
	// EvictItems removes all scores touching the given item ids.
	EvictItems
)

// String returns a human-readable name for the eviction kind.
func (k EvictionKind) String() string {
	switch k {
	case EvictAll:
		return "all"
	case EvictTimeWindow:
		return "time_window"
	case EvictItems:
		return "items"
	default:
		return "unknown"
	}
}

// EvictionStrategy describes which persisted pairwise scores to remove.
// Fields beyond Kind apply only to the kinds that name them.
type EvictionStrategy struct {
	Kind    EvictionKind
	Size    int
	Begin   time.Time
	End     time.Time
	ItemIDs []string
}

// Repository is the storage contract the engine consumes. Pairwise
// scores travel in their persisted form (canonical pair key to value);
// user histories travel as decoded rating records.
//
// Implementations may be synchronous or asynchronous internally; the
// engine treats delta persistence as fire-and-forget and never retries.
type Repository interface {
	// FetchAllScores returns every persisted pairwise score.
	FetchAllScores(ctx context.Context) (map[string]float64, error)

	// FetchScoresTouching returns pairwise scores where at least one
	// side of the pair is in itemIDs.
	FetchScoresTouching(ctx context.Context, itemIDs map[string]struct{}) (map[string]float64, error)

	// FetchSelfScores returns pairwise scores where both sides of the
	// pair are the same item.
	FetchSelfScores(ctx context.Context) (map[string]float64, error)

	// FetchUserHistory returns the persisted rating history for one
	// user, most recent first. A user with no history yields an empty
	// list, not an error.
	FetchUserHistory(ctx context.Context, userID string) ([]RatingRecord, error)

	// SaveUserHistories persists rating histories for many users,
	// replacing any existing history per user.
	SaveUserHistories(ctx context.Context, histories map[string][]RatingRecord) error

	// SaveScoreDeltas sums the given deltas into the persisted scores.
	// The repository owns the read-sum-write so concurrent training
	// partitions cannot lose updates.
	SaveScoreDeltas(ctx context.Context, deltas map[string]float64) error

	// Evict removes persisted pairwise scores per the strategy.
	// Unsupported strategies fail fast with ErrUnsupported.
	Evict(ctx context.Context, strategy EvictionStrategy) error
}

// ChangedScoreFetcher is an optional repository capability for backends
// that track per-score update timestamps. Callers probe for it with a
// type assertion; backends without timestamps simply don't implement it.
type ChangedScoreFetcher interface {
	// FetchScoresChangedSince returns pairwise scores last updated at or
	// after the given instant.
	FetchScoresChangedSince(ctx context.Context, since time.Time) (map[string]float64, error)
}
