// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import (
	"math"
	"time"
)

// Mode selects the prediction output.
type Mode int

const (
	// ModeRank produces an unnormalized, time-decayed score intended
	// only for relative ordering among candidates for the same user.
	ModeRank Mode = iota

	// ModeEstimate produces a calibrated rating estimate, normalized by
	// the summed absolute similarity. Used for offline error
	// evaluation.
	ModeEstimate
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeRank:
		return "rank"
	case ModeEstimate:
		return "estimate"
	default:
		return "unknown"
	}
}

// ParseMode maps a configuration string onto a prediction mode.
// Unrecognized values fall back to ModeEstimate.
func ParseMode(s string) Mode {
	if s == "rank" {
		return ModeRank
	}
	return ModeEstimate
}

// ScoredItem pairs an item identifier with its prediction score.
type ScoredItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// Decay returns the time-decay weight of a rating observed at t, seen
// from now:
//
//	decay(t) = 0.5 + 0.5^(1 + 0.2*hours(now-t))
//
// Monotonically decreasing in age and asymptotically approaching 0.5,
// so old behavior is discounted but never fully. A zero t (no recorded
// timestamp) weighs 1.
func Decay(t, now time.Time) float64 {
	if t.IsZero() {
		return 1
	}
	hours := now.Sub(t).Hours()
	if hours < 0 {
		hours = 0
	}
	return 0.5 + math.Pow(0.5, 1+0.2*hours)
}

// Predictor computes prediction scores from an accumulator and a user's
// known ratings. Similarity is derived lazily on every call and never
// cached, so a predictor stays correct while its accumulator grows
// between calls (under the single-writer discipline).
type Predictor struct {
	acc *Accumulator
	idx *Index

	// now is the clock used for decay weighting.
	now func() time.Time
}

// NewPredictor creates a predictor over the given accumulator and item
// index.
func NewPredictor(acc *Accumulator, idx *Index) *Predictor {
	return &Predictor{acc: acc, idx: idx, now: time.Now}
}

// WithClock overrides the clock used for decay weighting. Intended for
// deterministic tests.
func (p *Predictor) WithClock(now func() time.Time) *Predictor {
	p.now = now
	return p
}

// Score predicts the user's affinity for the target item from their
// known ratings. An unknown target item or an empty history yields 0,
// never an error and never NaN. Known items with zero self-similarity
// are skipped rather than aborting the prediction.
func (p *Predictor) Score(mode Mode, targetItem string, history []RatingRecord) float64 {
	ti, ok := p.idx.Get(targetItem)
	if !ok || len(history) == 0 {
		return 0
	}

	selfT := p.acc.Get(ti, ti)
	if selfT <= 0 {
		return 0
	}

	now := p.now()
	var num, den float64

	for _, rec := range history {
		ji, ok := p.idx.Get(rec.ItemID)
		if !ok {
			continue
		}
		selfJ := p.acc.Get(ji, ji)
		if selfJ <= 0 {
			continue
		}
		co := p.acc.Get(ti, ji)
		if co == 0 {
			continue
		}

		sim := co / math.Sqrt(selfT*selfJ)

		switch mode {
		case ModeRank:
			num += rec.Rating * sim * Decay(rec.Timestamp, now)
		case ModeEstimate:
			num += rec.Rating * sim
			den += math.Abs(sim)
		}
	}

	if mode == ModeEstimate {
		if den == 0 {
			return 0
		}
		return num / den
	}
	return num
}

// ScoreAll applies Score across many candidate items for one user,
// returning one entry per candidate in input order. Zero-score entries
// are included, not filtered; callers decide on thresholds.
func (p *Predictor) ScoreAll(mode Mode, candidates []string, history []RatingRecord) []ScoredItem {
	out := make([]ScoredItem, 0, len(candidates))
	for _, id := range candidates {
		out = append(out, ScoredItem{ItemID: id, Score: p.Score(mode, id, history)})
	}
	return out
}
