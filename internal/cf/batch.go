// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import (
	"context"
	"time"
)

// Dataset is a full offline rating dataset: a sparse user-by-item
// rating matrix with an optional parallel timestamp matrix.
type Dataset struct {
	// Ratings maps user id to item id to rating.
	Ratings map[string]map[string]float64

	// Times maps user id to item id to observation time. Optional;
	// missing entries mean no timestamp was recorded.
	Times map[string]map[string]time.Time
}

// Time returns the recorded timestamp for (userID, itemID), zero if
// none was recorded.
func (d *Dataset) Time(userID, itemID string) time.Time {
	if d.Times == nil {
		return time.Time{}
	}
	return d.Times[userID][itemID]
}

// BatchStats carries the per-item and corpus-wide statistics of a batch
// build, used as fallback predictions.
type BatchStats struct {
	// ItemMeans is the mean rating per item id. Items in the index
	// without any rating carry the global mean.
	ItemMeans map[string]float64

	// GlobalMean is the corpus-wide mean rating.
	GlobalMean float64

	// UserCount, ItemCount and RatingCount describe the dataset.
	UserCount   int
	ItemCount   int
	RatingCount int
}

// CoOccurrenceBuilder computes the raw co-occurrence sums of a full
// dataset into the accumulator:
//
//	acc[i][j] += sum over users of rating(u,i)*rating(u,j), i <= j
//
// The builder is supplied externally so alternative pair weightings can
// be swapped in without touching the trainer.
type CoOccurrenceBuilder func(ds *Dataset, items *Index, acc *Accumulator)

// DefaultCoOccurrence is the plain rating-product co-occurrence
// builder.
func DefaultCoOccurrence(ds *Dataset, items *Index, acc *Accumulator) {
	for _, itemRatings := range ds.Ratings {
		idxs := make([]int, 0, len(itemRatings))
		vals := make([]float64, 0, len(itemRatings))
		for itemID, r := range itemRatings {
			idxs = append(idxs, items.GetOrAdd(itemID))
			vals = append(vals, r)
		}
		for a := 0; a < len(idxs); a++ {
			for b := a; b < len(idxs); b++ {
				acc.Add(idxs[a], idxs[b], vals[a]*vals[b])
			}
		}
	}
}

// BatchTrainer rebuilds the accumulator and rating statistics from a
// full offline dataset. It always starts from the state the caller
// hands it; for a clean rebuild pass an empty accumulator and index.
// No conflict handling is needed on this path.
type BatchTrainer struct {
	builder CoOccurrenceBuilder
}

// NewBatchTrainer creates a batch trainer with the given co-occurrence
// builder, defaulting to DefaultCoOccurrence when nil.
func NewBatchTrainer(builder CoOccurrenceBuilder) *BatchTrainer {
	if builder == nil {
		builder = DefaultCoOccurrence
	}
	return &BatchTrainer{builder: builder}
}

// Train computes the accumulator, per-item means (global mean fallback)
// and the global mean from the dataset.
func (b *BatchTrainer) Train(ctx context.Context, ds *Dataset, items *Index, acc *Accumulator) (*BatchStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.builder(ds, items, acc)

	sums := make(map[string]float64)
	counts := make(map[string]int)
	var total float64
	var n int

	for _, itemRatings := range ds.Ratings {
		for itemID, r := range itemRatings {
			sums[itemID] += r
			counts[itemID]++
			total += r
			n++
		}
	}

	var globalMean float64
	if n > 0 {
		globalMean = total / float64(n)
	}

	means := make(map[string]float64, items.Len())
	for _, itemID := range items.IDs() {
		if c := counts[itemID]; c > 0 {
			means[itemID] = sums[itemID] / float64(c)
		} else {
			means[itemID] = globalMean
		}
	}

	return &BatchStats{
		ItemMeans:   means,
		GlobalMean:  globalMean,
		UserCount:   len(ds.Ratings),
		ItemCount:   items.Len(),
		RatingCount: n,
	}, nil
}

// HistoriesFromDataset converts a dataset into per-user rating records,
// suitable for bulk history persistence after an offline rebuild.
// Records per user are capped like incremental training caps them.
func HistoriesFromDataset(ds *Dataset, maxHistory int) map[string][]RatingRecord {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	out := make(map[string][]RatingRecord, len(ds.Ratings))
	for userID, itemRatings := range ds.Ratings {
		records := make([]RatingRecord, 0, len(itemRatings))
		for itemID, r := range itemRatings {
			records = append(records, RatingRecord{
				ItemID:    itemID,
				Rating:    r,
				Timestamp: ds.Time(userID, itemID),
			})
		}
		out[userID] = capHistory(records, maxHistory)
	}
	return out
}
