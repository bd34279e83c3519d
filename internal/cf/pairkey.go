// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import (
	"fmt"
	"strings"
)

// PairKeySeparator joins the two item identifiers of a canonical pair
// key. Item identifiers must not contain this character.
const PairKeySeparator = "-"

// PairKey returns the canonical storage key for the unordered item pair
// (a, b): the lexicographically greater-or-equal identifier first,
// joined by PairKeySeparator. PairKey(a, b) == PairKey(b, a) for all
// identifiers.
func PairKey(a, b string) string {
	if a >= b {
		return a + PairKeySeparator + b
	}
	return b + PairKeySeparator + a
}

// SplitPairKey splits a canonical pair key into its two identifiers.
func SplitPairKey(key string) (hi, lo string, err error) {
	i := strings.Index(key, PairKeySeparator)
	if i < 0 {
		return "", "", fmt.Errorf("malformed pair key %q: missing separator", key)
	}
	return key[:i], key[i+len(PairKeySeparator):], nil
}

// EncodeScores encodes the accumulator into its persisted pairwise
// form: one entry per non-zero upper-triangle cell, keyed by the
// canonical pair key. (i,j) and (j,i) are never both emitted.
//
// When knownOnly is true, only pairs whose both sides carry a
// self-similarity cell (a non-zero diagonal entry) are emitted. The
// diagonal entry is what marks an item as recognized by the corpus.
func EncodeScores(acc *Accumulator, idx *Index, knownOnly bool) map[string]float64 {
	out := make(map[string]float64, acc.Len())
	acc.Range(func(i, j int, v float64) bool {
		if v == 0 {
			return true
		}
		if knownOnly && (acc.Get(i, i) == 0 || acc.Get(j, j) == 0) {
			return true
		}
		a, ok := idx.ID(i)
		if !ok {
			return true
		}
		b, ok := idx.ID(j)
		if !ok {
			return true
		}
		out[PairKey(a, b)] = v
		return true
	})
	return out
}

// DecodeScores merges persisted pairwise scores into the accumulator,
// resolving identifiers through idx. Identifiers not yet present in idx
// are assigned fresh indices, growing the mapping, unless knownOnly is
// true, in which case pairs introducing unseen identifiers are silently
// dropped. The knownOnly path lets callers merge a broad score fetch
// without widening the candidate universe beyond items idx already
// recognizes.
//
// Persisted scores are absolute accumulator values, so cells are
// overwritten rather than summed: merging two fetches that overlap
// (e.g. a filtered slice plus the self-similarity slice) stays
// idempotent.
func DecodeScores(scores map[string]float64, idx *Index, acc *Accumulator, knownOnly bool) error {
	for key, v := range scores {
		hi, lo, err := SplitPairKey(key)
		if err != nil {
			return err
		}

		if knownOnly {
			i, ok := idx.Get(hi)
			if !ok {
				continue
			}
			j, ok := idx.Get(lo)
			if !ok {
				continue
			}
			acc.Set(i, j, v)
			continue
		}

		acc.Set(idx.GetOrAdd(hi), idx.GetOrAdd(lo), v)
	}
	return nil
}
