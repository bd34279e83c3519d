// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

// Index is an append-only bidirectional mapping between string
// identifiers and dense non-negative integer indices. An identifier is
// assigned the next available index the first time it is seen; the
// mapping never shrinks.
//
// Item and user identifiers get independent Index instances.
//
// Index is not safe for concurrent mutation; it follows the same
// single-writer discipline as the accumulator it dimensions.
type Index struct {
	byID map[string]int
	ids  []string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{byID: make(map[string]int)}
}

// Get returns the index assigned to id, if any.
func (x *Index) Get(id string) (int, bool) {
	i, ok := x.byID[id]
	return i, ok
}

// GetOrAdd returns the index assigned to id, assigning the next
// available index if id has not been seen before.
func (x *Index) GetOrAdd(id string) int {
	if i, ok := x.byID[id]; ok {
		return i
	}
	i := len(x.ids)
	x.byID[id] = i
	x.ids = append(x.ids, id)
	return i
}

// ID returns the identifier assigned to index i.
func (x *Index) ID(i int) (string, bool) {
	if i < 0 || i >= len(x.ids) {
		return "", false
	}
	return x.ids[i], true
}

// Len returns the number of assigned indices.
func (x *Index) Len() int {
	return len(x.ids)
}

// IDs returns all assigned identifiers in index order. The returned
// slice is shared; callers must not modify it.
func (x *Index) IDs() []string {
	return x.ids
}
