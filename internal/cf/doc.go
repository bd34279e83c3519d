// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

// Package cf implements the item-based collaborative filtering core:
// the symmetric co-occurrence accumulator, its pairwise persistence
// codec, the incremental and batch trainers, and the prediction
// function built on lazily computed cosine similarity.
//
// # Model
//
// The raw substrate is a symmetric sparse matrix M where
//
//	M[i][j] = sum over users u of rating(u,i) * rating(u,j)
//
// for every unordered pair of items (i,j) a user has rated, including
// i == j. Similarity between two items is computed lazily from M:
//
//	sim(i,j) = M[i][j] / sqrt(M[i][i] * M[j][j])
//
// Nothing is cached, so similarity stays correct as the accumulator
// keeps growing under incremental training.
//
// # Incremental training
//
// IncrementalTrainer merges freshly observed rating batches into the
// accumulator without rescanning historical data. When a user re-rates
// an item the trainer applies an algebraic correction so that the
// accumulator equals what a from-scratch batch build over the corrected
// ratings would produce. See incremental.go for the delta identities.
//
// # Concurrency
//
// The core is a pure computation over in-memory structures. The
// accumulator follows a single-writer, many-readers discipline: one
// training pass completes before predictions read the updated
// structure. Callers must serialize writers per accumulator instance.
package cf
