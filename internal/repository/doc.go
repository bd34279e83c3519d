// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

// Package repository provides storage backends for pairwise scores and
// user rating histories.
//
// Two backends implement cf.Repository:
//
//   - Memory: mutex-guarded maps, no durability. Suitable for tests and
//     single-process deployments that rebuild from a batch pass on boot.
//   - Badger: embedded BadgerDB with per-score update timestamps, which
//     additionally satisfies cf.ChangedScoreFetcher.
//
// BreakerRepository wraps either backend with a circuit breaker on the
// write path so a failing store degrades training persistence instead
// of failing requests.
package repository
