// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/itemwise/internal/cf"
	"github.com/tomtom215/itemwise/internal/metrics"
)

// Key prefixes for BadgerDB storage
const (
	scoreKeyPrefix     = "score:"
	scoreTimeKeyPrefix = "scorets:"
	historyKeyPrefix   = "history:"
)

// deltaChunkSize bounds the number of keys touched per write
// transaction so large training batches stay under Badger's
// transaction size limit.
const deltaChunkSize = 1000

// BadgerRepository implements cf.Repository on an embedded BadgerDB.
// Each pairwise score carries a last-updated timestamp, so the backend
// also satisfies cf.ChangedScoreFetcher and supports time-window
// eviction.
type BadgerRepository struct {
	db  *badger.DB
	now func() time.Time
}

var (
	_ cf.Repository          = (*BadgerRepository)(nil)
	_ cf.ChangedScoreFetcher = (*BadgerRepository)(nil)
)

// NewBadgerRepository creates a repository on an already-open database.
// The caller owns the database lifecycle.
func NewBadgerRepository(db *badger.DB) *BadgerRepository {
	return &BadgerRepository{db: db, now: time.Now}
}

// WithClock replaces the wall clock used for score update timestamps.
// Tests use this to make changed-since queries deterministic.
func (r *BadgerRepository) WithClock(now func() time.Time) *BadgerRepository {
	r.now = now
	return r
}

func encodeScore(value float64) []byte {
	return []byte(strconv.FormatFloat(value, 'g', -1, 64))
}

func decodeScore(raw []byte) (float64, error) {
	value, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", raw, err)
	}
	return value, nil
}

// FetchAllScores returns every persisted pairwise score.
func (r *BadgerRepository) FetchAllScores(ctx context.Context) (map[string]float64, error) {
	out := make(map[string]float64)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(scoreKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			pairKey := string(item.Key()[len(prefix):])
			err := item.Value(func(val []byte) error {
				value, err := decodeScore(val)
				if err != nil {
					return err
				}
				out[pairKey] = value
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	metrics.RecordRepositoryOp("fetch_all_scores", err)
	if err != nil {
		return nil, fmt.Errorf("fetch all scores: %w", err)
	}
	return out, nil
}

// FetchScoresTouching returns scores where either side of the pair is
// in itemIDs. Keys are iterated rather than point-fetched because pair
// keys touching an item are not a contiguous key range.
func (r *BadgerRepository) FetchScoresTouching(ctx context.Context, itemIDs map[string]struct{}) (map[string]float64, error) {
	out := make(map[string]float64)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(scoreKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			pairKey := string(item.Key()[len(prefix):])
			hi, lo, err := cf.SplitPairKey(pairKey)
			if err != nil {
				return fmt.Errorf("corrupt score key %q: %w", pairKey, err)
			}
			_, hitHi := itemIDs[hi]
			_, hitLo := itemIDs[lo]
			if !hitHi && !hitLo {
				continue
			}
			err = item.Value(func(val []byte) error {
				value, err := decodeScore(val)
				if err != nil {
					return err
				}
				out[pairKey] = value
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	metrics.RecordRepositoryOp("fetch_scores_touching", err)
	if err != nil {
		return nil, fmt.Errorf("fetch scores touching: %w", err)
	}
	return out, nil
}

// FetchSelfScores returns the diagonal scores.
func (r *BadgerRepository) FetchSelfScores(ctx context.Context) (map[string]float64, error) {
	out := make(map[string]float64)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(scoreKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			pairKey := string(item.Key()[len(prefix):])
			hi, lo, err := cf.SplitPairKey(pairKey)
			if err != nil {
				return fmt.Errorf("corrupt score key %q: %w", pairKey, err)
			}
			if hi != lo {
				continue
			}
			err = item.Value(func(val []byte) error {
				value, err := decodeScore(val)
				if err != nil {
					return err
				}
				out[pairKey] = value
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	metrics.RecordRepositoryOp("fetch_self_scores", err)
	if err != nil {
		return nil, fmt.Errorf("fetch self scores: %w", err)
	}
	return out, nil
}

// FetchScoresChangedSince returns scores last updated at or after the
// given instant.
func (r *BadgerRepository) FetchScoresChangedSince(ctx context.Context, since time.Time) (map[string]float64, error) {
	out := make(map[string]float64)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(scoreTimeKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			pairKey := string(item.Key()[len(prefix):])

			var updated int64
			err := item.Value(func(val []byte) error {
				parsed, err := strconv.ParseInt(string(val), 10, 64)
				if err != nil {
					return fmt.Errorf("parse score timestamp %q: %w", val, err)
				}
				updated = parsed
				return nil
			})
			if err != nil {
				return err
			}
			if updated < since.Unix() {
				continue
			}

			scoreItem, err := txn.Get([]byte(scoreKeyPrefix + pairKey))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			err = scoreItem.Value(func(val []byte) error {
				value, err := decodeScore(val)
				if err != nil {
					return err
				}
				out[pairKey] = value
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	metrics.RecordRepositoryOp("fetch_scores_changed_since", err)
	if err != nil {
		return nil, fmt.Errorf("fetch scores changed since: %w", err)
	}
	return out, nil
}

// FetchUserHistory returns the persisted rating history for one user,
// or an empty list when none is stored.
func (r *BadgerRepository) FetchUserHistory(ctx context.Context, userID string) ([]cf.RatingRecord, error) {
	var history []cf.RatingRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(historyKeyPrefix + userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			history = []cf.RatingRecord{}
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := cf.DecodeHistory(string(val))
			if err != nil {
				return err
			}
			history = decoded
			return nil
		})
	})
	metrics.RecordRepositoryOp("fetch_user_history", err)
	if err != nil {
		return nil, fmt.Errorf("fetch user history: %w", err)
	}
	return history, nil
}

// SaveUserHistories persists histories in the compact wire form,
// replacing any existing history per user.
func (r *BadgerRepository) SaveUserHistories(ctx context.Context, histories map[string][]cf.RatingRecord) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		for userID, history := range histories {
			key := []byte(historyKeyPrefix + userID)
			if err := txn.Set(key, []byte(cf.EncodeHistory(history))); err != nil {
				return fmt.Errorf("set history for %s: %w", userID, err)
			}
		}
		return nil
	})
	metrics.RecordRepositoryOp("save_user_histories", err)
	if err != nil {
		return fmt.Errorf("save user histories: %w", err)
	}
	return nil
}

// SaveScoreDeltas sums the deltas into the stored scores with a
// read-sum-write per key, stamping each touched score with the current
// time. Large batches are split across transactions.
func (r *BadgerRepository) SaveScoreDeltas(ctx context.Context, deltas map[string]float64) error {
	keys := make([]string, 0, len(deltas))
	for key := range deltas {
		keys = append(keys, key)
	}
	stamp := []byte(strconv.FormatInt(r.now().Unix(), 10))

	var err error
	for start := 0; start < len(keys); start += deltaChunkSize {
		end := start + deltaChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		err = r.db.Update(func(txn *badger.Txn) error {
			for _, pairKey := range chunk {
				scoreKey := []byte(scoreKeyPrefix + pairKey)

				current := 0.0
				item, err := txn.Get(scoreKey)
				if err == nil {
					err = item.Value(func(val []byte) error {
						parsed, err := decodeScore(val)
						if err != nil {
							return err
						}
						current = parsed
						return nil
					})
					if err != nil {
						return err
					}
				} else if !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}

				if err := txn.Set(scoreKey, encodeScore(current+deltas[pairKey])); err != nil {
					return fmt.Errorf("set score %s: %w", pairKey, err)
				}
				if err := txn.Set([]byte(scoreTimeKeyPrefix+pairKey), stamp); err != nil {
					return fmt.Errorf("set score timestamp %s: %w", pairKey, err)
				}
			}
			return nil
		})
		if err != nil {
			break
		}
	}
	metrics.RecordRepositoryOp("save_score_deltas", err)
	if err != nil {
		return fmt.Errorf("save score deltas: %w", err)
	}
	return nil
}

// Evict removes persisted scores per the strategy.
func (r *BadgerRepository) Evict(ctx context.Context, strategy cf.EvictionStrategy) error {
	var err error
	switch strategy.Kind {
	case cf.EvictAll:
		err = r.db.DropPrefix([]byte(scoreKeyPrefix), []byte(scoreTimeKeyPrefix))
	case cf.EvictItems:
		err = r.evictItems(strategy.ItemIDs)
	case cf.EvictTimeWindow:
		err = r.evictTimeWindow(strategy)
	default:
		err = fmt.Errorf("evict kind %d: %w", strategy.Kind, cf.ErrUnsupported)
	}
	metrics.RecordRepositoryOp("evict", err)
	if err != nil {
		return fmt.Errorf("evict %s: %w", strategy.Kind, err)
	}
	return nil
}

func (r *BadgerRepository) evictItems(itemIDs []string) error {
	targets := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		targets[id] = struct{}{}
	}

	var doomed []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(scoreKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			pairKey := string(it.Item().Key()[len(prefix):])
			hi, lo, err := cf.SplitPairKey(pairKey)
			if err != nil {
				return fmt.Errorf("corrupt score key %q: %w", pairKey, err)
			}
			_, hitHi := targets[hi]
			_, hitLo := targets[lo]
			if hitHi || hitLo {
				doomed = append(doomed, pairKey)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.deletePairKeys(doomed)
}

func (r *BadgerRepository) evictTimeWindow(strategy cf.EvictionStrategy) error {
	var doomed []string
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(scoreTimeKeyPrefix)
		scanned := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if strategy.Size > 0 && scanned >= strategy.Size {
				break
			}
			scanned++

			item := it.Item()
			pairKey := string(item.Key()[len(prefix):])
			var updated int64
			err := item.Value(func(val []byte) error {
				parsed, err := strconv.ParseInt(string(val), 10, 64)
				if err != nil {
					return fmt.Errorf("parse score timestamp %q: %w", val, err)
				}
				updated = parsed
				return nil
			})
			if err != nil {
				return err
			}

			at := time.Unix(updated, 0)
			if at.Before(strategy.Begin) || !at.Before(strategy.End) {
				continue
			}
			doomed = append(doomed, pairKey)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.deletePairKeys(doomed)
}

func (r *BadgerRepository) deletePairKeys(pairKeys []string) error {
	for start := 0; start < len(pairKeys); start += deltaChunkSize {
		end := start + deltaChunkSize
		if end > len(pairKeys) {
			end = len(pairKeys)
		}
		chunk := pairKeys[start:end]

		err := r.db.Update(func(txn *badger.Txn) error {
			for _, pairKey := range chunk {
				if err := txn.Delete([]byte(scoreKeyPrefix + pairKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
				if err := txn.Delete([]byte(scoreTimeKeyPrefix + pairKey)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
