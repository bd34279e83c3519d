// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/itemwise/internal/cf"
	"github.com/tomtom215/itemwise/internal/metrics"
)

// Config tunes event batching.
type Config struct {
	// BatchSize flushes a training pass once this many events are
	// buffered.
	BatchSize int

	// FlushInterval flushes buffered events at least this often.
	FlushInterval time.Duration

	// MaxHistory caps per-user histories written during a batch
	// rebuild.
	MaxHistory int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		MaxHistory:    50,
	}
}

// Service consumes rating events and feeds them to the incremental
// trainer. It is the single writer of the live accumulator; ranking
// reads go through the repository instead, so no reader ever touches
// the maps this service mutates.
type Service struct {
	cfg     Config
	sub     message.Subscriber
	repo    cf.Repository
	trainer *cf.IncrementalTrainer
	logger  zerolog.Logger

	mu    sync.Mutex
	items *cf.Index
	acc   *cf.Accumulator
}

var _ suture.Service = (*Service)(nil)

// NewService creates the training service. Zero config fields fall
// back to defaults.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewService(cfg Config, sub message.Subscriber, repo cf.Repository, trainer *cf.IncrementalTrainer, logger zerolog.Logger) *Service {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = def.MaxHistory
	}
	return &Service{
		cfg:     cfg,
		sub:     sub,
		repo:    repo,
		trainer: trainer,
		logger:  logger.With().Str("component", "ingest").Logger(),
		items:   cf.NewIndex(),
		acc:     cf.NewAccumulator(),
	}
}

// Warm loads the persisted scores into the live accumulator. Called
// once at startup, before Serve.
func (s *Service) Warm(ctx context.Context) error {
	scores, err := s.repo.FetchAllScores(ctx)
	if err != nil {
		return fmt.Errorf("warm from store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := cf.DecodeScores(scores, s.items, s.acc, false); err != nil {
		return fmt.Errorf("decode persisted scores: %w", err)
	}
	s.logger.Info().
		Int("scores", len(scores)).
		Int("items", s.items.Len()).
		Msg("accumulator warmed from store")
	return nil
}

// ItemCount reports how many items the live model knows.
func (s *Service) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

// Serve consumes the ratings topic until the context is canceled,
// satisfying suture.Service. Malformed events are acked and counted,
// never redelivered.
func (s *Service) Serve(ctx context.Context) error {
	messages, err := s.sub.Subscribe(ctx, RatingsTopic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", RatingsTopic, err)
	}
	s.logger.Info().
		Int("batch_size", s.cfg.BatchSize).
		Dur("flush_interval", s.cfg.FlushInterval).
		Msg("ingest service started")

	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	buf := make([]RatingEvent, 0, s.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			// Shutdown flush runs on a fresh context so buffered events
			// still reach the model.
			s.flush(context.Background(), buf)
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				s.flush(context.Background(), buf)
				return nil
			}
			event, err := UnmarshalRatingEvent(msg.Payload)
			msg.Ack()
			if err != nil {
				metrics.IngestEvents.WithLabelValues("malformed").Inc()
				s.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed rating event")
				continue
			}
			metrics.IngestEvents.WithLabelValues("ok").Inc()

			buf = append(buf, event)
			if len(buf) >= s.cfg.BatchSize {
				s.flush(ctx, buf)
				buf = buf[:0]
			}

		case <-ticker.C:
			if len(buf) > 0 {
				s.flush(ctx, buf)
				buf = buf[:0]
			}
		}
	}
}

// flush merges buffered events into the live model. A failed training
// pass drops the batch; the events were acked and the pipeline carries
// no redelivery.
func (s *Service) flush(ctx context.Context, events []RatingEvent) {
	if len(events) == 0 {
		return
	}

	batch := make(cf.RatingBatch)
	for _, event := range events {
		batch[event.UserID] = append(batch[event.UserID], event.Record())
	}
	metrics.IngestBatchSize.Observe(float64(len(events)))

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.trainer.Train(ctx, batch, s.acc, s.items)
	metrics.TrainingDuration.WithLabelValues("incremental").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error().Err(err).Int("events", len(events)).Msg("incremental training pass failed, batch dropped")
		return
	}
	metrics.TrainingRatings.WithLabelValues("incremental").Add(float64(len(events)))

	s.logger.Debug().
		Int("events", len(events)).
		Int("users", len(batch)).
		Int("items", s.items.Len()).
		Msg("incremental training pass merged")
}

// Rebuild replaces the live model and the persisted scores with a full
// batch pass over the dataset. Unlike incremental persistence this is
// an explicit operator action, so storage failures surface to the
// caller.
func (s *Service) Rebuild(ctx context.Context, ds *cf.Dataset) (*cf.BatchStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := cf.NewIndex()
	acc := cf.NewAccumulator()

	start := time.Now()
	stats, err := cf.NewBatchTrainer(nil).Train(ctx, ds, items, acc)
	metrics.TrainingDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("batch training: %w", err)
	}

	// Training runs before the store is touched, and the evict-and-
	// persist swap runs detached from the caller's context: a dropped
	// request must not leave the store truncated with no replacement.
	storeCtx := context.WithoutCancel(ctx)
	if err := s.repo.Evict(storeCtx, cf.EvictionStrategy{Kind: cf.EvictAll}); err != nil {
		return nil, fmt.Errorf("evict stored scores: %w", err)
	}
	// The store was truncated above, so saving the full encoding as
	// deltas writes exact totals.
	if err := s.repo.SaveScoreDeltas(storeCtx, cf.EncodeScores(acc, items, false)); err != nil {
		return nil, fmt.Errorf("persist rebuilt scores: %w", err)
	}
	if err := s.repo.SaveUserHistories(storeCtx, cf.HistoriesFromDataset(ds, s.cfg.MaxHistory)); err != nil {
		return nil, fmt.Errorf("persist rebuilt histories: %w", err)
	}

	s.items = items
	s.acc = acc
	metrics.TrainingRatings.WithLabelValues("batch").Add(float64(stats.RatingCount))

	s.logger.Info().
		Int("users", stats.UserCount).
		Int("items", stats.ItemCount).
		Int("ratings", stats.RatingCount).
		Msg("model rebuilt from dataset")
	return stats, nil
}
