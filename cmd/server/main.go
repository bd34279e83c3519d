// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

// Command server runs the Itemwise recommendation service: the HTTP
// API, the rating ingest pipeline, and the storage layer, under one
// supervisor tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dgraph-io/badger/v4"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/itemwise/internal/api"
	"github.com/tomtom215/itemwise/internal/cf"
	"github.com/tomtom215/itemwise/internal/config"
	"github.com/tomtom215/itemwise/internal/ingest"
	"github.com/tomtom215/itemwise/internal/logging"
	"github.com/tomtom215/itemwise/internal/ranking"
	"github.com/tomtom215/itemwise/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration error")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("backend", cfg.Storage.Backend).
		Int("port", cfg.Server.Port).
		Msg("starting itemwise")

	repo, cleanup, err := openRepository(cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open storage")
	}
	defer cleanup()

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(cfg.Ingest.BufferSize),
	}, watermill.NewSlogLogger(logging.NewSlogLogger()))
	defer pubsub.Close()

	trainerLogger := logging.With().Str("component", "trainer").Logger()
	trainer := cf.NewIncrementalTrainer(cf.TrainerConfig{
		MaxHistory:         cfg.Trainer.MaxHistory,
		SkipHistoryPersist: cfg.Trainer.SkipHistoryPersist,
		SkipScorePersist:   cfg.Trainer.SkipScorePersist,
	}, repo, trainerLogger)

	trainSvc := ingest.NewService(ingest.Config{
		BatchSize:     cfg.Ingest.BatchSize,
		FlushInterval: cfg.Ingest.FlushInterval,
		MaxHistory:    cfg.Trainer.MaxHistory,
	}, pubsub, repo, trainer, logging.Logger())

	warmCtx, warmCancel := context.WithTimeout(context.Background(), time.Minute)
	err = trainSvc.Warm(warmCtx)
	warmCancel()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to warm model from storage")
	}

	ranker := ranking.NewService(repo, logging.Logger())
	handler := api.NewHandler(ranker, ingest.NewPublisher(pubsub), trainSvc, cfg.Ranking)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Routes(handler, cfg.Server),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	hook := (&sutureslog.Handler{Logger: logging.NewSlogLogger()}).MustHook()
	root := suture.New("itemwise", suture.Spec{
		EventHook:      hook,
		FailureBackoff: 15 * time.Second,
		Timeout:        10 * time.Second,
	})
	root.Add(trainSvc)
	root.Add(&httpService{server: server})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	if err := root.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor exited with error")
	}
	logging.Info().Msg("itemwise stopped")
}

// openRepository builds the configured storage backend, optionally
// wrapped with the write-path circuit breaker.
func openRepository(cfg config.StorageConfig) (cf.Repository, func(), error) {
	var (
		repo    cf.Repository
		cleanup = func() {}
	)

	switch cfg.Backend {
	case "memory":
		repo = repository.NewMemoryRepository()
	case "badger":
		opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger at %s: %w", cfg.Path, err)
		}
		repo = repository.NewBadgerRepository(db)
		cleanup = func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("failed to close badger")
			}
		}
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.BreakerEnabled {
		repo = repository.NewBreakerRepository(repo, cfg.Backend+"-store")
	}
	return repo, cleanup, nil
}

// httpService adapts http.Server to suture.Service.
type httpService struct {
	server *http.Server
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.ListenAndServe()
	}()
	logging.Info().Str("addr", s.server.Addr).Msg("http server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return ctx.Err()
	}
}
