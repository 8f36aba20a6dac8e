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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Gather/internal/adapters/http"
	"github.com/dkeye/Gather/internal/app/index"
	"github.com/dkeye/Gather/internal/app/lifecycle"
	"github.com/dkeye/Gather/internal/app/match"
	"github.com/dkeye/Gather/internal/app/notify"
	"github.com/dkeye/Gather/internal/app/orch"
	"github.com/dkeye/Gather/internal/config"
	"github.com/dkeye/Gather/internal/domain"
	"github.com/dkeye/Gather/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	store := storage.NewMemoryStore()
	classes := make(map[domain.ServiceClass]int, len(cfg.ServiceClasses))
	for name, perSecond := range cfg.ServiceClasses {
		classes[domain.ServiceClass(name)] = perSecond
	}
	quota := lifecycle.NewQuota(classes, time.Second)
	idx := index.New()
	searches := index.NewSearches(cfg.Matchmaking.SearchContextTTL)
	hub := notify.NewHub()
	dispatcher := notify.NewDispatcher(notify.Options{
		Workers:        cfg.Notify.Workers,
		QueueSize:      cfg.Notify.QueueSize,
		MaxAttempts:    cfg.Notify.MaxAttempts,
		InitialBackoff: cfg.Notify.InitialBackoff,
		MaxBackoff:     cfg.Notify.MaxBackoff,
		Timeout:        cfg.Notify.Timeout,
	}, nil)

	// the index drops closed gatherings before anyone else hears of them
	ctl := lifecycle.NewController(store, store, notify.Fanout{idx, hub, dispatcher}, quota)
	rooms := match.NewRoom(ctl, store)
	strategies := match.NewSet(
		match.NewAnybody(ctl, store, cfg.Matchmaking.AnybodyAttempts),
		match.NewCustomAuto(ctl, store, idx, searches, match.ScanLimits{
			Budget: cfg.Matchmaking.ScanBudget,
			Batch:  cfg.Matchmaking.ScanBatch,
		}),
		match.NewPasscode(ctl, store, match.NewAllocator(3, 5), cfg.Matchmaking.PasscodeAttempts),
		rooms,
	)

	o := &orch.Orchestrator{
		Definitions: store,
		Gatherings:  store,
		Lifecycle:   ctl,
		Strategies:  strategies,
		Rooms:       rooms,
		Index:       idx,
		Quota:       quota,
		Policy:      orch.DeletePolicy(cfg.Matchmaking.DeletePolicy),
		Paging: orch.Paging{
			Default: cfg.Matchmaking.DefaultPageSize,
			Max:     cfg.Matchmaking.MaxPageSize,
		},
	}

	r := router.SetupRouter(ctx, cfg, o, hub, nil)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		searches.Run(gctx, max(cfg.Matchmaking.SearchContextTTL/2, time.Second))
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Gather server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().
		Int64("callbacks_delivered", dispatcher.Delivered()).
		Int64("callbacks_dropped", dispatcher.Dropped()).
		Msg("Server exited gracefully")
}
