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

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Relay/internal/adapters/http"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/logging"
	"github.com/dkeye/Relay/internal/store"
	"github.com/dkeye/Relay/internal/store/pgstore"
	"github.com/dkeye/Relay/internal/store/sqlstore"
	"github.com/dkeye/Relay/internal/store/unread"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("relay exited with error")
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// console logger until the config says otherwise
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	action, err := app.ParseBackpressure(cfg.Chat.Backpressure)
	if err != nil {
		return err
	}
	ordering, err := orch.ParseOrdering(cfg.Chat.Ordering)
	if err != nil {
		return err
	}

	o := orch.New(
		app.NewRegistry(),
		app.NewRoomManager(),
		app.StaticPolicy{Action: action},
		st,
		app.NewRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateInterval),
		orch.Options{
			Ordering:        ordering,
			PersistTimeout:  cfg.Chat.PersistTimeout,
			MaxTextLen:      cfg.Chat.MaxTextLen,
			IncludeReadFlag: cfg.Chat.IncludeReadFlag,
			Workers:         cfg.Chat.Workers,
		},
	)

	g, gctx := errgroup.WithContext(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(gctx, cfg, o, st),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		return o.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = pgstore.Open(ctx, cfg.Store.DSN)
	default:
		st, err = sqlstore.Open(cfg.Store.DSN)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	log.Info().Str("module", "store").Str("driver", cfg.Store.Driver).Msg("store ready")

	if cfg.Redis.Addr == "" {
		return st, nil
	}
	client, err := unread.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	log.Info().Str("module", "store").Str("redis", cfg.Redis.Addr).Msg("unread counters enabled")
	return unread.New(st, client, "", 0), nil
}
