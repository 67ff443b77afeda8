package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/class-reservation/internal/cache"
	"github.com/iliyamo/class-reservation/internal/config"
	"github.com/iliyamo/class-reservation/internal/database"
	"github.com/iliyamo/class-reservation/internal/logger"
	"github.com/iliyamo/class-reservation/internal/queue"
	"github.com/iliyamo/class-reservation/internal/repository"
	"github.com/iliyamo/class-reservation/internal/router"
	"github.com/iliyamo/class-reservation/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "class-reservation",
		Short:         "Class session reservation API",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          runServe,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (default)",
		RunE:  runServe,
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(func(cfg config.Config) error {
				db, err := database.OpenForMigrations(cfg.DB)
				if err != nil {
					return pkgerrors.Wrap(err, "open database")
				}
				defer db.Close()
				if err := database.RunMigrations(db); err != nil {
					return err
				}
				log.Info().Msg("migrations applied")
				return nil
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrationDB(func(cfg config.Config) error {
				db, err := database.OpenForMigrations(cfg.DB)
				if err != nil {
					return pkgerrors.Wrap(err, "open database")
				}
				defer db.Close()
				if err := database.RollbackMigrations(db, steps); err != nil {
					return err
				}
				log.Info().Int("steps", steps).Msg("migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)
	return cmd
}

func withMigrationDB(fn func(config.Config) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.Env, cfg.LogLevel)
	return fn(cfg)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.Env, cfg.LogLevel)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return pkgerrors.Wrap(err, "open database")
	}
	defer db.Close()

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.Warn().Str("addr", cfg.Redis.Addr).Msg("redis unavailable; rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var events service.EventPublisher
	if cfg.Events.Enabled {
		events = queue.NewPublisher(cfg.Events.URL)
		go func() {
			if err := queue.StartReservationConsumer(ctx, cfg.Events.URL, cfg.Events.LogDir); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("reservation consumer stopped")
			}
		}()
	}

	svc := service.NewReservationService(repository.NewSQLStore(db), events, cfg.Reservation)
	summaries := cache.NewSummaryCache(cfg.Cache, rdb)
	if summaries != nil {
		svc.WithSummaryCache(summaries)
	}
	e := router.New(router.Deps{
		Reservations: svc,
		DB:           db,
		Redis:        rdb,
		Summaries:    summaries,
		JWTSecret:    cfg.JWTSecret,
		RateLimit:    cfg.RateLimit,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
