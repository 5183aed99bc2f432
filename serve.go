package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manru/manru-be/internal/api"
	"github.com/manru/manru-be/internal/auth"
	"github.com/manru/manru-be/internal/config"
	"github.com/manru/manru-be/internal/database"
	"github.com/manru/manru-be/internal/metrics"
	"github.com/manru/manru-be/internal/monitoring"
	"github.com/manru/manru-be/internal/services"
	"github.com/manru/manru-be/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg())
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openServerDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, cfg.DatabaseDriver); err != nil {
		return oops.Code("MIGRATION_FAILED").With("driver", cfg.DatabaseDriver).Wrap(err)
	}

	if cfg.UsesDevSecret() {
		log.Warn().Msg("JWT_SECRET is not set, signing tokens with the development key")
	}

	// Set up services
	st := store.New(db, database.Dialect(cfg.DatabaseDriver))
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	eventService := services.NewEventService(st)
	authService := services.NewAuthService(st, auth.NewBcryptHasher(cfg.BcryptCost), tokens, eventService)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.RegisterMetrics(reg)

	statUpdater := monitoring.NewStatUpdater(db, 0)
	scheduler := monitoring.NewScheduler(time.Minute)
	if err := scheduler.Add("prune-events", cfg.EventPruneSchedule, monitoring.PruneEventsJob(eventService, cfg.EventRetention)); err != nil {
		return err
	}

	router := api.NewRouter(
		cfg.AllowedOrigins,
		tokens,
		authService,
		eventService,
		statUpdater,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return statUpdater.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		log.Info().Int("port", cfg.ServerPort).Str("driver", cfg.DatabaseDriver).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("SERVER_FAILED").With("addr", srv.Addr).Wrap(err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		statUpdater.Stop()
		scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return err
	}
	log.Info().Msg("Server exiting")
	return nil
}

func openServerDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := cfg.DatabasePath
	if cfg.DatabaseDriver == config.DriverPostgres {
		dsn = cfg.DatabaseURL
	}
	db, err := database.New(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("driver", cfg.DatabaseDriver).Wrap(err)
	}
	return db, nil
}
