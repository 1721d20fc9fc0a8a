package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logging"
	"github.com/hackgods/doctor-appointment-scheduling/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "reconcile-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("reconcile worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.DefaultPoolOptions("reconcile-worker"))
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	creds, err := cfg.CalendarCredentials()
	if err != nil {
		logger.Fatal().Err(err).Msg("could not read calendar credentials")
	}
	cal := calendar.FromCredentials(rootCtx, creds, calendar.GoogleOptions{
		Location: cfg.Location(),
		Timeout:  cfg.CalendarTimeout,
		Logger:   logger,
	})
	if !cal.Available() {
		logger.Fatal().Msg("calendar is not configured, nothing to reconcile against")
	}

	svc := appointment.NewService(appointment.Deps{
		Repo:     appointment.NewPgRepository(pgPool),
		Calendar: cal,
		Metrics:  metrics.NewSchedulingMetrics(nil),
		Logger:   logger,
	}, appointment.Options{
		Location: cfg.Location(),
	})

	// Run once at startup
	runOnce(rootCtx, logger, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, svc)
		}
	}
}

func runOnce(ctx context.Context, logger zerolog.Logger, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	res, err := svc.ReconcileCalendarEvents(runCtx)
	ev := logger.Info()
	if err != nil {
		ev = logger.Error().Err(err)
		if errors.Is(err, appointment.ErrConfiguration) || errors.Is(err, calendar.ErrCircuitOpen) {
			ev = logger.Warn().Err(err)
		}
	}
	ev.Int("scanned", res.Scanned).
		Int("linked", res.Linked).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("reconcile run complete")
}
