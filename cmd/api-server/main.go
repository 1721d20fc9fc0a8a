package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/api"
	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/calendar"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logging"
	"github.com/hackgods/doctor-appointment-scheduling/internal/metrics"
	"github.com/hackgods/doctor-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "api-server").Logger()
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("time_zone", cfg.TimeZone).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	opts := db.DefaultPoolOptions("api-server")
	opts.MaxConns = 20
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, opts)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis. Bookings fall back to the unique index when it is down.
	var locker redisclient.Locker = redisclient.NoopLocker{}
	redisCheck := func(context.Context) error { return errors.New("redis not connected") }
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, booking without slot locks")
	} else {
		defer closeRedis(logger, rdb)
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		redisCheck = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info().Msg("connected to Redis")
	}

	// Calendar
	creds, err := cfg.CalendarCredentials()
	if err != nil {
		logger.Warn().Err(err).Msg("could not read calendar credentials")
	}
	cal := calendar.FromCredentials(rootCtx, creds, calendar.GoogleOptions{
		Location: cfg.Location(),
		Timeout:  cfg.CalendarTimeout,
		Logger:   logger,
	})

	// Email
	mailer, err := notify.New(rootCtx, notify.Config{
		Provider:       cfg.EmailProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.EmailFrom,
		FromName:       cfg.EmailFromName,
		AWSRegion:      cfg.AWSRegion,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("email sender setup error")
	}

	svc := appointment.NewService(appointment.Deps{
		Repo:     appointment.NewPgRepository(pgPool),
		Locker:   locker,
		Calendar: cal,
		Mailer:   mailer,
		Metrics:  metrics.NewSchedulingMetrics(nil),
		Logger:   logger,
	}, appointment.Options{
		Location:      cfg.Location(),
		NotifyTimeout: cfg.NotifyTimeout,
	})

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Health:  api.NewHealthHandler(pgPool.Ping, redisCheck, cal.Available, cfg.Env, version),
		Limiter: api.NewRateLimiter(rootCtx, cfg.RateLimitRPS, cfg.RateLimitBurst),
		Metrics: promhttp.Handler(),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("api-server stopped")
}

func closeRedis(logger zerolog.Logger, rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing redis")
	}
}
