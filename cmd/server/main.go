package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/restaurant-reservation/internal/auth"
	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/database"
	"github.com/iliyamo/restaurant-reservation/internal/handler"
	"github.com/iliyamo/restaurant-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-reservation/internal/middleware"
	"github.com/iliyamo/restaurant-reservation/internal/queue"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
	"github.com/iliyamo/restaurant-reservation/internal/router"
	"github.com/iliyamo/restaurant-reservation/internal/service"
)

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.With().Timestamp().Str("env", cfg.Env).Logger()
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)
	log.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := auth.NewTokenService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTTL, cfg.RefreshTTL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("token service")
	}

	dsn := database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if cfg.DBMigrate {
		if err := database.Migrate(dsn); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
		logger.Info().Msg("migrations applied")
	}
	db, err := database.Open(ctx, dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	redisCfg := config.LoadRedisConfig()
	rdb, err := config.NewRedisClient(ctx, redisCfg)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable: local rate limiting, no response cache, logout disabled")
	} else {
		defer rdb.Close()
	}

	m := metrics.New()

	var pub service.EventPublisher = queue.NopPublisher{}
	if cfg.EventsEnabled {
		p := queue.NewPublisher(cfg.RabbitURL, queue.PublisherOptions{
			DialTimeout: cfg.EventsDialTimeout,
			RetryAfter:  cfg.EventsRetryAfter,
		}, logger)
		defer p.Close()
		pub = p
	}
	if cfg.ConsumerEnabled {
		events := logger.With().Str("stream", queue.QueueName).Logger()
		consumer := queue.NewConsumer(cfg.RabbitURL, logger, events)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	// repositories
	users := repository.NewUserRepo(db)
	clients := repository.NewClientRepo(db)
	tables := repository.NewTableRepo(db)
	reservations := repository.NewReservationRepo(db)
	revoked := repository.NewRevocationStore(rdb, redisCfg.RevocationPrefix)

	// services
	accounts := service.NewAccountService(users, tokens, revoked, cfg.BcryptCost, m, logger)
	booking := service.NewReservationService(reservations, clients, tables, pub, service.ReservationOptions{
		DefaultDurationMin: cfg.DefaultDurationMin,
		MinDurationMin:     cfg.MinDurationMin,
		MaxDurationMin:     cfg.MaxDurationMin,
		Metrics:            m,
		Log:                logger,
	})

	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, logger)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(logger)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(middleware.RequestLogger(logger, m))

	router.RegisterRoutes(e, handler.Readiness{DB: db, Redis: rdb})
	router.RegisterAuth(e, handler.NewAuthHandler(accounts, users, logger), tokens, limiter)
	router.RegisterReservations(e, handler.NewReservationHandler(booking, logger), tokens)
	router.RegisterStaff(e,
		handler.NewTableHandler(tables, cache, logger),
		handler.NewClientHandler(clients, logger),
		tokens, cache)
	router.RegisterMetrics(e, m, tokens)

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
