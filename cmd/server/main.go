package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/techblog-auth/internal/auth"
	"github.com/iliyamo/techblog-auth/internal/config"
	"github.com/iliyamo/techblog-auth/internal/database"
	"github.com/iliyamo/techblog-auth/internal/handler"
	"github.com/iliyamo/techblog-auth/internal/metrics"
	"github.com/iliyamo/techblog-auth/internal/middleware"
	"github.com/iliyamo/techblog-auth/internal/queue"
	"github.com/iliyamo/techblog-auth/internal/repository"
	"github.com/iliyamo/techblog-auth/internal/router"
	queue_publisher "github.com/iliyamo/techblog-auth/internal/service"
	"github.com/iliyamo/techblog-auth/internal/telemetry"
	"github.com/iliyamo/techblog-auth/internal/token"
	"github.com/iliyamo/techblog-auth/internal/utils"
)

const serviceName = "techblog-auth"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("could not read .env: %v", err)
	}
	cfg := config.Load() // Load environment config

	logger := log.New(serviceName)
	logger.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}","file":"${short_file}","line":"${line}"}`)
	logger.SetLevel(parseLevel(cfg.LogLevel))
	log.SetLevel(parseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, serviceName)
	if err != nil {
		logger.Warnf("tracing disabled: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := database.Open(database.Options{
		Driver:     database.Dialect(cfg.DBDriver),
		User:       cfg.DBUser,
		Pass:       cfg.DBPass,
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		Name:       cfg.DBName,
		SQLitePath: cfg.SQLitePath,
	})
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db, database.Dialect(cfg.DBDriver)); err != nil {
			logger.Fatalf("migrate database: %v", err)
		}
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil && cfg.RateLimit.Enabled {
		logger.Warnf("redis unreachable at %s; rate limiting disabled", cfg.Redis.Address())
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var events auth.EventPublisher = queue_publisher.Nop{}
	if cfg.Events.Enabled {
		events = queue_publisher.New(cfg.Events.URL, cfg.Events.Queue)
		go func() {
			err := queue.StartAuditConsumer(ctx, cfg.Events.URL, cfg.Events.Queue, cfg.Events.AuditLogDir)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("audit consumer stopped: %v", err)
			}
		}()
	}

	codec, err := token.NewCodec(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Fatalf("token codec: %v", err)
	}
	m := metrics.New()
	svc := auth.New(auth.Options{
		Store:      repository.NewStore(db),
		Hasher:     utils.NewBcryptHasher(cfg.BcryptCost),
		Codec:      codec,
		Clock:      auth.SystemClock,
		Events:     events,
		Metrics:    m,
		Logger:     logger,
		Tracer:     telemetry.Tracer(),
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Logger = logger
	e.HTTPErrorHandler = handler.NewErrorHandler(cfg.ErrorTrace)
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, db, m)
	router.RegisterAuth(e,
		handler.NewAuthHandler(svc, cfg.Cookie),
		codec,
		auth.SystemClock.Now,
		middleware.NewTokenBucket(cfg.RateLimit, rdb, m),
	)

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s, db=%s)", addr, cfg.Env, cfg.DBDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func parseLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	}
	return log.INFO
}
