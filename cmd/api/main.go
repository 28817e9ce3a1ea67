// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"

	"github.com/aulamagica/backend/internal/auth"
	"github.com/aulamagica/backend/internal/config"
	"github.com/aulamagica/backend/internal/core"
	"github.com/aulamagica/backend/internal/health"
	"github.com/aulamagica/backend/internal/middleware"
	"github.com/aulamagica/backend/internal/ops"
	"github.com/aulamagica/backend/internal/principal"
	"github.com/aulamagica/backend/internal/server"
)

const (
	drainDelay    = 5 * time.Second
	sweepInterval = time.Hour
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	core.SetBcryptRounds(cfg.Auth.BcryptCost)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	issuer, err := auth.NewIssuer(
		cfg.Auth.Secret,
		cfg.AccessTokenLifetime(),
		cfg.Auth.RefreshTokenLifetime,
	)
	if err != nil {
		return err
	}
	logger.Info("token issuer initialized",
		"access_ttl", issuer.AccessTTL(),
		"refresh_ttl", issuer.RefreshTTL(),
	)

	events, natsConn := setupEvents(cfg.Events, logger)
	if natsConn != nil {
		defer natsConn.Drain() //nolint:errcheck // flush on the way out
	}

	principalRepo := principal.NewRepository(db.DB)
	attemptRepo := auth.NewAttemptRepository(db.DB)
	throttle := auth.NewThrottle(attemptRepo)
	blacklist := auth.NewBlacklist(redis.Client)

	authSvc := auth.NewService(
		principalRepo,
		throttle,
		issuer,
		blacklist,
		events,
		auth.DenyAllCodeVerifier{},
	)

	cookies := auth.NewCookieWriter(cfg.Auth.CookieDomain, cfg.IsProduction())
	authHandler := auth.NewHandler(authSvc, cookies)

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis},
		health.Dependency{
			Name:     "nats",
			Checker:  natsChecker(natsConn),
			Optional: true,
		},
	)

	opsHandler := ops.NewHandler(ops.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		DBPing:     db.Ping,
		RedisPing:  redis.Ping,
		Throttle:   throttle,
	})

	srv := server.New(server.Config{
		ServerConfig: cfg.Server,
		Logger:       logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	if telemetry != nil {
		router.Use(middleware.Tracing(cfg.Otel.ServiceName))
	}
	router.Use(middleware.Logger(logger))
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
			FailOpen: true,
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	authenticator := middleware.Authenticator(authSvc)
	adminOnly := middleware.RequireRoles(principal.RoleAdmin)

	loginLimiter := middleware.NewRateLimiter(
		redis.Client,
		middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.LoginRequests,
				cfg.RateLimit.LoginBurst,
			),
			FailOpen: true,
		},
	)

	router.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(loginLimiter.Handler)
			authHandler.RegisterRoutes(r, authenticator)
		})

		opsHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	go sweepAttempts(ctx, throttle, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	healthHandler.SetShutdown(true)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// setupEvents connects the NATS sink, degrading to log-only when the
// broker is absent. Logins must keep working without the event bus.
func setupEvents(
	cfg config.EventsConfig,
	logger *slog.Logger,
) (auth.EventSink, *nats.Conn) {
	if cfg.NatsURL == "" {
		logger.Warn("nats url not configured, domain events will be logged only")
		return auth.NewLogSink(logger), nil
	}

	conn, err := nats.Connect(cfg.NatsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Warn("nats connect failed, domain events will be logged only",
			"url", cfg.NatsURL,
			"error", err,
		)
		return auth.NewLogSink(logger), nil
	}

	logger.Info("nats connected", "url", cfg.NatsURL)
	return auth.NewNATSSink(conn, cfg.SubjectPrefix), conn
}

func natsChecker(conn *nats.Conn) health.Checker {
	return health.CheckerFunc(func(ctx context.Context) error {
		if conn == nil || !conn.IsConnected() {
			return nats.ErrConnectionClosed
		}
		return nil
	})
}

// sweepAttempts trims stale login attempt rows in the background so the
// table stays bounded without a cron dependency.
func sweepAttempts(
	ctx context.Context,
	throttle *auth.Throttle,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := throttle.Sweep(ctx)
			if err != nil {
				logger.Warn("attempt sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("attempt sweep completed", "deleted", deleted)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
