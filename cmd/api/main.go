package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	httpAdapter "github.com/clipstream/realtime-backend/internal/adapters/primary/http"
	mw "github.com/clipstream/realtime-backend/internal/adapters/primary/http/middleware"
	"github.com/clipstream/realtime-backend/internal/adapters/primary/realtime"
	"github.com/clipstream/realtime-backend/internal/adapters/secondary/memory"
	"github.com/clipstream/realtime-backend/internal/adapters/secondary/postgres"
	"github.com/clipstream/realtime-backend/internal/adapters/secondary/redispubsub"
	"github.com/clipstream/realtime-backend/internal/auth"
	"github.com/clipstream/realtime-backend/internal/config"
	"github.com/clipstream/realtime-backend/internal/core/ports"
	"github.com/clipstream/realtime-backend/internal/core/services"
	"github.com/clipstream/realtime-backend/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"instance_id", cfg.App.InstanceID,
	)

	// 3. Initialize Database Pool
	ctx := context.Background()
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	// 4. Security
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TokenTTL)

	// 5. Real-time Core: registry, rooms, gateway
	registry := realtime.NewRegistry(logger)
	rooms := realtime.NewRooms(nil, logger)

	gateway := realtime.NewGateway(registry, rooms, realtime.GatewayConfig{
		IdleAfter:           cfg.Presence.IdleAfter,
		InactivityThreshold: cfg.Presence.InactivityThreshold,
		SweepInterval:       cfg.Presence.SweepInterval,
		OfflineRetention:    cfg.Presence.OfflineRetention,
		RoomIdleWindow:      cfg.Presence.RoomIdleWindow,
		MaxConnsPerUser:     cfg.Presence.MaxConnsPerUser,
		SendBufferSize:      cfg.WebSocket.SendBufferSize,
		ConnectRPS:          cfg.RateLimit.ConnectRPS,
		ConnectBurst:        cfg.RateLimit.ConnectBurst,
		PingInterval:        cfg.WebSocket.PingInterval,
		PongWait:            cfg.WebSocket.PongWait,
	}, logger)
	gateway.Start()

	// 6. Cluster Fan-Out: Redis when configured, in-process otherwise
	var broker ports.Broker
	var redisBroker *redispubsub.Broker
	if cfg.Redis.URL != "" {
		redisBroker, err = redispubsub.NewBroker(ctx, cfg.Redis.URL, redispubsub.Config{
			ReconnectMin: cfg.Redis.ReconnectMin,
			ReconnectMax: cfg.Redis.ReconnectMax,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		broker = redisBroker
		logger.Info("redis fan-out enabled", "channel", cfg.Redis.Channel)
	} else {
		broker = memory.NewBroker()
		logger.Info("redis not configured, running single-instance fan-out")
	}

	// 7. Event Dispatcher
	authorRepo := postgres.NewAuthorRepository(pool)
	authors := services.NewCachedAuthorLookup(authorRepo, cfg.Dispatch.AuthorCacheTTL, cfg.Dispatch.NegativeCacheTTL)

	dispatcher := services.NewDispatcher(rooms, authors, broker, services.DispatcherConfig{
		DedupWindow:    cfg.Dispatch.DedupWindow,
		DebounceWindow: cfg.Dispatch.DebounceWindow,
		Channel:        cfg.Redis.Channel,
		InstanceID:     cfg.App.InstanceID,
		PublishTimeout: cfg.Redis.PublishTimeout,
	}, logger)

	subCtx, cancelSub := context.WithCancel(ctx)
	defer cancelSub()
	if err := broker.Subscribe(subCtx, cfg.Redis.Channel, dispatcher.HandleClusterMessage); err != nil {
		logger.Error("failed to subscribe to fan-out channel", "error", err)
		os.Exit(1)
	}

	// 8. Rate Limiter
	var rateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
	}

	// 9. Handlers (Primary Adapters)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	wsHandler := httpAdapter.NewWebSocketHandler(gateway, tokenManager, cfg, logger)
	eventsHandler := httpAdapter.NewEventsHandler(dispatcher, errorHandler, logger)
	presenceHandler := httpAdapter.NewPresenceHandler(registry, rooms, errorHandler, logger)

	healthChecks := map[string]httpAdapter.HealthChecker{"database": pool}
	if redisBroker != nil {
		healthChecks["redis"] = redisBroker
	}
	healthHandler := httpAdapter.NewHealthHandler(healthChecks, gateway, rooms, cfg.App.Version)

	// 10. Router
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if rateLimiter != nil {
		r.Use(rateLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/health/live", healthHandler.HandleLiveness)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (authentication happens inside the handler,
		// before the upgrade)
		r.Get("/ws", wsHandler.ServeHTTP)

		// Event ingestion, restricted to token holders
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(tokenManager))
			r.Route("/events", eventsHandler.RegisterRoutes)
		})

		// Read-only presence queries
		presenceHandler.RegisterRoutes(r)
	})

	// 11. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting HTTP first, then drain the realtime state: close every
	// live socket, flush pending debounce windows, and detach from the
	// cluster channel.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	gateway.Close()
	dispatcher.Close()
	cancelSub()
	if err := broker.Close(); err != nil {
		logger.Error("broker close error", "error", err)
	}

	logger.Info("server shutdown complete")
}
