package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/reelrooms/identity/config"
	autherrors "github.com/reelrooms/identity/errors"
	"github.com/reelrooms/identity/internal/audit"
	"github.com/reelrooms/identity/internal/federation"
	"github.com/reelrooms/identity/internal/identity"
	"github.com/reelrooms/identity/internal/metrics"
	"github.com/reelrooms/identity/internal/pool"
	"github.com/reelrooms/identity/internal/ratelimit"
	"github.com/reelrooms/identity/log"
	"github.com/reelrooms/identity/middleware"
	"github.com/reelrooms/identity/mongodb"
	"github.com/reelrooms/identity/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.NewZerologAdapter(level, cfg.LogPretty)

	tp, err := tracing.Init(context.Background(), "reelrooms-identity")
	if err != nil {
		logger.Error(context.Background(), "tracing init failed", err)
		os.Exit(1)
	}
	defer tp.Shutdown(context.Background())

	registry := prometheus.NewRegistry()
	recorder := audit.MultiRecorder{
		audit.NewZerologRecorder(zerolog.New(os.Stdout).With().Timestamp().Logger()),
		metrics.NewRecorder(registry),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI)
	cancel()
	if err != nil {
		logger.Error(context.Background(), "mongodb connection failed", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(context.Background())

	users, err := mongodb.NewUserRepository(context.Background(), mongoClient.Database(cfg.MongoDBName))
	if err != nil {
		logger.Error(context.Background(), "user repository init failed", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	limiter := ratelimit.NewRedisFixedWindow(redisClient, "identity", cfg.RateLimitPerMinute, time.Minute)

	poolClient := pool.NewHTTPClient(pool.HTTPClientConfig{
		Endpoint:     cfg.PoolAPIEndpoint,
		TokenURL:     cfg.PoolAPITokenURL,
		ClientID:     cfg.PoolAPIClientID,
		ClientSecret: cfg.PoolAPISecret,
	}, logger)

	verifier := federation.NewClaimsVerifier(federation.NewGoogleTokenVerifier(), cfg.GoogleClientID, recorder, logger)
	exchanger := pool.NewExchanger(poolClient, cfg, logger)
	resolver := identity.NewResolver(users, poolClient, cfg, logger)
	coordinator := federation.NewCoordinator(verifier, exchanger, resolver, limiter, cfg, recorder, logger)
	refresher := federation.NewSessionRefresher(exchanger, recorder, logger)
	sessions := federation.NewSessionService(users, poolClient, logger)
	defer sessions.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	e.POST("/v1/auth/federated", func(c echo.Context) error {
		var body struct {
			IDToken string `json:"id_token"`
		}
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		result, err := coordinator.Authenticate(c.Request().Context(), body.IDToken)
		if err != nil {
			return authErrorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"user":        result.User,
			"tokens":      result.Tokens,
			"is_new_user": result.IsNewUser,
		})
	})

	e.POST("/v1/auth/refresh", func(c echo.Context) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		tokens, err := refresher.Refresh(c.Request().Context(), body.RefreshToken)
		if err != nil {
			return authErrorResponse(c, err)
		}
		return c.JSON(http.StatusOK, tokens)
	})

	e.GET("/v1/session/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, middleware.UserFromContext(c))
	}, middleware.RequireUser(sessions))

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "http server stopped", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "graceful shutdown failed", err)
	}
}

// authErrorResponse renders an AuthError without leaking internals: the
// machine code, the user message, and the recovery metadata.
func authErrorResponse(c echo.Context, err error) error {
	ae, ok := autherrors.As(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "authentication failed")
	}
	status := http.StatusUnauthorized
	if ae.Retryable {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]interface{}{
		"code":             ae.Code,
		"message":          ae.UserMessage,
		"fallback_options": ae.FallbackOptions,
		"retryable":        ae.Retryable,
		"retry_delay_ms":   ae.RetryDelay.Milliseconds(),
		"context":          ae.Context,
	})
}
