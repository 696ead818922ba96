// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together the plugins.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/bizdir/internal/apperror"
	"github.com/keyxmakerx/bizdir/internal/config"
	"github.com/keyxmakerx/bizdir/internal/middleware"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the connection pool shared by all plugins.
	DB *sqlx.DB

	// Redis backs the geolocation cache. Nil when REDIS_URL is unset.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// stop ends background work started by RegisterRoutes.
	stop context.CancelFunc
	ctx  context.Context
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, db *sqlx.DB, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	e.Validator = middleware.NewRequestValidator()

	trusted := cfg.TrustedProxies
	if len(trusted) == 0 {
		trusted = []string{
			"127.0.0.0/8",
			"10.0.0.0/8",
			"172.16.0.0/12",
			"192.168.0.0/16",
			"fd00::/8",
		}
	}
	middleware.TrustedProxies(e, trusted)

	ctx, stop := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
		ctx:    ctx,
		stop:   stop,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics from all other middleware.
	a.Echo.Use(middleware.Recovery())

	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.SecurityHeaders())

	if len(a.Config.CORSOrigins) > 0 {
		a.Echo.Use(middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: a.Config.CORSOrigins,
		}))
	}
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) and Echo's own HTTP errors to a JSON body of the form
// {"error": <type>, "message": <safe message>}.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := apperror.TypeInternal
	message := "An unexpected error occurred"

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message

		// Log internal errors with the underlying cause.
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}

	case errors.As(err, &echoErr):
		code = echoErr.Code
		errType = statusType(code)
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}

	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, map[string]string{
		"error":   errType,
		"message": message,
	})
}

// statusType maps router-level status codes onto the AppError vocabulary.
func statusType(code int) string {
	switch code {
	case http.StatusBadRequest:
		return apperror.TypeBadRequest
	case http.StatusUnauthorized:
		return apperror.TypeUnauthorized
	case http.StatusForbidden:
		return apperror.TypeForbidden
	case http.StatusNotFound:
		return apperror.TypeNotFound
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		if code < http.StatusInternalServerError {
			return apperror.TypeBadRequest
		}
		return apperror.TypeInternal
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting bizdir server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("db_driver", a.Config.Database.Driver),
	)
	return a.Echo.Start(addr)
}

// Shutdown stops background work and drains in-flight requests.
func (a *App) Shutdown(ctx context.Context) error {
	a.stop()
	return a.Echo.Shutdown(ctx)
}
