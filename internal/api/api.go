package api

import (
	"context"
	"errors"
	"time"

	"github.com/campuslabs/livewire/internal/cms"
	"github.com/campuslabs/livewire/internal/live"
	"github.com/campuslabs/livewire/internal/logging"
	"github.com/campuslabs/livewire/internal/notifier"
	"github.com/campuslabs/livewire/internal/webhook"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Config contains API configuration
type Config struct {
	// Server address
	Addr string

	// Maximum request body size in bytes
	MaxBodySize int

	// Timeouts in seconds
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		MaxBodySize:  1024 * 1024, // 1MB
		ReadTimeout:  5,
		WriteTimeout: 10,
		IdleTimeout:  120,
	}
}

// API handles HTTP endpoints
type API struct {
	config   Config
	app      *fiber.App
	notifier *notifier.Notifier
	webhook  *webhook.Handler
	matches  *live.Matches
	logger   zerolog.Logger
}

// NewAPI creates a new API instance
func NewAPI(config Config, notifier *notifier.Notifier, webhook *webhook.Handler, matches *live.Matches) *API {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultConfig().MaxBodySize
	}

	return &API{
		config:   config,
		notifier: notifier,
		webhook:  webhook,
		matches:  matches,
		logger:   logging.Component("api"),
	}
}

// Start initializes and runs the API server
func (a *API) Start(ctx context.Context) error {
	a.logger.Info().Str("addr", a.config.Addr).Msg("Starting API server")

	app := a.buildApp()
	a.app = app

	// Start server
	go func() {
		if err := app.Listen(a.config.Addr); err != nil {
			a.logger.Error().Err(err).Msg("API server error")
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()
	return nil
}

// buildApp assembles the Fiber app with middleware and routes
func (a *API) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(a.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.config.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(a.config.IdleTimeout) * time.Second,
		BodyLimit:    a.config.MaxBodySize,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	a.registerRoutes(app)
	return app
}

// registerRoutes sets up all API endpoints
func (a *API) registerRoutes(app *fiber.App) {
	// Health checks
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	// Metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	// Streaming endpoints. SSE first: the WebSocket upgrade middleware
	// is a path-prefix match and must not shadow /stream-sse.
	a.notifier.RegisterSSEHandler(app)
	a.notifier.RegisterWebSocketHandler(app)

	// CMS webhook ingress
	a.webhook.Register(app)

	// Live match snapshots
	app.Get("/live/matches", a.handleListMatches)
	app.Get("/live/matches/:id", a.handleGetMatch)
}

// handleListMatches returns every cached match snapshot
func (a *API) handleListMatches(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"matches": a.matches.List(),
	})
}

// handleGetMatch returns the current snapshot for one match
func (a *API) handleGetMatch(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Match ID is required",
		})
	}

	snapshot, err := a.matches.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, live.ErrNotFound) || cms.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Match not found",
			})
		}
		a.logger.Error().Err(err).Str("id", id).Msg("Failed to load match snapshot")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load match",
		})
	}

	return c.JSON(fiber.Map{
		"match": snapshot,
	})
}

// Shutdown stops the API server
func (a *API) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down API server")
	if a.app != nil {
		return a.app.Shutdown()
	}
	return nil
}
