package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/campuslabs/livewire/internal/api"
	"github.com/campuslabs/livewire/internal/cms"
	"github.com/campuslabs/livewire/internal/config"
	"github.com/campuslabs/livewire/internal/live"
	"github.com/campuslabs/livewire/internal/logging"
	"github.com/campuslabs/livewire/internal/notifier"
	"github.com/campuslabs/livewire/internal/telemetry"
	"github.com/campuslabs/livewire/internal/webhook"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Engine is the main coordinator of all Livewire components. It owns
// the subscriber registry and hands the same instance to both the
// streaming endpoints and the webhook ingress.
type Engine struct {
	config      *config.Config
	registry    *notifier.Registry
	notifier    *notifier.Notifier
	webhook     *webhook.Handler
	cms         *cms.Client
	matches     *live.Matches
	api         *api.API
	logger      zerolog.Logger
	telemetryFn func(context.Context) error // Shutdown function for telemetry
}

// CreateEngine creates a new Engine instance with all components
// initialized from the config
func CreateEngine(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger := logging.Component("engine")

	registry := notifier.NewRegistry()

	streamNotifier := notifier.NewNotifier(notifier.Config{
		HeartbeatInterval: time.Duration(cfg.Notifier.HeartbeatIntervalSeconds) * time.Second,
		ClientBufferSize:  cfg.Notifier.ClientBufferSize,
	}, registry)

	cmsClient := cms.NewClient(cms.Config{
		BaseURL: cfg.CMS.BaseURL,
		Token:   cfg.CMS.Token,
		Timeout: time.Duration(cfg.CMS.TimeoutSeconds) * time.Second,
	})

	matches, err := live.NewMatches(live.Config{
		SnapshotCacheSize: cfg.Live.SnapshotCacheSize,
	}, cmsClient)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot service: %w", err)
	}

	webhookHandler := webhook.NewHandler(webhook.Config{
		SecretEnv:        cfg.Webhook.SecretEnv,
		SecretNextEnv:    cfg.Webhook.SecretNextEnv,
		FullPayloadDelay: time.Duration(cfg.Webhook.FullPayloadDelay) * time.Millisecond,
	}, registry, matches)

	apiServer := api.NewAPI(api.Config{
		Addr:         cfg.Server.Addr,
		MaxBodySize:  cfg.Server.MaxBodySize,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, streamNotifier, webhookHandler, matches)

	return &Engine{
		config:   cfg,
		registry: registry,
		notifier: streamNotifier,
		webhook:  webhookHandler,
		cms:      cmsClient,
		matches:  matches,
		api:      apiServer,
		logger:   logger,
	}, nil
}

// Start runs all components until the context is cancelled
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info().Msg("Starting Livewire engine")

	telemetryShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:       e.config.Telemetry.Enabled,
		ServiceName:   e.config.Telemetry.ServiceName,
		Endpoint:      e.config.Telemetry.Endpoint,
		SamplingRatio: e.config.Telemetry.SamplingRatio,
		Timeout:       5 * time.Second,
		Attributes:    e.config.Telemetry.Attributes,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	e.telemetryFn = telemetryShutdown

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.api.Start(ctx)
	})

	return g.Wait()
}

// Shutdown stops all components
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info().Msg("Shutting down Livewire engine")

	if err := e.api.Shutdown(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Error shutting down API server")
	}

	if e.telemetryFn != nil {
		if err := e.telemetryFn(ctx); err != nil {
			e.logger.Error().Err(err).Msg("Error shutting down telemetry")
		}
	}

	return nil
}
