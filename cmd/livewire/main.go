package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuslabs/livewire/internal/config"
	"github.com/campuslabs/livewire/internal/engine"
	"github.com/campuslabs/livewire/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	serverAddr := flag.String("addr", "", "server address override")
	logLevel := flag.String("log-level", "", "log level override")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *serverAddr, *logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := logging.Setup(logging.Config{
		Level:             logging.LogLevel(cfg.Logging.Level),
		Format:            logging.LogFormat(cfg.Logging.Format),
		IncludeCaller:     cfg.Logging.IncludeCaller,
		IncludeStacktrace: true,
		GlobalFields:      cfg.Logging.GlobalFields,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	log.Info().Str("addr", cfg.Server.Addr).Msg("Livewire starting")

	eng, err := engine.CreateEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Engine stopped with error")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		os.Exit(1)
	}

	log.Info().Msg("Livewire stopped")
}
