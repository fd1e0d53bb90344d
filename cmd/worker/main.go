package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ancill/mediapod/asset-worker/internal/config"
	"github.com/ancill/mediapod/asset-worker/internal/embedding"
	"github.com/ancill/mediapod/asset-worker/internal/imageprep"
	"github.com/ancill/mediapod/asset-worker/internal/vlmclient"
	"github.com/ancill/mediapod/asset-worker/internal/worker"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("starting moondream asset worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	imageOpts := imageprep.Options{
		MaxSide:     cfg.Image.MaxSide,
		JPEGQuality: cfg.Image.JPEGQuality,
		RawBytes:    cfg.Image.RawBytes,
	}

	provider, err := buildProvider(cfg, imageOpts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build VLM provider")
	}
	log.Info().Str("provider", cfg.Provider.Kind).Str("model", provider.ModelVersion()).Msg("provider ready")

	embedder := embedding.New(cfg.Embed.URL, cfg.Embed.Model)
	if !embedder.Enabled() {
		log.Warn().Msg("embeddings disabled: EMBEDDING_URL not set")
	}

	loop := worker.New(cfg, provider, embedder)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("db", cfg.DB.Path).Msg("worker running")
	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("worker loop exited with error")
	}

	log.Info().Msg("worker exited")
}

func buildProvider(cfg *config.Config, imageOpts imageprep.Options) (vlmclient.Provider, error) {
	switch cfg.Provider.Kind {
	case "remote":
		return vlmclient.NewRemoteProvider(cfg.Provider.RemoteURL, cfg.Provider.RemoteToken), nil
	default:
		return vlmclient.NewStationProvider(cfg.Provider.Endpoint, imageOpts), nil
	}
}
