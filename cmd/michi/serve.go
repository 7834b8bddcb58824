package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"michi-relay/config"
	"michi-relay/internal/application"
	"michi-relay/internal/infra/audio"
	"michi-relay/internal/infra/httpapi"
	"michi-relay/internal/infra/loopback"
	"michi-relay/internal/infra/mqtt"
	"michi-relay/internal/infra/nats"
	"michi-relay/internal/infra/openai"
	"michi-relay/internal/infra/pushover"
	"michi-relay/internal/infra/redisstore"
	"michi-relay/internal/infra/sqlstore"
	"michi-relay/internal/intent"
)

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the optional local audio loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c.cfg, c.logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	classifier, err := newClassifier(cfg.Intent)
	if err != nil {
		return err
	}

	channel, err := connectDevice(ctx, cfg.Device, logger)
	if err != nil {
		return err
	}
	defer channel.Close()

	store, closeStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	talk := application.NewTalkState(logger)
	channel.Subscribe(talk.HandleDeviceMessage)

	dispatcher := application.NewDispatcher(classifier, channel, talk, cfg.Device.PublishTimeout, logger)
	relay := application.NewRelay(
		newSpeechToText(cfg.OpenAI, logger),
		classifier,
		dispatcher,
		store,
		newNotifier(cfg.Pushover, logger),
		logger,
		application.WithRequireWake(cfg.Audio.RequireWake),
		application.WithStoreTimeout(cfg.Store.Timeout),
	)

	server := httpapi.NewServer(httpapi.Config{
		Addr:       cfg.HTTP.Addr,
		AuthToken:  cfg.HTTP.AuthToken,
		UploadDir:  cfg.HTTP.UploadDir,
		AudioDir:   cfg.HTTP.AudioDir,
		PublicURL:  cfg.HTTP.PublicURL,
		RateLimit:  cfg.HTTP.RateLimit,
		RateWindow: cfg.HTTP.RateWindow,
		MaxWait:    cfg.HTTP.MaxWait,

		MaxAudioBytes: cfg.HTTP.MaxAudioBytes,
		MaxTextBytes:  cfg.HTTP.MaxTextBytes,
		TrustProxy:    cfg.HTTP.TrustProxy,
	}, relay, talk, channel, logger)

	logger.Info("starting michi relay",
		"transport", cfg.Device.Transport,
		"store", cfg.Store.Driver,
		"audio_source", cfg.Audio.Source,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		logger.Info("shutting down")
		return server.Stop()
	})

	if cfg.Audio.Source != "" {
		source := newAudioSource(cfg.Audio, logger)
		g.Go(func() error {
			err := relay.Run(gctx, source)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

func newClassifier(cfg config.IntentConfig) (*intent.Classifier, error) {
	lexicon, err := intent.DefaultLexicon().WithOverrides(cfg.WakePhrases, cfg.Phrases)
	if err != nil {
		return nil, fmt.Errorf("building lexicon: %w", err)
	}
	classifier, err := intent.NewClassifier(lexicon, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("building classifier: %w", err)
	}
	return classifier, nil
}

func connectDevice(ctx context.Context, cfg config.DeviceConfig, logger *slog.Logger) (application.DeviceChannel, error) {
	logger = logger.With("component", "device")

	switch cfg.Transport {
	case "nats":
		ch := nats.NewChannel(nats.Config{
			URL:            cfg.NATSURL,
			Name:           cfg.ClientID,
			Subject:        cfg.Topic,
			PublishSubject: cfg.PublishTopic,
			Timeout:        cfg.ConnectTimeout,
		}, logger)
		if err := ch.Connect(ctx); err != nil {
			return nil, err
		}
		return ch, nil
	case "loopback":
		return loopback.NewChannel(logger), nil
	default:
		ch := mqtt.NewChannel(mqtt.Config{
			Broker:         cfg.Broker,
			ClientID:       cfg.ClientID + "-" + uuid.NewString()[:8],
			Username:       cfg.Username,
			Password:       cfg.Password,
			PublishTopic:   cfg.PublishTopic,
			SubscribeTopic: cfg.Topic,
			QoS:            byte(cfg.QoS),
			ConnectTimeout: cfg.ConnectTimeout,
		}, logger)
		if err := ch.Connect(ctx); err != nil {
			return nil, err
		}
		return ch, nil
	}
}

// transcriptStore is what serve and the store commands need from a backend.
type transcriptStore interface {
	application.TranscriptStore
	ServerVersion(ctx context.Context) (string, error)
	Close() error
}

// openStore never fails on an unreachable backend: the relay keeps
// dispatching without persistence.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (application.TranscriptStore, func(), error) {
	if cfg.Driver == "none" {
		return &application.NoopStore{}, func() {}, nil
	}

	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		logger.Warn("transcript store unavailable, continuing without persistence", "driver", cfg.Driver, "error", err)
		return &application.NoopStore{}, func() {}, nil
	}
	return store, func() { store.Close() }, nil
}

func openBackend(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (transcriptStore, error) {
	logger = logger.With("component", "store")

	switch cfg.Driver {
	case "redis":
		return redisstore.Open(ctx, redisstore.Config{URL: cfg.RedisURL, Key: cfg.RedisKey}, logger)
	case "mysql", "sqlite":
		return sqlstore.Open(ctx, sqlstore.Config{
			Driver:   cfg.Driver,
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
			Path:     cfg.Path,
		}, logger)
	default:
		return nil, fmt.Errorf("store driver %q has no backend", cfg.Driver)
	}
}

func newSpeechToText(cfg config.OpenAIConfig, logger *slog.Logger) application.SpeechToText {
	if cfg.APIKey == "" {
		logger.Warn("openai.api_key not set, only text commands will work")
		return &application.NoopSTT{}
	}
	return openai.NewWhisperClientWithURL(cfg.APIKey, cfg.Language, cfg.BaseURL).WithModel(cfg.Model)
}

func newNotifier(cfg config.PushoverConfig, logger *slog.Logger) application.Notifier {
	if !cfg.Enabled {
		return &application.LogNotifier{Logger: logger}
	}
	return pushover.NewClient(cfg.Token, cfg.UserKey, cfg.Title)
}

func newAudioSource(cfg config.AudioConfig, logger *slog.Logger) application.AudioSource {
	logger = logger.With("component", "audio")
	if cfg.Source == "microphone" {
		return audio.NewMicrophoneSource(cfg.SampleRate, logger)
	}
	return audio.NewFileSource(cfg.FileDir, logger)
}
