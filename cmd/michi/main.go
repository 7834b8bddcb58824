package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"michi-relay/config"
)

type cli struct {
	configPath string
	envFile    string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "michi",
		Short: "Voice command relay for the Michi robot",
		Long: `michi turns spoken Indonesian commands into reactions of the Michi robot.
Transcripts are classified by fuzzy keyword matching and published to the
robot controller over MQTT or NATS.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to config file (defaults only when empty)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newServeCmd(c),
		newClassifyCmd(c),
		newWakeCmd(c),
		newStoreCmd(c),
	)
	return root
}

func (c *cli) load() error {
	if err := config.LoadEnv(c.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c.cfg = cfg
	c.logger = setupLogger(cfg.Log)
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	case "console":
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: "15:04:05.000"})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}
