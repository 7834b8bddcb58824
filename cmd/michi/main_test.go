package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"michi-relay/config"
	"michi-relay/internal/application"
	"michi-relay/internal/infra/audio"
	"michi-relay/internal/infra/openai"
	"michi-relay/internal/infra/pushover"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClassifyCommand(t *testing.T) {
	out, err := runCLI(t, "classify", "tolong", "menari", "sekarang")
	require.NoError(t, err)
	assert.Contains(t, out, "category: dance")
	assert.Contains(t, out, `{"response":"dance"}`)

	out, err = runCLI(t, "classify", "halo apa kabar")
	require.NoError(t, err)
	assert.Contains(t, out, `{"response":"talk"}`)
}

func TestClassifyCommand_CustomPhrases(t *testing.T) {
	path := writeConfig(t, "intent:\n  phrases:\n    dance: [\"joget\"]\n")

	out, err := runCLI(t, "classify", "ayo joget", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "category: dance")
}

func TestWakeCommand(t *testing.T) {
	out, err := runCLI(t, "wake", "halo apa kabar")
	require.NoError(t, err)
	assert.Contains(t, out, "wakeword_detected: true")

	out, err = runCLI(t, "wake", "selamat pagi")
	require.NoError(t, err)
	assert.Contains(t, out, "wakeword_detected: false")
}

func TestStoreCommands_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "michi.db")
	path := writeConfig(t, "store:\n  driver: sqlite\n  path: "+dbPath+"\nlog:\n  level: error\n")

	out, err := runCLI(t, "store", "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "connected to sqlite, server version 3.")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := openBackend(context.Background(), cfg.Store, logger)
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), "robot tidur", time.Now()))
	require.NoError(t, store.Close())

	out, err = runCLI(t, "store", "recent", "--limit", "5", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "TRANSCRIPT")
	assert.Contains(t, out, "robot tidur")

	_, err = runCLI(t, "store", "recent", "--limit", "0", "--config", path)
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	path := writeConfig(t, "device:\n  transport: smoke-signals\n")

	_, err := runCLI(t, "classify", "halo", "--config", path)
	assert.ErrorContains(t, err, "device.transport")
}

func TestOpenStore_FallsBackWhenUnavailable(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.StoreConfig{Driver: "redis", RedisURL: "ftp://nowhere"}

	store, closeStore, err := openStore(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer closeStore()

	assert.NoError(t, store.Record(context.Background(), "halo", time.Now()))
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"text", "json", "console"} {
		logger := setupLogger(config.LogConfig{Level: "debug", Format: format})
		assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug), format)
	}
	logger := setupLogger(config.LogConfig{Level: "warn", Format: "text"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestWiringHelpers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	channel, err := connectDevice(context.Background(), config.DeviceConfig{Transport: "loopback"}, logger)
	require.NoError(t, err)
	defer channel.Close()
	assert.True(t, channel.Connected())

	assert.IsType(t, &application.LogNotifier{}, newNotifier(config.PushoverConfig{}, logger))
	assert.IsType(t, &pushover.Client{}, newNotifier(config.PushoverConfig{Enabled: true, Token: "t", UserKey: "u"}, logger))

	assert.IsType(t, &application.NoopSTT{}, newSpeechToText(config.OpenAIConfig{}, logger))
	assert.IsType(t, &openai.WhisperClient{}, newSpeechToText(config.OpenAIConfig{APIKey: "sk-test", Language: "id"}, logger))

	assert.IsType(t, &audio.FileSource{}, newAudioSource(config.AudioConfig{Source: "file", FileDir: t.TempDir()}, logger))
	assert.IsType(t, &audio.MicrophoneSource{}, newAudioSource(config.AudioConfig{Source: "microphone", SampleRate: 16000}, logger))
}
