package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"michi-relay/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, "mqtt", cfg.Device.Transport)
	assert.Equal(t, "tcp://broker.emqx.io:1883", cfg.Device.Broker)
	assert.Equal(t, "testtopic/mwtt", cfg.Device.Topic)
	assert.Equal(t, "testtopic/mwtt", cfg.Device.PublishTopic)
	assert.Equal(t, 5*time.Second, cfg.Device.PublishTimeout)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, 3310, cfg.Store.Port)
	assert.Equal(t, "root", cfg.Store.User)
	assert.Equal(t, "michi_robot", cfg.Store.Database)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, int64(10<<20), cfg.HTTP.MaxAudioBytes)
	assert.Equal(t, int64(4096), cfg.HTTP.MaxTextBytes)
	assert.False(t, cfg.HTTP.TrustProxy)
	assert.Equal(t, "id", cfg.OpenAI.Language)
	assert.Equal(t, 85, cfg.Intent.Threshold)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Audio.Source)
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("MICHI_TEST_OPENAI_KEY", "sk-test")
	t.Setenv("MICHI_TEST_DB_PASSWORD", "rahasia")

	path := writeFile(t, "config.yaml", `
http:
  addr: ":8080"
  max_wait: 10s
  max_text_bytes: 1024
  trust_proxy: true
openai:
  api_key: ${MICHI_TEST_OPENAI_KEY}
device:
  transport: nats
  topic: robot/michi
  publish_timeout: 2s
store:
  driver: sqlite
  password: ${MICHI_TEST_DB_PASSWORD}
  path: /tmp/michi.db
  timeout: 500ms
intent:
  threshold: 90
  wake_phrases: ["hei michi"]
  phrases:
    dance: ["joget"]
audio:
  source: file
  require_wake: true
log:
  level: debug
  format: console
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.MaxWait)
	assert.Equal(t, int64(1024), cfg.HTTP.MaxTextBytes)
	assert.True(t, cfg.HTTP.TrustProxy)
	assert.Equal(t, 500*time.Millisecond, cfg.Store.Timeout)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "nats", cfg.Device.Transport)
	assert.Equal(t, "robot/michi", cfg.Device.PublishTopic)
	assert.Equal(t, 2*time.Second, cfg.Device.PublishTimeout)
	assert.Equal(t, "rahasia", cfg.Store.Password)
	assert.Equal(t, "/tmp/michi.db", cfg.Store.Path)
	assert.Equal(t, 90, cfg.Intent.Threshold)
	assert.Equal(t, []string{"hei michi"}, cfg.Intent.WakePhrases)
	assert.Equal(t, []string{"joget"}, cfg.Intent.Phrases["dance"])
	assert.True(t, cfg.Audio.RequireWake)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "config.yaml", `
device:
  transport: carrier-pigeon
  qos: 3
http:
  max_text_bytes: -1
store:
  driver: postgres
  timeout: -1s
intent:
  threshold: 120
log:
  level: loud
`)

	_, err := config.Load(path)
	require.Error(t, err)
	for _, want := range []string{"device.transport", "device.qos", "store.driver", "store.timeout", "http.max_audio_bytes", "intent.threshold", "log.level"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_PushoverNeedsCredentials(t *testing.T) {
	path := writeFile(t, "config.yaml", "pushover:\n  enabled: true\n")

	_, err := config.Load(path)
	assert.ErrorContains(t, err, "pushover.enabled")
}

func TestLoad_Errors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	path := writeFile(t, "bad.yaml", "http: [unclosed")
	_, err = config.Load(path)
	assert.ErrorContains(t, err, "parsing config")
}

func TestLoadEnv(t *testing.T) {
	require.NoError(t, config.LoadEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := writeFile(t, ".env", "MICHI_TEST_FROM_DOTENV=hello\n")
	t.Setenv("MICHI_TEST_FROM_DOTENV", "")
	os.Unsetenv("MICHI_TEST_FROM_DOTENV")

	require.NoError(t, config.LoadEnv(path))
	assert.Equal(t, "hello", os.Getenv("MICHI_TEST_FROM_DOTENV"))
}
