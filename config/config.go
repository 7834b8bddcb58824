package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Device   DeviceConfig   `yaml:"device"`
	Store    StoreConfig    `yaml:"store"`
	Intent   IntentConfig   `yaml:"intent"`
	Audio    AudioConfig    `yaml:"audio"`
	Pushover PushoverConfig `yaml:"pushover"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Addr       string        `yaml:"addr"`
	AuthToken  string        `yaml:"auth_token"`
	UploadDir  string        `yaml:"upload_dir"`
	AudioDir   string        `yaml:"audio_dir"`
	PublicURL  string        `yaml:"public_url"`
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
	MaxWait    time.Duration `yaml:"max_wait"`
	// Request bodies over these sizes get 413.
	MaxAudioBytes int64 `yaml:"max_audio_bytes"`
	MaxTextBytes  int64 `yaml:"max_text_bytes"`
	// TrustProxy keys rate limiting on X-Forwarded-For; only set it behind
	// a proxy that rewrites the header.
	TrustProxy bool `yaml:"trust_proxy"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

type DeviceConfig struct {
	Transport string `yaml:"transport"` // mqtt, nats or loopback
	Broker    string `yaml:"broker"`
	NATSURL   string `yaml:"nats_url"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	// Topic is subscribed to; commands go to PublishTopic, which defaults to
	// Topic so the relay hears its own commands.
	Topic          string        `yaml:"topic"`
	PublishTopic   string        `yaml:"publish_topic"`
	QoS            int           `yaml:"qos"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type StoreConfig struct {
	Driver   string `yaml:"driver"` // mysql, sqlite, redis or none
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`
	// Timeout bounds each transcript write.
	Timeout time.Duration `yaml:"timeout"`
}

type IntentConfig struct {
	Threshold   int                 `yaml:"threshold"`
	WakePhrases []string            `yaml:"wake_phrases"`
	Phrases     map[string][]string `yaml:"phrases"`
}

type AudioConfig struct {
	Source      string `yaml:"source"` // empty, file or microphone
	FileDir     string `yaml:"file_dir"`
	SampleRate  int    `yaml:"sample_rate"`
	RequireWake bool   `yaml:"require_wake"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Title   string `yaml:"title"`
	Enabled bool   `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadEnv loads variables from a dotenv file without overriding ones already
// set. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path, expanding ${VAR} references. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":5000"
	}
	if c.HTTP.UploadDir == "" {
		c.HTTP.UploadDir = "./uploads"
	}
	if c.HTTP.AudioDir == "" {
		c.HTTP.AudioDir = "./server_audio"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 30
	}
	if c.HTTP.RateWindow == 0 {
		c.HTTP.RateWindow = time.Minute
	}
	if c.HTTP.MaxWait == 0 {
		c.HTTP.MaxWait = 30 * time.Second
	}
	if c.HTTP.MaxAudioBytes == 0 {
		c.HTTP.MaxAudioBytes = 10 << 20
	}
	if c.HTTP.MaxTextBytes == 0 {
		c.HTTP.MaxTextBytes = 4096
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "id"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "whisper-1"
	}
	if c.Device.Transport == "" {
		c.Device.Transport = "mqtt"
	}
	if c.Device.Broker == "" {
		c.Device.Broker = "tcp://broker.emqx.io:1883"
	}
	if c.Device.NATSURL == "" {
		c.Device.NATSURL = "nats://localhost:4222"
	}
	if c.Device.ClientID == "" {
		c.Device.ClientID = "michi-relay"
	}
	if c.Device.Topic == "" {
		c.Device.Topic = "testtopic/mwtt"
	}
	if c.Device.PublishTopic == "" {
		c.Device.PublishTopic = c.Device.Topic
	}
	if c.Device.PublishTimeout == 0 {
		c.Device.PublishTimeout = 5 * time.Second
	}
	if c.Device.ConnectTimeout == 0 {
		c.Device.ConnectTimeout = 10 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "mysql"
	}
	if c.Store.Host == "" {
		c.Store.Host = "localhost"
	}
	if c.Store.Port == 0 {
		c.Store.Port = 3310
	}
	if c.Store.User == "" {
		c.Store.User = "root"
	}
	if c.Store.Database == "" {
		c.Store.Database = "michi_robot"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/michi.db"
	}
	if c.Store.RedisURL == "" {
		c.Store.RedisURL = "redis://localhost:6379/0"
	}
	if c.Store.Timeout == 0 {
		c.Store.Timeout = 2 * time.Second
	}
	if c.Intent.Threshold == 0 {
		c.Intent.Threshold = 85
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./audio"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Pushover.Title == "" {
		c.Pushover.Title = "Michi"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Device.Transport {
	case "mqtt", "nats", "loopback":
	default:
		errs = append(errs, fmt.Errorf("device.transport %q: want mqtt, nats or loopback", c.Device.Transport))
	}
	if c.Device.QoS < 0 || c.Device.QoS > 2 {
		errs = append(errs, fmt.Errorf("device.qos %d: want 0, 1 or 2", c.Device.QoS))
	}
	if c.Device.PublishTimeout < 0 {
		errs = append(errs, fmt.Errorf("device.publish_timeout must be positive"))
	}

	if c.HTTP.MaxAudioBytes < 0 || c.HTTP.MaxTextBytes < 0 {
		errs = append(errs, fmt.Errorf("http.max_audio_bytes and http.max_text_bytes must be positive"))
	}
	if c.Store.Timeout < 0 {
		errs = append(errs, fmt.Errorf("store.timeout must be positive"))
	}

	switch c.Store.Driver {
	case "mysql", "sqlite", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want mysql, sqlite, redis or none", c.Store.Driver))
	}

	if c.Intent.Threshold < 0 || c.Intent.Threshold > 100 {
		errs = append(errs, fmt.Errorf("intent.threshold %d: want 0..100", c.Intent.Threshold))
	}

	switch c.Audio.Source {
	case "", "file", "microphone":
	default:
		errs = append(errs, fmt.Errorf("audio.source %q: want file or microphone", c.Audio.Source))
	}

	if c.Pushover.Enabled && (c.Pushover.Token == "" || c.Pushover.UserKey == "") {
		errs = append(errs, fmt.Errorf("pushover.enabled needs token and user_key"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text, json or console", c.Log.Format))
	}

	return errors.Join(errs...)
}
