// Package redisstore keeps a capped list of recent transcripts in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"michi-relay/internal/application"
	"michi-relay/internal/domain"
	"michi-relay/internal/infra"
)

const (
	DefaultKey    = "michi:transcripts"
	DefaultMaxLen = 1000
)

type Config struct {
	URL    string // e.g. redis://localhost:6379/0
	Key    string
	MaxLen int64
}

type Store struct {
	client *redis.Client
	key    string
	maxLen int64
	logger *slog.Logger
}

func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultMaxLen
	}

	client := redis.NewClient(opt)

	retry := infra.DefaultRetryConfig()
	retry.OnRetry = func(attempt int, err error) {
		logger.Warn("redis not ready", "attempt", attempt, "error", err)
	}
	err = infra.WithRetry(ctx, retry, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	logger.Info("transcript store ready", "driver", "redis", "key", cfg.Key)
	return &Store{client: client, key: cfg.Key, maxLen: cfg.MaxLen, logger: logger}, nil
}

// Record pushes the transcript to the head of the list and trims the tail.
func (s *Store) Record(ctx context.Context, text string, at time.Time) error {
	data, err := json.Marshal(application.Transcript{Text: text, CreatedAt: at.UTC()})
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: saving transcript to Redis: %v", domain.ErrPersistenceFailed, err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]application.Transcript, error) {
	if limit <= 0 {
		return nil, nil
	}

	items, err := s.client.LRange(ctx, s.key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: loading transcripts from Redis: %v", domain.ErrPersistenceFailed, err)
	}

	out := make([]application.Transcript, 0, len(items))
	for _, item := range items {
		var t application.Transcript
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			s.logger.Warn("skipping unreadable transcript", "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// ServerVersion reports the redis_version field of INFO server.
func (s *Store) ServerVersion(ctx context.Context) (string, error) {
	info, err := s.client.InfoMap(ctx, "server").Result()
	if err != nil {
		return "", fmt.Errorf("reading Redis info: %w", err)
	}
	if v := info["Server"]["redis_version"]; v != "" {
		return v, nil
	}
	return "unknown", nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
