package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"michi-relay/internal/domain"
)

type Config struct {
	URL            string
	Name           string
	PublishSubject string
	Subject        string
	Timeout        time.Duration
}

// Channel is the NATS device channel, for controllers bridged through a NATS
// server (which can also terminate MQTT clients).
type Channel struct {
	cfg    Config
	conn   *natsgo.Conn
	sub    *natsgo.Subscription
	logger *slog.Logger

	mu      sync.RWMutex
	handler func([]byte)
}

func NewChannel(cfg Config, logger *slog.Logger) *Channel {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Channel{cfg: cfg, logger: logger}
}

// Connect dials the server. With RetryOnFailedConnect the call returns even
// when the server is down and the client keeps reconnecting forever.
func (c *Channel) Connect(_ context.Context) error {
	conn, err := natsgo.Connect(c.cfg.URL,
		natsgo.Name(c.cfg.Name),
		natsgo.Timeout(c.cfg.Timeout),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.MaxReconnects(-1),
		natsgo.RetryOnFailedConnect(true),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS %s: %w", c.cfg.URL, err)
	}
	c.conn = conn

	sub, err := conn.Subscribe(c.cfg.Subject, c.onMessage)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribing to %s: %w", c.cfg.Subject, err)
	}
	c.sub = sub

	c.logger.Info("NATS device channel ready", "url", c.cfg.URL, "subject", c.cfg.Subject)
	return nil
}

func (c *Channel) onMessage(msg *natsgo.Msg) {
	c.logger.Debug("received NATS message", "subject", msg.Subject, "payload", string(msg.Data))

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(msg.Data)
	}
}

func (c *Channel) Subscribe(handler func(payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Channel) Publish(ctx context.Context, cmd domain.DeviceCommand) error {
	if !c.Connected() {
		return fmt.Errorf("%w: not connected to %s", domain.ErrChannelUnavailable, c.cfg.URL)
	}

	payload, err := cmd.Encode()
	if err != nil {
		return err
	}

	if err := c.conn.Publish(c.cfg.PublishSubject, payload); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
	}
	// FlushWithContext refuses contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if err := c.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flushing: %v", domain.ErrChannelUnavailable, err)
	}

	c.logger.Debug("published NATS message", "subject", c.cfg.PublishSubject, "payload", string(payload))
	return nil
}

func (c *Channel) Connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

func (c *Channel) Close() error {
	if c.sub != nil {
		if err := c.sub.Unsubscribe(); err != nil {
			c.logger.Warn("unsubscribing", "error", err)
		}
	}
	if c.conn != nil {
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
	return nil
}
