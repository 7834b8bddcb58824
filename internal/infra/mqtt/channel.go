package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"michi-relay/internal/domain"
)

type Config struct {
	Broker         string // e.g. tcp://broker.emqx.io:1883
	ClientID       string
	Username       string
	Password       string
	PublishTopic   string
	SubscribeTopic string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// Channel is the MQTT device channel. Reconnects are left to paho's
// auto-reconnect; the subscription is re-established on every connect.
type Channel struct {
	cfg    Config
	client paho.Client
	logger *slog.Logger

	mu      sync.RWMutex
	handler func([]byte)
}

func NewChannel(cfg Config, logger *slog.Logger) *Channel {
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	c := &Channel{cfg: cfg, logger: logger}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
			logger.Info("reconnecting to MQTT broker", "broker", cfg.Broker)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	return c
}

// Connect starts connecting in the background. It waits at most
// ConnectTimeout for the first connection and never fails because the
// broker is unreachable; paho keeps retrying.
func (c *Channel) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connecting to MQTT broker %s: %w", c.cfg.Broker, err)
		}
	case <-time.After(c.cfg.ConnectTimeout):
		c.logger.Warn("MQTT broker not reachable yet, retrying in background", "broker", c.cfg.Broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *Channel) onConnect(client paho.Client) {
	c.logger.Info("connected to MQTT broker", "broker", c.cfg.Broker)

	token := client.Subscribe(c.cfg.SubscribeTopic, c.cfg.QoS, c.onMessage)
	go func() {
		if !token.WaitTimeout(c.cfg.ConnectTimeout) {
			c.logger.Error("subscribing timed out", "topic", c.cfg.SubscribeTopic)
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Error("subscribing", "topic", c.cfg.SubscribeTopic, "error", err)
			return
		}
		c.logger.Info("subscribed", "topic", c.cfg.SubscribeTopic)
	}()
}

func (c *Channel) onConnectionLost(_ paho.Client, err error) {
	c.logger.Warn("MQTT connection lost", "broker", c.cfg.Broker, "error", err)
}

func (c *Channel) onMessage(_ paho.Client, msg paho.Message) {
	c.logger.Debug("received MQTT message", "topic", msg.Topic(), "payload", string(msg.Payload()))

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(msg.Payload())
	}
}

func (c *Channel) Subscribe(handler func(payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Channel) Publish(ctx context.Context, cmd domain.DeviceCommand) error {
	if !c.client.IsConnectionOpen() {
		return fmt.Errorf("%w: not connected to %s", domain.ErrChannelUnavailable, c.cfg.Broker)
	}

	payload, err := cmd.Encode()
	if err != nil {
		return err
	}

	token := c.client.Publish(c.cfg.PublishTopic, c.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, ctx.Err())
	}

	c.logger.Debug("published MQTT message", "topic", c.cfg.PublishTopic, "payload", string(payload))
	return nil
}

func (c *Channel) Connected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Channel) Close() error {
	c.client.Disconnect(250)
	c.logger.Info("MQTT connection closed")
	return nil
}
