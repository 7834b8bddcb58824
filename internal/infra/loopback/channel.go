// Package loopback provides an in-process device channel. Every published
// command is delivered back to the subscriber, which mirrors the shared
// publish/subscribe topic of the real deployment. Useful when no broker or
// robot is around.
package loopback

import (
	"context"
	"log/slog"
	"sync"

	"michi-relay/internal/domain"
)

type Channel struct {
	logger *slog.Logger

	handlerMu sync.RWMutex
	handler   func([]byte)

	// sendMu is read-locked around every send so Close cannot close queue
	// under a sender. mu guards history and closed and is never held while
	// sending.
	sendMu   sync.RWMutex
	queue    chan []byte
	stopping chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	history [][]byte
	closed  bool
}

func NewChannel(logger *slog.Logger) *Channel {
	c := &Channel{
		logger:   logger,
		queue:    make(chan []byte, 64),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.deliver()
	return c
}

// deliver runs handlers on a separate goroutine, like a network client would.
func (c *Channel) deliver() {
	defer close(c.done)
	for payload := range c.queue {
		c.handlerMu.RLock()
		handler := c.handler
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(payload)
		}
	}
}

func (c *Channel) Subscribe(handler func(payload []byte)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handler = handler
}

func (c *Channel) Publish(ctx context.Context, cmd domain.DeviceCommand) error {
	payload, err := cmd.Encode()
	if err != nil {
		return err
	}

	if !c.send(ctx.Done(), payload) {
		return domain.ErrChannelUnavailable
	}

	c.mu.Lock()
	c.history = append(c.history, payload)
	c.mu.Unlock()
	c.logger.Debug("loopback publish", "payload", string(payload))
	return nil
}

// Inject delivers payload to the subscriber as if the robot had sent it.
func (c *Channel) Inject(payload []byte) {
	c.send(nil, payload)
}

// send queues payload unless the channel is closing or cancel fires first.
func (c *Channel) send(cancel <-chan struct{}, payload []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	select {
	case <-c.stopping:
		return false
	default:
	}

	select {
	case c.queue <- payload:
		return true
	case <-c.stopping:
		return false
	case <-cancel:
		return false
	}
}

// Published returns every payload published so far.
func (c *Channel) Published() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.history))
	copy(out, c.history)
	return out
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stopping)
	c.mu.Unlock()

	c.sendMu.Lock()
	close(c.queue)
	c.sendMu.Unlock()

	<-c.done
	return nil
}
