package application

import (
	"context"

	"michi-relay/internal/domain"
)

// DeviceChannel is the publish/subscribe link to the robot controller.
// Publish returns domain.ErrChannelUnavailable when the broker connection is
// down. Handlers registered with Subscribe run on the transport's goroutine
// and may observe commands this process published itself.
type DeviceChannel interface {
	Publish(ctx context.Context, cmd domain.DeviceCommand) error
	Subscribe(handler func(payload []byte))
	Connected() bool
	Close() error
}
