package application

import (
	"context"
	"log/slog"
)

// Notifier alerts the operator when a command could not reach the robot.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}

// LogNotifier writes alerts to the service log when no push service is set up.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, message string) error {
	n.Logger.WarnContext(ctx, "operator alert", "message", message)
	return nil
}
