package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"michi-relay/internal/domain"
)

const DefaultPublishTimeout = 5 * time.Second

// Dispatcher runs one command cycle: reset the talk state, classify the
// transcript and publish exactly one command for the result.
type Dispatcher struct {
	classifier     IntentClassifier
	channel        DeviceChannel
	talk           *TalkState
	publishTimeout time.Duration
	logger         *slog.Logger
}

func NewDispatcher(
	classifier IntentClassifier,
	channel DeviceChannel,
	talk *TalkState,
	publishTimeout time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	if publishTimeout <= 0 {
		publishTimeout = DefaultPublishTimeout
	}
	return &Dispatcher{
		classifier:     classifier,
		channel:        channel,
		talk:           talk,
		publishTimeout: publishTimeout,
		logger:         logger,
	}
}

// Dispatch always returns the classification outcome. The error is non-nil
// only when the command could not be published, and then wraps
// domain.ErrChannelUnavailable.
func (d *Dispatcher) Dispatch(ctx context.Context, transcript string) (domain.Outcome, error) {
	d.talk.Reset()

	category := d.classifier.Classify(transcript)
	outcome := domain.Outcome{Transcript: transcript, Category: category}

	cmd := domain.NewDeviceCommand(category)

	pubCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()

	if err := d.channel.Publish(pubCtx, cmd); err != nil {
		if !errors.Is(err, domain.ErrChannelUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrChannelUnavailable, err)
		}
		d.logger.Error("publishing command", "category", category, "error", err)
		return outcome, fmt.Errorf("publishing %s command: %w", category, err)
	}

	d.logger.Info("sent device command", "category", category, "transcript", transcript)
	return outcome, nil
}

// TalkState exposes the coordinator shared with the inbound handler.
func (d *Dispatcher) TalkState() *TalkState {
	return d.talk
}
