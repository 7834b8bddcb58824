package application

import (
	"context"
	"log/slog"
	"sync"

	"michi-relay/internal/domain"
)

// TalkState tracks whether the robot has acknowledged the talk command.
// It is written from the device channel's delivery goroutine and from
// request handlers, so every access goes through mu.
type TalkState struct {
	mu     sync.Mutex
	ready  bool
	signal chan struct{} // closed while ready is true
	logger *slog.Logger
}

func NewTalkState(logger *slog.Logger) *TalkState {
	return &TalkState{
		signal: make(chan struct{}),
		logger: logger,
	}
}

// Reset clears the flag. Calling it repeatedly is harmless.
func (t *TalkState) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ready {
		t.ready = false
		t.signal = make(chan struct{})
	}
}

// MarkReady sets the flag and releases any Wait callers.
func (t *TalkState) MarkReady() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ready {
		t.ready = true
		close(t.signal)
	}
}

func (t *TalkState) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// Wait blocks until the flag is set or ctx is done.
func (t *TalkState) Wait(ctx context.Context) error {
	t.mu.Lock()
	signal := t.signal
	t.mu.Unlock()

	select {
	case <-signal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleDeviceMessage is the inbound handler for the device channel. Only a
// {"response":"talk"} payload marks the state ready; anything else, including
// malformed payloads, is ignored.
func (t *TalkState) HandleDeviceMessage(payload []byte) {
	isTalk, err := domain.IsTalkAck(payload)
	if err != nil {
		t.logger.Debug("ignoring device message", "payload", string(payload), "error", err)
		return
	}

	t.logger.Debug("received device message", "payload", string(payload))
	if isTalk {
		t.MarkReady()
	}
}
