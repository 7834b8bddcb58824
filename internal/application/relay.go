package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"michi-relay/internal/domain"
)

// Relay ties transcription, persistence and dispatch together for both the
// HTTP API and the local audio loop.
type Relay struct {
	stt         SpeechToText
	classifier  IntentClassifier
	dispatcher  *Dispatcher
	store       TranscriptStore
	notifier    Notifier
	logger      *slog.Logger
	requireWake bool
	storeWait   time.Duration
	now         func() time.Time
}

// DefaultStoreTimeout bounds a single transcript write.
const DefaultStoreTimeout = 2 * time.Second

type RelayOption func(*Relay)

// WithRequireWake makes Run drop clips until one passes the wake gate; the
// clip after it is then dispatched.
func WithRequireWake(require bool) RelayOption {
	return func(r *Relay) { r.requireWake = require }
}

// WithStoreTimeout bounds how long ProcessText waits on the transcript store.
func WithStoreTimeout(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.storeWait = d
		}
	}
}

func WithClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

func NewRelay(
	stt SpeechToText,
	classifier IntentClassifier,
	dispatcher *Dispatcher,
	store TranscriptStore,
	notifier Notifier,
	logger *slog.Logger,
	opts ...RelayOption,
) *Relay {
	r := &Relay{
		stt:        stt,
		classifier: classifier,
		dispatcher: dispatcher,
		store:      store,
		notifier:   notifier,
		logger:     logger,
		storeWait:  DefaultStoreTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type WakeResult struct {
	Transcript string
	Detected   bool
}

// DetectWake transcribes a short clip and checks it against the wake phrases.
func (r *Relay) DetectWake(ctx context.Context, audio []byte) (WakeResult, error) {
	text, err := r.transcribe(ctx, audio)
	if err != nil {
		return WakeResult{}, err
	}

	detected := r.classifier.IsWake(text)
	r.logger.Info("wake check", "transcript", text, "detected", detected)
	return WakeResult{Transcript: text, Detected: detected}, nil
}

// Process runs the full pipeline for one recorded clip.
func (r *Relay) Process(ctx context.Context, audio []byte) (domain.Outcome, error) {
	text, err := r.transcribe(ctx, audio)
	if err != nil {
		return domain.Outcome{}, err
	}
	return r.ProcessText(ctx, text)
}

// ProcessText dispatches an already transcribed command, then records it.
// The robot never waits on the store.
func (r *Relay) ProcessText(ctx context.Context, text string) (domain.Outcome, error) {
	at := r.now()
	outcome, err := r.dispatcher.Dispatch(ctx, text)
	r.record(ctx, text, at)

	if err != nil {
		notifyErr := r.notifier.Notify(ctx, fmt.Sprintf("Michi command %q not delivered: %s", outcome.Category, err.Error()))
		if notifyErr != nil {
			r.logger.Error("notifying error", "error", notifyErr)
		}
		return outcome, err
	}
	return outcome, nil
}

// Run consumes clips from a local audio source until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, source AudioSource) error {
	r.logger.Info("starting audio source", "source", source.Name())
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("starting audio: %w", err)
	}
	defer source.Stop()

	r.logger.Info("relay ready, listening for commands", "require_wake", r.requireWake)

	armed := !r.requireWake
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		next, err := r.processOneClip(ctx, source, armed)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("processing clip", "error", err)
		}
		armed = next
	}
}

// processOneClip returns whether the next clip should be dispatched.
func (r *Relay) processOneClip(ctx context.Context, source AudioSource, armed bool) (bool, error) {
	data, err := source.NextCommand(ctx)
	if err != nil {
		return armed, fmt.Errorf("getting audio: %w", err)
	}
	if len(data) == 0 {
		return armed, nil
	}

	text, isText := isTextCommand(data)
	if isText {
		r.logger.Info("received text command directly", "text", text)
	} else {
		r.logger.Info("received audio", "bytes", len(data))
		text, err = r.transcribe(ctx, data)
		if err != nil {
			return armed, err
		}
	}

	if !armed {
		if r.classifier.IsWake(text) {
			r.logger.Info("wake word detected", "transcript", text)
			return true, nil
		}
		r.logger.Debug("no wake word, dropping clip", "transcript", text)
		return false, nil
	}

	if _, err := r.ProcessText(ctx, text); err != nil {
		return !r.requireWake, err
	}
	return !r.requireWake, nil
}

func (r *Relay) transcribe(ctx context.Context, audio []byte) (string, error) {
	text, err := r.stt.Transcribe(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}
	text = strings.TrimSpace(text)
	r.logger.Info("transcribed", "text", text)
	return text, nil
}

// record outlives a cancelled request but not storeWait.
func (r *Relay) record(ctx context.Context, text string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.storeWait)
	defer cancel()

	if err := r.store.Record(ctx, text, at); err != nil {
		r.logger.Warn("transcript not persisted", "error", errors.Join(domain.ErrPersistenceFailed, err))
	}
}

// Transcripts lists recently recorded transcripts, newest first.
func (r *Relay) Transcripts(ctx context.Context, limit int) ([]Transcript, error) {
	return r.store.Recent(ctx, limit)
}

// TalkState exposes the coordinator shared with the device channel.
func (r *Relay) TalkState() *TalkState {
	return r.dispatcher.TalkState()
}

func isTextCommand(data []byte) (string, bool) {
	if len(data) > len(domain.TextCommandPrefix) && string(data[:len(domain.TextCommandPrefix)]) == domain.TextCommandPrefix {
		return string(data[len(domain.TextCommandPrefix):]), true
	}
	return "", false
}
