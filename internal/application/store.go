package application

import (
	"context"
	"time"
)

type Transcript struct {
	Text      string    `json:"transcript"`
	CreatedAt time.Time `json:"created_at"`
}

// TranscriptStore persists transcripts for later review. Failures never block
// command dispatch.
type TranscriptStore interface {
	Record(ctx context.Context, text string, at time.Time) error
	Recent(ctx context.Context, limit int) ([]Transcript, error)
}

type NoopStore struct{}

func (n *NoopStore) Record(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (n *NoopStore) Recent(_ context.Context, _ int) ([]Transcript, error) {
	return nil, nil
}
