package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"michi-relay/internal/application"
)

func TestTalkState_InitiallyNotReady(t *testing.T) {
	ts := application.NewTalkState(discardLogger())
	assert.False(t, ts.Ready())
}

func TestTalkState_ResetIsIdempotent(t *testing.T) {
	ts := application.NewTalkState(discardLogger())

	ts.Reset()
	ts.Reset()
	assert.False(t, ts.Ready())

	ts.MarkReady()
	assert.True(t, ts.Ready())
	ts.MarkReady()
	assert.True(t, ts.Ready())

	ts.Reset()
	assert.False(t, ts.Ready())
}

func TestTalkState_HandleDeviceMessage(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{name: "talk ack", payload: `{"response":"talk"}`, want: true},
		{name: "other command", payload: `{"response":"dance"}`, want: false},
		{name: "not json", payload: `done`, want: false},
		{name: "missing field", payload: `{"state":"talk"}`, want: false},
		{name: "wrong type", payload: `{"response":true}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := application.NewTalkState(discardLogger())
			ts.HandleDeviceMessage([]byte(tt.payload))
			assert.Equal(t, tt.want, ts.Ready())
		})
	}
}

func TestTalkState_MalformedDoesNotClearReady(t *testing.T) {
	ts := application.NewTalkState(discardLogger())
	ts.HandleDeviceMessage([]byte(`{"response":"talk"}`))
	ts.HandleDeviceMessage([]byte(`garbage`))
	ts.HandleDeviceMessage([]byte(`{"response":"sleep"}`))
	assert.True(t, ts.Ready())
}

func TestTalkState_Wait(t *testing.T) {
	ts := application.NewTalkState(discardLogger())

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- ts.Wait(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	ts.MarkReady()
	require.NoError(t, <-done)

	// Already ready: returns immediately.
	require.NoError(t, ts.Wait(context.Background()))
}

func TestTalkState_WaitTimesOutAfterReset(t *testing.T) {
	ts := application.NewTalkState(discardLogger())
	ts.MarkReady()
	ts.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ts.Wait(ctx), context.DeadlineExceeded)
}

func TestTalkState_ConcurrentAccess(t *testing.T) {
	ts := application.NewTalkState(discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); ts.Reset() }()
		go func() { defer wg.Done(); ts.HandleDeviceMessage([]byte(`{"response":"talk"}`)) }()
		go func() { defer wg.Done(); _ = ts.Ready() }()
	}
	wg.Wait()

	ts.Reset()
	assert.False(t, ts.Ready())
}
