package application_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"michi-relay/internal/application"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &application.LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	require.NoError(t, n.Notify(context.Background(), "dance command not delivered"))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `message="dance command not delivered"`)
}
