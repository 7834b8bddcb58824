package audio_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"michi-relay/internal/domain"
	"michi-relay/internal/infra/audio"
)

func newSource(t *testing.T) (*audio.FileSource, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "clips")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	source := audio.NewFileSource(dir, logger).WithInterval(10 * time.Millisecond)
	require.NoError(t, source.Start(context.Background()))
	t.Cleanup(func() { source.Stop() })
	return source, dir
}

func TestFileSource_AudioAndText(t *testing.T) {
	source, dir := newSource(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "01.wav"), []byte("RIFFfake"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02.txt"), []byte("  robot tidur\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	first, err := source.NextCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, "RIFFfake", string(first))

	second, err := source.NextCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TextCommandPrefix+"robot tidur", string(second))

	assert.FileExists(t, filepath.Join(dir, "01.wav.processed"))
	assert.FileExists(t, filepath.Join(dir, "02.txt.processed"))
	assert.FileExists(t, filepath.Join(dir, "notes.md"))
}

func TestFileSource_WaitsForFile(t *testing.T) {
	source, dir := newSource(t)

	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "late.mp3"), []byte("ID3"), 0o644)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	clip, err := source.NextCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(clip))
}

func TestFileSource_ContextCancelled(t *testing.T) {
	source, _ := newSource(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := source.NextCommand(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFileSource_SkipsEmptyText(t *testing.T) {
	source, dir := newSource(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("   "), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("ayo menari"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	clip, err := source.NextCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TextCommandPrefix+"ayo menari", string(clip))
	assert.Equal(t, "file", source.Name())
}
