package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"michi-relay/internal/domain"
)

var audioExts = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".webm": true,
}

// FileSource watches a directory for dropped clips. Audio files are returned
// as is; .txt files become text commands. Picked files are renamed with a
// .processed suffix.
type FileSource struct {
	dir      string
	interval time.Duration
	logger   *slog.Logger
	mu       sync.Mutex
}

func NewFileSource(dir string, logger *slog.Logger) *FileSource {
	return &FileSource{
		dir:      dir,
		interval: 500 * time.Millisecond,
		logger:   logger,
	}
}

// WithInterval sets the polling interval.
func (f *FileSource) WithInterval(d time.Duration) *FileSource {
	f.interval = d
	return f
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Start(_ context.Context) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("creating audio dir: %w", err)
	}
	f.logger.Info("watching directory for clips", "dir", f.dir)
	return nil
}

func (f *FileSource) Stop() error {
	return nil
}

func (f *FileSource) NextCommand(ctx context.Context) ([]byte, error) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		clip, err := f.checkForNewFile()
		if err != nil {
			return nil, err
		}
		if clip != nil {
			return clip, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (f *FileSource) checkForNewFile() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("reading dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".txt" && !audioExts[ext] {
			continue
		}

		path := filepath.Join(f.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", path, err)
		}

		if err := os.Rename(path, path+".processed"); err != nil {
			return nil, fmt.Errorf("marking %s processed: %w", path, err)
		}

		if ext == ".txt" {
			text := strings.TrimSpace(string(data))
			if text == "" {
				f.logger.Warn("skipping empty text command", "file", name)
				continue
			}
			f.logger.Info("picked up text command", "file", name)
			return []byte(domain.TextCommandPrefix + text), nil
		}

		f.logger.Info("picked up clip", "file", name, "bytes", len(data))
		return data, nil
	}

	return nil, nil
}
