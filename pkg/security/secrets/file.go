package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileDebounce coalesces the burst of events a secret rotation produces.
const fileDebounce = 100 * time.Millisecond

// FileProvider reads one secret per file from a directory, the layout used
// by mounted Kubernetes secrets. Files must be 0600 or 0400.
type FileProvider struct {
	Dir string
}

// NewFileProvider creates a provider for dir, which must exist.
func NewFileProvider(dir string) (*FileProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", dir)
	}
	return &FileProvider{Dir: dir}, nil
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Lookup reads the file called name. Surrounding whitespace is trimmed.
func (p *FileProvider) Lookup(ctx context.Context, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid secret name %q", name)
	}

	path := filepath.Join(p.Dir, name)
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: no file %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm != 0600 && perm != 0400 {
		return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, perm)
	}

	// #nosec G304 - name is a single path element inside Dir
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Watch calls onChange whenever a file in the directory is written,
// created, renamed or removed.
func (p *FileProvider) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(p.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", p.Dir, err)
	}
	slog.Debug("watching secrets directory", "path", p.Dir)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			pending = time.After(fileDebounce)

		case <-pending:
			pending = nil
			slog.Info("secrets directory changed", "path", p.Dir)
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			slog.Error("secrets watcher error", "error", err)
		}
	}
}
