package audiocache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voicereply/voice-service/pkg/gcs"
)

// LocalBackend stores entries as flat files under a single directory.
type LocalBackend struct {
	dir string
}

// NewLocalBackend creates the directory if needed.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &LocalBackend{dir: dir}, nil
}

func (b *LocalBackend) Read(_ context.Context, key string) ([]byte, time.Time, error) {
	path := filepath.Join(b.dir, key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}

// Write goes through a temp file and rename so concurrent readers never see
// a partial entry.
func (b *LocalBackend) Write(_ context.Context, key string, data []byte) error {
	tmp := filepath.Join(b.dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(b.dir, key)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	return os.Remove(filepath.Join(b.dir, key))
}

func (b *LocalBackend) List(_ context.Context) ([]Entry, error) {
	dirents, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Key:     d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return entries, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, gcs.ErrObjectNotExist)
}
