package audiocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	// MaxAge is how long a cached entry stays valid.
	MaxAge = 24 * time.Hour
	// MaxTotalBytes caps the aggregate store size.
	MaxTotalBytes = 100 * 1024 * 1024
)

// Entry describes one stored object.
type Entry struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Backend is the filesystem/object-store capability the cache is built on.
// Write must overwrite atomically; Read returns the payload and its
// last-modified time.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, time.Time, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]Entry, error)
}

// IOError wraps a backend failure. Callers treat it as a cache miss.
type IOError struct {
	Op  string
	Key string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Stats summarizes the cache contents.
type Stats struct {
	Count       int     `json:"count"`
	TotalSizeMB float64 `json:"total_size_mb"`
}

// Cache is a content-addressed audio store keyed by (text, style).
type Cache struct {
	backend Backend
	now     func() time.Time
}

// New creates a cache over the given backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, now: time.Now}
}

// Key derives the deterministic content key for a (text, style) pair.
// Identical pairs always share one entry; the truncated hash makes that the
// intended behavior rather than a collision concern.
func Key(text, styleKey string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text) + ":" + styleKey))
	return hex.EncodeToString(sum[:])[:16] + ".mp3"
}

// Get returns the cached audio for the pair, or nil on a miss. Entries older
// than MaxAge are deleted on read and reported as a miss.
func (c *Cache) Get(ctx context.Context, text, styleKey string) ([]byte, error) {
	key := Key(text, styleKey)

	data, modTime, err := c.backend.Read(ctx, key)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Op: "read", Key: key, Err: err}
	}

	if c.now().Sub(modTime) > MaxAge {
		if err := c.backend.Delete(ctx, key); err != nil && !isNotExist(err) {
			logger.Base().Warn("Failed to delete expired cache entry",
				zap.String("key", key), zap.Error(err))
		}
		return nil, nil
	}

	return data, nil
}

// Put stores audio under the pair's key, overwriting any existing entry.
func (c *Cache) Put(ctx context.Context, text, styleKey string, audio []byte) error {
	key := Key(text, styleKey)
	if err := c.backend.Write(ctx, key, audio); err != nil {
		return &IOError{Op: "write", Key: key, Err: err}
	}
	return nil
}

// PurgeExpired deletes every entry older than MaxAge and returns how many
// were removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	entries, err := c.backend.List(ctx)
	if err != nil {
		return 0, &IOError{Op: "list", Key: "", Err: err}
	}

	cutoff := c.now().Add(-MaxAge)
	removed := 0
	for _, entry := range entries {
		if entry.ModTime.Before(cutoff) {
			if err := c.backend.Delete(ctx, entry.Key); err != nil && !isNotExist(err) {
				continue
			}
			removed++
		}
	}

	return removed, nil
}

// EnforceSizeCap deletes entries oldest-first until the aggregate size is
// back under MaxTotalBytes, returning how many were removed.
func (c *Cache) EnforceSizeCap(ctx context.Context) (int, error) {
	entries, err := c.backend.List(ctx)
	if err != nil {
		return 0, &IOError{Op: "list", Key: "", Err: err}
	}

	var total int64
	for _, entry := range entries {
		total += entry.Size
	}
	if total <= MaxTotalBytes {
		return 0, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.Before(entries[j].ModTime)
	})

	removed := 0
	for _, entry := range entries {
		if total <= MaxTotalBytes {
			break
		}
		if err := c.backend.Delete(ctx, entry.Key); err != nil && !isNotExist(err) {
			continue
		}
		total -= entry.Size
		removed++
	}

	return removed, nil
}

// Stats reports the entry count and aggregate size.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	entries, err := c.backend.List(ctx)
	if err != nil {
		return Stats{}, &IOError{Op: "list", Key: "", Err: err}
	}

	var total int64
	for _, entry := range entries {
		total += entry.Size
	}

	return Stats{
		Count:       len(entries),
		TotalSizeMB: math.Round(float64(total)/(1024*1024)*100) / 100,
	}, nil
}
