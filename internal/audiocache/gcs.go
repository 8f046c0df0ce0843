package audiocache

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/voicereply/voice-service/pkg/gcs"
)

// objectClient is the slice of pkg/gcs the backend uses.
type objectClient interface {
	Upload(ctx context.Context, objectPath string, content io.Reader) (string, error)
	Download(ctx context.Context, objectPath string) ([]byte, time.Time, error)
	DeleteObject(ctx context.Context, objectPath string) error
	ListObjects(ctx context.Context, prefix string) ([]gcs.ObjectInfo, error)
}

// GCSBackend stores entries as objects under a fixed prefix in a bucket.
type GCSBackend struct {
	client objectClient
	prefix string
}

// NewGCSBackend wraps an existing bucket client. Prefix may be empty.
func NewGCSBackend(client *gcs.GCSClient, prefix string) *GCSBackend {
	if prefix != "" && prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	return &GCSBackend{client: client, prefix: prefix}
}

func (b *GCSBackend) Read(ctx context.Context, key string) ([]byte, time.Time, error) {
	return b.client.Download(ctx, b.prefix+key)
}

func (b *GCSBackend) Write(ctx context.Context, key string, data []byte) error {
	_, err := b.client.Upload(ctx, b.prefix+key, bytes.NewReader(data))
	return err
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	return b.client.DeleteObject(ctx, b.prefix+key)
}

func (b *GCSBackend) List(ctx context.Context) ([]Entry, error) {
	objects, err := b.client.ListObjects(ctx, b.prefix)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		entries = append(entries, Entry{
			Key:     obj.Name[len(b.prefix):],
			Size:    obj.Size,
			ModTime: obj.Updated,
		})
	}
	return entries, nil
}
