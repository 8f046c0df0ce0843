package gcs

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// ErrObjectNotExist is returned when a requested object is missing.
var ErrObjectNotExist = storage.ErrObjectNotExist

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Name    string
	Size    int64
	Updated time.Time
}

type GCSClient struct {
	client     *storage.Client
	bucketName string
}

func NewGCSClient(ctx context.Context, bucketName string) (*GCSClient, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %v", err)
	}

	return &GCSClient{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Upload writes content under objectPath, overwriting any existing object,
// and returns the public URL.
func (g *GCSClient) Upload(ctx context.Context, objectPath string, content io.Reader) (string, error) {
	obj := g.client.Bucket(g.bucketName).Object(objectPath)

	writer := obj.NewWriter(ctx)
	if _, err := io.Copy(writer, content); err != nil {
		return "", fmt.Errorf("failed to copy content: %v", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %v", err)
	}

	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucketName, objectPath), nil
}

// Download reads the full contents of objectPath along with its last-update time.
func (g *GCSClient) Download(ctx context.Context, objectPath string) ([]byte, time.Time, error) {
	obj := g.client.Bucket(g.bucketName).Object(objectPath)

	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}

	reader, err := obj.NewReader(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read object %s: %v", objectPath, err)
	}

	return data, attrs.Updated, nil
}

// DeleteObject removes objectPath from the bucket. Missing objects are not an error.
func (g *GCSClient) DeleteObject(ctx context.Context, objectPath string) error {
	obj := g.client.Bucket(g.bucketName).Object(objectPath)
	if err := obj.Delete(ctx); err != nil {
		if err == storage.ErrObjectNotExist {
			return nil
		}
		return fmt.Errorf("failed to delete object: %v", err)
	}
	return nil
}

// ListObjects returns info for every object under the given prefix.
func (g *GCSClient) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := g.client.Bucket(g.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %v", err)
		}
		objects = append(objects, ObjectInfo{
			Name:    attrs.Name,
			Size:    attrs.Size,
			Updated: attrs.Updated,
		})
	}

	return objects, nil
}

// Close closes the underlying storage client.
func (g *GCSClient) Close() error {
	return g.client.Close()
}
