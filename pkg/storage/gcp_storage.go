package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GCPStorage struct {
	client    *storage.Client
	bucket    string
	cdnDomain string
}

func NewGCPStorage(ctx context.Context, projectID, bucket, credentialsFile, cdnDomain string) (*GCPStorage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage: gcs bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if projectID != "" {
		opts = append(opts, option.WithQuotaProject(projectID))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP storage client: %w", err)
	}

	return &GCPStorage{client: client, bucket: bucket, cdnDomain: cdnDomain}, nil
}

func (g *GCPStorage) Upload(ctx context.Context, request *UploadRequest) (*UploadResponse, error) {
	// DoesNotExist keeps a retried upload from replacing stored evidence.
	object := g.client.Bucket(g.bucket).Object(request.Key).If(storage.Conditions{DoesNotExist: true})

	w := object.NewWriter(ctx)
	w.ContentType = request.ContentType
	w.CacheControl = "private, no-store"
	w.Metadata = request.Metadata

	size, err := io.Copy(w, request.Reader)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write %s to GCP storage: %w", request.Key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize %s in GCP storage: %w", request.Key, err)
	}

	return &UploadResponse{
		Key:  request.Key,
		URL:  g.generateURL(request.Key),
		Size: size,
		ETag: w.Attrs().Etag,
	}, nil
}

func (g *GCPStorage) ListFiles(ctx context.Context, prefix string) ([]*FileInfo, error) {
	var files []*FileInfo

	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s in GCP storage: %w", prefix, err)
		}
		files = append(files, &FileInfo{
			Key:          attrs.Name,
			Size:         attrs.Size,
			ContentType:  attrs.ContentType,
			LastModified: attrs.Updated,
			URL:          g.generateURL(attrs.Name),
		})
	}
}

func (g *GCPStorage) Close() error {
	return g.client.Close()
}

func (g *GCPStorage) generateURL(key string) string {
	if g.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", g.cdnDomain, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key)
}
