package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"lakegate/internal/domain"
)

var _ Lister = (*GCSLister)(nil)

// GCSLister lists objects in Google Cloud Storage.
type GCSLister struct {
	client *storage.Client
}

// NewGCSLister creates a GCS lister. With an empty key file it relies on
// Application Default Credentials.
func NewGCSLister(ctx context.Context, creds Credentials) (*GCSLister, error) {
	var opts []option.ClientOption
	if creds.GCSKeyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, creds.GCSKeyFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSLister{client: client}, nil
}

// List returns the objects below uri whose base name matches pattern.
func (l *GCSLister) List(ctx context.Context, uri, pattern string) ([]domain.SourceObject, error) {
	bucket, prefix, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	var query *storage.Query
	if prefix != "" {
		query = &storage.Query{Prefix: prefix}
	}

	var objects []domain.SourceObject
	it := l.client.Bucket(bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gcs objects under %q: %w", uri, err)
		}
		if !matchBase(pattern, attrs.Name) {
			continue
		}
		objects = append(objects, domain.SourceObject{Key: attrs.Name, Size: attrs.Size})
	}
	return objects, nil
}

// ParseGCSURI extracts bucket and key prefix from a "gs://bucket/prefix"
// URI. The prefix may be empty; the bucket may not.
func ParseGCSURI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse gcs uri %q: %w", uri, err)
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("expected gs:// scheme, got %q in %q", u.Scheme, uri)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("empty bucket in gcs uri %q", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
