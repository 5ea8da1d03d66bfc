package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lakegate/internal/domain"
)

var _ Lister = (*S3Lister)(nil)

// S3Lister lists objects in S3 and S3-compatible stores. A configured
// endpoint switches the client to path-style addressing, which the
// S3-compatible providers require.
type S3Lister struct {
	client *s3.Client
}

// NewS3Lister creates an S3 lister from static credentials.
func NewS3Lister(creds Credentials) (*S3Lister, error) {
	if creds.S3KeyID == "" || creds.S3Secret == "" || creds.S3Region == "" {
		return nil, domain.ErrConfiguration("s3 source requires key id, secret, and region")
	}

	opts := s3.Options{
		Region: creds.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.S3KeyID, creds.S3Secret, "",
		),
	}
	if creds.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", creds.S3Endpoint))
		opts.UsePathStyle = true
	}

	return &S3Lister{client: s3.New(opts)}, nil
}

// List returns the objects below uri whose base name matches pattern.
func (l *S3Lister) List(ctx context.Context, uri, pattern string) ([]domain.SourceObject, error) {
	bucket, prefix, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []domain.SourceObject
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3 objects under %q: %w", uri, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !matchBase(pattern, key) {
				continue
			}
			objects = append(objects, domain.SourceObject{
				Key:  key,
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

// ParseS3URI extracts bucket and key prefix from an "s3://bucket/prefix"
// URI. The prefix may be empty; the bucket may not.
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 uri %q: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("expected s3:// scheme, got %q in %q", u.Scheme, uri)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("empty bucket in s3 uri %q", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}
