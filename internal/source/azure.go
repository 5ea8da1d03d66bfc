package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"lakegate/internal/domain"
)

var _ Lister = (*AzureLister)(nil)

// AzureLister lists blobs in Azure Blob Storage using shared-key
// credentials.
type AzureLister struct {
	client *azblob.Client
}

// NewAzureLister creates an Azure blob lister from a storage account
// name and shared key.
func NewAzureLister(creds Credentials) (*AzureLister, error) {
	if creds.AzureAccount == "" || creds.AzureKey == "" {
		return nil, domain.ErrConfiguration("azure source requires storage account name and key")
	}

	sharedKey, err := azblob.NewSharedKeyCredential(creds.AzureAccount, creds.AzureKey)
	if err != nil {
		return nil, fmt.Errorf("create shared key credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", creds.AzureAccount)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, sharedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create Azure blob client: %w", err)
	}

	return &AzureLister{client: client}, nil
}

// List returns the blobs below uri whose base name matches pattern.
func (l *AzureLister) List(ctx context.Context, uri, pattern string) ([]domain.SourceObject, error) {
	container, prefix, err := ParseAzureURI(uri)
	if err != nil {
		return nil, err
	}

	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	var objects []domain.SourceObject
	pager := l.client.NewListBlobsFlatPager(container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list azure blobs under %q: %w", uri, err)
		}
		if page.Segment == nil {
			continue
		}
		for _, blob := range page.Segment.BlobItems {
			if blob == nil || blob.Name == nil {
				continue
			}
			if !matchBase(pattern, *blob.Name) {
				continue
			}
			var size int64
			if blob.Properties != nil && blob.Properties.ContentLength != nil {
				size = *blob.Properties.ContentLength
			}
			objects = append(objects, domain.SourceObject{Key: *blob.Name, Size: size})
		}
	}
	return objects, nil
}

// ParseAzureURI extracts container and key prefix from an Azure storage
// URI. The prefix may be empty.
//
// Supported formats:
//
//	abfss://container@account.dfs.core.windows.net/prefix
//	az://container/prefix
//	https://account.blob.core.windows.net/container/prefix
func ParseAzureURI(uri string) (container, prefix string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parse azure uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case "abfss":
		// url.Parse reads "container" as userinfo and the account host
		// as host.
		if u.User == nil {
			return "", "", fmt.Errorf("abfss uri %q missing container@account component", uri)
		}
		container = u.User.Username()
		prefix = strings.TrimPrefix(u.Path, "/")

	case "az":
		container = u.Host
		prefix = strings.TrimPrefix(u.Path, "/")

	case "https":
		if !strings.Contains(u.Host, ".blob.core.windows.net") {
			return "", "", fmt.Errorf("unrecognized azure https host %q in %q", u.Host, uri)
		}
		trimmed := strings.TrimPrefix(u.Path, "/")
		parts := strings.SplitN(trimmed, "/", 2)
		container = parts[0]
		if len(parts) > 1 {
			prefix = parts[1]
		}

	default:
		return "", "", fmt.Errorf("unrecognized azure uri scheme %q in %q", u.Scheme, uri)
	}

	if container == "" {
		return "", "", fmt.Errorf("empty container in azure uri %q", uri)
	}
	return container, prefix, nil
}
