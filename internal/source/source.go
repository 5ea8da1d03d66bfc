// Package source discovers raw objects below a lake source URI. The
// coordinator uses it as a write-phase preflight: an empty inventory
// fails the run before any branch work happens.
package source

import (
	"context"
	"path"
	"strings"
	"sync"

	"lakegate/internal/domain"
)

// Lister lists the objects below one URI scheme.
type Lister interface {
	List(ctx context.Context, uri, pattern string) ([]domain.SourceObject, error)
}

// Credentials carries the object-store credentials the schemed listers
// need. Unset fields disable the corresponding scheme.
type Credentials struct {
	S3KeyID    string
	S3Secret   string
	S3Endpoint string // endpoint host for S3-compatible stores; empty targets AWS proper
	S3Region   string

	AzureAccount string
	AzureKey     string

	GCSKeyFile string // empty falls back to Application Default Credentials
}

// Compile-time check.
var _ domain.SourceInventory = (*Resolver)(nil)

// Resolver dispatches List calls to a scheme-specific lister. Listers
// are constructed lazily so credentials are only required for schemes
// that are actually used.
type Resolver struct {
	creds Credentials

	mu      sync.Mutex
	listers map[string]Lister
}

// NewResolver creates a Resolver over the given credentials.
func NewResolver(creds Credentials) *Resolver {
	return &Resolver{
		creds:   creds,
		listers: make(map[string]Lister),
	}
}

// List returns the objects below uri whose base name matches pattern.
// An empty pattern matches every object.
func (r *Resolver) List(ctx context.Context, uri, pattern string) ([]domain.SourceObject, error) {
	if pattern != "" {
		if _, err := path.Match(pattern, "probe"); err != nil {
			return nil, domain.ErrValidation("invalid source pattern %q", pattern)
		}
	}

	lister, err := r.lister(ctx, Scheme(uri))
	if err != nil {
		return nil, err
	}
	return lister.List(ctx, uri, pattern)
}

func (r *Resolver) lister(ctx context.Context, scheme string) (Lister, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.listers[scheme]; ok {
		return l, nil
	}

	var (
		l   Lister
		err error
	)
	switch scheme {
	case "s3":
		l, err = NewS3Lister(r.creds)
	case "az", "abfss":
		l, err = NewAzureLister(r.creds)
	case "gs":
		l, err = NewGCSLister(ctx, r.creds)
	case "file", "":
		l = NewFileLister()
	default:
		return nil, domain.ErrValidation("unsupported source scheme %q", scheme)
	}
	if err != nil {
		return nil, err
	}

	r.listers[scheme] = l
	return l, nil
}

// Scheme extracts the URI scheme; a bare path yields "".
func Scheme(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return strings.ToLower(uri[:i])
	}
	return ""
}

// matchBase reports whether the object's base name matches the glob
// pattern. Directory placeholder keys (trailing slash) never match.
func matchBase(pattern, key string) bool {
	if strings.HasSuffix(key, "/") {
		return false
	}
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, path.Base(key))
	return err == nil && ok
}
