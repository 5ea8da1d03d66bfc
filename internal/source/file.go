package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lakegate/internal/domain"
)

var _ Lister = (*FileLister)(nil)

// FileLister lists files on the local filesystem. It serves development
// runs against the embedded store, where the "lake" is a directory of
// parquet files.
type FileLister struct{}

// NewFileLister creates a local filesystem lister.
func NewFileLister() *FileLister {
	return &FileLister{}
}

// List walks the directory at uri (a "file://" URI or bare path) and
// returns the files whose base name matches pattern.
func (l *FileLister) List(ctx context.Context, uri, pattern string) ([]domain.SourceObject, error) {
	root := strings.TrimPrefix(uri, "file://")
	if root == "" {
		return nil, domain.ErrValidation("empty file source path")
	}
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("stat source path %q: %w", root, err)
	}

	var objects []domain.SourceObject
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		if !matchBase(pattern, filepath.ToSlash(p)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, domain.SourceObject{
			Key:  filepath.ToSlash(p),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source path %q: %w", root, err)
	}
	return objects, nil
}
