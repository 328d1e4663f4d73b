package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var _ Store = (*FileSystem)(nil)

// FileSystem implements Store using the local filesystem. It is used for
// local development and for tests; production deployments use S3.
type FileSystem struct {
	basePath string
}

// NewFileSystem creates a new FileSystem object store rooted at basePath.
func NewFileSystem(basePath string) *FileSystem {
	return &FileSystem{basePath: basePath}
}

func (fs *FileSystem) Get(ctx context.Context, path string) (io.ReadCloser, bool, error) {
	return fs.GetStream(ctx, path, 0)
}

func (fs *FileSystem) GetStream(ctx context.Context, path string, offset int64) (io.ReadCloser, bool, error) {
	fullPath := filepath.Join(fs.basePath, path)
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fatalErr(fmt.Errorf("objectstore: open %s: %w", path, err))
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			file.Close()
			return nil, false, fatalErr(fmt.Errorf("objectstore: seek %s: %w", path, err))
		}
	}
	return file, true, nil
}

// Put writes r's bytes verbatim to path. opts.GzipEncoded only affects
// backends that expose a Content-Encoding header (S3); the caller is
// always responsible for gzip-compressing the bytes it passes in when
// GzipEncoded is set, so a local filesystem copy needs no special casing.
func (fs *FileSystem) Put(ctx context.Context, path string, r io.Reader, opts PutOptions) error {
	fullPath := filepath.Join(fs.basePath, path)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fatalErr(fmt.Errorf("objectstore: mkdir for %s: %w", path, err))
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fatalErr(fmt.Errorf("objectstore: create %s: %w", path, err))
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return retryableErr(fmt.Errorf("objectstore: write %s: %w", path, err))
	}
	return nil
}
