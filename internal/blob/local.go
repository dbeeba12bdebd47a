package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// Local stores blobs under a directory, one subdirectory per container.
type Local struct {
	basePath  string
	container string
}

// NewLocal creates a directory-backed store.
func NewLocal(basePath, container string) (*Local, error) {
	if basePath == "" {
		basePath = "blobs"
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("blob: resolve base path: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, container), 0o750); err != nil {
		return nil, fmt.Errorf("blob: create container directory: %w", err)
	}
	return &Local{basePath: abs, container: container}, nil
}

func (l *Local) path(name string) (string, error) {
	key, err := Key(l.container, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.basePath, filepath.FromSlash(key)), nil
}

// Open opens the file for name.
func (l *Local) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, 0, fmt.Errorf("blob: open: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("blob: stat: %w", err)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, fi.Size(), nil
}

// Put writes r to a temp file next to the target and renames it into place,
// so readers never see a partial blob.
func (l *Local) Put(_ context.Context, name string, r io.Reader) error {
	p, err := l.path(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("blob: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("blob: create file: %w", err)
	}
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blob: write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blob: rename: %w", err)
	}
	return nil
}

// URL returns a file:// URL for name.
func (l *Local) URL(name string) string {
	p, err := l.path(name)
	if err != nil {
		return ""
	}
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

// Container returns the container name.
func (l *Local) Container() string {
	return l.container
}

var _ Store = (*Local)(nil)
