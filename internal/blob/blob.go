// Package blob reads and writes audio files in the monitored container.
// Objects are addressed by container and name; the key is "container/name".
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Providers.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

// Errors for blob lookups.
var (
	ErrNotFound    = errors.New("blob: not found")
	ErrInvalidName = errors.New("blob: invalid name")
)

// Store is a blob container.
type Store interface {
	// Open returns the object body and its size. The caller closes the body.
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
	// Put writes r under name.
	Put(ctx context.Context, name string, r io.Reader) error
	// URL returns a locator for name.
	URL(name string) string
	// Container returns the container this store serves.
	Container() string
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	Container string

	// local
	LocalDir string

	// s3
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// New creates the store for cfg.Provider.
func New(ctx context.Context, cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.Container) == "" {
		return nil, errors.New("blob: container is required")
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderLocal, "":
		return NewLocal(cfg.LocalDir, cfg.Container)
	case ProviderS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("blob: unknown provider %q", cfg.Provider)
	}
}

// Key joins container and name into an object key.
func Key(container, name string) (string, error) {
	name = strings.TrimLeft(name, "/")
	if name == "" || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return strings.Trim(container, "/") + "/" + name, nil
}
