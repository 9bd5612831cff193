// internal/storage/archive/interface.go
package archive

import (
	"context"
	"fmt"
)

// Storage is a flat key/blob store for reports and parameter documents.
// Paths are slash separated and relative to the backend root.
type Storage interface {
	// Write stores data at the given path, replacing any previous content
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path; missing paths yield core.ErrNotFound
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Options selects and configures a backend.
type Options struct {
	Type string // "localfs" or "s3"
	Path string // Root directory for localfs
	S3   S3Config
}

// Open builds the backend named by opts.Type.
func Open(opts Options) (Storage, error) {
	switch opts.Type {
	case "", "localfs":
		return NewLocalFS(opts.Path)
	case "s3":
		return NewS3(opts.S3)
	default:
		return nil, fmt.Errorf("unknown archive type %q", opts.Type)
	}
}
