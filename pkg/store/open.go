package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	BackendMemory = "memory"
	BackendYAML   = "yaml"
	BackendSQLite = "sqlite"
)

// DefaultPath returns the default location of the store file for a backend.
func DefaultPath(backend string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	switch backend {
	case BackendYAML:
		return filepath.Join(dir, "quill", "conversations.yaml"), nil
	case BackendSQLite:
		return filepath.Join(dir, "quill", "conversations.db"), nil
	default:
		return "", nil
	}
}

// OpenKV opens the KV backend named by backend. An empty path selects the
// default location.
func OpenKV(ctx context.Context, backend string, path string) (KV, error) {
	if backend != BackendMemory && path == "" {
		p, err := DefaultPath(backend)
		if err != nil {
			return nil, errors.Wrap(err, "could not determine store path")
		}
		path = p
	}

	switch backend {
	case BackendMemory:
		return NewMemoryKV(), nil
	case BackendYAML:
		return NewYAMLFileKV(path)
	case BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn, err := SQLiteDSNForFile(path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteKV(ctx, dsn)
	default:
		return nil, errors.Errorf("unknown store backend %q", backend)
	}
}
