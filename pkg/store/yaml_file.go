package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAMLFileKV keeps all values in a single YAML document on disk. Every write
// rewrites the document to a temporary file and renames it into place, so a
// crash leaves either the old or the new document.
type YAMLFileKV struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
	closed bool
}

func NewYAMLFileKV(path string) (*YAMLFileKV, error) {
	if path == "" {
		return nil, errors.New("yaml store: empty path")
	}
	ret := &YAMLFileKV{
		path:   path,
		values: map[string]string{},
	}
	if err := ret.loadFromDisk(); err != nil {
		return nil, errors.Wrapf(err, "could not load %s", path)
	}
	return ret, nil
}

var _ KV = (*YAMLFileKV)(nil)

func (y *YAMLFileKV) Get(_ context.Context, key string) (string, bool, error) {
	y.mu.RLock()
	defer y.mu.RUnlock()
	if y.closed {
		return "", false, ErrStoreClosed
	}
	v, ok := y.values[key]
	return v, ok, nil
}

func (y *YAMLFileKV) Set(_ context.Context, key string, value string) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return ErrStoreClosed
	}
	prev, existed := y.values[key]
	y.values[key] = value
	if err := y.persistLocked(); err != nil {
		// keep memory and disk in agreement
		if existed {
			y.values[key] = prev
		} else {
			delete(y.values, key)
		}
		return err
	}
	return nil
}

func (y *YAMLFileKV) Delete(_ context.Context, key string) error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.closed {
		return ErrStoreClosed
	}
	prev, existed := y.values[key]
	if !existed {
		return nil
	}
	delete(y.values, key)
	if err := y.persistLocked(); err != nil {
		y.values[key] = prev
		return err
	}
	return nil
}

func (y *YAMLFileKV) Keys(_ context.Context) ([]string, error) {
	y.mu.RLock()
	defer y.mu.RUnlock()
	if y.closed {
		return nil, ErrStoreClosed
	}
	return sortedKeys(y.values), nil
}

func (y *YAMLFileKV) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.closed = true
	return nil
}

func (y *YAMLFileKV) loadFromDisk() error {
	b, err := os.ReadFile(y.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(b, &values); err != nil {
		return err
	}
	if values != nil {
		y.values = values
	}
	return nil
}

func (y *YAMLFileKV) persistLocked() error {
	b, err := yaml.Marshal(y.values)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(y.path), 0o755); err != nil {
		return err
	}
	tmpPath := y.path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, y.path)
}
