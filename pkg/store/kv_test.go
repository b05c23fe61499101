package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kvBackends(t *testing.T) map[string]func() KV {
	t.Helper()
	dir := t.TempDir()
	return map[string]func() KV{
		"memory": func() KV { return NewMemoryKV() },
		"yaml": func() KV {
			kv, err := NewYAMLFileKV(filepath.Join(dir, "kv.yaml"))
			require.NoError(t, err)
			return kv
		},
		"sqlite": func() KV {
			dsn, err := SQLiteDSNForFile(filepath.Join(dir, "kv.db"))
			require.NoError(t, err)
			kv, err := NewSQLiteKV(context.Background(), dsn)
			require.NoError(t, err)
			return kv
		},
	}
}

func TestKVBackends(t *testing.T) {
	ctx := context.Background()
	for name, open := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			kv := open()
			defer func() {
				_ = kv.Close()
			}()

			_, ok, err := kv.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set(ctx, "a", "1"))
			require.NoError(t, kv.Set(ctx, "b", "two\nlines"))
			require.NoError(t, kv.Set(ctx, "a", "3"))

			v, ok, err := kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "3", v)

			v, _, err = kv.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, "two\nlines", v)

			keys, err := kv.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, keys)

			require.NoError(t, kv.Delete(ctx, "a"))
			require.NoError(t, kv.Delete(ctx, "never-there"))
			_, ok, err = kv.Get(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Close())
			assert.ErrorIs(t, kv.Set(ctx, "c", "x"), ErrStoreClosed)
		})
	}
}

func TestYAMLFileKVSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kv.yaml")

	kv, err := NewYAMLFileKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "conversation:1", `{"id":"1"}`))
	require.NoError(t, kv.Close())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reopened, err := NewYAMLFileKV(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "conversation:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":"1"}`, v)
}

func TestYAMLFileKVRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o644))
	_, err := NewYAMLFileKV(path)
	assert.Error(t, err)
}

func TestSQLiteKVSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)

	kv, err := NewSQLiteKV(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "k", "v"))
	require.NoError(t, kv.Close())

	// migrations are idempotent
	reopened, err := NewSQLiteKV(ctx, dsn)
	require.NoError(t, err)
	defer func() {
		_ = reopened.Close()
	}()
	v, ok, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestOpenKV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kv, err := OpenKV(ctx, BackendMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryKV{}, kv)

	kv, err = OpenKV(ctx, BackendYAML, filepath.Join(dir, "c.yaml"))
	require.NoError(t, err)
	assert.IsType(t, &YAMLFileKV{}, kv)

	kv, err = OpenKV(ctx, BackendSQLite, filepath.Join(dir, "sub", "c.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteKV{}, kv)
	require.NoError(t, kv.Close())

	_, err = OpenKV(ctx, "redis", "")
	assert.Error(t, err)
}
