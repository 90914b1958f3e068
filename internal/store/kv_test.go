package store_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bunkerlink/internal/domain"
	"bunkerlink/internal/store"
	"bunkerlink/internal/testutil/testlog"
)

func backends(t *testing.T) map[string]domain.KeyValueStore {
	t.Helper()
	dir := t.TempDir()

	file, err := store.NewFileKV(filepath.Join(dir, "file"))
	require.NoError(t, err)

	sealedInner, err := store.NewFileKV(filepath.Join(dir, "sealed"))
	require.NoError(t, err)
	sealed, err := store.NewSealedKV(sealedInner, "correct horse")
	require.NoError(t, err)

	sqlite, err := store.OpenSQLiteKV(filepath.Join(dir, "kv.sqlite"))
	require.NoError(t, err)

	badger, err := store.OpenBadgerKV(filepath.Join(dir, "badger"), testlog.New(t))
	require.NoError(t, err)

	all := map[string]domain.KeyValueStore{
		"memory": store.NewMemoryKV(),
		"file":   file,
		"sealed": sealed,
		"sqlite": sqlite,
		"badger": badger,
	}
	t.Cleanup(func() {
		for _, kv := range all {
			_ = kv.Close()
		}
	})
	return all
}

func TestKeyValueStores(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Put("a/b:c", []byte("one")))
			v, ok, err := kv.Get("a/b:c")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "one", string(v))

			require.NoError(t, kv.Put("a/b:c", []byte("two")))
			v, _, err = kv.Get("a/b:c")
			require.NoError(t, err)
			assert.Equal(t, "two", string(v))

			require.NoError(t, kv.Delete("a/b:c"))
			_, ok, err = kv.Get("a/b:c")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Delete("never-existed"))
		})
	}
}

func TestFileKVSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	kv, err := store.NewFileKV(dir)
	require.NoError(t, err)
	require.NoError(t, kv.Put("k", []byte("v")))

	again, err := store.NewFileKV(dir)
	require.NoError(t, err)
	v, ok, err := again.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func TestSealedKVWrongPassphrase(t *testing.T) {
	inner := store.NewMemoryKV()
	good, err := store.NewSealedKV(inner, "correct")
	require.NoError(t, err)
	require.NoError(t, good.Put("k", []byte("secret")))

	raw, _, err := inner.Get("k")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	bad, err := store.NewSealedKV(inner, "wrong")
	require.NoError(t, err)
	_, _, err = bad.Get("k")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)

	_, err = store.NewSealedKV(inner, "")
	require.Error(t, err)
}

func TestSealedKVBindsKeyName(t *testing.T) {
	inner := store.NewMemoryKV()
	kv, err := store.NewSealedKV(inner, "pass")
	require.NoError(t, err)
	require.NoError(t, kv.Put("a", []byte("value")))

	raw, _, err := inner.Get("a")
	require.NoError(t, err)
	require.NoError(t, inner.Put("b", raw))

	_, _, err = kv.Get("b")
	require.ErrorIs(t, err, store.ErrWrongPassphrase)
}

func TestSQLiteKVSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.sqlite")
	kv, err := store.OpenSQLiteKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Put("k", []byte{0, 1, 2}))
	require.NoError(t, kv.Close())

	kv, err = store.OpenSQLiteKV(path)
	require.NoError(t, err)
	defer kv.Close()
	v, ok, err := kv.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 1, 2}, v)
}
