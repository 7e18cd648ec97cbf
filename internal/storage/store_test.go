package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the shared contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "news_world")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "news_world", []byte(`{"a":1}`)))
	require.NoError(t, s.Put(ctx, "news_regional_日本", []byte(`{"b":2}`)))
	require.NoError(t, s.Put(ctx, "seenTitles_headline", []byte(`["x"]`)))

	v, ok, err := s.Get(ctx, "news_world")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(v))

	require.NoError(t, s.Put(ctx, "news_world", []byte(`{"a":2}`)))
	v, _, err = s.Get(ctx, "news_world")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(v))

	keys, err := s.Keys(ctx, "news_")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"news_regional_日本", "news_world"}, keys)

	stats, err := GetStats(ctx, s, "news_", "seenTitles_", "other_")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"total_items": 3, "news_": 2, "seenTitles_": 1, "other_": 0}, stats)

	require.NoError(t, s.Delete(ctx, "news_world"))
	require.NoError(t, s.Delete(ctx, "news_world"))
	_, ok, err = s.Get(ctx, "news_world")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	s, err := OpenFile(path)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "k", []byte(`{"v":"持久"}`)))

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":"持久"}`, string(v))
	stats, err := GetStats(context.Background(), reopened)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["total_items"])
}

func TestFileStore_RejectsNonJSON(t *testing.T) {
	s, err := OpenFile(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	assert.Error(t, s.Put(context.Background(), "k", []byte("not json")))
}

func TestFileStore_CorruptFileMovedAside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	s, err := OpenFile(path)
	require.NoError(t, err)
	keys, err := s.Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	for _, k := range []string{"news_world", "news_regional_日本", "seenTitles_headline"} {
		require.NoError(t, s.Delete(ctx, k))
	}
	exerciseStore(t, s)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "redis", "", "")
	assert.Error(t, err)
}
