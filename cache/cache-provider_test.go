package cache

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func providers(t *testing.T, capacity int) map[string]Provider {
	mem, err := NewMemCache(capacity)
	require.NoError(t, err)
	sqlite, err := NewSQLiteCache("", capacity)
	require.NoError(t, err)
	t.Cleanup(func() {
		mem.Close()
		sqlite.Close()
	})
	return map[string]Provider{"memory": mem, "sqlite": sqlite}
}

func TestPutGet(t *testing.T) {
	for name, p := range providers(t, 4) {
		t.Run(name, func(t *testing.T) {
			want := Entry{Outcome: 1, StatusCode: 404, Body: []byte("404: Not Found")}
			require.NoError(t, p.Put("https://origin/missing.html", want))

			got, ok, err := p.Get("https://origin/missing.html")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			_, ok, err = p.Get("https://origin/other.html")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPutReplaces(t *testing.T) {
	for name, p := range providers(t, 4) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put("k", Entry{StatusCode: 200, Body: []byte("one")}))
			require.NoError(t, p.Put("k", Entry{StatusCode: 200, Body: []byte("two")}))

			got, ok, err := p.Get("k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "two", string(got.Body))
			assert.Equal(t, 1, p.Len())
		})
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	for name, p := range providers(t, 3) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				require.NoError(t, p.Put(fmt.Sprintf("k%d", i), Entry{StatusCode: 200}))
			}
			// touch k0 so k1 becomes the oldest
			_, ok, err := p.Get("k0")
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, p.Put("k3", Entry{StatusCode: 200}))

			assert.Equal(t, 3, p.Len())
			_, ok, _ = p.Get("k1")
			assert.False(t, ok, "k1 should have been evicted")
			for _, key := range []string{"k0", "k2", "k3"} {
				_, ok, _ = p.Get(key)
				assert.True(t, ok, key)
			}
		})
	}
}

func TestPurge(t *testing.T) {
	for name, p := range providers(t, 2) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Put("k", Entry{StatusCode: 200}))
			require.NoError(t, p.Purge("k"))
			_, ok, err := p.Get("k")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, 0, p.Len())
		})
	}
}

func TestInvalidCapacity(t *testing.T) {
	_, err := NewMemCache(0)
	assert.ErrorIs(t, err, ErrCapacity)
	_, err = NewSQLiteCache("", -1)
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestSQLiteCacheReopen(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "cache.db")
	s, err := NewSQLiteCache(filename, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Put(fmt.Sprintf("k%d", i), Entry{StatusCode: 200, Body: []byte{byte(i)}}))
	}
	require.NoError(t, s.Close())

	// reopening with a smaller capacity keeps the most recently used entries
	s, err = NewSQLiteCache(filename, 2)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 2, s.Len())
	_, ok, _ := s.Get("k0")
	assert.False(t, ok)
	got, ok, err := s.Get("k2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{2}, got.Body)
}
