package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestRoundTripText(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("key1", "hello world", 60))

	value, ok := store.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "hello world", value)
}

func TestRoundTripStructured(t *testing.T) {
	store := newTestStore(t)

	original := map[string]interface{}{
		"name":  "agent-7",
		"score": float64(42),
		"tags":  []interface{}{"a", "b"},
	}
	require.NoError(t, store.Set("key2", original, 60))

	value, ok := store.Get("key2")
	require.True(t, ok)
	assert.Equal(t, original, value)
}

func TestBytesStoredAsText(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("key3", []byte(`{"data":1}`), 60))

	value, ok := store.Get("key3")
	require.True(t, ok)
	assert.Equal(t, `{"data":1}`, value)
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, ok := store.Get("no-such-key")
	assert.False(t, ok)
}

func TestSetNonPositiveTTLIsNoOp(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("key", "value", 0))
	_, ok := store.Get("key")
	assert.False(t, ok)

	require.NoError(t, store.Set("key", "value", -5))
	_, ok = store.Get("key")
	assert.False(t, ok)
}

func TestSetNonPositiveTTLKeepsExistingEntry(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("key", "original", 60))
	require.NoError(t, store.Set("key", "replacement", 0))

	value, ok := store.Get("key")
	require.True(t, ok)
	assert.Equal(t, "original", value)
}

func TestTTLExpiry(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.Set("key", "value", 10))

	// Still live just before expiry
	store.now = func() time.Time { return now.Add(9 * time.Second) }
	_, ok := store.Get("key")
	assert.True(t, ok)

	// Gone at expiry, and the file is eagerly removed
	store.now = func() time.Time { return now.Add(10 * time.Second) }
	_, ok = store.Get("key")
	assert.False(t, ok)

	_, err := os.Stat(store.entryPath("key"))
	assert.True(t, os.IsNotExist(err), "expired entry should be deleted on read")
}

func TestCorruptEntryTreatedAsMissAndDeleted(t *testing.T) {
	store := newTestStore(t)

	path := store.entryPath("bad")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, ok := store.Get("bad")
	assert.False(t, ok)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "corrupt entry should be deleted on read")
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Set("key", "value", 60))
	assert.True(t, store.Delete("key"))
	assert.False(t, store.Delete("key"))
}

func TestPurgeExpired(t *testing.T) {
	store := newTestStore(t)

	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.Set("live", "v", 3600))
	require.NoError(t, store.Set("stale", "v", 10))

	// An entry with no expiry tracked must never be purged
	noExpiry := `{"kind":"text","payload":"\"v\"","expires_at":0}`
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "eternal.json"), []byte(noExpiry), 0644))

	store.now = func() time.Time { return now.Add(time.Minute) }
	removed, err := store.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := store.Get("live")
	assert.True(t, ok)
	_, ok = store.Get("stale")
	assert.False(t, ok)
	_, err = os.Stat(filepath.Join(store.dir, "eternal.json"))
	assert.NoError(t, err)
}
