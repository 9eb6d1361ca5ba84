package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentharvest/pkg/logger"
)

// Store is a file-backed response cache. Each key maps to one JSON file
// under the cache directory. Malformed and expired entries collapse to
// "absent" on read and are deleted as a side effect.
type Store struct {
	dir string
	log logger.Logger
	now func() time.Time
}

// NewStore creates a cache store rooted at dir, creating the directory if
// it does not exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Store{
		dir: dir,
		log: logger.GetLogger(),
		now: time.Now,
	}, nil
}

// entryPath returns the file backing the given key
func (s *Store) entryPath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get retrieves the cached value for key. Corruption and expiry both report
// absent; the offending file is removed best-effort. Never returns an error.
func (s *Store) Get(key string) (interface{}, bool) {
	path := s.entryPath(key)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.log.DebugWithFields("removing malformed cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		_ = os.Remove(path)
		return nil, false
	}

	if entry.IsExpired(s.now()) {
		s.log.DebugWithFields("removing expired cache entry", map[string]interface{}{
			"key": key,
		})
		_ = os.Remove(path)
		return nil, false
	}

	value, err := decodePayload(&entry)
	if err != nil {
		_ = os.Remove(path)
		return nil, false
	}
	return value, true
}

// Set persists value under key with the given TTL in seconds. A
// non-positive TTL makes Set a no-op: nothing is written and any existing
// entry is left untouched.
func (s *Store) Set(key string, value interface{}, ttlSeconds int) error {
	if ttlSeconds <= 0 {
		return nil
	}

	entry := Entry{
		ExpiresAt: s.now().Unix() + int64(ttlSeconds),
	}

	switch v := value.(type) {
	case string:
		entry.Kind = kindText
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode cache payload: %w", err)
		}
		entry.Payload = payload
	case []byte:
		entry.Kind = kindText
		payload, err := json.Marshal(string(v))
		if err != nil {
			return fmt.Errorf("failed to encode cache payload: %w", err)
		}
		entry.Payload = payload
	default:
		entry.Kind = kindStructured
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode cache payload: %w", err)
		}
		entry.Payload = payload
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := os.WriteFile(s.entryPath(key), data, 0644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes the entry for key, reporting whether it was present.
func (s *Store) Delete(key string) bool {
	err := os.Remove(s.entryPath(key))
	return err == nil
}

// PurgeExpired sweeps the cache directory and deletes every entry whose
// expiry timestamp is in the past. Entries without an expiry are kept.
// Returns the number of entries removed.
func (s *Store) PurgeExpired() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	removed := 0
	now := s.now()
	for _, dirEntry := range entries {
		if dirEntry.IsDir() || !strings.HasSuffix(dirEntry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, dirEntry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.IsExpired(now) {
			if os.Remove(path) == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		s.log.InfoWithFields("purged expired cache entries", map[string]interface{}{
			"removed": removed,
		})
	}
	return removed, nil
}

// decodePayload restores the original shape of a cached value
func decodePayload(entry *Entry) (interface{}, error) {
	switch entry.Kind {
	case kindText:
		var text string
		if err := json.Unmarshal(entry.Payload, &text); err != nil {
			return nil, err
		}
		return text, nil
	case kindStructured:
		var value interface{}
		if err := json.Unmarshal(entry.Payload, &value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		return nil, fmt.Errorf("unknown cache payload kind %q", entry.Kind)
	}
}
