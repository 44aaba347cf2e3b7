package metadata

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fileCache stores JSON-encoded upstream responses on disk with a TTL.
// Expired entries are removed lazily on read.
type fileCache struct {
	dir string
	ttl time.Duration
}

func newFileCache(dir string, ttlHours int) *fileCache {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &fileCache{dir: dir, ttl: time.Duration(ttlHours) * time.Hour}
}

// cacheKey builds a stable cache key from its parts.
func cacheKey(parts ...string) string {
	h := sha1.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(h[:])
}

// jitteredTTL staggers expiry per key between ttl and ttl + 4h so a cold
// start does not expire the whole cache at once. The offset is derived from
// the key, keeping each entry's TTL stable across runs.
func (c *fileCache) jitteredTTL(key string) time.Duration {
	h := fnv.New64a()
	h.Write([]byte(key))
	return c.ttl + time.Duration(h.Sum64()%uint64(4*time.Hour))
}

func (c *fileCache) get(key string, v any) (bool, error) {
	if key == "" {
		return false, errors.New("empty cache key")
	}
	path := filepath.Join(c.dir, key+".json")
	fi, err := os.Stat(path)
	if err != nil {
		return false, nil
	}
	if time.Since(fi.ModTime()) > c.jitteredTTL(key) {
		_ = os.Remove(path)
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *fileCache) set(key string, v any) error {
	if key == "" {
		return errors.New("empty cache key")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	path := filepath.Join(c.dir, key+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
