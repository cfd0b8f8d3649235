package manifest

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/craftfall/anvil/iox"
)

// Cache is an on-disk manifest cache. Entries are msgpack-encoded and
// keyed by the request identity string; the key is hashed into the
// filename so arbitrary key content stays filesystem-safe.
//
// Writes are temp-then-rename, so concurrent installs racing on the
// same key converge on a valid entry.
type Cache struct {
	dir string
}

// NewCache creates a cache rooted at dir. The directory is created on
// first write.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// entryPath maps a key to its cache file.
func (c *Cache) entryPath(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".mpk")
}

// Get loads the entry for key into v. Returns false when the key is
// absent. A corrupt entry is treated as absent and removed.
func (c *Cache) Get(key string, v any) (bool, error) {
	data, err := os.ReadFile(c.entryPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("manifest cache read %q: %w", key, err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		// Corrupt entry: drop it rather than failing resolution.
		_ = os.Remove(c.entryPath(key))
		return false, nil
	}
	return true, nil
}

// Put stores v under key.
func (c *Cache) Put(key string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("manifest cache encode %q: %w", key, err)
	}
	if err := iox.WriteFileAtomic(c.entryPath(key), data, 0o644); err != nil {
		return fmt.Errorf("manifest cache write %q: %w", key, err)
	}
	return nil
}
