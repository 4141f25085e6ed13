// Package wheelcache remembers wheels built from source artifacts in a bbolt database, so that a
// source archive or local project only has to be built once per interpreter.
//
// Layout:
//
//	Bucket: "wheels"
//	Sub-Bucket: "<artifact key>"
//	Keys: "<wheel filename>"
//	Values: "<wheel path>"
//
// The artifact key of a remote link is its URL without the fragment.  The key of a local
// directory also includes a digest of the directory's contents, so editing the project
// invalidates its cached wheels.
package wheelcache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rhansen/wheelresolve"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/mod/sumdb/dirhash"
)

var wheelsBucket = []byte("wheels")

// A Cache is a [wheelresolve.WheelCache] backed by a bbolt file.  Its methods are safe for
// concurrent use with each other, excluding Close.
type Cache struct {
	db         *bolt.DB
	persistent bool
}

var _ wheelresolve.WheelCache = (*Cache)(nil)

// Open opens (creating if necessary) the cache database at path.  persistent is reported in every
// [wheelresolve.CacheEntry] the cache returns.
func Open(path string, persistent bool) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create wheel cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open wheel cache %q: %w", path, err)
	}
	return &Cache{db: db, persistent: persistent}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close wheel cache %q: %w", c.db.Path(), err)
	}
	return nil
}

// key returns the artifact key of link.
func key(link wheelresolve.Link) ([]byte, error) {
	k := link.WithoutFragment()
	if !link.IsFile() {
		return []byte(k), nil
	}
	fi, err := os.Stat(link.FilePath())
	if err != nil || !fi.IsDir() {
		return []byte(k), nil
	}
	sum, err := dirhash.HashDir(link.FilePath(), "", dirhash.Hash1)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %v: %w", link, err)
	}
	return []byte(k + "#" + sum), nil
}

// Add records that building link produced the wheel at wheelPath.
func (c *Cache) Add(link wheelresolve.Link, wheelPath string) error {
	w, err := wheelresolve.ParseWheelFilename(filepath.Base(wheelPath))
	if err != nil {
		return err
	}
	k, err := key(link)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(wheelsBucket)
		if err != nil {
			return err
		}
		sub, err := b.CreateBucketIfNotExists(k)
		if err != nil {
			return err
		}
		return sub.Put([]byte(w.Filename), []byte(wheelPath))
	})
}

// Lookup returns the most preferred cached wheel of the named project built from link, or nil.
func (c *Cache) Lookup(link wheelresolve.Link, name wheelresolve.Identifier, supported []wheelresolve.Tag) *wheelresolve.CacheEntry {
	k, err := key(link)
	if err != nil {
		slog.Warn("wheel cache lookup failed", "link", link, "err", err)
		return nil
	}
	var best string
	bestIdx := -1
	err = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(wheelsBucket)
		if b == nil {
			return nil
		}
		sub := b.Bucket(k)
		if sub == nil {
			return nil
		}
		return sub.ForEach(func(fn, path []byte) error {
			w, err := wheelresolve.ParseWheelFilename(string(fn))
			if err != nil {
				slog.Debug("ignoring invalid cached wheel", "filename", string(fn), "err", err)
				return nil
			}
			if name != "" && wheelresolve.CanonicalizeName(w.Name) != name {
				return nil
			}
			idx := w.SupportIndexMin(supported)
			if idx < 0 {
				return nil
			}
			if bestIdx < 0 || idx < bestIdx {
				best, bestIdx = string(path), idx
			}
			return nil
		})
	})
	if err != nil {
		slog.Warn("wheel cache lookup failed", "link", link, "err", err)
		return nil
	}
	if bestIdx < 0 {
		return nil
	}
	if _, err := os.Stat(best); err != nil {
		slog.Debug("cached wheel is missing", "path", best, "err", err)
		return nil
	}
	return &wheelresolve.CacheEntry{Link: wheelresolve.NewLink(best), Persistent: c.persistent}
}
