// Package caching is a file-based page cache with a TTL. Fetched bodies are
// stored under a hash of their URL so repeated pipeline runs within the TTL
// do not re-hit source sites.
package caching

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Cache struct {
	path string
	ttl  time.Duration
}

// NewCache creates a cache rooted at path, creating the directory if needed.
func NewCache(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{
		path: path,
		ttl:  ttl,
	}, nil
}

// key hashes the URL to a stable filename.
func (c *Cache) key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%x", hash)
}

// Get returns the cached body for a URL together with the time it was
// stored, so a cached document keeps its original fetch timestamp. The
// third return is false on a miss, an expired entry, or a read error.
func (c *Cache) Get(url string) ([]byte, time.Time, bool) {
	filePath := filepath.Join(c.path, c.key(url))

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil, time.Time{}, false
	}
	if err != nil || time.Since(info.ModTime()) > c.ttl {
		return nil, time.Time{}, false
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, time.Time{}, false
	}
	return data, info.ModTime(), true
}

// Set stores a fetched body for a URL.
func (c *Cache) Set(url string, data []byte) error {
	filePath := filepath.Join(c.path, c.key(url))
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write to cache: %w", err)
	}
	return nil
}
