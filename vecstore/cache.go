// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package vecstore

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/docqa/ai"
)

// DefaultCacheSize bounds the number of simultaneously open collection
// handles.
const DefaultCacheSize = 16

// Cache hands out collection handles keyed by collection name. Handles
// are opened lazily and evicted least-recently-used once the size bound
// is reached, so a deployment with many modules does not accumulate an
// unbounded set of open database files.
type Cache struct {
	persistDir string
	embedder   ai.Embedder
	maxSize    int
	logger     *slog.Logger

	mu      sync.Mutex
	handles map[string]*Collection
	order   []string // least recently used first
}

// CacheOption configures a Cache.
type CacheOption func(*Cache) error

// WithCacheSize sets the maximum number of open handles.
func WithCacheSize(n int) CacheOption {
	return func(c *Cache) error {
		if n < 1 {
			return fmt.Errorf("cache size must be positive, got %d", n)
		}
		c.maxSize = n
		return nil
	}
}

// WithCacheLogger sets a custom logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCache creates a handle cache rooted at persistDir.
func NewCache(persistDir string, embedder ai.Embedder, opts ...CacheOption) (*Cache, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	c := &Cache{
		persistDir: persistDir,
		embedder:   embedder,
		maxSize:    DefaultCacheSize,
		logger:     slog.Default().With("component", "vecstore-cache"),
		handles:    make(map[string]*Collection),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Get returns an open handle for the collection, opening it if needed
// and evicting the least recently used handle when the cache is full.
func (c *Cache) Get(collectionName string) (*Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if handle, ok := c.handles[collectionName]; ok {
		c.touch(collectionName)
		return handle, nil
	}

	if len(c.handles) >= c.maxSize {
		c.evictOldest()
	}

	handle, err := Open(collectionName, c.persistDir, c.embedder)
	if err != nil {
		return nil, err
	}

	c.handles[collectionName] = handle
	c.order = append(c.order, collectionName)
	return handle, nil
}

// Drop closes and forgets the handle for a collection, if present.
func (c *Cache) Drop(collectionName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(collectionName)
}

// Reset drops the cached handle and deletes the collection from disk.
func (c *Cache) Reset(collectionName string) error {
	c.Drop(collectionName)
	return Reset(collectionName, c.persistDir)
}

// Close releases every open handle.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, handle := range c.handles {
		if err := handle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.handles, name)
	}
	c.order = nil
	return firstErr
}

// Len returns the number of open handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *Cache) touch(collectionName string) {
	for i, name := range c.order {
		if name == collectionName {
			c.order = append(append(c.order[:i:i], c.order[i+1:]...), collectionName)
			return
		}
	}
}

func (c *Cache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.logger.Debug("evicting collection handle", "collection", oldest)
	c.remove(oldest)
}

// remove must be called with the lock held.
func (c *Cache) remove(collectionName string) {
	handle, ok := c.handles[collectionName]
	if !ok {
		return
	}

	if err := handle.Close(); err != nil {
		c.logger.Warn("failed to close collection handle", "collection", collectionName, "err", err)
	}
	delete(c.handles, collectionName)

	for i, name := range c.order {
		if name == collectionName {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
