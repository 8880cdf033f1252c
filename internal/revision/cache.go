// Package revision memoizes per-revision backend lookups. Historical
// revisions are immutable, so entries never need invalidation; the two
// caches are bounded LRUs and eviction is purely capacity-driven.
package revision

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/repostatus/internal/backend"
	"github.com/dshills/repostatus/internal/vcs"
)

const (
	// DefaultChangesCapacity bounds the changed-files cache.
	DefaultChangesCapacity = 100

	// DefaultContentsCapacity bounds the file-contents cache.
	DefaultContentsCapacity = 20
)

// revisionContents holds the per-path content map for one revision.
type revisionContents struct {
	mu    sync.RWMutex
	files map[string]string
}

// Cache is a read-through memoizer for per-revision metadata.
// Concurrent misses for the same key collapse into one backend call.
type Cache struct {
	service backend.Service
	group   singleflight.Group

	changes  *lru.Cache[string, vcs.FileChanges]
	contents *lru.Cache[string, *revisionContents]
}

// NewCache creates a revision cache with the given capacities.
// Non-positive capacities fall back to the defaults.
func NewCache(service backend.Service, changesCap, contentsCap int) (*Cache, error) {
	if changesCap <= 0 {
		changesCap = DefaultChangesCapacity
	}
	if contentsCap <= 0 {
		contentsCap = DefaultContentsCapacity
	}

	changes, err := lru.New[string, vcs.FileChanges](changesCap)
	if err != nil {
		return nil, fmt.Errorf("changes cache: %w", err)
	}
	contents, err := lru.New[string, *revisionContents](contentsCap)
	if err != nil {
		return nil, fmt.Errorf("contents cache: %w", err)
	}

	return &Cache{
		service:  service,
		changes:  changes,
		contents: contents,
	}, nil
}

// FilesChangedAt returns the files touched by the revision, fetching
// on first lookup and serving the cache afterwards.
func (c *Cache) FilesChangedAt(ctx context.Context, rev string) (vcs.FileChanges, error) {
	if cached, ok := c.changes.Get(rev); ok {
		return cached, nil
	}

	value, err, _ := c.group.Do("changes:"+rev, func() (any, error) {
		if cached, ok := c.changes.Get(rev); ok {
			return cached, nil
		}
		fetched, err := c.service.FetchFilesChangedAtRevision(ctx, rev)
		if err != nil {
			return nil, err
		}
		c.changes.Add(rev, fetched)
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(vcs.FileChanges), nil
}

// ContentAt returns the file's content as of the revision, fetching on
// first lookup and serving the cache afterwards.
func (c *Cache) ContentAt(ctx context.Context, path, rev string) (string, error) {
	if entry, ok := c.contents.Get(rev); ok {
		entry.mu.RLock()
		content, ok := entry.files[path]
		entry.mu.RUnlock()
		if ok {
			return content, nil
		}
	}

	value, err, _ := c.group.Do("content:"+rev+":"+path, func() (any, error) {
		entry, ok := c.contents.Get(rev)
		if ok {
			entry.mu.RLock()
			content, ok := entry.files[path]
			entry.mu.RUnlock()
			if ok {
				return content, nil
			}
		}

		content, err := c.service.FetchFileContentAtRevision(ctx, path, rev)
		if err != nil {
			return "", err
		}

		if !ok {
			entry = &revisionContents{files: make(map[string]string)}
			c.contents.Add(rev, entry)
		}
		entry.mu.Lock()
		entry.files[path] = content
		entry.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// ChangesLen returns the number of revisions in the changed-files cache.
func (c *Cache) ChangesLen() int {
	return c.changes.Len()
}

// ContentsLen returns the number of revisions in the contents cache.
func (c *Cache) ContentsLen() int {
	return c.contents.Len()
}

// Purge empties both caches.
func (c *Cache) Purge() {
	c.changes.Purge()
	c.contents.Purge()
}
