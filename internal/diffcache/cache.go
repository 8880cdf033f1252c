// Package diffcache maintains per-path diff info versus the base
// revision. Concurrent fetches for the same path are de-duplicated
// through an in-flight set, and removals requested while a fetch is
// outstanding are deferred until the fetch settles so the merge never
// resurrects a deleted entry.
package diffcache

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/repostatus/internal/backend"
	"github.com/dshills/repostatus/internal/notify"
	"github.com/dshills/repostatus/internal/vcs"
)

// Cache is the diff-info cache for one working directory.
type Cache struct {
	mu       sync.Mutex
	service  backend.Service
	notifier *notify.Notifier
	log      *logrus.Entry
	root     string

	diffs       map[string]vcs.DiffInfo
	updating    map[string]struct{}
	removeQueue map[string]struct{}
}

// NewCache creates a diff cache rooted at the working directory.
func NewCache(root string, service backend.Service, notifier *notify.Notifier, log *logrus.Entry) *Cache {
	return &Cache{
		service:     service,
		notifier:    notifier,
		log:         log,
		root:        filepath.Clean(root),
		diffs:       make(map[string]vcs.DiffInfo),
		updating:    make(map[string]struct{}),
		removeQueue: make(map[string]struct{}),
	}
}

// Update fetches diff info for the given paths in one batched call and
// merges the result. Paths outside the working directory are ignored;
// paths already being fetched are returned with their cached value
// unchanged. On backend failure it returns a nil map and the error,
// after clearing the in-flight markers so a later request can retry.
func (c *Cache) Update(ctx context.Context, paths []string) (map[string]vcs.DiffInfo, error) {
	result := make(map[string]vcs.DiffInfo)

	c.mu.Lock()
	var fetch []string
	for _, path := range paths {
		path = filepath.Clean(path)
		if !c.insideRootLocked(path) {
			continue
		}
		if _, inFlight := c.updating[path]; inFlight {
			if info, ok := c.diffs[path]; ok {
				result[path] = info
			}
			continue
		}
		c.updating[path] = struct{}{}
		fetch = append(fetch, path)
	}
	c.mu.Unlock()

	if len(fetch) == 0 {
		return result, nil
	}

	fetched, err := c.service.FetchDiffInfo(ctx, fetch)

	c.mu.Lock()
	// Always release the in-flight markers, success or not, so a later
	// request is never starved.
	for _, path := range fetch {
		delete(c.updating, path)
	}

	if err != nil {
		c.drainRemovalsLocked()
		c.mu.Unlock()
		c.log.WithError(err).Warn("diff fetch failed; cache not updated")
		return nil, err
	}

	for path, info := range fetched {
		c.diffs[path] = info
		result[path] = info
	}

	// Removals queued during the fetch run after the merge so the
	// merge cannot repopulate an entry the editor already closed.
	c.drainRemovalsLocked()
	c.mu.Unlock()

	c.notifier.StatusesChanged.Emit(struct{}{})
	return result, nil
}

// Stats returns the cached added/deleted counts for a path. Unknown
// paths report zero values; this call never fetches and never blocks.
func (c *Cache) Stats(path string) vcs.DiffStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diffs[filepath.Clean(path)].Stats()
}

// Lines returns the cached line-level diff records for a path, or nil
// for unknown paths. Cache-only and non-blocking.
func (c *Cache) Lines(path string) []vcs.LineDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.diffs[filepath.Clean(path)]
	if !ok {
		return nil
	}
	lines := make([]vcs.LineDiff, len(info.Lines))
	copy(lines, info.Lines)
	return lines
}

// Paths returns every path currently in the cache.
func (c *Cache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make([]string, 0, len(c.diffs))
	for path := range c.diffs {
		paths = append(paths, path)
	}
	return paths
}

// Remove drops a path from the cache, typically because its editor was
// closed. If the path is mid-fetch the removal is queued and performed
// after that fetch completes, never during it.
func (c *Cache) Remove(path string) {
	path = filepath.Clean(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, inFlight := c.updating[path]; inFlight {
		c.removeQueue[path] = struct{}{}
		return
	}
	delete(c.diffs, path)
}

// Clear drops every cached entry. In-flight bookkeeping survives so an
// outstanding fetch still clears its own markers.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.diffs = make(map[string]vcs.DiffInfo)
	c.mu.Unlock()
}

// drainRemovalsLocked applies queued removals whose fetch has settled.
// Caller holds the lock.
func (c *Cache) drainRemovalsLocked() {
	for path := range c.removeQueue {
		if _, inFlight := c.updating[path]; inFlight {
			continue
		}
		delete(c.diffs, path)
		delete(c.removeQueue, path)
	}
}

// insideRootLocked reports whether the cleaned path is under the
// working directory.
func (c *Cache) insideRootLocked(path string) bool {
	return strings.HasPrefix(path, c.root+string(filepath.Separator))
}
