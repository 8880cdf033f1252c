// Package status maintains the per-path status cache and the derived
// modified-directory index. Clean paths are never stored: absence from
// the cache means clean, so the map stays proportional to the number of
// interesting files rather than the tree size.
package status

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dshills/repostatus/internal/backend"
	"github.com/dshills/repostatus/internal/notify"
	"github.com/dshills/repostatus/internal/vcs"
)

// Cache is the per-path status cache for one working directory.
//
// All mutation funnels through apply/replace so change events are
// emitted only after the cache is fully consistent, never mid-update.
type Cache struct {
	mu       sync.Mutex
	service  backend.Service
	dirIndex *DirIndex
	notifier *notify.Notifier
	log      *logrus.Entry

	statuses map[string]vcs.StatusCode
}

// NewCache creates a status cache backed by the given service.
func NewCache(service backend.Service, dirIndex *DirIndex, notifier *notify.Notifier, log *logrus.Entry) *Cache {
	return &Cache{
		service:  service,
		dirIndex: dirIndex,
		notifier: notifier,
		log:      log,
		statuses: make(map[string]vcs.StatusCode),
	}
}

// GetStatuses returns the status for each requested path, serving
// cached values and batch-fetching all misses in one backend call.
// Cached values outside the filter's scope are filtered from the reply
// without a re-fetch.
func (c *Cache) GetStatuses(ctx context.Context, paths []string, filter vcs.FilterOption) (map[string]vcs.StatusCode, error) {
	result := make(map[string]vcs.StatusCode, len(paths))

	c.mu.Lock()
	var misses []string
	for _, path := range paths {
		if code, ok := c.statuses[path]; ok {
			if filter.Allows(code) {
				result[path] = code
			}
		} else {
			misses = append(misses, path)
		}
	}
	c.mu.Unlock()

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := c.service.FetchStatuses(ctx, misses, filter)
	if err != nil {
		return nil, err
	}

	c.apply(fetched, nil, filter)

	for path, code := range fetched {
		if filter.Allows(code) {
			result[path] = code
		}
	}
	return result, nil
}

// Refresh re-fetches the status of the given paths and reconciles the
// cache with the result, applying the filter-scoped eviction rules.
// A backend failure leaves the cache untouched.
func (c *Cache) Refresh(ctx context.Context, paths []string, filter vcs.FilterOption) error {
	fetched, err := c.service.FetchStatuses(ctx, paths, filter)
	if err != nil {
		return err
	}

	c.apply(fetched, paths, filter)
	return nil
}

// ReplaceAll swaps the entire cache for the fetched tree-wide result,
// rebuilding the directory index and emitting one precise event per
// path whose status actually changed.
func (c *Cache) ReplaceAll(fetched map[string]vcs.StatusCode) {
	var events []notify.PathStatusEvent

	c.mu.Lock()
	old := c.statuses
	c.statuses = make(map[string]vcs.StatusCode, len(fetched))
	c.dirIndex.Clear()

	for path, code := range fetched {
		if code == vcs.StatusClean {
			continue
		}
		c.statuses[path] = code
		if code == vcs.StatusModified {
			c.dirIndex.MarkModified(path)
		}
		if old[path] != code {
			events = append(events, notify.PathStatusEvent{Path: path, Status: code})
		}
	}
	for path := range old {
		if _, ok := c.statuses[path]; !ok {
			events = append(events, notify.PathStatusEvent{Path: path, Status: vcs.StatusClean})
		}
	}
	size := len(c.statuses)
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"paths":  size,
		"events": len(events),
	}).Debug("status cache replaced")

	c.emit(events)
}

// CachedStatus returns the cached status for a path without fetching.
// Unknown paths report StatusClean.
func (c *Cache) CachedStatus(path string) vcs.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[path]
}

// Contains reports whether the path has a cached (non-clean) status.
func (c *Cache) Contains(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.statuses[path]
	return ok
}

// All returns a copy of every cached path status.
func (c *Cache) All() map[string]vcs.StatusCode {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := make(map[string]vcs.StatusCode, len(c.statuses))
	for path, code := range c.statuses {
		all[path] = code
	}
	return all
}

// Len returns the number of cached paths.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.statuses)
}

// Clear silently drops every entry and the derived directory index.
// Used for whole-cache invalidation; no path events are emitted.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.statuses = make(map[string]vcs.StatusCode)
	c.dirIndex.Clear()
	c.mu.Unlock()
}

// apply merges a fetch result into the cache. When refreshed is
// non-nil it lists the refresh scope: previously-cached paths in scope
// but absent from the result are evicted — with a path event under
// FilterAllStatuses (the path is known deleted), silently under a
// narrower filter (the true new status is unknown).
func (c *Cache) apply(fetched map[string]vcs.StatusCode, refreshed []string, filter vcs.FilterOption) {
	var events []notify.PathStatusEvent

	c.mu.Lock()
	for path, code := range fetched {
		if event, changed := c.setLocked(path, code); changed {
			events = append(events, event)
		}
	}

	for _, path := range refreshed {
		if _, ok := fetched[path]; ok {
			continue
		}
		prev, ok := c.statuses[path]
		if !ok || !filter.Allows(prev) {
			continue
		}
		c.removeLocked(path, prev)
		if filter == vcs.FilterAllStatuses {
			events = append(events, notify.PathStatusEvent{Path: path, Status: vcs.StatusClean})
		}
	}
	c.mu.Unlock()

	c.emit(events)
}

// setLocked stores one fetched status, handling clean elision and
// directory bookkeeping. Caller holds the lock.
func (c *Cache) setLocked(path string, code vcs.StatusCode) (notify.PathStatusEvent, bool) {
	prev, had := c.statuses[path]

	if code == vcs.StatusClean {
		if !had {
			return notify.PathStatusEvent{}, false
		}
		c.removeLocked(path, prev)
		return notify.PathStatusEvent{Path: path, Status: vcs.StatusClean}, true
	}

	if had && prev == code {
		return notify.PathStatusEvent{}, false
	}

	c.statuses[path] = code
	if had && prev == vcs.StatusModified {
		c.dirIndex.UnmarkModified(path)
	}
	if code == vcs.StatusModified {
		c.dirIndex.MarkModified(path)
	}
	return notify.PathStatusEvent{Path: path, Status: code}, true
}

// removeLocked evicts one path and rolls back its directory
// bookkeeping. Caller holds the lock.
func (c *Cache) removeLocked(path string, prev vcs.StatusCode) {
	delete(c.statuses, path)
	if prev == vcs.StatusModified {
		c.dirIndex.UnmarkModified(path)
	}
}

// emit delivers per-path events followed by one coarse event. Called
// after the lock is released so subscribers observe a consistent cache.
func (c *Cache) emit(events []notify.PathStatusEvent) {
	for _, event := range events {
		c.notifier.StatusChanged.Emit(event)
	}
	c.notifier.StatusesChanged.Emit(struct{}{})
}
