// Package refresh schedules cache refreshes: bursts of file-change
// notifications are debounced into one run, runs are serialized so a
// torn cache is impossible, and each run is either targeted (the exact
// changed paths) or full (whole-tree) depending on how many paths
// accumulated.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/repostatus/internal/coalesce"
	"github.com/dshills/repostatus/internal/diffcache"
	"github.com/dshills/repostatus/internal/status"
	"github.com/dshills/repostatus/internal/vcs"
)

// DefaultThreshold is the pending-path count at which a run stops being
// targeted and becomes a full refresh.
const DefaultThreshold = 1

// Coordinator drives status and diff cache refreshes for one working
// directory. Only one refresh pipeline runs at a time; triggers during
// a run coalesce into exactly one follow-up run over the union of
// pending paths.
type Coordinator struct {
	root      string
	statuses  *status.Cache
	diffs     *diffcache.Cache
	service   statusFetcher
	runner    *coalesce.Runner
	threshold int
	log       *logrus.Entry

	mu      sync.Mutex
	pending map[string]struct{}
	full    bool

	ctx    context.Context
	cancel context.CancelFunc

	// onFull runs after each completed full refresh, outside the lock.
	onFull func()
}

// statusFetcher is the slice of the backend the coordinator calls
// directly (whole-tree fetches; targeted fetches go through the cache).
type statusFetcher interface {
	FetchStatuses(ctx context.Context, paths []string, filter vcs.FilterOption) (map[string]vcs.StatusCode, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithThreshold sets the full-refresh path-count threshold.
func WithThreshold(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithFullRefreshHook sets a callback run after each full refresh.
func WithFullRefreshHook(fn func()) Option {
	return func(c *Coordinator) {
		c.onFull = fn
	}
}

// NewCoordinator creates a coordinator. A non-positive delay falls back
// to the coalesce default.
func NewCoordinator(root string, service statusFetcher, statuses *status.Cache, diffs *diffcache.Cache, delay time.Duration, log *logrus.Entry, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		root:      root,
		statuses:  statuses,
		diffs:     diffs,
		service:   service,
		threshold: DefaultThreshold,
		log:       log,
		pending:   make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.runner = coalesce.NewRunner(delay, c.run)
	return c
}

// NotifyFilesChanged buffers changed paths and arms the debounced
// refresh. Notifications inside the window extend it; all their paths
// accumulate into the single run that follows.
func (c *Coordinator) NotifyFilesChanged(paths []string) {
	if len(paths) == 0 {
		return
	}

	c.mu.Lock()
	for _, path := range paths {
		c.pending[path] = struct{}{}
	}
	c.mu.Unlock()

	c.runner.Trigger()
}

// RequestFullRefresh arms a full refresh through the same debounced,
// serialized path, so concurrent triggers still coalesce into one run.
func (c *Coordinator) RequestFullRefresh() {
	c.mu.Lock()
	c.full = true
	c.mu.Unlock()

	c.runner.Trigger()
}

// Flush runs any armed refresh immediately and waits for it. Intended
// for tests and teardown paths that need a settled cache.
func (c *Coordinator) Flush() {
	c.runner.Flush()
}

// Wait blocks until no refresh is armed or in flight.
func (c *Coordinator) Wait() {
	c.runner.Wait()
}

// Stop cancels in-flight backend calls and prevents further runs.
// Safe to call repeatedly and while a refresh is in flight; callbacks
// completing afterwards are no-ops.
func (c *Coordinator) Stop() {
	c.cancel()
	c.runner.Stop()
}

// run executes one refresh over whatever accumulated, choosing targeted
// or full. Backend failure aborts the run without further mutation; the
// runner returns to idle so the next notification retries.
func (c *Coordinator) run() {
	c.mu.Lock()
	paths := make([]string, 0, len(c.pending))
	for path := range c.pending {
		paths = append(paths, path)
	}
	c.pending = make(map[string]struct{})
	full := c.full || len(paths) >= c.threshold
	c.full = false
	c.mu.Unlock()

	if c.ctx.Err() != nil {
		return
	}
	if !full && len(paths) == 0 {
		return
	}

	if full {
		c.runFull()
		return
	}
	c.runTargeted(paths)
}

// runTargeted re-fetches exactly the pending paths with an all-statuses
// filter, then refreshes diff info for those already in the diff cache.
func (c *Coordinator) runTargeted(paths []string) {
	if err := c.statuses.Refresh(c.ctx, paths, vcs.FilterAllStatuses); err != nil {
		c.log.WithError(err).WithField("paths", len(paths)).Warn("targeted status refresh failed")
		return
	}

	var diffPaths []string
	cached := make(map[string]struct{})
	for _, path := range c.diffs.Paths() {
		cached[path] = struct{}{}
	}
	for _, path := range paths {
		if _, ok := cached[path]; ok {
			diffPaths = append(diffPaths, path)
		}
	}
	if len(diffPaths) == 0 {
		return
	}
	if _, err := c.diffs.Update(c.ctx, diffPaths); err != nil {
		c.log.WithError(err).Warn("targeted diff refresh failed")
	}
}

// runFull replaces the whole status cache from a tree-wide fetch with
// the only-non-ignored filter, then rebuilds diff info for every path
// the diff cache previously held. The fetch happens before the swap so
// subscribers never observe a half-empty cache.
func (c *Coordinator) runFull() {
	diffPaths := c.diffs.Paths()

	fetched, err := c.service.FetchStatuses(c.ctx, []string{c.root}, vcs.FilterHideIgnored)
	if err != nil {
		c.log.WithError(err).Warn("full status refresh failed")
		return
	}
	if c.ctx.Err() != nil {
		return
	}

	c.statuses.ReplaceAll(fetched)
	c.diffs.Clear()

	if len(diffPaths) > 0 {
		if _, err := c.diffs.Update(c.ctx, diffPaths); err != nil {
			c.log.WithError(err).Warn("full diff refresh failed")
		}
	}

	if c.onFull != nil && c.ctx.Err() == nil {
		c.onFull()
	}
}
