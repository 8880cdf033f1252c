// Package session owns the full cache stack for one version-control
// working directory: status cache, directory index, diff cache,
// revision metadata caches, refresh coordinator, and change notifier.
// Everything is created together and torn down together.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dshills/repostatus/internal/backend"
	"github.com/dshills/repostatus/internal/coalesce"
	"github.com/dshills/repostatus/internal/diffcache"
	"github.com/dshills/repostatus/internal/notify"
	"github.com/dshills/repostatus/internal/refresh"
	"github.com/dshills/repostatus/internal/revision"
	"github.com/dshills/repostatus/internal/status"
	"github.com/dshills/repostatus/internal/vcs"
)

// ErrSessionDestroyed is returned for operations on a destroyed session.
var ErrSessionDestroyed = errors.New("session is destroyed")

// Session is the cache session for one working directory.
type Session struct {
	root     string
	service  backend.Service
	notifier *notify.Notifier
	log      *logrus.Entry

	dirIndex    *status.DirIndex
	statuses    *status.Cache
	diffs       *diffcache.Cache
	revisions   *revision.Cache
	coordinator *refresh.Coordinator

	mu            sync.Mutex
	bookmark      string
	bookmarkKnown bool
	bookmarks     []string
	conflict      bool
	shortHead     string

	stop      chan struct{}
	wg        sync.WaitGroup
	destroyed atomic.Bool
}

// config carries constructor tuning.
type config struct {
	logger      *logrus.Logger
	debounce    time.Duration
	threshold   int
	changesCap  int
	contentsCap int
}

// Option configures a Session.
type Option func(*config)

// WithLogger sets the logger; the default is the standard logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDebounce sets the refresh debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		c.debounce = d
	}
}

// WithThreshold sets the pending-path count at which a refresh becomes
// a full refresh.
func WithThreshold(n int) Option {
	return func(c *config) {
		c.threshold = n
	}
}

// WithRevisionCapacities sets the bounds of the two revision caches.
func WithRevisionCapacities(changes, contents int) Option {
	return func(c *config) {
		c.changesCap = changes
		c.contentsCap = contents
	}
}

// New creates a session for the working directory backed by the given
// service.
func New(root string, service backend.Service, opts ...Option) (*Session, error) {
	cfg := config{
		logger:   logrus.StandardLogger(),
		debounce: coalesce.DefaultDelay,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := cfg.logger.WithField("component", "repostatus").WithField("root", root)

	revisions, err := revision.NewCache(service, cfg.changesCap, cfg.contentsCap)
	if err != nil {
		return nil, err
	}

	s := &Session{
		root:      root,
		service:   service,
		notifier:  notify.NewNotifier(),
		log:       log,
		revisions: revisions,
		stop:      make(chan struct{}),
	}

	s.dirIndex = status.NewDirIndex(root)
	s.statuses = status.NewCache(service, s.dirIndex, s.notifier, log)
	s.diffs = diffcache.NewCache(root, service, s.notifier, log)

	coordOpts := []refresh.Option{refresh.WithFullRefreshHook(s.refreshHead)}
	if cfg.threshold > 0 {
		coordOpts = append(coordOpts, refresh.WithThreshold(cfg.threshold))
	}
	s.coordinator = refresh.NewCoordinator(root, service, s.statuses, s.diffs, cfg.debounce, log, coordOpts...)

	return s, nil
}

// Root returns the working directory this session serves.
func (s *Session) Root() string {
	return s.root
}

// Notifier returns the session's change notifier for subscriptions.
func (s *Session) Notifier() *notify.Notifier {
	return s.notifier
}

// Consume starts draining the backend's notification streams into the
// coordinator and trackers. It returns immediately; delivery runs on a
// session-owned goroutine until Destroy.
func (s *Session) Consume(streams *backend.Notifications) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		files := streams.FilesChanged
		repo := streams.RepoStateChanged
		bookmark := streams.BookmarkChanged
		bookmarks := streams.BookmarksChanged
		conflict := streams.ConflictChanged

		for {
			select {
			case <-s.stop:
				return

			case paths, ok := <-files:
				if !ok {
					files = nil
					continue
				}
				s.coordinator.NotifyFilesChanged(paths)

			case _, ok := <-repo:
				if !ok {
					repo = nil
					continue
				}
				s.coordinator.RequestFullRefresh()

			case _, ok := <-bookmark:
				if !ok {
					bookmark = nil
					continue
				}
				s.refreshBookmark()

			case list, ok := <-bookmarks:
				if !ok {
					bookmarks = nil
					continue
				}
				s.setBookmarks(list)

			case state, ok := <-conflict:
				if !ok {
					conflict = nil
					continue
				}
				s.setConflict(state)
			}
		}
	}()
}

// NotifyFilesChanged feeds externally observed file changes (editor
// saves, filesystem watches) into the debounced refresh pipeline.
func (s *Session) NotifyFilesChanged(paths []string) {
	if s.destroyed.Load() {
		return
	}
	s.coordinator.NotifyFilesChanged(paths)
}

// RefreshStatus requests a full refresh through the shared debounced,
// serialized pipeline, so concurrent callers coalesce into one run.
func (s *Session) RefreshStatus() {
	if s.destroyed.Load() {
		return
	}
	s.coordinator.RequestFullRefresh()
}

// WaitForRefresh blocks until no refresh is armed or in flight.
func (s *Session) WaitForRefresh() {
	s.coordinator.Wait()
}

// GetStatuses returns statuses for the paths, fetching misses in one
// batched backend call.
func (s *Session) GetStatuses(ctx context.Context, paths []string, filter vcs.FilterOption) (map[string]vcs.StatusCode, error) {
	if s.destroyed.Load() {
		return nil, ErrSessionDestroyed
	}
	return s.statuses.GetStatuses(ctx, paths, filter)
}

// CachedPathStatus returns the cached status for a path without
// fetching. Unknown paths report StatusClean.
func (s *Session) CachedPathStatus(path string) vcs.StatusCode {
	return s.statuses.CachedStatus(path)
}

// AllPathStatuses returns a copy of every cached path status.
func (s *Session) AllPathStatuses() map[string]vcs.StatusCode {
	return s.statuses.All()
}

// DirectoryStatus reports StatusModified for directories containing a
// modified descendant, StatusClean otherwise.
func (s *Session) DirectoryStatus(dir string) vcs.StatusCode {
	return s.dirIndex.Status(dir)
}

// UpdateDiffInfo fetches and caches diff info for the paths.
// A backend failure returns nil with the error; cache-only readers are
// unaffected.
func (s *Session) UpdateDiffInfo(ctx context.Context, paths []string) (map[string]vcs.DiffInfo, error) {
	if s.destroyed.Load() {
		return nil, ErrSessionDestroyed
	}
	return s.diffs.Update(ctx, paths)
}

// DiffStats returns cached added/deleted counts; zero for unknown paths.
func (s *Session) DiffStats(path string) vcs.DiffStats {
	return s.diffs.Stats(path)
}

// LineDiffs returns cached line-level diff records; nil for unknown
// paths. Never blocks.
func (s *Session) LineDiffs(path string) []vcs.LineDiff {
	return s.diffs.Lines(path)
}

// RemoveDiffPath drops a path from the diff cache, deferring the
// removal past any in-flight fetch for it.
func (s *Session) RemoveDiffPath(path string) {
	s.diffs.Remove(path)
}

// ActiveBookmark returns the active bookmark, fetching on the first
// read miss. Fetch failure is benign and reported as no bookmark.
func (s *Session) ActiveBookmark(ctx context.Context) string {
	s.mu.Lock()
	if s.bookmarkKnown {
		defer s.mu.Unlock()
		return s.bookmark
	}
	s.mu.Unlock()

	name, err := s.service.FetchActiveBookmark(ctx)
	if err != nil {
		// The backend has no bookmark mid-rebase; not an error.
		name = ""
	}

	s.mu.Lock()
	s.bookmark = name
	s.bookmarkKnown = true
	s.mu.Unlock()
	return name
}

// Bookmarks returns the last-known bookmark list.
func (s *Session) Bookmarks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]string, len(s.bookmarks))
	copy(list, s.bookmarks)
	return list
}

// InConflict reports the last-known conflict state.
func (s *Session) InConflict() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conflict
}

// ShortHead returns the last-known short head revision identifier.
func (s *Session) ShortHead() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shortHead
}

// FileContentAtRevision returns the file's content at a revision,
// memoized per revision and path.
func (s *Session) FileContentAtRevision(ctx context.Context, path, rev string) (string, error) {
	if s.destroyed.Load() {
		return "", ErrSessionDestroyed
	}
	return s.revisions.ContentAt(ctx, path, rev)
}

// FilesChangedAtRevision returns the files a revision touched, memoized
// per revision.
func (s *Session) FilesChangedAtRevision(ctx context.Context, rev string) (vcs.FileChanges, error) {
	if s.destroyed.Load() {
		return nil, ErrSessionDestroyed
	}
	return s.revisions.FilesChangedAt(ctx, rev)
}

// Commit records the paths with the message, then invalidates the whole
// cache: a commit can change arbitrary file state.
func (s *Session) Commit(ctx context.Context, message string, paths []string) error {
	if s.destroyed.Load() {
		return ErrSessionDestroyed
	}
	if err := s.service.Commit(ctx, message, paths); err != nil {
		return err
	}
	s.invalidateAll()
	return nil
}

// Amend folds pending changes into the previous commit, then
// invalidates the whole cache.
func (s *Session) Amend(ctx context.Context, message string) error {
	if s.destroyed.Load() {
		return ErrSessionDestroyed
	}
	if err := s.service.Amend(ctx, message); err != nil {
		return err
	}
	s.invalidateAll()
	return nil
}

// Destroy tears the session down: caches emptied, subscriptions
// disposed, in-flight refresh callbacks neutered. Idempotent; blocks
// until any refresh in flight has completed.
func (s *Session) Destroy() {
	if s.destroyed.Swap(true) {
		return
	}

	close(s.stop)
	s.coordinator.Stop()
	// Join any refresh still in flight so its ReplaceAll cannot land
	// after the caches are cleared below.
	s.coordinator.Wait()
	s.wg.Wait()

	s.statuses.Clear()
	s.diffs.Clear()
	s.revisions.Purge()

	s.notifier.Destroyed.Emit(struct{}{})
	s.notifier.Clear()
}

// invalidateAll drops every cache and schedules a full refresh; one
// coarse event tells subscribers everything may have changed.
func (s *Session) invalidateAll() {
	s.statuses.Clear()
	s.diffs.Clear()
	s.notifier.StatusesChanged.Emit(struct{}{})
	s.coordinator.RequestFullRefresh()
}

// refreshBookmark re-fetches the active bookmark after a notification,
// emitting a change event only when the value moved.
func (s *Session) refreshBookmark() {
	if s.destroyed.Load() {
		return
	}

	name, err := s.service.FetchActiveBookmark(context.Background())
	if err != nil {
		name = ""
	}

	s.mu.Lock()
	changed := !s.bookmarkKnown || s.bookmark != name
	s.bookmark = name
	s.bookmarkKnown = true
	s.mu.Unlock()

	if changed && !s.destroyed.Load() {
		s.notifier.BookmarkChanged.Emit(name)
	}
}

// setBookmarks stores a backend-delivered bookmark list verbatim.
func (s *Session) setBookmarks(list []string) {
	s.mu.Lock()
	s.bookmarks = list
	s.mu.Unlock()

	if !s.destroyed.Load() {
		s.notifier.BookmarksChanged.Emit(list)
	}
}

// setConflict stores a backend-delivered conflict state.
func (s *Session) setConflict(state bool) {
	s.mu.Lock()
	changed := s.conflict != state
	s.conflict = state
	s.mu.Unlock()

	if changed && !s.destroyed.Load() {
		s.notifier.ConflictChanged.Emit(state)
	}
}

// refreshHead re-fetches the short head after a full refresh. Failure
// is suppressed like the bookmark fetch.
func (s *Session) refreshHead() {
	if s.destroyed.Load() {
		return
	}

	head, err := s.service.FetchShortHead(context.Background())
	if err != nil {
		return
	}

	s.mu.Lock()
	changed := s.shortHead != head
	s.shortHead = head
	s.mu.Unlock()

	if changed && !s.destroyed.Load() {
		s.notifier.ShortHeadChanged.Emit(head)
	}
}
