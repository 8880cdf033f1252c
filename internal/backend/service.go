// Package backend defines the contract with the version-control backend
// process and provides a subprocess client implementing it. The backend
// executes the actual version-control commands; this package only moves
// requests and raw results across the process boundary.
package backend

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dshills/repostatus/internal/vcs"
)

// Common errors returned by backend operations.
var (
	// ErrShutdown indicates the transport has been closed.
	ErrShutdown = errors.New("backend transport is shut down")

	// ErrBackendUnavailable indicates the backend rejected or failed a call.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Service is the query/mutation surface of the version-control backend.
// All calls are asynchronous at the process boundary and may block on
// the context; implementations must be safe for concurrent use.
type Service interface {
	// FetchStatuses returns the status for each requested path that
	// falls inside the filter's scope. Paths outside the scope are
	// absent from the result.
	FetchStatuses(ctx context.Context, paths []string, filter vcs.FilterOption) (map[string]vcs.StatusCode, error)

	// FetchDiffInfo returns per-path diffs versus the base revision in
	// one batched call. A nil map with nil error means no update.
	FetchDiffInfo(ctx context.Context, paths []string) (map[string]vcs.DiffInfo, error)

	// FetchActiveBookmark returns the active bookmark name, or the
	// empty string when none is active. Failure is expected during
	// operations like a rebase and must be treated as "no bookmark".
	FetchActiveBookmark(ctx context.Context) (string, error)

	// FetchBookmarks returns every bookmark name.
	FetchBookmarks(ctx context.Context) ([]string, error)

	// FetchShortHead returns the short identifier of the working
	// copy's parent revision.
	FetchShortHead(ctx context.Context) (string, error)

	// FetchFileContentAtRevision returns the file's content as of the
	// given revision.
	FetchFileContentAtRevision(ctx context.Context, path, revision string) (string, error)

	// FetchFilesChangedAtRevision returns the files touched by the
	// given revision.
	FetchFilesChangedAtRevision(ctx context.Context, revision string) (vcs.FileChanges, error)

	// Commit records the given paths with the message. Passing no
	// paths commits everything pending.
	Commit(ctx context.Context, message string, paths []string) error

	// Amend folds pending changes into the previous commit.
	Amend(ctx context.Context, message string) error
}

// Notifications carries the backend's independent broadcast streams.
// Sends block when a buffer fills; no notification is ever discarded,
// so a consumer that keeps draining observes every change the backend
// reported. The zero value is not usable; construct with NewNotifications.
type Notifications struct {
	// FilesChanged delivers batches of changed file paths.
	FilesChanged chan []string

	// RepoStateChanged signals commits, rebases, checkouts and other
	// operations that can change arbitrary file state.
	RepoStateChanged chan struct{}

	// BookmarkChanged signals that the active bookmark may have moved.
	// It carries no payload; consumers re-fetch.
	BookmarkChanged chan struct{}

	// BookmarksChanged delivers the new bookmark list.
	BookmarksChanged chan []string

	// ConflictChanged delivers the new conflict state.
	ConflictChanged chan bool

	closed atomic.Bool
	done   chan struct{}
}

// NewNotifications creates buffered notification streams.
func NewNotifications() *Notifications {
	return &Notifications{
		FilesChanged:     make(chan []string, 64),
		RepoStateChanged: make(chan struct{}, 8),
		BookmarkChanged:  make(chan struct{}, 8),
		BookmarksChanged: make(chan []string, 8),
		ConflictChanged:  make(chan bool, 8),
		done:             make(chan struct{}),
	}
}

// Close releases producers blocked on full streams. The data channels
// stay open so draining consumers never panic; they simply stop
// receiving. Safe to call more than once.
func (n *Notifications) Close() {
	if n.closed.Swap(true) {
		return
	}
	close(n.done)
}

// Done is closed when the streams are shut down.
func (n *Notifications) Done() <-chan struct{} {
	return n.done
}
