// Package backendtest provides a configurable in-memory Service fake
// with call counters for cache and coordinator tests.
package backendtest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dshills/repostatus/internal/backend"
	"github.com/dshills/repostatus/internal/vcs"
)

// Ensure FakeService implements backend.Service.
var _ backend.Service = (*FakeService)(nil)

// FakeService implements backend.Service from configurable fixtures.
// The zero value answers every call with empty results.
type FakeService struct {
	mu sync.Mutex

	// StatusFn answers FetchStatuses when set.
	StatusFn func(paths []string, filter vcs.FilterOption) (map[string]vcs.StatusCode, error)

	// DiffFn answers FetchDiffInfo when set.
	DiffFn func(paths []string) (map[string]vcs.DiffInfo, error)

	// ContentFn answers FetchFileContentAtRevision when set.
	ContentFn func(path, rev string) (string, error)

	// ChangesFn answers FetchFilesChangedAtRevision when set.
	ChangesFn func(rev string) (vcs.FileChanges, error)

	Bookmark    string
	BookmarkErr error
	Bookmarks   []string
	Head        string
	HeadErr     error
	CommitErr   error
	AmendErr    error

	statusCalls  atomic.Int32
	diffCalls    atomic.Int32
	contentCalls atomic.Int32
	changesCalls atomic.Int32
	commitCalls  atomic.Int32
	amendCalls   atomic.Int32

	lastStatusPaths  []string
	lastStatusFilter vcs.FilterOption
	lastDiffPaths    []string
}

// FetchStatuses records the call and delegates to StatusFn.
func (f *FakeService) FetchStatuses(_ context.Context, paths []string, filter vcs.FilterOption) (map[string]vcs.StatusCode, error) {
	f.statusCalls.Add(1)
	f.mu.Lock()
	f.lastStatusPaths = append([]string(nil), paths...)
	f.lastStatusFilter = filter
	f.mu.Unlock()

	if f.StatusFn == nil {
		return map[string]vcs.StatusCode{}, nil
	}
	return f.StatusFn(paths, filter)
}

// FetchDiffInfo records the call and delegates to DiffFn.
func (f *FakeService) FetchDiffInfo(_ context.Context, paths []string) (map[string]vcs.DiffInfo, error) {
	f.diffCalls.Add(1)
	f.mu.Lock()
	f.lastDiffPaths = append([]string(nil), paths...)
	f.mu.Unlock()

	if f.DiffFn == nil {
		return map[string]vcs.DiffInfo{}, nil
	}
	return f.DiffFn(paths)
}

// FetchActiveBookmark returns the fixture bookmark.
func (f *FakeService) FetchActiveBookmark(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Bookmark, f.BookmarkErr
}

// FetchBookmarks returns the fixture bookmark list.
func (f *FakeService) FetchBookmarks(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Bookmarks...), nil
}

// FetchShortHead returns the fixture head.
func (f *FakeService) FetchShortHead(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Head, f.HeadErr
}

// FetchFileContentAtRevision records the call and delegates to ContentFn.
func (f *FakeService) FetchFileContentAtRevision(_ context.Context, path, rev string) (string, error) {
	f.contentCalls.Add(1)
	if f.ContentFn == nil {
		return "", nil
	}
	return f.ContentFn(path, rev)
}

// FetchFilesChangedAtRevision records the call and delegates to ChangesFn.
func (f *FakeService) FetchFilesChangedAtRevision(_ context.Context, rev string) (vcs.FileChanges, error) {
	f.changesCalls.Add(1)
	if f.ChangesFn == nil {
		return nil, nil
	}
	return f.ChangesFn(rev)
}

// Commit records the call.
func (f *FakeService) Commit(context.Context, string, []string) error {
	f.commitCalls.Add(1)
	return f.CommitErr
}

// Amend records the call.
func (f *FakeService) Amend(context.Context, string) error {
	f.amendCalls.Add(1)
	return f.AmendErr
}

// StatusCalls returns how many times FetchStatuses ran.
func (f *FakeService) StatusCalls() int { return int(f.statusCalls.Load()) }

// DiffCalls returns how many times FetchDiffInfo ran.
func (f *FakeService) DiffCalls() int { return int(f.diffCalls.Load()) }

// ContentCalls returns how many times FetchFileContentAtRevision ran.
func (f *FakeService) ContentCalls() int { return int(f.contentCalls.Load()) }

// ChangesCalls returns how many times FetchFilesChangedAtRevision ran.
func (f *FakeService) ChangesCalls() int { return int(f.changesCalls.Load()) }

// CommitCalls returns how many times Commit ran.
func (f *FakeService) CommitCalls() int { return int(f.commitCalls.Load()) }

// AmendCalls returns how many times Amend ran.
func (f *FakeService) AmendCalls() int { return int(f.amendCalls.Load()) }

// LastStatusPaths returns the paths of the most recent status fetch.
func (f *FakeService) LastStatusPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lastStatusPaths...)
}

// LastStatusFilter returns the filter of the most recent status fetch.
func (f *FakeService) LastStatusFilter() vcs.FilterOption {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastStatusFilter
}

// LastDiffPaths returns the paths of the most recent diff fetch.
func (f *FakeService) LastDiffPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lastDiffPaths...)
}
