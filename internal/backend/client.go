package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/tidwall/gjson"

	"github.com/dshills/repostatus/internal/vcs"
)

// Client implements Service over a Transport and surfaces the backend's
// broadcast notifications as channel streams.
type Client struct {
	transport     *Transport
	notifications *Notifications
}

// NewClient creates a client over an already-started transport and
// registers its notification handlers.
func NewClient(t *Transport) *Client {
	c := &Client{
		transport:     t,
		notifications: NewNotifications(),
	}

	t.OnNotification("files-changed", c.onFilesChanged)
	t.OnNotification("repo-state-changed", c.onRepoStateChanged)
	t.OnNotification("bookmark-changed", c.onBookmarkChanged)
	t.OnNotification("bookmarks-changed", c.onBookmarksChanged)
	t.OnNotification("conflict-changed", c.onConflictChanged)

	return c
}

// StartCommand launches the backend process and returns a client wired
// to its stdio.
func StartCommand(ctx context.Context, name string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start backend: %w", err)
	}

	t := NewTransport(stdout, stdin, stdin)
	t.Start(ctx)
	return NewClient(t), nil
}

// Notifications returns the backend's broadcast streams.
func (c *Client) Notifications() *Notifications {
	return c.notifications
}

// Close shuts down the transport and releases any handler blocked on a
// full notification stream. The streams remain open so draining
// consumers do not panic.
func (c *Client) Close() error {
	err := c.transport.Close()
	c.notifications.Close()
	return err
}

// FetchStatuses returns the status of each path inside the filter scope.
func (c *Client) FetchStatuses(ctx context.Context, paths []string, filter vcs.FilterOption) (map[string]vcs.StatusCode, error) {
	result, err := c.transport.Call(ctx, "status", map[string]any{
		"paths":  paths,
		"filter": filter.String(),
	})
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]vcs.StatusCode)
	result.Get("statuses").ForEach(func(key, value gjson.Result) bool {
		statuses[key.String()] = vcs.ParseStatusCode(value.String())
		return true
	})
	return statuses, nil
}

// FetchDiffInfo returns per-path diffs versus the base revision. The
// backend replies with base-revision content; line records are computed
// against the working copy here.
func (c *Client) FetchDiffInfo(ctx context.Context, paths []string) (map[string]vcs.DiffInfo, error) {
	result, err := c.transport.Call(ctx, "diff", map[string]any{"paths": paths})
	if err != nil {
		return nil, err
	}

	diffs := make(map[string]vcs.DiffInfo)
	var readErr error
	result.Get("diffs").ForEach(func(key, value gjson.Result) bool {
		path := key.String()
		current, err := os.ReadFile(path)
		if err != nil {
			// A deleted file diffs as empty content.
			if !os.IsNotExist(err) {
				readErr = fmt.Errorf("read working copy %s: %w", path, err)
				return false
			}
			current = nil
		}
		diffs[path] = computeDiffInfo(value.Get("base").String(), string(current))
		return true
	})
	if readErr != nil {
		return nil, readErr
	}
	return diffs, nil
}

// FetchActiveBookmark returns the active bookmark name.
func (c *Client) FetchActiveBookmark(ctx context.Context) (string, error) {
	result, err := c.transport.Call(ctx, "bookmark", nil)
	if err != nil {
		return "", err
	}
	return result.Get("bookmark").String(), nil
}

// FetchBookmarks returns every bookmark name.
func (c *Client) FetchBookmarks(ctx context.Context) ([]string, error) {
	result, err := c.transport.Call(ctx, "bookmarks", nil)
	if err != nil {
		return nil, err
	}

	var bookmarks []string
	for _, name := range result.Get("bookmarks").Array() {
		bookmarks = append(bookmarks, name.String())
	}
	return bookmarks, nil
}

// FetchShortHead returns the short working-copy parent revision id.
func (c *Client) FetchShortHead(ctx context.Context) (string, error) {
	result, err := c.transport.Call(ctx, "shorthead", nil)
	if err != nil {
		return "", err
	}
	return result.Get("head").String(), nil
}

// FetchFileContentAtRevision returns the file content at a revision.
func (c *Client) FetchFileContentAtRevision(ctx context.Context, path, revision string) (string, error) {
	result, err := c.transport.Call(ctx, "cat", map[string]any{
		"path":     path,
		"revision": revision,
	})
	if err != nil {
		return "", err
	}
	return result.Get("content").String(), nil
}

// FetchFilesChangedAtRevision returns the files a revision touched.
func (c *Client) FetchFilesChangedAtRevision(ctx context.Context, revision string) (vcs.FileChanges, error) {
	result, err := c.transport.Call(ctx, "changes", map[string]any{"revision": revision})
	if err != nil {
		return nil, err
	}

	var changes vcs.FileChanges
	for _, entry := range result.Get("changes").Array() {
		changes = append(changes, vcs.FileChange{
			Path:   entry.Get("path").String(),
			Status: vcs.ParseStatusCode(entry.Get("status").String()),
		})
	}
	return changes, nil
}

// Commit records the given paths with the message.
func (c *Client) Commit(ctx context.Context, message string, paths []string) error {
	_, err := c.transport.Call(ctx, "commit", map[string]any{
		"message": message,
		"paths":   paths,
	})
	return err
}

// Amend folds pending changes into the previous commit.
func (c *Client) Amend(ctx context.Context, message string) error {
	_, err := c.transport.Call(ctx, "amend", map[string]any{"message": message})
	return err
}

// Handlers run on their own goroutine per notification (the transport
// dispatches them off the read loop), so they block until the consumer
// takes the value rather than dropping it: a lost files-changed batch
// would leave the cache permanently stale for those paths.

func (c *Client) onFilesChanged(_ string, params gjson.Result) {
	var paths []string
	for _, p := range params.Get("paths").Array() {
		paths = append(paths, p.String())
	}
	if len(paths) == 0 {
		return
	}
	select {
	case c.notifications.FilesChanged <- paths:
	case <-c.notifications.done:
	}
}

func (c *Client) onRepoStateChanged(_ string, _ gjson.Result) {
	select {
	case c.notifications.RepoStateChanged <- struct{}{}:
	case <-c.notifications.done:
	}
}

func (c *Client) onBookmarkChanged(_ string, _ gjson.Result) {
	select {
	case c.notifications.BookmarkChanged <- struct{}{}:
	case <-c.notifications.done:
	}
}

func (c *Client) onBookmarksChanged(_ string, params gjson.Result) {
	var bookmarks []string
	for _, name := range params.Get("bookmarks").Array() {
		bookmarks = append(bookmarks, name.String())
	}
	select {
	case c.notifications.BookmarksChanged <- bookmarks:
	case <-c.notifications.done:
	}
}

func (c *Client) onConflictChanged(_ string, params gjson.Result) {
	select {
	case c.notifications.ConflictChanged <- params.Get("conflict").Bool():
	case <-c.notifications.done:
	}
}

// Ensure Client implements Service.
var _ Service = (*Client)(nil)
