package diffcache

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dshills/repostatus/internal/backend/backendtest"
	"github.com/dshills/repostatus/internal/notify"
	"github.com/dshills/repostatus/internal/vcs"
)

func newTestCache(service *backendtest.FakeService) (*Cache, *notify.Notifier) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	notifier := notify.NewNotifier()
	cache := NewCache("/repo", service, notifier, logger.WithField("component", "test"))
	return cache, notifier
}

func diffFixture(paths []string) (map[string]vcs.DiffInfo, error) {
	result := make(map[string]vcs.DiffInfo)
	for _, path := range paths {
		result[path] = vcs.DiffInfo{
			Added:   2,
			Deleted: 1,
			Lines: []vcs.LineDiff{
				{Type: vcs.LineAdded, NewLineNo: 1, Content: "new"},
			},
		}
	}
	return result, nil
}

func TestUpdateCachesStatsAndLines(t *testing.T) {
	service := &backendtest.FakeService{DiffFn: diffFixture}
	cache, notifier := newTestCache(service)

	var coarse int
	notifier.StatusesChanged.Subscribe(func(struct{}) { coarse++ })

	result, err := cache.Update(context.Background(), []string{"/repo/a.txt"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if info := result["/repo/a.txt"]; info.Added != 2 || info.Deleted != 1 {
		t.Errorf("unexpected diff info: %+v", info)
	}

	stats := cache.Stats("/repo/a.txt")
	if stats.Added != 2 || stats.Deleted != 1 {
		t.Errorf("Stats = %+v, want {Added:2 Deleted:1}", stats)
	}
	lines := cache.Lines("/repo/a.txt")
	if len(lines) != 1 || lines[0].Type != vcs.LineAdded {
		t.Errorf("Lines = %v", lines)
	}
	if coarse != 1 {
		t.Errorf("expected 1 coarse event, got %d", coarse)
	}
}

func TestUpdateIgnoresPathsOutsideRoot(t *testing.T) {
	service := &backendtest.FakeService{DiffFn: diffFixture}
	cache, _ := newTestCache(service)

	result, err := cache.Update(context.Background(), []string{"/elsewhere/a.txt"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %v", result)
	}
	if got := service.DiffCalls(); got != 0 {
		t.Errorf("expected no backend calls, got %d", got)
	}
}

func TestUpdateUnknownPathReportsZeroStats(t *testing.T) {
	cache, _ := newTestCache(&backendtest.FakeService{})

	if stats := cache.Stats("/repo/missing.txt"); stats.Added != 0 || stats.Deleted != 0 {
		t.Errorf("expected zero stats for unknown path, got %+v", stats)
	}
	if lines := cache.Lines("/repo/missing.txt"); lines != nil {
		t.Errorf("expected nil lines for unknown path, got %v", lines)
	}
}

func TestUpdateDeduplicatesInFlightPaths(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	service := &backendtest.FakeService{
		DiffFn: func(paths []string) (map[string]vcs.DiffInfo, error) {
			close(started)
			<-release
			return diffFixture(paths)
		},
	}
	cache, _ := newTestCache(service)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := cache.Update(context.Background(), []string{"/repo/a.txt"}); err != nil {
			t.Errorf("first Update: %v", err)
		}
	}()

	<-started

	// The same path is mid-fetch, so the second update must not hit the
	// backend again.
	result, err := cache.Update(context.Background(), []string{"/repo/a.txt"})
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected no cached value while the fetch is in flight, got %v", result)
	}

	close(release)
	<-done

	if got := service.DiffCalls(); got != 1 {
		t.Errorf("expected 1 backend call, got %d", got)
	}
	if stats := cache.Stats("/repo/a.txt"); stats.Added != 2 {
		t.Errorf("first fetch result lost: %+v", stats)
	}
}

func TestUpdateFailureClearsMarkersAndKeepsCache(t *testing.T) {
	fail := true
	service := &backendtest.FakeService{
		DiffFn: func(paths []string) (map[string]vcs.DiffInfo, error) {
			if fail {
				return nil, errors.New("backend gone")
			}
			return diffFixture(paths)
		},
	}
	cache, notifier := newTestCache(service)

	var coarse int
	notifier.StatusesChanged.Subscribe(func(struct{}) { coarse++ })

	if _, err := cache.Update(context.Background(), []string{"/repo/a.txt"}); err == nil {
		t.Fatal("expected error from failed update")
	}
	if coarse != 0 {
		t.Errorf("failed update emitted %d events, want 0", coarse)
	}

	// The in-flight marker must be released so the path can be retried.
	fail = false
	if _, err := cache.Update(context.Background(), []string{"/repo/a.txt"}); err != nil {
		t.Fatalf("retry Update: %v", err)
	}
	if stats := cache.Stats("/repo/a.txt"); stats.Added != 2 {
		t.Errorf("retry did not populate the cache: %+v", stats)
	}
	if got := service.DiffCalls(); got != 2 {
		t.Errorf("expected 2 backend calls, got %d", got)
	}
}

func TestRemoveDuringFetchIsDeferred(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	service := &backendtest.FakeService{
		DiffFn: func(paths []string) (map[string]vcs.DiffInfo, error) {
			close(started)
			<-release
			return diffFixture(paths)
		},
	}
	cache, _ := newTestCache(service)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := cache.Update(context.Background(), []string{"/repo/a.txt"}); err != nil {
			t.Errorf("Update: %v", err)
		}
	}()

	<-started
	cache.Remove("/repo/a.txt")
	close(release)
	<-done

	// The removal was queued during the fetch and applied after the
	// merge, so the fetched value must not survive.
	if got := cache.Paths(); len(got) != 0 {
		t.Errorf("removed path resurrected by in-flight fetch: %v", got)
	}
}

func TestRemoveIdleDropsImmediately(t *testing.T) {
	service := &backendtest.FakeService{DiffFn: diffFixture}
	cache, _ := newTestCache(service)

	if _, err := cache.Update(context.Background(), []string{"/repo/a.txt"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	cache.Remove("/repo/a.txt")

	if len(cache.Paths()) != 0 {
		t.Errorf("expected empty cache after Remove, got %v", cache.Paths())
	}
}

func TestClearDropsAllEntries(t *testing.T) {
	service := &backendtest.FakeService{DiffFn: diffFixture}
	cache, _ := newTestCache(service)

	if _, err := cache.Update(context.Background(), []string{"/repo/a.txt", "/repo/b.txt"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	cache.Clear()

	if len(cache.Paths()) != 0 {
		t.Errorf("expected empty cache after Clear, got %v", cache.Paths())
	}
}
