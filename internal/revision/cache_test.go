package revision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dshills/repostatus/internal/backend/backendtest"
	"github.com/dshills/repostatus/internal/vcs"
)

func TestFilesChangedAtFetchesOnce(t *testing.T) {
	service := &backendtest.FakeService{
		ChangesFn: func(rev string) (vcs.FileChanges, error) {
			return vcs.FileChanges{{Path: "a.txt", Status: vcs.StatusModified}}, nil
		},
	}
	cache, err := NewCache(service, 0, 0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	for i := 0; i < 3; i++ {
		changes, err := cache.FilesChangedAt(context.Background(), "abc123")
		if err != nil {
			t.Fatalf("FilesChangedAt: %v", err)
		}
		if len(changes) != 1 || changes[0].Path != "a.txt" {
			t.Fatalf("unexpected changes: %v", changes)
		}
	}

	if got := service.ChangesCalls(); got != 1 {
		t.Errorf("expected 1 backend call, got %d", got)
	}
}

func TestContentAtFetchesPerPathOnce(t *testing.T) {
	service := &backendtest.FakeService{
		ContentFn: func(path, rev string) (string, error) {
			return "content of " + path + "@" + rev, nil
		},
	}
	cache, err := NewCache(service, 0, 0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	for i := 0; i < 2; i++ {
		got, err := cache.ContentAt(context.Background(), "a.txt", "abc123")
		if err != nil {
			t.Fatalf("ContentAt: %v", err)
		}
		if got != "content of a.txt@abc123" {
			t.Fatalf("unexpected content: %q", got)
		}
	}

	// A second path at the same revision is a distinct fetch, stored in
	// the same revision entry.
	if _, err := cache.ContentAt(context.Background(), "b.txt", "abc123"); err != nil {
		t.Fatalf("ContentAt: %v", err)
	}

	if got := service.ContentCalls(); got != 2 {
		t.Errorf("expected 2 backend calls, got %d", got)
	}
	if got := cache.ContentsLen(); got != 1 {
		t.Errorf("expected 1 revision entry, got %d", got)
	}
}

func TestFilesChangedAtErrorNotCached(t *testing.T) {
	fail := true
	service := &backendtest.FakeService{
		ChangesFn: func(rev string) (vcs.FileChanges, error) {
			if fail {
				return nil, errors.New("backend gone")
			}
			return vcs.FileChanges{{Path: "a.txt", Status: vcs.StatusAdded}}, nil
		},
	}
	cache, err := NewCache(service, 0, 0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	if _, err := cache.FilesChangedAt(context.Background(), "abc123"); err == nil {
		t.Fatal("expected error from failed fetch")
	}

	fail = false
	changes, err := cache.FilesChangedAt(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("retry FilesChangedAt: %v", err)
	}
	if len(changes) != 1 {
		t.Errorf("unexpected changes: %v", changes)
	}
	if got := service.ChangesCalls(); got != 2 {
		t.Errorf("expected 2 backend calls, got %d", got)
	}
}

func TestConcurrentMissesCollapse(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	service := &backendtest.FakeService{
		ChangesFn: func(rev string) (vcs.FileChanges, error) {
			once.Do(func() { close(started) })
			<-release
			return vcs.FileChanges{{Path: "a.txt", Status: vcs.StatusModified}}, nil
		},
	}
	cache, err := NewCache(service, 0, 0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.FilesChangedAt(context.Background(), "abc123"); err != nil {
				t.Errorf("FilesChangedAt: %v", err)
			}
		}()
	}

	<-started
	close(release)
	wg.Wait()

	if got := service.ChangesCalls(); got != 1 {
		t.Errorf("expected concurrent misses to collapse to 1 call, got %d", got)
	}
}

func TestChangesCapacityEvictsOldest(t *testing.T) {
	service := &backendtest.FakeService{
		ChangesFn: func(rev string) (vcs.FileChanges, error) {
			return vcs.FileChanges{}, nil
		},
	}
	cache, err := NewCache(service, 2, 2)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	for i := 0; i < 3; i++ {
		rev := fmt.Sprintf("rev%d", i)
		if _, err := cache.FilesChangedAt(context.Background(), rev); err != nil {
			t.Fatalf("FilesChangedAt(%s): %v", rev, err)
		}
	}

	if got := cache.ChangesLen(); got != 2 {
		t.Errorf("expected cache bounded at 2, got %d", got)
	}

	// rev0 was evicted; looking it up again must refetch.
	if _, err := cache.FilesChangedAt(context.Background(), "rev0"); err != nil {
		t.Fatalf("FilesChangedAt(rev0): %v", err)
	}
	if got := service.ChangesCalls(); got != 4 {
		t.Errorf("expected 4 backend calls, got %d", got)
	}
}

func TestPurgeEmptiesBothCaches(t *testing.T) {
	service := &backendtest.FakeService{
		ChangesFn: func(string) (vcs.FileChanges, error) { return vcs.FileChanges{}, nil },
		ContentFn: func(string, string) (string, error) { return "x", nil },
	}
	cache, err := NewCache(service, 0, 0)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	if _, err := cache.FilesChangedAt(context.Background(), "abc"); err != nil {
		t.Fatalf("FilesChangedAt: %v", err)
	}
	if _, err := cache.ContentAt(context.Background(), "a.txt", "abc"); err != nil {
		t.Fatalf("ContentAt: %v", err)
	}

	cache.Purge()

	if cache.ChangesLen() != 0 || cache.ContentsLen() != 0 {
		t.Errorf("Purge left entries: changes=%d contents=%d", cache.ChangesLen(), cache.ContentsLen())
	}
}
