package backend

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
)

func newIdleClient() *Client {
	return NewClient(NewTransport(strings.NewReader(""), io.Discard, nil))
}

func TestFilesChangedSurvivesFullBuffer(t *testing.T) {
	c := newIdleClient()
	streams := c.Notifications()

	// Fill the stream to capacity.
	filler := cap(streams.FilesChanged)
	for i := 0; i < filler; i++ {
		streams.FilesChanged <- []string{"/repo/filler.txt"}
	}

	delivered := make(chan struct{})
	go func() {
		c.onFilesChanged("files-changed", gjson.Parse(`{"paths":["/repo/lost.txt"]}`))
		close(delivered)
	}()

	// The handler must block, not drop.
	select {
	case <-delivered:
		t.Fatal("handler returned against a full buffer without delivering")
	case <-time.After(20 * time.Millisecond):
	}

	// Drain; the batch sent against the full buffer must arrive.
	found := false
	for i := 0; i < filler+1; i++ {
		select {
		case batch := <-streams.FilesChanged:
			for _, p := range batch {
				if p == "/repo/lost.txt" {
					found = true
				}
			}
		case <-time.After(time.Second):
			t.Fatal("stream dried up before delivering every batch")
		}
	}

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("handler never finished after the buffer drained")
	}
	if !found {
		t.Error("files-changed batch lost against a full buffer")
	}
}

func TestRepoStateChangedSurvivesFullBuffer(t *testing.T) {
	c := newIdleClient()
	streams := c.Notifications()

	filler := cap(streams.RepoStateChanged)
	for i := 0; i < filler; i++ {
		streams.RepoStateChanged <- struct{}{}
	}

	delivered := make(chan struct{})
	go func() {
		c.onRepoStateChanged("repo-state-changed", gjson.Result{})
		close(delivered)
	}()

	received := 0
	for i := 0; i < filler+1; i++ {
		select {
		case <-streams.RepoStateChanged:
			received++
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d repo-state notifications", received, filler+1)
		}
	}

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("handler never finished after the buffer drained")
	}
}

func TestCloseReleasesBlockedHandler(t *testing.T) {
	c := newIdleClient()
	streams := c.Notifications()

	for i := 0; i < cap(streams.FilesChanged); i++ {
		streams.FilesChanged <- []string{"/repo/filler.txt"}
	}

	released := make(chan struct{})
	go func() {
		c.onFilesChanged("files-changed", gjson.Parse(`{"paths":["/repo/a.txt"]}`))
		close(released)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("blocked handler not released by Close")
	}
}
