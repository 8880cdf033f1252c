package notify

import "github.com/dshills/repostatus/internal/vcs"

// PathStatusEvent reports one path whose cached status changed.
type PathStatusEvent struct {
	// Path is the absolute file path.
	Path string

	// Status is the new status. StatusClean means the path left the cache.
	Status vcs.StatusCode
}

// Notifier bundles the broadcast signals a cache session exposes.
// One Notifier is owned per working directory and cleared on teardown.
type Notifier struct {
	// StatusChanged fires once per path whose cached status changed.
	StatusChanged *Signal[PathStatusEvent]

	// StatusesChanged fires once after any completed cache update.
	StatusesChanged *Signal[struct{}]

	// BookmarkChanged fires when the active bookmark changes.
	// An empty string means no active bookmark.
	BookmarkChanged *Signal[string]

	// BookmarksChanged fires when the bookmark list changes.
	BookmarksChanged *Signal[[]string]

	// ConflictChanged fires when the conflict state flips.
	ConflictChanged *Signal[bool]

	// ShortHeadChanged fires when the short head revision changes.
	ShortHeadChanged *Signal[string]

	// Destroyed fires exactly once when the owning session is torn down.
	Destroyed *Signal[struct{}]
}

// NewNotifier creates a notifier with all signals ready for subscription.
func NewNotifier() *Notifier {
	return &Notifier{
		StatusChanged:    NewSignal[PathStatusEvent](),
		StatusesChanged:  NewSignal[struct{}](),
		BookmarkChanged:  NewSignal[string](),
		BookmarksChanged: NewSignal[[]string](),
		ConflictChanged:  NewSignal[bool](),
		ShortHeadChanged: NewSignal[string](),
		Destroyed:        NewSignal[struct{}](),
	}
}

// Clear cancels every subscription on every signal.
func (n *Notifier) Clear() {
	n.StatusChanged.Clear()
	n.StatusesChanged.Clear()
	n.BookmarkChanged.Clear()
	n.BookmarksChanged.Clear()
	n.ConflictChanged.Clear()
	n.ShortHeadChanged.Clear()
	n.Destroyed.Clear()
}
