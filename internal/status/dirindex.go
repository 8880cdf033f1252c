package status

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/repostatus/internal/vcs"
)

// DirIndex tracks which directories contain modified descendants by
// reference-counting every ancestor of every modified file up to the
// working directory root.
//
// MarkModified and UnmarkModified must be called exactly once per
// modified-state transition; double counting or a missed decrement
// leaves a directory permanently dirty or prematurely clean.
type DirIndex struct {
	mu     sync.RWMutex
	root   string
	counts map[string]int
}

// NewDirIndex creates an index rooted at the working directory.
func NewDirIndex(root string) *DirIndex {
	return &DirIndex{
		root:   filepath.Clean(root),
		counts: make(map[string]int),
	}
}

// MarkModified increments the count of every ancestor directory of the
// path, from its parent up to and including the root.
func (x *DirIndex) MarkModified(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, dir := range x.ancestors(path) {
		x.counts[dir]++
	}
}

// UnmarkModified decrements the same ancestor chain, deleting entries
// whose count reaches zero.
func (x *DirIndex) UnmarkModified(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, dir := range x.ancestors(path) {
		if n, ok := x.counts[dir]; ok {
			if n <= 1 {
				delete(x.counts, dir)
			} else {
				x.counts[dir] = n - 1
			}
		}
	}
}

// Status reports StatusModified for directories with at least one
// modified descendant, StatusClean otherwise.
func (x *DirIndex) Status(dir string) vcs.StatusCode {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.counts[filepath.Clean(dir)] > 0 {
		return vcs.StatusModified
	}
	return vcs.StatusClean
}

// Len returns the number of directories with modified descendants.
func (x *DirIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.counts)
}

// Clear removes every entry.
func (x *DirIndex) Clear() {
	x.mu.Lock()
	x.counts = make(map[string]int)
	x.mu.Unlock()
}

// ancestors returns the directory chain from the path's parent up to
// and including the root. Paths outside the root, and the root itself,
// yield nothing: the root has no ancestors inside the working directory.
func (x *DirIndex) ancestors(path string) []string {
	path = filepath.Clean(path)
	sep := string(filepath.Separator)
	if !strings.HasPrefix(path, x.root+sep) {
		return nil
	}

	var dirs []string
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		dirs = append(dirs, dir)
		if dir == x.root {
			break
		}
		if dir == filepath.Dir(dir) {
			// Filesystem root reached without passing the working
			// directory; should not happen for vetted paths.
			break
		}
	}
	return dirs
}
