// Package vcs defines the shared vocabulary for version-control state:
// per-file status codes, fetch filter options, diff records, and
// per-revision change lists. It carries no behavior beyond predicates
// and string formatting so every other package can depend on it freely.
package vcs

// StatusCode describes a file's relation to the last committed state.
type StatusCode int

const (
	// StatusClean indicates the file matches the committed state.
	// Clean paths are never stored in caches; absence means clean.
	StatusClean StatusCode = iota
	// StatusModified indicates the file has uncommitted changes.
	StatusModified
	// StatusAdded indicates the file is newly tracked.
	StatusAdded
	// StatusUntracked indicates the file is not tracked.
	StatusUntracked
	// StatusIgnored indicates the file matches an ignore rule.
	StatusIgnored
	// StatusMissing indicates a tracked file absent from the working tree.
	StatusMissing
	// StatusRemoved indicates a tracked file marked for removal.
	StatusRemoved
)

// String returns the string representation of a StatusCode.
func (s StatusCode) String() string {
	switch s {
	case StatusClean:
		return "clean"
	case StatusModified:
		return "modified"
	case StatusAdded:
		return "added"
	case StatusUntracked:
		return "untracked"
	case StatusIgnored:
		return "ignored"
	case StatusMissing:
		return "missing"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ParseStatusCode converts a backend status string to a StatusCode.
// Unrecognized strings map to StatusClean.
func ParseStatusCode(s string) StatusCode {
	switch s {
	case "modified":
		return StatusModified
	case "added":
		return StatusAdded
	case "untracked":
		return StatusUntracked
	case "ignored":
		return StatusIgnored
	case "missing":
		return StatusMissing
	case "removed":
		return StatusRemoved
	default:
		return StatusClean
	}
}

// FilterOption selects which status classifications a fetch or refresh
// covers.
type FilterOption int

const (
	// FilterHideIgnored covers every status except ignored. Default.
	FilterHideIgnored FilterOption = iota
	// FilterOnlyIgnored covers only ignored paths.
	FilterOnlyIgnored
	// FilterAllStatuses covers every status.
	FilterAllStatuses
)

// String returns the string representation of a FilterOption.
func (f FilterOption) String() string {
	switch f {
	case FilterHideIgnored:
		return "hide-ignored"
	case FilterOnlyIgnored:
		return "only-ignored"
	case FilterAllStatuses:
		return "all-statuses"
	default:
		return "unknown"
	}
}

// Allows reports whether a status code falls inside the filter's scope.
func (f FilterOption) Allows(code StatusCode) bool {
	switch f {
	case FilterHideIgnored:
		return code != StatusIgnored
	case FilterOnlyIgnored:
		return code == StatusIgnored
	case FilterAllStatuses:
		return true
	default:
		return false
	}
}

// LineDiffType is the kind of a single line-level diff record.
type LineDiffType byte

const (
	// LineContext is an unchanged line.
	LineContext LineDiffType = ' '
	// LineAdded is a line present only in the working copy.
	LineAdded LineDiffType = '+'
	// LineDeleted is a line present only in the base revision.
	LineDeleted LineDiffType = '-'
)

// LineDiff is one line-level record of a file diff against its base
// revision.
type LineDiff struct {
	// Type is the record kind: context, added, or deleted.
	Type LineDiffType

	// OldLineNo is the line number in the base revision (0 for additions).
	OldLineNo int

	// NewLineNo is the line number in the working copy (0 for deletions).
	NewLineNo int

	// Content is the line text without the type prefix.
	Content string
}

// DiffInfo holds the cached diff of one file versus its base revision.
type DiffInfo struct {
	// Added is the number of added lines.
	Added int

	// Deleted is the number of deleted lines.
	Deleted int

	// Lines are the ordered line-level diff records.
	Lines []LineDiff
}

// DiffStats is the added/deleted summary of a DiffInfo.
type DiffStats struct {
	Added   int
	Deleted int
}

// Stats returns the added/deleted summary for the diff.
func (d DiffInfo) Stats() DiffStats {
	return DiffStats{Added: d.Added, Deleted: d.Deleted}
}

// FileChange records one file touched by a historical revision.
type FileChange struct {
	// Path is the file path relative to the working directory root.
	Path string

	// Status is the change the revision applied to the path.
	Status StatusCode
}

// FileChanges is the ordered list of files changed at one revision.
type FileChanges []FileChange
