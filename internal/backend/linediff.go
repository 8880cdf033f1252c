package backend

import (
	"strings"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dshills/repostatus/internal/vcs"
)

// computeDiffInfo builds line-level diff records for a working copy
// versus its base-revision content.
func computeDiffInfo(base, current string) vcs.DiffInfo {
	dmp := diffpatch.New()
	runes1, runes2, lineArray := dmp.DiffLinesToRunes(base, current)
	diffs := dmp.DiffMainRunes(runes1, runes2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var info vcs.DiffInfo
	oldLine, newLine := 1, 1

	for i := range diffs {
		diff := &diffs[i]
		for _, content := range splitLines(diff.Text) {
			switch diff.Type {
			case diffpatch.DiffInsert:
				info.Lines = append(info.Lines, vcs.LineDiff{
					Type:      vcs.LineAdded,
					NewLineNo: newLine,
					Content:   content,
				})
				info.Added++
				newLine++
			case diffpatch.DiffDelete:
				info.Lines = append(info.Lines, vcs.LineDiff{
					Type:      vcs.LineDeleted,
					OldLineNo: oldLine,
					Content:   content,
				})
				info.Deleted++
				oldLine++
			case diffpatch.DiffEqual:
				info.Lines = append(info.Lines, vcs.LineDiff{
					Type:      vcs.LineContext,
					OldLineNo: oldLine,
					NewLineNo: newLine,
					Content:   content,
				})
				oldLine++
				newLine++
			}
		}
	}

	return info
}

// splitLines splits diff chunk text into lines without trailing newlines.
// A trailing newline does not produce an empty final line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(text, "\n")
	return strings.Split(trimmed, "\n")
}
