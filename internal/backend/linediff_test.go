package backend

import (
	"testing"

	"github.com/dshills/repostatus/internal/vcs"
)

func TestComputeDiffInfoAddedLine(t *testing.T) {
	base := "one\ntwo\n"
	current := "one\ntwo\nthree\n"

	info := computeDiffInfo(base, current)

	if info.Added != 1 || info.Deleted != 0 {
		t.Errorf("counts = +%d/-%d, want +1/-0", info.Added, info.Deleted)
	}

	var added *vcs.LineDiff
	for i := range info.Lines {
		if info.Lines[i].Type == vcs.LineAdded {
			added = &info.Lines[i]
		}
	}
	if added == nil {
		t.Fatal("no added line in diff")
	}
	if added.Content != "three" || added.NewLineNo != 3 {
		t.Errorf("added line = %+v, want content %q at new line 3", added, "three")
	}
}

func TestComputeDiffInfoDeletedLine(t *testing.T) {
	base := "one\ntwo\nthree\n"
	current := "one\nthree\n"

	info := computeDiffInfo(base, current)

	if info.Added != 0 || info.Deleted != 1 {
		t.Errorf("counts = +%d/-%d, want +0/-1", info.Added, info.Deleted)
	}

	var deleted *vcs.LineDiff
	for i := range info.Lines {
		if info.Lines[i].Type == vcs.LineDeleted {
			deleted = &info.Lines[i]
		}
	}
	if deleted == nil {
		t.Fatal("no deleted line in diff")
	}
	if deleted.Content != "two" || deleted.OldLineNo != 2 {
		t.Errorf("deleted line = %+v, want content %q at old line 2", deleted, "two")
	}
}

func TestComputeDiffInfoChangedLine(t *testing.T) {
	base := "one\ntwo\nthree\n"
	current := "one\n2\nthree\n"

	info := computeDiffInfo(base, current)

	if info.Added != 1 || info.Deleted != 1 {
		t.Errorf("counts = +%d/-%d, want +1/-1", info.Added, info.Deleted)
	}
}

func TestComputeDiffInfoIdenticalContent(t *testing.T) {
	content := "one\ntwo\n"

	info := computeDiffInfo(content, content)

	if info.Added != 0 || info.Deleted != 0 {
		t.Errorf("identical content produced +%d/-%d", info.Added, info.Deleted)
	}
	for _, line := range info.Lines {
		if line.Type != vcs.LineContext {
			t.Errorf("identical content produced non-context line %+v", line)
		}
	}
}

func TestComputeDiffInfoNewFile(t *testing.T) {
	info := computeDiffInfo("", "one\ntwo\n")

	if info.Added != 2 || info.Deleted != 0 {
		t.Errorf("counts = +%d/-%d, want +2/-0", info.Added, info.Deleted)
	}
	if len(info.Lines) != 2 {
		t.Fatalf("expected 2 line records, got %v", info.Lines)
	}
	if info.Lines[0].NewLineNo != 1 || info.Lines[1].NewLineNo != 2 {
		t.Errorf("line numbering wrong: %+v", info.Lines)
	}
}

func TestComputeDiffInfoDeletedFile(t *testing.T) {
	info := computeDiffInfo("one\ntwo\n", "")

	if info.Added != 0 || info.Deleted != 2 {
		t.Errorf("counts = +%d/-%d, want +0/-2", info.Added, info.Deleted)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"one\n", 1},
		{"one\ntwo\n", 2},
		{"no trailing newline", 1},
	}

	for _, tt := range tests {
		if got := len(splitLines(tt.in)); got != tt.want {
			t.Errorf("splitLines(%q) returned %d lines, want %d", tt.in, got, tt.want)
		}
	}
}
