package source

import (
	"fmt"
	"sort"
)

// Span is a half-open byte range [Start, End) into a file's source text.
type Span struct {
	Start int
	End   int
}

// Contains reports whether offset falls inside the span, treating End as
// inclusive so a span covering a full line matches its final byte.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start && offset <= s.End
}

func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End)
}

// LineIndex maps byte offsets to line/column positions and back. Lines are
// 1-based; columns are 0-based byte columns, matching tree-sitter points.
type LineIndex struct {
	starts []int // byte offset of each line start; starts[0] == 0
	size   int
}

// NewLineIndex builds a line index for src.
func NewLineIndex(src []byte) *LineIndex {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts, size: len(src)}
}

// LineCount returns the number of lines, counting a trailing newline's empty
// line.
func (ix *LineIndex) LineCount() int {
	return len(ix.starts)
}

// LineForOffset returns the 1-based line containing the byte offset.
func (ix *LineIndex) LineForOffset(offset int) int {
	if offset < 0 {
		return 1
	}
	// First line start strictly greater than offset.
	i := sort.SearchInts(ix.starts, offset+1)
	return i
}

// Position returns the 1-based line and 0-based column for a byte offset.
func (ix *LineIndex) Position(offset int) (line, col int) {
	line = ix.LineForOffset(offset)
	col = offset - ix.starts[line-1]
	return line, col
}

// LineStart returns the byte offset at which the 1-based line begins.
func (ix *LineIndex) LineStart(line int) int {
	if line < 1 {
		return 0
	}
	if line > len(ix.starts) {
		return ix.size
	}
	return ix.starts[line-1]
}

// LineEnd returns the byte offset just past the last content byte of the
// 1-based line, excluding the newline itself.
func (ix *LineIndex) LineEnd(line int) int {
	if line < 1 {
		return 0
	}
	if line >= len(ix.starts) {
		return ix.size
	}
	return ix.starts[line] - 1
}
