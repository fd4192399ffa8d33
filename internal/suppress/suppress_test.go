package suppress

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/source"
)

func buildTable(t *testing.T, src string) (*source.ParsedModule, *Table) {
	t.Helper()
	parsed, err := source.Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	return parsed, Build(parsed)
}

// spanOf returns the byte span of the first occurrence of needle in src.
func spanOf(t *testing.T, src, needle string) source.Span {
	t.Helper()
	i := strings.Index(src, needle)
	require.GreaterOrEqual(t, i, 0, "needle %q not in source", needle)
	return source.Span{Start: i, End: i + len(needle)}
}

func TestBuild_RecognizesBothCommentForms(t *testing.T) {
	t.Parallel()
	src := "a = 1  # type: ignore\nb = 2  # taproot: ignore\nc = 3  # just a note\n"
	_, table := buildTable(t, src)
	assert.Equal(t, 2, table.Len())
}

func TestBuild_AllowsTrailingTextAfterMarker(t *testing.T) {
	t.Parallel()
	_, table := buildTable(t, "a = 1  # type: ignore[unresolved-reference] see #42\n")
	assert.Equal(t, 1, table.Len())
}

func TestMatches_DiagnosticOnSuppressedLine(t *testing.T) {
	t.Parallel()
	src := "x = missing  # type: ignore\ny = other\n"
	_, table := buildTable(t, src)

	assert.True(t, table.Matches(spanOf(t, src, "missing"), "unresolved-reference"))
	assert.False(t, table.Matches(spanOf(t, src, "other"), "unresolved-reference"))
}

func TestMatches_EndOffsetDecides(t *testing.T) {
	t.Parallel()
	src := "x = 1  # type: ignore\ny = 2\n"
	_, table := buildTable(t, src)

	// Ends on the covered line: suppressed.
	assert.True(t, table.Matches(spanOf(t, src, "x = 1"), ""))
	// Starts on the covered line but ends past it: not suppressed.
	past := source.Span{Start: 0, End: len(src) - 1}
	assert.False(t, table.Matches(past, ""))
}

func TestMatches_MultiLineStatementWidening(t *testing.T) {
	t.Parallel()
	src := "x = (\n    missing\n)  # type: ignore\n"
	_, table := buildTable(t, src)

	require.Equal(t, 1, table.Len())
	assert.True(t, table.Matches(spanOf(t, src, "missing"), ""),
		"a comment on the statement's last line covers the whole statement")
}

func TestMatches_CommentMidStatementDoesNotWiden(t *testing.T) {
	t.Parallel()
	src := "x = (  # type: ignore\n    missing\n)\n"
	_, table := buildTable(t, src)

	require.Equal(t, 1, table.Len())
	assert.False(t, table.Matches(spanOf(t, src, "missing"), ""),
		"only the comment's own line is covered when no statement ends there")
}

func TestApply_MarksAndCounts(t *testing.T) {
	t.Parallel()
	src := "x = missing  # type: ignore\ny = other\n"
	_, table := buildTable(t, src)

	diags := []diag.Diagnostic{
		{Rule: "unresolved-reference", Span: spanOf(t, src, "missing")},
		{Rule: "unresolved-reference", Span: spanOf(t, src, "other")},
	}
	n := table.Apply(diags)
	assert.Equal(t, 1, n)
	assert.True(t, diags[0].Suppressed)
	assert.False(t, diags[1].Suppressed)
}

func TestTable_NilSafeLen(t *testing.T) {
	t.Parallel()
	var table *Table
	assert.Equal(t, 0, table.Len())
}

func TestBuild_EntriesSortedByEnd(t *testing.T) {
	t.Parallel()
	src := "a = 1  # type: ignore\nb = 2  # type: ignore\n"
	_, table := buildTable(t, src)

	entries := table.Entries()
	require.Len(t, entries, 2)
	assert.Less(t, entries[0].Span.End, entries[1].Span.End)
	assert.Equal(t, 1, entries[0].Line)
	assert.Equal(t, 2, entries[1].Line)
}

func TestFind_ReturnsMatchedEntryIndex(t *testing.T) {
	t.Parallel()
	src := "a = one  # type: ignore\nb = two  # type: ignore\nc = three\n"
	_, table := buildTable(t, src)
	require.Equal(t, 2, table.Len())

	i, ok := table.Find(spanOf(t, src, "one"), "unresolved-reference")
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, 1, table.Entries()[i].Line)

	i, ok = table.Find(spanOf(t, src, "two"), "unresolved-reference")
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, 2, table.Entries()[i].Line)

	_, ok = table.Find(spanOf(t, src, "three"), "unresolved-reference")
	assert.False(t, ok)
}
