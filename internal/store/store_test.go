package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

// =============================================================================
// Files
// =============================================================================

func TestUpsertFile_InsertThenUpdateKeepsID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	id1, err := s.UpsertFile(&File{Path: "/p/a.py", Hash: "h1", Revision: 1})
	require.NoError(t, err)

	id2, err := s.UpsertFile(&File{Path: "/p/a.py", Hash: "h2", Revision: 2})
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "the update must keep the original row id")

	f, err := s.FileByPath("/p/a.py")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "h2", f.Hash)
	assert.Equal(t, int64(2), f.Revision)
	assert.False(t, f.LastChecked.IsZero())
}

func TestFileByPath_MissingReturnsNil(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f, err := s.FileByPath("/nope.py")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestFiles_OrderedByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	for _, p := range []string{"/b.py", "/a.py", "/c.py"} {
		_, err := s.UpsertFile(&File{Path: p})
		require.NoError(t, err)
	}
	files, err := s.Files()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "/a.py", files[0].Path)
	assert.Equal(t, "/c.py", files[2].Path)
}

// =============================================================================
// Diagnostics
// =============================================================================

func TestReplaceDiagnostics_SwapsSet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	id, err := s.UpsertFile(&File{Path: "/a.py"})
	require.NoError(t, err)

	require.NoError(t, s.ReplaceDiagnostics(id, []Diagnostic{
		{Rule: "unresolved-reference", Message: "m1", StartOffset: 10, EndOffset: 15},
		{Rule: "possibly-unbound", Message: "m2", StartOffset: 0, EndOffset: 5, Suppressed: true},
	}))

	diags, err := s.DiagnosticsByFile(id)
	require.NoError(t, err)
	require.Len(t, diags, 2)
	assert.Equal(t, "possibly-unbound", diags[0].Rule, "position order")
	assert.True(t, diags[0].Suppressed)

	// replacing with an empty set is itself a result
	require.NoError(t, s.ReplaceDiagnostics(id, nil))
	diags, err = s.DiagnosticsByFile(id)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestDiagnosticsByFiles_KeyedByFileID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a, err := s.UpsertFile(&File{Path: "/a.py"})
	require.NoError(t, err)
	b, err := s.UpsertFile(&File{Path: "/b.py"})
	require.NoError(t, err)

	require.NoError(t, s.ReplaceDiagnostics(a, []Diagnostic{{Rule: "r", Message: "ma"}}))
	require.NoError(t, s.ReplaceDiagnostics(b, []Diagnostic{{Rule: "r", Message: "mb1"}, {Rule: "r", Message: "mb2", StartOffset: 1}}))

	out, err := s.DiagnosticsByFiles([]int64{a, b})
	require.NoError(t, err)
	assert.Len(t, out[a], 1)
	assert.Len(t, out[b], 2)

	empty, err := s.DiagnosticsByFiles(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

// =============================================================================
// Imports
// =============================================================================

func TestImports_RoundTripAndReverseLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a, err := s.UpsertFile(&File{Path: "/a.py"})
	require.NoError(t, err)
	b, err := s.UpsertFile(&File{Path: "/b.py"})
	require.NoError(t, err)

	require.NoError(t, s.ReplaceImports(a, []string{"os", "pkg.mod"}))
	require.NoError(t, s.ReplaceImports(b, []string{"pkg.mod"}))

	mods, err := s.ImportsByFile(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"os", "pkg.mod"}, mods)

	importers, err := s.FilesImportingModule("pkg.mod")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{a, b}, importers)

	// replacing drops the old edges
	require.NoError(t, s.ReplaceImports(a, []string{"sys"}))
	importers, err = s.FilesImportingModule("pkg.mod")
	require.NoError(t, err)
	assert.Equal(t, []int64{b}, importers)
}

// =============================================================================
// Deletion, metadata, hashing
// =============================================================================

func TestDeleteFileData_RemovesEverything(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	id, err := s.UpsertFile(&File{Path: "/a.py"})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceDiagnostics(id, []Diagnostic{{Rule: "r", Message: "m"}}))
	require.NoError(t, s.ReplaceImports(id, []string{"os"}))

	require.NoError(t, s.DeleteFileData(id))

	f, err := s.FileByPath("/a.py")
	require.NoError(t, err)
	assert.Nil(t, f)
	diags, err := s.DiagnosticsByFile(id)
	require.NoError(t, err)
	assert.Empty(t, diags)
}

func TestMetadata_SetGetAndMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	v, err := s.GetMetadata("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetMetadata("schema_version", "1"))
	require.NoError(t, s.SetMetadata("schema_version", "2"))
	v, err = s.GetMetadata("schema_version")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestComputeContentHash_StableAndContentSensitive(t *testing.T) {
	t.Parallel()
	a := ComputeContentHash([]byte("x = 1\n"))
	b := ComputeContentHash([]byte("x = 1\n"))
	c := ComputeContentHash([]byte("x = 2\n"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
