package source

import (
	"sync"
)

// Status describes whether a file currently exists. Deletion is a status
// flip, never a removal, so revision history stays monotonic per path.
type Status int

const (
	StatusExists Status = iota
	StatusDeleted
)

func (s Status) String() string {
	if s == StatusDeleted {
		return "deleted"
	}
	return "exists"
}

// Revision is an opaque comparable token identifying a file's content
// generation. Two revisions compare equal iff they refer to the same
// recorded content.
type Revision int64

// File identifies one source path in the table.
type File struct {
	Path     string
	Revision Revision
	Status   Status
}

// FileTable tracks identity, revision, and existence status per source path.
// It is the root input layer: every change to a file flows through Touch or
// Delete, which assign a fresh revision from a table-wide counter.
type FileTable struct {
	mu    sync.RWMutex
	files map[string]*File
	next  Revision
}

// NewFileTable returns an empty file table.
func NewFileTable() *FileTable {
	return &FileTable{files: make(map[string]*File)}
}

// Touch records that path exists with new content and returns its file entry
// with a freshly assigned revision. Touching a deleted path revives it.
func (t *FileTable) Touch(path string) File {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	f, ok := t.files[path]
	if !ok {
		f = &File{Path: path}
		t.files[path] = f
	}
	f.Revision = t.next
	f.Status = StatusExists
	return *f
}

// Delete flips the path's status to deleted and bumps its revision. Deleting
// an unknown path creates a deleted entry so readers observe the revision.
func (t *FileTable) Delete(path string) File {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	f, ok := t.files[path]
	if !ok {
		f = &File{Path: path}
		t.files[path] = f
	}
	f.Revision = t.next
	f.Status = StatusDeleted
	return *f
}

// Lookup returns the entry for path, if any.
func (t *FileTable) Lookup(path string) (File, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.files[path]
	if !ok {
		return File{}, false
	}
	return *f, true
}

// Paths returns all known paths, including deleted ones, in no particular order.
func (t *FileTable) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	return paths
}
