package store

import "time"

// File is one checked file's persisted record. Hash is the content hash the
// last check ran against; a matching hash lets the run skip the file and
// replay its stored diagnostics.
type File struct {
	ID          int64
	Path        string
	Hash        string
	Revision    int64
	LastChecked time.Time
}

// Diagnostic is one persisted diagnostic, addressed by byte offsets into the
// file content the hash was computed over.
type Diagnostic struct {
	ID          int64
	FileID      int64
	Rule        string
	Message     string
	StartOffset int
	EndOffset   int
	Suppressed  bool
}
