package taproot

import (
	"github.com/jward/taproot/internal/diag"
	"github.com/jward/taproot/internal/source"
	"github.com/jward/taproot/internal/store"
)

// Public type aliases for internal types used in the Checker API. These are
// Go type aliases (=), identical to the internal types at compile time, so
// external consumers use these names without conversion.

type Store = store.Store
type StoredFile = store.File
type StoredDiagnostic = store.Diagnostic
type Diagnostic = diag.Diagnostic
type Span = source.Span
type FileTable = source.FileTable
