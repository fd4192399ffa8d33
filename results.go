package taproot

import (
	"fmt"

	"github.com/jward/taproot/internal/store"
)

// ResultsQuery provides a query API over persisted check results, for
// tooling that wants to interrogate the last run without re-checking.
type ResultsQuery struct {
	store *store.Store
}

// Results returns a query over the persistent store, or nil when the
// Checker runs without one.
func (c *Checker) Results() *ResultsQuery {
	if c.store == nil {
		return nil
	}
	return &ResultsQuery{store: c.store}
}

// DiagnosticsAt returns the stored diagnostics covering a byte offset in a
// file.
func (q *ResultsQuery) DiagnosticsAt(path string, offset int) ([]store.Diagnostic, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics at: lookup file: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	all, err := q.store.DiagnosticsByFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("diagnostics at: %w", err)
	}
	var hits []store.Diagnostic
	for _, d := range all {
		if d.StartOffset <= offset && offset <= d.EndOffset {
			hits = append(hits, d)
		}
	}
	return hits, nil
}

// DiagnosticsByRule returns every stored diagnostic for a rule id across all
// files, keyed by file path.
func (q *ResultsQuery) DiagnosticsByRule(rule string) (map[string][]store.Diagnostic, error) {
	rows, err := q.store.DB().Query(
		`SELECT f.path, d.id, d.file_id, d.rule, d.message, d.start_offset, d.end_offset, d.suppressed
		 FROM diagnostics d JOIN files f ON f.id = d.file_id
		 WHERE d.rule = ? ORDER BY f.path, d.start_offset`,
		rule,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by rule: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]store.Diagnostic)
	for rows.Next() {
		var path string
		var d store.Diagnostic
		if err := rows.Scan(&path, &d.ID, &d.FileID, &d.Rule, &d.Message,
			&d.StartOffset, &d.EndOffset, &d.Suppressed); err != nil {
			return nil, fmt.Errorf("diagnostics by rule: scan: %w", err)
		}
		out[path] = append(out[path], d)
	}
	return out, rows.Err()
}

// Dependents returns the paths of files recorded to import the given
// module.
func (q *ResultsQuery) Dependents(module string) ([]string, error) {
	fileIDs, err := q.store.FilesImportingModule(module)
	if err != nil {
		return nil, fmt.Errorf("dependents: %w", err)
	}
	var paths []string
	for _, id := range fileIDs {
		var path string
		err := q.store.DB().QueryRow("SELECT path FROM files WHERE id = ?", id).Scan(&path)
		if err != nil {
			return nil, fmt.Errorf("dependents: path for file %d: %w", id, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// RuleCounts returns how many stored diagnostics exist per rule id.
func (q *ResultsQuery) RuleCounts() (map[string]int, error) {
	rows, err := q.store.DB().Query("SELECT rule, COUNT(*) FROM diagnostics GROUP BY rule")
	if err != nil {
		return nil, fmt.Errorf("rule counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var rule string
		var n int
		if err := rows.Scan(&rule, &n); err != nil {
			return nil, fmt.Errorf("rule counts: scan: %w", err)
		}
		out[rule] = n
	}
	return out, rows.Err()
}
