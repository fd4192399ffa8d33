package store

import "fmt"

const diagCols = "id, file_id, rule, message, start_offset, end_offset, suppressed"

// ReplaceDiagnostics transactionally swaps a file's stored diagnostics for a
// new set. A file with no diagnostics ends up with an empty set, which is
// itself a result worth remembering.
func (s *Store) ReplaceDiagnostics(fileID int64, diags []Diagnostic) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM diagnostics WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete diagnostics: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO diagnostics (file_id, rule, message, start_offset, end_offset, suppressed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range diags {
		if _, err := stmt.Exec(fileID, d.Rule, d.Message, d.StartOffset, d.EndOffset, d.Suppressed); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	return tx.Commit()
}

// DiagnosticsByFile returns a file's stored diagnostics in position order.
func (s *Store) DiagnosticsByFile(fileID int64) ([]Diagnostic, error) {
	rows, err := s.db.Query(
		"SELECT "+diagCols+" FROM diagnostics WHERE file_id = ? ORDER BY start_offset, end_offset, rule",
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by file: %w", err)
	}
	defer rows.Close()
	var diags []Diagnostic
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.ID, &d.FileID, &d.Rule, &d.Message, &d.StartOffset, &d.EndOffset, &d.Suppressed); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// DiagnosticsByFiles returns stored diagnostics for a set of files, keyed by
// file id.
func (s *Store) DiagnosticsByFiles(fileIDs []int64) (map[int64][]Diagnostic, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	placeholders := placeholderList(len(fileIDs))
	rows, err := s.db.Query(
		"SELECT "+diagCols+" FROM diagnostics WHERE file_id IN ("+placeholders+") ORDER BY file_id, start_offset",
		int64sToArgs(fileIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by files: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]Diagnostic)
	for rows.Next() {
		var d Diagnostic
		if err := rows.Scan(&d.ID, &d.FileID, &d.Rule, &d.Message, &d.StartOffset, &d.EndOffset, &d.Suppressed); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		out[d.FileID] = append(out[d.FileID], d)
	}
	return out, rows.Err()
}
