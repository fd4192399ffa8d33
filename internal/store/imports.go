package store

import "fmt"

// ReplaceImports transactionally records which modules a file imports.
func (s *Store) ReplaceImports(fileID int64, modules []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM imports WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete imports: %w", err)
	}
	for _, m := range modules {
		if _, err := tx.Exec("INSERT INTO imports (file_id, module) VALUES (?, ?)", fileID, m); err != nil {
			return fmt.Errorf("insert import: %w", err)
		}
	}

	return tx.Commit()
}

// FilesImportingModule returns file IDs that import the given module. When a
// module's file changes, these are the files whose stored results can no
// longer be trusted even if their own content is unchanged.
func (s *Store) FilesImportingModule(module string) ([]int64, error) {
	rows, err := s.db.Query("SELECT DISTINCT file_id FROM imports WHERE module = ?", module)
	if err != nil {
		return nil, fmt.Errorf("files importing module: %w", err)
	}
	defer rows.Close()
	var fileIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan file id: %w", err)
		}
		fileIDs = append(fileIDs, id)
	}
	return fileIDs, rows.Err()
}

// ImportsByFile returns the modules a file was recorded to import.
func (s *Store) ImportsByFile(fileID int64) ([]string, error) {
	rows, err := s.db.Query("SELECT module FROM imports WHERE file_id = ? ORDER BY module", fileID)
	if err != nil {
		return nil, fmt.Errorf("imports by file: %w", err)
	}
	defer rows.Close()
	var modules []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}
