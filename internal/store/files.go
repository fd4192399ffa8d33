package store

import (
	"database/sql"
	"fmt"
	"time"
)

const fileCols = "id, path, hash, revision, last_checked"

// UpsertFile inserts or refreshes a file record by path and returns its id.
func (s *Store) UpsertFile(f *File) (int64, error) {
	if f.LastChecked.IsZero() {
		f.LastChecked = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO files (path, hash, revision, last_checked) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash,
		   revision = excluded.revision, last_checked = excluded.last_checked`,
		f.Path, f.Hash, f.Revision, f.LastChecked,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert file: %w", err)
	}
	// an update keeps the original row id, so read it back by path
	var id int64
	if err := s.db.QueryRow("SELECT id FROM files WHERE path = ?", f.Path).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserted file id: %w", err)
	}
	f.ID = id
	return id, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		"SELECT "+fileCols+" FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Hash, &f.Revision, &f.LastChecked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Path, &f.Hash, &f.Revision, &f.LastChecked); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
