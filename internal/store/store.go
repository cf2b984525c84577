// Package store persists search runs and the places they produced in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"CrawlerNaverMap/internal/place"
)

// AutoCategory marks searches created by the crawler rather than by hand.
const AutoCategory = "자동"

// ErrNoRecords is returned by SaveSearch when there is nothing to store.
var ErrNoRecords = errors.New("store: no records")

const schema = `
CREATE TABLE IF NOT EXISTS searches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query TEXT NOT NULL,
    category TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS places (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    search_id INTEGER REFERENCES searches(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    address TEXT,
    phone TEXT,
    category TEXT,
    rating REAL,
    url TEXT,
    notes TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_places_search ON places(search_id);
`

type Store struct {
	db *sql.DB
}

// Search is one stored run.
type Search struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Place is one stored record.
type Place struct {
	ID       int64 `json:"id"`
	SearchID int64 `json:"search_id"`
	place.Record
	URL       string    `json:"url"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode = WAL;`, `PRAGMA foreign_keys = ON;`} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveSearch writes a search row and its places in one transaction. A
// search without records is not stored.
func (s *Store) SaveSearch(ctx context.Context, query string, records []place.Record) (int64, error) {
	if len(records) == 0 {
		return 0, ErrNoRecords
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO searches (query, category) VALUES (?, ?)`, query, AutoCategory)
	if err != nil {
		return 0, fmt.Errorf("insert search: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO places (search_id, name, address, phone, category, rating, url, notes)
        VALUES (?, ?, ?, ?, ?, NULL, '', ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	notes := "자동 수집: " + query
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, id, r.Name, r.Address, r.Phone, r.Category, notes); err != nil {
			return 0, fmt.Errorf("insert place %q: %w", r.Name, err)
		}
	}
	return id, tx.Commit()
}

// Searches lists stored runs, newest first.
func (s *Store) Searches(ctx context.Context) ([]Search, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, query, COALESCE(category, ''), created_at
        FROM searches ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Search{}
	for rows.Next() {
		var sr Search
		if err := rows.Scan(&sr.ID, &sr.Query, &sr.Category, &sr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

// Places lists stored places, newest first. searchID 0 lists all of them.
func (s *Store) Places(ctx context.Context, searchID int64) ([]Place, error) {
	q := `SELECT id, COALESCE(search_id, 0), name, COALESCE(address, ''), COALESCE(phone, ''),
        COALESCE(category, ''), COALESCE(url, ''), COALESCE(notes, ''), created_at FROM places`
	var args []any
	if searchID != 0 {
		q += ` WHERE search_id = ?`
		args = append(args, searchID)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Place{}
	for rows.Next() {
		var p Place
		if err := rows.Scan(&p.ID, &p.SearchID, &p.Name, &p.Address, &p.Phone,
			&p.Category, &p.URL, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
