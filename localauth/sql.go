package localauth

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Executor abstracts the database operations the store needs.
type Executor interface {
	Exec(query string, args ...any) error
	Query(query string, args ...any) (Rows, error)
	QueryRow(query string, args ...any) Scanner
}

type Scanner interface {
	Scan(dest ...any) error
}

type Rows interface {
	Scan(dest ...any) error
	Next() bool
	Close() error
	Err() error
}

// DB adapts *sql.DB to Executor.
type DB struct {
	*sql.DB
}

func (d DB) Exec(query string, args ...any) error {
	_, err := d.DB.Exec(query, args...)
	return err
}

func (d DB) Query(query string, args ...any) (Rows, error) {
	return d.DB.Query(query, args...)
}

func (d DB) QueryRow(query string, args ...any) Scanner {
	return d.DB.QueryRow(query, args...)
}

// Open opens a SQLite database. ":memory:" keeps everything in a single
// connection so that every query sees the same database.
func Open(dsn string) (DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return DB{}, err
	}
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return DB{}, err
	}
	return DB{db}, nil
}
