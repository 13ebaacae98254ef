package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed project store.
type Store struct {
	db *sql.DB
}

// setting is one connection pragma: the DSN parameter go-sqlite3 applies
// on every new connection, and the value PRAGMA reports once it holds.
type setting struct {
	pragma string
	param  string
	value  string
	want   string
}

// settings must hold on every connection. They travel in the DSN because
// a pragma run through db.Exec reaches a single pooled connection only.
var settings = []setting{
	{pragma: "journal_mode", param: "_journal_mode", value: "WAL", want: "wal"},
	{pragma: "synchronous", param: "_synchronous", value: "NORMAL", want: "1"},
	{pragma: "busy_timeout", param: "_busy_timeout", value: "5000", want: "5000"},
	{pragma: "foreign_keys", param: "_foreign_keys", value: "on", want: "1"},
}

// dsn appends the connection settings to path.
func dsn(path string) string {
	q := url.Values{}
	for _, s := range settings {
		q.Set(s.param, s.value)
	}
	return path + "?" + q.Encode()
}

// Open creates or opens the project database at path, checks that the
// connection settings took effect and migrates the schema to the current
// version. Opening an up-to-date database changes nothing.
//
// A path that cannot hold a WAL journal, such as ":memory:", is rejected.
func Open(path string) (*Store, error) {
	if strings.Contains(path, "?") {
		return nil, fmt.Errorf("database path %q must not carry parameters", path)
	}
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.checkSettings(); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) checkSettings() error {
	for _, st := range settings {
		if err := s.verifyPragma(st.pragma, st.want); err != nil {
			return fmt.Errorf("database setting not applied: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if !strings.EqualFold(value, expected) {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
