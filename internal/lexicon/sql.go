package lexicon

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore persists rules in SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens the rule database and initializes the schema.
// driver is "sqlite3" or "postgres". For sqlite3, dsn is a file path whose
// parent directories are created if they do not exist.
func NewSQLStore(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite3":
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	case "postgres":
	default:
		return nil, fmt.Errorf("unsupported rules driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		// a single connection keeps :memory: databases shared across calls
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLStore{db: db, driver: driver}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS synonym_terms (
		index_name TEXT NOT NULL,
		group_id INTEGER NOT NULL,
		phrase TEXT NOT NULL,
		ord INTEGER NOT NULL,
		PRIMARY KEY (index_name, phrase)
	);

	CREATE INDEX IF NOT EXISTS idx_synonym_terms_group ON synonym_terms(index_name, group_id);

	CREATE TABLE IF NOT EXISTS expansion_rules (
		index_name TEXT NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		ord INTEGER NOT NULL,
		PRIMARY KEY (index_name, source, target)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SynonymGroup implements Store.
func (s *SQLStore) SynonymGroup(ctx context.Context, index, phrase string) ([]string, error) {
	query := s.rebind(`
		SELECT phrase FROM synonym_terms
		WHERE index_name = ? AND group_id = (
			SELECT group_id FROM synonym_terms WHERE index_name = ? AND phrase = ?
		)
		ORDER BY ord`)
	return s.queryStrings(ctx, query, index, index, Normalize(phrase))
}

// Expansions implements Store.
func (s *SQLStore) Expansions(ctx context.Context, index, phrase string) ([]string, error) {
	query := s.rebind(`
		SELECT target FROM expansion_rules
		WHERE index_name = ? AND source = ?
		ORDER BY ord`)
	return s.queryStrings(ctx, query, index, Normalize(phrase))
}

func (s *SQLStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ReplaceIndex implements Store. The swap is atomic.
func (s *SQLStore) ReplaceIndex(ctx context.Context, index string, rules *Rules) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM synonym_terms WHERE index_name = ?`), index); err != nil {
		return fmt.Errorf("failed to clear synonyms: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM expansion_rules WHERE index_name = ?`), index); err != nil {
		return fmt.Errorf("failed to clear expansions: %w", err)
	}

	if rules != nil {
		insertSyn := s.rebind(`INSERT INTO synonym_terms (index_name, group_id, phrase, ord) VALUES (?, ?, ?, ?)`)
		for gid, group := range rules.Synonyms {
			for ord, phrase := range group {
				if _, err := tx.ExecContext(ctx, insertSyn, index, gid, phrase, ord); err != nil {
					return fmt.Errorf("failed to insert synonym %q: %w", phrase, err)
				}
			}
		}

		insertExp := s.rebind(`INSERT INTO expansion_rules (index_name, source, target, ord) VALUES (?, ?, ?, ?)`)
		for src, targets := range rules.Expansions {
			for ord, target := range targets {
				if _, err := tx.ExecContext(ctx, insertExp, index, src, target, ord); err != nil {
					return fmt.Errorf("failed to insert expansion %q: %w", src, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rules: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
