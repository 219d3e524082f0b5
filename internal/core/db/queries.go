package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries provides access to named SQL queries loaded from embedded .sql files.
// Uses dotsql for named query management and sqlx for database operations.
// The same named queries run against the pool (Queries) or inside a
// transaction (TxQueries).
type Queries struct {
	runner
	db *sqlx.DB
}

// TxQueries runs named queries inside one transaction. Obtained from
// Queries.WithTx; not valid after the callback returns.
type TxQueries struct {
	runner
}

type runner struct {
	dot *dotsql.DotSql
	ext sqlx.ExtContext
}

// LoadQueries loads all .sql files from embedded filesystem and returns Queries instance.
// Named queries accessible by name (e.g., "list-active-rules", "insert-payload").
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	var combinedSQL strings.Builder

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}

		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		combinedSQL.Write(content)
		combinedSQL.WriteString("\n")
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combinedSQL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Queries{runner: runner{dot: dot, ext: db}, db: db}, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (q *Queries) WithTx(ctx context.Context, fn func(tx *TxQueries) error) error {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&TxQueries{runner: runner{dot: q.dot, ext: tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// raw looks up a named query and converts ? placeholders for the driver.
func (r runner) raw(name string) (string, error) {
	query, err := r.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return r.ext.Rebind(query), nil
}

// Exec executes a named query with placeholder conversion for database compatibility.
// Uses sqlx Rebind to convert ? placeholders to $1, $2 for PostgreSQL.
func (r runner) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	query, err := r.raw(name)
	if err != nil {
		return nil, err
	}
	return r.ext.ExecContext(ctx, query, args...)
}

// Get retrieves a single row into dest struct using named query.
func (r runner) Get(ctx context.Context, name string, dest any, args ...any) error {
	query, err := r.raw(name)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, r.ext, dest, query, args...)
}

// Select retrieves multiple rows into dest slice using named query.
func (r runner) Select(ctx context.Context, name string, dest any, args ...any) error {
	query, err := r.raw(name)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, r.ext, dest, query, args...)
}
