// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlite implements the storage adapter on SQLite using the CGO-free
// modernc.org driver. The schema is applied with embedded goose migrations;
// the where/sort DSL compiles to parameterized SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/betterauth/betterauth/pkg/adapter"
)

// Adapter is the SQLite-backed storage adapter.
type Adapter struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path, configures the
// connection for concurrent use and applies pending migrations. Use ":memory:"
// for an ephemeral database in tests.
func Open(ctx context.Context, path string) (*Adapter, error) {
	dsn := path
	if path == ":memory:" {
		// A shared cache keeps the schema visible across pooled connections.
		dsn = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// The driver serializes writes; a single connection avoids SQLITE_BUSY
	// under concurrent request handlers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: applying %q: %w", pragma, err)
		}
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Adapter{db: db}, nil
}

// NewWithDB wraps an existing database handle. The caller is responsible for
// having applied migrations.
func NewWithDB(db *sql.DB) *Adapter {
	return &Adapter{db: db}
}

// Close closes the underlying database.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// DB exposes the underlying handle for integrations that need raw SQL.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

// querier is the subset of *sql.DB and *sql.Tx the executor needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// executor implements the adapter operations over either a DB or a Tx.
type executor struct {
	q querier
}

// Create inserts a row, generating an id when the caller did not provide one.
func (a *Adapter) Create(ctx context.Context, model string, data map[string]any, selectFields []string) (map[string]any, error) {
	return executor{a.db}.create(ctx, model, data, selectFields)
}

// FindOne returns the first matching row, or (nil, nil).
func (a *Adapter) FindOne(ctx context.Context, model string, where []adapter.Where, selectFields []string) (map[string]any, error) {
	return executor{a.db}.findOne(ctx, model, where, selectFields)
}

// FindMany returns all matching rows per the query.
func (a *Adapter) FindMany(ctx context.Context, model string, q adapter.Query) ([]map[string]any, error) {
	return executor{a.db}.findMany(ctx, model, q)
}

// Update mutates the first matching row and returns it, or (nil, nil).
func (a *Adapter) Update(ctx context.Context, model string, where []adapter.Where, update map[string]any) (map[string]any, error) {
	return executor{a.db}.update(ctx, model, where, update)
}

// UpdateMany mutates every matching row and returns the count.
func (a *Adapter) UpdateMany(ctx context.Context, model string, where []adapter.Where, update map[string]any) (int, error) {
	return executor{a.db}.updateMany(ctx, model, where, update)
}

// Delete removes the first matching row. Missing rows are a no-op.
func (a *Adapter) Delete(ctx context.Context, model string, where []adapter.Where) error {
	return executor{a.db}.delete(ctx, model, where)
}

// DeleteMany removes every matching row and returns the count.
func (a *Adapter) DeleteMany(ctx context.Context, model string, where []adapter.Where) (int, error) {
	return executor{a.db}.deleteMany(ctx, model, where)
}

// Count returns the number of matching rows.
func (a *Adapter) Count(ctx context.Context, model string, where []adapter.Where) (int, error) {
	return executor{a.db}.count(ctx, model, where)
}

// Transaction runs fn inside a database transaction. The adapter passed to fn
// is scoped to the transaction; returning an error rolls back.
func (a *Adapter) Transaction(ctx context.Context, fn func(tx adapter.Adapter) error) error {
	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer rollback(sqlTx)

	if err := fn(&txAdapter{executor{sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }

// txAdapter exposes the Adapter interface scoped to a transaction.
type txAdapter struct {
	exec executor
}

func (t *txAdapter) Create(ctx context.Context, model string, data map[string]any, selectFields []string) (map[string]any, error) {
	return t.exec.create(ctx, model, data, selectFields)
}

func (t *txAdapter) FindOne(ctx context.Context, model string, where []adapter.Where, selectFields []string) (map[string]any, error) {
	return t.exec.findOne(ctx, model, where, selectFields)
}

func (t *txAdapter) FindMany(ctx context.Context, model string, q adapter.Query) ([]map[string]any, error) {
	return t.exec.findMany(ctx, model, q)
}

func (t *txAdapter) Update(ctx context.Context, model string, where []adapter.Where, update map[string]any) (map[string]any, error) {
	return t.exec.update(ctx, model, where, update)
}

func (t *txAdapter) UpdateMany(ctx context.Context, model string, where []adapter.Where, update map[string]any) (int, error) {
	return t.exec.updateMany(ctx, model, where, update)
}

func (t *txAdapter) Delete(ctx context.Context, model string, where []adapter.Where) error {
	return t.exec.delete(ctx, model, where)
}

func (t *txAdapter) DeleteMany(ctx context.Context, model string, where []adapter.Where) (int, error) {
	return t.exec.deleteMany(ctx, model, where)
}

func (t *txAdapter) Count(ctx context.Context, model string, where []adapter.Where) (int, error) {
	return t.exec.count(ctx, model, where)
}

func (e executor) create(ctx context.Context, model string, data map[string]any, selectFields []string) (map[string]any, error) {
	table, ok := tableColumns[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnknownModel, model)
	}

	row := make(map[string]any, len(data))
	for k, v := range data {
		row[k] = v
	}
	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
		row["id"] = id
	}

	cols := make([]string, 0, len(row))
	placeholders := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, col := range table {
		v, ok := row[col]
		if !ok {
			continue
		}
		cols = append(cols, quoteIdent(col))
		placeholders = append(placeholders, "?")
		args = append(args, encodeValue(v))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(model), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := e.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, adapter.ErrDuplicateKey
		}
		return nil, fmt.Errorf("sqlite: inserting into %s: %w", model, err)
	}

	return e.findOne(ctx, model, []adapter.Where{adapter.Eq("id", id)}, selectFields)
}

func (e executor) findOne(ctx context.Context, model string, where []adapter.Where, selectFields []string) (map[string]any, error) {
	rows, err := e.findMany(ctx, model, adapter.Query{Where: where, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return applySelect(rows[0], selectFields), nil
}

func (e executor) findMany(ctx context.Context, model string, q adapter.Query) ([]map[string]any, error) {
	table, ok := tableColumns[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnknownModel, model)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	for i, col := range table {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(col))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(model))

	clause, args, err := compileWhere(q.Where)
	if err != nil {
		return nil, err
	}
	sb.WriteString(clause)

	if q.SortBy != nil {
		dir := "ASC"
		if q.SortBy.Direction == adapter.SortDesc {
			dir = "DESC"
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteIdent(q.SortBy.Field))
		sb.WriteString(" ")
		sb.WriteString(dir)
	}
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1 // SQLite: no limit
		}
		sb.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, q.Offset))
	}

	sqlRows, err := e.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying %s: %w", model, err)
	}
	defer func() { _ = sqlRows.Close() }()

	var out []map[string]any
	for sqlRows.Next() {
		values := make([]any, len(table))
		scan := make([]any, len(table))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := sqlRows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", model, err)
		}
		row := make(map[string]any, len(table))
		for i, col := range table {
			if values[i] == nil {
				continue
			}
			row[col] = decodeValue(values[i])
		}
		out = append(out, row)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s rows: %w", model, err)
	}
	return out, nil
}

func (e executor) update(ctx context.Context, model string, where []adapter.Where, update map[string]any) (map[string]any, error) {
	// Resolve the target id first: the where clause may reference columns the
	// update is about to change.
	target, err := e.findOne(ctx, model, where, []string{"id"})
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, nil
	}
	id := target["id"]

	if _, err := e.updateMany(ctx, model, []adapter.Where{adapter.Eq("id", id)}, update); err != nil {
		return nil, err
	}
	return e.findOne(ctx, model, []adapter.Where{adapter.Eq("id", id)}, nil)
}

func (e executor) updateMany(ctx context.Context, model string, where []adapter.Where, update map[string]any) (int, error) {
	table, ok := tableColumns[model]
	if !ok {
		return 0, fmt.Errorf("%w: %s", adapter.ErrUnknownModel, model)
	}

	sets := make([]string, 0, len(update))
	args := make([]any, 0, len(update))
	for _, col := range table {
		v, ok := update[col]
		if !ok {
			continue
		}
		sets = append(sets, quoteIdent(col)+" = ?")
		args = append(args, encodeValue(v))
	}
	if len(sets) == 0 {
		return 0, nil
	}

	clause, whereArgs, err := compileWhere(where)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf("UPDATE %s SET %s%s", quoteIdent(model), strings.Join(sets, ", "), clause)
	res, err := e.q.ExecContext(ctx, query, append(args, whereArgs...)...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, adapter.ErrDuplicateKey
		}
		return 0, fmt.Errorf("sqlite: updating %s: %w", model, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

func (e executor) delete(ctx context.Context, model string, where []adapter.Where) error {
	if _, ok := tableColumns[model]; !ok {
		return fmt.Errorf("%w: %s", adapter.ErrUnknownModel, model)
	}

	clause, args, err := compileWhere(where)
	if err != nil {
		return err
	}

	// LIMIT on DELETE is a compile-time SQLite option; a subquery keeps the
	// single-row semantics portable.
	query := fmt.Sprintf("DELETE FROM %s WHERE \"id\" IN (SELECT \"id\" FROM %s%s LIMIT 1)",
		quoteIdent(model), quoteIdent(model), clause)
	if _, err := e.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: deleting from %s: %w", model, err)
	}
	return nil
}

func (e executor) deleteMany(ctx context.Context, model string, where []adapter.Where) (int, error) {
	if _, ok := tableColumns[model]; !ok {
		return 0, fmt.Errorf("%w: %s", adapter.ErrUnknownModel, model)
	}

	clause, args, err := compileWhere(where)
	if err != nil {
		return 0, err
	}

	res, err := e.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", quoteIdent(model), clause), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting from %s: %w", model, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

func (e executor) count(ctx context.Context, model string, where []adapter.Where) (int, error) {
	if _, ok := tableColumns[model]; !ok {
		return 0, fmt.Errorf("%w: %s", adapter.ErrUnknownModel, model)
	}

	clause, args, err := compileWhere(where)
	if err != nil {
		return 0, err
	}

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdent(model), clause)
	if err := e.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting %s: %w", model, err)
	}
	return n, nil
}

func applySelect(row map[string]any, selectFields []string) map[string]any {
	if len(selectFields) == 0 {
		return row
	}
	out := make(map[string]any, len(selectFields))
	for _, f := range selectFields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

// isUniqueViolation checks for a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// Compile-time interface compliance checks
var (
	_ adapter.Adapter       = (*Adapter)(nil)
	_ adapter.Transactional = (*Adapter)(nil)
	_ adapter.Adapter       = (*txAdapter)(nil)
)
