// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver

	"github.com/timoguin/lakekeeper-sub000/internal/logging"
	"github.com/timoguin/lakekeeper-sub000/internal/metrics"
)

// DuckDBStore keeps warehouses, namespaces, tables and views in DuckDB.
// Reads always go to the database; cache policies are accepted and ignored.
// Wrap it in a Resolver for caching.
type DuckDBStore struct {
	conn *sql.DB
	cfg  Config
}

// OpenDuckDB opens the database and creates the schema.
func OpenDuckDB(cfg Config) (*DuckDBStore, error) {
	def := DefaultConfig()
	if cfg.MaxMemory == "" {
		cfg.MaxMemory = def.MaxMemory
	}
	if cfg.MaxNamespaceDepth <= 0 {
		cfg.MaxNamespaceDepth = def.MaxNamespaceDepth
	}
	if cfg.FetchChunkSize <= 0 {
		cfg.FetchChunkSize = def.FetchChunkSize
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	connStr := fmt.Sprintf("%s?threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, cfg.MaxMemory)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &DuckDBStore{conn: conn, cfg: cfg}
	s.configureConnectionPool()

	if err := s.createTables(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}

	logging.Info().
		Str("path", displayPath(cfg.Path)).
		Int("threads", threads).
		Str("max_memory", cfg.MaxMemory).
		Msg("Catalog store opened")
	return s, nil
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

func (s *DuckDBStore) configureConnectionPool() {
	s.conn.SetMaxOpenConns(runtime.NumCPU())
	s.conn.SetMaxIdleConns(2)
	s.conn.SetConnMaxLifetime(time.Hour)
	s.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Ping checks the database connection.
func (s *DuckDBStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database.
func (s *DuckDBStore) Close() error {
	return s.conn.Close()
}

// Config returns the effective configuration.
func (s *DuckDBStore) Config() Config { return s.cfg }

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (s *DuckDBStore) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range schemaQueries() {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// Ids are stored as canonical UUID strings. ident holds the JSON segment
// array; ident_key is its case-folded form used for uniqueness and lookups.
func schemaQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS warehouse (
			id VARCHAR PRIMARY KEY,
			project_id VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			protected BOOLEAN NOT NULL DEFAULT false,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS namespace (
			id VARCHAR PRIMARY KEY,
			warehouse_id VARCHAR NOT NULL,
			parent_id VARCHAR,
			ident VARCHAR NOT NULL,
			ident_key VARCHAR NOT NULL,
			properties VARCHAR NOT NULL DEFAULT '{}',
			protected BOOLEAN NOT NULL DEFAULT false,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (warehouse_id, ident_key)
		);`,
		`CREATE TABLE IF NOT EXISTS tabular (
			id VARCHAR PRIMARY KEY,
			warehouse_id VARCHAR NOT NULL,
			namespace_id VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			ident_key VARCHAR NOT NULL,
			kind VARCHAR NOT NULL,
			state VARCHAR NOT NULL,
			protected BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_namespace_parent ON namespace(parent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tabular_namespace ON tabular(namespace_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tabular_ident ON tabular(warehouse_id, ident_key);`,
	}
}

// BeginRead starts a read transaction. duckdb-go rejects read-only
// TxOptions, so reads use a default transaction and roll back when done.
func (s *DuckDBStore) BeginRead(ctx context.Context) (ReadTx, error) {
	tx, err := s.begin(ctx, false)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// BeginWrite starts a write transaction.
func (s *DuckDBStore) BeginWrite(ctx context.Context) (WriteTx, error) {
	tx, err := s.begin(ctx, true)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *DuckDBStore) begin(ctx context.Context, write bool) (*duckTx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &duckTx{store: s, tx: tx, write: write}, nil
}

// read runs fn in a read transaction.
func (s *DuckDBStore) read(ctx context.Context, fn func(*duckTx) error) (err error) {
	tx, err := s.begin(ctx, false)
	if err != nil {
		return err
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Ctx(ctx).Warn().Err(rbErr).AnErr("original_error", err).Msg("Failed to rollback read transaction")
		}
	}()
	return fn(tx)
}

// duckTx is one database transaction. It is not safe for concurrent use
// apart from the finished flag.
type duckTx struct {
	store *DuckDBStore
	tx    *sql.Tx
	write bool

	mu     sync.Mutex
	done   bool
	change Change
	hooks  []func(Change)
}

func (t *duckTx) Commit() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return ErrTxDone
	}
	t.done = true
	hooks, change := t.hooks, t.change
	t.mu.Unlock()

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", wrapDBError(err))
	}
	for _, fn := range hooks {
		fn(change)
	}
	return nil
}

func (t *duckTx) Rollback() error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return nil
	}
	t.done = true
	t.mu.Unlock()

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (t *duckTx) OnCommit(fn func(Change)) {
	t.mu.Lock()
	t.hooks = append(t.hooks, fn)
	t.mu.Unlock()
}

func (t *duckTx) writable() error {
	if !t.write {
		return ErrReadOnlyTx
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	return nil
}

func observe(operation, table string, start time.Time, err error) {
	metrics.RecordDBQuery(operation, table, time.Since(start), err)
}

// wrapDBError maps DuckDB write-write conflicts to ErrConflict.
func wrapDBError(err error) error {
	if isTransactionConflict(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "cannot update a table that has been altered")
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Constraint Error") ||
		strings.Contains(msg, "Duplicate key")
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// chunks splits items into slices of at most size elements.
func chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for len(items) > 0 {
		n := min(size, len(items))
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
