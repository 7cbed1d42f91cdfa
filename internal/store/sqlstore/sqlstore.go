// Package sqlstore implements store.Store on top of a Dolt database,
// either embedded via github.com/dolthub/driver (CGO, no server process)
// or accessed over the wire via github.com/go-sql-driver/mysql against a
// running dolt sql-server (pure Go, multi-writer). The split mirrors the
// teacher's internal/storage/dolt package: same schema and SQL, two ways
// to reach it.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gofrs/flock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stoneforge-ai/stoneforge/internal/store"
)

var tracer = otel.Tracer("github.com/stoneforge-ai/stoneforge/store")

var metrics struct {
	retryCount metric.Int64Counter
	lockWaitMs metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/stoneforge-ai/stoneforge/store")
	metrics.retryCount, _ = m.Int64Counter("stoneforge.store.retry_count",
		metric.WithDescription("SQL operations retried due to server-mode transient errors"),
		metric.WithUnit("{retry}"),
	)
	metrics.lockWaitMs, _ = m.Float64Histogram("stoneforge.store.lock_wait_ms",
		metric.WithDescription("Time spent waiting to acquire the embedded-mode access lock"),
		metric.WithUnit("ms"),
	)
}

// Config configures an embedded or server-mode connection to a Dolt
// database (spec.md §6).
type Config struct {
	// Path is the embedded database directory. Ignored in server mode.
	Path string

	// ServerMode, when true, dials a running dolt sql-server instead of
	// opening the embedded engine.
	ServerMode bool
	ServerDSN  string // e.g. "root:@tcp(127.0.0.1:3307)/stoneforge"

	// Database is the schema name used in embedded mode.
	Database string

	// OpenTimeout bounds how long the embedded-mode advisory lock waits
	// before giving up. Zero disables the lock.
	OpenTimeout time.Duration

	ReadOnly bool
}

// SQLStore implements store.Store against a Dolt-compatible database/sql
// connection, shared between embedded and server modes.
type SQLStore struct {
	base
	db         *sql.DB
	closed     atomic.Bool
	mu         sync.RWMutex
	serverMode bool
	readOnly   bool
	accessLock *flock.Flock
}

const accessLockFile = "stoneforge-access.lock"
const openMaxElapsed = 30 * time.Second

func newOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openMaxElapsed
	return bo
}

// Open connects to Dolt in either embedded or server mode depending on
// cfg.ServerMode, applies the schema, and returns a ready Store.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	if cfg.ServerMode {
		return openServer(ctx, cfg)
	}
	return openEmbedded(ctx, cfg)
}

func openServer(ctx context.Context, cfg Config) (*SQLStore, error) {
	db, err := sql.Open("mysql", cfg.ServerDSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open server dsn: %w", err)
	}
	s := &SQLStore{db: db, serverMode: true, readOnly: cfg.ReadOnly}
	s.base.ex = s
	if err := s.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping server: %w", err)
	}
	if !cfg.ReadOnly {
		if err := s.initSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// openEmbedded opens the embedded Dolt engine via dolthub/driver. The
// driver import lives behind a CGO build tag (embedded_cgo.go /
// embedded_nocgo.go) so this file stays buildable without CGO.
func openEmbedded(ctx context.Context, cfg Config) (*SQLStore, error) {
	if info, statErr := os.Stat(cfg.Path); statErr == nil && !info.IsDir() {
		return nil, fmt.Errorf("sqlstore: database path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("sqlstore: create database directory: %w", err)
	}
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: resolve path: %w", err)
	}

	var lock *flock.Flock
	if cfg.OpenTimeout > 0 {
		lock, err = acquireAccessLock(ctx, absPath, !cfg.ReadOnly, cfg.OpenTimeout)
		if err != nil {
			return nil, err
		}
	}

	database := cfg.Database
	if database == "" {
		database = "stoneforge"
	}

	db, err := openEmbeddedDB(absPath, database)
	if err != nil {
		if lock != nil {
			lock.Unlock()
		}
		return nil, fmt.Errorf("sqlstore: open embedded engine: %w", err)
	}

	s := &SQLStore{db: db, serverMode: false, readOnly: cfg.ReadOnly, accessLock: lock}
	s.base.ex = s
	if !cfg.ReadOnly {
		if err := s.initSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func acquireAccessLock(ctx context.Context, dbDir string, exclusive bool, timeout time.Duration) (*flock.Flock, error) {
	parent := filepath.Dir(dbDir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return nil, fmt.Errorf("sqlstore: create lock dir: %w", err)
	}
	lockPath := filepath.Join(parent, accessLockFile)
	l := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var locked bool
	var err error
	if exclusive {
		locked, err = l.TryLockContext(lockCtx, 50*time.Millisecond)
	} else {
		locked, err = l.TryRLockContext(lockCtx, 50*time.Millisecond)
	}
	metrics.lockWaitMs.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Bool("stoneforge.store.lock_exclusive", exclusive)))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: acquire access lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("sqlstore: access lock busy after %s", timeout)
	}
	return l, nil
}

// isRetryableError reports whether err looks like a transient server-mode
// connection failure worth retrying (stale pool connection, brief network
// blip, server restart).
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, substr := range []string{"connection refused", "broken pipe", "bad connection", "EOF", "connection reset"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// withRetry retries fn under exponential backoff for transient server-mode
// errors. In embedded mode fn runs exactly once, with no retry loop.
func (s *SQLStore) withRetry(ctx context.Context, fn func() error) error {
	if !s.serverMode {
		return fn()
	}
	attempts := 0
	op := func() error {
		attempts++
		err := fn()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(newOpenBackoff(), ctx))
	if attempts > 1 {
		metrics.retryCount.Add(ctx, int64(attempts-1))
	}
	return err
}

func spanSQL(query string) string {
	if len(query) > 200 {
		return query[:200] + "..."
	}
	return query
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *SQLStore) execContext(ctx context.Context, query string, args ...any) (res sql.Result, retErr error) {
	ctx, span := tracer.Start(ctx, "store.exec", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.statement", spanSQL(query))))
	defer func() { endSpan(span, retErr) }()

	err := s.withRetry(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func (s *SQLStore) queryContext(ctx context.Context, query string, args ...any) (rows *sql.Rows, retErr error) {
	ctx, span := tracer.Start(ctx, "store.query", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.statement", spanSQL(query))))
	defer func() { endSpan(span, retErr) }()

	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

func (s *SQLStore) queryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	ctx, span := tracer.Start(ctx, "store.query_row", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.statement", spanSQL(query))))
	defer span.End()
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(store.Schema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.execContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: apply schema: %w\nstatement: %s", err, spanSQL(stmt))
		}
	}
	return nil
}

// splitStatements splits a SQL script into individual statements, since
// Dolt/MySQL doesn't support multiple statements in a single Exec call.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	var stringChar byte

	for i := 0; i < len(script); i++ {
		c := script[i]
		if inString {
			current.WriteByte(c)
			if c == stringChar && (i == 0 || script[i-1] != '\\') {
				inString = false
			}
			continue
		}
		if c == '\'' || c == '"' || c == '`' {
			inString = true
			stringChar = c
			current.WriteByte(c)
			continue
		}
		if c == ';' {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// Close releases the database handle and, in embedded mode, the access
// lock.
func (s *SQLStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := s.db.Close()
	if s.accessLock != nil {
		s.accessLock.Unlock()
	}
	return err
}

// RunInTransaction runs fn inside a single SQL transaction.
func (s *SQLStore) RunInTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	ctx, span := tracer.Start(ctx, "store.transaction", trace.WithSpanKind(trace.SpanKindClient))
	var retErr error
	defer func() { endSpan(span, retErr) }()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		retErr = fmt.Errorf("sqlstore: begin transaction: %w", err)
		return retErr
	}
	txStore := &txAdapter{parent: s, tx: sqlTx}
	txStore.base.ex = txStore
	if err := fn(txStore); err != nil {
		_ = sqlTx.Rollback()
		retErr = err
		return retErr
	}
	if err := sqlTx.Commit(); err != nil {
		retErr = fmt.Errorf("sqlstore: commit transaction: %w", err)
		return retErr
	}
	return nil
}

// execer is satisfied by both *SQLStore (via its instrumented wrappers)
// and *txAdapter (via a live *sql.Tx), letting the Tx method
// implementations in crud.go run either directly against the store or
// inside RunInTransaction.
type execer interface {
	exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	queryRow(ctx context.Context, query string, args ...any) *sql.Row
}

// base implements store.Tx against whatever execer it is pointed at. Both
// SQLStore and txAdapter embed it, set base.ex to themselves, and thereby
// get the full store.Tx method set for free (crud.go).
type base struct {
	ex execer
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.execContext(ctx, query, args...)
}
func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.queryContext(ctx, query, args...)
}
func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.queryRowContext(ctx, query, args...)
}

// txAdapter satisfies store.Tx using a live *sql.Tx, reusing the CRUD
// methods defined on base in crud.go.
type txAdapter struct {
	base
	parent *SQLStore
	tx     *sql.Tx
}

func (t *txAdapter) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}
func (t *txAdapter) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}
func (t *txAdapter) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

var _ store.Store = (*SQLStore)(nil)
