package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/rdo/internal/queryir"
	"github.com/roach88/rdo/internal/querysql"
)

// Executor runs statement trees. *Session implements it.
type Executor interface {
	// ExecuteReader runs a query and calls fn once per result row.
	ExecuteReader(ctx context.Context, stmt queryir.Statement, fn func(*sql.Rows) error) error

	// ExecuteNonQuery runs a statement and returns the affected-row count.
	ExecuteNonQuery(ctx context.Context, stmt queryir.Statement) (int64, error)

	// CreateTempTable creates a temp table.
	CreateTempTable(ctx context.Context, def *queryir.CreateTable) error
}

var _ Executor = (*Session)(nil)

// NameFunc returns a unique name for a temp table or trigger. The prefix
// describes the object.
type NameFunc func(prefix string) string

// Session is a database session on one SQLite connection.
type Session struct {
	db       *sql.DB
	id       string
	names    NameFunc
	compiler *querysql.SQLCompiler
	logger   *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithNames sets the temp object name generator.
func WithNames(fn NameFunc) Option {
	return func(s *Session) { s.names = fn }
}

// UUIDNames generates prefix_<uuidv7> names.
func UUIDNames(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}

// Open creates or opens a SQLite database at the given path. ":memory:"
// opens a private in-memory database.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Session, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Temp tables are per connection: every statement must share one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Session{
		db:       db,
		id:       uuid.Must(uuid.NewV7()).String(),
		names:    UUIDNames,
		compiler: querysql.NewSQLCompiler(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	return s, nil
}

// Close closes the database connection.
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Session methods when available.
func (s *Session) DB() *sql.DB {
	return s.db
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Session) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
