package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/pkg/document"
)

// Dialect selects the SQL flavour of a SQL store
type Dialect int

const (
	// Postgres uses $n placeholders and = ANY($1) batch lookups
	Postgres Dialect = iota
	// SQLite uses ? placeholders and IN (...) batch lookups
	SQLite
)

// String returns the string representation of the dialect
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "unknown"
	}
}

// SQL keeps one table per collection with an id key column and the BSON encoded body
type SQL struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// SQLOption configures a SQL store
type SQLOption func(*SQL)

// WithSQLLogger sets the logger
func WithSQLLogger(logger *zap.Logger) SQLOption {
	return func(s *SQL) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSQL creates a SQL store over db
func NewSQL(db *sql.DB, dialect Dialect, opts ...SQLOption) *SQL {
	s := &SQL{db: db, dialect: dialect, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQL) table(collection string) (string, error) {
	if collection == "" || strings.ContainsRune(collection, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, collection)
	}
	return pq.QuoteIdentifier(collection), nil
}

func (s *SQL) placeholder(n int) string {
	if s.dialect == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", n)
}

// EnsureCollection creates the table of collection if it does not exist
func (s *SQL) EnsureCollection(ctx context.Context, collection string) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}
	body := "BYTEA"
	if s.dialect == SQLite {
		body = "BLOB"
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, body %s NOT NULL)", table, body)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}
	s.logger.Debug("ensured collection", zap.String("collection", collection), zap.Stringer("dialect", s.dialect))
	return nil
}

// FetchByID returns the document stored under id
func (s *SQL) FetchByID(ctx context.Context, collection string, id document.Value) (*document.Document, error) {
	table, err := s.table(collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT body FROM %s WHERE id = %s", table, s.placeholder(1))

	var body []byte
	if err := s.db.QueryRowContext(ctx, query, Key(id)).Scan(&body); err != nil {
		return nil, convertSQLError(collection, err)
	}
	return document.Unmarshal(body)
}

// FetchByIDs returns the documents stored under ids with a single query
func (s *SQL) FetchByIDs(ctx context.Context, collection string, ids []document.Value) ([]*document.Document, error) {
	table, err := s.table(collection)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*document.Document{}, nil
	}

	keys := uniqueKeys(ids)
	var (
		query string
		args  []interface{}
	)
	switch s.dialect {
	case SQLite:
		marks := make([]string, len(keys))
		args = make([]interface{}, len(keys))
		for i, k := range keys {
			marks[i] = "?"
			args[i] = k
		}
		query = fmt.Sprintf("SELECT id, body FROM %s WHERE id IN (%s)", table, strings.Join(marks, ", "))
	default:
		query = fmt.Sprintf("SELECT id, body FROM %s WHERE id = ANY($1)", table)
		args = []interface{}{pq.Array(keys)}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, convertSQLError(collection, err)
	}
	defer rows.Close()

	found := make(map[string]*document.Document, len(keys))
	for rows.Next() {
		var (
			key  string
			body []byte
		)
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		doc, err := document.Unmarshal(body)
		if err != nil {
			return nil, fmt.Errorf("decoding %s %s: %w", collection, key, err)
		}
		found[key] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, convertSQLError(collection, err)
	}
	return align(ids, found), nil
}

// Put inserts or replaces doc
func (s *SQL) Put(ctx context.Context, collection string, doc *document.Document) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}
	id, err := documentID(doc)
	if err != nil {
		return err
	}
	body, err := document.Marshal(doc)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, body) VALUES (%s, %s) ON CONFLICT (id) DO UPDATE SET body = excluded.body",
		table, s.placeholder(1), s.placeholder(2),
	)
	if _, err := s.db.ExecContext(ctx, query, Key(id), body); err != nil {
		return convertSQLError(collection, err)
	}
	return nil
}

// Delete removes the document stored under id
func (s *SQL) Delete(ctx context.Context, collection string, id document.Value) error {
	table, err := s.table(collection)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, s.placeholder(1))

	result, err := s.db.ExecContext(ctx, query, Key(id))
	if err != nil {
		return convertSQLError(collection, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database handle
func (s *SQL) Close() error {
	return s.db.Close()
}
