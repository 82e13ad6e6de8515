package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no document is stored under an identifier
	ErrNotFound = errors.New("document not found")

	// ErrCollectionMissing is returned when a backend has no storage for a collection
	ErrCollectionMissing = errors.New("collection does not exist")

	// ErrMissingID is returned when a document without an identifier is saved
	ErrMissingID = errors.New("document has no _id")

	// ErrInvalidCollection is returned for collection names a backend cannot store
	ErrInvalidCollection = errors.New("invalid collection name")
)

// undefinedTable is the Postgres SQLSTATE for a missing relation
const undefinedTable = "42P01"

// convertSQLError maps driver errors to store errors
func convertSQLError(collection string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	// pgx driver
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", ErrCollectionMissing, collection)
	}

	// lib/pq driver
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", ErrCollectionMissing, collection)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrError && strings.Contains(liteErr.Error(), "no such table") {
		return fmt.Errorf("%w: %s", ErrCollectionMissing, collection)
	}

	return err
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCollectionMissing returns true if the error is ErrCollectionMissing
func IsCollectionMissing(err error) bool {
	return errors.Is(err, ErrCollectionMissing)
}
