// Package backend defines the ODBC-style primitives the driver is built on.
//
// A Backend hands out opaque connection and statement handles and exposes
// the cursor, transaction and error primitives of an ODBC bridge. The driver
// package layers placeholder rewriting, binding, fetch modes and the
// transaction state machine on top of it. Implementations live in
// subpackages: sqlbackend drives database/sql transports, backendtest is an
// in-memory recording fake.
package backend

import (
	"context"
	"errors"
)

// ErrInvalidHandle is returned when a handle was not issued by the backend
// it is passed to, or has already been released.
var ErrInvalidHandle = errors.New("invalid handle")

// Handle is an opaque connection handle.
type Handle interface {
	ID() string
}

// Stmt is an opaque prepared statement handle.
type Stmt interface {
	ID() string
}

// ErrorInfo is the backend's last error for a handle.
type ErrorInfo struct {
	Code    string
	Message string
}

// IsZero reports whether no error has been recorded.
func (e ErrorInfo) IsZero() bool {
	return e.Code == "" && e.Message == ""
}

// Backend is the set of primitives a connection is driven through.
// Column indexes are 0-based. Implementations are not required to be safe
// for concurrent use of the same handle.
type Backend interface {
	// Connect opens a connection. A nil handle with a non-nil error means
	// no usable connection was established.
	Connect(ctx context.Context, dsn, user, password string) (Handle, error)
	// Close releases the connection, rolling back any open transaction.
	Close(h Handle) error

	Prepare(ctx context.Context, h Handle, query string) (Stmt, error)
	// Execute runs a prepared statement with one value per ? marker.
	Execute(ctx context.Context, s Stmt, args []any) error
	// FetchRow advances the cursor. It returns false once the result is
	// exhausted or when the statement produced no result set.
	FetchRow(ctx context.Context, s Stmt) (bool, error)
	ColumnValue(s Stmt, index int) (any, error)
	ColumnName(s Stmt, index int) (string, error)
	ColumnCount(s Stmt) (int, error)
	RowCount(s Stmt) (int64, error)
	FreeResult(s Stmt) error

	// LastError returns the last error recorded for h. A nil handle returns
	// the last connection error.
	LastError(h Handle) ErrorInfo

	SetAutocommit(ctx context.Context, h Handle, on bool) error
	Autocommit(h Handle) bool
	Commit(ctx context.Context, h Handle) error
	Rollback(ctx context.Context, h Handle) error
}
