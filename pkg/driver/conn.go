package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/dialect"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"github.com/leapstack-labs/leapvertica/pkg/placeholder"
)

// Conn is one backend connection. Its transaction state is read from the
// backend autocommit flag: autocommit on means no transaction is open.
//
// A Conn is not safe for concurrent use.
type Conn struct {
	id      string
	backend backend.Backend
	handle  backend.Handle
	dialect *dialect.Dialect
	logger  *slog.Logger
	closed  bool
}

// NewConn wraps an open backend handle.
func NewConn(b backend.Backend, h backend.Handle, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{
		id:      uuid.NewString(),
		backend: b,
		handle:  h,
		dialect: vertica.Vertica,
		logger:  logger,
	}
}

// ID identifies the connection in logs.
func (c *Conn) ID() string { return c.id }

// Dialect returns the SQL dialect of the connection.
func (c *Conn) Dialect() *dialect.Dialect { return c.dialect }

// InTransaction reports whether a transaction is open.
func (c *Conn) InTransaction() bool {
	if c.closed {
		return false
	}
	return !c.backend.Autocommit(c.handle)
}

// BeginTransaction turns autocommit off.
func (c *Conn) BeginTransaction(ctx context.Context) error {
	if c.closed {
		return ErrClosed
	}
	if c.InTransaction() {
		return ErrTransactionActive
	}
	if err := c.backend.SetAutocommit(ctx, c.handle, false); err != nil {
		return c.wrap("begin transaction", err)
	}
	c.logger.Debug("transaction started", "conn", c.id)
	return nil
}

// Commit commits the open transaction and turns autocommit back on. If the
// backend commit fails the transaction stays open.
func (c *Conn) Commit(ctx context.Context) error {
	return c.finish(ctx, "commit", c.backend.Commit)
}

// Rollback rolls the open transaction back and turns autocommit back on. If
// the backend rollback fails the transaction stays open.
func (c *Conn) Rollback(ctx context.Context) error {
	return c.finish(ctx, "rollback", c.backend.Rollback)
}

func (c *Conn) finish(ctx context.Context, op string, fn func(context.Context, backend.Handle) error) error {
	if c.closed {
		return ErrClosed
	}
	if !c.InTransaction() {
		return ErrNoTransaction
	}
	if err := fn(ctx, c.handle); err != nil {
		return c.wrap(op, err)
	}
	if err := c.backend.SetAutocommit(ctx, c.handle, true); err != nil {
		return c.wrap(op, err)
	}
	c.logger.Debug("transaction finished", "conn", c.id, "op", op)
	return nil
}

// Prepare parses query and returns a statement. Nothing is sent to the
// backend until the statement executes.
func (c *Conn) Prepare(query string) (*Statement, error) {
	if c.closed {
		return nil, ErrClosed
	}
	q, err := placeholder.Parse(query)
	if err != nil {
		return nil, err
	}
	return newStatement(c, q), nil
}

// Query prepares and executes query.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*Statement, error) {
	stmt, err := c.Prepare(query)
	if err != nil {
		return nil, err
	}
	if err := stmt.Execute(ctx, args...); err != nil {
		return nil, err
	}
	return stmt, nil
}

// Exec prepares and executes query and returns the number of affected rows.
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	stmt, err := c.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer c.closeCursor(stmt)
	return stmt.RowCount()
}

// FetchAll runs query and returns all rows.
func (c *Conn) FetchAll(ctx context.Context, query string, mode FetchMode, args ...any) ([]Row, error) {
	stmt, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer c.closeCursor(stmt)
	return stmt.FetchAll(ctx, mode)
}

// FetchColumn runs query and returns column index of the first row. ok is
// false when the query returned no rows.
func (c *Conn) FetchColumn(ctx context.Context, query string, index int, args ...any) (v any, ok bool, err error) {
	stmt, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer c.closeCursor(stmt)
	return stmt.FetchColumn(ctx, index)
}

func (c *Conn) closeCursor(stmt *Statement) {
	if err := stmt.CloseCursor(); err != nil {
		c.logger.Warn("failed to close cursor", "conn", c.id, "error", err)
	}
}

// LastInsertID returns the last identity value generated in this session.
// It is best-effort and connection-scoped: another insert on the same
// connection between the write and this call changes the result.
func (c *Conn) LastInsertID(ctx context.Context) (int64, error) {
	v, ok, err := c.FetchColumn(ctx, vertica.LastInsertIDSQL, 0)
	if err != nil {
		return 0, err
	}
	if !ok || v == nil {
		return 0, nil
	}
	return ToInt64(v)
}

// ToInt64 converts an integer-like column value as backends return it.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(n)), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected integer value type %T", v)
	}
}

// ErrorCode returns the backend's last error code for this connection.
func (c *Conn) ErrorCode() string {
	return c.ErrorInfo().Code
}

// ErrorInfo returns the backend's last error for this connection.
func (c *Conn) ErrorInfo() backend.ErrorInfo {
	return c.backend.LastError(c.handle)
}

// Quote returns v as a SQL literal. Numbers pass through unquoted.
func (c *Conn) Quote(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return c.dialect.QuoteString(x)
	default:
		return c.dialect.QuoteString(fmt.Sprint(x))
	}
}

// Close releases the backend handle. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.backend.Close(c.handle); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	c.logger.Debug("connection closed", "conn", c.id)
	return nil
}

// wrap attaches the backend's last error to err.
func (c *Conn) wrap(op string, err error) error {
	return newError(op, c.backend.LastError(c.handle), err)
}
