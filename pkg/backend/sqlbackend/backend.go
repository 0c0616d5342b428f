// Package sqlbackend implements backend.Backend on top of database/sql.
//
// Each connection handle owns one dedicated *sql.Conn so that session state
// (search_path, autocommit, LAST_INSERT_ID) stays on a single server
// session. Turning autocommit off is emulated with an explicit transaction
// that is renewed after every commit or rollback, the way an ODBC driver in
// manual-commit mode behaves.
package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/core"
)

// Transport names registered with database/sql.
const (
	TransportODBC    = core.TransportODBC
	TransportVertica = core.TransportVertica
	TransportPgx     = core.TransportPgx
	TransportDuckDB  = core.TransportDuckDB
)

// OpenFunc opens a connection pool. It matches sql.Open.
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithOpener replaces sql.Open, mainly for tests.
func WithOpener(open OpenFunc) Option {
	return func(b *Backend) { b.open = open }
}

// WithPersistent keeps one pool per DSN alive across Connect and Close
// calls instead of opening a fresh pool for every connection.
func WithPersistent(persistent bool) Option {
	return func(b *Backend) { b.persistent = persistent }
}

// Backend drives a database/sql transport.
type Backend struct {
	transport  string
	persistent bool
	open       OpenFunc
	logger     *slog.Logger

	mu      sync.Mutex
	pools   map[string]*sql.DB
	lastErr backend.ErrorInfo
}

var _ backend.Backend = (*Backend)(nil)

// New creates a Backend for the named database/sql transport.
func New(transport string, opts ...Option) *Backend {
	b := &Backend{
		transport: transport,
		open:      sql.Open,
		logger:    slog.New(slog.DiscardHandler),
		pools:     make(map[string]*sql.DB),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Transport returns the database/sql driver name in use.
func (b *Backend) Transport() string { return b.transport }

type handle struct {
	id         string
	db         *sql.DB
	conn       *sql.Conn
	tx         *sql.Tx
	autocommit bool
	pooled     bool
	lastErr    backend.ErrorInfo
}

func (h *handle) ID() string { return h.id }

func (h *handle) record(err error) error {
	if err != nil {
		h.lastErr = errorInfo(err)
	}
	return err
}

// Connect opens a dedicated session on the transport.
func (b *Backend) Connect(ctx context.Context, dsn, user, password string) (backend.Handle, error) {
	full, err := withCredentials(b.transport, dsn, user, password)
	if err != nil {
		return nil, b.recordConnect(err)
	}

	db, err := b.pool(full)
	if err != nil {
		return nil, b.recordConnect(fmt.Errorf("failed to open %s pool: %w", b.transport, err))
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		if !b.persistent {
			_ = db.Close()
		}
		return nil, b.recordConnect(fmt.Errorf("failed to connect: %w", err))
	}

	h := &handle{
		id:         uuid.NewString(),
		db:         db,
		conn:       conn,
		autocommit: true,
		pooled:     b.persistent,
	}
	b.logger.Debug("backend connected", slog.String("transport", b.transport), slog.String("handle", h.id))
	return h, nil
}

func (b *Backend) pool(dsn string) (*sql.DB, error) {
	if !b.persistent {
		return b.open(b.transport, dsn)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if db, ok := b.pools[dsn]; ok {
		return db, nil
	}
	db, err := b.open(b.transport, dsn)
	if err != nil {
		return nil, err
	}
	b.pools[dsn] = db
	return db, nil
}

func (b *Backend) recordConnect(err error) error {
	b.mu.Lock()
	b.lastErr = errorInfo(err)
	b.mu.Unlock()
	return err
}

// Close releases the session. Pools are only closed for non-persistent
// backends; see Shutdown.
func (b *Backend) Close(bh backend.Handle) error {
	h, err := asHandle(bh)
	if err != nil {
		return err
	}
	if h.conn == nil {
		return nil
	}

	var firstErr error
	if h.tx != nil {
		if err := h.tx.Rollback(); err != nil && firstErr == nil {
			firstErr = err
		}
		h.tx = nil
	}
	if err := h.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	h.conn = nil
	if !h.pooled {
		if err := h.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.logger.Debug("backend closed", slog.String("handle", h.id))
	return firstErr
}

// Shutdown closes every persistent pool.
func (b *Backend) Shutdown() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for dsn, db := range b.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(b.pools, dsn)
	}
	return firstErr
}

// LastError returns the last error recorded for h, or the last connection
// error when h is nil.
func (b *Backend) LastError(bh backend.Handle) backend.ErrorInfo {
	if bh == nil {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.lastErr
	}
	h, err := asHandle(bh)
	if err != nil {
		return errorInfo(err)
	}
	return h.lastErr
}

func asHandle(bh backend.Handle) (*handle, error) {
	h, ok := bh.(*handle)
	if !ok || h == nil {
		return nil, backend.ErrInvalidHandle
	}
	return h, nil
}
