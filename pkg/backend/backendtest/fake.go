// Package backendtest provides an in-memory backend.Backend that records
// every primitive call, for use in tests.
package backendtest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapvertica/pkg/backend"
)

// Result is a canned response to a statement.
type Result struct {
	Columns  []string
	Rows     [][]any
	Affected int64
}

// Call is one recorded primitive invocation.
type Call struct {
	Op     string
	Handle string
	DSN    string
	SQL    string
	Args   []any
}

// Responder computes the result of an executed statement. Returning a
// non-zero ErrorInfo fails the execution.
type Responder func(call Call) (Result, backend.ErrorInfo)

// Fake is a recording backend. The zero value is not usable; call New.
type Fake struct {
	mu        sync.Mutex
	calls     []Call
	results   map[string]Result
	failures  map[string]backend.ErrorInfo
	respond   Responder
	connect   map[string]backend.ErrorInfo
	commit    backend.ErrorInfo
	rollback  backend.ErrorInfo
	handles   []*Handle
	lastError backend.ErrorInfo
}

var _ backend.Backend = (*Fake)(nil)

// New returns an empty fake. Unknown statements succeed with no rows.
func New() *Fake {
	return &Fake{
		results:  make(map[string]Result),
		failures: make(map[string]backend.ErrorInfo),
		connect:  make(map[string]backend.ErrorInfo),
	}
}

// On registers the result for statements whose SQL equals query.
func (f *Fake) On(query string, r Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[query] = r
	return f
}

// Respond installs a responder consulted before the registered results.
func (f *Fake) Respond(fn Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
	return f
}

// FailExecute makes executions of query fail with info.
func (f *Fake) FailExecute(query string, info backend.ErrorInfo) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[query] = info
	return f
}

// FailConnect makes connections to dsn fail with info.
func (f *Fake) FailConnect(dsn string, info backend.ErrorInfo) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connect[dsn] = info
	return f
}

// FailCommit makes every commit fail with info.
func (f *Fake) FailCommit(info backend.ErrorInfo) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commit = info
	return f
}

// FailRollback makes every rollback fail with info.
func (f *Fake) FailRollback(info backend.ErrorInfo) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollback = info
	return f
}

// Calls returns the recorded calls, optionally filtered by operation.
func (f *Fake) Calls(ops ...string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(ops) == 0 {
		return slices.Clone(f.calls)
	}
	var out []Call
	for _, c := range f.calls {
		if slices.Contains(ops, c.Op) {
			out = append(out, c)
		}
	}
	return out
}

// Executed returns the SQL of every execute call in order.
func (f *Fake) Executed() []string {
	var out []string
	for _, c := range f.Calls("execute") {
		out = append(out, c.SQL)
	}
	return out
}

// Handles returns every handle issued so far.
func (f *Fake) Handles() []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.handles)
}

// Handle is a fake connection handle.
type Handle struct {
	id         string
	dsn        string
	user       string
	autocommit bool
	closed     bool
	lastErr    backend.ErrorInfo
}

func (h *Handle) ID() string { return h.id }

// DSN returns the DSN the handle was opened with.
func (h *Handle) DSN() string { return h.dsn }

// User returns the user the handle was opened with.
func (h *Handle) User() string { return h.user }

// Closed reports whether Close was called.
func (h *Handle) Closed() bool { return h.closed }

type stmt struct {
	id      string
	h       *Handle
	query   string
	result  Result
	pos     int
	current []any
	freed   bool
}

func (s *stmt) ID() string { return s.id }

func (f *Fake) record(c Call) {
	f.calls = append(f.calls, c)
}

func (f *Fake) handle(bh backend.Handle) (*Handle, error) {
	h, ok := bh.(*Handle)
	if !ok || h == nil || h.closed {
		return nil, backend.ErrInvalidHandle
	}
	return h, nil
}

func (f *Fake) stmt(bs backend.Stmt) (*stmt, error) {
	s, ok := bs.(*stmt)
	if !ok || s == nil || s.freed {
		return nil, backend.ErrInvalidHandle
	}
	return s, nil
}

// Connect issues a new handle unless dsn was registered with FailConnect.
func (f *Fake) Connect(_ context.Context, dsn, user, _ string) (backend.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "connect", DSN: dsn})
	if info, ok := f.connect[dsn]; ok {
		f.lastError = info
		return nil, fmt.Errorf("connect %s: %s", dsn, info.Message)
	}
	h := &Handle{id: uuid.NewString(), dsn: dsn, user: user, autocommit: true}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *Fake) Close(bh backend.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.handle(bh)
	if err != nil {
		return err
	}
	f.record(Call{Op: "close", Handle: h.id, DSN: h.dsn})
	h.closed = true
	return nil
}

func (f *Fake) Prepare(_ context.Context, bh backend.Handle, query string) (backend.Stmt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.handle(bh)
	if err != nil {
		return nil, err
	}
	f.record(Call{Op: "prepare", Handle: h.id, DSN: h.dsn, SQL: query})
	return &stmt{id: uuid.NewString(), h: h, query: query}, nil
}

func (f *Fake) Execute(_ context.Context, bs backend.Stmt, args []any) error {
	f.mu.Lock()
	s, err := f.stmt(bs)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	call := Call{Op: "execute", Handle: s.h.id, DSN: s.h.dsn, SQL: s.query, Args: slices.Clone(args)}
	f.record(call)
	respond := f.respond
	failure, failed := f.failures[s.query]
	result := f.results[s.query]
	f.mu.Unlock()

	if respond != nil {
		var info backend.ErrorInfo
		result, info = respond(call)
		if !info.IsZero() {
			failure, failed = info, true
		}
	}
	if failed {
		s.h.lastErr = failure
		return fmt.Errorf("execute: %s", failure.Message)
	}

	s.result = result
	s.pos = 0
	s.current = nil
	return nil
}

func (f *Fake) FetchRow(_ context.Context, bs backend.Stmt) (bool, error) {
	s, err := f.stmt(bs)
	if err != nil {
		return false, err
	}
	if s.pos >= len(s.result.Rows) {
		s.current = nil
		return false, nil
	}
	s.current = s.result.Rows[s.pos]
	s.pos++
	return true, nil
}

func (f *Fake) ColumnValue(bs backend.Stmt, index int) (any, error) {
	s, err := f.stmt(bs)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.current) {
		return nil, fmt.Errorf("column index %d out of range", index)
	}
	return s.current[index], nil
}

func (f *Fake) ColumnName(bs backend.Stmt, index int) (string, error) {
	s, err := f.stmt(bs)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(s.result.Columns) {
		return "", fmt.Errorf("column index %d out of range", index)
	}
	return s.result.Columns[index], nil
}

func (f *Fake) ColumnCount(bs backend.Stmt) (int, error) {
	s, err := f.stmt(bs)
	if err != nil {
		return 0, err
	}
	return len(s.result.Columns), nil
}

func (f *Fake) RowCount(bs backend.Stmt) (int64, error) {
	s, err := f.stmt(bs)
	if err != nil {
		return 0, err
	}
	return s.result.Affected, nil
}

func (f *Fake) FreeResult(bs backend.Stmt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.stmt(bs)
	if err != nil {
		return err
	}
	f.record(Call{Op: "free", Handle: s.h.id, DSN: s.h.dsn, SQL: s.query})
	s.freed = true
	return nil
}

func (f *Fake) LastError(bh backend.Handle) backend.ErrorInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bh == nil {
		return f.lastError
	}
	h, ok := bh.(*Handle)
	if !ok || h == nil {
		return backend.ErrorInfo{Message: backend.ErrInvalidHandle.Error()}
	}
	return h.lastErr
}

func (f *Fake) SetAutocommit(_ context.Context, bh backend.Handle, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.handle(bh)
	if err != nil {
		return err
	}
	f.record(Call{Op: fmt.Sprintf("autocommit:%t", on), Handle: h.id, DSN: h.dsn})
	h.autocommit = on
	return nil
}

func (f *Fake) Autocommit(bh backend.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.handle(bh)
	if err != nil {
		return true
	}
	return h.autocommit
}

func (f *Fake) Commit(_ context.Context, bh backend.Handle) error {
	return f.finish(bh, "commit", f.commit)
}

func (f *Fake) Rollback(_ context.Context, bh backend.Handle) error {
	return f.finish(bh, "rollback", f.rollback)
}

func (f *Fake) finish(bh backend.Handle, op string, failure backend.ErrorInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, err := f.handle(bh)
	if err != nil {
		return err
	}
	f.record(Call{Op: op, Handle: h.id, DSN: h.dsn})
	if !failure.IsZero() {
		h.lastErr = failure
		return fmt.Errorf("%s: %s", op, failure.Message)
	}
	return nil
}
