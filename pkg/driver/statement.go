package driver

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"fmt"
	"iter"
	"reflect"

	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/placeholder"
)

type binding struct {
	value any
	// ref is a pointer read at execute time when set.
	ref reflect.Value
}

func (b binding) resolve() any {
	if b.ref.IsValid() {
		return b.ref.Elem().Interface()
	}
	return b.value
}

// Statement is a prepared statement. It borrows its connection's handle and
// must not be used after the connection is closed. A statement re-prepares
// on every Execute and owns at most one backend statement handle, released
// by CloseCursor or the next Execute.
//
// A Statement is also a forward-only, single-pass row sequence: Next
// executes it on first use, and Rewind is only allowed before the first Next.
type Statement struct {
	conn  *Conn
	query *placeholder.Query
	bound map[int]binding
	stmt  backend.Stmt
	mode  FetchMode

	executed bool
	started  bool
	key      int
	current  Row
	valid    bool
	err      error
	columns  []string
}

func newStatement(c *Conn, q *placeholder.Query) *Statement {
	return &Statement{
		conn:  c,
		query: q,
		bound: make(map[int]binding, q.Count()),
		mode:  FetchBoth,
		key:   -1,
	}
}

// SQL returns the rewritten, positional SQL sent to the backend.
func (s *Statement) SQL() string { return s.query.SQL }

// Query returns the parsed query.
func (s *Statement) Query() *placeholder.Query { return s.query }

// BindValue binds v to the placeholder identified by key, replacing any
// earlier binding of the same slot.
func (s *Statement) BindValue(key placeholder.Key, v any) error {
	slot, ok := s.query.Slot(key)
	if !ok {
		return &BindError{Key: key.String(), Query: s.query.Original}
	}
	s.bound[slot] = binding{value: v}
	return nil
}

// BindParam binds the variable ptr points to. Its value is read when the
// statement executes, not when it is bound.
func (s *Statement) BindParam(key placeholder.Key, ptr any) error {
	slot, ok := s.query.Slot(key)
	if !ok {
		return &BindError{Key: key.String(), Query: s.query.Original}
	}
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: BindParam requires a non-nil pointer, got %T", ErrInvalidArgument, ptr)
	}
	s.bound[slot] = binding{ref: rv}
	return nil
}

// Execute binds args and runs the statement. A plain argument at index i
// binds position i+1; a sql.NamedArg binds its name. The parameter count is
// checked before the backend is touched.
func (s *Statement) Execute(ctx context.Context, args ...any) error {
	s.executed = false
	s.err = nil

	for i, arg := range args {
		var err error
		if named, ok := arg.(sql.NamedArg); ok {
			err = s.BindValue(placeholder.Name(named.Name), named.Value)
		} else {
			err = s.BindValue(placeholder.Pos(i+1), arg)
		}
		if err != nil {
			return err
		}
	}

	if len(s.bound) != s.query.Count() {
		return &ParameterCountError{Bound: len(s.bound), Expected: s.query.Count(), Query: s.query.Original}
	}

	values, err := s.values()
	if err != nil {
		return err
	}

	if err := s.free(); err != nil {
		s.conn.logger.Warn("failed to free previous result", "conn", s.conn.id, "error", err)
	}

	b := s.conn.backend
	stmt, err := b.Prepare(ctx, s.conn.handle, s.query.SQL)
	if err != nil {
		return s.conn.wrap("prepare", err)
	}
	s.stmt = stmt

	s.conn.logger.Debug("executing statement", "conn", s.conn.id, "sql", s.query.SQL, "params", len(values))
	if err := b.Execute(ctx, stmt, values); err != nil {
		return s.conn.wrap("execute", err)
	}

	s.executed = true
	s.started = false
	s.key = -1
	s.current, s.valid = Row{}, false
	s.columns = nil
	return nil
}

// values returns one value per marker, converting driver.Valuer values.
func (s *Statement) values() ([]any, error) {
	slots := make([]any, s.query.Count())
	for slot, b := range s.bound {
		v := b.resolve()
		if valuer, ok := v.(sqldriver.Valuer); ok {
			converted, err := valuer.Value()
			if err != nil {
				return nil, fmt.Errorf("%w: parameter %s: %w", ErrBinding, s.query.Keys()[slot], err)
			}
			v = converted
		}
		slots[slot] = v
	}
	out := make([]any, len(s.query.Markers))
	for i, slot := range s.query.Markers {
		out[i] = slots[slot]
	}
	return out, nil
}

func (s *Statement) free() error {
	if s.stmt == nil {
		return nil
	}
	err := s.conn.backend.FreeResult(s.stmt)
	s.stmt = nil
	return err
}

// SetFetchMode sets the default mode used by FetchDefault. Extra arguments
// are not supported.
func (s *Statement) SetFetchMode(mode FetchMode, extra ...any) error {
	if len(extra) > 0 {
		return fmt.Errorf("%w: setFetchMode does not support extra arguments", ErrInvalidArgument)
	}
	if mode == FetchDefault {
		mode = FetchBoth
	}
	if !mode.valid() {
		return fmt.Errorf("%w: unsupported fetch mode %s", ErrInvalidArgument, mode)
	}
	s.mode = mode
	return nil
}

func (s *Statement) resolveMode(mode FetchMode) (FetchMode, error) {
	if mode == FetchDefault {
		mode = s.mode
	}
	if !mode.valid() {
		return 0, fmt.Errorf("%w: unsupported fetch mode %s", ErrInvalidArgument, mode)
	}
	return mode, nil
}

func (s *Statement) columnNames() ([]string, error) {
	if s.columns != nil {
		return s.columns, nil
	}
	b := s.conn.backend
	n, err := b.ColumnCount(s.stmt)
	if err != nil {
		return nil, s.conn.wrap("column count", err)
	}
	cols := make([]string, n)
	for i := range cols {
		if cols[i], err = b.ColumnName(s.stmt, i); err != nil {
			return nil, s.conn.wrap("column name", err)
		}
	}
	s.columns = cols
	return cols, nil
}

// cell reads one column of the current row. Empty strings are reported as
// nil since ODBC has no reliable cell-level null signal.
func (s *Statement) cell(i int) (any, error) {
	v, err := s.conn.backend.ColumnValue(s.stmt, i)
	if err != nil {
		return nil, s.conn.wrap("column value", err)
	}
	if str, ok := v.(string); ok && str == "" {
		return nil, nil
	}
	return v, nil
}

// Fetch returns the next row. ok is false once the result is exhausted.
func (s *Statement) Fetch(ctx context.Context, mode FetchMode) (row Row, ok bool, err error) {
	mode, err = s.resolveMode(mode)
	if err != nil {
		return Row{}, false, err
	}
	if !s.executed || s.stmt == nil {
		return Row{}, false, ErrNotExecuted
	}

	more, err := s.conn.backend.FetchRow(ctx, s.stmt)
	if err != nil {
		return Row{}, false, s.conn.wrap("fetch", err)
	}
	if !more {
		return Row{}, false, nil
	}

	cols, err := s.columnNames()
	if err != nil {
		return Row{}, false, err
	}
	values := make([]any, len(cols))
	for i := range cols {
		if values[i], err = s.cell(i); err != nil {
			return Row{}, false, err
		}
	}
	return Row{mode: mode, columns: cols, values: values}, true, nil
}

// FetchAll returns every remaining row.
func (s *Statement) FetchAll(ctx context.Context, mode FetchMode) ([]Row, error) {
	var rows []Row
	for {
		row, ok, err := s.Fetch(ctx, mode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// FetchColumn advances to the next row and returns the value of the
// 0-based column index. ok is false once the result is exhausted.
func (s *Statement) FetchColumn(ctx context.Context, index int) (v any, ok bool, err error) {
	if !s.executed || s.stmt == nil {
		return nil, false, ErrNotExecuted
	}
	more, err := s.conn.backend.FetchRow(ctx, s.stmt)
	if err != nil {
		return nil, false, s.conn.wrap("fetch", err)
	}
	if !more {
		return nil, false, nil
	}
	n, err := s.conn.backend.ColumnCount(s.stmt)
	if err != nil {
		return nil, false, s.conn.wrap("column count", err)
	}
	if index < 0 || index >= n {
		return nil, false, fmt.Errorf("%w: column index %d out of range [0,%d)", ErrInvalidArgument, index, n)
	}
	v, err = s.cell(index)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// RowCount returns the number of rows affected by the last execution.
func (s *Statement) RowCount() (int64, error) {
	if s.stmt == nil {
		return 0, nil
	}
	n, err := s.conn.backend.RowCount(s.stmt)
	if err != nil {
		return 0, s.conn.wrap("row count", err)
	}
	return n, nil
}

// ColumnCount returns the number of columns in the result set.
func (s *Statement) ColumnCount() (int, error) {
	if s.stmt == nil {
		return 0, nil
	}
	n, err := s.conn.backend.ColumnCount(s.stmt)
	if err != nil {
		return 0, s.conn.wrap("column count", err)
	}
	return n, nil
}

// CloseCursor releases the backend statement handle. The statement can be
// executed again afterwards.
func (s *Statement) CloseCursor() error {
	s.executed = false
	s.valid = false
	if err := s.free(); err != nil {
		return s.conn.wrap("free result", err)
	}
	return nil
}

// ErrorCode returns the backend error code of the owning connection.
func (s *Statement) ErrorCode() string { return s.conn.ErrorCode() }

// ErrorInfo returns the backend error of the owning connection.
func (s *Statement) ErrorInfo() backend.ErrorInfo { return s.conn.ErrorInfo() }

// Rewind prepares iteration, executing the statement if needed. It fails
// once Next has been called.
func (s *Statement) Rewind(ctx context.Context) error {
	if s.started {
		return ErrRewindAfterStart
	}
	if !s.executed {
		return s.Execute(ctx)
	}
	return nil
}

// Next advances to the next row, executing the statement on first use.
// It returns false when the rows are exhausted or an error occurred; check Err.
func (s *Statement) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if !s.executed {
		if err := s.Execute(ctx); err != nil {
			s.err = err
			return false
		}
	}
	s.started = true
	s.key++
	row, ok, err := s.Fetch(ctx, FetchDefault)
	if err != nil {
		s.err = err
		s.current, s.valid = Row{}, false
		return false
	}
	s.current, s.valid = row, ok
	return ok
}

// Current returns the row Next moved to.
func (s *Statement) Current() Row { return s.current }

// Key returns the 0-based index of the current row, or -1 before the first Next.
func (s *Statement) Key() int { return s.key }

// Valid reports whether Current holds a row.
func (s *Statement) Valid() bool { return s.valid }

// Err returns the error that stopped iteration, if any.
func (s *Statement) Err() error { return s.err }

// All iterates over the remaining rows. Check Err after the loop.
func (s *Statement) All(ctx context.Context) iter.Seq2[int, Row] {
	return func(yield func(int, Row) bool) {
		for s.Next(ctx) {
			if !yield(s.key, s.current) {
				return
			}
		}
	}
}
