package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapvertica/pkg/backend"
)

type stmt struct {
	id       string
	h        *handle
	query    string
	ps       *sql.Stmt
	rows     *sql.Rows
	cols     []string
	current  []any
	affected int64
}

func (s *stmt) ID() string { return s.id }

func asStmt(bs backend.Stmt) (*stmt, error) {
	s, ok := bs.(*stmt)
	if !ok || s == nil {
		return nil, backend.ErrInvalidHandle
	}
	return s, nil
}

// Prepare prepares query on the handle's session, inside the open
// transaction when autocommit is off. A manual-commit session whose
// transaction was lost gets a new one first, so statements never fall back
// to autocommit.
func (b *Backend) Prepare(ctx context.Context, bh backend.Handle, query string) (backend.Stmt, error) {
	h, err := asHandle(bh)
	if err != nil {
		return nil, err
	}
	if h.conn == nil {
		return nil, h.record(sql.ErrConnDone)
	}

	if !h.autocommit && h.tx == nil {
		if err := b.begin(ctx, h); err != nil {
			return nil, err
		}
	}

	var ps *sql.Stmt
	if h.tx != nil {
		ps, err = h.tx.PrepareContext(ctx, query)
	} else {
		ps, err = h.conn.PrepareContext(ctx, query)
	}
	if err != nil {
		return nil, h.record(err)
	}
	return &stmt{id: uuid.NewString(), h: h, query: query, ps: ps, affected: -1}, nil
}

// Execute runs the statement. Row-returning statements open a cursor,
// everything else records the affected row count.
func (b *Backend) Execute(ctx context.Context, bs backend.Stmt, args []any) error {
	s, err := asStmt(bs)
	if err != nil {
		return err
	}
	s.closeRows()

	if returnsRows(s.query) {
		rows, err := s.ps.QueryContext(ctx, args...)
		if err != nil {
			return s.h.record(err)
		}
		cols, err := rows.Columns()
		if err != nil {
			_ = rows.Close()
			return s.h.record(err)
		}
		s.rows = rows
		s.cols = cols
		s.affected = -1
		return nil
	}

	res, err := s.ps.ExecContext(ctx, args...)
	if err != nil {
		return s.h.record(err)
	}
	s.cols = nil
	if n, err := res.RowsAffected(); err == nil {
		s.affected = n
	} else {
		s.affected = -1
	}
	return nil
}

// FetchRow advances the cursor and buffers the row's values.
func (b *Backend) FetchRow(_ context.Context, bs backend.Stmt) (bool, error) {
	s, err := asStmt(bs)
	if err != nil {
		return false, err
	}
	if s.rows == nil {
		return false, nil
	}

	if !s.rows.Next() {
		err := s.rows.Err()
		s.closeRows()
		return false, s.h.record(err)
	}

	values := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		return false, s.h.record(err)
	}
	for i, v := range values {
		// ODBC hands back character data; keep text as text.
		if raw, ok := v.([]byte); ok {
			values[i] = string(raw)
		}
	}
	s.current = values
	return true, nil
}

// ColumnValue returns the value at index of the current row.
func (b *Backend) ColumnValue(bs backend.Stmt, index int) (any, error) {
	s, err := asStmt(bs)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(s.current) {
		return nil, fmt.Errorf("column index %d out of range", index)
	}
	return s.current[index], nil
}

// ColumnName returns the name of the column at index.
func (b *Backend) ColumnName(bs backend.Stmt, index int) (string, error) {
	s, err := asStmt(bs)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(s.cols) {
		return "", fmt.Errorf("column index %d out of range", index)
	}
	return s.cols[index], nil
}

// ColumnCount returns the number of result columns, zero for statements
// without a result set.
func (b *Backend) ColumnCount(bs backend.Stmt) (int, error) {
	s, err := asStmt(bs)
	if err != nil {
		return 0, err
	}
	return len(s.cols), nil
}

// RowCount returns the affected rows of the last DML execution, or -1 when
// the transport cannot tell (result sets).
func (b *Backend) RowCount(bs backend.Stmt) (int64, error) {
	s, err := asStmt(bs)
	if err != nil {
		return 0, err
	}
	return s.affected, nil
}

// FreeResult closes the cursor and the prepared statement.
func (b *Backend) FreeResult(bs backend.Stmt) error {
	s, err := asStmt(bs)
	if err != nil {
		return err
	}
	s.closeRows()
	if s.ps == nil {
		return nil
	}
	err = s.ps.Close()
	s.ps = nil
	return err
}

func (s *stmt) closeRows() {
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
	s.current = nil
}

var rowKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"PROFILE":  true,
	"VALUES":   true,
	"TABLE":    true,
	"DESCRIBE": true,
	"AT":       true,
}

// returnsRows guesses from the leading keyword whether query produces a
// result set.
func returnsRows(query string) bool {
	s := query
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
				continue
			}
			return false
		case strings.HasPrefix(s, "/*"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
				continue
			}
			return false
		}
		break
	}

	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_')
	})
	if end < 0 {
		end = len(s)
	}
	return rowKeywords[strings.ToUpper(s[:end])]
}
