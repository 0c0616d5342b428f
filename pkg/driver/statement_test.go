package driver

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"testing"

	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/backend/backendtest"
	"github.com/leapstack-labs/leapvertica/pkg/placeholder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatement_PositionalBind(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	stmt, err := conn.Prepare("SELECT * FROM t WHERE a = ? AND b = ?")
	require.NoError(t, err)
	require.NoError(t, stmt.BindValue(placeholder.Pos(1), 10))
	require.NoError(t, stmt.BindValue(placeholder.Pos(2), "x"))
	require.NoError(t, stmt.Execute(ctx))

	calls := fake.Calls("execute")
	require.Len(t, calls, 1)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", calls[0].SQL)
	assert.Equal(t, []any{10, "x"}, calls[0].Args)
}

func TestStatement_NamedBindRepeated(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	stmt, err := conn.Prepare("SELECT * FROM t WHERE a = :a AND b = :a")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", stmt.SQL())

	require.NoError(t, stmt.BindValue(placeholder.Name(":a"), 7))
	require.NoError(t, stmt.Execute(ctx))

	calls := fake.Calls("execute")
	require.Len(t, calls, 1)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", calls[0].SQL)
	assert.Equal(t, []any{7, 7}, calls[0].Args)
}

func TestStatement_ExecuteArgs(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	stmt, err := conn.Prepare("UPDATE t SET a = :a WHERE id = :id")
	require.NoError(t, err)
	require.NoError(t, stmt.Execute(ctx, sql.Named("id", 3), sql.Named("a", "v")))

	stmt2, err := conn.Prepare("UPDATE t SET a = ? WHERE id = ?")
	require.NoError(t, err)
	require.NoError(t, stmt2.Execute(ctx, "w", 4))

	calls := fake.Calls("execute")
	require.Len(t, calls, 2)
	assert.Equal(t, []any{"v", 3}, calls[0].Args)
	assert.Equal(t, []any{"w", 4}, calls[1].Args)
}

func TestStatement_UnknownIdentifier(t *testing.T) {
	conn, _ := newTestConn(t)

	stmt, err := conn.Prepare("SELECT * FROM t WHERE a = :a")
	require.NoError(t, err)

	err = stmt.BindValue(placeholder.Name("b"), 1)
	require.ErrorIs(t, err, ErrBinding)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, "b", bindErr.Key)
	assert.Contains(t, err.Error(), `"b"`)
	assert.Contains(t, err.Error(), "SELECT * FROM t WHERE a = :a")

	err = stmt.BindParam(placeholder.Pos(1), new(int))
	assert.ErrorIs(t, err, ErrBinding)
}

func TestStatement_CountCheckedBeforeBackend(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	stmt, err := conn.Prepare("SELECT * FROM t WHERE a = ? AND b = ?")
	require.NoError(t, err)
	require.NoError(t, stmt.BindValue(placeholder.Pos(1), 1))

	err = stmt.Execute(ctx)
	require.ErrorIs(t, err, ErrBinding)

	var countErr *ParameterCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 1, countErr.Bound)
	assert.Equal(t, 2, countErr.Expected)
	assert.Contains(t, err.Error(), "(1)")
	assert.Contains(t, err.Error(), "(2)")

	assert.Empty(t, fake.Calls("prepare", "execute"), "backend must not be reached")
}

func TestStatement_BindParamReadsAtExecute(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	stmt, err := conn.Prepare("INSERT INTO t VALUES (:v)")
	require.NoError(t, err)

	v := 1
	require.NoError(t, stmt.BindParam(placeholder.Name("v"), &v))
	v = 2
	require.NoError(t, stmt.Execute(ctx))
	v = 3
	require.NoError(t, stmt.Execute(ctx))

	calls := fake.Calls("execute")
	require.Len(t, calls, 2)
	assert.Equal(t, []any{2}, calls[0].Args)
	assert.Equal(t, []any{3}, calls[1].Args)

	err = stmt.BindParam(placeholder.Name("v"), v)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

type cents int64

func (c cents) Value() (sqldriver.Value, error) { return float64(c) / 100, nil }

type badValuer struct{}

func (badValuer) Value() (sqldriver.Value, error) { return nil, errors.New("boom") }

func TestStatement_Valuer(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	stmt, err := conn.Prepare("INSERT INTO t VALUES (?)")
	require.NoError(t, err)
	require.NoError(t, stmt.Execute(ctx, cents(250)))
	assert.Equal(t, []any{2.5}, fake.Calls("execute")[0].Args)

	err = stmt.Execute(ctx, badValuer{})
	require.ErrorIs(t, err, ErrBinding)
	assert.Contains(t, err.Error(), "boom")
}

func TestStatement_ReprepareAndFree(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	stmt, err := conn.Prepare("SELECT 1")
	require.NoError(t, err)
	require.NoError(t, stmt.Execute(ctx))
	require.NoError(t, stmt.Execute(ctx))
	require.NoError(t, stmt.CloseCursor())

	var ops []string
	for _, c := range fake.Calls("prepare", "execute", "free") {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{"prepare", "execute", "free", "prepare", "execute", "free"}, ops)
}

func TestStatement_FetchModes(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.On("SELECT id, name FROM t", backendtest.Result{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{"1", "a"}, {"2", ""}},
	})

	t.Run("assoc", func(t *testing.T) {
		stmt, err := conn.Query(ctx, "SELECT id, name FROM t")
		require.NoError(t, err)
		rows, err := stmt.FetchAll(ctx, FetchAssoc)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, map[string]any{"id": "1", "name": "a"}, rows[0].Assoc())
		assert.Equal(t, map[string]any{"id": "2", "name": nil}, rows[1].Assoc())
		assert.Nil(t, rows[0].Num())
	})

	t.Run("num", func(t *testing.T) {
		stmt, err := conn.Query(ctx, "SELECT id, name FROM t")
		require.NoError(t, err)
		rows, err := stmt.FetchAll(ctx, FetchNum)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, []any{"2", nil}, rows[1].Num())
		assert.Nil(t, rows[1].Assoc())
	})

	t.Run("both is default", func(t *testing.T) {
		stmt, err := conn.Query(ctx, "SELECT id, name FROM t")
		require.NoError(t, err)
		row, ok, err := stmt.Fetch(ctx, FetchDefault)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, FetchBoth, row.Mode())
		assert.Equal(t, []any{"1", "a"}, row.Num())
		assert.Equal(t, map[string]any{"id": "1", "name": "a"}, row.Assoc())

		row, ok, err = stmt.Fetch(ctx, FetchBoth)
		require.NoError(t, err)
		require.True(t, ok)
		v, found := row.Get("name")
		assert.True(t, found)
		assert.Nil(t, v)
		v, found = row.At(1)
		assert.True(t, found)
		assert.Nil(t, v)

		_, ok, err = stmt.Fetch(ctx, FetchBoth)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unsupported mode", func(t *testing.T) {
		stmt, err := conn.Query(ctx, "SELECT id, name FROM t")
		require.NoError(t, err)
		fetchesBefore := len(fake.Calls())
		_, _, err = stmt.Fetch(ctx, FetchMode(42))
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Len(t, fake.Calls(), fetchesBefore)
	})
}

func TestStatement_SetFetchMode(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.On("SELECT a FROM t", backendtest.Result{Columns: []string{"a"}, Rows: [][]any{{int64(1)}}})

	stmt, err := conn.Prepare("SELECT a FROM t")
	require.NoError(t, err)

	assert.ErrorIs(t, stmt.SetFetchMode(FetchAssoc, "extra"), ErrInvalidArgument)
	assert.ErrorIs(t, stmt.SetFetchMode(FetchMode(9)), ErrInvalidArgument)
	require.NoError(t, stmt.SetFetchMode(FetchNum))

	require.NoError(t, stmt.Execute(ctx))
	row, ok, err := stmt.Fetch(ctx, FetchDefault)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FetchNum, row.Mode())
	assert.Equal(t, []any{int64(1)}, row.Num())
}

func TestStatement_FetchColumn(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.On("SHOW search_path", backendtest.Result{
		Columns: []string{"name", "setting"},
		Rows:    [][]any{{"search_path", `"$user", public`}, {"x", ""}},
	})

	stmt, err := conn.Query(ctx, "SHOW search_path")
	require.NoError(t, err)

	v, ok, err := stmt.FetchColumn(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `"$user", public`, v)

	v, ok, err = stmt.FetchColumn(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, v)

	_, ok, err = stmt.FetchColumn(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	stmt, err = conn.Query(ctx, "SHOW search_path")
	require.NoError(t, err)
	_, _, err = stmt.FetchColumn(ctx, 5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStatement_FetchBeforeExecute(t *testing.T) {
	conn, _ := newTestConn(t)
	stmt, err := conn.Prepare("SELECT 1")
	require.NoError(t, err)

	_, _, err = stmt.Fetch(context.Background(), FetchAssoc)
	assert.ErrorIs(t, err, ErrNotExecuted)
}

func TestStatement_Iteration(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.On("SELECT n FROM t", backendtest.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}, {int64(2)}, {int64(3)}}})

	stmt, err := conn.Prepare("SELECT n FROM t")
	require.NoError(t, err)
	require.NoError(t, stmt.SetFetchMode(FetchAssoc))
	assert.Equal(t, -1, stmt.Key())

	require.NoError(t, stmt.Rewind(ctx), "rewind before iteration executes")
	require.NoError(t, stmt.Rewind(ctx), "rewind is repeatable before iteration")

	var got []any
	var keys []int
	for key, row := range stmt.All(ctx) {
		keys = append(keys, key)
		got = append(got, row.Assoc()["n"])
	}
	require.NoError(t, stmt.Err())
	assert.Equal(t, []int{0, 1, 2}, keys)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, got)
	assert.False(t, stmt.Valid())

	assert.ErrorIs(t, stmt.Rewind(ctx), ErrRewindAfterStart)
	assert.Len(t, fake.Calls("execute"), 1)
}

func TestStatement_NextAutoExecutes(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.On("SELECT 1", backendtest.Result{Columns: []string{"one"}, Rows: [][]any{{int64(1)}}})

	stmt, err := conn.Prepare("SELECT 1")
	require.NoError(t, err)

	require.True(t, stmt.Next(ctx))
	assert.True(t, stmt.Valid())
	assert.Equal(t, 0, stmt.Key())
	assert.Equal(t, []any{int64(1)}, stmt.Current().Num())
	assert.False(t, stmt.Next(ctx))
	assert.NoError(t, stmt.Err())
	assert.Len(t, fake.Calls("execute"), 1)
}

func TestStatement_NextReportsExecuteError(t *testing.T) {
	conn, _ := newTestConn(t)
	stmt, err := conn.Prepare("SELECT ?")
	require.NoError(t, err)

	assert.False(t, stmt.Next(context.Background()))
	assert.ErrorIs(t, stmt.Err(), ErrBinding)
}

func TestStatement_BackendFailure(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.FailExecute("SELECT broken", backend.ErrorInfo{Code: "42V01", Message: "Relation \"broken\" does not exist"})

	stmt, err := conn.Prepare("SELECT broken")
	require.NoError(t, err)

	err = stmt.Execute(ctx)
	require.Error(t, err)

	var backendErr *Error
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "execute", backendErr.Op)
	assert.Equal(t, "42V01", backendErr.Code)
	assert.Equal(t, "42V01", stmt.ErrorCode())
	assert.Equal(t, `Relation "broken" does not exist`, stmt.ErrorInfo().Message)
}

func TestStatement_CountsWithoutExecution(t *testing.T) {
	conn, _ := newTestConn(t)
	stmt, err := conn.Prepare("SELECT 1")
	require.NoError(t, err)

	n, err := stmt.RowCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	c, err := stmt.ColumnCount()
	require.NoError(t, err)
	assert.Zero(t, c)
}
