package driver

import (
	"context"
	"testing"

	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/backend/backendtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_TransactionStateMachine(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	assert.False(t, conn.InTransaction())
	assert.ErrorIs(t, conn.Commit(ctx), ErrNoTransaction)
	assert.ErrorIs(t, conn.Rollback(ctx), ErrNoTransaction)

	require.NoError(t, conn.BeginTransaction(ctx))
	assert.True(t, conn.InTransaction())
	assert.ErrorIs(t, conn.BeginTransaction(ctx), ErrTransactionActive)

	require.NoError(t, conn.Commit(ctx))
	assert.False(t, conn.InTransaction())

	require.NoError(t, conn.BeginTransaction(ctx))
	require.NoError(t, conn.Rollback(ctx))
	assert.False(t, conn.InTransaction())

	var ops []string
	for _, c := range fake.Calls("autocommit:true", "autocommit:false", "commit", "rollback") {
		ops = append(ops, c.Op)
	}
	assert.Equal(t, []string{
		"autocommit:false", "commit", "autocommit:true",
		"autocommit:false", "rollback", "autocommit:true",
	}, ops)
}

func TestConn_CommitFailureKeepsTransaction(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.FailCommit(backend.ErrorInfo{Code: "40001", Message: "serialization failure"})

	require.NoError(t, conn.BeginTransaction(ctx))
	err := conn.Commit(ctx)
	require.Error(t, err)

	var backendErr *Error
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "commit", backendErr.Op)
	assert.Equal(t, "40001", backendErr.Code)
	assert.True(t, conn.InTransaction())

	require.NoError(t, conn.Rollback(ctx))
	assert.False(t, conn.InTransaction())
}

func TestConn_RollbackFailureKeepsTransaction(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.FailRollback(backend.ErrorInfo{Code: "08006", Message: "connection lost"})

	require.NoError(t, conn.BeginTransaction(ctx))
	require.Error(t, conn.Rollback(ctx))
	assert.True(t, conn.InTransaction())
	assert.Equal(t, "08006", conn.ErrorCode())
}

func TestConn_Exec(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.On("DELETE FROM t WHERE id > ?", backendtest.Result{Affected: 4})

	n, err := conn.Exec(ctx, "DELETE FROM t WHERE id > ?", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Len(t, fake.Calls("free"), 1, "cursor is released")
}

func TestConn_FetchAll(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)
	fake.On("SELECT id FROM t WHERE name = ?", backendtest.Result{
		Columns: []string{"id"},
		Rows:    [][]any{{int64(1)}, {int64(2)}},
	})

	rows, err := conn.FetchAll(ctx, "SELECT id FROM t WHERE name = :name", FetchNum, "a")
	require.ErrorIs(t, err, ErrBinding, "positional arg against a named query")
	assert.Nil(t, rows)

	rows, err = conn.FetchAll(ctx, "SELECT id FROM t WHERE name = ?", FetchNum, "a")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{int64(2)}, rows[1].Num())
}

func TestConn_LastInsertID(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	id, err := conn.LastInsertID(ctx)
	require.NoError(t, err)
	assert.Zero(t, id, "no rows means no identity yet")

	fake.On("SELECT LAST_INSERT_ID();", backendtest.Result{
		Columns: []string{"LAST_INSERT_ID"},
		Rows:    [][]any{{"42"}},
	})
	id, err = conn.LastInsertID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestConn_Quote(t *testing.T) {
	conn, _ := newTestConn(t)

	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{42, "42"},
		{int64(-7), "-7"},
		{1.5, "1.5"},
		{true, "true"},
		{"plain", "'plain'"},
		{"O'Reilly", "'O''Reilly'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, conn.Quote(tt.in), "Quote(%v)", tt.in)
	}
}

func TestConn_Close(t *testing.T) {
	ctx := context.Background()
	conn, fake := newTestConn(t)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "second close is a no-op")
	assert.True(t, fake.Handles()[0].Closed())
	assert.Len(t, fake.Calls("close"), 1)

	assert.False(t, conn.InTransaction())
	assert.ErrorIs(t, conn.BeginTransaction(ctx), ErrClosed)
	_, err := conn.Prepare("SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConn_PrepareRejectsMixedPlaceholders(t *testing.T) {
	conn, fake := newTestConn(t)

	_, err := conn.Prepare("SELECT * FROM t WHERE a = ? AND b = :b")
	require.Error(t, err)
	assert.Empty(t, fake.Calls("prepare"))
}

func TestToInt64(t *testing.T) {
	tests := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{int64(5), 5, false},
		{7, 7, false},
		{int32(8), 8, false},
		{float64(9), 9, false},
		{" 10 ", 10, false},
		{[]byte("11"), 11, false},
		{uint64(1 << 63), 0, true},
		{"x", 0, true},
		{struct{}{}, 0, true},
	}
	for _, tt := range tests {
		got, err := ToInt64(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ToInt64(%v)", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
