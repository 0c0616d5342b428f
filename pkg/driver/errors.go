package driver

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapvertica/pkg/backend"
)

// Sentinel errors.
var (
	// ErrBinding is matched by every BindError and ParameterCountError.
	ErrBinding = errors.New("binding error")
	// ErrInvalidArgument is returned for unsupported fetch modes and
	// setFetchMode arguments, bad column indexes and non-pointer references.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransactionActive is returned by BeginTransaction inside a transaction.
	ErrTransactionActive = errors.New("transaction was already started")
	// ErrNoTransaction is returned by Commit and Rollback outside a transaction.
	ErrNoTransaction = errors.New("transaction was not started")
	// ErrRewindAfterStart is returned by Rewind once iteration has begun.
	ErrRewindAfterStart = errors.New("statement can not be rewound after iteration is started")
	// ErrNotExecuted is returned when rows are fetched before Execute.
	ErrNotExecuted = errors.New("statement has not been executed")
	// ErrClosed is returned by operations on a closed connection.
	ErrClosed = errors.New("connection is closed")
)

// Error is a backend failure wrapped with the backend's error code and message.
type Error struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s failed: [%s] %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, info backend.ErrorInfo, err error) *Error {
	return &Error{Op: op, Code: info.Code, Message: info.Message, Err: err}
}

// ConnectError reports that the backend returned no usable handle. Error
// prints the DSN with its secrets masked.
type ConnectError struct {
	DSN     string
	Code    string
	Message string
	Err     error
}

func (e *ConnectError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("failed to connect to %q: %s", RedactDSN(e.DSN), msg)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// BindError reports a bind identifier that does not appear in the query.
type BindError struct {
	Key   string
	Query string
}

func (e *BindError) Error() string {
	return fmt.Sprintf("parameter identifier %q is not presented in the query %q", e.Key, e.Query)
}

func (e *BindError) Is(target error) bool { return target == ErrBinding }

// ParameterCountError reports that the number of bound slots differs from
// the number of placeholders.
type ParameterCountError struct {
	Bound    int
	Expected int
	Query    string
}

func (e *ParameterCountError) Error() string {
	return fmt.Sprintf("parameter count (%d) does not match prepared placeholder count (%d)", e.Bound, e.Expected)
}

func (e *ParameterCountError) Is(target error) bool { return target == ErrBinding }
