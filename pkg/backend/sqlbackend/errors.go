package sqlbackend

import (
	"errors"
	"strconv"

	"github.com/alexbrainman/odbc"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/leapstack-labs/leapvertica/pkg/backend"
)

// errorInfo extracts the SQLSTATE and message from a transport error.
func errorInfo(err error) backend.ErrorInfo {
	if err == nil {
		return backend.ErrorInfo{}
	}

	var odbcErr *odbc.Error
	if errors.As(err, &odbcErr) && len(odbcErr.Diag) > 0 {
		d := odbcErr.Diag[0]
		code := d.State
		if code == "" {
			code = strconv.Itoa(d.NativeError)
		}
		return backend.ErrorInfo{Code: code, Message: d.Message}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return backend.ErrorInfo{Code: pgErr.Code, Message: pgErr.Message}
	}

	return backend.ErrorInfo{Message: err.Error()}
}
