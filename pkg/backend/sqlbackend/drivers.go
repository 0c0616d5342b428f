package sqlbackend

// database/sql transports. Each registers itself under the Transport* name.
import (
	_ "github.com/alexbrainman/odbc"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/vertica/vertica-sql-go"
)
