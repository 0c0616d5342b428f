// Package vertica provides the Vertica SQL dialect definition together with
// the catalog and DDL statement text the schema tooling runs.
// This package is pure Go with no database driver dependencies.
package vertica

import "github.com/leapstack-labs/leapvertica/pkg/core"

// Name is the registered dialect name.
const Name = "vertica"

// VarcharMaxLength is the longest VARCHAR Vertica accepts.
const VarcharMaxLength = 65000

// Config is the Vertica dialect configuration.
var Config = &core.DialectConfig{
	Name:             Name,
	DefaultSchema:    "public",
	Placeholder:      core.PlaceholderQuestion,
	VarcharMaxLength: VarcharMaxLength,
	Identifiers: core.IdentifierConfig{
		Quote:         `"`,
		QuoteEnd:      `"`,
		Escape:        `""`,
		Normalization: core.NormCaseInsensitive, // Vertica compares identifiers case-insensitively
	},
	Keywords: []string{
		"SELECT", "FROM", "WHERE", "GROUP", "BY", "HAVING", "ORDER", "LIMIT", "OFFSET",
		"INSERT", "INTO", "VALUES", "UPDATE", "SET", "DELETE", "MERGE", "COPY", "LOCAL",
		"CREATE", "ALTER", "DROP", "TABLE", "SCHEMA", "PROJECTION", "SEGMENTED", "UNSEGMENTED",
		"PARTITION", "ENCODING", "CASCADE", "TIMESERIES", "OVER", "SHOW", "PROFILE",
		"EXPLAIN", "COMMIT", "ROLLBACK", "CONNECT", "DISCONNECT", "SEARCH_PATH",
	},
	DataTypes: []string{
		"INTEGER", "INT", "BIGINT", "SMALLINT", "TINYINT", "INT8", "AUTO_INCREMENT", "IDENTITY",
		"BOOLEAN", "CHAR", "VARCHAR", "LONG VARCHAR", "BINARY", "VARBINARY", "LONG VARBINARY",
		"DATE", "TIME", "TIMETZ", "TIMESTAMP", "TIMESTAMPTZ", "INTERVAL",
		"FLOAT", "FLOAT8", "DOUBLE PRECISION", "REAL", "NUMERIC", "DECIMAL", "NUMBER", "MONEY",
		"UUID",
	},
}
