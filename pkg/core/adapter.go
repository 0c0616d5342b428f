package core

import (
	"maps"
	"strings"
)

// Transport names select the database/sql driver a connection is opened with.
const (
	TransportODBC    = "odbc"
	TransportVertica = "vertica"
	TransportPgx     = "pgx"
	TransportDuckDB  = "duckdb"
)

// ConnectionConfig holds configuration for connecting to a Vertica cluster,
// either a single node or a set of shards.
type ConnectionConfig struct {
	// Type is the adapter type ("vertica").
	Type string `koanf:"type"`

	// Transport selects the database/sql driver: odbc (default), vertica, pgx, duckdb.
	Transport string `koanf:"transport"`

	// DSN, when set, is used verbatim instead of building one from the fields below.
	DSN      string `koanf:"dsn"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	DBName   string `koanf:"dbname"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Persistent reuses one connection pool per DSN.
	Persistent bool `koanf:"persistent"`

	// DriverOptions are appended to ODBC DSNs as key=value pairs.
	// odbc_driver overrides the ODBC driver name.
	DriverOptions map[string]string `koanf:"driver_options"`

	// Global is the template every shard record is merged over.
	Global map[string]any `koanf:"global"`

	// Shards lists per-shard overrides. Each must carry a positive numeric id.
	Shards []map[string]any `koanf:"shards"`

	// DefaultTableOptions apply to tables created by schema updates
	// (e.g. partition).
	DefaultTableOptions map[string]string `koanf:"default_table_options"`

	// Allocation picks the shard for new data: "random" (default) or "hash".
	Allocation string `koanf:"allocation"`
}

// Base returns the top-level connection fields as a parameter record.
func (c ConnectionConfig) Base() ShardParams {
	return ShardParams{
		DSN:           c.DSN,
		Host:          c.Host,
		Port:          c.Port,
		DBName:        c.DBName,
		User:          c.User,
		Password:      c.Password,
		DriverOptions: maps.Clone(c.DriverOptions),
	}
}

// IsSharded reports whether the config declares shards.
func (c ConnectionConfig) IsSharded() bool {
	return len(c.Shards) > 0
}

// ShardParams is the fully merged connection record of one shard.
type ShardParams struct {
	ID            int               `mapstructure:"id" json:"id"`
	DSN           string            `mapstructure:"dsn" json:"dsn,omitempty"`
	Host          string            `mapstructure:"host" json:"host"`
	Port          int               `mapstructure:"port" json:"port"`
	DBName        string            `mapstructure:"dbname" json:"dbname"`
	User          string            `mapstructure:"user" json:"user"`
	Password      string            `mapstructure:"password" json:"-"`
	DriverOptions map[string]string `mapstructure:"driver_options" json:"driver_options,omitempty"`
}

// Column represents a column in a database table.
type Column struct {
	Name          string  `json:"name" yaml:"name"`
	Type          string  `json:"type" yaml:"type"`
	Length        int     `json:"length,omitempty" yaml:"length,omitempty"`
	Precision     int     `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale         int     `json:"scale,omitempty" yaml:"scale,omitempty"`
	Nullable      bool    `json:"nullable" yaml:"nullable,omitempty"`
	Default       *string `json:"default,omitempty" yaml:"default,omitempty"`
	PrimaryKey    bool    `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Autoincrement bool    `json:"autoincrement,omitempty" yaml:"autoincrement,omitempty"`
	Comment       string  `json:"comment,omitempty" yaml:"comment,omitempty"`
	Encoding      string  `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Position      int     `json:"position" yaml:"-"`
}

// BaseType returns the lower-cased type name without size arguments,
// e.g. "numeric(10,2)" becomes "numeric".
func (c Column) BaseType() string {
	t := strings.ToLower(strings.TrimSpace(c.Type))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// TableMetadata holds metadata about a database table.
type TableMetadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}
