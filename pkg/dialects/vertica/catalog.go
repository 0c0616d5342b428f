package vertica

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapvertica/pkg/core"
)

// Catalog and session statements.
const (
	ShowSearchPathSQL = "SHOW search_path"
	LastInsertIDSQL   = "SELECT LAST_INSERT_ID();"
	ListNamespacesSQL = "SELECT table_schema AS name FROM v_catalog.tables GROUP BY name;"
	ListTablesSQL     = "SELECT table_schema AS schema, table_name AS name FROM v_catalog.tables"
	MakeAHMNowSQL     = "SELECT MAKE_AHM_NOW();"

	// UserToken is the search path entry Vertica expands to the session user.
	UserToken = `"$user"`
)

// ListTablesInSchemaSQL lists the tables of one schema.
func ListTablesInSchemaSQL(schema string) string {
	return ListTablesSQL + " WHERE table_schema = " + Vertica.QuoteString(schema) + " ORDER BY table_name"
}

// ListTableColumnsSQL returns the column introspection query for one table.
// Only super projections contribute an encoding; tables without projections
// report AUTO.
func ListTableColumnsSQL(schema, table string) string {
	return `SELECT
    col.column_name,
    col.data_type,
    col.character_maximum_length,
    col.numeric_precision,
    col.numeric_scale,
    col.is_nullable,
    col.column_default,
    col.is_identity,
    con.constraint_type,
    com.comment,
    IFNULL(pc.encoding_type, 'AUTO') AS encoding
FROM v_catalog.tables t
JOIN v_catalog.columns col ON t.table_id = col.table_id
LEFT JOIN v_catalog.constraint_columns con ON con.table_id = col.table_id AND con.column_name = col.column_name AND constraint_type = 'p'
LEFT JOIN v_catalog.comments com ON com.object_type = 'TABLE' AND com.object_name = col.table_name
LEFT JOIN v_catalog.projections p ON p.anchor_table_id = t.table_id
LEFT JOIN v_catalog.projection_columns pc ON p.projection_id = pc.projection_id AND pc.table_column_id = col.column_id
WHERE t.table_schema = ` + Vertica.QuoteString(schema) + ` AND t.table_name = ` + Vertica.QuoteString(table) + `
AND (p.is_super_projection = true OR p.is_super_projection IS NULL)
ORDER BY col.ordinal_position`
}

// SetSearchPathSQL sets the session search path.
func SetSearchPathSQL(paths ...string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = Vertica.QuoteIdentifierIfNeeded(p)
	}
	return "SET search_path TO " + strings.Join(quoted, ", ")
}

// ParseSearchPath splits the value reported by SHOW search_path, replacing
// the "$user" entry with user when it is non-empty.
func ParseSearchPath(value, user string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if user != "" {
			p = strings.ReplaceAll(p, UserToken, user)
		}
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnectToSQL returns the statement that links the current session to
// another database so it can be queried from the current one.
func ConnectToSQL(p core.ShardParams) string {
	return fmt.Sprintf("CONNECT TO VERTICA %s USER %s PASSWORD %s ON %s, %d;",
		p.DBName, p.User, Vertica.QuoteString(p.Password), Vertica.QuoteString(p.Host), p.Port)
}

// CopyOptions controls a COPY ... FROM LOCAL load.
type CopyOptions struct {
	Delimiter  string
	Enclosure  string
	Null       string
	SkipHeader bool
	Direct     bool
}

// CopyFromLocalSQL loads a client-side file into table.
func CopyFromLocalSQL(table, path string, opts CopyOptions) string {
	var sb strings.Builder
	sb.WriteString("COPY ")
	sb.WriteString(Vertica.QuoteQualified(table))
	sb.WriteString(" FROM LOCAL ")
	sb.WriteString(Vertica.QuoteString(path))
	if opts.Delimiter != "" {
		sb.WriteString(" DELIMITER ")
		sb.WriteString(escapeLiteral(opts.Delimiter))
	}
	if opts.Enclosure != "" {
		sb.WriteString(" ENCLOSED BY ")
		sb.WriteString(escapeLiteral(opts.Enclosure))
	}
	sb.WriteString(" NULL ")
	sb.WriteString(Vertica.QuoteString(opts.Null))
	if opts.SkipHeader {
		sb.WriteString(" SKIP 1")
	}
	if opts.Direct {
		sb.WriteString(" DIRECT")
	}
	sb.WriteString(" ABORT ON ERROR")
	return sb.String()
}

// escapeLiteral writes control characters as an E'' literal.
func escapeLiteral(s string) string {
	if s == "\t" {
		return `E'\t'`
	}
	if strconv.IsPrint([]rune(s)[0]) {
		return Vertica.QuoteString(s)
	}
	return "E'" + strings.Trim(strconv.Quote(s), `"`) + "'"
}

// CountRowsSQL counts the rows of a table.
func CountRowsSQL(schema, table string) string {
	return "SELECT COUNT(*) FROM " + Vertica.QuoteIdentifierIfNeeded(schema) + "." + Vertica.QuoteIdentifierIfNeeded(table)
}

// PartitionsAuditSQL reports row counts and compressed size per partition.
const PartitionsAuditSQL = `SELECT
  partition_name AS partition_name,
  table_name AS table_name,
  (SUM(rows_count) - SUM(deleted_rows_count)) AS rows_count,
  SUM(compressed_size_bytes) AS compressed_size_bytes
FROM
  (
    SELECT
      partition_key AS partition_name,
      anchor_table_name AS table_name,
      MAX(ros_row_count) AS rows_count,
      MAX(ros_size_bytes) AS compressed_size_bytes,
      SUM(deleted_row_count) AS deleted_rows_count
    FROM partitions
    FULL JOIN projections ON partitions.projection_id = projections.projection_id
    WHERE partition_key IS NOT NULL
    GROUP BY partition_key, anchor_table_name, ros_id, partitions.projection_id
  ) AS summary_data
WHERE partition_name IS NOT NULL
GROUP BY partition_name, table_name`

// CompressionRatioSQL reports the ratio of raw licensed size to stored size.
const CompressionRatioSQL = `SELECT
  database_size_bytes/(SELECT SUM(used_bytes) FROM projection_storage) AS compression_ratio
FROM
  license_audits
WHERE
  audited_data = 'Total'
ORDER BY audit_start_timestamp DESC
LIMIT 1`
