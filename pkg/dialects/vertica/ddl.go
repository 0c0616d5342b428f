package vertica

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapvertica/pkg/core"
)

// Default sizes used when a column declares none.
const (
	DefaultStringLength = 255
	DefaultPrecision    = 10
)

// TableOptions are the table-level clauses of CREATE TABLE.
type TableOptions struct {
	PrimaryKey []string
	Partition  string
}

// ColumnTypeSQL returns the Vertica type declaration of a column.
func ColumnTypeSQL(c core.Column) string {
	switch c.BaseType() {
	case "integer", "int", "bigint", "smallint", "tinyint", "int8":
		if c.Autoincrement {
			return "AUTO_INCREMENT"
		}
		return "INTEGER"
	case "string", "varchar", "character varying":
		return "VARCHAR(" + strconv.Itoa(lengthOr(c.Length, DefaultStringLength)) + ")"
	case "char", "character":
		return "CHAR(" + strconv.Itoa(lengthOr(c.Length, DefaultStringLength)) + ")"
	case "text", "long varchar":
		return "LONG VARCHAR(" + strconv.Itoa(lengthOr(c.Length, VarcharMaxLength)) + ")"
	case "decimal", "numeric", "number", "money":
		return "NUMERIC(" + strconv.Itoa(lengthOr(c.Precision, DefaultPrecision)) + "," + strconv.Itoa(c.Scale) + ")"
	case "float", "float8", "double", "double precision", "real":
		return "FLOAT"
	case "boolean", "bool":
		return "BOOLEAN"
	case "date":
		return "DATE"
	case "datetime", "timestamp", "smalldatetime":
		return "TIMESTAMP"
	case "datetimetz", "timestamptz":
		return "TIMESTAMPTZ"
	case "time", "timetz":
		return "TIME"
	case "binary", "varbinary", "blob", "bytea", "raw":
		return "VARBINARY(" + strconv.Itoa(lengthOr(c.Length, DefaultStringLength)) + ")"
	case "guid", "uuid":
		return "UUID"
	default:
		return strings.ToUpper(strings.TrimSpace(c.Type))
	}
}

func lengthOr(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}

// DefaultSQL returns the " DEFAULT ..." clause of a column, or "".
func DefaultSQL(c core.Column) string {
	if c.Default == nil {
		return ""
	}
	v := *c.Default
	switch {
	case isNumericType(c.BaseType()), c.BaseType() == "boolean", c.BaseType() == "bool":
		return " DEFAULT " + v
	case strings.Contains(v, "("), strings.EqualFold(v, "CURRENT_TIMESTAMP"), strings.EqualFold(v, "CURRENT_DATE"):
		return " DEFAULT " + v
	default:
		return " DEFAULT " + Vertica.QuoteString(v)
	}
}

func isNumericType(t string) bool {
	switch t {
	case "integer", "int", "bigint", "smallint", "tinyint", "int8",
		"decimal", "numeric", "number", "money",
		"float", "float8", "double", "double precision", "real":
		return true
	}
	return false
}

// ColumnDeclarationSQL returns "name TYPE [DEFAULT ..] [NOT NULL] [ENCODING ..]".
func ColumnDeclarationSQL(c core.Column) string {
	var sb strings.Builder
	sb.WriteString(Vertica.QuoteIdentifierIfNeeded(c.Name))
	sb.WriteByte(' ')
	sb.WriteString(ColumnTypeSQL(c))
	if !c.Autoincrement {
		sb.WriteString(DefaultSQL(c))
	}
	if !c.Nullable {
		sb.WriteString(" NOT NULL")
	}
	if c.Encoding != "" && !strings.EqualFold(c.Encoding, "AUTO") {
		sb.WriteString(" ENCODING ")
		sb.WriteString(strings.ToUpper(c.Encoding))
	}
	return sb.String()
}

// CommentOnColumnSQL sets a column comment.
func CommentOnColumnSQL(table, column, comment string) string {
	return "COMMENT ON COLUMN " + Vertica.QuoteQualified(table) + "." + Vertica.QuoteIdentifierIfNeeded(column) +
		" IS " + Vertica.QuoteString(comment)
}

// CreateTableSQL returns the statements that create a table and its comments.
func CreateTableSQL(table string, columns []core.Column, opts TableOptions) []string {
	decls := make([]string, 0, len(columns))
	for _, c := range columns {
		decls = append(decls, ColumnDeclarationSQL(c))
	}
	fields := strings.Join(decls, ", ")

	pk := opts.PrimaryKey
	if len(pk) == 0 {
		for _, c := range columns {
			if c.PrimaryKey {
				pk = append(pk, c.Name)
			}
		}
	}
	if len(pk) > 0 {
		keys := make([]string, 0, len(pk))
		seen := make(map[string]bool, len(pk))
		for _, k := range pk {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, Vertica.QuoteIdentifierIfNeeded(k))
			}
		}
		fields += ", PRIMARY KEY(" + strings.Join(keys, ", ") + ")"
	}

	query := "CREATE TABLE " + Vertica.QuoteQualified(table) + " (" + fields + ")"
	if opts.Partition != "" {
		query += " PARTITION BY " + opts.Partition
	}

	sql := []string{query}
	for _, c := range columns {
		if c.Comment != "" {
			sql = append(sql, CommentOnColumnSQL(table, c.Name, c.Comment))
		}
	}
	return sql
}

// DropTableSQL drops a table and its projections.
func DropTableSQL(table string) string {
	return "DROP TABLE " + Vertica.QuoteQualified(table) + " CASCADE"
}

// AddColumnSQL adds a column to an existing table.
func AddColumnSQL(table string, c core.Column) []string {
	sql := []string{"ALTER TABLE " + Vertica.QuoteQualified(table) + " ADD " + ColumnDeclarationSQL(c)}
	if c.Comment != "" {
		sql = append(sql, CommentOnColumnSQL(table, c.Name, c.Comment))
	}
	return sql
}

// DropColumnSQL removes a column. The ancient history mark is advanced
// first so Vertica allows dropping columns with history.
func DropColumnSQL(table string, c core.Column) []string {
	t := Vertica.QuoteQualified(table)
	col := Vertica.QuoteIdentifierIfNeeded(c.Name)
	var sql []string
	if c.Default != nil {
		sql = append(sql, "ALTER TABLE "+t+" ALTER COLUMN "+col+" DROP DEFAULT")
	}
	return append(sql, MakeAHMNowSQL, "ALTER TABLE "+t+" DROP COLUMN "+col+" CASCADE")
}

// ChangeColumnSQL alters column from into column to.
func ChangeColumnSQL(table string, from, to core.Column) []string {
	t := "ALTER TABLE " + Vertica.QuoteQualified(table) + " ALTER COLUMN " + Vertica.QuoteIdentifierIfNeeded(from.Name)
	var sql []string

	if !equalDefault(from.Default, to.Default) && !to.Autoincrement {
		if to.Default == nil {
			sql = append(sql, t+" DROP DEFAULT")
		} else {
			sql = append(sql, t+" SET"+DefaultSQL(to))
		}
	}
	// identity cannot be changed by ALTER COLUMN; compare plain types
	plainFrom, plainTo := from, to
	plainFrom.Autoincrement, plainTo.Autoincrement = false, false
	if ColumnTypeSQL(plainFrom) != ColumnTypeSQL(plainTo) {
		sql = append(sql, t+" SET DATA TYPE "+ColumnTypeSQL(plainTo))
	}
	if from.Nullable != to.Nullable {
		if to.Nullable {
			sql = append(sql, t+" DROP NOT NULL")
		} else {
			sql = append(sql, t+" SET NOT NULL")
		}
	}
	if from.Comment != to.Comment {
		sql = append(sql, CommentOnColumnSQL(table, to.Name, to.Comment))
	}
	return sql
}

func equalDefault(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
