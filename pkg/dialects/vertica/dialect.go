package vertica

import (
	"github.com/leapstack-labs/leapvertica/pkg/dialect"
)

func init() {
	dialect.Register(Vertica)
}

// verticaReservedWords contains the Vertica reserved words that need quoting
// when used as identifiers.
var verticaReservedWords = []string{
	"all", "analyse", "analyze", "and", "any", "array", "as", "asc", "binary",
	"both", "case", "cast", "check", "column", "constraint", "correlation",
	"create", "current_database", "current_date", "current_schema",
	"current_time", "current_timestamp", "current_user", "default",
	"deferrable", "desc", "distinct", "else", "encoded", "end", "except",
	"false", "for", "foreign", "from", "grant", "group", "grouped", "having",
	"in", "initially", "intersect", "interval", "intervalym", "into", "join",
	"kssm", "leading", "limit", "localtime", "localtimestamp", "match", "minus",
	"new", "not", "null", "nullsequal", "offset", "old", "on", "only", "or",
	"order", "over", "partition", "patterns", "placing", "primary", "prior",
	"references", "schema", "segmented", "select", "session_user", "sometimes",
	"table", "then", "timeseries", "to", "trailing", "true", "unbounded",
	"uniform", "union", "unique", "unsegmented", "user", "using", "when",
	"where", "window", "with", "within",
}

// Vertica is the Vertica dialect.
var Vertica = dialect.New(Config).
	WithReservedWords(verticaReservedWords...).
	Build()
