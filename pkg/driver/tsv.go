package driver

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// tsvEscaper backslash-escapes the characters COPY treats specially in a
// tab-delimited file with the default ESCAPE AS '\'.
var tsvEscaper = strings.NewReplacer(`\`, `\\`, "\t", "\\\t", "\n", "\\\n", "\r", "\\\r")

// WriteTSV writes fields as one tab-separated line. Nil is written as an
// empty field, matching the empty-string-as-null convention of fetched rows.
func WriteTSV(w io.Writer, fields []any) (int, error) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = tsvField(f)
	}
	return io.WriteString(w, strings.Join(parts, "\t")+"\n")
}

func tsvField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return tsvEscaper.Replace(x)
	case []byte:
		return tsvEscaper.Replace(string(x))
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999")
	default:
		return tsvEscaper.Replace(fmt.Sprint(x))
	}
}
