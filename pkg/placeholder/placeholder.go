// Package placeholder rewrites SQL parameter markers into the positional
// form understood by ODBC backends.
//
// A query may use positional markers (?) or named markers (:name), never both.
// Named markers are spliced into ? and each distinct name is assigned the
// slot of its first occurrence. Markers inside string literals, quoted
// identifiers, comments and :: casts are left alone.
package placeholder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Style identifies which marker syntax a query uses.
type Style int

// Marker styles.
const (
	StyleNone Style = iota
	StylePositional
	StyleNamed
)

func (s Style) String() string {
	switch s {
	case StylePositional:
		return "positional"
	case StyleNamed:
		return "named"
	default:
		return "none"
	}
}

// ErrMixedParameters is wrapped by the SyntaxError returned for queries that
// use both marker styles.
var ErrMixedParameters = errors.New("positional and named parameters cannot be mixed")

// SyntaxError reports a query that cannot be rewritten.
type SyntaxError struct {
	Query  string
	Offset int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %v", e.Offset, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// Key identifies a bind slot from the caller's side: either a 1-based
// position or a placeholder name.
type Key struct {
	pos  int
	name string
}

// Pos returns the key for the n-th positional marker (1-based).
func Pos(n int) Key { return Key{pos: n} }

// Name returns the key for a named marker. The leading colon is optional.
func Name(s string) Key { return Key{name: strings.TrimPrefix(s, ":")} }

// IsNamed reports whether k refers to a named marker.
func (k Key) IsNamed() bool { return k.name != "" }

func (k Key) String() string {
	if k.name != "" {
		return k.name
	}
	return strconv.Itoa(k.pos)
}

// Query is the canonical form of a parsed statement.
type Query struct {
	// Original is the SQL exactly as supplied.
	Original string
	// SQL is the text sent to the backend, containing only ? markers.
	SQL   string
	Style Style
	// Params maps caller keys to 0-based internal slots.
	Params map[Key]int
	// Markers holds, for each ? in SQL from left to right, the slot that
	// feeds it. Repeated names share a slot.
	Markers []int
}

// Slot returns the internal slot bound to k.
func (q *Query) Slot(k Key) (int, bool) {
	slot, ok := q.Params[k]
	return slot, ok
}

// Count is the number of distinct slots that must be bound before execution.
func (q *Query) Count() int { return len(q.Params) }

// Keys returns the caller keys in slot order.
func (q *Query) Keys() []Key {
	keys := make([]Key, len(q.Params))
	for k, slot := range q.Params {
		keys[slot] = k
	}
	return keys
}

// Parse scans sql for parameter markers and returns its canonical form.
// It is a pure function of its input.
func Parse(sql string) (*Query, error) {
	markers := scan(sql)

	q := &Query{
		Original: sql,
		SQL:      sql,
		Params:   make(map[Key]int),
	}
	if len(markers) == 0 {
		return q, nil
	}

	for _, m := range markers[1:] {
		if m.named() != markers[0].named() {
			return nil, &SyntaxError{Query: sql, Offset: m.start, Err: ErrMixedParameters}
		}
	}

	if !markers[0].named() {
		q.Style = StylePositional
		q.Markers = make([]int, len(markers))
		for i := range markers {
			q.Params[Pos(i+1)] = i
			q.Markers[i] = i
		}
		return q, nil
	}

	q.Style = StyleNamed
	q.Markers = make([]int, 0, len(markers))

	var b strings.Builder
	b.Grow(len(sql))
	last := 0
	for _, m := range markers {
		b.WriteString(sql[last:m.start])
		b.WriteByte('?')
		last = m.end

		key := Name(m.name)
		slot, ok := q.Params[key]
		if !ok {
			slot = len(q.Params)
			q.Params[key] = slot
		}
		q.Markers = append(q.Markers, slot)
	}
	b.WriteString(sql[last:])
	q.SQL = b.String()

	return q, nil
}
