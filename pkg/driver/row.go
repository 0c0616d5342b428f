package driver

import "fmt"

// FetchMode selects the shape of fetched rows.
type FetchMode int

// Fetch modes. FetchDefault resolves to the statement's default mode,
// which starts as FetchBoth.
const (
	FetchDefault FetchMode = iota
	FetchAssoc
	FetchNum
	FetchBoth
)

func (m FetchMode) String() string {
	switch m {
	case FetchDefault:
		return "default"
	case FetchAssoc:
		return "assoc"
	case FetchNum:
		return "num"
	case FetchBoth:
		return "both"
	default:
		return fmt.Sprintf("FetchMode(%d)", int(m))
	}
}

// ParseFetchMode maps a mode name to its FetchMode.
func ParseFetchMode(s string) (FetchMode, error) {
	switch s {
	case "", "default":
		return FetchDefault, nil
	case "assoc":
		return FetchAssoc, nil
	case "num":
		return FetchNum, nil
	case "both":
		return FetchBoth, nil
	}
	return 0, fmt.Errorf("%w: unsupported fetch mode %q", ErrInvalidArgument, s)
}

func (m FetchMode) valid() bool {
	return m == FetchAssoc || m == FetchNum || m == FetchBoth
}

// Row is one fetched row. Which views are populated depends on the mode it
// was fetched with: Assoc for FetchAssoc, Num for FetchNum, both for FetchBoth.
type Row struct {
	mode    FetchMode
	columns []string
	values  []any
}

// Mode returns the mode the row was fetched with.
func (r Row) Mode() FetchMode { return r.mode }

// Assoc returns the row keyed by column name, or nil for FetchNum rows.
// When column names repeat the rightmost value wins.
func (r Row) Assoc() map[string]any {
	if r.mode == FetchNum {
		return nil
	}
	m := make(map[string]any, len(r.columns))
	for i, name := range r.columns {
		m[name] = r.values[i]
	}
	return m
}

// Num returns the values in column order, or nil for FetchAssoc rows.
func (r Row) Num() []any {
	if r.mode == FetchAssoc {
		return nil
	}
	return r.values
}

// Columns returns the column names in order.
func (r Row) Columns() []string { return r.columns }

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	if r.mode == FetchNum {
		return nil, false
	}
	for i := len(r.columns) - 1; i >= 0; i-- {
		if r.columns[i] == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// At returns the value at the 0-based column index.
func (r Row) At(i int) (any, bool) {
	if r.mode == FetchAssoc || i < 0 || i >= len(r.values) {
		return nil, false
	}
	return r.values[i], true
}

// Len is the number of columns.
func (r Row) Len() int { return len(r.values) }
