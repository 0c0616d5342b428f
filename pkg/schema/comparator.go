package schema

import (
	"strings"

	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
)

// ColumnChange is a column present on both sides with differing definitions.
type ColumnChange struct {
	From core.Column
	To   core.Column
}

// TableDiff holds the column changes of one table present on both sides.
type TableDiff struct {
	Name    string
	Added   []core.Column
	Removed []core.Column
	Changed []ColumnChange
}

// IsEmpty reports whether the table needs no change.
func (d TableDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff is the difference between a live schema and a target schema.
type Diff struct {
	Created []*Table
	Dropped []*Table
	Altered []TableDiff

	// Defaults are applied to created tables that set no options of their own.
	Defaults vertica.TableOptions
}

// IsEmpty reports whether the schemas are equivalent.
func (d *Diff) IsEmpty() bool {
	return len(d.Created) == 0 && len(d.Dropped) == 0 && len(d.Altered) == 0
}

// Compare returns the changes that turn from into to. Tables and columns
// are matched by case-insensitive name; order follows the target for
// created and altered tables and the live schema for dropped ones.
func Compare(from, to *Schema) *Diff {
	d := &Diff{}
	if to != nil {
		for _, target := range to.Tables {
			live := from.Table(target.Name)
			if live == nil {
				d.Created = append(d.Created, target)
				continue
			}
			if td := compareTable(live, target); !td.IsEmpty() {
				d.Altered = append(d.Altered, td)
			}
		}
	}
	if from != nil {
		for _, live := range from.Tables {
			if to.Table(live.Name) == nil {
				d.Dropped = append(d.Dropped, live)
			}
		}
	}
	return d
}

func compareTable(from, to *Table) TableDiff {
	td := TableDiff{Name: to.Name}
	for _, c := range to.Columns {
		live, ok := from.Column(c.Name)
		if !ok {
			td.Added = append(td.Added, c)
			continue
		}
		if len(vertica.ChangeColumnSQL(to.Name, live, c)) > 0 {
			td.Changed = append(td.Changed, ColumnChange{From: live, To: c})
		}
	}
	for _, c := range from.Columns {
		if _, ok := to.Column(c.Name); !ok {
			td.Removed = append(td.Removed, c)
		}
	}
	return td
}

// ToSQL returns every statement of the migration, drops included: created
// tables first, then altered tables, then dropped tables.
func (d *Diff) ToSQL() []string {
	return d.statements(true)
}

// ToSaveSQL returns the migration without statements that drop tables or
// columns, so no data is lost by applying it.
func (d *Diff) ToSaveSQL() []string {
	return d.statements(false)
}

func (d *Diff) statements(drops bool) []string {
	var sql []string
	for _, t := range d.Created {
		sql = append(sql, vertica.CreateTableSQL(t.Name, t.Columns, t.options(d.Defaults))...)
	}
	for _, td := range d.Altered {
		for _, c := range td.Added {
			sql = append(sql, vertica.AddColumnSQL(td.Name, c)...)
		}
		for _, ch := range td.Changed {
			sql = append(sql, vertica.ChangeColumnSQL(td.Name, ch.From, ch.To)...)
		}
		if drops {
			for _, c := range td.Removed {
				sql = append(sql, vertica.DropColumnSQL(td.Name, c)...)
			}
		}
	}
	if drops {
		for _, t := range d.Dropped {
			sql = append(sql, vertica.DropTableSQL(t.Name))
		}
	}
	return sql
}

// String renders the migration as a script.
func (d *Diff) String() string {
	var sb strings.Builder
	for _, stmt := range d.ToSQL() {
		sb.WriteString(strings.TrimSuffix(stmt, ";"))
		sb.WriteString(";\n")
	}
	return sb.String()
}
