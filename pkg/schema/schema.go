// Package schema models Vertica table layouts, introspects them from the
// catalog and turns the difference between two layouts into DDL.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/leapstack-labs/leapvertica/pkg/dialects/vertica"
	"gopkg.in/yaml.v3"
)

// Schema is an ordered set of tables.
type Schema struct {
	Name   string   `yaml:"name,omitempty"`
	Tables []*Table `yaml:"tables"`
}

// Table is one table of a schema.
type Table struct {
	Name       string        `yaml:"name"`
	Columns    []core.Column `yaml:"columns"`
	PrimaryKey []string      `yaml:"primary_key,omitempty"`
	Partition  string        `yaml:"partition,omitempty"`
}

// Table returns the table with the given name. Names compare case-insensitively.
func (s *Schema) Table(name string) *Table {
	if s == nil {
		return nil
	}
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// Column returns the named column. Names compare case-insensitively.
func (t *Table) Column(name string) (core.Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return core.Column{}, false
}

// options returns the CREATE TABLE options of t, falling back to defaults
// for anything the table leaves unset.
func (t *Table) options(defaults vertica.TableOptions) vertica.TableOptions {
	opts := vertica.TableOptions{PrimaryKey: t.PrimaryKey, Partition: t.Partition}
	if len(opts.PrimaryKey) == 0 {
		hasKey := slices.ContainsFunc(t.Columns, func(c core.Column) bool { return c.PrimaryKey })
		if !hasKey {
			opts.PrimaryKey = defaults.PrimaryKey
		}
	}
	if opts.Partition == "" {
		opts.Partition = defaults.Partition
	}
	return opts
}

// TableOptions reads the defaultTableOptions connection setting. Recognised
// keys are "partition" and "primary_key" (comma separated).
func TableOptions(m map[string]string) vertica.TableOptions {
	var opts vertica.TableOptions
	for k, v := range m {
		switch strings.ToLower(k) {
		case "partition":
			opts.Partition = strings.TrimSpace(v)
		case "primary_key", "primarykey":
			for _, col := range strings.Split(v, ",") {
				if col = strings.TrimSpace(col); col != "" {
					opts.PrimaryKey = append(opts.PrimaryKey, col)
				}
			}
		}
	}
	return opts
}

// ErrInvalidSchema is matched by every validation failure of a schema file.
var ErrInvalidSchema = errors.New("invalid schema")

// ParseError reports a schema document that could not be decoded.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse schema %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadYAML decodes a schema document. Unknown fields are rejected.
func LoadYAML(r io.Reader) (*Schema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var s Schema
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return &Schema{}, nil
		}
		return nil, &ParseError{Source: "document", Err: err}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads a schema document from path.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	s, err := LoadYAML(bytes.NewReader(data))
	var perr *ParseError
	if errors.As(err, &perr) {
		perr.Source = path
	}
	return s, err
}

// Validate checks that tables and columns are named and unique.
func (s *Schema) Validate() error {
	tables := make(map[string]bool, len(s.Tables))
	for i, t := range s.Tables {
		if t == nil || t.Name == "" {
			return fmt.Errorf("%w: table #%d has no name", ErrInvalidSchema, i+1)
		}
		key := strings.ToLower(t.Name)
		if tables[key] {
			return fmt.Errorf("%w: table %s is duplicated", ErrInvalidSchema, t.Name)
		}
		tables[key] = true

		if len(t.Columns) == 0 {
			return fmt.Errorf("%w: table %s has no columns", ErrInvalidSchema, t.Name)
		}
		cols := make(map[string]bool, len(t.Columns))
		for j, c := range t.Columns {
			if c.Name == "" || c.Type == "" {
				return fmt.Errorf("%w: column #%d of table %s needs a name and a type", ErrInvalidSchema, j+1, t.Name)
			}
			ckey := strings.ToLower(c.Name)
			if cols[ckey] {
				return fmt.Errorf("%w: column %s.%s is duplicated", ErrInvalidSchema, t.Name, c.Name)
			}
			cols[ckey] = true
		}
		for _, k := range t.PrimaryKey {
			if !cols[strings.ToLower(k)] {
				return fmt.Errorf("%w: primary key column %s.%s does not exist", ErrInvalidSchema, t.Name, k)
			}
		}
	}
	return nil
}

// Write encodes s as YAML.
func (s *Schema) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return enc.Close()
}
