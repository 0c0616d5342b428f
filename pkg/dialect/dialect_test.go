package dialect

import (
	"testing"

	"github.com/leapstack-labs/leapvertica/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywords(t *testing.T) {
	d := NewDialect("test").
		WithKeywords("SELECT", "FROM", "WHERE", "JOIN").
		Build()

	// Keywords are normalized to lowercase and sorted
	assert.Equal(t, []string{"from", "join", "select", "where"}, d.Keywords())
}

func TestDataTypes(t *testing.T) {
	d := NewDialect("test").
		WithDataTypes("BIGINT", "VARCHAR", "BOOLEAN", "DATE").
		Build()

	assert.Equal(t, []string{"BIGINT", "VARCHAR", "BOOLEAN", "DATE"}, d.DataTypes())
}

func TestBuilderChaining(t *testing.T) {
	d := NewDialect("test").
		Identifiers(`"`, `"`, `""`, core.NormCaseInsensitive).
		DefaultSchema("public").
		PlaceholderStyle(core.PlaceholderDollar).
		WithKeywords("SELECT", "FROM").
		WithReservedWords("user", "order").
		WithDataTypes("INTEGER", "VARCHAR").
		Build()

	require.NotNil(t, d)
	assert.Equal(t, "test", d.GetName())
	assert.Equal(t, "public", d.DefaultSchema)
	assert.Equal(t, "$2", d.FormatPlaceholder(2))
	assert.True(t, d.IsReservedWord("USER"))

	cfg := d.Config()
	assert.Equal(t, "test", cfg.Name)
	assert.Equal(t, []string{"from", "select"}, cfg.Keywords)
	assert.Equal(t, []string{"INTEGER", "VARCHAR"}, cfg.DataTypes)
}

func TestNewFromConfig(t *testing.T) {
	d := New(&core.DialectConfig{
		Name:             "cfg",
		DefaultSchema:    "public",
		VarcharMaxLength: 65000,
		Identifiers:      core.IdentifierConfig{Quote: `"`, QuoteEnd: `"`, Escape: `""`},
		Keywords:         []string{"SELECT"},
	}).Build()

	assert.Equal(t, 65000, d.VarcharMaxLength)
	assert.Equal(t, "?", d.FormatPlaceholder(1))
	assert.Equal(t, []string{"select"}, d.Keywords())
}

func TestNormalizationStrategies(t *testing.T) {
	tests := []struct {
		name  string
		norm  core.NormalizationStrategy
		input string
		want  string
	}{
		{"lowercase", core.NormLowercase, "FooBar", "foobar"},
		{"uppercase", core.NormUppercase, "FooBar", "FOOBAR"},
		{"case sensitive", core.NormCaseSensitive, "FooBar", "FooBar"},
		{"case insensitive", core.NormCaseInsensitive, "FooBar", "foobar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDialect("test").
				Identifiers(`"`, `"`, `""`, tt.norm).
				Build()

			assert.Equal(t, tt.want, d.NormalizeName(tt.input))
		})
	}
}

func TestQuoting(t *testing.T) {
	d := NewDialect("test").WithReservedWords("user").DefaultSchema("public").Build()

	assert.Equal(t, `"a""b"`, d.QuoteIdentifier(`a"b`))
	assert.Equal(t, `"user"`, d.QuoteIdentifierIfNeeded("user"))
	assert.Equal(t, "events", d.QuoteIdentifierIfNeeded("events"))
	assert.Equal(t, `s1."user"`, d.QuoteQualified("s1.user"))
	assert.Equal(t, `'it''s'`, d.QuoteString("it's"))

	schema, name := d.SplitQualified("s1.events")
	assert.Equal(t, "s1", schema)
	assert.Equal(t, "events", name)

	schema, name = d.SplitQualified("events")
	assert.Equal(t, "public", schema)
	assert.Equal(t, "events", name)
}

func TestRegistry(t *testing.T) {
	Register(NewDialect("Registry_Test").Build())

	d, ok := Get("registry_test")
	require.True(t, ok)
	assert.Equal(t, "Registry_Test", d.Name)
	assert.Contains(t, List(), "registry_test")
	assert.NotPanics(t, func() { MustGet("REGISTRY_TEST") })
	assert.Panics(t, func() { MustGet("missing") })
}
