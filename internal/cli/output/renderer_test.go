package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		mode Mode
		want Mode
	}{
		{mode: "", want: ModeMarkdown},
		{mode: ModeAuto, want: ModeMarkdown},
		{mode: ModeText, want: ModeText},
		{mode: ModeJSON, want: ModeJSON},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, tt.mode)
			assert.Equal(t, tt.want, r.EffectiveMode(), "buffers are not terminals")
		})
	}
}

func TestRenderer_Messages(t *testing.T) {
	var out, errOut bytes.Buffer
	r := NewRenderer(&out, &errOut, ModeText)

	r.Header(1, "Shards")
	r.Success("connected")
	r.StatusLine("shard 1", "success", "3ms")
	r.StatusLine("shard 2", "failed", "")
	r.Muted("done")
	r.Warning("slow")
	r.Error("boom")

	assert.Equal(t, "Shards\n✓ connected\n✓ shard 1 3ms\n✗ shard 2\ndone\n", out.String())
	assert.Equal(t, "warning: slow\n✗ boom\n", errOut.String())
}

func TestRenderer_MarkdownHeader(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &out, ModeMarkdown)
	r.Header(2, "Schema")
	assert.Equal(t, "## Schema\n", out.String())
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &out, ModeJSON)
	require.NoError(t, r.JSON(map[string]int{"shard": 2}))
	assert.JSONEq(t, `{"shard": 2}`, out.String())
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "# Title", FormatHeader(0, "Title"))
	assert.Equal(t, "### Title", FormatHeader(3, "Title"))
	assert.Equal(t, "- **Shards**: 3", FormatKeyValue("Shards", "3"))
}
