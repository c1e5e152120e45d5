// ABOUTME: Tests for citation resolution, label fallbacks, and numbering
// ABOUTME: Covers control-character stripping and first-appearance ordering

package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_LabelFallbacks(t *testing.T) {
	t.Parallel()

	list := []Citation{
		{ChunkID: "text", Text: "  Quarterly\x00 report\x07 "},
		{ChunkID: "source", Text: " \t ", Metadata: &Metadata{Source: "handbook.pdf", Page: 4}},
		{ChunkID: "cite", Text: "\x01\x02", Metadata: &Metadata{Citation: "Doe et al. 2021"}},
		{ChunkID: "bare", KnowledgeSourceID: "ks-1"},
	}

	tests := []struct {
		id    string
		index int
		label string
	}{
		{"text", 1, "Quarterly report"},
		{"source", 2, "handbook.pdf"},
		{"cite", 3, "Doe et al. 2021"},
		{"bare", 4, "Source 4"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			d := Resolve(tt.id, list, tt.index)
			assert.True(t, d.Resolved)
			assert.Equal(t, tt.label, d.Label)
			assert.Equal(t, tt.index, d.Index)
		})
	}
}

func TestResolve_MetadataCopied(t *testing.T) {
	t.Parallel()

	list := []Citation{{ChunkID: "c1", KnowledgeSourceID: "ks", Text: "x",
		Metadata: &Metadata{Source: "s.csv", Page: 2, Row: 9}}}

	d := Resolve("c1", list, 1)
	assert.Equal(t, "ks", d.KnowledgeSourceID)
	assert.Equal(t, "s.csv", d.Source)
	assert.Equal(t, 2, d.Page)
	assert.Equal(t, 9, d.Row)
}

func TestResolve_Unresolved(t *testing.T) {
	t.Parallel()

	d := Resolve("missing", nil, 1)
	assert.False(t, d.Resolved)
	assert.Equal(t, "[1]", d.Marker())
}

func TestStripControl_KeepsNewlinesAndTabs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a\nb\tc", StripControl("a\nb\tc\x1b\x7f"))
}

func TestParseList(t *testing.T) {
	t.Parallel()

	list, err := ParseList([]byte(`[{"chunkId":"c1","knowledgeSourceId":"k","text":"t","metadata":{"source":"s","page":3},"extra":true}]`))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c1", list[0].ChunkID)
	assert.Equal(t, 3, list[0].Metadata.Page)

	empty, err := ParseList(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseList([]byte(`{`))
	assert.Error(t, err)
}

func TestIndex_FirstAppearanceOrder(t *testing.T) {
	t.Parallel()

	var idx Index
	assert.Equal(t, 1, idx.Add("b"))
	assert.Equal(t, 2, idx.Add("a"))
	assert.Equal(t, 1, idx.Add("b"))
	assert.Equal(t, 3, idx.Add("c"))

	assert.Equal(t, []string{"b", "a", "c"}, idx.IDs())
	assert.Equal(t, 2, idx.Number("a"))
	assert.Equal(t, 0, idx.Number("zzz"))
	assert.Equal(t, 3, idx.Len())
}
