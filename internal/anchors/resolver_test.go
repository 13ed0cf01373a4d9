package anchors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/headings"
)

var markdown = &headings.MarkdownParser{}

func TestResolve_ExactMatch(t *testing.T) {
	text := "Hello, this is a test document."
	anchor := domain.TextAnchor{AnchorText: "test", StartOffset: 17, EndOffset: 21}

	res, ok := Resolve(anchor, text, markdown)
	require.True(t, ok)
	assert.Equal(t, Resolution{Start: 17, End: 21, Kind: MatchExact}, res)
}

func TestResolve_TextSearchAfterInsertion(t *testing.T) {
	text := "Hello world, this is a test document."
	anchor := domain.TextAnchor{AnchorText: "test", StartOffset: 17, EndOffset: 21}

	res, ok := Resolve(anchor, text, markdown)
	require.True(t, ok)
	assert.Equal(t, MatchTextSearch, res.Kind)
	assert.Equal(t, 23, res.Start)
	assert.Equal(t, 27, res.End)
}

func TestResolve_ExactPathForEverySubstring(t *testing.T) {
	text := "alpha beta gamma"
	for start := 0; start < len(text); start++ {
		for end := start + 1; end <= len(text); end++ {
			anchor := domain.TextAnchor{AnchorText: text[start:end], StartOffset: start, EndOffset: end}
			res, ok := Resolve(anchor, text, nil)
			require.True(t, ok)
			assert.Equal(t, Resolution{Start: start, End: end, Kind: MatchExact}, res, "range [%d,%d)", start, end)
		}
	}
}

func TestResolve_Boundaries(t *testing.T) {
	text := "start middle end"

	res, ok := Resolve(domain.TextAnchor{AnchorText: "start", StartOffset: 0, EndOffset: 5}, text, nil)
	require.True(t, ok)
	assert.Equal(t, MatchExact, res.Kind)

	res, ok = Resolve(domain.TextAnchor{AnchorText: "end", StartOffset: 13, EndOffset: 16}, text, nil)
	require.True(t, ok)
	assert.Equal(t, MatchExact, res.Kind)
	assert.Equal(t, len(text), res.End)
}

func TestResolve_ClosestOccurrence(t *testing.T) {
	text := "foo bar foo baz foo"
	// occurrences at 0, 8, 16

	tests := []struct {
		name string
		hint int
		want int
	}{
		{"near start", 1, 0},
		{"near middle", 9, 8},
		{"near end", 15, 16},
		{"tie goes to earliest", 4, 0},
		{"beyond text", 100, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anchor := domain.TextAnchor{AnchorText: "foo", StartOffset: tt.hint, EndOffset: tt.hint + 3}
			res, ok := Resolve(anchor, text, nil)
			require.True(t, ok)
			assert.Equal(t, tt.want, res.Start)
		})
	}
}

func TestResolve_NonOverlappingOccurrences(t *testing.T) {
	// "aa" occurs non-overlapping at 0 and 2 only; the stale range forces a search
	text := "aaaa"
	anchor := domain.TextAnchor{AnchorText: "aa", StartOffset: 1, EndOffset: 2}

	res, ok := Resolve(anchor, text, nil)
	require.True(t, ok)
	assert.Equal(t, MatchTextSearch, res.Kind)
	assert.Equal(t, 0, res.Start)
}

func TestResolve_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		anchor domain.TextAnchor
		text   string
	}{
		{"empty document", domain.TextAnchor{AnchorText: "x", StartOffset: 0, EndOffset: 1}, ""},
		{"empty anchor text", domain.TextAnchor{StartOffset: 0, EndOffset: 0}, "some text"},
		{"text gone", domain.TextAnchor{AnchorText: "missing", StartOffset: 2, EndOffset: 9}, "nothing here"},
		{"offsets out of range", domain.TextAnchor{AnchorText: "zzz", StartOffset: 50, EndOffset: 53}, "short"},
		{"inverted offsets", domain.TextAnchor{AnchorText: "zz", StartOffset: 3, EndOffset: 1}, "short"},
		{
			"heading missing",
			domain.TextAnchor{AnchorText: "gone", StartOffset: 0, EndOffset: 4, SectionHeading: "## Nope"},
			"# Title\n\nbody\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Resolve(tt.anchor, tt.text, markdown)
			assert.False(t, ok)
			assert.Equal(t, Resolution{}, res)
		})
	}
}

func TestResolve_HeadingFallback(t *testing.T) {
	text := "# Intro\n\nsome intro text\n\n## Usage\n\nrun the\n   tool with care\n\n## Other\n\nrun the tool elsewhere\n"
	anchor := domain.TextAnchor{
		AnchorText:     "run the tool with care",
		StartOffset:    0,
		EndOffset:      22,
		SectionHeading: "## Usage",
	}

	res, ok := Resolve(anchor, text, markdown)
	require.True(t, ok)
	assert.Equal(t, MatchHeadingFallback, res.Kind)

	usage := strings.Index(text, "run the\n")
	assert.Equal(t, usage, res.Start)
	assert.Equal(t, "run the\n   tool with care", text[res.Start:res.End])
}

func TestResolve_HeadingFallbackStaysInSection(t *testing.T) {
	text := "# A\n\n## One\n\nfirst\n\n# B\n\nthe   target\n"
	anchor := domain.TextAnchor{AnchorText: "the target", SectionHeading: "## One"}

	_, ok := Resolve(anchor, text, markdown)
	assert.False(t, ok, "match outside the section must not count")

	anchor.SectionHeading = "# B"
	res, ok := Resolve(anchor, text, markdown)
	require.True(t, ok)
	assert.Equal(t, "the   target", text[res.Start:res.End])
}

func TestResolve_HeadingFallbackWithoutParser(t *testing.T) {
	text := "## Usage\n\nrun the\ntool\n"
	anchor := domain.TextAnchor{AnchorText: "run the tool", SectionHeading: "## Usage"}

	_, ok := Resolve(anchor, text, nil)
	assert.False(t, ok)
}

func TestResolve_DoesNotMutateAnchor(t *testing.T) {
	anchor := domain.TextAnchor{AnchorText: "test", StartOffset: 17, EndOffset: 21, SectionHeading: "# H"}
	before := anchor
	_, _ = Resolve(anchor, "Hello world, this is a test document.", markdown)
	assert.Equal(t, before, anchor)
}

func TestResolution_Apply(t *testing.T) {
	text := "Hello world, this is a test document."
	anchor := domain.TextAnchor{AnchorText: "test", StartOffset: 17, EndOffset: 21, SectionHeading: "# H"}

	res, ok := Resolve(anchor, text, nil)
	require.True(t, ok)
	moved := res.Apply(anchor, text)

	assert.Equal(t, domain.TextAnchor{AnchorText: "test", StartOffset: 23, EndOffset: 27, SectionHeading: "# H"}, moved)
}

func TestExtractSectionHeading(t *testing.T) {
	text := "# Title\n\nintro\n\n## Section\n\nbody text\n"

	heading, ok := ExtractSectionHeading(text, strings.Index(text, "body"), markdown)
	require.True(t, ok)
	assert.Equal(t, "## Section", heading)

	heading, ok = ExtractSectionHeading(text, strings.Index(text, "intro"), markdown)
	require.True(t, ok)
	assert.Equal(t, "# Title", heading)

	_, ok = ExtractSectionHeading("no headings\nhere", 5, markdown)
	assert.False(t, ok)

	_, ok = ExtractSectionHeading(text, 3, nil)
	assert.False(t, ok)

	heading, ok = ExtractSectionHeading(text, 10_000, markdown)
	require.True(t, ok)
	assert.Equal(t, "## Section", heading)
}

func TestResolve_OrgSections(t *testing.T) {
	org := &headings.OrgParser{}
	text := "* Plan\n** Steps\nship   it\n* Later\nship it\n"
	anchor := domain.TextAnchor{AnchorText: "ship it now", SectionHeading: "** Steps"}

	_, ok := Resolve(anchor, text, org)
	assert.False(t, ok)

	anchor.AnchorText = "ship it"
	anchor.StartOffset = 0
	res, ok := Resolve(anchor, text, org)
	require.True(t, ok)
	// Literal search wins before the section tier is consulted
	assert.Equal(t, MatchTextSearch, res.Kind)
}
