// Package anchors maps semantic text anchors to current document offsets and
// keeps a range index of anchored threads across edits.
package anchors

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// MatchKind tags which resolution tier placed an anchor
type MatchKind string

const (
	MatchExact           MatchKind = "exact"
	MatchTextSearch      MatchKind = "text-search"
	MatchHeadingFallback MatchKind = "heading-fallback"
)

// Resolution is a resolved byte range [Start, End) in the document text.
type Resolution struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Kind  MatchKind `json:"kind"`
}

// Apply returns anchor moved to the resolved range, with AnchorText taken
// from text.
func (r Resolution) Apply(anchor domain.TextAnchor, text string) domain.TextAnchor {
	anchor.StartOffset = r.Start
	anchor.EndOffset = r.End
	anchor.AnchorText = text[r.Start:r.End]
	return anchor
}

// Resolve places anchor in text. Tiers are tried in order and the first
// success wins: exact offsets, closest literal occurrence, then a
// whitespace-insensitive search inside the recorded section. parser may be
// nil, which disables the section tier. The boolean is false when no tier
// matched.
func Resolve(anchor domain.TextAnchor, text string, parser driven.HeadingParser) (Resolution, bool) {
	if text == "" || anchor.AnchorText == "" {
		return Resolution{}, false
	}

	if matchesExact(anchor, text) {
		return Resolution{Start: anchor.StartOffset, End: anchor.EndOffset, Kind: MatchExact}, true
	}

	if start, ok := closestOccurrence(text, anchor.AnchorText, anchor.StartOffset); ok {
		return Resolution{Start: start, End: start + len(anchor.AnchorText), Kind: MatchTextSearch}, true
	}

	if anchor.SectionHeading != "" && parser != nil {
		from, to, ok := sectionSpan(text, anchor.SectionHeading, parser)
		if !ok {
			return Resolution{}, false
		}
		if start, end, ok := fuzzyIndex(text[from:to], anchor.AnchorText); ok {
			return Resolution{Start: from + start, End: from + end, Kind: MatchHeadingFallback}, true
		}
	}

	return Resolution{}, false
}

func matchesExact(anchor domain.TextAnchor, text string) bool {
	if anchor.StartOffset < 0 || anchor.EndOffset > len(text) || anchor.StartOffset > anchor.EndOffset {
		return false
	}
	return text[anchor.StartOffset:anchor.EndOffset] == anchor.AnchorText
}

// closestOccurrence scans non-overlapping occurrences of needle and returns
// the start nearest to hint. Ties go to the earlier occurrence.
func closestOccurrence(text, needle string, hint int) (int, bool) {
	best, bestDist := -1, 0
	for pos := 0; pos <= len(text)-len(needle); {
		idx := strings.Index(text[pos:], needle)
		if idx < 0 {
			break
		}
		occ := pos + idx
		dist := abs(occ - hint)
		if best < 0 || dist < bestDist {
			best, bestDist = occ, dist
		} else if occ > hint {
			// Occurrences only move further away from here on
			break
		}
		pos = occ + len(needle)
	}
	return best, best >= 0
}

// sectionSpan finds the first heading line equal to heading and returns the
// byte range from that line to the next heading of equal or higher level.
func sectionSpan(text, heading string, parser driven.HeadingParser) (int, int, bool) {
	heading = strings.TrimSpace(heading)
	from, level := -1, 0
	for _, ln := range splitLines(text) {
		lvl, ok := parser.Level(text[ln.start:ln.end])
		if !ok {
			continue
		}
		if from < 0 {
			if strings.TrimSpace(text[ln.start:ln.end]) == heading {
				from, level = ln.start, lvl
			}
			continue
		}
		if lvl <= level {
			return from, ln.start, true
		}
	}
	if from < 0 {
		return 0, 0, false
	}
	return from, len(text), true
}

// ExtractSectionHeading returns the nearest heading line at or before offset,
// trimmed of surrounding whitespace.
func ExtractSectionHeading(text string, offset int, parser driven.HeadingParser) (string, bool) {
	if parser == nil || text == "" {
		return "", false
	}
	if offset > len(text) {
		offset = len(text)
	}
	heading, found := "", false
	for _, ln := range splitLines(text) {
		if ln.start > offset {
			break
		}
		line := text[ln.start:ln.end]
		if _, ok := parser.Level(line); ok {
			heading, found = strings.TrimSpace(line), true
		}
	}
	return heading, found
}

type lineSpan struct {
	start, end int
}

// splitLines returns the byte span of each line, excluding the newline.
func splitLines(text string) []lineSpan {
	var lines []lineSpan
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, lineSpan{start, i})
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, lineSpan{start, len(text)})
	}
	return lines
}

// fuzzyIndex finds needle in haystack treating every whitespace run as a
// single space, and returns the matched byte range in haystack.
func fuzzyIndex(haystack, needle string) (int, int, bool) {
	want := strings.Join(strings.Fields(needle), " ")
	if want == "" {
		return 0, 0, false
	}

	var b strings.Builder
	offsets := make([]int, 0, len(haystack))
	inSpace := false
	for i := 0; i < len(haystack); {
		r, size := utf8.DecodeRuneInString(haystack[i:])
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte(' ')
				offsets = append(offsets, i)
				inSpace = true
			}
			i += size
			continue
		}
		inSpace = false
		for j := 0; j < size; j++ {
			b.WriteByte(haystack[i+j])
			offsets = append(offsets, i+j)
		}
		i += size
	}

	idx := strings.Index(b.String(), want)
	if idx < 0 {
		return 0, 0, false
	}
	return offsets[idx], offsets[idx+len(want)-1] + 1, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
