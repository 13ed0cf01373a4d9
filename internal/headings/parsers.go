package headings

import "strings"

// PlaintextParser recognises no headings. It is the fallback for any type.
type PlaintextParser struct{}

func (p *PlaintextParser) Level(line string) (int, bool) {
	return 0, false
}

func (p *PlaintextParser) SupportedTypes() []string {
	return []string{"text/plain", "*/*"}
}

func (p *PlaintextParser) Priority() int {
	return 1
}

// MarkdownParser handles ATX headings ("# Title" through "###### Title").
type MarkdownParser struct{}

func (p *MarkdownParser) Level(line string) (int, bool) {
	// Up to three spaces of indentation are allowed
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return 0, false
	}
	return markerLevel(trimmed, '#', 6)
}

func (p *MarkdownParser) SupportedTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (p *MarkdownParser) Priority() int {
	return 50
}

// OrgParser handles org-mode outline headings ("* Title", "** Title").
type OrgParser struct{}

func (p *OrgParser) Level(line string) (int, bool) {
	return markerLevel(line, '*', 0)
}

func (p *OrgParser) SupportedTypes() []string {
	return []string{"text/org", "text/x-org"}
}

func (p *OrgParser) Priority() int {
	return 50
}

// AsciiDocParser handles section titles ("= Title" through "====== Title").
type AsciiDocParser struct{}

func (p *AsciiDocParser) Level(line string) (int, bool) {
	return markerLevel(line, '=', 6)
}

func (p *AsciiDocParser) SupportedTypes() []string {
	return []string{"text/asciidoc", "text/x-asciidoc"}
}

func (p *AsciiDocParser) Priority() int {
	return 50
}

// markerLevel counts leading marker bytes that are followed by a space, a
// tab or the end of the line. max of 0 means unbounded.
func markerLevel(line string, marker byte, max int) (int, bool) {
	line = strings.TrimRight(line, "\r")
	n := 0
	for n < len(line) && line[n] == marker {
		n++
	}
	if n == 0 || (max > 0 && n > max) {
		return 0, false
	}
	if n < len(line) && line[n] != ' ' && line[n] != '\t' {
		return 0, false
	}
	return n, true
}
