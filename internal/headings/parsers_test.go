package headings

import "testing"

func TestMarkdownParser_Level(t *testing.T) {
	p := &MarkdownParser{}
	tests := []struct {
		line  string
		level int
		ok    bool
	}{
		{"# Title", 1, true},
		{"### Deep", 3, true},
		{"   ## Indented", 2, true},
		{"    # code block", 0, false},
		{"#hashtag", 0, false},
		{"####### seven", 0, false},
		{"#", 1, true},
		{"plain text", 0, false},
		{"## Windows\r", 2, true},
	}

	for _, tt := range tests {
		level, ok := p.Level(tt.line)
		if level != tt.level || ok != tt.ok {
			t.Errorf("Level(%q) = (%d, %v), want (%d, %v)", tt.line, level, ok, tt.level, tt.ok)
		}
	}
}

func TestOrgParser_Level(t *testing.T) {
	p := &OrgParser{}
	if level, ok := p.Level("*** Task"); !ok || level != 3 {
		t.Errorf("expected level 3, got (%d, %v)", level, ok)
	}
	if _, ok := p.Level("*bold* text"); ok {
		t.Error("emphasis should not be a heading")
	}
	if _, ok := p.Level(" * list item"); ok {
		t.Error("indented star should not be a heading")
	}
}

func TestAsciiDocParser_Level(t *testing.T) {
	p := &AsciiDocParser{}
	if level, ok := p.Level("== Section"); !ok || level != 2 {
		t.Errorf("expected level 2, got (%d, %v)", level, ok)
	}
	if _, ok := p.Level("==== "); !ok {
		t.Error("expected empty title heading to parse")
	}
	if _, ok := p.Level("a == b"); ok {
		t.Error("inline equals should not be a heading")
	}
}

func TestPlaintextParser_Level(t *testing.T) {
	p := &PlaintextParser{}
	if _, ok := p.Level("# Title"); ok {
		t.Error("plaintext has no headings")
	}
}
