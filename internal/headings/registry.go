package headings

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.HeadingParserRegistry = (*Registry)(nil)

// Registry implements HeadingParserRegistry with priority-based selection.
// When multiple parsers match a MIME type, the highest priority one is used.
type Registry struct {
	mu      sync.RWMutex
	parsers []driven.HeadingParser
}

// NewRegistry creates an empty heading parser registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make([]driven.HeadingParser, 0),
	}
}

// Register registers a parser.
func (r *Registry) Register(parser driven.HeadingParser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parsers = append(r.parsers, parser)
}

// Get retrieves the best-matching parser for a MIME type.
// Returns nil if no parser is registered for the type.
func (r *Registry) Get(mimeType string) driven.HeadingParser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best driven.HeadingParser
	for _, p := range r.parsers {
		if !matchesMIMEType(p.SupportedTypes(), mimeType) {
			continue
		}
		if best == nil || p.Priority() > best.Priority() {
			best = p
		}
	}
	return best
}

// List returns all registered MIME types.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typeSet := make(map[string]struct{})
	for _, p := range r.parsers {
		for _, t := range p.SupportedTypes() {
			typeSet[t] = struct{}{}
		}
	}

	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// matchesMIMEType checks if any of the supported types match the given MIME type.
// Supports wildcard matching (e.g., "text/*" matches "text/plain").
func matchesMIMEType(supportedTypes []string, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	// Strip charset and other parameters
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	for _, supported := range supportedTypes {
		supported = strings.ToLower(strings.TrimSpace(supported))

		if supported == mimeType || supported == "*/*" {
			return true
		}

		if strings.HasSuffix(supported, "/*") {
			prefix := supported[:len(supported)-1] // "text/"
			if strings.HasPrefix(mimeType, prefix) {
				return true
			}
		}
	}

	return false
}

var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".org":      "text/org",
	".adoc":     "text/asciidoc",
	".asciidoc": "text/asciidoc",
	".txt":      "text/plain",
}

// MIMETypeForPath guesses a document's MIME type from its file extension.
// Unknown extensions map to text/plain.
func MIMETypeForPath(path string) string {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return "text/plain"
}

// DefaultRegistry creates a registry with the built-in heading syntaxes.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(&PlaintextParser{})
	r.Register(&MarkdownParser{})
	r.Register(&OrgParser{})
	r.Register(&AsciiDocParser{})

	return r
}
