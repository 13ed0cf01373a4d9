package driven

// HeadingParser recognises heading lines of one document syntax.
type HeadingParser interface {
	// Level returns the nesting level of line if it is a heading (1 is the
	// outermost level).
	Level(line string) (int, bool)

	// SupportedTypes returns the MIME types this parser handles.
	// Supports wildcards like "text/*".
	SupportedTypes() []string

	// Priority returns the parser priority (higher = preferred)
	Priority() int
}

// HeadingParserRegistry selects a HeadingParser by MIME type.
type HeadingParserRegistry interface {
	// Register adds a parser
	Register(parser HeadingParser)

	// Get returns the best parser for a MIME type, or nil
	Get(mimeType string) HeadingParser

	// List returns all registered MIME types
	List() []string
}
