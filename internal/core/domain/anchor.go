package domain

import "fmt"

// TextAnchor describes where a conversation attaches to a document.
// The offsets are the fast path; AnchorText and SectionHeading keep the
// anchor resolvable after the text around it moves.
type TextAnchor struct {
	AnchorText     string `json:"anchor_text"`
	StartOffset    int    `json:"start_offset"`
	EndOffset      int    `json:"end_offset"`
	SectionHeading string `json:"section_heading,omitempty"`
}

// Validate checks the offset invariant start <= end.
func (a TextAnchor) Validate() error {
	if a.StartOffset < 0 || a.EndOffset < a.StartOffset {
		return fmt.Errorf("%w: anchor range [%d,%d)", ErrInvalidInput, a.StartOffset, a.EndOffset)
	}
	return nil
}

// Len returns the width of the anchored range.
func (a TextAnchor) Len() int {
	return a.EndOffset - a.StartOffset
}

// Contains reports whether offset lies inside the anchor range.
// A zero-width anchor contains only its own start offset.
func (a TextAnchor) Contains(offset int) bool {
	if a.StartOffset == a.EndOffset {
		return offset == a.StartOffset
	}
	return offset >= a.StartOffset && offset < a.EndOffset
}

// TextEdit describes a single contiguous document edit: the range
// [From, To) of the old text was replaced by InsertedLength bytes.
type TextEdit struct {
	From           int `json:"from"`
	To             int `json:"to"`
	InsertedLength int `json:"inserted_length"`
}

// Delta returns the change in document length caused by the edit.
func (e TextEdit) Delta() int {
	return e.InsertedLength - (e.To - e.From)
}

// Validate checks the edit describes a well-formed range.
func (e TextEdit) Validate() error {
	if e.From < 0 || e.To < e.From || e.InsertedLength < 0 {
		return fmt.Errorf("%w: edit [%d,%d) +%d", ErrInvalidInput, e.From, e.To, e.InsertedLength)
	}
	return nil
}
