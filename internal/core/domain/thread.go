package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh identifier for threads and messages.
func NewID() string {
	return uuid.NewString()
}

// ThreadStatus represents the lifecycle state of a thread
type ThreadStatus string

const (
	ThreadStatusOpen     ThreadStatus = "open"
	ThreadStatusResolved ThreadStatus = "resolved"
)

// AuthorKind distinguishes people from automated collaborators
type AuthorKind string

const (
	AuthorKindHuman AuthorKind = "human"
	AuthorKindAgent AuthorKind = "agent"
)

// SuggestionStatus represents the decision state of a suggestion
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionRejected SuggestionStatus = "rejected"
)

// Suggestion is a proposed replacement of OriginalText by ReplacementText.
type Suggestion struct {
	OriginalText    string           `json:"original_text"`
	ReplacementText string           `json:"replacement_text"`
	Status          SuggestionStatus `json:"status"`
}

// IsPending reports whether the suggestion can still be decided.
func (s *Suggestion) IsPending() bool {
	return s.Status == "" || s.Status == SuggestionPending
}

// Validate checks a newly proposed suggestion. It must name the text it
// replaces and must not arrive already decided.
func (s *Suggestion) Validate() error {
	if s.OriginalText == "" {
		return fmt.Errorf("%w: suggestion original text is required", ErrInvalidInput)
	}
	if !s.IsPending() {
		return fmt.Errorf("%w: new suggestion has status %q", ErrInvalidInput, s.Status)
	}
	return nil
}

// Decide moves a pending suggestion to a terminal status.
func (s *Suggestion) Decide(status SuggestionStatus) error {
	if !s.IsPending() {
		return ErrAlreadyDecided
	}
	if status != SuggestionAccepted && status != SuggestionRejected {
		return fmt.Errorf("%w: suggestion status %q", ErrInvalidInput, status)
	}
	s.Status = status
	return nil
}

// ThreadMessage is one append-only entry in a thread.
type ThreadMessage struct {
	ID         string      `json:"id"`
	Author     string      `json:"author"`
	AuthorKind AuthorKind  `json:"author_kind"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
	// References are opaque to this module and passed through unchanged.
	References []string `json:"references,omitempty"`
}

// Validate checks the message's suggestion, if any.
func (m *ThreadMessage) Validate() error {
	if m.Suggestion == nil {
		return nil
	}
	return m.Suggestion.Validate()
}

// Clone returns a deep copy of the message.
func (m *ThreadMessage) Clone() *ThreadMessage {
	if m == nil {
		return nil
	}
	c := *m
	if m.Suggestion != nil {
		s := *m.Suggestion
		c.Suggestion = &s
	}
	if m.References != nil {
		c.References = append([]string(nil), m.References...)
	}
	return &c
}

// CommentThread is the unit of conversation anchored to a document range.
type CommentThread struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	Anchor     TextAnchor       `json:"anchor"`
	Status     ThreadStatus     `json:"status"`
	Messages   []*ThreadMessage `json:"messages"`
	// Orphaned is set when no resolution tier could place the anchor.
	Orphaned  bool      `json:"orphaned,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCommentThread creates an open thread with no messages.
func NewCommentThread(documentID string, anchor TextAnchor, now time.Time) *CommentThread {
	return &CommentThread{
		ID:         NewID(),
		DocumentID: documentID,
		Anchor:     anchor,
		Status:     ThreadStatusOpen,
		Messages:   make([]*ThreadMessage, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsOpen reports whether the thread is still open
func (t *CommentThread) IsOpen() bool {
	return t.Status != ThreadStatusResolved
}

// FindMessage returns the message with the given id, or nil.
func (t *CommentThread) FindMessage(id string) *ThreadMessage {
	for _, m := range t.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Clone returns a deep copy of the thread.
func (t *CommentThread) Clone() *CommentThread {
	if t == nil {
		return nil
	}
	c := *t
	c.Messages = make([]*ThreadMessage, len(t.Messages))
	for i, m := range t.Messages {
		c.Messages[i] = m.Clone()
	}
	return &c
}

// CloneThreads deep-copies a thread list.
func CloneThreads(threads []*CommentThread) []*CommentThread {
	out := make([]*CommentThread, len(threads))
	for i, t := range threads {
		out[i] = t.Clone()
	}
	return out
}
