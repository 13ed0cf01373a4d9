// Package wire holds the JSON messages and handler plumbing shared by the
// network remote adapters.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

// EventType names a push event sent by the remote side
type EventType string

const (
	EventThread     EventType = "thread"
	EventMessage    EventType = "message"
	EventSuggestion EventType = "suggestion"
)

// Request is one forwarded mutation.
type Request struct {
	Operation  domain.OperationType  `json:"operation"`
	DocumentID string                `json:"document_id"`
	ThreadID   string                `json:"thread_id,omitempty"`
	MessageID  string                `json:"message_id,omitempty"`
	Thread     *domain.CommentThread `json:"thread,omitempty"`
	Message    *domain.ThreadMessage `json:"message,omitempty"`
}

// Validate checks the fields the operation needs are present.
func (r *Request) Validate() error {
	if r.DocumentID == "" {
		return fmt.Errorf("%w: document_id required", domain.ErrInvalidInput)
	}
	switch r.Operation {
	case domain.OpCreateThread:
		if r.Thread == nil {
			return fmt.Errorf("%w: thread required", domain.ErrInvalidInput)
		}
	case domain.OpAddMessage:
		if r.ThreadID == "" || r.Message == nil {
			return fmt.Errorf("%w: thread_id and message required", domain.ErrInvalidInput)
		}
	case domain.OpResolveThread, domain.OpReopenThread:
		if r.ThreadID == "" {
			return fmt.Errorf("%w: thread_id required", domain.ErrInvalidInput)
		}
	case domain.OpAcceptSuggestion, domain.OpRejectSuggestion:
		if r.ThreadID == "" || r.MessageID == "" {
			return fmt.Errorf("%w: thread_id and message_id required", domain.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidInput, r.Operation)
	}
	return nil
}

// Reply acknowledges a Request.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Err converts a negative reply into a forwarding error.
func (r *Reply) Err() error {
	if r.OK {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrRemoteForwarding, r.Error)
}

// Event is a push from the remote side. Sequence increases per stream so
// pollers can resume after the last event they saw.
type Event struct {
	Type       EventType             `json:"type"`
	Sequence   int64                 `json:"sequence,omitempty"`
	DocumentID string                `json:"document_id"`
	ThreadID   string                `json:"thread_id,omitempty"`
	Thread     *domain.CommentThread `json:"thread,omitempty"`
	Message    *domain.ThreadMessage `json:"message,omitempty"`
}

// DecodeEvent parses and checks an event payload.
func DecodeEvent(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch evt.Type {
	case EventThread:
		if evt.Thread == nil {
			return nil, fmt.Errorf("%w: thread event without thread", domain.ErrInvalidInput)
		}
	case EventMessage, EventSuggestion:
		if evt.ThreadID == "" || evt.Message == nil {
			return nil, fmt.Errorf("%w: message event without thread_id or message", domain.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidInput, evt.Type)
	}
	return &evt, nil
}
