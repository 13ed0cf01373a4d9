package domain

import "time"

// OperationType names a mutation that can be forwarded to a remote collaborator
type OperationType string

const (
	OpCreateThread     OperationType = "create_thread"
	OpAddMessage       OperationType = "add_message"
	OpResolveThread    OperationType = "resolve_thread"
	OpReopenThread     OperationType = "reopen_thread"
	OpAcceptSuggestion OperationType = "accept_suggestion"
	OpRejectSuggestion OperationType = "reject_suggestion"
)

// OutboxPayload carries what a replayed remote call needs.
// Thread is set for create_thread, Message for add_message,
// MessageID for the suggestion operations.
type OutboxPayload struct {
	DocumentID string         `json:"document_id"`
	ThreadID   string         `json:"thread_id"`
	MessageID  string         `json:"message_id,omitempty"`
	Thread     *CommentThread `json:"thread,omitempty"`
	Message    *ThreadMessage `json:"message,omitempty"`
}

// OutboxEntry is a queued remote notification. Entries live only in memory.
type OutboxEntry struct {
	Operation  OperationType `json:"operation"`
	Payload    OutboxPayload `json:"payload"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	RetryCount int           `json:"retry_count"`
}

// DrainResult summarises one outbox drain cycle
type DrainResult struct {
	Forwarded int `json:"forwarded"`
	Discarded int `json:"discarded"`
	Remaining int `json:"remaining"`
	// Stopped is true when the cycle ended on a failed entry.
	Stopped bool `json:"stopped"`
}

// ConnectionStatus is the remote collaborator's reachability
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// SyncStatus is a point-in-time view of the synchronization state
type SyncStatus struct {
	DocumentID string           `json:"document_id"`
	Connection ConnectionStatus `json:"connection"`
	Outbox     int              `json:"outbox"`
	Threads    int              `json:"threads"`
	Orphaned   int              `json:"orphaned"`
}
