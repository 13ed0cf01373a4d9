package wire

import (
	"sync"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
)

// Hooks stores the handlers a RemoteCollaborator exposes and the current
// connection status. Adapters embed it.
type Hooks struct {
	mu           sync.RWMutex
	status       domain.ConnectionStatus
	onThread     driven.ThreadHandler
	onMessage    driven.MessageHandler
	onSuggestion driven.MessageHandler
	onStatus     driven.StatusChangeHandler
}

// Status returns the current connection status
func (h *Hooks) Status() domain.ConnectionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.status == "" {
		return domain.ConnectionDisconnected
	}
	return h.status
}

// SetStatus records a status and fires the status handler when it changed.
func (h *Hooks) SetStatus(status domain.ConnectionStatus) {
	h.mu.Lock()
	prev := h.status
	h.status = status
	fn := h.onStatus
	h.mu.Unlock()
	if prev != status && fn != nil {
		fn(status)
	}
}

func (h *Hooks) OnNewThread(fn driven.ThreadHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onThread = fn
}

func (h *Hooks) OnNewMessage(fn driven.MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

func (h *Hooks) OnSuggestion(fn driven.MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSuggestion = fn
}

func (h *Hooks) OnStatusChange(fn driven.StatusChangeHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStatus = fn
}

// Dispatch routes an event to its handler. Events with no handler are
// dropped.
func (h *Hooks) Dispatch(evt *Event) {
	h.mu.RLock()
	onThread, onMessage, onSuggestion := h.onThread, h.onMessage, h.onSuggestion
	h.mu.RUnlock()

	switch evt.Type {
	case EventThread:
		if onThread != nil {
			onThread(evt.DocumentID, evt.Thread)
		}
	case EventMessage:
		if onMessage != nil {
			onMessage(evt.DocumentID, evt.ThreadID, evt.Message)
		}
	case EventSuggestion:
		if onSuggestion != nil {
			onSuggestion(evt.DocumentID, evt.ThreadID, evt.Message)
		}
	}
}
