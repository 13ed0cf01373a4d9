package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/marginalia/internal/core/domain"
)

const readyTimeout = 2 * time.Second

// ReadyResponse reports backend reachability. Failed maps a backend to its error.
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Failed map[string]string `json:"failed,omitempty"`
}

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// TokenRequest exchanges an API key for a bearer token
type TokenRequest struct {
	Name       string            `json:"name" example:"ana"`
	Key        string            `json:"key"`
	AuthorKind domain.AuthorKind `json:"author_kind,omitempty" example:"human"`
}

// TokenResponse carries an issued bearer token
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DocumentRequest selects the active document
type DocumentRequest struct {
	DocumentID string `json:"document_id" example:"notes/plan.md"`
}

// EditRequest reports an edit made by the host editor. Text is the full
// document after the edit.
type EditRequest struct {
	From           int    `json:"from"`
	To             int    `json:"to"`
	InsertedLength int    `json:"inserted_length"`
	Text           string `json:"text"`
}

// MessageRequest is the body of a new message
type MessageRequest struct {
	Author     string             `json:"author,omitempty"`
	AuthorKind domain.AuthorKind  `json:"author_kind,omitempty"`
	Content    string             `json:"content"`
	Suggestion *domain.Suggestion `json:"suggestion,omitempty"`
	References []string           `json:"references,omitempty"`
}

// CreateThreadRequest is the body of a new thread
type CreateThreadRequest struct {
	Anchor  domain.TextAnchor `json:"anchor"`
	Message *MessageRequest   `json:"message,omitempty"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse  "A backend is unreachable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := ReadyResponse{Status: "ready"}
	for name, check := range s.readyChecks {
		if err := check(ctx); err != nil {
			if resp.Failed == nil {
				resp.Failed = make(map[string]string)
			}
			resp.Failed[name] = err.Error()
		}
	}
	if len(resp.Failed) > 0 {
		resp.Status = "not ready"
		s.logger.Warn("readiness check failed", zap.Any("failed", resp.Failed))
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Tags         Health
// @Produce      json
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// handleIssueToken godoc
// @Summary      Exchange an API key for a bearer token
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      TokenRequest  true  "API key"
// @Success      200      {object}  TokenResponse
// @Failure      401      {object}  ErrorResponse  "Invalid key"
// @Failure      404      {object}  ErrorResponse  "Authentication disabled"
// @Router       /auth/token [post]
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || s.apiKeyHash == "" {
		writeError(w, http.StatusNotFound, "authentication disabled")
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !s.auth.VerifyKey(req.Key, s.apiKeyHash) {
		writeError(w, http.StatusUnauthorized, "invalid key")
		return
	}

	kind := req.AuthorKind
	if kind == "" {
		kind = domain.AuthorKindHuman
	}
	now := time.Now()
	expires := now.Add(s.tokenTTL)
	token, err := s.auth.GenerateToken(&domain.TokenClaims{
		Subject:    req.Name,
		AuthorKind: kind,
		IssuedAt:   now.Unix(),
		ExpiresAt:  expires.Unix(),
	})
	if err != nil {
		s.logger.Error("failed to issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires.UTC().Truncate(time.Second)})
}

// Sync endpoints

// handleSyncStatus godoc
// @Summary      Sync status
// @Description  Active document, connection status, outbox length and thread counts
// @Tags         Sync
// @Produce      json
// @Success      200  {object}  domain.SyncStatus
// @Router       /sync/status [get]
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.threadSync.Status())
}

// handleDrain godoc
// @Summary      Drain the outbox
// @Description  Forwards queued operations in order, stopping at the first failure
// @Tags         Sync
// @Produce      json
// @Success      200  {object}  domain.DrainResult
// @Router       /sync/drain [post]
func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.threadSync.DrainOutbox(r.Context()))
}

// Document endpoints

// handleSetDocument godoc
// @Summary      Set the active document
// @Tags         Document
// @Accept       json
// @Produce      json
// @Param        request  body      DocumentRequest  true  "Document"
// @Success      200      {object}  domain.SyncStatus
// @Router       /document [put]
func (s *Server) handleSetDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.threadSync.SetActiveDocument(r.Context(), req.DocumentID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.threadSync.Status())
}

// handleApplyEdit godoc
// @Summary      Report a document edit
// @Description  Shifts anchors after the edit and re-resolves the ones it touched
// @Tags         Document
// @Accept       json
// @Param        request  body  EditRequest  true  "Edit"
// @Success      204
// @Router       /document/edits [post]
func (s *Server) handleApplyEdit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	edit := domain.TextEdit{From: req.From, To: req.To, InsertedLength: req.InsertedLength}
	if err := s.threadSync.ApplyEdit(r.Context(), edit, req.Text); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReanchor godoc
// @Summary      Re-resolve every anchor against the stored document
// @Tags         Document
// @Produce      json
// @Success      200  {array}  domain.CommentThread
// @Router       /document/reanchor [post]
func (s *Server) handleReanchor(w http.ResponseWriter, r *http.Request) {
	if err := s.threadSync.Reanchor(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.threadSync.GetThreads())
}

// Thread endpoints

// handleListThreads godoc
// @Summary      List threads of the active document
// @Tags         Threads
// @Produce      json
// @Success      200  {array}  domain.CommentThread
// @Router       /threads [get]
func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.threadSync.GetThreads())
}

// handleThreadsAt godoc
// @Summary      Threads covering an offset
// @Tags         Threads
// @Produce      json
// @Param        offset  path  int  true  "Byte offset"
// @Success      200  {array}  domain.CommentThread
// @Router       /threads/at/{offset} [get]
func (s *Server) handleThreadsAt(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.Atoi(r.PathValue("offset"))
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	writeJSON(w, http.StatusOK, s.threadSync.ThreadsAt(offset))
}

// handleCreateThread godoc
// @Summary      Create a thread
// @Tags         Threads
// @Accept       json
// @Produce      json
// @Param        request  body      CreateThreadRequest  true  "Thread"
// @Success      201      {object}  domain.CommentThread
// @Failure      400      {object}  ErrorResponse
// @Failure      409      {object}  ErrorResponse  "No active document"
// @Router       /threads [post]
func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var first *domain.ThreadMessage
	if req.Message != nil {
		first = s.messageFrom(r, req.Message)
	}

	thread, err := s.threadSync.CreateThread(r.Context(), req.Anchor, first)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

// handleDismissThread godoc
// @Summary      Dismiss an orphaned thread
// @Tags         Threads
// @Param        id  path  string  true  "Thread ID"
// @Success      204
// @Failure      409  {object}  ErrorResponse  "Thread still anchored"
// @Router       /threads/{id} [delete]
func (s *Server) handleDismissThread(w http.ResponseWriter, r *http.Request) {
	if err := s.threadSync.DismissThread(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddMessage godoc
// @Summary      Add a message to a thread
// @Tags         Threads
// @Accept       json
// @Produce      json
// @Param        id       path      string          true  "Thread ID"
// @Param        request  body      MessageRequest  true  "Message"
// @Success      201      {object}  domain.ThreadMessage
// @Router       /threads/{id}/messages [post]
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.threadSync.AddMessage(r.Context(), r.PathValue("id"), s.messageFrom(r, &req))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// handleResolveThread godoc
// @Summary      Resolve a thread
// @Tags         Threads
// @Produce      json
// @Param        id  path  string  true  "Thread ID"
// @Success      200  {object}  domain.CommentThread
// @Router       /threads/{id}/resolve [post]
func (s *Server) handleResolveThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.threadSync.ResolveThread(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// handleReopenThread godoc
// @Summary      Reopen a thread
// @Tags         Threads
// @Produce      json
// @Param        id  path  string  true  "Thread ID"
// @Success      200  {object}  domain.CommentThread
// @Router       /threads/{id}/reopen [post]
func (s *Server) handleReopenThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.threadSync.ReopenThread(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// handleAcceptSuggestion godoc
// @Summary      Accept a suggestion
// @Description  Applies the replacement inside the thread's anchor and writes the document
// @Tags         Suggestions
// @Produce      json
// @Param        id         path  string  true  "Thread ID"
// @Param        messageID  path  string  true  "Message ID"
// @Success      200  {object}  domain.CommentThread
// @Failure      409  {object}  ErrorResponse  "Already decided or stale"
// @Router       /threads/{id}/messages/{messageID}/accept [post]
func (s *Server) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	thread, err := s.threadSync.AcceptSuggestion(r.Context(), r.PathValue("id"), r.PathValue("messageID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// handleRejectSuggestion godoc
// @Summary      Reject a suggestion
// @Tags         Suggestions
// @Produce      json
// @Param        id         path  string  true  "Thread ID"
// @Param        messageID  path  string  true  "Message ID"
// @Success      200  {object}  domain.CommentThread
// @Router       /threads/{id}/messages/{messageID}/reject [post]
func (s *Server) handleRejectSuggestion(w http.ResponseWriter, r *http.Request) {
	thread, err := s.threadSync.RejectSuggestion(r.Context(), r.PathValue("id"), r.PathValue("messageID"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// messageFrom builds a message, taking the author from the token when the
// request is authenticated.
func (s *Server) messageFrom(r *http.Request, req *MessageRequest) *domain.ThreadMessage {
	msg := &domain.ThreadMessage{
		Author:     req.Author,
		AuthorKind: req.AuthorKind,
		Content:    req.Content,
		Suggestion: req.Suggestion,
		References: req.References,
	}
	if claims := GetClaims(r.Context()); claims != nil {
		msg.Author = claims.Subject
		msg.AuthorKind = claims.AuthorKind
	}
	return msg
}

// Helper functions

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrThreadNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoSuggestion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNoActiveDocument),
		errors.Is(err, domain.ErrAlreadyDecided),
		errors.Is(err, domain.ErrStaleSuggestion),
		errors.Is(err, domain.ErrThreadNotOrphaned),
		errors.Is(err, domain.ErrDocumentChanged):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
