package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/marginalia/internal/headings"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// syncWorld is the per-scenario state shared by the steps.
type syncWorld struct {
	docID      string
	svc        *ThreadSyncService
	threads    *mocks.MockThreadStore
	docs       *mocks.MockDocumentStore
	remote     *mocks.MockRemote
	last       *domain.CommentThread
	lastMsg    string
	lastErr    error
	newThreads int
}

func initializeScenario(sc *godog.ScenarioContext) {
	w := &syncWorld{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		*w = syncWorld{
			threads: mocks.NewMockThreadStore(),
			docs:    mocks.NewMockDocumentStore(),
			remote:  mocks.NewMockRemote(),
		}
		return ctx, nil
	})

	sc.Step(`^a document "([^"]*)" containing "([^"]*)"$`, w.aDocumentContaining)
	sc.Step(`^the remote collaborator is disconnected$`, w.remoteDisconnected)
	sc.Step(`^the remote collaborator connects$`, w.remoteConnects)
	sc.Step(`^the remote collaborator connects but rejects every call$`, w.remoteConnectsFailing)
	sc.Step(`^I create a thread on "([^"]*)"$`, w.createThread)
	sc.Step(`^I reply "([^"]*)" to the last thread$`, w.reply)
	sc.Step(`^I suggest replacing "([^"]*)" with "([^"]*)" on the last thread$`, w.suggest)
	sc.Step(`^I accept the last suggestion$`, w.accept)
	sc.Step(`^I reject the last suggestion$`, w.reject)
	sc.Step(`^the outbox is drained (\d+) times$`, w.drainTimes)
	sc.Step(`^the remote pushes thread "([^"]*)" on "([^"]*)" twice$`, w.pushThreadTwice)
	sc.Step(`^the remote pushes message "([^"]*)" to thread "([^"]*)" twice$`, w.pushMessageTwice)

	sc.Step(`^the document has (\d+) threads?$`, w.documentHasThreads)
	sc.Step(`^the persisted record has (\d+) threads?$`, w.persistedHasThreads)
	sc.Step(`^the outbox holds "([^"]*)"$`, w.outboxHolds)
	sc.Step(`^the outbox is empty$`, w.outboxEmpty)
	sc.Step(`^the remote received "([^"]*)"$`, w.remoteReceived)
	sc.Step(`^thread "([^"]*)" has (\d+) messages$`, w.threadHasMessages)
	sc.Step(`^(\d+) new thread notifications? fired$`, w.notificationsFired)
	sc.Step(`^the document reads "([^"]*)"$`, w.documentReads)
	sc.Step(`^the last suggestion is "([^"]*)"$`, w.lastSuggestionIs)
	sc.Step(`^the error is "([^"]*)"$`, w.errorIs)
}

func (w *syncWorld) aDocumentContaining(docID, text string) error {
	w.docID = docID
	w.docs.Set(docID, text)
	w.svc = NewThreadSyncService(ThreadSyncConfig{
		ThreadStore:    w.threads,
		Documents:      w.docs,
		Remote:         w.remote,
		HeadingParsers: headings.DefaultRegistry(),
		Now:            func() time.Time { return fixedTime },
	})
	w.svc.OnNewThread(func(*domain.CommentThread) { w.newThreads++ })
	return w.svc.SetActiveDocument(context.Background(), docID)
}

func (w *syncWorld) remoteDisconnected() error {
	w.remote.SetStatus(domain.ConnectionDisconnected)
	return nil
}

func (w *syncWorld) remoteConnects() error {
	w.remote.SetStatus(domain.ConnectionConnected)
	w.svc.ProcessIncoming(context.Background())
	return nil
}

func (w *syncWorld) remoteConnectsFailing() error {
	w.remote.Err = errors.New("collaborator unavailable")
	w.remote.SetStatus(domain.ConnectionConnected)
	return nil
}

func (w *syncWorld) createThread(anchorText string) error {
	text := w.docs.Text(w.docID)
	start := strings.Index(text, anchorText)
	if start < 0 {
		return fmt.Errorf("%q not in document", anchorText)
	}
	thread, err := w.svc.CreateThread(context.Background(), domain.TextAnchor{
		AnchorText:  anchorText,
		StartOffset: start,
		EndOffset:   start + len(anchorText),
	}, nil)
	if err != nil {
		return err
	}
	w.last = thread
	return nil
}

func (w *syncWorld) reply(content string) error {
	_, err := w.svc.AddMessage(context.Background(), w.last.ID, &domain.ThreadMessage{Author: "me", Content: content})
	return err
}

func (w *syncWorld) suggest(original, replacement string) error {
	msg, err := w.svc.AddMessage(context.Background(), w.last.ID, suggestionMsg(original, replacement))
	if err != nil {
		return err
	}
	w.lastMsg = msg.ID
	return nil
}

func (w *syncWorld) accept() error {
	_, w.lastErr = w.svc.AcceptSuggestion(context.Background(), w.last.ID, w.lastMsg)
	return nil
}

func (w *syncWorld) reject() error {
	_, w.lastErr = w.svc.RejectSuggestion(context.Background(), w.last.ID, w.lastMsg)
	return nil
}

func (w *syncWorld) drainTimes(n int) error {
	for i := 0; i < n; i++ {
		w.svc.DrainOutbox(context.Background())
	}
	return nil
}

func (w *syncWorld) pushThreadTwice(id, anchorText string) error {
	for i := 0; i < 2; i++ {
		w.remote.PushThread(w.docID, remoteThread(id, anchorText, 0))
	}
	w.svc.ProcessIncoming(context.Background())
	return nil
}

func (w *syncWorld) pushMessageTwice(msgID, threadID string) error {
	for i := 0; i < 2; i++ {
		w.remote.PushMessage(w.docID, threadID, &domain.ThreadMessage{ID: msgID, Content: "pushed"})
	}
	w.svc.ProcessIncoming(context.Background())
	return nil
}

func (w *syncWorld) documentHasThreads(n int) error {
	if got := len(w.svc.GetThreads()); got != n {
		return fmt.Errorf("expected %d threads, got %d", n, got)
	}
	return nil
}

func (w *syncWorld) persistedHasThreads(n int) error {
	stored, err := w.threads.Load(context.Background(), w.docID)
	if err != nil {
		return err
	}
	if len(stored) != n {
		return fmt.Errorf("expected %d persisted threads, got %d", n, len(stored))
	}
	return nil
}

func (w *syncWorld) outboxHolds(ops string) error {
	var got []string
	for _, e := range w.svc.Outbox() {
		got = append(got, string(e.Operation))
	}
	if strings.Join(got, ", ") != ops {
		return fmt.Errorf("expected outbox %q, got %q", ops, strings.Join(got, ", "))
	}
	return nil
}

func (w *syncWorld) outboxEmpty() error {
	if n := w.svc.OutboxLen(); n != 0 {
		return fmt.Errorf("expected empty outbox, got %d entries", n)
	}
	return nil
}

func (w *syncWorld) remoteReceived(ops string) error {
	var got []string
	for _, c := range w.remote.Calls() {
		got = append(got, string(c.Operation))
	}
	if strings.Join(got, ", ") != ops {
		return fmt.Errorf("expected remote calls %q, got %q", ops, strings.Join(got, ", "))
	}
	return nil
}

func (w *syncWorld) threadHasMessages(id string, n int) error {
	for _, t := range w.svc.GetThreads() {
		if t.ID == id {
			if len(t.Messages) != n {
				return fmt.Errorf("expected %d messages, got %d", n, len(t.Messages))
			}
			return nil
		}
	}
	return fmt.Errorf("thread %s not found", id)
}

func (w *syncWorld) notificationsFired(n int) error {
	if w.newThreads != n {
		return fmt.Errorf("expected %d notifications, got %d", n, w.newThreads)
	}
	return nil
}

func (w *syncWorld) documentReads(text string) error {
	if got := w.docs.Text(w.docID); got != text {
		return fmt.Errorf("expected document %q, got %q", text, got)
	}
	return nil
}

func (w *syncWorld) lastSuggestionIs(status string) error {
	for _, t := range w.svc.GetThreads() {
		if t.ID != w.last.ID {
			continue
		}
		msg := t.FindMessage(w.lastMsg)
		if msg == nil || msg.Suggestion == nil {
			return fmt.Errorf("suggestion %s not found", w.lastMsg)
		}
		if string(msg.Suggestion.Status) != status {
			return fmt.Errorf("expected suggestion %q, got %q", status, msg.Suggestion.Status)
		}
		return nil
	}
	return fmt.Errorf("thread %s not found", w.last.ID)
}

func (w *syncWorld) errorIs(message string) error {
	if w.lastErr == nil {
		return fmt.Errorf("expected error %q, got none", message)
	}
	if !strings.Contains(w.lastErr.Error(), message) {
		return fmt.Errorf("expected error %q, got %q", message, w.lastErr.Error())
	}
	return nil
}
