// Package testutil provides common test fakes and helpers for HelpLine tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/HelpLine/internal/models"
)

// FakeIdentity is an identity service returning a fixed user or error.
type FakeIdentity struct {
	mu    sync.Mutex
	User  models.User
	Err   error
	Calls int
}

// CurrentUser implements the identity service.
func (f *FakeIdentity) CurrentUser(ctx context.Context) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return models.User{}, f.Err
	}
	return f.User, nil
}

// AppendedMessage is a message recorded by FakeTickets.
type AppendedMessage struct {
	TicketID string
	Message  models.TicketMessage
}

// FakeTickets is an in-memory ticket service.
type FakeTickets struct {
	mu sync.Mutex
	// Created is returned by CreateTicket when CreateErr is nil.
	Created   models.CreatedTicket
	CreateErr error
	// AppendErrAt makes the n-th append (1-based) fail; zero disables it.
	AppendErrAt int
	// Block makes CreateTicket wait for context cancellation.
	Block bool

	Requests []models.CreateTicketRequest
	Appended []AppendedMessage
	appends  int
}

// CreateTicket implements the ticket service.
func (f *FakeTickets) CreateTicket(ctx context.Context, req models.CreateTicketRequest) (models.CreatedTicket, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	block := f.Block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return models.CreatedTicket{}, ctx.Err()
	}
	if f.CreateErr != nil {
		return models.CreatedTicket{}, f.CreateErr
	}
	return f.Created, nil
}

// AppendTicketMessage implements the ticket service.
func (f *FakeTickets) AppendTicketMessage(ctx context.Context, ticketID string, msg models.TicketMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appends++
	if f.AppendErrAt > 0 && f.appends == f.AppendErrAt {
		return fmt.Errorf("append %d failed", f.appends)
	}
	f.Appended = append(f.Appended, AppendedMessage{TicketID: ticketID, Message: msg})
	return nil
}

// CreateCalls returns the number of CreateTicket calls.
func (f *FakeTickets) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

// FakeReplier is an assistant-reply collaborator with a canned answer.
type FakeReplier struct {
	mu       sync.Mutex
	ReplyFn  func(messages []models.ChatMessage) (string, error)
	Received [][]models.ChatMessage
}

// Reply implements the assistant-reply collaborator.
func (f *FakeReplier) Reply(ctx context.Context, messages []models.ChatMessage) (string, error) {
	f.mu.Lock()
	f.Received = append(f.Received, messages)
	fn := f.ReplyFn
	f.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(messages)
}

// Calls returns the number of Reply calls.
func (f *FakeReplier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Received)
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// MustDecodeJSON decodes a request body into target and fails the test on error.
func MustDecodeJSON(t *testing.T, r io.Reader, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(r).Decode(target); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}
