// Package backend provides the HTTP client for the HelpLine support API.
//
// It covers the identity (GET /auth/me), ticket (POST /tickets and
// POST /tickets/{id}/messages) and assistant reply (POST /chat) endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BTreeMap/HelpLine/internal/models"
	"github.com/tidwall/gjson"
)

// DefaultHTTPTimeout bounds a single request when the caller sets no deadline.
const DefaultHTTPTimeout = 30 * time.Second

// MaxErrorDetailLength caps the error detail kept from a response body.
const MaxErrorDetailLength = 300

// ErrMissingBaseURL is returned by NewClient without a base URL.
var ErrMissingBaseURL = errors.New("backend base URL not set")

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to the support API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	slog.Debug("backend.NewClient: created", "base_url", c.baseURL, "token_set", c.token != "")
	return c, nil
}

// CurrentUser returns the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// CreateTicket opens a ticket.
func (c *Client) CreateTicket(ctx context.Context, req models.CreateTicketRequest) (models.CreatedTicket, error) {
	var created models.CreatedTicket
	if err := c.do(ctx, http.MethodPost, "/tickets", req, &created); err != nil {
		return models.CreatedTicket{}, err
	}
	return created, nil
}

// AppendTicketMessage posts a message to a ticket thread.
func (c *Client) AppendTicketMessage(ctx context.Context, ticketID string, msg models.TicketMessage) error {
	return c.do(ctx, http.MethodPost, "/tickets/"+url.PathEscape(ticketID)+"/messages", msg, nil)
}

type chatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
}

// replyPaths are the response fields that may carry the assistant reply, in order.
var replyPaths = []string{"message.content", "message", "content", "choices.0.message.content"}

// Reply asks the assistant endpoint for a reply to the conversation.
func (c *Client) Reply(ctx context.Context, messages []models.ChatMessage) (string, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/chat", chatRequest{Messages: messages}, &raw); err != nil {
		return "", err
	}
	for _, p := range replyPaths {
		if v := gjson.GetBytes(raw, p); v.Type == gjson.String {
			return v.String(), nil
		}
	}
	return "", nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	slog.Debug("backend.Client.do: sending request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(resp.Status, respBody)}
		slog.Warn("backend.Client.do: request failed", "method", method, "path", path, "status", resp.StatusCode)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// errorDetail extracts a human readable message from an error body.
func errorDetail(status string, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, p := range []string{"detail", "message", "error"} {
			if v := gjson.GetBytes(body, p); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return status
	}
	if utf8.RuneCountInString(text) > MaxErrorDetailLength {
		text = string([]rune(text)[:MaxErrorDetailLength])
	}
	return text
}
