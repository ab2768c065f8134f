package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"staffchat/internal/models"
	"staffchat/internal/observability"
)

// RESTClient is the stateless request/response fallback to the backend.
// Reads and read acknowledgments are retried; posting a message is attempted
// exactly once so a timeout can never produce a double send.
type RESTClient struct {
	baseURL  string
	token    string
	retrying *retryablehttp.Client
	single   *retryablehttp.Client
}

// RESTOption customises a RESTClient.
type RESTOption func(*RESTClient)

// WithRetry sets the retry budget for idempotent calls.
func WithRetry(max int, waitMin, waitMax time.Duration) RESTOption {
	return func(c *RESTClient) {
		c.retrying.RetryMax = max
		c.retrying.RetryWaitMin = waitMin
		c.retrying.RetryWaitMax = waitMax
	}
}

// WithHTTPClient replaces the underlying http.Client of both request paths.
func WithHTTPClient(hc *http.Client) RESTOption {
	return func(c *RESTClient) {
		c.retrying.HTTPClient = hc
		c.single.HTTPClient = hc
	}
}

// NewRESTClient builds a client for the backend at baseURL using token as the
// bearer credential.
func NewRESTClient(baseURL, token string, opts ...RESTOption) *RESTClient {
	retrying := retryablehttp.NewClient()
	retrying.Logger = slog.Default()
	retrying.RetryMax = 3
	retrying.RetryWaitMin = 200 * time.Millisecond
	retrying.RetryWaitMax = 2 * time.Second
	retrying.ErrorHandler = retryablehttp.PassthroughErrorHandler

	single := retryablehttp.NewClient()
	single.Logger = slog.Default()
	single.RetryMax = 0
	single.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &RESTClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		retrying: retrying,
		single:   single,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchIdentity resolves the staff member the token belongs to.
func (c *RESTClient) FetchIdentity(ctx context.Context) (models.Identity, error) {
	var who models.Identity
	if err := c.do(ctx, c.retrying, "fetch_identity", http.MethodGet, "/me", nil, &who); err != nil {
		return models.Identity{}, err
	}
	who.Authenticated = true
	return who, nil
}

// FetchThreads lists the viewer's threads.
func (c *RESTClient) FetchThreads(ctx context.Context) ([]models.Thread, error) {
	var resp struct {
		Threads []models.Thread `json:"threads"`
	}
	if err := c.do(ctx, c.retrying, "fetch_threads", http.MethodGet, "/threads", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

// FetchMessages lists the messages of one thread.
func (c *RESTClient) FetchMessages(ctx context.Context, threadID models.ThreadID) ([]models.Message, error) {
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	path := fmt.Sprintf("/threads/%d/messages", threadID)
	if err := c.do(ctx, c.retrying, "fetch_messages", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// PostMessage stores a message. It is never retried automatically.
func (c *RESTClient) PostMessage(ctx context.Context, payload models.SendPayload) (models.Message, error) {
	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: payload.Text})
	if err != nil {
		return models.Message{}, err
	}
	var msg models.Message
	path := fmt.Sprintf("/threads/%d/messages", payload.PeerID)
	if err := c.do(ctx, c.single, "post_message", http.MethodPost, path, body, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// MarkRead acknowledges every message from the peer in a thread.
func (c *RESTClient) MarkRead(ctx context.Context, threadID models.ThreadID) error {
	path := fmt.Sprintf("/threads/%d/read", threadID)
	return c.do(ctx, c.retrying, "mark_read", http.MethodPost, path, nil, nil)
}

func (c *RESTClient) do(ctx context.Context, hc *retryablehttp.Client, op, method, path string, body []byte, out any) error {
	ctx, span := otel.Tracer("staffchat/transport").Start(ctx, "rest."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.route", path))

	var reqBody any
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		observability.IncClientRESTError(op)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observability.IncClientRESTError(op)
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096)); readErr == nil {
			if json.Unmarshal(raw, &errBody) == nil {
				apiErr.Message = errBody.Error
			}
		}
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
