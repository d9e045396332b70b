// ABOUTME: REST client for the incident-response backend: session reads, id resolution, lifecycle controls.
// ABOUTME: Control actions surface failures synchronously to the caller and are never retried automatically.
package api

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rsoaresd/tarsy-bot-sub002/timeline"
)

// Client talks to the backend's REST API. It is safe for concurrent use.
type Client struct {
	http   *resty.Client
	logger *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout overrides the default 15s request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithHTTPLogger enables request logging.
func WithHTTPLogger(l *log.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for the given base URL (scheme and host, no
// trailing /api path).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	hc := resty.New()
	hc.SetBaseURL(baseURL)
	hc.SetTimeout(15 * time.Second)
	hc.SetHeader("Accept", "application/json")

	c := &Client{
		http:   hc,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionDetail is the full-state snapshot of one session, used for the
// initial load and for refreshes after a reconnect.
type SessionDetail struct {
	Session      timeline.Session          `json:"session"`
	Stages       []timeline.StageExecution `json:"stages"`
	Interactions []timeline.Interaction    `json:"interactions"`
}

// SessionList is the summary listing for the dashboard view.
type SessionList struct {
	Sessions []timeline.Session `json:"sessions"`
	Total    int                `json:"total"`
}

// AlertSubmission is the payload for submitting a new alert.
type AlertSubmission struct {
	AlertType string         `json:"alert_type"`
	Runbook   string         `json:"runbook,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// AlertResponse is returned by alert submission and resubmission.
type AlertResponse struct {
	AlertID string `json:"alert_id"`
	Status  string `json:"status,omitempty"`
}

type sessionIDResponse struct {
	SessionID string `json:"session_id"`
}

// GetSession fetches the full-state snapshot for a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	var out SessionDetail
	if err := c.get(ctx, &out, "/api/v1/sessions/{id}", "id", sessionID); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions fetches session summaries for the dashboard list view.
func (c *Client) ListSessions(ctx context.Context) (*SessionList, error) {
	var out SessionList
	if err := c.get(ctx, &out, "/api/v1/sessions"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveSessionID translates a human-facing alert id into the backend's
// session id. Returns ErrNotFound (wrapped in *APIError) while the backend
// has not created the session row yet; the connection manager retries.
func (c *Client) ResolveSessionID(ctx context.Context, alertID string) (string, error) {
	var out sessionIDResponse
	if err := c.get(ctx, &out, "/api/v1/session-id/{alertId}", "alertId", alertID); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("resolving alert %q: empty session id in response", alertID)
	}
	return out.SessionID, nil
}

// SubmitAlert submits a new alert for processing and returns its alert id.
func (c *Client) SubmitAlert(ctx context.Context, alert AlertSubmission) (*AlertResponse, error) {
	var out AlertResponse
	if err := c.post(ctx, alert, &out, "/api/v1/alerts"); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSession asks the backend to cancel an in-flight session. The session
// moves to canceling and resolves to cancelled asynchronously via the event
// stream.
func (c *Client) CancelSession(ctx context.Context, sessionID string) error {
	return c.post(ctx, nil, nil, "/api/v1/sessions/{id}/cancel", "id", sessionID)
}

// ResumeSession asks the backend to resume a paused session.
func (c *Client) ResumeSession(ctx context.Context, sessionID string) error {
	return c.post(ctx, nil, nil, "/api/v1/sessions/{id}/resume", "id", sessionID)
}

// ResubmitAlert re-runs a previously submitted alert as a fresh session.
func (c *Client) ResubmitAlert(ctx context.Context, alertID string) (*AlertResponse, error) {
	var out AlertResponse
	if err := c.post(ctx, nil, &out, "/api/v1/alerts/{alertId}/resubmit", "alertId", alertID); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs a GET with path params given as alternating name/value pairs.
func (c *Client) get(ctx context.Context, result any, path string, pathParams ...string) error {
	req := c.request(ctx, result, pathParams)
	resp, err := req.Get(path)
	return c.finish(resp, err, "GET", path)
}

func (c *Client) post(ctx context.Context, body, result any, path string, pathParams ...string) error {
	req := c.request(ctx, result, pathParams)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(path)
	return c.finish(resp, err, "POST", path)
}

func (c *Client) request(ctx context.Context, result any, pathParams []string) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if result != nil {
		req.SetResult(result)
	}
	req.SetError(&errorBody{})
	for i := 0; i+1 < len(pathParams); i += 2 {
		req.SetPathParam(pathParams[i], pathParams[i+1])
	}
	return req
}

func (c *Client) finish(resp *resty.Response, err error, method, path string) error {
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.Printf("api request method=%s path=%s status=%d duration=%s",
		method, resp.Request.URL, resp.StatusCode(), resp.Time().Round(time.Millisecond))
	if resp.IsError() {
		body, _ := resp.Error().(*errorBody)
		if body == nil {
			body = &errorBody{}
		}
		return asAPIError(resp.StatusCode(), *body)
	}
	return nil
}
