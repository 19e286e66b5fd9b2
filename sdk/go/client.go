package doclifesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal doclife HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Entity is one document as the caller is allowed to see it.
type Entity struct {
	Kind    string                     `json:"kind"`
	ID      string                     `json:"id"`
	Status  string                     `json:"status"`
	Version int64                      `json:"version"`
	Fields  map[string]json.RawMessage `json:"fields"`
}

// Activity is one audit record.
type Activity struct {
	Seq        int64                      `json:"seq"`
	ID         string                     `json:"id"`
	EntityKind string                     `json:"entity_kind"`
	EntityID   string                     `json:"entity_id"`
	ActorID    string                     `json:"actor_id"`
	At         time.Time                  `json:"at"`
	Kind       string                     `json:"kind"`
	FromStatus string                     `json:"from_status,omitempty"`
	ToStatus   string                     `json:"to_status,omitempty"`
	Transition string                     `json:"transition,omitempty"`
	Diff       map[string]json.RawMessage `json:"diff"`
	KeyEvents  []string                   `json:"key_events"`
}

// Intent is a notification request produced by a write.
type Intent struct {
	ID         string         `json:"id"`
	Template   string         `json:"template"`
	Recipients []string       `json:"recipients"`
	Context    map[string]any `json:"context"`
}

// WriteResult is returned by create, update and transition calls.
type WriteResult struct {
	Entity     Entity     `json:"entity"`
	Activities []Activity `json:"activities"`
	Intents    []Intent   `json:"intents"`
}

// Permissions lists the fields the caller may view and edit.
type Permissions struct {
	View []string `json:"view"`
	Edit []string `json:"edit"`
}

// TransitionOptions carries the optional parts of a transition call.
type TransitionOptions struct {
	Payload        map[string]any `json:"payload,omitempty"`
	Patch          map[string]any `json:"patch,omitempty"`
	ExpectedStatus string         `json:"expected_status,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Create creates an entity of kind from fields.
func (c *Client) Create(ctx context.Context, kind string, fields map[string]any) (WriteResult, error) {
	var resp WriteResult
	err := c.do(ctx, http.MethodPost, c.kindPath(kind), fields, &resp)
	return resp, err
}

// Get reads an entity.
func (c *Client) Get(ctx context.Context, kind, id string) (Entity, error) {
	var resp Entity
	err := c.do(ctx, http.MethodGet, c.entityPath(kind, id), nil, &resp)
	return resp, err
}

// List returns entity summaries of kind, optionally filtered by status.
func (c *Client) List(ctx context.Context, kind, status string, limit int) ([]Entity, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := c.kindPath(kind)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Entity
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Update patches entity fields.
func (c *Client) Update(ctx context.Context, kind, id string, patch map[string]any) (WriteResult, error) {
	var resp WriteResult
	err := c.do(ctx, http.MethodPatch, c.entityPath(kind, id), patch, &resp)
	return resp, err
}

// Transition runs a named transition.
func (c *Client) Transition(ctx context.Context, kind, id, name string, opts TransitionOptions) (WriteResult, error) {
	var resp WriteResult
	endpoint := c.entityPath(kind, id) + "/transitions/" + url.PathEscape(name)
	err := c.do(ctx, http.MethodPost, endpoint, opts, &resp)
	return resp, err
}

// AvailableTransitions lists the transitions the caller may run now.
func (c *Client) AvailableTransitions(ctx context.Context, kind, id string) ([]string, error) {
	var resp struct {
		Transitions []string `json:"transitions"`
	}
	err := c.do(ctx, http.MethodGet, c.entityPath(kind, id)+"/transitions", nil, &resp)
	return resp.Transitions, err
}

// Permissions returns the caller's field permissions on an entity.
func (c *Client) Permissions(ctx context.Context, kind, id string) (Permissions, error) {
	var resp Permissions
	err := c.do(ctx, http.MethodGet, c.entityPath(kind, id)+"/permissions", nil, &resp)
	return resp, err
}

// Activities returns an entity's audit trail.
func (c *Client) Activities(ctx context.Context, kind, id string) ([]Activity, error) {
	var resp []Activity
	err := c.do(ctx, http.MethodGet, c.entityPath(kind, id)+"/activities", nil, &resp)
	return resp, err
}

// Delete removes an entity still in its initial status.
func (c *Client) Delete(ctx context.Context, kind, id string) error {
	return c.do(ctx, http.MethodDelete, c.entityPath(kind, id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = env.Error.Code, env.Error.Message, env.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) kindPath(kind string) string {
	return "v0/" + url.PathEscape(kind)
}

func (c *Client) entityPath(kind, id string) string {
	return c.kindPath(kind) + "/" + url.PathEscape(id)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
