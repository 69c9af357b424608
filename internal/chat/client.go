package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mandalnilabja/chatrelay/internal/types"
	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

// Client timeouts.
const (
	DefaultRequestTimeout = 2 * time.Minute
	DefaultConnectTimeout = 10 * time.Second
	modelsTimeout         = 15 * time.Second
	pingTimeout           = 8 * time.Second
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 500

// defaultToken is sent when no credential is configured; the upstream
// gateway rejects requests without an Authorization header.
const defaultToken = "unused"

// Completer issues one chat completion call. A non-2xx status is returned as
// a *StatusError; on success the caller owns the response body.
type Completer interface {
	Complete(ctx context.Context, req *types.ChatCompletionRequest) (*http.Response, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream error (%d): %s", e.StatusCode, e.Body)
}

// Client talks to a relay (or any OpenAI-compatible endpoint) on behalf of a
// Session.
type Client struct {
	session *Session
	http    *http.Client
}

// NewClient creates a Client. A nil httpClient gets a transport with
// DefaultConnectTimeout and no overall timeout; request lifetimes are bounded
// by the caller's context.
func NewClient(session *Session, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = upstream.NewClient(DefaultConnectTimeout, 0)
	}
	return &Client{session: session, http: httpClient}
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, req *types.ChatCompletionRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.authorization())
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}
	return resp, nil
}

// ListModels returns the model IDs offered by the endpoint. Both a bare array
// and an object with a data array are accepted.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, modelsTimeout)
	defer cancel()

	body, err := c.get(ctx, "/models")
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	var models []types.Model
	if gjson.ParseBytes(body).IsArray() {
		err = json.Unmarshal(body, &models)
	} else {
		var list types.ModelList
		err = json.Unmarshal(body, &list)
		models = list.Data
	}
	if err != nil {
		return nil, fmt.Errorf("list models: decode: %w", err)
	}

	var ids []string
	for _, m := range models {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Ping checks that the relay is reachable and returns its clock.
func (c *Client) Ping(ctx context.Context) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	body, err := c.get(ctx, "/ping")
	if err != nil {
		return time.Time{}, fmt.Errorf("ping: %w", err)
	}
	if !gjson.GetBytes(body, "ok").Bool() {
		return time.Time{}, fmt.Errorf("ping: unexpected payload %q", truncate(string(body), 120))
	}
	now, err := time.Parse(time.RFC3339, gjson.GetBytes(body, "now").String())
	if err != nil {
		return time.Time{}, fmt.Errorf("ping: parse time: %w", err)
	}
	return now, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authorization())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readStatusError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.session.BaseURL, "/") + path
}

func (c *Client) authorization() string {
	token := strings.TrimSpace(c.session.Token)
	if token == "" {
		token = defaultToken
	}
	return upstream.NormalizeBearer("Bearer " + token)
}

func readStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*4))
	return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBody)}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
