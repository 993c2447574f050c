// Package client is the Go consumer of a threadview gateway. It mirrors
// the gateway's per-thread store locally by replaying the event stream,
// and drives plan approval with optimistic local state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/threadview/threadview/internal/stream"
	"github.com/threadview/threadview/internal/tracing"
	"github.com/threadview/threadview/pkg/domain"
	"github.com/threadview/threadview/pkg/store"
)

var (
	ErrApprovalInFlight = errors.New("an approval request is already in flight")
	ErrNoPendingPlan    = errors.New("thread has no pending plan")
)

type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	mu        sync.Mutex
	resolving map[string]bool
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{},
		resolving:  make(map[string]bool),
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.InjectHeaders(ctx, req.Header)
	return req, nil
}

// Subscribe attaches to the thread's event stream and replays every
// frame into st until the context is canceled or the stream ends. The
// first frame is a full sync; the caller's store converges to the
// gateway state from there.
func (c *Client) Subscribe(ctx context.Context, threadID string, st *store.Store) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/threads/"+threadID+"/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	r := stream.NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if err := st.Apply(ev); err != nil {
			return fmt.Errorf("apply %s: %w", ev.Type, err)
		}
	}
}

// IngestEvent posts one agent event. Used by agent-side integrations
// and replay tooling.
func (c *Client) IngestEvent(ctx context.Context, ev domain.Event) error {
	if ev.ThreadID == "" {
		return errors.New("event missing thread id")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/threads/"+ev.ThreadID+"/events", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return apiError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Tasks fetches the current projected task list.
func (c *Client) Tasks(ctx context.Context, threadID string) ([]domain.Task, domain.ThreadStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/threads/"+threadID+"/tasks", nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", apiError(resp)
	}

	var out struct {
		Status domain.ThreadStatus `json:"status"`
		Tasks  []domain.Task       `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", err
	}
	return out.Tasks, out.Status, nil
}

// Resume sends a plan decision without touching local state.
func (c *Client) Resume(ctx context.Context, threadID string, approved bool, plan domain.Plan) error {
	body, err := json.Marshal(map[string]any{
		"approved":     approved,
		"updated_plan": plan,
	})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/threads/"+threadID+"/resume", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Clear deletes the thread on the gateway.
func (c *Client) Clear(ctx context.Context, threadID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/threads/"+threadID, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Approve applies the decision to the local store optimistically, then
// confirms it with the gateway. On failure the local store rolls back to
// the pre-decision state, pending plan included, so the UI can retry.
// Only one approval per thread may be in flight at a time.
func (c *Client) Approve(ctx context.Context, threadID string, st *store.Store, approved bool, plan domain.Plan) error {
	c.mu.Lock()
	if c.resolving == nil {
		c.resolving = make(map[string]bool)
	}
	if c.resolving[threadID] {
		c.mu.Unlock()
		return ErrApprovalInFlight
	}
	c.resolving[threadID] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.resolving, threadID)
		c.mu.Unlock()
	}()

	pending, waiting := st.ApprovalState()
	if !waiting {
		return ErrNoPendingPlan
	}
	if approved && len(plan) == 0 {
		plan = pending
	}

	txn := st.Begin()
	if approved {
		st.AcceptPlan(plan)
	} else {
		st.RejectPlan()
	}

	if err := c.Resume(ctx, threadID, approved, plan); err != nil {
		txn.Rollback()
		return err
	}
	txn.Commit()
	return nil
}

type apiErr struct {
	Status  int
	Message string
}

func (e *apiErr) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)
	if body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &apiErr{Status: resp.StatusCode, Message: body.Error}
}

// WaitForStatus polls until the thread reaches the wanted status or the
// context expires. Convenience for scripts and tests.
func (c *Client) WaitForStatus(ctx context.Context, threadID string, want domain.ThreadStatus, interval time.Duration) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_, status, err := c.Tasks(ctx, threadID)
		if err == nil && status == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
