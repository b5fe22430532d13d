package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"collabnest/domain"
	"collabnest/optimistic"
)

const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote: %d %s", e.Status, e.Message)
}

// Is lets callers match a 404 with optimistic.ErrRemoteNotFound.
func (e *StatusError) Is(target error) bool {
	return target == optimistic.ErrRemoteNotFound && e.Status == http.StatusNotFound
}

// Client talks to the task REST API. It implements optimistic.RemoteAPI.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

var _ optimistic.RemoteAPI = (*Client)(nil)

func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) ListTasks(ctx context.Context, organization string) ([]domain.Task, error) {
	path := "/api/tasks"
	if organization != "" {
		path += "?organization=" + url.QueryEscape(organization)
	}
	var resp domain.TaskList
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil, &t)
	return t, err
}

// CreateTask sends in.ClientRef as the Idempotency-Key so a retried create
// returns the task created by the first attempt.
func (c *Client) CreateTask(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	hdr := http.Header{}
	if in.ClientRef != "" {
		hdr.Set("Idempotency-Key", in.ClientRef)
	}
	var t domain.Task
	err := c.do(ctx, http.MethodPost, "/api/tasks", hdr, in, &t)
	return t, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	var t domain.Task
	err := c.do(ctx, http.MethodPut, taskPath(id), nil, patch, &t)
	return t, err
}

func (c *Client) SetTaskStatus(ctx context.Context, id string, status domain.Status) (domain.Task, error) {
	var t domain.Task
	err := c.do(ctx, http.MethodPatch, taskPath(id)+"/status", nil, domain.StatusChange{Status: status}, &t)
	return t, err
}

func (c *Client) ReorderTasks(ctx context.Context, p domain.Partition, ids []string) ([]domain.Task, error) {
	var resp domain.TaskList
	if err := c.do(ctx, http.MethodPut, "/api/tasks/order", nil, domain.ReorderRequest{Partition: p, IDs: ids}, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil, nil)
}

func taskPath(id string) string {
	return "/api/tasks/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, hdr http.Header, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
