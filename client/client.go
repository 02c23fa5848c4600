package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"prism-board/domain"
)

// DefaultTimeout bounds a single request when the caller gives no http.Client.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client talks to a REST task backend.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
}

// New creates a Client for baseURL. bearer may be empty.
func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
	}
}

// FetchTasksByOwner lists every task of the owner.
func (c *Client) FetchTasksByOwner(ctx context.Context, owner string) ([]domain.RawTask, error) {
	data, err := c.do(ctx, http.MethodGet, "/tasks/owner/"+url.PathEscape(owner), nil)
	if err != nil {
		return nil, err
	}
	return decodeTaskList(data)
}

// CreateTask posts a new task and returns the stored record.
func (c *Client) CreateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error) {
	data, err := c.do(ctx, http.MethodPost, "/tasks", task)
	if err != nil {
		return domain.RawTask{}, err
	}
	return decodeTask(data, task)
}

// UpdateTask replaces a task by id.
func (c *Client) UpdateTask(ctx context.Context, task domain.RawTask) (domain.RawTask, error) {
	id := task.Identity()
	if id == "" {
		return domain.RawTask{}, errors.New("update task: missing id")
	}
	data, err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(id), task)
	if err != nil {
		return domain.RawTask{}, err
	}
	return decodeTask(data, task)
}

// DeleteTask removes a task by id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("delete task: missing id")
	}
	_, err := c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(data), nil
}

// decodeTask decodes a single record, returning sent when the backend
// answered without one.
func decodeTask(data []byte, sent domain.RawTask) (domain.RawTask, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return sent, nil
	}
	var out domain.RawTask
	if err := sonic.Unmarshal(data, &out); err != nil {
		return domain.RawTask{}, fmt.Errorf("decode task: %w", err)
	}
	if out.Identity() == "" && out.Owner == "" {
		return sent, nil
	}
	return out, nil
}

// decodeTaskList accepts either a bare array of tasks or an object wrapping
// it under "tasks".
func decodeTaskList(data []byte) ([]domain.RawTask, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []domain.RawTask{}, nil
	}
	var tasks []domain.RawTask
	if data[0] == '{' {
		var wrapped struct {
			Tasks []domain.RawTask `json:"tasks"`
		}
		if err := sonic.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
		tasks = wrapped.Tasks
	} else if err := sonic.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	if tasks == nil {
		tasks = []domain.RawTask{}
	}
	return tasks, nil
}
