// Package missionboardsdk is a minimal client for agents reporting back to a
// MissionBoard dashboard.
package missionboardsdk

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

// Client is a minimal MissionBoard HTTP API client.
type Client struct {
	BaseURL    string
	AgentID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, agentID string) *Client {
	return &Client{
		BaseURL: baseURL,
		AgentID: agentID,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	Priority   string  `json:"priority"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// Report represents a submitted report.
type Report struct {
	ID        string  `json:"id"`
	AgentID   string  `json:"agent_id"`
	TaskID    *string `json:"task_id,omitempty"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Content   string  `json:"content,omitempty"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// MyTasks returns the tasks assigned to this agent.
func (c *Client) MyTasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	endpoint := fmt.Sprintf("api/tasks?agent=%s", url.QueryEscape(c.AgentID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

// StartTask moves a task to in-progress.
func (c *Client) StartTask(ctx context.Context, taskID string) (Task, error) {
	return c.updateTask(ctx, map[string]any{"id": taskID, "status": "in-progress"})
}

// Report submits a report. A "completion" report with a task id moves that
// task to review on the dashboard.
func (c *Client) Report(ctx context.Context, reportType, title, content string, taskID *string) (Report, error) {
	body := map[string]any{
		"agent_id": c.AgentID,
		"type":     reportType,
		"title":    title,
		"content":  content,
	}
	if taskID != nil {
		body["task_id"] = *taskID
	}
	var resp struct {
		Report Report `json:"report"`
	}
	err := c.do(ctx, http.MethodPost, "api/reports", body, &resp)
	return resp.Report, err
}

// Progress is shorthand for a progress report.
func (c *Client) Progress(ctx context.Context, title, content string, taskID *string) (Report, error) {
	return c.Report(ctx, "progress", title, content, taskID)
}

// Complete is shorthand for a completion report tied to a task.
func (c *Client) Complete(ctx context.Context, taskID, title, content string) (Report, error) {
	return c.Report(ctx, "completion", title, content, &taskID)
}

// AskQuestion is shorthand for a question report.
func (c *Client) AskQuestion(ctx context.Context, title, content string, taskID *string) (Report, error) {
	return c.Report(ctx, "question", title, content, taskID)
}

func (c *Client) updateTask(ctx context.Context, body map[string]any) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPatch, "api/tasks", body, &resp)
	return resp.Task, err
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
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
