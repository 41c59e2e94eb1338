package gateway

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

// Spawned sessions get a fixed one-hour run ceiling and are kept for review;
// both limits are enforced by the gateway, not locally.
const (
	runTimeoutSeconds = 3600
	cleanupPolicy     = "keep"
)

// Client talks to the remote agent-spawn gateway. The gateway actually runs
// agent sessions; the dashboard only tracks them.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.BaseURL != "" && c.Token != ""
}

type spawnRequest struct {
	Label             string `json:"label"`
	Task              string `json:"task"`
	AgentID           string `json:"agentId"`
	RunTimeoutSeconds int    `json:"runTimeoutSeconds"`
	Cleanup           string `json:"cleanup"`
}

type spawnResponse struct {
	SessionKey string `json:"sessionKey"`
}

// SpawnSession asks the gateway for a new working session and returns its key.
func (c *Client) SpawnSession(ctx context.Context, name, task, agentID string) (string, error) {
	mission := fmt.Sprintf("You are %s, an AI agent working on: %s\n\n"+
		"Your mission:\n"+
		"1. Work on the assigned task\n"+
		"2. Report progress via POST to dashboard API\n"+
		"3. Ask for help when stuck\n\n"+
		"Task: %s", name, task, task)
	body := spawnRequest{
		Label:             "agent-" + agentID,
		Task:              mission,
		AgentID:           "default",
		RunTimeoutSeconds: runTimeoutSeconds,
		Cleanup:           cleanupPolicy,
	}
	var resp spawnResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/spawn", body, &resp); err != nil {
		return "", err
	}
	return resp.SessionKey, nil
}

// ListSessions relays the gateway's session list as-is.
func (c *Client) ListSessions(ctx context.Context) ([]map[string]any, error) {
	var resp struct {
		Sessions []map[string]any `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// SendMessage posts a message into a running session.
func (c *Client) SendMessage(ctx context.Context, sessionKey, message string) error {
	endpoint := fmt.Sprintf("/v1/sessions/%s/send", url.PathEscape(sessionKey))
	return c.do(ctx, http.MethodPost, endpoint, map[string]string{"message": message}, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.BaseURL, "/")+endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("gateway status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}
