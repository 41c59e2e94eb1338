package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// Client lists the token owner's repositories for the project sync.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Repository is the subset of the repository payload the sync consumes.
type Repository struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	FullName    string `json:"full_name"`
}

func New(token string) *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.Token != ""
}

// ListUserRepos fetches the caller's repositories, first page only (100 max),
// matching what the dashboard sync consumes.
func (c *Client) ListUserRepos(ctx context.Context) ([]Repository, error) {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/user/repos?per_page=100", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("github api status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var repos []Repository
	if err := json.NewDecoder(res.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("decode github response: %w", err)
	}
	return repos, nil
}
