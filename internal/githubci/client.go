// Package githubci triggers and toggles a GitHub Actions workflow through the
// GitHub REST API.
package githubci

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

	"github.com/starford/intelboard/internal/apperr"
)

const (
	DefaultAPIURL       = "https://api.github.com"
	DefaultWorkflowFile = "intelligence.yml"
	DefaultRef          = "main"

	apiVersion = "2022-11-28"
	maxErrBody = 64 << 10
)

// APIError is a non-204 answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: %s (HTTP %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("github: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Credentials identify the token and repository ("owner/name") to act on.
type Credentials struct {
	Token string
	Repo  string
}

// Config holds the client settings. Zero values take the defaults.
type Config struct {
	APIURL       string
	WorkflowFile string
	Ref          string
	Timeout      time.Duration
}

// Client calls the workflow dispatch, enable and disable endpoints.
type Client struct {
	baseURL      string
	workflowFile string
	ref          string
	http         *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.WorkflowFile == "" {
		cfg.WorkflowFile = DefaultWorkflowFile
	}
	if cfg.Ref == "" {
		cfg.Ref = DefaultRef
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.APIURL, "/"),
		workflowFile: cfg.WorkflowFile,
		ref:          cfg.Ref,
		http:         &http.Client{Timeout: cfg.Timeout},
	}
}

// Dispatch starts a run of the workflow on the configured ref.
func (c *Client) Dispatch(ctx context.Context, creds Credentials) error {
	body, err := json.Marshal(map[string]string{"ref": c.ref})
	if err != nil {
		return fmt.Errorf("github: encode dispatch: %w", err)
	}
	return c.do(ctx, creds, http.MethodPost, "dispatches", body)
}

// Enable resumes scheduled runs of the workflow.
func (c *Client) Enable(ctx context.Context, creds Credentials) error {
	return c.do(ctx, creds, http.MethodPut, "enable", nil)
}

// Disable pauses scheduled runs of the workflow.
func (c *Client) Disable(ctx context.Context, creds Credentials) error {
	return c.do(ctx, creds, http.MethodPut, "disable", nil)
}

func (c *Client) endpoint(repo, action string) (string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("github: repository %q must be owner/name: %w", repo, apperr.ErrValidation)
	}
	return fmt.Sprintf("%s/repos/%s/%s/actions/workflows/%s/%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(name), url.PathEscape(c.workflowFile), action), nil
}

func (c *Client) do(ctx context.Context, creds Credentials, method, action string, body []byte) error {
	if creds.Token == "" || creds.Repo == "" {
		return apperr.ErrSettingsRequired
	}
	endpoint, err := c.endpoint(creds.Repo, action)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("github: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		apiErr.Message = payload.Message
	}
	return apiErr
}
