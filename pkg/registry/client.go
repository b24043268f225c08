// Package registry fetches staged programs for an engine instance
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultURL is the registry API base
const DefaultURL = "http://localhost:61170/api"

var (
	// ErrNoProgram is returned when nothing is staged for the track
	ErrNoProgram = errors.New("no program staged for track")
	// ErrAttemptsExhausted is returned when the worker gives up
	ErrAttemptsExhausted = errors.New("registration attempts exhausted")
)

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	UUID  string `json:"uuid"`
	Track string `json:"track"`
}

// RegisterResponse is the reply to POST /register. Program is the raw
// program payload, or null when nothing is staged.
type RegisterResponse struct {
	Registered bool            `json:"registered"`
	UUID       string          `json:"uuid"`
	Track      string          `json:"track"`
	Program    json.RawMessage `json:"program"`
}

// ErrorResponse is the body of a failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client talks to the registry API
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Second},
	}
}

// Register announces the instance on track and returns any staged program
// payload. ErrNoProgram means the registration succeeded without one.
func (c *Client) Register(ctx context.Context, uuid, track string) ([]byte, error) {
	var resp RegisterResponse
	if err := c.post(ctx, "/register", RegisterRequest{UUID: uuid, Track: track}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Program) == 0 || bytes.Equal(resp.Program, []byte("null")) {
		return nil, ErrNoProgram
	}
	return resp.Program, nil
}

// Stage stages payload for track
func (c *Client) Stage(ctx context.Context, track string, payload []byte) error {
	req := StageRequest{Stages: []Stage{{Track: track, Program: payload}}}
	var resp StageResponse
	return c.post(ctx, "/stage", req, &resp)
}

// Programs lists the staged programs
func (c *Client) Programs(ctx context.Context) ([]ProgramInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/programs", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	var out []ProgramInfo
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach registry: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("registry error (%d): %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("registry error: %s", resp.Status)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
