package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/albumforge/api/internal/config"
)

// Generation task states reported by the provider.
const (
	TaskStatePending    = "pending"
	TaskStateProcessing = "processing"
	TaskStateCompleted  = "completed"
	TaskStateFailed     = "failed"
)

// MusicGenerator is the black-box external generation provider. Submit may
// fail synchronously; QueryTask is polled and may return duplicate or
// out-of-order snapshots, which callers must tolerate.
type MusicGenerator interface {
	SubmitGeneration(ctx context.Context, req *SubmitGenerationRequest) (*SubmitGenerationResponse, error)
	QueryTask(ctx context.Context, taskID string) (*TaskStatus, error)
	IsConfigured() bool
}

// SunoGenerator implements MusicGenerator against the Suno-compatible API.
type SunoGenerator struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SubmitGenerationRequest is the provider-side generation request.
type SubmitGenerationRequest struct {
	Prompt           string `json:"prompt"`
	Lyrics           string `json:"lyrics,omitempty"`
	Style            string `json:"style,omitempty"`
	Title            string `json:"title,omitempty"`
	MakeInstrumental bool   `json:"make_instrumental,omitempty"`
}

// SubmitGenerationResponse acknowledges an accepted generation task.
type SubmitGenerationResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// TaskStatus is one polled snapshot of a provider task.
type TaskStatus struct {
	TaskID   string  `json:"task_id"`
	State    string  `json:"state"`
	Progress int     `json:"progress"`
	Stage    string  `json:"stage,omitempty"`
	AudioURL string  `json:"audio_url,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// NewSunoGenerator creates a new Suno API client
func NewSunoGenerator(cfg *config.ProviderConfig) *SunoGenerator {
	return &SunoGenerator{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// SubmitGeneration initiates music generation
func (c *SunoGenerator) SubmitGeneration(ctx context.Context, req *SubmitGenerationRequest) (*SubmitGenerationResponse, error) {
	var result SubmitGenerationResponse
	if err := c.post(ctx, "/v1/music/generate", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueryTask retrieves the status of a generation task
func (c *SunoGenerator) QueryTask(ctx context.Context, taskID string) (*TaskStatus, error) {
	endpoint := fmt.Sprintf("/v1/music/status/%s", taskID)
	var result TaskStatus
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// post sends a POST request with JSON body
func (c *SunoGenerator) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *SunoGenerator) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *SunoGenerator) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[Provider] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Provider] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Provider] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Provider] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Provider] ✗ unmarshal error for %s %s: %v (body: %s)", req.Method, req.URL.String(), err, string(respBody))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *SunoGenerator) IsConfigured() bool {
	return c.apiKey != ""
}
