package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Request is the admission payload handed to the document-generation
// collaborator. How documents are rendered is the collaborator's concern;
// the outcome comes back asynchronously through the outcome endpoint.
type Request struct {
	ApplicationID string            `json:"application_id"`
	Snapshot      map[string]string `json:"snapshot"`
	Attempt       int32             `json:"attempt"`
}

type Client interface {
	Generate(ctx context.Context, req *Request) error
}

type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type HTTPClient struct {
	cfg    HTTPClientConfig
	client *http.Client
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Generate(ctx context.Context, genReq *Request) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("document generator base url is not configured")
	}

	body, err := json.Marshal(genReq)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("document generator returned status=%d", resp.StatusCode)
	}
	return nil
}
