//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

const defaultPermitsHTTPBase = "http://localhost:48080"

func permitsHTTPBase() string {
	if v := os.Getenv("PERMITS_E2E_HTTP_BASE"); v != "" {
		return v
	}
	return defaultPermitsHTTPBase
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", fmt.Sprintf("e2e-http-%d", time.Now().UnixNano()))

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	return resp, bodyBytes
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		req, _ := http.NewRequest(http.MethodGet, baseURL+"/health", nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func TestMain(m *testing.M) {
	if err := waitForHTTP(permitsHTTPBase(), 30*time.Second); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestHealth(t *testing.T) {
	c := newHTTPClient(permitsHTTPBase())
	resp, body := c.doJSON(t, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

func TestGetApplicationStatusUnknownID(t *testing.T) {
	c := newHTTPClient(permitsHTTPBase())
	resp, body := c.doJSON(t, http.MethodGet, "/applications/"+uuid.NewString()+"/status", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.StatusCode, body)
	}
}

func TestGetApplicationStatusInvalidID(t *testing.T) {
	c := newHTTPClient(permitsHTTPBase())
	resp, body := c.doJSON(t, http.MethodGet, "/applications/not-a-uuid/status", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
}

func TestWebhookRejectedWithoutSignature(t *testing.T) {
	c := newHTTPClient(permitsHTTPBase())
	resp, body := c.doJSON(t, http.MethodPost, "/webhooks/gateway/somehash", map[string]any{
		"id":   "evt_test",
		"type": "payment_intent.succeeded",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
	}
}

func TestManualOverrideRejectedWithoutAPIKey(t *testing.T) {
	c := newHTTPClient(permitsHTTPBase())
	resp, body := c.doJSON(t, http.MethodPost, "/applications/"+uuid.NewString()+"/override", map[string]any{
		"operator": "e2e",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", resp.StatusCode, body)
	}
}
