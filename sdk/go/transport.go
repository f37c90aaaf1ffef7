package lumen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of an error response body is read when
// looking for a diagnostic message.
const maxErrorBody = 4096

// transport performs a single POST to a collector endpoint. It carries no
// retry policy of its own: each caller decides (immediate-abandon for
// heartbeat and ack, backoff for bulk delivery). The delivery loop and the
// heartbeat loop each hold their own transport instance so the two
// background tasks never contend on one client.
type transport struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func newTransport(baseURL, apiKey string, timeout time.Duration) *transport {
	return &transport{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// post sends a JSON body to the given endpoint path. Success is exactly
// HTTP 200; any other status or transport-level failure is returned as an
// error, enriched with the server's diagnostic message when one is present.
func (t *transport) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("lumen: marshal %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("lumen: create %s request: %w", path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", t.apiKey)
	req.Header.Set("User-Agent", "LumenConnector/"+SDKVersion+" Go")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("lumen: %s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		// Drain the body to enable connection reuse.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if msg := serverMessage(raw); msg != "" {
		return fmt.Errorf("lumen: %s returned status %d: %s", path, resp.StatusCode, msg)
	}
	return fmt.Errorf("lumen: %s returned status %d", path, resp.StatusCode)
}
