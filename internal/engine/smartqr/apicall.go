package smartqr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"smartqr/internal/engine/scancontext"
)

const maxAPIResponseBytes = 64 << 10

type APICallPayload struct {
	ConfigID string                  `json:"configId"`
	RuleID   string                  `json:"ruleId"`
	Context  scancontext.ScanContext `json:"context"`
	Metadata map[string]string       `json:"metadata,omitempty"`
}

type apiCallResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// APICaller asks an external endpoint where a scan should go.
type APICaller interface {
	Call(ctx context.Context, endpoint string, payload APICallPayload) (string, error)
}

type HTTPAPICaller struct {
	client *http.Client
}

func NewHTTPAPICaller(timeout time.Duration) *HTTPAPICaller {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPAPICaller{client: &http.Client{Timeout: timeout}}
}

func (c *HTTPAPICaller) Call(ctx context.Context, endpoint string, payload APICallPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("api call returned HTTP %d", resp.StatusCode)
	}

	var out apiCallResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAPIResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode api call response: %w", err)
	}
	if out.RedirectURL == "" {
		return "", errors.New("api call response has no redirectUrl")
	}
	if err := validateURL(out.RedirectURL); err != nil {
		return "", fmt.Errorf("api call response: %w", err)
	}
	return out.RedirectURL, nil
}
