package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fyrsmithlabs/sitegen/internal/quality"
)

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// apiClient issues JSON requests against the sitegen API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// apiError is a non-2xx response. Report is set when a quality gate
// blocked the request.
type apiError struct {
	Status  int
	Message string
	Report  *quality.Report
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

func newAPIError(status int, body []byte) *apiError {
	e := &apiError{Status: status, Message: string(bytes.TrimSpace(body))}
	var envelope struct {
		Message string          `json:"message"`
		Report  *quality.Report `json:"report"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Message != "" {
		e.Message = envelope.Message
		e.Report = envelope.Report
	}
	return e
}

// do sends body as JSON (raw when it is json.RawMessage) and decodes the
// response into out. A *[]byte out receives the body verbatim.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		data, ok := body.(json.RawMessage)
		if !ok {
			var err error
			if data, err = json.Marshal(body); err != nil {
				return fmt.Errorf("failed to marshal request: %w", err)
			}
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*v = data
		return nil
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}
