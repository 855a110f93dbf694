package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/tradepsych/insight/version"
)

// doRequest makes a single HTTP request to OpenRouter.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, orReq *openRouterRequest) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(orReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/tradepsych/insight")
	req.Header.Set("X-Title", "Insight")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			c.limiter.Record429()
		}
		return nil, &StatusError{Provider: OpenRouterName, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	// OpenRouter sometimes reports upstream failures inside a 200 body.
	if orResp.Error != nil {
		return nil, &StatusError{
			Provider:   OpenRouterName,
			StatusCode: embeddedStatus(orResp.Error.Code),
			Body:       orResp.Error.Message,
		}
	}

	return &orResp, nil
}

// embeddedStatus maps an in-body error code to an HTTP status.
// Unknown codes are treated as upstream faults.
func embeddedStatus(code any) int {
	switch v := code.(type) {
	case float64:
		if v >= 400 && v <= 599 {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n >= 400 && n <= 599 {
			return n
		}
		switch v {
		case "rate_limit_exceeded":
			return http.StatusTooManyRequests
		case "invalid_request", "content_filter":
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}
