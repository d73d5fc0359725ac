package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"example.com/wordweave/services/event/config"
)

// ErrNotImplemented is returned when a downstream service responds that the
// requested method is not implemented. Cascade orchestration skips these
// steps rather than failing.
var ErrNotImplemented = errors.New("service method not implemented")

// serviceResponse is the common response shape of the downstream services
type serviceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Pool holds one pooled client per downstream service. It is constructed
// once at startup and passed to the consumer by reference.
type Pool struct {
	User    *UserClient
	Post    *PostClient
	Comment *CommentClient
	Like    *LikeClient
}

// NewPool creates the downstream client pool. All clients share one
// http.Client, whose transport pools connections per host.
func NewPool(cfg config.ServicesConfig) *Pool {
	httpClient := &http.Client{Timeout: cfg.CallTimeout}

	return &Pool{
		User:    &UserClient{baseClient{cfg.UserServiceURL, httpClient}},
		Post:    &PostClient{baseClient{cfg.PostServiceURL, httpClient}},
		Comment: &CommentClient{baseClient{cfg.CommentServiceURL, httpClient}},
		Like:    &LikeClient{baseClient{cfg.LikeServiceURL, httpClient}},
	}
}

// baseClient implements the JSON request plumbing shared by all clients
type baseClient struct {
	baseURL    string
	httpClient *http.Client
}

func (c *baseClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		return ErrNotImplemented
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var errResp serviceResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Message != "" {
			return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, errResp.Message)
		}
		return fmt.Errorf("%s %s returned %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}
