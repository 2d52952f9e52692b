// Package utils provides shared HTTP, LLM and encoding helpers for stagehand.
package utils

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
)

// HTTPClient is a reusable HTTP client for tool bodies and the LLM client
type HTTPClient struct {
	client *http.Client
}

// HTTPRequest describes one outbound request
type HTTPRequest struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Body        interface{}       `json:"body,omitempty"`
}

// HTTPResponse is the parsed result of a request
type HTTPResponse struct {
	StatusCode int                    `json:"status_code"`
	Headers    map[string][]string    `json:"headers"`
	Body       interface{}            `json:"body"`
	RawBody    []byte                 `json:"raw_body,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewHTTPClient creates an HTTP client with a sane default timeout. Callers
// bound individual requests through the context instead.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Do executes a request and parses the response body by content type
func (c *HTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var bodyReader io.Reader
	if req.Body != nil {
		switch body := req.Body.(type) {
		case string:
			bodyReader = bytes.NewBufferString(body)
		case []byte:
			bodyReader = bytes.NewBuffer(body)
		default:
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewBuffer(jsonBody)
		}
	}

	parsedURL, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if len(req.QueryParams) > 0 {
		query := parsedURL.Query()
		for key, value := range req.QueryParams {
			query.Set(key, value)
		}
		parsedURL.RawQuery = query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, parsedURL.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	startTime := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	duration := time.Since(startTime)

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsedBody interface{}
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if err := json.Unmarshal(rawBody, &parsedBody); err != nil {
			parsedBody = string(rawBody)
		}
	} else {
		parsedBody = string(rawBody)
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       parsedBody,
		RawBody:    rawBody,
		Metadata: map[string]interface{}{
			"content_type":   contentType,
			"content_length": resp.ContentLength,
			"request_url":    req.URL,
			"request_method": req.Method,
			"timing_ms":      duration.Milliseconds(),
		},
	}, nil
}
