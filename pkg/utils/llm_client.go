package utils

import (
	"context"
	"encoding/json"
	"fmt"
)

// LLMProvider is the upstream API family an LLMClient talks to
type LLMProvider string

const (
	// OpenAI provider
	OpenAI LLMProvider = "openai"
	// Anthropic provider
	Anthropic LLMProvider = "anthropic"
	// Generic provider for OpenAI-compatible endpoints
	Generic LLMProvider = "generic"
)

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient abstracts the LLM call for the step engine
type ChatClient interface {
	// ChatCompletion sends a chat request and returns the assistant text
	// plus the raw provider response
	ChatCompletion(ctx context.Context, model string, temperature float64, messages []Message) (string, map[string]interface{}, error)
}

// LLMClient talks to an OpenAI- or Anthropic-style completion API
type LLMClient struct {
	httpClient *HTTPClient
	provider   LLMProvider
	apiKey     string
	baseURL    string
}

// NewLLMClient creates an LLM client for the given provider. baseURL
// overrides the provider default when non-empty.
func NewLLMClient(provider LLMProvider, apiKey, baseURL string) *LLMClient {
	client := &LLMClient{
		httpClient: NewHTTPClient(),
		provider:   provider,
		apiKey:     apiKey,
		baseURL:    baseURL,
	}

	if client.baseURL == "" {
		switch provider {
		case OpenAI, Generic:
			client.baseURL = "https://api.openai.com/v1"
		case Anthropic:
			client.baseURL = "https://api.anthropic.com/v1"
		}
	}

	return client
}

// ChatCompletion implements ChatClient
func (c *LLMClient) ChatCompletion(ctx context.Context, model string, temperature float64, messages []Message) (string, map[string]interface{}, error) {
	switch c.provider {
	case Anthropic:
		return c.completeAnthropic(ctx, model, temperature, messages)
	default:
		return c.completeOpenAI(ctx, model, temperature, messages)
	}
}

func (c *LLMClient) completeOpenAI(ctx context.Context, model string, temperature float64, messages []Message) (string, map[string]interface{}, error) {
	requestBody := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": temperature,
	}

	resp, err := c.httpClient.Do(ctx, &HTTPRequest{
		URL:    fmt.Sprintf("%s/chat/completions", c.baseURL),
		Method: "POST",
		Body:   requestBody,
		Headers: map[string]string{
			"Authorization": fmt.Sprintf("Bearer %s", c.apiKey),
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("LLM API request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, string(resp.RawBody))
	}

	var parsed struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp.RawBody, &parsed); err != nil {
		return "", nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil, fmt.Errorf("LLM response contained no choices")
	}

	raw, _ := resp.Body.(map[string]interface{})
	return parsed.Choices[0].Message.Content, raw, nil
}

func (c *LLMClient) completeAnthropic(ctx context.Context, model string, temperature float64, messages []Message) (string, map[string]interface{}, error) {
	// The messages API takes the system prompt as a top-level field
	var systemPrompt string
	chatMessages := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			systemPrompt = msg.Content
			continue
		}
		chatMessages = append(chatMessages, msg)
	}

	requestBody := map[string]interface{}{
		"model":       model,
		"messages":    chatMessages,
		"temperature": temperature,
		"max_tokens":  4096,
	}
	if systemPrompt != "" {
		requestBody["system"] = systemPrompt
	}

	resp, err := c.httpClient.Do(ctx, &HTTPRequest{
		URL:    fmt.Sprintf("%s/messages", c.baseURL),
		Method: "POST",
		Body:   requestBody,
		Headers: map[string]string{
			"x-api-key":         c.apiKey,
			"anthropic-version": "2023-06-01",
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("LLM API request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("LLM API error (status %d): %s", resp.StatusCode, string(resp.RawBody))
	}

	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(resp.RawBody, &parsed); err != nil {
		return "", nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	raw, _ := resp.Body.(map[string]interface{})
	return text, raw, nil
}
