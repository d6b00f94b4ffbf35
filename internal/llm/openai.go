package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"finagent/internal/httpkit"
)

// maxSSELine bounds a single server-sent-event line. Argument-heavy
// tool calls can produce long data lines.
const maxSSELine = 1024 * 1024

// OpenAIClient talks to any OpenAI-compatible chat completions API:
// DeepSeek, OpenAI, OpenRouter, or a local server. The base URL selects
// the provider.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOpenAIClient creates a client. baseURL should include the version
// prefix (e.g. "https://api.deepseek.com/v1").
func NewOpenAIClient(baseURL, apiKey, model string, temperature float64, logger *slog.Logger) *OpenAIClient {
	return &OpenAIClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		// Zero timeout: streams stay open as long as tokens flow.
		// Cancellation comes from the request context.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
		logger:     logger,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// chatRequest is the wire format for POST /chat/completions.
type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	Stream      bool             `json:"stream"`
	Temperature float64          `json:"temperature,omitempty"`
}

// chatChunk is one streamed completion chunk.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// chatResponse is the non-streaming completion response.
type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// ChatStream requests a streamed completion and invokes onDelta for
// every chunk. It returns when the provider signals completion, the
// stream fails, or ctx is cancelled.
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []Message, tools []map[string]any, onDelta func(Delta)) error {
	resp, err := c.post(ctx, messages, tools, true)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELine)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		c.logger.Log(ctx, LevelTrace, "llm stream chunk", "data", data)

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Warn("llm skipping malformed chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		d := chunk.Choices[0].Delta
		delta := Delta{
			Content:   d.Content,
			Reasoning: d.ReasoningContent,
		}
		for _, tc := range d.ToolCalls {
			delta.ToolCalls = append(delta.ToolCalls, ToolCallDelta{
				Index: tc.Index,
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Args:  tc.Function.Arguments,
			})
		}
		if delta.Content != "" || delta.Reasoning != "" || len(delta.ToolCalls) > 0 {
			onDelta(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		// Prefer the cancellation cause when the caller interrupted.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}

	return nil
}

// Chat requests a complete (non-streaming) completion.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []map[string]any) (Message, error) {
	resp, err := c.post(ctx, messages, tools, false)
	if err != nil {
		return Message{}, err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Message{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Message{}, fmt.Errorf("completion returned no choices")
	}
	return parsed.Choices[0].Message, nil
}

// post sends the chat completion request and validates the status.
func (c *OpenAIClient) post(ctx context.Context, messages []Message, tools []map[string]any, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		Stream:      stream,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	c.logger.Log(ctx, LevelTrace, "llm request", "payload", string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		return nil, fmt.Errorf("chat request failed: %s: %s", resp.Status, errBody)
	}
	return resp, nil
}
