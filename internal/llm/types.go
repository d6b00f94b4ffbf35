// Package llm provides the chat model client and the streaming decode
// pipeline that turns raw provider deltas into ordered stream events.
package llm

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message represents a chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a complete tool call requested by the model.
// Arguments are an opaque JSON-encoded string; only the tool dispatcher
// interprets them.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the name/arguments pair inside a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallDelta is one streamed fragment of a tool call under
// construction. Fragments for the same Index concatenate in arrival
// order.
type ToolCallDelta struct {
	Index int
	ID    string
	Name  string
	Args  string
}

// Delta is a transport-neutral streaming chunk. Exactly one of the
// fields is normally populated per chunk, but consumers must handle any
// combination.
type Delta struct {
	// Content is a visible text fragment.
	Content string
	// Reasoning is a text fragment the provider already classified as
	// chain-of-thought (reasoning_content on DeepSeek-style APIs).
	Reasoning string
	// ToolCalls are partial tool-call fragments keyed by index.
	ToolCalls []ToolCallDelta
}

// StreamEventKind identifies the type of stream event.
type StreamEventKind int

const (
	// KindContent is an incremental visible text fragment.
	KindContent StreamEventKind = iota

	// KindReasoningStart fires once when a hidden reasoning span opens.
	KindReasoningStart

	// KindReasoning is an incremental hidden reasoning fragment.
	KindReasoning

	// KindToolCallFragment is a partial tool call under construction.
	KindToolCallFragment

	// KindToolCallStarted fires when a complete tool call begins executing.
	KindToolCallStarted

	// KindToolResult fires when a tool execution completes.
	KindToolResult

	// KindAnswer is the terminal event of a successful turn. Text
	// carries the final answer, possibly empty.
	KindAnswer

	// KindError is the terminal event of a failed turn.
	KindError
)

// StreamEvent is a single event in the decoded stream. Consumers switch
// on Kind to determine which fields are set. Events arrive in strict
// temporal order matching the underlying token order.
type StreamEvent struct {
	Kind StreamEventKind

	// Text is set for KindContent, KindReasoning, and KindAnswer.
	Text string

	// Fragment is set for KindToolCallFragment.
	Fragment *ToolCallDelta

	// ToolCall is set for KindToolCallStarted.
	ToolCall *ToolCall

	// ToolName and ToolResult are set for KindToolResult.
	ToolName   string
	ToolResult string

	// Err is set for KindError.
	Err error
}

// StreamCallback receives decoded stream events in order.
type StreamCallback func(event StreamEvent)

// Client is the model transport used by the agent loop.
type Client interface {
	// ChatStream requests a streamed completion and invokes onDelta for
	// every chunk until the stream ends or ctx is cancelled.
	ChatStream(ctx context.Context, messages []Message, tools []map[string]any, onDelta func(Delta)) error

	// Chat is the non-streaming fallback.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (Message, error)

	// Model returns the configured model name.
	Model() string
}
