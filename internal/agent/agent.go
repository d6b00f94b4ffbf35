// Package agent implements the conversation loop: it drives streamed
// model completions, dispatches requested tool calls, and loops until
// the model produces a final answer.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"finagent/internal/config"
	"finagent/internal/events"
	"finagent/internal/llm"
	"finagent/internal/profile"
	"finagent/internal/tools"
)

const persona = `You are a financial analysis assistant specializing in Chinese A-share markets. You have tools for realtime quotes, daily history, technical indicators, macroeconomic series, a simulated portfolio, price alerts and strategy backtests. Use them rather than guessing at numbers. Answer in the user's language, cite the figures you fetched, and keep recommendations grounded in the data. You are not a licensed advisor; note material risks where relevant.`

// ReconfigureToolName is the tool whose execution forces the agent to
// rebuild its model client before the next round trip.
const ReconfigureToolName = "reconfigure_model"

// Agent owns one conversation: the mutable system slot, the message
// history, and the model client. One turn runs at a time.
type Agent struct {
	logger   *slog.Logger
	registry *tools.Registry
	profiles *profile.Store
	bus      *events.Bus

	// clientMu guards cfg and client; a tool handler may swap the
	// client mid-turn via ReconfigureModel.
	clientMu  sync.Mutex
	cfg       config.LLMConfig
	client    llm.Client
	newClient func(config.LLMConfig) llm.Client

	history []llm.Message
}

// New creates an agent talking to an OpenAI-compatible endpoint.
// profiles and bus may be nil.
func New(cfg config.LLMConfig, registry *tools.Registry, profiles *profile.Store, bus *events.Bus, logger *slog.Logger) *Agent {
	a := &Agent{
		logger:   logger,
		registry: registry,
		profiles: profiles,
		bus:      bus,
		cfg:      cfg,
		newClient: func(c config.LLMConfig) llm.Client {
			return llm.NewOpenAIClient(c.BaseURL, c.APIKey, c.Model, c.Temperature, logger)
		},
		history: []llm.Message{{Role: "system"}},
	}
	a.client = a.newClient(cfg)
	return a
}

// SetClientFactory replaces the model client constructor and rebuilds
// the active client. Used by tests to inject fakes.
func (a *Agent) SetClientFactory(f func(config.LLMConfig) llm.Client) {
	a.clientMu.Lock()
	defer a.clientMu.Unlock()
	a.newClient = f
	a.client = f(a.cfg)
}

// Model returns the active model name.
func (a *Agent) Model() string {
	return a.currentClient().Model()
}

func (a *Agent) currentClient() llm.Client {
	a.clientMu.Lock()
	defer a.clientMu.Unlock()
	return a.client
}

// ReconfigureModel swaps the conversation to a different model by
// rebuilding the client. Safe to call from a tool handler mid-turn;
// the next round trip picks up the new client.
func (a *Agent) ReconfigureModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name is empty")
	}
	a.clientMu.Lock()
	defer a.clientMu.Unlock()
	a.cfg.Model = model
	a.client = a.newClient(a.cfg)
	a.logger.Info("model reconfigured", "model", model)
	return nil
}

// History returns a copy of the conversation history.
func (a *Agent) History() []llm.Message {
	out := make([]llm.Message, len(a.history))
	copy(out, a.history)
	return out
}

// Clear resets the conversation, keeping only the system slot.
func (a *Agent) Clear() {
	a.history = []llm.Message{{Role: "system"}}
}

// systemPrompt assembles the system message from the persona, the
// clock and the stored investor profile. Rebuilt every turn so the
// model always sees current external state.
func (a *Agent) systemPrompt() string {
	var b strings.Builder
	b.WriteString(persona)
	fmt.Fprintf(&b, "\n\nCurrent time: %s (%s).",
		time.Now().Format("2006-01-02 15:04"), time.Now().Weekday())
	if a.profiles != nil {
		p, err := a.profiles.Load()
		if err != nil {
			a.logger.Warn("profile load failed", "error", err)
		} else {
			b.WriteString("\n" + p.Summary())
		}
	}
	return b.String()
}

// StreamChat runs one conversation turn: it appends the user message,
// streams completions, executes any requested tools, and repeats until
// the model answers without tool calls. Every decoded stream event is
// re-emitted to sink in arrival order; the turn ends with exactly one
// Answer or Error event. There is no round-trip cap; callers bound the
// turn through ctx.
func (a *Agent) StreamChat(ctx context.Context, userMessage string, sink llm.StreamCallback) error {
	requestID := uuid.NewString()
	start := time.Now()

	// The system slot mutates in place every turn; it is never
	// appended.
	a.history[0] = llm.Message{Role: "system", Content: a.systemPrompt()}
	a.history = append(a.history, llm.Message{Role: "user", Content: userMessage})

	a.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceAgent,
		Kind:      events.KindTurnStart,
		Data:      map[string]any{"request_id": requestID, "model": a.Model()},
	})
	a.logger.Debug("turn started", "request_id", requestID, "history", len(a.history))

	rounds := 0
	for {
		rounds++
		agg := llm.NewAggregator()

		// Re-read the client each round: a reconfigure tool executed
		// in the previous batch swaps it out.
		err := a.currentClient().ChatStream(ctx, a.history, a.registry.List(), func(d llm.Delta) {
			for _, ev := range agg.Consume(d) {
				sink(ev)
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				return a.interrupt(requestID, agg, sink)
			}
			a.logger.Error("model stream failed", "request_id", requestID, "error", err)
			sink(llm.StreamEvent{Kind: llm.KindError, Err: err})
			return err
		}

		msg, tail := agg.Finalize()
		for _, ev := range tail {
			sink(ev)
		}
		// Appended unconditionally: later turns must see the exact
		// call shape that was executed.
		a.history = append(a.history, msg)

		if len(msg.ToolCalls) == 0 {
			sink(llm.StreamEvent{Kind: llm.KindAnswer, Text: msg.Content})
			a.bus.Publish(events.Event{
				Timestamp: time.Now().UTC(),
				Source:    events.SourceAgent,
				Kind:      events.KindTurnComplete,
				Data: map[string]any{
					"request_id": requestID,
					"rounds":     rounds,
					"elapsed_ms": time.Since(start).Milliseconds(),
				},
			})
			return nil
		}

		a.runToolBatch(ctx, requestID, msg.ToolCalls, sink)
	}
}

// runToolBatch executes the batch sequentially, appending one tool
// message per call in call order. Failures become result text; the
// model reacts to them on the next round trip.
func (a *Agent) runToolBatch(ctx context.Context, requestID string, calls []llm.ToolCall, sink llm.StreamCallback) {
	for i := range calls {
		tc := calls[i]
		sink(llm.StreamEvent{Kind: llm.KindToolCallStarted, ToolCall: &tc})
		a.bus.Publish(events.Event{
			Timestamp: time.Now().UTC(),
			Source:    events.SourceAgent,
			Kind:      events.KindToolCall,
			Data:      map[string]any{"request_id": requestID, "tool": tc.Function.Name},
		})

		t0 := time.Now()
		result, err := a.registry.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
		if err != nil {
			a.logger.Warn("tool failed", "request_id", requestID, "tool", tc.Function.Name, "error", err)
			result = fmt.Sprintf("Tool %s failed: %v", tc.Function.Name, err)
		}

		sink(llm.StreamEvent{Kind: llm.KindToolResult, ToolName: tc.Function.Name, ToolResult: result})
		a.bus.Publish(events.Event{
			Timestamp: time.Now().UTC(),
			Source:    events.SourceAgent,
			Kind:      events.KindToolDone,
			Data: map[string]any{
				"request_id":  requestID,
				"tool":        tc.Function.Name,
				"ok":          err == nil,
				"duration_ms": time.Since(t0).Milliseconds(),
			},
		})

		a.history = append(a.history, llm.Message{
			Role:       "tool",
			Content:    result,
			ToolCallID: tc.ID,
		})
	}
}

// interrupt preserves partial content on cancellation: whatever the
// aggregator accumulated is appended as a synthetic assistant message
// so the conversation stays replayable.
func (a *Agent) interrupt(requestID string, agg *llm.Aggregator, sink llm.StreamCallback) error {
	partial := agg.Content()
	a.history = append(a.history, llm.Message{Role: "assistant", Content: partial})
	a.logger.Info("turn interrupted", "request_id", requestID, "partial_len", len(partial))
	a.bus.Publish(events.Event{
		Timestamp: time.Now().UTC(),
		Source:    events.SourceAgent,
		Kind:      events.KindTurnInterrupted,
		Data:      map[string]any{"request_id": requestID, "partial_len": len(partial)},
	})
	sink(llm.StreamEvent{Kind: llm.KindError, Err: context.Canceled})
	return context.Canceled
}
