package llm

import (
	"sort"
	"strings"
)

// Aggregator bridges transport-level deltas to ordered stream events
// and, once the provider signals completion, a final assembled
// assistant message. Text fragments route through a TagSplitter; tool
// call fragments are forwarded immediately and accumulated by index
// for final assembly.
type Aggregator struct {
	splitter *TagSplitter
	content  strings.Builder
	calls    map[int]*pendingCall

	// provReasoning tracks whether a provider-classified reasoning
	// span (Delta.Reasoning) has already been announced.
	provReasoning bool
}

// pendingCall accumulates fragments for one tool-call index.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// NewAggregator returns an aggregator for a single stream.
func NewAggregator() *Aggregator {
	return &Aggregator{
		splitter: NewTagSplitter(),
		calls:    make(map[int]*pendingCall),
	}
}

// Consume processes one delta and returns zero or more events, in the
// order they became unambiguous.
func (a *Aggregator) Consume(d Delta) []StreamEvent {
	var events []StreamEvent

	if d.Reasoning != "" {
		if !a.provReasoning {
			a.provReasoning = true
			events = append(events, StreamEvent{Kind: KindReasoningStart})
		}
		events = append(events, StreamEvent{Kind: KindReasoning, Text: d.Reasoning})
	}

	if d.Content != "" {
		events = append(events, a.segmentEvents(a.splitter.Feed(d.Content))...)
	}

	if len(d.ToolCalls) > 0 {
		// Tool activity forces a flush boundary so the caller sees
		// complete prose before tool-call construction begins.
		events = append(events, a.segmentEvents(a.splitter.Flush())...)

		for i := range d.ToolCalls {
			f := d.ToolCalls[i]
			events = append(events, StreamEvent{Kind: KindToolCallFragment, Fragment: &f})

			pc := a.calls[f.Index]
			if pc == nil {
				pc = &pendingCall{}
				a.calls[f.Index] = pc
			}
			if f.ID != "" {
				pc.id = f.ID
			}
			if f.Name != "" {
				pc.name += f.Name
			}
			pc.args.WriteString(f.Args)
		}
	}

	return events
}

// Finalize drains any retained text and assembles the terminal
// assistant message. Tool calls are ordered by fragment index. Text
// still inside an unterminated reasoning span is flushed as reasoning,
// never promoted to content. Call at most once per stream.
func (a *Aggregator) Finalize() (Message, []StreamEvent) {
	events := a.segmentEvents(a.splitter.Flush())

	msg := Message{Role: "assistant", Content: a.content.String()}
	if len(a.calls) > 0 {
		indexes := make([]int, 0, len(a.calls))
		for i := range a.calls {
			indexes = append(indexes, i)
		}
		sort.Ints(indexes)
		for _, i := range indexes {
			pc := a.calls[i]
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   pc.id,
				Type: "function",
				Function: FunctionCall{
					Name:      pc.name,
					Arguments: pc.args.String(),
				},
			})
		}
	}
	return msg, events
}

// Content returns the visible content accumulated so far. Used to
// preserve partial output when a stream is interrupted.
func (a *Aggregator) Content() string {
	return a.content.String()
}

// segmentEvents converts splitter segments to events, accumulating
// content-mode text for the final message.
func (a *Aggregator) segmentEvents(segs []Segment) []StreamEvent {
	var events []StreamEvent
	for _, seg := range segs {
		if seg.Start {
			events = append(events, StreamEvent{Kind: KindReasoningStart})
			continue
		}
		if seg.Text == "" {
			continue
		}
		if seg.Mode == ModeContent {
			a.content.WriteString(seg.Text)
			events = append(events, StreamEvent{Kind: KindContent, Text: seg.Text})
		} else {
			events = append(events, StreamEvent{Kind: KindReasoning, Text: seg.Text})
		}
	}
	return events
}
