package llm

import (
	"strings"
	"testing"
)

// feedAll feeds every chunk and appends the final Flush.
func feedAll(s *TagSplitter, chunks []string) []Segment {
	var segs []Segment
	for _, c := range chunks {
		segs = append(segs, s.Feed(c)...)
	}
	segs = append(segs, s.Flush()...)
	return segs
}

// joinMode concatenates the text of all segments in the given mode.
func joinMode(segs []Segment, m Mode) string {
	var b strings.Builder
	for _, seg := range segs {
		if seg.Mode == m && !seg.Start {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// chunkBy splits s into pieces of at most n characters.
func chunkBy(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

func TestFeed_NoMarkers_ChunkBoundaryIndependence(t *testing.T) {
	const text = "The stock closed at 42.17, up 3% on the day. <b>not a marker</b>"

	for _, n := range []int{1, 2, 3, 5, 7, 64} {
		segs := feedAll(NewTagSplitter(), chunkBy(text, n))

		if got := joinMode(segs, ModeContent); got != text {
			t.Errorf("chunk size %d: content = %q, want %q", n, got, text)
		}
		if got := joinMode(segs, ModeReasoning); got != "" {
			t.Errorf("chunk size %d: unexpected reasoning %q", n, got)
		}
	}
}

func TestFeed_BalancedSpan(t *testing.T) {
	const text = "before<think>hidden chain of thought</think>after"

	for _, n := range []int{1, 2, 4, 9, 128} {
		segs := feedAll(NewTagSplitter(), chunkBy(text, n))

		if got := joinMode(segs, ModeContent); got != "beforeafter" {
			t.Errorf("chunk size %d: content = %q, want %q", n, got, "beforeafter")
		}
		if got := joinMode(segs, ModeReasoning); got != "hidden chain of thought" {
			t.Errorf("chunk size %d: reasoning = %q", n, got)
		}
	}
}

func TestFeed_ModeAlternation(t *testing.T) {
	segs := feedAll(NewTagSplitter(), chunkBy("a<think>b</think>c<think>d</think>e", 1))

	var modes []Mode
	var last Mode = -1
	for _, seg := range segs {
		if seg.Start || seg.Text == "" {
			continue
		}
		if seg.Mode != last {
			modes = append(modes, seg.Mode)
			last = seg.Mode
		}
	}

	want := []Mode{ModeContent, ModeReasoning, ModeContent, ModeReasoning, ModeContent}
	if len(modes) != len(want) {
		t.Fatalf("mode transitions = %v, want %v", modes, want)
	}
	for i := range want {
		if modes[i] != want[i] {
			t.Fatalf("mode transitions = %v, want %v", modes, want)
		}
	}
}

func TestFlush_PartialMarkerAtEOF(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lone angle", "total is 5<", "total is 5<"},
		{"partial marker", "answer<thin", "answer<thin"},
		{"almost full", "x<think", "x<think"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := feedAll(NewTagSplitter(), []string{tt.input})
			if got := joinMode(segs, ModeContent); got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFeed_BufferBound(t *testing.T) {
	s := NewTagSplitter()
	s.Feed("some text that ends with <thi")
	if len(s.buf) >= len(thinkStart) {
		t.Errorf("retained buffer %q exceeds marker length bound", s.buf)
	}

	s2 := NewTagSplitter()
	s2.Feed("no marker material here at all")
	if s2.buf != "" {
		t.Errorf("retained buffer %q, want empty when nothing can match", s2.buf)
	}
}

func TestFeed_NewlineAfterMarkersConsumed(t *testing.T) {
	segs := feedAll(NewTagSplitter(), []string{"<think>\nreasoning</think>\nanswer"})

	if got := joinMode(segs, ModeReasoning); got != "reasoning" {
		t.Errorf("reasoning = %q, want %q", got, "reasoning")
	}
	if got := joinMode(segs, ModeContent); got != "answer" {
		t.Errorf("content = %q, want %q", got, "answer")
	}
}

func TestFeed_NewlineConsumedAcrossChunkBoundary(t *testing.T) {
	s := NewTagSplitter()
	var segs []Segment
	segs = append(segs, s.Feed("<think>")...)
	segs = append(segs, s.Feed("\nhidden")...)
	segs = append(segs, s.Flush()...)

	if got := joinMode(segs, ModeReasoning); got != "hidden" {
		t.Errorf("reasoning = %q, want %q", got, "hidden")
	}
}

func TestFeed_NestedStartMarkerIsLiteral(t *testing.T) {
	segs := feedAll(NewTagSplitter(), []string{"<think>a<think>b</think>c"})

	if got := joinMode(segs, ModeReasoning); got != "a<think>b" {
		t.Errorf("reasoning = %q, want %q", got, "a<think>b")
	}
	if got := joinMode(segs, ModeContent); got != "c" {
		t.Errorf("content = %q, want %q", got, "c")
	}
}

func TestFeed_ReasoningStartSignal(t *testing.T) {
	segs := feedAll(NewTagSplitter(), []string{"pre<think>x</think>post<think>y</think>"})

	starts := 0
	for _, seg := range segs {
		if seg.Start {
			starts++
		}
	}
	if starts != 2 {
		t.Errorf("reasoning start signals = %d, want 2", starts)
	}
}

func TestFeed_UnterminatedReasoningFlushesAsReasoning(t *testing.T) {
	segs := feedAll(NewTagSplitter(), []string{"<think>never closed"})

	if got := joinMode(segs, ModeReasoning); got != "never closed" {
		t.Errorf("reasoning = %q, want %q", got, "never closed")
	}
	if got := joinMode(segs, ModeContent); got != "" {
		t.Errorf("content = %q, want empty", got)
	}
}

func TestFeed_CaseSensitiveMarkers(t *testing.T) {
	const text = "a<THINK>b</THINK>c"
	segs := feedAll(NewTagSplitter(), []string{text})

	if got := joinMode(segs, ModeContent); got != text {
		t.Errorf("content = %q, want %q (uppercase markers are literal)", got, text)
	}
}
