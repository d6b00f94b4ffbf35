package llm

import "strings"

// Markers delimiting hidden reasoning spans inside model output. Some
// models emit chain-of-thought inline rather than as a separate field.
const (
	thinkStart = "<think>"
	thinkEnd   = "</think>"
)

// Mode classifies a span of streamed text.
type Mode int

const (
	// ModeContent is visible answer text.
	ModeContent Mode = iota
	// ModeReasoning is hidden chain-of-thought text.
	ModeReasoning
)

// Segment is a run of text tagged with the mode it was emitted under.
// A Segment with Start set (and empty Text) marks the moment a
// reasoning span opens.
type Segment struct {
	Mode  Mode
	Text  string
	Start bool
}

// TagSplitter incrementally classifies a live text stream into content
// and reasoning segments delimited by thinkStart/thinkEnd markers. The
// markers themselves are never emitted. Between calls the splitter
// retains at most len(marker)-1 characters, so output appears as soon
// as it is unambiguous.
//
// Markers are exact, case-sensitive strings. A start marker seen while
// already inside a reasoning span is literal text.
type TagSplitter struct {
	mode        Mode
	buf         string
	skipNewline bool
}

// NewTagSplitter returns a splitter starting in content mode.
func NewTagSplitter() *TagSplitter {
	return &TagSplitter{}
}

// Mode returns the splitter's current mode.
func (s *TagSplitter) Mode() Mode {
	return s.mode
}

// Feed consumes the next chunk of streamed text and returns the
// segments that became unambiguous. Safe to call with chunks of any
// size, including a single character.
func (s *TagSplitter) Feed(chunk string) []Segment {
	s.buf += chunk
	var out []Segment

	for {
		// A line break immediately after a marker is cosmetic
		// formatting; drop it.
		if s.skipNewline {
			if s.buf == "" {
				break
			}
			if s.buf[0] == '\n' {
				s.buf = s.buf[1:]
			}
			s.skipNewline = false
		}

		marker := thinkStart
		if s.mode == ModeReasoning {
			marker = thinkEnd
		}

		if idx := strings.Index(s.buf, marker); idx >= 0 {
			if idx > 0 {
				out = append(out, Segment{Mode: s.mode, Text: s.buf[:idx]})
			}
			s.buf = s.buf[idx+len(marker):]
			s.skipNewline = true
			if s.mode == ModeContent {
				s.mode = ModeReasoning
				out = append(out, Segment{Mode: ModeReasoning, Start: true})
			} else {
				s.mode = ModeContent
			}
			continue
		}

		// No full marker present. Retain only the longest buffer
		// suffix that could still grow into the marker; everything
		// before it can never match and is flushed now.
		keep := markerPrefixLen(s.buf, marker)
		if flush := len(s.buf) - keep; flush > 0 {
			out = append(out, Segment{Mode: s.mode, Text: s.buf[:flush]})
			s.buf = s.buf[flush:]
		}
		break
	}

	return out
}

// Flush drains any retained text under the current mode. A dangling
// partial marker at end-of-stream appears verbatim rather than being
// swallowed.
func (s *TagSplitter) Flush() []Segment {
	s.skipNewline = false
	if s.buf == "" {
		return nil
	}
	seg := Segment{Mode: s.mode, Text: s.buf}
	s.buf = ""
	return []Segment{seg}
}

// markerPrefixLen returns the length of the longest proper suffix of
// buf that is a prefix of marker.
func markerPrefixLen(buf, marker string) int {
	max := len(marker) - 1
	if len(buf) < max {
		max = len(buf)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(buf, marker[:k]) {
			return k
		}
	}
	return 0
}
