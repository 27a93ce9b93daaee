// Package stream decodes the newline-delimited JSON emitted by
// `claude --output-format stream-json`. Decoding is a pure function over
// (State, chunk) so it can be exercised without a child process; chunks need
// not align with record boundaries.
package stream

import (
	"bytes"
	"encoding/json"
)

// Kind classifies a decoded record.
type Kind int

const (
	KindUnknown Kind = iota
	KindAssistant
	KindToolUse
	KindResult
)

func (k Kind) String() string {
	switch k {
	case KindAssistant:
		return "assistant"
	case KindToolUse:
		return "tool_use"
	case KindResult:
		return "result"
	default:
		return "unknown"
	}
}

// Record is one decoded line of the output stream.
type Record struct {
	Kind      Kind
	Type      string
	Subtype   string
	SessionID string
	// Text is the concatenated text blocks of an assistant turn.
	Text     string
	ToolUses []ToolUse
	Result   *Result
	Raw      json.RawMessage
}

// ToolUse is a tool invocation inside an assistant turn.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Result carries the fields of the terminal "result" record.
type Result struct {
	Subtype    string
	SessionID  string
	TotalCost  float64
	NumTurns   int
	DurationMS int64
	IsError    bool
	Content    string
}

// State is the carry-over between Feed calls: the trailing bytes of a line
// whose newline has not arrived yet.
type State struct {
	partial []byte
}

// Pending reports how many bytes are buffered awaiting a newline.
func (s State) Pending() int { return len(s.partial) }

// Feed appends chunk to the buffered partial line, decodes every complete
// line in order and returns the new state. Malformed lines are skipped.
func Feed(st State, chunk []byte) (State, []Record) {
	data := make([]byte, 0, len(st.partial)+len(chunk))
	data = append(data, st.partial...)
	data = append(data, chunk...)

	var records []Record
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if rec, ok := ParseLine(data[:i]); ok {
			records = append(records, rec)
		}
		data = data[i+1:]
	}
	return State{partial: bytes.Clone(data)}, records
}

// Flush decodes a final unterminated line, if any.
func Flush(st State) (State, []Record) {
	if len(st.partial) == 0 {
		return State{}, nil
	}
	rec, ok := ParseLine(st.partial)
	if !ok {
		return State{}, nil
	}
	return State{}, []Record{rec}
}

type wireRecord struct {
	Type       string          `json:"type"`
	Subtype    string          `json:"subtype,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Message    json.RawMessage `json:"message,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
	NumTurns   int             `json:"num_turns,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
	TotalCost  float64         `json:"total_cost_usd,omitempty"`
}

type wireMessage struct {
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// ParseLine decodes a single line. It returns false for blank or malformed
// lines and for JSON values that are not objects.
func ParseLine(line []byte) (Record, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return Record{}, false
	}
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, false
	}

	rec := Record{
		Type:      w.Type,
		Subtype:   w.Subtype,
		SessionID: w.SessionID,
		Raw:       json.RawMessage(bytes.Clone(line)),
	}

	switch w.Type {
	case "assistant":
		rec.Kind = KindAssistant
		var msg wireMessage
		if len(w.Message) > 0 && json.Unmarshal(w.Message, &msg) == nil {
			var text bytes.Buffer
			for _, b := range msg.Content {
				switch b.Type {
				case "text":
					text.WriteString(b.Text)
				case "tool_use":
					rec.ToolUses = append(rec.ToolUses, ToolUse{ID: b.ID, Name: b.Name, Input: b.Input})
				}
			}
			rec.Text = text.String()
		}
		if len(rec.ToolUses) > 0 {
			rec.Kind = KindToolUse
		}
	case "result":
		rec.Kind = KindResult
		rec.Result = &Result{
			Subtype:    w.Subtype,
			SessionID:  w.SessionID,
			TotalCost:  w.TotalCost,
			NumTurns:   w.NumTurns,
			DurationMS: w.DurationMS,
			IsError:    w.IsError,
			Content:    resultText(w.Result),
		}
	}
	return rec, true
}

// resultText accepts either a plain string or a message-shaped object.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var msg wireMessage
	if json.Unmarshal(raw, &msg) == nil {
		var b bytes.Buffer
		for _, block := range msg.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String()
	}
	return ""
}
