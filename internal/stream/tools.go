package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	maxSummaryLen  = 80
	maxFallbackLen = 60
)

type toolInput map[string]json.RawMessage

func (in toolInput) str(key string) string {
	raw, ok := in[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

type toolFormatter func(in toolInput) string

func field(key string) toolFormatter {
	return func(in toolInput) string { return in.str(key) }
}

// toolFormatters maps tool names to the argument shown in progress output.
// Names absent from the table use firstScalarArg.
var toolFormatters = map[string]toolFormatter{
	"Bash":         formatBash,
	"Read":         field("file_path"),
	"Write":        field("file_path"),
	"Edit":         field("file_path"),
	"MultiEdit":    field("file_path"),
	"NotebookEdit": field("notebook_path"),
	"Grep":         formatGrep,
	"Glob":         field("pattern"),
	"TodoWrite":    formatTodo,
	"WebFetch":     field("url"),
	"WebSearch":    field("query"),
	"Task":         field("description"),
}

func formatBash(in toolInput) string {
	cmd := in.str("command")
	if i := strings.IndexByte(cmd, '\n'); i >= 0 {
		cmd = cmd[:i] + " ..."
	}
	return cmd
}

func formatGrep(in toolInput) string {
	pattern := in.str("pattern")
	if pattern == "" {
		return ""
	}
	if path := in.str("path"); path != "" {
		return fmt.Sprintf("%q in %s", pattern, path)
	}
	return strconv.Quote(pattern)
}

func formatTodo(in toolInput) string {
	var todos []struct {
		Content    string `json:"content"`
		ActiveForm string `json:"activeForm"`
		Status     string `json:"status"`
	}
	if raw, ok := in["todos"]; !ok || json.Unmarshal(raw, &todos) != nil {
		return ""
	}
	for _, td := range todos {
		if td.Status == "in_progress" {
			if td.ActiveForm != "" {
				return td.ActiveForm
			}
			return td.Content
		}
	}
	return fmt.Sprintf("%d items", len(todos))
}

// Summarize returns a one-line description of a tool invocation, e.g.
// "Bash: npm test" or "Read: /src/main.go". Tools without a usable
// argument render as just the tool name.
func Summarize(tu ToolUse) string {
	var detail string
	if f, ok := toolFormatters[tu.Name]; ok {
		var in toolInput
		if json.Unmarshal(tu.Input, &in) == nil {
			detail = f(in)
		}
	} else if s, ok := firstScalarArg(tu.Input); ok && len([]rune(s)) <= maxFallbackLen {
		detail = s
	}
	detail = truncate(strings.TrimSpace(detail), maxSummaryLen)
	if detail == "" {
		return tu.Name
	}
	return tu.Name + ": " + detail
}

// ProgressLines returns one summary per tool invocation in rec, in order.
func ProgressLines(rec Record) []string {
	if len(rec.ToolUses) == 0 {
		return nil
	}
	lines := make([]string, len(rec.ToolUses))
	for i, tu := range rec.ToolUses {
		lines[i] = Summarize(tu)
	}
	return lines
}

// firstScalarArg returns the first scalar value of a JSON object in
// document order. Map iteration order is random, so the object is walked
// token by token.
func firstScalarArg(input json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return "", false
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return "", false
		}
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		switch v := tok.(type) {
		case string:
			return v, true
		case json.Number:
			return v.String(), true
		case bool:
			return strconv.FormatBool(v), true
		case json.Delim:
			if err := skipComposite(dec); err != nil {
				return "", false
			}
		}
	}
	return "", false
}

func skipComposite(dec *json.Decoder) error {
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
