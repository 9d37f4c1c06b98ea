package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Result is the structured answer the instruction asks for.
type Result struct {
	Title       string `json:"title"`
	Use         string `json:"use"`
	Description string `json:"description"`
}

// Interpret maps a payload to its status line. Exactly one of res and text
// is set when the payload carried data.
//
//	bridge error                  -> "Analysis failed: <error>"
//	no data / falsy data          -> "Analysis Complete."
//	JSON object (or string of it) -> "Analysis: <title or Unknown Object>"
//	anything else                 -> "LLM Text: <first n runes>..."
func Interpret(p Payload, n int) (line string, res *Result, text string) {
	if p.Error != "" {
		line = "Analysis failed: " + p.Error
		return line, nil, line
	}
	raw := bytes.TrimSpace(p.Data)
	if falsy(raw) {
		return StatusComplete, nil, ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
			return fmt.Sprintf("LLM Text: %s...", preview(s, n)), nil, s
		}
		r := fromValue(v)
		return "Analysis: " + r.Title, &r, ""
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		text = string(raw)
		return fmt.Sprintf("LLM Text: %s...", preview(text, n)), nil, text
	}
	r := fromValue(v)
	return "Analysis: " + r.Title, &r, ""
}

func fromValue(v any) Result {
	r := Result{Title: UnknownTitle}
	m, ok := v.(map[string]any)
	if !ok {
		return r
	}
	if t := field(m["title"]); t != "" {
		r.Title = t
	}
	r.Use = field(m["use"])
	r.Description = field(m["description"])
	return r
}

func field(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if !t {
			return ""
		}
		return "true"
	case float64:
		if t == 0 {
			return ""
		}
		return fmt.Sprint(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func falsy(raw []byte) bool {
	switch string(raw) {
	case "", "null", "false", "0", `""`:
		return true
	}
	return false
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
