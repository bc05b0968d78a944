package agent

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/schema"
)

var codeBlockPattern = regexp.MustCompile("(?s)```(\\w*)\\s*\\n(.+?)\\n\\s*```")

// ExtractJSON returns the JSON object embedded in an agent response. A
// ```json (or untagged) fenced block wins; otherwise the first balanced
// object in the text is used.
func ExtractJSON(response string) (string, bool) {
	for _, m := range codeBlockPattern.FindAllStringSubmatch(response, -1) {
		lang := strings.ToLower(m[1])
		if lang != "" && lang != "json" {
			continue
		}
		content := strings.TrimSpace(m[2])
		if strings.HasPrefix(content, "{") && json.Valid([]byte(content)) {
			return content, true
		}
	}
	for start := strings.IndexByte(response, '{'); start >= 0; {
		if obj := matchBrace(response[start:]); obj != "" && json.Valid([]byte(obj)) {
			return obj, true
		}
		next := strings.IndexByte(response[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace returns the prefix of s up to the brace closing s[0], skipping
// braces inside strings.
func matchBrace(s string) string {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}

// DecodeOutput extracts, validates and decodes an AgentOutput from raw. All
// failures are *MalformedOutputError values carrying raw.
func DecodeOutput(raw string) (*model.AgentOutput, error) {
	doc, ok := ExtractJSON(raw)
	if !ok {
		return nil, &MalformedOutputError{Raw: raw, Err: errors.New("no JSON object found in response")}
	}
	if err := schema.Validate(schema.AgentOutput, []byte(doc)); err != nil {
		return nil, &MalformedOutputError{Raw: raw, Err: err}
	}
	var out model.AgentOutput
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, &MalformedOutputError{Raw: raw, Err: err}
	}
	return &out, nil
}
