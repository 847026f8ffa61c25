// Package parser implements the two output parsers every chain in
// this engine composes an LLM with: Clean, which strips reasoning
// scratchpad and markup, and JSON-struct, which extracts a single
// well-formed JSON object out of an otherwise noisy completion.
package parser

import (
	"regexp"
	"strings"

	"chat2sql-go/internal/pipeline"
)

var (
	thinkTagRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	anyTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	codeFenceRe = regexp.MustCompile("(?i)```[a-z]*")
)

// Clean removes <think>...</think> reasoning spans and any remaining
// markup tags, then collapses runs of whitespace to a single space.
// It is idempotent: Clean(Clean(x)) == Clean(x).
func Clean(text string) string {
	stripped := thinkTagRe.ReplaceAllString(text, "")
	stripped = anyTagRe.ReplaceAllString(stripped, "")
	stripped = whitespaceRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}

// JSONStruct strips code-fence markers, removes markup tags, then
// extracts the first maximal brace-balanced {...} substring. The
// returned string is the raw JSON text; callers unmarshal it. It
// fails with a parse_error if no balanced object exists in text.
func JSONStruct(text string) (string, error) {
	stripped := codeFenceRe.ReplaceAllString(text, "")
	stripped = anyTagRe.ReplaceAllString(stripped, "")
	stripped = strings.TrimSpace(stripped)

	obj, ok := firstBalancedObject(stripped)
	if !ok {
		return "", pipeline.NewParseError("no balanced JSON object found in completion", nil)
	}
	return obj, nil
}

// firstBalancedObject scans s for the first substring starting at a
// '{' and ending at its matching '}', tracking brace depth so nested
// objects and braces inside string literals do not terminate the scan
// early.
func firstBalancedObject(s string) (string, bool) {
	return firstBalanced(s, '{', '}')
}

// JSONArray strips code-fence markers and markup the same way
// JSONStruct does, then extracts the first maximal bracket-balanced
// [...] substring. Used by chains whose completion is a JSON array
// (e.g. a list of sub-queries) rather than a single object.
func JSONArray(text string) (string, error) {
	stripped := codeFenceRe.ReplaceAllString(text, "")
	stripped = anyTagRe.ReplaceAllString(stripped, "")
	stripped = strings.TrimSpace(stripped)

	arr, ok := firstBalanced(stripped, '[', ']')
	if !ok {
		return "", pipeline.NewParseError("no balanced JSON array found in completion", nil)
	}
	return arr, nil
}

// firstBalanced scans s for the first substring starting at open and
// ending at its matching close, tracking nesting depth so inner
// occurrences and delimiters inside string literals do not terminate
// the scan early.
func firstBalanced(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
