// Package structured extracts JSON objects embedded in free-form
// model text and validates them against per-stage schemas. The parser
// is intentionally forgiving about surrounding prose and code fences,
// and strict about the object itself; callers substitute a documented
// fallback when it gives up.
package structured

import (
	"regexp"
	"strings"
)

// fencePattern matches a triple-backtick block with an empty or json
// language tag. Compiled once.
var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\n(.*?)```")

// ExtractJSONObject returns the first JSON object embedded in text.
// Strategy order:
//  1. the content of the first ``` or ```json fence, when it holds a
//     balanced object;
//  2. the balanced range starting at the first '{' in the raw text.
//
// Returns ok=false when no balanced object exists anywhere.
func ExtractJSONObject(text string) (string, bool) {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		if obj, ok := balancedObject(m[1]); ok {
			return obj, true
		}
	}
	return balancedObject(text)
}

// balancedObject scans from the first '{' to its matching '}',
// respecting string literals and escapes. LLMs pad objects with prose
// on both sides; trailing text after the close brace is ignored.
func balancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
