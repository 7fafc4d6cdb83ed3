package intent

import (
	"encoding/json"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// Repair converts raw model text into a decision that satisfies the
// shape contract, or reports failure so the caller can fall back. The
// strategy chain is total and ordered:
//
//  1. fenced-block extraction
//  2. balanced-brace extraction (string-literal aware)
//  3. conservative escape repair of the best candidate
//
// A candidate that parses but violates the shape contract is a
// non-match, not an error; the chain simply continues. Repair never
// panics and never returns a partial decision.
func Repair(raw string, validNames []string) (*Decision, bool) {
	candidates := make([]string, 0, 2)

	if fenced := extractFencedBlock(raw); fenced != "" {
		candidates = append(candidates, fenced)
	}
	if obj := extractBalancedObject(raw); obj != "" {
		candidates = append(candidates, obj)
	}

	for _, candidate := range candidates {
		if d, err := decodeDecision(candidate, validNames); err == nil {
			return d, true
		}
	}

	// Escape repair on each candidate, best (earliest strategy) first.
	for _, candidate := range candidates {
		repaired := repairEscapes(candidate)
		if d, err := decodeDecision(repaired, validNames); err == nil {
			return d, true
		}
		// Last resort for layout problems strict JSON rejects but
		// JSON5 tolerates, such as unquoted keys.
		if d, ok := decodeLenient(repaired, validNames); ok {
			return d, true
		}
	}

	return nil, false
}

// extractFencedBlock returns the contents of the first markdown code
// fence, preferring one tagged as json.
func extractFencedBlock(s string) string {
	start := strings.Index(s, "```json")
	if start >= 0 {
		start += len("```json")
	} else {
		start = strings.Index(s, "```")
		if start < 0 {
			return ""
		}
		start += len("```")
	}

	rest := s[start:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// extractBalancedObject returns the first balanced top-level {...} span,
// tracking nesting depth and skipping braces inside string literals.
func extractBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				return s[start : i+1]
			}
		}
	}
	return ""
}

// repairEscapes conservatively rewrites the characters that most often
// break model-emitted JSON: raw control characters inside string
// values, unescaped embedded quotes, and trailing commas before a
// closing bracket. Anything else is left alone.
func repairEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]

		if !inString {
			if c == '"' {
				inString = true
			}
			if c == ',' && nextStructural(s, i+1) {
				// Trailing comma; drop it.
				continue
			}
			b.WriteByte(c)
			continue
		}

		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}

		switch c {
		case '\\':
			escaped = true
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '"':
			if stringEndsHere(s, i+1) {
				inString = false
				b.WriteByte(c)
			} else {
				// Embedded quote the model forgot to escape.
				b.WriteString(`\"`)
			}
		default:
			if c < 0x20 {
				// Other raw control characters are dropped.
				continue
			}
			b.WriteByte(c)
		}
	}

	return b.String()
}

// nextStructural reports whether the next non-whitespace byte at or
// after pos closes an object or array, which makes a preceding comma
// trailing.
func nextStructural(s string, pos int) bool {
	for i := pos; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}

// stringEndsHere reports whether a closing quote at the previous byte
// is plausible: the next non-whitespace byte must be JSON structure.
func stringEndsHere(s string, pos int) bool {
	for i := pos; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', '}', ']', ':':
			return true
		default:
			return false
		}
	}
	return true
}

// decodeLenient retries a candidate with a JSON5 decoder, then re-checks
// the decision shape contract against strict JSON.
func decodeLenient(candidate string, validNames []string) (*Decision, bool) {
	var loose map[string]any
	if err := json5.Unmarshal([]byte(candidate), &loose); err != nil {
		return nil, false
	}
	normalized, err := json.Marshal(loose)
	if err != nil {
		return nil, false
	}
	d, err := decodeDecision(string(normalized), validNames)
	if err != nil {
		return nil, false
	}
	return d, true
}
