package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseJSON implements spec §4.1's three-stage parse-fallback chain:
// direct decode, then markdown-fence stripping, then a balanced-scan
// extraction of the outermost JSON value. Returns the canonicalized
// JSON bytes on success.
func ParseJSON(raw []byte) ([]byte, error) {
	if v, ok := tryDirect(raw); ok {
		return v, nil
	}
	stripped := stripFences(raw)
	if v, ok := tryDirect(stripped); ok {
		return v, nil
	}
	if v, ok := extractBalanced(stripped); ok {
		return v, nil
	}
	return nil, fmt.Errorf("oracle: could not parse JSON from %d bytes of output", len(raw))
}

func tryDirect(b []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return nil, false
	}
	if !json.Valid(trimmed) {
		return nil, false
	}
	return trimmed, true
}

// stripFences removes a leading/trailing ```json ... ``` or ``` ... ```
// code fence, if present.
func stripFences(b []byte) []byte {
	s := strings.TrimSpace(string(b))
	if !strings.HasPrefix(s, "```") {
		return b
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return b
	}
	// drop the opening fence line (``` or ```json)
	lines = lines[1:]
	// drop a trailing fence line if present
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return []byte(strings.Join(lines, "\n"))
}

// extractBalanced finds the first top-level '{' or '[' and scans forward
// counting bracket depth (respecting quoted strings) to find its
// matching close, then validates the slice as JSON via gjson before
// accepting it — this is the gjson-assisted "balanced scan" fallback
// named in spec §4.1.
func extractBalanced(b []byte) ([]byte, bool) {
	s := string(b)
	start := -1
	var openCh, closeCh byte
	for i, c := range s {
		if c == '{' || c == '[' {
			start = i
			openCh = byte(c)
			if c == '{' {
				closeCh = '}'
			} else {
				closeCh = ']'
			}
			break
		}
	}
	if start == -1 {
		return nil, false
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
		case byte(openCh):
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				candidate := s[start : i+1]
				if !gjson.Valid(candidate) {
					return nil, false
				}
				return []byte(candidate), true
			}
		}
	}
	return nil, false
}
