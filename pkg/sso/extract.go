package sso

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// pathSegment is one step of a path expression: a map key or a list index
type pathSegment struct {
	key     string
	index   int
	isIndex bool
}

// DecodeProfile decodes a JSON profile document. Numbers are kept as
// json.Number so identifiers render exactly as the provider sent them.
func DecodeProfile(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Extract evaluates a path expression against a document and renders the
// scalar it addresses. ok is false when the path is empty, malformed, or does
// not resolve to a scalar.
//
// Supported forms: $, $.a.b, $.list[0], $['key with spaces'], $["k"] and a
// bare top-level key such as email.
func Extract(doc interface{}, expression string) (value string, ok bool) {
	if strings.TrimSpace(expression) == "" {
		return "", false
	}

	segments, err := parsePath(expression)
	if err != nil {
		return "", false
	}

	node, found := walk(doc, segments)
	if !found {
		return "", false
	}
	return renderScalar(node)
}

// ValidatePath reports whether an expression is a well-formed path
func ValidatePath(expression string) error {
	_, err := parsePath(expression)
	return err
}

func lookup(doc interface{}, expression string) (interface{}, bool) {
	segments, err := parsePath(expression)
	if err != nil {
		return nil, false
	}
	return walk(doc, segments)
}

func walk(node interface{}, segments []pathSegment) (interface{}, bool) {
	for _, seg := range segments {
		switch current := node.(type) {
		case map[string]interface{}:
			key := seg.key
			if seg.isIndex {
				key = strconv.Itoa(seg.index)
			}
			next, ok := current[key]
			if !ok {
				return nil, false
			}
			node = next
		case []interface{}:
			if !seg.isIndex || seg.index < 0 || seg.index >= len(current) {
				return nil, false
			}
			node = current[seg.index]
		default:
			return nil, false
		}
	}
	return node, true
}

func renderScalar(node interface{}) (string, bool) {
	switch v := node.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

func parsePath(expression string) ([]pathSegment, error) {
	expr := strings.TrimSpace(expression)
	if expr == "" {
		return nil, fmt.Errorf("empty path")
	}

	switch {
	case strings.HasPrefix(expr, "$"):
		expr = expr[1:]
	case strings.HasPrefix(expr, "["):
	default:
		expr = "." + expr
	}

	var segments []pathSegment
	for i := 0; i < len(expr); {
		switch expr[i] {
		case '.':
			j := i + 1
			for j < len(expr) && expr[j] != '.' && expr[j] != '[' {
				j++
			}
			name := expr[i+1 : j]
			if name == "" {
				return nil, fmt.Errorf("empty key at offset %d in %q", i, expression)
			}
			segments = append(segments, pathSegment{key: name})
			i = j

		case '[':
			seg, next, err := parseBracket(expr, i)
			if err != nil {
				return nil, fmt.Errorf("%w in %q", err, expression)
			}
			segments = append(segments, seg)
			i = next

		default:
			return nil, fmt.Errorf("unexpected %q at offset %d in %q", expr[i], i, expression)
		}
	}

	return segments, nil
}

// parseBracket parses a [...] segment starting at expr[start] and returns
// the offset just past the closing bracket
func parseBracket(expr string, start int) (pathSegment, int, error) {
	i := start + 1
	if i >= len(expr) {
		return pathSegment{}, 0, fmt.Errorf("unterminated bracket")
	}

	if quote := expr[i]; quote == '\'' || quote == '"' {
		end := strings.IndexByte(expr[i+1:], quote)
		if end < 0 {
			return pathSegment{}, 0, fmt.Errorf("unterminated quoted key")
		}
		key := expr[i+1 : i+1+end]
		closeAt := i + 1 + end + 1
		if closeAt >= len(expr) || expr[closeAt] != ']' {
			return pathSegment{}, 0, fmt.Errorf("expected ] after quoted key")
		}
		return pathSegment{key: key}, closeAt + 1, nil
	}

	end := strings.IndexByte(expr[i:], ']')
	if end < 0 {
		return pathSegment{}, 0, fmt.Errorf("unterminated bracket")
	}
	raw := strings.TrimSpace(expr[i : i+end])
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return pathSegment{}, 0, fmt.Errorf("invalid index %q", raw)
	}
	return pathSegment{index: index, isIndex: true}, i + end + 1, nil
}
