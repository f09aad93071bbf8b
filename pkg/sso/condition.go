package sso

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// conditionEnv is the only state visible to a group mapping condition
type conditionEnv struct {
	Profile  interface{}              `expr:"profile"`
	JSONPath func(string) interface{} `expr:"jsonPath"`
}

// Condition is a compiled group mapping condition
type Condition struct {
	source  string
	program *vm.Program
}

// CompileCondition compiles a boolean condition over a profile document.
// Path literals such as $.email, $.given-name or $.groups[0] can be used as
// values; the whole document is also available as profile. A dotted key may
// contain inner hyphens, so subtraction needs spaces ($.count - 1). Keys with
// other characters use the bracket form: $['odd key'].
func CompileCondition(source string) (*Condition, error) {
	rewritten, paths, err := rewritePathLiterals(source)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := ValidatePath(p); err != nil {
			return nil, fmt.Errorf("invalid path in condition: %w", err)
		}
	}

	program, err := expr.Compile(rewritten, expr.Env(conditionEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid condition %q: %w", source, err)
	}

	return &Condition{source: source, program: program}, nil
}

// Evaluate runs the condition against a decoded profile document
func (c *Condition) Evaluate(doc interface{}) (bool, error) {
	env := conditionEnv{
		Profile: normalizeNumbers(doc),
		JSONPath: func(path string) interface{} {
			value, ok := lookup(doc, path)
			if !ok {
				return nil
			}
			return normalizeNumbers(value)
		},
	}

	out, err := expr.Run(c.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", c.source, err)
	}

	match, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return a boolean", c.source)
	}
	return match, nil
}

// String returns the condition as configured
func (c *Condition) String() string {
	return c.source
}

// rewritePathLiterals replaces every $-path outside string literals with a
// jsonPath("...") call and returns the paths it found
func rewritePathLiterals(source string) (string, []string, error) {
	var (
		out   strings.Builder
		paths []string
	)

	for i := 0; i < len(source); {
		ch := source[i]

		switch {
		case ch == '"' || ch == '\'' || ch == '`':
			end, err := skipStringLiteral(source, i)
			if err != nil {
				return "", nil, err
			}
			out.WriteString(source[i:end])
			i = end

		case ch == '$' && isPathStart(source, i+1):
			end, err := scanPath(source, i+1)
			if err != nil {
				return "", nil, err
			}
			path := source[i:end]
			paths = append(paths, path)
			out.WriteString("jsonPath(")
			out.WriteString(strconv.Quote(path))
			out.WriteString(")")
			i = end

		default:
			out.WriteByte(ch)
			i++
		}
	}

	return out.String(), paths, nil
}

// isPathStart reports whether the $ before offset i begins a path literal
// rather than an identifier such as $env
func isPathStart(source string, i int) bool {
	if i >= len(source) {
		return true
	}
	ch := source[i]
	return ch == '.' || ch == '[' || !isIdentChar(ch)
}

func scanPath(source string, i int) (int, error) {
	for i < len(source) {
		switch ch := source[i]; {
		case ch == '.':
			i++
			for i < len(source) {
				if isIdentChar(source[i]) ||
					(source[i] == '-' && isIdentChar(source[i-1]) && i+1 < len(source) && isIdentChar(source[i+1])) {
					i++
					continue
				}
				break
			}
		case ch == '[':
			end := i + 1
			if end < len(source) && (source[end] == '\'' || source[end] == '"') {
				quoted, err := skipStringLiteral(source, end)
				if err != nil {
					return 0, err
				}
				end = quoted
			}
			closeAt := strings.IndexByte(source[end:], ']')
			if closeAt < 0 {
				return 0, fmt.Errorf("unterminated bracket in %q", source)
			}
			i = end + closeAt + 1
		default:
			return i, nil
		}
	}
	return i, nil
}

func skipStringLiteral(source string, start int) (int, error) {
	quote := source[start]
	for i := start + 1; i < len(source); i++ {
		switch source[i] {
		case '\\':
			if quote != '`' {
				i++
			}
		case quote:
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated string literal in %q", source)
}

func isIdentChar(ch byte) bool {
	return ch == '_' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9')
}

// normalizeNumbers converts json.Number values so conditions can compare
// them against numeric literals
func normalizeNumbers(node interface{}) interface{} {
	switch v := node.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, child := range v {
			out[k] = normalizeNumbers(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			out[i] = normalizeNumbers(child)
		}
		return out
	default:
		return v
	}
}
