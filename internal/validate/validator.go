// Package validate checks classified tool parameters against the
// tool's declared input schema before any invocation happens.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lumenlab/mermhost/internal/intent"
	"github.com/lumenlab/mermhost/internal/registry"
)

// TypeError describes one argument whose JSON type does not match the
// schema's declared type.
type TypeError struct {
	Field    string
	Expected string
	Actual   string
}

func (e TypeError) String() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// Outcome is the full validation verdict for one decision. The host
// must not invoke unless OK is true.
type Outcome struct {
	OK            bool
	ToolName      string
	UnknownTool   bool
	MissingFields []string
	TypeErrors    []TypeError
	Violations    []string
}

// Validator validates decisions against the capability snapshot's
// tool schemas. Compiled schemas are cached process-wide; descriptors
// are immutable so the cache never needs invalidation.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate checks a tool decision against the snapshot. The tool must
// exist, every required parameter must be present, and each supplied
// parameter must match its declared JSON type. Missing fields and type
// errors are reported in the schema's property order so messages read
// the way the tool author wrote the schema.
func (v *Validator) Validate(decision *intent.Decision, snap *registry.Snapshot) Outcome {
	out := Outcome{ToolName: decision.SelectedTool}

	tool := snap.Tool(decision.SelectedTool)
	if tool == nil {
		out.UnknownTool = true
		return out
	}

	if len(tool.InputSchema) == 0 {
		out.OK = true
		return out
	}

	props, required, err := parseSchema(tool.InputSchema)
	if err != nil {
		out.Violations = append(out.Violations, fmt.Sprintf("input schema unusable: %v", err))
		return out
	}

	requiredSet := make(map[string]bool, len(required))
	for _, name := range required {
		requiredSet[name] = true
	}

	params := decision.ToolParameters
	for _, p := range props {
		value, present := params[p.name]
		if !present {
			if requiredSet[p.name] {
				out.MissingFields = append(out.MissingFields, p.name)
			}
			continue
		}
		if p.typ == "" {
			continue
		}
		if actual := jsonTypeOf(value); !typeMatches(p.typ, actual, value) {
			out.TypeErrors = append(out.TypeErrors, TypeError{
				Field:    p.name,
				Expected: p.typ,
				Actual:   actual,
			})
		}
	}

	if len(out.MissingFields) > 0 || len(out.TypeErrors) > 0 {
		return out
	}

	// The walk above covers the common failures with ordered, precise
	// messages; the compiled schema catches everything else (enums,
	// ranges, nested object constraints).
	compiled, err := compileSchema(tool.InputSchema)
	if err != nil {
		out.Violations = append(out.Violations, fmt.Sprintf("compile input schema: %v", err))
		return out
	}
	if err := compiled.Validate(normalize(params)); err != nil {
		out.Violations = append(out.Violations, err.Error())
		return out
	}

	out.OK = true
	return out
}

type property struct {
	name string
	typ  string
}

// parseSchema extracts the top-level properties in declaration order,
// plus the required list. A map decode would lose the order, so this
// walks the token stream.
func parseSchema(raw json.RawMessage) ([]property, []string, error) {
	if len(raw) == 0 {
		return nil, nil, nil
	}

	var shell struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	}
	if err := json.Unmarshal(raw, &shell); err != nil {
		return nil, nil, err
	}
	if len(shell.Properties) == 0 {
		return nil, shell.Required, nil
	}

	dec := json.NewDecoder(bytes.NewReader(shell.Properties))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if tok != json.Delim('{') {
		return nil, nil, fmt.Errorf("properties is not an object")
	}

	var props []property
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("non-string property key")
		}
		var def struct {
			Type string `json:"type"`
		}
		if err := dec.Decode(&def); err != nil {
			return nil, nil, fmt.Errorf("property %s: %w", name, err)
		}
		props = append(props, property{name: name, typ: def.Type})
	}

	return props, shell.Required, nil
}

// jsonTypeOf names the JSON type of a decoded Go value.
func jsonTypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, int, int64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func typeMatches(expected, actual string, value any) bool {
	if expected == actual {
		return true
	}
	if expected == "integer" && actual == "number" {
		f, ok := value.(float64)
		return ok && f == float64(int64(f))
	}
	return false
}

// normalize round-trips params through JSON so the compiled schema sees
// the canonical any-typed shape regardless of how the map was built.
func normalize(params map[string]any) any {
	payload, err := json.Marshal(params)
	if err != nil {
		return params
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return params
	}
	return decoded
}

var schemaCache sync.Map

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
