package structured

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema names, one per stage output shape.
const (
	SchemaPM  = "pm"
	SchemaDev = "dev"
	SchemaQA  = "qa"
)

// Stage output schemas. Required fields and minimum list lengths
// mirror the output contracts; extra fields are tolerated because
// models decorate their output and rejecting that would defeat the
// degrade-rather-than-fail policy.
var schemaSources = map[string]string{
	SchemaPM: `{
		"type": "object",
		"required": ["summary", "acceptance_criteria", "plan", "assumptions"],
		"properties": {
			"summary": {"type": "string"},
			"acceptance_criteria": {"type": "array", "minItems": 1, "items": {"type": "string"}},
			"plan": {"type": "array", "minItems": 1, "items": {"type": "string"}},
			"assumptions": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	SchemaDev: `{
		"type": "object",
		"required": ["files", "notes"],
		"properties": {
			"files": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["path", "content", "language"],
					"properties": {
						"path": {"type": "string"},
						"content": {"type": "string"},
						"language": {"type": "string"}
					}
				}
			},
			"notes": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	SchemaQA: `{
		"type": "object",
		"required": ["verdict", "findings", "suggested_changes"],
		"properties": {
			"verdict": {"enum": ["pass", "fail", "needs-human"]},
			"findings": {"type": "array", "items": {"type": "string"}},
			"suggested_changes": {"type": "array", "items": {"type": "string"}}
		}
	}`,
}

// SchemaNames lists the stage schema names in stage order.
func SchemaNames() []string {
	return []string{SchemaPM, SchemaDev, SchemaQA}
}

// SchemaSource returns the JSON Schema document for a stage, for
// read-only exposure. The second return is false for unknown names.
func SchemaSource(name string) (string, bool) {
	src, ok := schemaSources[name]
	return src, ok
}

// Parser validates extracted objects against the stage schemas.
type Parser struct {
	schemas map[string]*jsonschema.Schema
}

// NewParser compiles the stage schemas. Compilation failure is a
// programming error surfaced at startup, not at parse time.
func NewParser() (*Parser, error) {
	compiler := jsonschema.NewCompiler()
	for name, source := range schemaSources {
		if err := compiler.AddResource(name+".json", strings.NewReader(source)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", name, err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema, len(schemaSources))
	for name := range schemaSources {
		sch, err := compiler.Compile(name + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", name, err)
		}
		schemas[name] = sch
	}
	return &Parser{schemas: schemas}, nil
}

// Parse extracts the first JSON object from text and validates it
// against the named schema. Returns nil when extraction, decoding, or
// validation fails — the caller synthesizes the documented fallback.
func (p *Parser) Parse(text, schemaName string) json.RawMessage {
	sch, ok := p.schemas[schemaName]
	if !ok {
		slog.Error("Unknown stage schema requested", "schema", schemaName)
		return nil
	}

	raw, ok := ExtractJSONObject(text)
	if !ok {
		slog.Debug("No balanced JSON object in model output", "schema", schemaName)
		return nil
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		slog.Debug("Extracted object is not valid JSON", "schema", schemaName, "error", err)
		return nil
	}
	if err := sch.Validate(value); err != nil {
		slog.Debug("Model output failed schema validation", "schema", schemaName, "error", err)
		return nil
	}
	return json.RawMessage(raw)
}
