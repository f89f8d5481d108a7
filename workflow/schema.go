package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// metaSchema is the JSON Schema every workflow definition must satisfy
// before the typed unmarshal and semantic checks run.
const metaSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["workflow_type", "triads", "enforcement"],
  "properties": {
    "workflow_type": {"type": "string", "minLength": 1},
    "triads": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "string", "pattern": "^[a-zA-Z0-9-]+$"},
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string"},
          "required": {"type": "boolean"}
        }
      }
    },
    "enforcement": {
      "type": "object",
      "required": ["mode"],
      "properties": {
        "mode": {"enum": ["strict", "recommended", "optional"]},
        "per_triad_overrides": {
          "type": "object",
          "additionalProperties": {"enum": ["strict", "recommended", "optional"]}
        }
      }
    },
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"enum": ["sequential_progression", "conditional_requirement"]},
          "gate_triad": {"type": "string"},
          "before_triad": {"type": "string"},
          "bypass_allowed": {"type": "boolean"},
          "condition": {
            "type": "object",
            "required": ["type", "metrics"],
            "properties": {
              "type": {"type": "string"},
              "metrics": {
                "type": "object",
                "properties": {
                  "content_created": {
                    "type": "object",
                    "required": ["threshold", "units"],
                    "properties": {
                      "threshold": {"type": "integer", "minimum": 0},
                      "units": {"type": "string"}
                    }
                  },
                  "components_modified": {"type": "integer", "minimum": 0},
                  "complexity": {"enum": ["minimal", "moderate", "substantial"]}
                }
              }
            }
          }
        }
      }
    }
  }
}`

var compiledMetaSchema = mustCompileMetaSchema()

func mustCompileMetaSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(metaSchema))
	if err != nil {
		panic(fmt.Sprintf("parse workflow meta-schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("workflow-schema.json", doc); err != nil {
		panic(fmt.Sprintf("add workflow meta-schema: %v", err))
	}
	schema, err := compiler.Compile("workflow-schema.json")
	if err != nil {
		panic(fmt.Sprintf("compile workflow meta-schema: %v", err))
	}
	return schema
}

// LoadSchema reads and validates a workflow definition from a JSON file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow schema: %w", err)
	}
	return ParseSchema(data)
}

// ParseSchema validates raw JSON against the meta-schema, then applies
// the semantic checks the meta-schema cannot express.
func ParseSchema(data []byte) (*Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrSchemaInvalid, err)
	}
	if err := compiledMetaSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}

	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSchemaInvalid, err)
	}
	if err := schema.check(); err != nil {
		return nil, err
	}
	return &schema, nil
}

// check enforces cross-field constraints: unique triad ids, rule
// references resolving to declared triads, override keys resolving too.
func (s *Schema) check() error {
	seen := make(map[string]bool, len(s.Triads))
	for _, t := range s.Triads {
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate triad id %q", ErrSchemaInvalid, t.ID)
		}
		seen[t.ID] = true
	}

	for id := range s.Enforcement.PerTriadOverrides {
		if !seen[id] {
			return fmt.Errorf("%w: enforcement override for unknown triad %q", ErrSchemaInvalid, id)
		}
	}

	for i, r := range s.Rules {
		switch r.Type {
		case RuleSequentialProgression:
			// No referenced triads.
		case RuleConditionalRequirement:
			if r.GateTriad == "" || r.BeforeTriad == "" {
				return fmt.Errorf("%w: rule %d: conditional_requirement needs gate_triad and before_triad", ErrSchemaInvalid, i)
			}
			if !seen[r.GateTriad] {
				return fmt.Errorf("%w: rule %d references unknown triad %q", ErrSchemaInvalid, i, r.GateTriad)
			}
			if !seen[r.BeforeTriad] {
				return fmt.Errorf("%w: rule %d references unknown triad %q", ErrSchemaInvalid, i, r.BeforeTriad)
			}
		default:
			return fmt.Errorf("%w: rule %d has unknown type %q", ErrSchemaInvalid, i, r.Type)
		}
	}
	return nil
}
