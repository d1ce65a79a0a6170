package ruleengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const rulesetSchemaURL = "https://eapproval.local/schemas/ruleset.json"

// rulesetSchema describes the shape of a ruleset file. Fields are optional
// unless listed in "required"; defaults are applied by the typed decode.
// The doc_no pattern presence is checked separately so its error is explicit.
const rulesetSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "version": {"type": ["string", "number"]},
    "updated_at": {"type": "string"},
    "description": {"type": "string"},
    "patterns": {
      "type": ["object", "null"],
      "properties": {"doc_no": {"type": ["string", "null"]}}
    },
    "doc_types": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["doc_type"],
        "properties": {
          "doc_type": {"type": "string", "minLength": 1},
          "label": {"type": ["string", "null"]}
        }
      }
    },
    "approval_requirements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["doc_type"],
        "properties": {
          "doc_type": {"type": "string", "minLength": 1},
          "min_amount": {"type": ["number", "null"]},
          "max_amount": {"type": ["number", "null"]},
          "required_roles": {"$ref": "#/$defs/codes"},
          "allow_delegation_for": {"$ref": "#/$defs/codes"}
        }
      }
    },
    "attachment_requirements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["doc_type"],
        "properties": {
          "doc_type": {"type": "string", "minLength": 1},
          "conditions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["type"],
              "properties": {
                "type": {"type": "string", "minLength": 1},
                "min_count": {"type": ["integer", "null"], "minimum": 0},
                "required_risk_flags": {"$ref": "#/$defs/codes"},
                "note": {"type": ["string", "null"]}
              }
            }
          }
        }
      }
    },
    "risk_requirements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["risk_flag"],
        "properties": {
          "risk_flag": {"type": "string", "minLength": 1},
          "doc_types": {"$ref": "#/$defs/codes"},
          "required_roles": {"$ref": "#/$defs/codes"},
          "required_attachments": {"$ref": "#/$defs/codes"},
          "note": {"type": ["string", "null"]}
        }
      }
    }
  },
  "$defs": {
    "codes": {
      "type": ["array", "null"],
      "items": {"type": "string"}
    }
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(rulesetSchemaURL, strings.NewReader(rulesetSchema)); err != nil {
		return nil, fmt.Errorf("failed to add ruleset schema: %w", err)
	}
	return c.Compile(rulesetSchemaURL)
})

// validateShape decodes raw as generic JSON and checks it against the ruleset
// schema. Decoding failures yield a ParseError, shape violations a SchemaError.
func validateShape(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &ParseError{Err: err}
	}
	// Trailing data after the top-level value is malformed JSON too.
	if dec.More() {
		return &ParseError{Err: fmt.Errorf("unexpected data after top-level value")}
	}

	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("ruleset schema unavailable: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return &SchemaError{Reason: "schema violation", Err: err}
	}
	return nil
}
