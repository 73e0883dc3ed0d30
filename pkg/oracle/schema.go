package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dtnitsch/challenge-miner/models"
)

// responseSchema is the contract every oracle response must satisfy: an
// array of records, each with at minimum a non-empty statement and a
// confidence in [0,1].
const responseSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["challenge_statement", "confidence"],
    "properties": {
      "challenge_title": {"type": "string"},
      "challenge_statement": {"type": "string", "minLength": 1},
      "sdg_goals": {"type": "array", "items": {"type": "integer", "minimum": 1, "maximum": 17}},
      "geography": {"type": "string"},
      "target_groups": {"type": "array", "items": {"type": "string"}},
      "sectors": {"type": "array", "items": {"type": "string"}},
      "scale_numbers": {"type": "object"},
      "root_causes": {"type": "array", "items": {"type": "string"}},
      "constraints": {"type": "array", "items": {"type": "string"}},
      "evidence_quotes": {"type": "array", "items": {"type": "string"}, "maxItems": 2},
      "confidence": {"type": "number", "minimum": 0, "maximum": 1}
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("response.json", strings.NewReader(responseSchema)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("response.json")
	})
	return compiledSchema, compileErr
}

// ParseRecords validates raw oracle output against the response contract
// and decodes it. Contract breaks surface as SchemaViolationError; they are
// never retried because the oracle is schema-enforced already.
func ParseRecords(raw []byte) ([]Record, error) {
	s, err := schema()
	if err != nil {
		return nil, err
	}

	var untyped any
	if err := json.Unmarshal(raw, &untyped); err != nil {
		return nil, &models.SchemaViolationError{Detail: preview(raw), Cause: err}
	}
	if err := s.Validate(untyped); err != nil {
		return nil, &models.SchemaViolationError{Detail: preview(raw), Cause: err}
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &models.SchemaViolationError{Detail: preview(raw), Cause: err}
	}
	return records, nil
}

func preview(raw []byte) string {
	const max = 200
	s := string(raw)
	if len(s) > max {
		return s[:max]
	}
	return s
}
