package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "mem://docparse/parse-response.schema.json"

// responseSchema describes a well-formed parse response. A success body
// must carry a parsedData array of row objects; failure bodies only need
// the success flag.
const responseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "message": {"type": ["string", "null"]},
    "parsedData": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "invoiceNumber": {"$ref": "#/definitions/scalar"},
          "date": {"$ref": "#/definitions/scalar"},
          "totalAmount": {"$ref": "#/definitions/scalar"}
        }
      }
    }
  },
  "definitions": {
    "scalar": {"type": ["string", "number", "boolean", "null"]}
  },
  "if": {"properties": {"success": {"const": true}}},
  "then": {"required": ["parsedData"]}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func loadSchema() {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, strings.NewReader(responseSchema)); err != nil {
		schemaErr = err
		return
	}
	schema, schemaErr = c.Compile(schemaURL)
}

// validateBody checks raw against the response schema.
func validateBody(raw []byte) error {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return fmt.Errorf("compile response schema: %w", schemaErr)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
