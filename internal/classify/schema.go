package classify

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// verdictSchema is the strict output contract for the extraction service.
// Requesting a bounded schema instead of free text avoids brittle parsing;
// anything that fails it is treated as a degraded classification.
const verdictSchema = `{
  "type": "object",
  "required": ["isJobRelated", "confidence"],
  "properties": {
    "isJobRelated": { "type": "boolean" },
    "company":      { "type": "string" },
    "position":     { "type": "string" },
    "status":       { "type": "string" },
    "portal":       { "type": "string" },
    "confidence":   { "type": "number", "minimum": 0, "maximum": 1 }
  }
}`

var verdictSchemaLoader = gojsonschema.NewStringLoader(verdictSchema)

// validateVerdictJSON checks the raw response document against the verdict schema.
func validateVerdictJSON(document string) error {
	result, err := gojsonschema.Validate(verdictSchemaLoader, gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("failed to validate verdict: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("verdict schema violation: %s", errs[0].String())
		}
		return fmt.Errorf("verdict schema violation")
	}
	return nil
}
