// internal/common/validation/schema.go
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// proposalFormSchema constrains the raw negotiation form before any field
// coercion happens. Amounts arrive as strings or numbers from the client,
// so the schema only pins shape and presence; range checks live in the
// negotiation initiator.
var proposalFormSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"amount":          map[string]interface{}{"type": []string{"string", "number"}},
		"returnRate":      map[string]interface{}{"type": []string{"string", "number"}},
		"fundingType":     map[string]interface{}{"type": "string"},
		"exitStrategy":    map[string]interface{}{"type": "string", "enum": []string{"Sell", "Refinance"}},
		"lengthOfFunding": map[string]interface{}{"type": []string{"string", "number"}},
	},
	"required":             []string{"amount", "returnRate", "fundingType", "exitStrategy", "lengthOfFunding"},
	"additionalProperties": false,
}

// signupAttrsSchema constrains the attributes accepted at sign-up.
var signupAttrsSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"name":  map[string]interface{}{"type": "string", "maxLength": 120},
		"phone": map[string]interface{}{"type": "string", "maxLength": 32},
		"role":  map[string]interface{}{"type": "string", "enum": []string{"investor", "lender", "admin"}},
	},
	"required":             []string{"role"},
	"additionalProperties": false,
}

// ValidateProposalForm checks a raw proposal form against its schema.
func ValidateProposalForm(form map[string]interface{}) error {
	return validateAgainst(proposalFormSchema, form)
}

// ValidateSignupAttrs checks sign-up attributes against their schema.
func ValidateSignupAttrs(attrs map[string]interface{}) error {
	return validateAgainst(signupAttrsSchema, attrs)
}

func validateAgainst(schemaMap, data map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(schemaMap)
	documentLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("data validation failed: %v", errs)
	}

	return nil
}
