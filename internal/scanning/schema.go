package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// receiptSchema describes what a model must return before its answer is
// trusted. Optional fields may be null because the prompt asks for null
// when a field is missing.
func receiptSchema() map[string]any {
	nullableString := map[string]any{"type": []string{"string", "null"}}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"merchant":   nullableString,
			"amount":     map[string]any{"type": "number", "minimum": 0},
			"pay_time":   nullableString,
			"category":   nullableString,
			"bill_type":  map[string]any{"type": []string{"integer", "null"}, "minimum": 1, "maximum": 2},
			"platform":   nullableString,
			"pay_method": nullableString,
			"order_no":   nullableString,
			"items": map[string]any{
				"type": []string{"array", "null"},
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":     nullableString,
						"price":    map[string]any{"type": []string{"number", "null"}},
						"quantity": map[string]any{"type": []string{"integer", "null"}, "minimum": 0},
					},
				},
			},
			"confidence": map[string]any{"type": []string{"number", "null"}, "minimum": 0, "maximum": 1},
		},
		"required": []string{"amount"},
	}
}

var compiledReceiptSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(receiptSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("receipt.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("receipt.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// validateReceiptJSON checks a model answer against receiptSchema
func validateReceiptJSON(data []byte) error {
	schema, err := compiledReceiptSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
