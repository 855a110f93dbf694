package agent

import (
	"encoding/json"
	"fmt"

	"github.com/tradepsych/insight/internal/providers"
	"github.com/tradepsych/insight/internal/schema"
)

// ToolDescriptor is the single function a structured invocation offers
// the model. Its parameters are derived from Shape.
type ToolDescriptor struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Shape       *schema.Shape `json:"-"`
}

// Parameters returns the JSON Schema for the tool's arguments.
func (d ToolDescriptor) Parameters() map[string]any {
	if d.Shape == nil {
		return map[string]any{"type": "object"}
	}
	return d.Shape.Parameters()
}

// Validate checks the descriptor is usable.
func (d ToolDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Shape == nil {
		return fmt.Errorf("tool %s has no shape", d.Name)
	}
	return nil
}

// providerTool renders the descriptor for a provider request.
func (d ToolDescriptor) providerTool() (providers.Tool, error) {
	params, err := json.Marshal(d.Parameters())
	if err != nil {
		return providers.Tool{}, fmt.Errorf("encode parameters for %s: %w", d.Name, err)
	}
	return providers.NewFunctionTool(d.Name, d.Description, params), nil
}

// responseFormat renders the descriptor as a json_schema response format.
func (d ToolDescriptor) responseFormat() (*providers.ResponseFormat, error) {
	params, err := json.Marshal(d.Parameters())
	if err != nil {
		return nil, fmt.Errorf("encode schema for %s: %w", d.Name, err)
	}
	return providers.NewJSONSchemaFormat(d.Name, d.Description, params)
}

// MarshalJSON includes the parameters for listing endpoints.
func (d ToolDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	}{d.Name, d.Description, d.Parameters()})
}
