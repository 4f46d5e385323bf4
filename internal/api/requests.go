package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kingrea/disputeflow/internal/workflow/engine"
)

var validate = validator.New()

// RunRequest carries an inline graph and its payload.
type RunRequest struct {
	Nodes   json.RawMessage `json:"nodes"`
	Edges   json.RawMessage `json:"edges"`
	Payload map[string]any  `json:"payload"`
}

// WorkflowRunRequest runs a stored workflow.
type WorkflowRunRequest struct {
	Payload map[string]any `json:"payload"`
}

// controlFields mirrors the payload keys the engine interprets.
type controlFields struct {
	Decision      string `validate:"omitempty,max=256"`
	CurrentNodeID string `validate:"omitempty,max=256"`
	ForceNextNode string `validate:"omitempty,max=256"`
}

// validatePayload rejects control fields that are not strings or exceed the
// length bound.
func validatePayload(payload map[string]any) (engine.Payload, error) {
	var fields controlFields
	targets := map[string]*string{
		engine.KeyDecision:      &fields.Decision,
		engine.KeyCurrentNodeID: &fields.CurrentNodeID,
		engine.KeyForceNextNode: &fields.ForceNextNode,
	}
	for key, target := range targets {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("payload.%s: must be a string", key)
		}
		*target = strings.TrimSpace(s)
	}
	if err := validate.Struct(fields); err != nil {
		return nil, formatValidationError(err)
	}
	return engine.Payload(payload).Clone(), nil
}

var fieldKeys = map[string]string{
	"Decision":      engine.KeyDecision,
	"CurrentNodeID": engine.KeyCurrentNodeID,
	"ForceNextNode": engine.KeyForceNextNode,
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	for _, e := range validationErrs {
		field := "payload." + fieldKeys[e.Field()]
		switch e.Tag() {
		case "max":
			return fmt.Errorf("%s: must not exceed %s characters", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
