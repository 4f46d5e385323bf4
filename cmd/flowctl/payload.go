package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/disputeflow/internal/workflow/engine"
)

type keyValueFlag map[string]string

func (kv *keyValueFlag) String() string {
	if kv == nil || len(*kv) == 0 {
		return ""
	}
	var pairs []string
	for key, value := range *kv {
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}

func (kv *keyValueFlag) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return fmt.Errorf("payload key is empty in %q", value)
	}
	if *kv == nil {
		*kv = keyValueFlag{}
	}
	(*kv)[key] = parts[1]
	return nil
}

// controlFlags are the dedicated flags for the keys the engine interprets.
type controlFlags struct {
	Decision      string
	CurrentNodeID string
	ForceNextNode string
}

// buildPayload layers the payload file, -set overrides and control flags, in
// that order.
func buildPayload(payloadFile string, overrides keyValueFlag, control controlFlags) (engine.Payload, error) {
	payload := engine.Payload{}
	if path := strings.TrimSpace(payloadFile); path != "" {
		fileValues, err := readPayloadFile(path)
		if err != nil {
			return nil, err
		}
		for key, value := range fileValues {
			payload[key] = value
		}
	}
	for key, raw := range overrides {
		payload[key] = parseScalar(raw)
	}
	if value := strings.TrimSpace(control.Decision); value != "" {
		payload[engine.KeyDecision] = value
	}
	if value := strings.TrimSpace(control.CurrentNodeID); value != "" {
		payload[engine.KeyCurrentNodeID] = value
	}
	if value := strings.TrimSpace(control.ForceNextNode); value != "" {
		payload[engine.KeyForceNextNode] = value
	}
	return payload, nil
}

// parseScalar decodes raw as a YAML scalar so amount=250 arrives as a number.
// Anything that does not decode to a scalar is kept as the raw string.
func parseScalar(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	switch value.(type) {
	case nil:
		return raw
	case map[string]any, []any:
		return raw
	default:
		return value
	}
}

func readPayloadFile(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open payload file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, expected a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("payload file %s is empty", path)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse payload file %s: %w", path, err)
	}
	return raw, nil
}
