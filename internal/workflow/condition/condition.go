// Package condition evaluates node action filters against a runtime payload.
package condition

import (
	"math"
	"strconv"
	"strings"

	"github.com/kingrea/disputeflow/internal/workflow/graph"
)

// Comparators understood by Check. Anything else fails the filter.
const (
	Greater        = ">"
	GreaterOrEqual = ">="
	Less           = "<"
	LessOrEqual    = "<="
	Equal          = "=="
	NotEqual       = "!="
)

// Matches reports whether every filter on the node passes. A node without
// filters always matches.
func Matches(node graph.Node, payload map[string]any) bool {
	for _, filter := range node.ActionFilters {
		if !Check(filter, payload) {
			return false
		}
	}
	return true
}

// Check evaluates a single filter. A missing or nil payload field fails.
func Check(filter graph.Filter, payload map[string]any) bool {
	actual, ok := payload[filter.Field]
	if !ok || actual == nil {
		return false
	}
	switch strings.TrimSpace(filter.Comparator) {
	case Greater:
		return compareNumbers(actual, filter.Value, func(a, b float64) bool { return a > b })
	case GreaterOrEqual:
		return compareNumbers(actual, filter.Value, func(a, b float64) bool { return a >= b })
	case Less:
		return compareNumbers(actual, filter.Value, func(a, b float64) bool { return a < b })
	case LessOrEqual:
		return compareNumbers(actual, filter.Value, func(a, b float64) bool { return a <= b })
	case Equal:
		return toString(actual) == toString(filter.Value)
	case NotEqual:
		return toString(actual) != toString(filter.Value)
	default:
		return false
	}
}

func compareNumbers(actual, expected any, cmp func(a, b float64) bool) bool {
	a, ok := toNumber(actual)
	if !ok {
		return false
	}
	b, ok := toNumber(expected)
	if !ok {
		return false
	}
	return cmp(a, b)
}

func toNumber(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case bool:
		if v {
			f = 1
		}
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, true
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case interface{ Float64() (float64, error) }:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case interface{ String() string }:
		return v.String()
	}
	if f, ok := toNumber(value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}
