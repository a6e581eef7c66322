package ibr

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Validate checks that every supplied value is a finite number in [0,1]. It
// returns false together with one message per failing parameter.
func Validate(params Parameters) (bool, []string) {
	messages := []string{}
	for _, code := range orderedCodes(params) {
		if msg, ok := checkValue(code, params[code]); !ok {
			messages = append(messages, msg)
		}
	}
	return len(messages) == 0, messages
}

// ValidateStrict is Validate returning an *InvalidParameterError on failure.
func ValidateStrict(params Parameters) error {
	if ok, messages := Validate(params); !ok {
		return &InvalidParameterError{Messages: messages}
	}
	return nil
}

// ParseValues converts loosely typed values, as produced by decoding JSON into
// map[string]any, into Parameters. Values that are not numbers are reported in
// the message list and left out of the returned set; range is not checked.
func ParseValues(values map[string]any) (Parameters, []string) {
	params := make(Parameters, len(values))
	messages := []string{}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		code := Code(k)
		v, ok := toFloat(values[k])
		if !ok {
			messages = append(messages, fmt.Sprintf("%s: value %v is not numeric (%s)", code, values[k], typeName(values[k])))
			continue
		}
		params[code] = v
	}
	return params, messages
}

// ValidateValues runs ParseValues and Validate together, returning the parsed
// parameters or an *InvalidParameterError listing type and range failures.
func ValidateValues(values map[string]any) (Parameters, error) {
	params, messages := ParseValues(values)
	if _, rangeMessages := Validate(params); len(rangeMessages) > 0 {
		messages = append(messages, rangeMessages...)
	}
	if len(messages) > 0 {
		return nil, &InvalidParameterError{Messages: messages}
	}
	return params, nil
}

func checkValue(code Code, v float64) (string, bool) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return fmt.Sprintf("%s: value %v is not a finite number", code, v), false
	case v < 0 || v > 1:
		return fmt.Sprintf("%s: value %v out of range [0, 1]", code, v), false
	}
	return "", true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// orderedCodes lists canonical codes first in weight order, then the rest sorted.
func orderedCodes(params Parameters) []Code {
	out := make([]Code, 0, len(params))
	for _, code := range canonical {
		if _, ok := params[code]; ok {
			out = append(out, code)
		}
	}
	var extra []string
	for code := range params {
		if !IsCanonical(code) {
			extra = append(extra, string(code))
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		out = append(out, Code(c))
	}
	return out
}
