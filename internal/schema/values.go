package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
)

type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindList
)

// Value is the closed variant allowed in an entry's details map:
// a string, a number, or a list of strings. Absent keys are simply
// absent from the map.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	List []string
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func ListValue(xs []string) Value { return Value{Kind: KindList, List: xs} }

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindList:
		if v.List == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(v.List)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	coerced, ok := coerceAny(raw)
	if !ok {
		return fmt.Errorf("unsupported detail value: %s", string(data))
	}
	*v = coerced
	return nil
}

// Details maps field keys to values for one entry.
type Details map[string]Value

// CoerceDetails filters a raw decoded details object against the
// category's field list: unknown keys and values that do not fit the
// field's type are dropped rather than trusted.
func CoerceDetails(raw map[string]any, fields []FieldSchema) Details {
	byKey := make(map[string]FieldSchema, len(fields))
	for _, f := range fields {
		byKey[f.Key] = f
	}
	out := make(Details, len(raw))
	for key, rawVal := range raw {
		field, ok := byKey[key]
		if !ok {
			continue
		}
		val, ok := coerceForField(rawVal, field)
		if !ok {
			continue
		}
		out[key] = val
	}
	return out
}

func coerceForField(raw any, field FieldSchema) (Value, bool) {
	switch field.Type {
	case FieldText, FieldSelect, FieldDate:
		if s, ok := raw.(string); ok {
			return StringValue(s), true
		}
	case FieldNumber, FieldRating:
		switch n := raw.(type) {
		case float64:
			return NumberValue(n), true
		case string:
			if parsed, err := strconv.ParseFloat(n, 64); err == nil {
				return NumberValue(parsed), true
			}
		}
	case FieldMultiSelect:
		switch xs := raw.(type) {
		case []any:
			list := make([]string, 0, len(xs))
			for _, item := range xs {
				s, ok := item.(string)
				if !ok {
					return Value{}, false
				}
				list = append(list, s)
			}
			return ListValue(list), true
		case string:
			return ListValue([]string{xs}), true
		}
	}
	return Value{}, false
}

func coerceAny(raw any) (Value, bool) {
	switch t := raw.(type) {
	case string:
		return StringValue(t), true
	case float64:
		return NumberValue(t), true
	case []any:
		list := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return Value{}, false
			}
			list = append(list, s)
		}
		return ListValue(list), true
	default:
		return Value{}, false
	}
}
