package world

import (
	"encoding/json"
	"fmt"
)

// jsonValue is the wire shape for Value: a discriminated union tagged by
// "kind", so every arm round-trips explicitly instead of relying on a
// generic any payload.
type jsonValue struct {
	Kind    string      `json:"kind"`
	IsUnset bool        `json:"unset,omitempty"`
	Bool    bool        `json:"bool,omitempty"`
	Int     int64       `json:"int,omitempty"`
	Float   float64     `json:"float,omitempty"`
	Str     string      `json:"str,omitempty"`
	Array   []jsonValue `json:"array,omitempty"`
	Ref     string      `json:"ref,omitempty"`
}

func kindName(k ValueKind) string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindRef:
		return "ref"
	default:
		return "null"
	}
}

func nameKind(s string) (ValueKind, error) {
	switch s {
	case "null":
		return KindNull, nil
	case "bool":
		return KindBool, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "array":
		return KindArray, nil
	case "ref":
		return KindRef, nil
	default:
		return KindNull, fmt.Errorf("world: unknown value kind %q", s)
	}
}

func toJSONValue(v Value) jsonValue {
	jv := jsonValue{Kind: kindName(v.Kind), IsUnset: v.IsUnset, Bool: v.Bool, Int: v.Int, Float: v.Float, Str: v.Str, Ref: string(v.Ref)}
	if v.Kind == KindArray {
		jv.Array = make([]jsonValue, len(v.Array))
		for i, e := range v.Array {
			jv.Array[i] = toJSONValue(e)
		}
	}
	return jv
}

func fromJSONValue(jv jsonValue) (Value, error) {
	k, err := nameKind(jv.Kind)
	if err != nil {
		return Value{}, err
	}
	v := Value{Kind: k, IsUnset: jv.IsUnset, Bool: jv.Bool, Int: jv.Int, Float: jv.Float, Str: jv.Str, Ref: ID(jv.Ref)}
	if k == KindArray {
		v.Array = make([]Value, len(jv.Array))
		for i, e := range jv.Array {
			cv, err := fromJSONValue(e)
			if err != nil {
				return Value{}, err
			}
			v.Array[i] = cv
		}
	}
	return v, nil
}

// MarshalJSON implements json.Marshaler so Value round-trips every arm
// explicitly through the codec above.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(toJSONValue(v))
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	parsed, err := fromJSONValue(jv)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
