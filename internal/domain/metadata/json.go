package metadata

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the value as its native JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindStringList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return nil, fmt.Errorf("metadata: unknown value kind %d", v.kind)
}

// UnmarshalJSON decodes a native JSON scalar or string array, inferring the kind.
// Any other shape (object, mixed array, null) is rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("metadata: decode value: %w", err)
	}
	switch t := raw.(type) {
	case string:
		*v = String(t)
	case float64:
		*v = Number(t)
	case bool:
		*v = Bool(t)
	case []any:
		items := make([]string, len(t))
		for i, it := range t {
			s, ok := it.(string)
			if !ok {
				return fmt.Errorf("metadata: list element %d is not a string", i)
			}
			items[i] = s
		}
		*v = StringList(items...)
	default:
		return fmt.Errorf("metadata: unsupported value type %T", raw)
	}
	return nil
}
