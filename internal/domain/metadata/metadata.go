// Package metadata provides the typed open attribute map attached to corpus
// records. Values are validated at ingestion time so query-time code (filters,
// match explanation) can assume well-formed data.
package metadata

import (
	"fmt"
	"sort"
)

// Kind enumerates the allowed value types.
type Kind int

const (
	// KindString is a scalar string value.
	KindString Kind = iota
	// KindNumber is a float64 value.
	KindNumber
	// KindBool is a boolean value.
	KindBool
	// KindStringList is an ordered list of strings.
	KindStringList
)

// Value is a scalar or list-of-string metadata value (immutable).
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []string
}

// String creates a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number creates a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool creates a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// StringList creates a list value. The slice is copied.
func StringList(items ...string) Value {
	c := make([]string, len(items))
	copy(c, items)
	return Value{kind: KindStringList, list: c}
}

// Kind returns the value type.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload (zero for other kinds).
func (v Value) Str() string { return v.str }

// Num returns the numeric payload (zero for other kinds).
func (v Value) Num() float64 { return v.num }

// Bool returns the boolean payload (false for other kinds).
func (v Value) Bool() bool { return v.b }

// List returns a copy of the list payload (nil for other kinds).
func (v Value) List() []string {
	if v.list == nil {
		return nil
	}
	c := make([]string, len(v.list))
	copy(c, v.list)
	return c
}

// Map is an open attribute-name -> Value mapping.
type Map map[string]Value

// Validate checks the map for empty keys. Value types are constrained by
// construction, so only key shape needs checking.
func (m Map) Validate() error {
	for k := range m {
		if k == "" {
			return fmt.Errorf("metadata key must be non-empty")
		}
	}
	return nil
}

// Keys returns the attribute names in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetString returns the string value for key, if present and of string kind.
func (m Map) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// GetNumber returns the numeric value for key, if present and of number kind.
func (m Map) GetNumber(key string) (float64, bool) {
	v, ok := m[key]
	if !ok || v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// GetBool returns the boolean value for key, if present and of bool kind.
func (m Map) GetBool(key string) (bool, bool) {
	v, ok := m[key]
	if !ok || v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// GetList returns the list value for key, if present and of list kind.
func (m Map) GetList(key string) ([]string, bool) {
	v, ok := m[key]
	if !ok || v.kind != KindStringList {
		return nil, false
	}
	return v.List(), true
}

// Clone returns a deep copy of the map.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	c := make(Map, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
