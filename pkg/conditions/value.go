// Package conditions evaluates field/operator/value predicates against event payloads.
package conditions

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a JSON-like tagged value. The zero Value is absent.
type Value struct {
	kind   Kind
	b      bool
	num    float64
	str    string
	array  []Value
	object map[string]Value
}

// Absent is the result of resolving a path that does not exist.
var Absent = Value{}

func Null() Value { return Value{kind: KindNull} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func Array(items []Value) Value { return Value{kind: KindArray, array: items} }

func Object(fields map[string]Value) Value { return Value{kind: KindObject, object: fields} }

// FromAny converts decoded JSON or hand-built Go maps into a Value.
// Unsupported Go types become null.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}

		return Number(f)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromAny(item)
		}

		return Array(items)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}

		return Array(items)
	case []int:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Number(float64(item))
		}

		return Array(items)
	case []float64:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Number(item)
		}

		return Array(items)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = FromAny(item)
		}

		return Object(fields)
	case map[string]string:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = String(item)
		}

		return Object(fields)
	default:
		return Null()
	}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsNullish reports whether the value is absent or null.
func (v Value) IsNullish() bool { return v.kind == KindAbsent || v.kind == KindNull }

// Field returns the named member of an object, or Absent.
func (v Value) Field(name string) Value {
	if v.kind != KindObject {
		return Absent
	}

	field, ok := v.object[name]
	if !ok {
		return Absent
	}

	return field
}

// Index returns the i-th element of an array, or Absent.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.array) {
		return Absent
	}

	return v.array[i]
}

// Items returns the elements of an array value.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}

	return v.array, true
}

// Resolve descends into v following a dot separated path. Array elements
// are addressed by their numeric index.
func (v Value) Resolve(path string) Value {
	if path == "" {
		return Absent
	}

	return v.descend(strings.Split(path, "."))
}

func (v Value) descend(segments []string) Value {
	if len(segments) == 0 {
		return v
	}

	head, rest := segments[0], segments[1:]

	switch v.kind {
	case KindObject:
		next := v.Field(head)
		if next.IsAbsent() {
			return Absent
		}

		return next.descend(rest)
	case KindArray:
		i, err := strconv.Atoi(head)
		if err != nil {
			return Absent
		}

		next := v.Index(i)
		if next.IsAbsent() {
			return Absent
		}

		return next.descend(rest)
	default:
		return Absent
	}
}

// Equal compares two values structurally. Numbers compare by value, so
// int 5 and float 5.0 are equal. Absent equals nothing, not even Absent.
func (v Value) Equal(other Value) bool {
	if v.kind == KindAbsent || other.kind == KindAbsent {
		return false
	}

	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.num == other.num
	case KindString:
		return v.str == other.str
	case KindArray:
		if len(v.array) != len(other.array) {
			return false
		}

		for i := range v.array {
			if !v.array[i].Equal(other.array[i]) {
				return false
			}
		}

		return true
	case KindObject:
		if len(v.object) != len(other.object) {
			return false
		}

		for k, item := range v.object {
			otherItem, ok := other.object[k]
			if !ok || !item.Equal(otherItem) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// AsNumber coerces numbers and numeric strings to float64.
func (v Value) AsNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}

// AsString renders the value as text. Arrays and objects render as JSON.
func (v Value) AsString() string {
	switch v.kind {
	case KindAbsent, KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	default:
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return ""
		}

		return string(data)
	}
}

// Interface converts the value back into plain Go types.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		items := make([]any, len(v.array))
		for i, item := range v.array {
			items[i] = item.Interface()
		}

		return items
	case KindObject:
		fields := make(map[string]any, len(v.object))
		for k, item := range v.object {
			fields[k] = item.Interface()
		}

		return fields
	default:
		return nil
	}
}
