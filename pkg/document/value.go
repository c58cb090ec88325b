package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
	// KindOpaque holds a value of a driver-specific type the model has no variant for
	// (e.g. a Decimal128 or binary blob). Only its textual form is kept.
	KindOpaque
)

var kindNames = [...]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindArray:  "array",
	KindObject: "object",
	KindOpaque: "opaque",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Document is one sampled record: a map of top-level field names to values.
type Document map[string]Value

// Value is a closed tagged variant over the shapes a semi-structured document can hold.
// The zero Value is null. Values are immutable once constructed.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string // string payload, or textual form for KindOpaque
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a signed integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a floating point number.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string. Invalid UTF-8 sequences are replaced with U+FFFD so every
// value stays encodable as YAML and JSON text.
func String(s string) Value { return Value{kind: KindString, s: ValidText(s)} }

// Array wraps a list of values.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Object wraps a nested map.
func Object(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[ValidText(k)] = v
	}
	return Value{kind: KindObject, obj: cp}
}

// Opaque wraps a value of a type the model cannot represent, keeping a printable form.
func Opaque(repr string) Value { return Value{kind: KindOpaque, s: ValidText(repr)} }

// ValidText returns s with every invalid UTF-8 sequence replaced by U+FFFD. Drivers
// such as MongoDB's hand strings through without validating them.
func ValidText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "\uFFFD")
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }
func (v Value) AsOpaque() (string, bool) { return v.s, v.kind == KindOpaque }
func (v Value) Len() int { return len(v.arr) + len(v.obj) }
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (Document, bool) { return v.obj, v.kind == KindObject }

// Key is the identity of a comparable value, usable as a map key for deduplication.
type Key struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Comparable reports whether the value can take part in equality-based deduplication.
// Containers and opaque values cannot.
func (v Value) Comparable() bool {
	switch v.kind {
	case KindNull, KindBool, KindInt, KindFloat, KindString:
		return true
	default:
		return false
	}
}

// Key returns the dedup identity of v. ok is false when v is not comparable.
// Identity is kind-aware: Int(1) and Float(1) are distinct. All NaNs share one
// identity, matching Equal.
func (v Value) Key() (key Key, ok bool) {
	if !v.Comparable() {
		return Key{}, false
	}
	if v.kind == KindFloat && math.IsNaN(v.f) {
		return Key{kind: KindFloat, s: "NaN"}, true
	}
	return Key{kind: v.kind, b: v.b, i: v.i, f: v.f, s: v.s}, true
}

// Equal reports deep equality, including containers.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString, KindOpaque:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts v back to plain Go values (nil, bool, int64, float64, string,
// []any, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString, KindOpaque:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString, KindOpaque:
		return v.s
	case KindFloat:
		return formatFloat(v.f)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v.Interface())
	}
	return string(b)
}

// MarshalJSON renders containers with sorted keys; opaque values become strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindFloat && (math.IsInf(v.f, 0) || math.IsNaN(v.f)) {
		return json.Marshal(formatFloat(v.f))
	}
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes through FromAny, so integers stay integers. Opaque values
// come back as strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}

// SortedKeys returns the keys of an object value in lexical order.
func (d Document) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromAny converts decoded Go data (encoding/json output, driver rows, literals) into a
// Value. json.Number is split into Int or Float. Types outside the model become opaque.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return Bool(x)
	case int:
		return Int(int64(x))
	case int8:
		return Int(int64(x))
	case int16:
		return Int(int64(x))
	case int32:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint8:
		return Int(int64(x))
	case uint16:
		return Int(int64(x))
	case uint32:
		return Int(int64(x))
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Float(float64(x))
		}
		return Int(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x))
		}
		return Int(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i)
		}
		if f, err := x.Float64(); err == nil {
			return Float(f)
		}
		return String(x.String())
	case string:
		return String(x)
	case []byte:
		return Opaque(fmt.Sprintf("%x", x))
	case time.Time:
		return String(x.UTC().Format(time.RFC3339Nano))
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return Value{kind: KindArray, arr: items}
	case []Value:
		return Array(x...)
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			fields[ValidText(k)] = FromAny(item)
		}
		return Value{kind: KindObject, obj: fields}
	case Document:
		return Object(x)
	case map[string]Value:
		return Object(x)
	}
	return fromReflect(raw)
}

// fromReflect handles typed slices and maps (e.g. []string, map[string]int) that the
// type switch cannot enumerate.
func fromReflect(raw any) Value {
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromAny(rv.Index(i).Interface())
		}
		return Value{kind: KindArray, arr: items}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		fields := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fields[ValidText(iter.Key().String())] = FromAny(iter.Value().Interface())
		}
		return Value{kind: KindObject, obj: fields}
	case reflect.Pointer:
		if rv.IsNil() {
			return Null()
		}
		return FromAny(rv.Elem().Interface())
	}
	return Opaque(fmt.Sprintf("%v", raw))
}

// DocumentFromMap converts a decoded JSON object into a Document.
func DocumentFromMap(m map[string]any) Document {
	doc := make(Document, len(m))
	for k, v := range m {
		doc[k] = FromAny(v)
	}
	return doc
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return s
		}
	}
	return s + ".0"
}
