package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// canonicalKeySerializer implements KeySerializer using reflection-based serialization.
// String leaves are quoted so separator characters in values cannot alias
// another structure.
// Absent values (nil pointers, nil slices, nil maps) serialize exactly like their
// empty counterparts so omission and an explicit empty value share a key.
type canonicalKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &canonicalKeySerializer{}
}

// SerializeKey builds a cache key from a namespace and args using reflection.
func (s *canonicalKeySerializer) SerializeKey(namespace string, args ...any) string {
	if len(args) == 0 {
		return namespace
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, namespace)

	for _, arg := range args {
		parts = append(parts, s.serializeValue(reflect.ValueOf(arg)))
	}

	return strings.Join(parts, KeySeparator)
}

func (s *canonicalKeySerializer) serializeValue(rv reflect.Value) string {
	if !rv.IsValid() {
		return ""
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return s.zeroOf(rv.Type())
		}
		return s.serializeValue(rv.Elem())
	case reflect.Slice:
		return s.serializeList(rv)
	case reflect.Array:
		return s.serializeList(rv)
	case reflect.Map:
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		// not meaningful in a query; keep the key stable
		return rv.Kind().String()
	}

	if rv.Kind() == reflect.String {
		return strconv.Quote(rv.String())
	}

	if s.isBasicType(rv.Kind()) {
		return fmt.Sprintf("%v", rv.Interface())
	}

	return s.jsonFallback(rv)
}

// zeroOf returns the serialization of the zero value of t, dereferencing
// pointer and interface types, so a nil *int and a 0 int collapse together.
func (s *canonicalKeySerializer) zeroOf(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Interface {
		return ""
	}
	return s.serializeValue(reflect.Zero(t))
}

func (s *canonicalKeySerializer) serializeList(rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i))
	}

	return fmt.Sprintf("[%s]", strings.Join(parts, ","))
}

// serializeMap handles map serialization with sorted keys for determinism
func (s *canonicalKeySerializer) serializeMap(rv reflect.Value) string {
	if rv.Len() == 0 {
		return "{}"
	}

	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.serializeValue(iter.Key())+"="+s.serializeValue(iter.Value()))
	}
	sort.Strings(pairs)

	return fmt.Sprintf("{%s}", strings.Join(pairs, ","))
}

// serializeStruct walks exported fields in declaration order
func (s *canonicalKeySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.serializeValue(rv.Field(i)))
	}

	return fmt.Sprintf("(%s)", strings.Join(parts, ","))
}

func (s *canonicalKeySerializer) isBasicType(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	default:
		return false
	}
}

// jsonFallback provides JSON serialization as a last resort
func (s *canonicalKeySerializer) jsonFallback(rv reflect.Value) string {
	if !rv.CanInterface() {
		return "fallback:" + rv.Type().String()
	}
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return "fallback:" + rv.Type().String()
	}
	return "json:" + string(data)
}
