package dot

import (
	"encoding/json"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Values flowing through a template are plain Go values: nil, bool, the
// numeric kinds, string, slices/arrays (sequences) and maps (mappings).
// Structs are readable through member access but are not iterable.

const (
	kindNull     = "null"
	kindBoolean  = "boolean"
	kindNumber   = "number"
	kindString   = "string"
	kindSequence = "sequence"
	kindMapping  = "mapping"
)

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return kindNull
	case iter.Seq[any]:
		return kindSequence
	case iter.Seq2[any, any]:
		return kindMapping
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return kindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return kindNumber
	case reflect.String:
		return kindString
	case reflect.Slice, reflect.Array:
		return kindSequence
	case reflect.Map:
		return kindMapping
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return kindNull
		}
		return typeName(rv.Elem().Interface())
	default:
		return fmt.Sprintf("%T", v)
	}
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && f == f
	case reflect.String:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	default:
		return true
	}
}

// stringify renders a value the way interpolation prints it. nil prints as
// the empty string, sequences are comma joined, mappings print as JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.Map, reflect.Struct:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return stringify(rv.Elem().Interface())
	default:
		return fmt.Sprint(v)
	}
}

// each calls fn for every element of a sequence (key is the zero-based
// index) or every entry of a mapping (keys in sorted order). Falsy sources
// produce no calls.
func each(v any, mapping bool, fn func(key, item any) error) error {
	if !truthy(v) {
		return nil
	}
	switch seq := v.(type) {
	case iter.Seq[any]:
		return eachSeq(seq, mapping, fn)
	case iter.Seq2[any, any]:
		return eachSeq2(seq, mapping, fn)
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if mapping {
			// positions act as keys, as they would for an object view of an array
			for i := 0; i < rv.Len(); i++ {
				if err := fn(strconv.Itoa(i), rv.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := fn(i, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return stringify(keys[i].Interface()) < stringify(keys[j].Interface())
		})
		for i, k := range keys {
			var key any = k.Interface()
			if !mapping {
				key = i
			}
			if err := fn(key, rv.MapIndex(k).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.String:
		if mapping {
			return errors.Errorf("cannot iterate %s as a mapping", kindString)
		}
		i := 0
		for _, r := range rv.String() {
			if err := fn(i, string(r)); err != nil {
				return err
			}
			i++
		}
		return nil
	default:
		return errors.Errorf("cannot iterate over %s", typeName(v))
	}
}

// eachSeq walks an iterator like a sequence. Positions stand in for keys
// when it is iterated as a mapping.
func eachSeq(seq iter.Seq[any], mapping bool, fn func(key, item any) error) error {
	var err error
	i := 0
	for item := range seq {
		var key any = i
		if mapping {
			key = strconv.Itoa(i)
		}
		if err = fn(key, item); err != nil {
			break
		}
		i++
	}
	return err
}

// eachSeq2 walks key/value pairs in the order the iterator yields them.
func eachSeq2(seq iter.Seq2[any, any], mapping bool, fn func(key, item any) error) error {
	var err error
	i := 0
	for k, item := range seq {
		var key any = i
		if mapping {
			key = k
		}
		if err = fn(key, item); err != nil {
			break
		}
		i++
	}
	return err
}

// member reads a field or key from a mapping or struct.
func member(v any, name string) (any, error) {
	if v == nil {
		return nil, errors.Errorf("cannot read %q of %s", name, kindNull)
	}
	if m, ok := v.(map[string]any); ok {
		return m[name], nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, errors.Errorf("cannot read %q of %s", name, kindNull)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, errors.Errorf("cannot read %q of %T", name, v)
		}
		val := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil, nil
		}
		return val.Interface(), nil
	case reflect.Struct:
		f := rv.FieldByName(name)
		if !f.IsValid() || !f.CanInterface() {
			return nil, nil
		}
		return f.Interface(), nil
	default:
		return nil, errors.Errorf("cannot read %q of %s", name, typeName(v))
	}
}

// setMember assigns into a mapping or a sequence element.
func setMember(target, key, val any) error {
	switch t := target.(type) {
	case map[string]any:
		t[stringify(key)] = val
		return nil
	case []any:
		i, ok := toIndex(key)
		if !ok || i < 0 || i >= len(t) {
			return errors.Errorf("index %v out of range", key)
		}
		t[i] = val
		return nil
	case nil:
		return errors.Errorf("cannot set %v of %s", key, kindNull)
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		elem := reflect.ValueOf(val)
		if !elem.IsValid() {
			elem = reflect.Zero(rv.Type().Elem())
		}
		if !elem.Type().AssignableTo(rv.Type().Elem()) {
			return errors.Errorf("cannot assign %s to %v of %T", typeName(val), key, target)
		}
		rv.SetMapIndex(reflect.ValueOf(stringify(key)).Convert(rv.Type().Key()), elem)
		return nil
	}
	return errors.Errorf("cannot set %v of %s", key, typeName(target))
}

func toIndex(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t == float64(int(t)) {
			return int(t), true
		}
	}
	return 0, false
}
