package bencode

import (
	"fmt"
	"reflect"
	"strings"
)

// Marshal renders v — a struct, or pointer to one — as bencode using
// `bencode:"name"` field tags, the idiom the wider ecosystem (and this
// pack's jackpal/bencode-go-shaped callers) uses for declaring wire
// structs instead of hand-assembling map[string]any values. A
// `,omitempty` tag option drops zero-valued fields, mirroring
// encoding/json.
func Marshal(v any) ([]byte, error) {
	val, err := structToValue(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return Encode(val)
}

// Unmarshal decodes bencode data into v, a pointer to a struct tagged with
// `bencode:"name"`.
func Unmarshal(data []byte, v any) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("bencode: Unmarshal target must be a non-nil pointer")
	}
	return valueToStruct(decoded, rv.Elem())
}

type fieldTag struct {
	name      string
	omitempty bool
}

func parseTag(tag string) fieldTag {
	parts := strings.Split(tag, ",")
	ft := fieldTag{name: parts[0]}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			ft.omitempty = true
		}
	}
	return ft
}

func structToValue(rv reflect.Value) (any, error) {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("bencode: cannot marshal nil pointer")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("bencode: Marshal only supports structs, got %s", rv.Kind())
	}

	out := make(map[string]any)
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bencode")
		if tag == "-" {
			continue
		}
		if !field.IsExported() {
			continue
		}
		ft := parseTag(tag)
		name := ft.name
		if name == "" {
			name = field.Name
		}

		fv := rv.Field(i)
		if ft.omitempty && fv.IsZero() {
			continue
		}

		enc, err := fieldToValue(fv)
		if err != nil {
			return nil, fmt.Errorf("bencode: field %s: %w", field.Name, err)
		}
		if enc == nil {
			continue
		}
		out[name] = enc
	}
	return out, nil
}

func fieldToValue(fv reflect.Value) (any, error) {
	switch fv.Kind() {
	case reflect.String:
		return fv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(fv.Uint()), nil
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			return fv.Bytes(), nil
		}
		list := make([]any, fv.Len())
		for i := 0; i < fv.Len(); i++ {
			v, err := fieldToValue(fv.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil
	case reflect.Map:
		return structToValue(fv)
	case reflect.Struct:
		return structToValue(fv)
	case reflect.Ptr, reflect.Interface:
		if fv.IsNil() {
			return nil, nil
		}
		return fieldToValue(fv.Elem())
	default:
		return nil, fmt.Errorf("unsupported kind %s", fv.Kind())
	}
}

func valueToStruct(decoded any, rv reflect.Value) error {
	m, ok := decoded.(map[string]any)
	if !ok {
		return fmt.Errorf("bencode: expected a dictionary, got %T", decoded)
	}

	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bencode")
		if tag == "-" || !field.IsExported() {
			continue
		}
		ft := parseTag(tag)
		name := ft.name
		if name == "" {
			name = field.Name
		}

		raw, present := m[name]
		if !present {
			continue
		}
		if err := setField(rv.Field(i), raw); err != nil {
			return fmt.Errorf("bencode: field %s: %w", field.Name, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, raw any) error {
	switch fv.Kind() {
	case reflect.String:
		b, ok := raw.([]byte)
		if !ok {
			return fmt.Errorf("expected byte string, got %T", raw)
		}
		fv.SetString(string(b))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := raw.(int64)
		if !ok {
			return fmt.Errorf("expected integer, got %T", raw)
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := raw.(int64)
		if !ok {
			return fmt.Errorf("expected integer, got %T", raw)
		}
		fv.SetUint(uint64(n))
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 {
			b, ok := raw.([]byte)
			if !ok {
				return fmt.Errorf("expected byte string, got %T", raw)
			}
			fv.SetBytes(b)
			return nil
		}
		list, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("expected list, got %T", raw)
		}
		out := reflect.MakeSlice(fv.Type(), len(list), len(list))
		for i, item := range list {
			if err := setField(out.Index(i), item); err != nil {
				return err
			}
		}
		fv.Set(out)
	case reflect.Struct:
		return valueToStruct(raw, fv)
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}
	return nil
}
