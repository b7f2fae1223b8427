package bencode

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// Encode renders v as canonical bencode. Supported dynamic types are
// int, int32, int64, uint16, uint32, uint64, string, []byte, []any and
// map[string]any (any other type, including int8, int16 and uint8, is
// rejected with an error); dictionary keys are always written in sorted order
// regardless of the map's iteration order, matching the mandatory
// info-hash-reproducibility rule.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeInto(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeInto(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case int:
		return encodeInt(buf, int64(val))
	case int32:
		return encodeInt(buf, int64(val))
	case int64:
		return encodeInt(buf, val)
	case uint16:
		return encodeInt(buf, int64(val))
	case uint32:
		return encodeInt(buf, int64(val))
	case uint64:
		return encodeInt(buf, int64(val))
	case string:
		return encodeBytes(buf, []byte(val))
	case []byte:
		return encodeBytes(buf, val)
	case []any:
		return encodeList(buf, val)
	case map[string]any:
		return encodeDict(buf, val)
	default:
		return fmt.Errorf("bencode: unsupported type %T", v)
	}
}

func encodeInt(buf *bytes.Buffer, n int64) error {
	buf.WriteByte('i')
	buf.WriteString(strconv.FormatInt(n, 10))
	buf.WriteByte('e')
	return nil
}

func encodeBytes(buf *bytes.Buffer, b []byte) error {
	buf.WriteString(strconv.Itoa(len(b)))
	buf.WriteByte(':')
	buf.Write(b)
	return nil
}

func encodeList(buf *bytes.Buffer, list []any) error {
	buf.WriteByte('l')
	for _, item := range list {
		if err := encodeInto(buf, item); err != nil {
			return err
		}
	}
	buf.WriteByte('e')
	return nil
}

func encodeDict(buf *bytes.Buffer, dict map[string]any) error {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('d')
	for _, k := range keys {
		if err := encodeBytes(buf, []byte(k)); err != nil {
			return err
		}
		if err := encodeInto(buf, dict[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('e')
	return nil
}
