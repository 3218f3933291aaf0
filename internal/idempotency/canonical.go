package idempotency

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// Hash returns the hex blake2b-256 digest of payload's canonical form.
func Hash(payload any) (string, error) {
	canon, err := Canonical(payload)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Canonical serializes payload with sorted object keys, absent values as null,
// times as RFC3339 UTC and big numbers as decimal strings, so semantically equal
// payloads produce identical bytes.
func Canonical(payload any) ([]byte, error) {
	normalized, err := normalize(reflect.ValueOf(payload))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	bigIntType  = reflect.TypeOf(big.Int{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	numberType  = reflect.TypeOf(json.Number(""))
	stringer    = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	marshaler   = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// normalize lowers v into nil, bool, string, json.Number, []any or map[string]any.
func normalize(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Pointer && v.Elem().Type() == bigIntType {
			return v.Interface().(*big.Int).String(), nil
		}
		v = v.Elem()
	}
	switch v.Type() {
	case numberType:
		return v.Interface().(json.Number), nil
	case timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return nil, nil
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	case bigIntType:
		b := v.Interface().(big.Int)
		return b.String(), nil
	case decimalType:
		return v.Interface().(decimal.Decimal).String(), nil
	}
	if v.Type().Implements(marshaler) && v.Kind() == reflect.Struct {
		raw, err := v.Interface().(json.Marshaler).MarshalJSON()
		if err != nil {
			return nil, err
		}
		return decodeRaw(raw)
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		if v.Type() != reflect.TypeOf("") && v.Type().Implements(stringer) {
			return v.Interface().(fmt.Stringer).String(), nil
		}
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(v.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return json.Number(strconv.FormatUint(v.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return json.Number(strconv.FormatFloat(v.Float(), 'f', -1, 64)), nil
	case reflect.Slice:
		if v.IsNil() || v.Len() == 0 {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return decodeRaw(v.Bytes())
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := normalize(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if v.IsNil() || v.Len() == 0 {
			return nil, nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			item, err := normalize(iter.Value())
			if err != nil {
				return nil, err
			}
			out[key] = item
		}
		return out, nil
	case reflect.Struct:
		return normalizeStruct(v)
	default:
		return nil, fmt.Errorf("idempotency: cannot canonicalize %s", v.Type())
	}
}

func normalizeStruct(v reflect.Value) (any, error) {
	out := make(map[string]any, v.NumField())
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			if n := tagName(tag); n != "" {
				name = n
			}
		}
		item, err := normalize(v.Field(i))
		if err != nil {
			return nil, err
		}
		out[name] = item
	}
	return out, nil
}

func tagName(tag string) string {
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	return tag
}

// decodeRaw parses raw JSON with numbers preserved as text, then normalizes it.
func decodeRaw(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("idempotency: payload is not JSON: %w", err)
	}
	return normalize(reflect.ValueOf(generic))
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case json.Number:
		buf.WriteString(val.String())
	case string:
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("idempotency: unexpected canonical value %T", v)
	}
	return nil
}
