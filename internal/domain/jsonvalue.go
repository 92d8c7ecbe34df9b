package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

// JSONKind identifies which variant a JSONValue holds.
type JSONKind uint8

const (
	KindNull JSONKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k JSONKind) String() string {
	switch k {
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

// JSONValue is an untyped JSON document used wherever params and results are
// not statically typed. The zero value is JSON null.
//
// Numbers are held as float64, so any value representable as an IEEE-754
// double survives an encode/decode round trip. Object key order is not
// preserved; encoding emits keys sorted.
type JSONValue struct {
	kind JSONKind
	b    bool
	n    float64
	s    string
	arr  []JSONValue
	obj  map[string]JSONValue
}

// Null returns the JSON null value.
func Null() JSONValue { return JSONValue{} }

// Bool wraps a boolean.
func Bool(b bool) JSONValue { return JSONValue{kind: KindBool, b: b} }

// Number wraps a float64.
func Number(n float64) JSONValue { return JSONValue{kind: KindNumber, n: n} }

// String wraps a string.
func String(s string) JSONValue { return JSONValue{kind: KindString, s: s} }

// Array wraps a sequence of values.
func Array(items ...JSONValue) JSONValue {
	if items == nil {
		items = []JSONValue{}
	}
	return JSONValue{kind: KindArray, arr: items}
}

// Object wraps a string-keyed map. A nil map yields an empty object.
func Object(fields map[string]JSONValue) JSONValue {
	if fields == nil {
		fields = map[string]JSONValue{}
	}
	return JSONValue{kind: KindObject, obj: fields}
}

// EmptyObject returns {}.
func EmptyObject() JSONValue { return Object(nil) }

// Kind reports the variant held by v.
func (v JSONValue) Kind() JSONKind { return v.kind }

// IsNull reports whether v is JSON null.
func (v JSONValue) IsNull() bool { return v.kind == KindNull }

// BoolValue returns the boolean held by v.
func (v JSONValue) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// NumberValue returns the number held by v.
func (v JSONValue) NumberValue() (float64, bool) { return v.n, v.kind == KindNumber }

// StringValue returns the string held by v.
func (v JSONValue) StringValue() (string, bool) { return v.s, v.kind == KindString }

// ArrayValue returns the elements held by v.
func (v JSONValue) ArrayValue() ([]JSONValue, bool) { return v.arr, v.kind == KindArray }

// ObjectValue returns the fields held by v.
func (v JSONValue) ObjectValue() (map[string]JSONValue, bool) { return v.obj, v.kind == KindObject }

// Field looks up key when v is an object.
func (v JSONValue) Field(key string) (JSONValue, bool) {
	if v.kind != KindObject {
		return JSONValue{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Equal reports deep equality. Object key order is irrelevant.
func (v JSONValue) Equal(other JSONValue) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := other.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v as compact JSON. Unencodable values render as their error.
func (v JSONValue) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// MarshalJSON encodes v without reflection.
func (v JSONValue) MarshalJSON() ([]byte, error) {
	return v.appendTo(make([]byte, 0, 64))
}

func (v JSONValue) appendTo(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.b), nil
	case KindNumber:
		return appendNumber(buf, v.n)
	case KindString:
		return appendString(buf, v.s)
	case KindArray:
		buf = append(buf, '[')
		var err error
		for i, item := range v.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			if buf, err = item.appendTo(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		var err error
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			if buf, err = appendString(buf, k); err != nil {
				return nil, err
			}
			buf = append(buf, ':')
			if buf, err = v.obj[k].appendTo(buf); err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	}
	return nil, fmt.Errorf("json value: unknown kind %d: %w", v.kind, ErrEncodeFailure)
}

// appendNumber follows encoding/json's float formatting so integral values
// print without a fraction or exponent.
func appendNumber(buf []byte, n float64) ([]byte, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("json value: number %v is not representable: %w", n, ErrEncodeFailure)
	}
	abs := math.Abs(n)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	start := len(buf)
	buf = strconv.AppendFloat(buf, n, format, -1, 64)
	if format == 'e' {
		// clean up e-09 to e-9
		out := buf[start:]
		if l := len(out); l >= 4 && out[l-4] == 'e' && out[l-3] == '-' && out[l-2] == '0' {
			out[l-2] = out[l-1]
			buf = buf[:len(buf)-1]
		}
	}
	return buf, nil
}

const hexDigits = "0123456789abcdef"

func appendString(buf []byte, s string) ([]byte, error) {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				buf = append(buf, '\\', c)
			case c == '\n':
				buf = append(buf, '\\', 'n')
			case c == '\r':
				buf = append(buf, '\\', 'r')
			case c == '\t':
				buf = append(buf, '\\', 't')
			case c < 0x20:
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			default:
				buf = append(buf, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return nil, fmt.Errorf("json value: string is not valid UTF-8: %w", ErrEncodeFailure)
		}
		buf = append(buf, s[i:i+size]...)
		i += size
	}
	return append(buf, '"'), nil
}

// UnmarshalJSON decodes a JSON document by walking its token stream.
func (v *JSONValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	parsed, err := readValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("json value: trailing data after document")
	}
	*v = parsed
	return nil
}

func readValue(dec *json.Decoder) (JSONValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return JSONValue{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return JSONValue{}, fmt.Errorf("json value: number %q: %w", t, err)
		}
		return Number(f), nil
	case json.Delim:
		switch t {
		case '[':
			items := []JSONValue{}
			for dec.More() {
				item, err := readValue(dec)
				if err != nil {
					return JSONValue{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return JSONValue{}, err
			}
			return Array(items...), nil
		case '{':
			fields := map[string]JSONValue{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return JSONValue{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return JSONValue{}, fmt.Errorf("json value: object key %v is not a string", keyTok)
				}
				field, err := readValue(dec)
				if err != nil {
					return JSONValue{}, err
				}
				fields[key] = field
			}
			if _, err := dec.Token(); err != nil {
				return JSONValue{}, err
			}
			return Object(fields), nil
		}
	}
	return JSONValue{}, fmt.Errorf("json value: unexpected token %v", tok)
}

// ValueOf converts any JSON-encodable Go value into a JSONValue.
func ValueOf(x any) (JSONValue, error) {
	switch t := x.(type) {
	case JSONValue:
		return t, nil
	case *JSONValue:
		if t == nil {
			return Null(), nil
		}
		return *t, nil
	}
	data, err := json.Marshal(x)
	if err != nil {
		return JSONValue{}, fmt.Errorf("json value: encode %T: %v: %w", x, err, ErrEncodeFailure)
	}
	var v JSONValue
	if err := v.UnmarshalJSON(data); err != nil {
		return JSONValue{}, err
	}
	return v, nil
}

// Decode unmarshals v into target, which must be a pointer.
func (v JSONValue) Decode(target any) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// SplitObject returns the fields of v whose keys are not listed in known.
// Non-object values yield nil.
func SplitObject(v JSONValue, known ...string) map[string]JSONValue {
	fields, ok := v.ObjectValue()
	if !ok {
		return nil
	}
	skip := make(map[string]struct{}, len(known))
	for _, k := range known {
		skip[k] = struct{}{}
	}
	var extra map[string]JSONValue
	for k, f := range fields {
		if _, isKnown := skip[k]; isKnown {
			continue
		}
		if extra == nil {
			extra = make(map[string]JSONValue)
		}
		extra[k] = f
	}
	return extra
}

// MergeObject encodes known (which must encode to a JSON object) and adds
// every extra field whose key the known part does not already define.
func MergeObject(known any, extra map[string]JSONValue) (JSONValue, error) {
	base, err := ValueOf(known)
	if err != nil {
		return JSONValue{}, err
	}
	fields, ok := base.ObjectValue()
	if !ok {
		return JSONValue{}, fmt.Errorf("json value: merge into %s: %w", base.Kind(), ErrEncodeFailure)
	}
	merged := make(map[string]JSONValue, len(fields)+len(extra))
	for k, f := range extra {
		merged[k] = f
	}
	for k, f := range fields {
		merged[k] = f
	}
	return Object(merged), nil
}
