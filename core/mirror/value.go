package mirror

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Kind is the variant tag of a remote field Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTimestamp
	KindBytes
	KindList
	KindMap
)

var kindNames = [...]string{
	KindNull:      "null",
	KindString:    "string",
	KindInt:       "int",
	KindFloat:     "float",
	KindBool:      "bool",
	KindTimestamp: "timestamp",
	KindBytes:     "bytes",
	KindList:      "list",
	KindMap:       "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a remote document field. The zero Value is null.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
	raw  []byte
	list []Value
	m    map[string]Value
}

func Null() Value                       { return Value{} }
func String(s string) Value             { return Value{kind: KindString, s: s} }
func Int(i int64) Value                 { return Value{kind: KindInt, i: i} }
func Float(f float64) Value             { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value                 { return Value{kind: KindBool, b: b} }
func Timestamp(t time.Time) Value       { return Value{kind: KindTimestamp, t: t} }
func Bytes(b []byte) Value              { return Value{kind: KindBytes, raw: b} }
func List(items ...Value) Value         { return Value{kind: KindList, list: items} }
func Map(fields map[string]Value) Value { return Value{kind: KindMap, m: fields} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// ValueOf converts a decoded native value (JSON, Firestore) into a Value.
// Unknown types are rejected so adapters have to convert them explicitly.
func ValueOf(native interface{}) (Value, error) {
	switch x := native.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Float(float64(x)), nil
		}
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, errors.Wrapf(err, "parsing number %q", x.String())
		}
		return Float(f), nil
	case time.Time:
		return Timestamp(x), nil
	case *time.Time:
		if x == nil {
			return Null(), nil
		}
		return Timestamp(*x), nil
	case []byte:
		return Bytes(x), nil
	case []interface{}:
		items := make([]Value, 0, len(x))
		for i, item := range x {
			val, err := ValueOf(item)
			if err != nil {
				return Value{}, errors.Wrapf(err, "converting item %d", i)
			}
			items = append(items, val)
		}
		return List(items...), nil
	case []string:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			items = append(items, String(item))
		}
		return List(items...), nil
	case map[string]interface{}:
		fields, err := FieldsOf(x)
		if err != nil {
			return Value{}, err
		}
		return Map(fields), nil
	case map[string]string:
		fields := make(map[string]Value, len(x))
		for k, s := range x {
			fields[k] = String(s)
		}
		return Map(fields), nil
	}
	return Value{}, errors.Errorf("unsupported field type %s", reflect.TypeOf(native))
}

// FieldsOf converts a native field map into a Value field map.
func FieldsOf(data map[string]interface{}) (map[string]Value, error) {
	fields := make(map[string]Value, len(data))
	for k, native := range data {
		val, err := ValueOf(native)
		if err != nil {
			return nil, errors.Wrapf(err, "converting field %q", k)
		}
		fields[k] = val
	}
	return fields, nil
}

// Text returns the canonical textual form of v (ok is false for null).
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindNull:
		return "", false
	case KindString:
		return v.s, true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return formatFloat(v.f), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	case KindTimestamp:
		return formatTime(v.t), true
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.raw), true
	case KindList, KindMap:
		data, err := canonicalJSON.Marshal(v.native())
		if err != nil {
			// natives are built from strings, numbers, bools & nested containers only
			panic(fmt.Sprintf("mirror: encoding %s value: %v", v.kind, err))
		}
		return string(data), true
	}
	panic(fmt.Sprintf("mirror: unknown value kind %d", v.kind))
}

// native returns v as plain Go data ready for JSON encoding.
func (v Value) native() interface{} {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return formatFloat(v.f)
		}
		return v.f
	case KindBool:
		return v.b
	case KindTimestamp:
		return formatTime(v.t)
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.raw)
	case KindList:
		items := make([]interface{}, 0, len(v.list))
		for _, item := range v.list {
			items = append(items, item.native())
		}
		return items
	case KindMap:
		fields := make(map[string]interface{}, len(v.m))
		for k, item := range v.m {
			fields[k] = item.native()
		}
		return fields
	}
	return nil
}

// Equal reports whether v and other hold the same variant and data.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, item := range v.m {
			o, ok := other.m[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	}
	a, _ := v.Text()
	b, _ := other.Text()
	return a == b
}

func (v Value) String() string {
	if s, ok := v.Text(); ok {
		return s
	}
	return "<null>"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
