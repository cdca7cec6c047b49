package sqlite

import (
	"math"
	"reflect"
	"strconv"
	"time"
)

// Kind is the storage class of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single dynamically typed SQLite value. The zero Value is NULL.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

// Null returns the NULL value.
func Null() Value { return Value{} }

// Integer returns an INTEGER value.
func Integer(v int64) Value { return Value{kind: KindInteger, i: v} }

// Real returns a REAL value.
func Real(v float64) Value { return Value{kind: KindReal, f: v} }

// Text returns a TEXT value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Blob returns a BLOB value. A nil slice is NULL.
func Blob(v []byte) Value {
	if v == nil {
		return Null()
	}
	return Value{kind: KindBlob, b: v}
}

// Bool returns 1 or 0 as an INTEGER value.
func Bool(v bool) Value {
	if v {
		return Integer(1)
	}
	return Integer(0)
}

// Kind reports the storage class.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// The conversions below follow SQLite's own column coercions: text is
// parsed as a number when it looks like one, NULL and blobs convert to zero.

// Int64 returns v as an integer.
func (v Value) Int64() int64 {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return int64(v.f)
	case KindText:
		if n, err := strconv.ParseInt(v.s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v.s, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

// Float64 returns v as a floating point number.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindInteger:
		return float64(v.i)
	case KindReal:
		return v.f
	case KindText:
		if f, err := strconv.ParseFloat(v.s, 64); err == nil {
			return f
		}
	}
	return 0
}

// String returns v as text. NULL is the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBlob:
		return string(v.b)
	default:
		return ""
	}
}

// Bytes returns a copy of v as bytes. NULL is nil.
func (v Value) Bytes() []byte {
	switch v.kind {
	case KindBlob:
		out := make([]byte, len(v.b))
		copy(out, v.b)
		return out
	case KindNull:
		return nil
	default:
		return []byte(v.String())
	}
}

// Bool reports whether v is a non-zero number.
func (v Value) Bool() bool {
	if v.kind == KindReal {
		return v.f != 0
	}
	return v.Int64() != 0
}

// Any returns the driver representation of v: nil, int64, float64, string
// or []byte.
func (v Value) Any() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	default:
		return nil
	}
}

// ValueOf converts a Go argument into a Value for binding. It accepts nil,
// Value, every integer, float, bool, string and []byte type (including
// named types whose underlying type is one of those) and pointers to them,
// where a nil pointer binds NULL. ok is false for anything else.
func ValueOf(arg any) (v Value, ok bool) {
	switch x := arg.(type) {
	case nil:
		return Null(), true
	case Value:
		return x, true
	case int64:
		return Integer(x), true
	case int:
		return Integer(int64(x)), true
	case float64:
		return Real(x), true
	case string:
		return Text(x), true
	case []byte:
		return Blob(x), true
	case bool:
		return Bool(x), true
	}

	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), true
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Integer(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, false
		}
		return Integer(int64(u)), true
	case reflect.Float32, reflect.Float64:
		return Real(rv.Float()), true
	case reflect.Bool:
		return Bool(rv.Bool()), true
	case reflect.String:
		return Text(rv.String()), true
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.IsNil() {
				return Null(), true
			}
			return Blob(rv.Bytes()), true
		}
	}
	return Value{}, false
}

// fromDriver converts a value scanned from database/sql into a Value.
func fromDriver(src any) Value {
	switch x := src.(type) {
	case nil:
		return Null()
	case int64:
		return Integer(x)
	case float64:
		return Real(x)
	case string:
		return Text(x)
	case []byte:
		return Value{kind: KindBlob, b: x}
	case bool:
		return Bool(x)
	case time.Time:
		return Text(x.Format(time.RFC3339Nano))
	default:
		if v, ok := ValueOf(x); ok {
			return v
		}
		return Null()
	}
}
