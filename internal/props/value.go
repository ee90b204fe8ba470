package props

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindLong
	KindDouble
	KindBool
	KindStrings
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindStrings:
		return "string-list"
	default:
		return "unknown"
	}
}

// Value is a typed property value. Coercion between kinds is explicit: each
// accessor returns the held value converted, plus ok=false when the
// conversion is lossy or impossible.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	list []string
}

func StringValue(s string) Value    { return Value{kind: KindString, s: s} }
func IntValue(i int) Value          { return Value{kind: KindInt, i: int64(i)} }
func LongValue(i int64) Value       { return Value{kind: KindLong, i: i} }
func DoubleValue(f float64) Value   { return Value{kind: KindDouble, f: f} }
func BoolValue(b bool) Value        { return Value{kind: KindBool, b: b} }
func StringsValue(l []string) Value { return Value{kind: KindStrings, list: append([]string(nil), l...)} }

// ValueOf wraps a decoded configuration scalar.
func ValueOf(v any) Value {
	switch t := v.(type) {
	case Value:
		return t
	case string:
		return StringValue(t)
	case int:
		return IntValue(t)
	case int32:
		return IntValue(int(t))
	case int64:
		return LongValue(t)
	case uint64:
		return LongValue(int64(t))
	case float32:
		return DoubleValue(float64(t))
	case float64:
		return DoubleValue(t)
	case bool:
		return BoolValue(t)
	case []string:
		return StringsValue(t)
	case []any:
		l := make([]string, 0, len(t))
		for _, e := range t {
			l = append(l, fmt.Sprint(e))
		}
		return StringsValue(l)
	case nil:
		return StringValue("")
	default:
		return StringValue(fmt.Sprint(t))
	}
}

func (v Value) Kind() Kind { return v.kind }

// String renders the value as text. String lists are comma joined.
func (v Value) String() string {
	switch v.kind {
	case KindInt, KindLong:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindStrings:
		return strings.Join(v.list, ",")
	default:
		return v.s
	}
}

// Int64 returns the value as an integer. Strings are parsed with base
// prefixes (0x..), doubles are truncated.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInt, KindLong:
		return v.i, true
	case KindDouble:
		return int64(v.f), true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		s := strings.TrimSpace(v.s)
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func (v Value) Int() (int, bool) {
	n, ok := v.Int64()
	return int(n), ok
}

func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindDouble:
		return v.f, true
	case KindInt, KindLong:
		return float64(v.i), true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		return f, err == nil
	}
	return 0, false
}

// Bool accepts the usual spellings: true/false, yes/no, on/off, 1/0.
func (v Value) Bool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindInt, KindLong:
		return v.i != 0, true
	case KindString:
		return ParseBool(v.s)
	}
	return false, false
}

// Strings returns a list. Scalar strings are split on commas and trimmed.
func (v Value) Strings() []string {
	switch v.kind {
	case KindStrings:
		return append([]string(nil), v.list...)
	case KindString:
		if strings.TrimSpace(v.s) == "" {
			return nil
		}
		parts := strings.Split(v.s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	default:
		return []string{v.String()}
	}
}

// ParseBool parses a boolean spelling.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1", "y", "t":
		return true, true
	case "false", "no", "off", "0", "n", "f":
		return false, true
	}
	return false, false
}
