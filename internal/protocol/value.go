package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Kind selects the variant of a Value.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
	KindBytes
	KindList
	KindTuple
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a closed tagged variant over the broadcast value kinds. Exactly
// one payload field is meaningful, selected by Kind. Values produced by the
// decoder always correspond to a well-formed, fully consumed encoding.
type Value struct {
	Kind  Kind
	Int   int64
	Float float32
	Bool  bool
	Str   string
	Bytes []byte
	Items []Value
}

func Int(v int64) Value { return Value{Kind: KindInt, Int: v} }

func Float(v float32) Value { return Value{Kind: KindFloat, Float: v} }

func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

func String(v string) Value { return Value{Kind: KindString, Str: v} }

func Bytes(v []byte) Value { return Value{Kind: KindBytes, Bytes: v} }

func List(items ...Value) Value { return Value{Kind: KindList, Items: items} }

func Tuple(items ...Value) Value { return Value{Kind: KindTuple, Items: items} }

// Equal reports structural equality, descending into containers.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindBool:
		return v.Bool == o.Bool
	case KindString:
		return v.Str == o.Str
	case KindBytes:
		if len(v.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	case KindList, KindTuple:
		if len(v.Items) != len(o.Items) {
			return false
		}
		for i := range v.Items {
			if !v.Items[i].Equal(o.Items[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders the value for display: integers in decimal, floats with up
// to six significant digits, byte strings as hex, lists in brackets and
// tuples in parentheses.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(float64(v.Float), 'g', 6, 32)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return v.Str
	case KindBytes:
		return hex.EncodeToString(v.Bytes)
	case KindList:
		return v.joinItems("[", "]")
	case KindTuple:
		return v.joinItems("(", ")")
	default:
		return "?"
	}
}

func (v Value) joinItems(open, closing string) string {
	var sb strings.Builder
	sb.WriteString(open)
	for i, item := range v.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(item.String())
	}
	sb.WriteString(closing)
	return sb.String()
}
