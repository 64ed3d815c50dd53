package teflib

import (
	"encoding/json"
	"math"
	"strconv"
)

type argKind uint8

const (
	argNone argKind = iota
	argInt32
	argUint32
	argInt64
	argUint64
	argFloat32
	argFloat64
	argString
)

// Argument is one key/value pair attached to an event.
// Numeric values are stored inline so building an Argument never allocates.
type Argument struct {
	Key StringID

	kind argKind
	bits uint64
	str  string

	// rendered memoizes the JSON fragment. Only Drain writes it.
	rendered string
}

// ArgumentList is the ordered set of arguments for a single event.
// It must not be modified after it has been recorded.
type ArgumentList []Argument

// NoneArg renders as null.
func NoneArg(key StringID) Argument { return Argument{Key: key, kind: argNone} }

// Int32Arg returns a signed 32-bit argument.
func Int32Arg(key StringID, v int32) Argument {
	return Argument{Key: key, kind: argInt32, bits: uint64(int64(v))}
}

// Uint32Arg returns an unsigned 32-bit argument.
func Uint32Arg(key StringID, v uint32) Argument {
	return Argument{Key: key, kind: argUint32, bits: uint64(v)}
}

// Int64Arg returns a signed 64-bit argument.
func Int64Arg(key StringID, v int64) Argument {
	return Argument{Key: key, kind: argInt64, bits: uint64(v)}
}

// Uint64Arg returns an unsigned 64-bit argument.
func Uint64Arg(key StringID, v uint64) Argument {
	return Argument{Key: key, kind: argUint64, bits: v}
}

// Float32Arg returns a single precision argument.
func Float32Arg(key StringID, v float32) Argument {
	return Argument{Key: key, kind: argFloat32, bits: uint64(math.Float32bits(v))}
}

// Float64Arg returns a double precision argument.
func Float64Arg(key StringID, v float64) Argument {
	return Argument{Key: key, kind: argFloat64, bits: math.Float64bits(v)}
}

// StringArg returns a string argument. The string is not copied or escaped
// until the event is drained.
func StringArg(key StringID, v string) Argument {
	return Argument{Key: key, kind: argString, str: v}
}

// Value returns the argument value as a Go value, nil for none.
func (a Argument) Value() any {
	switch a.kind {
	case argInt32:
		return int32(int64(a.bits))
	case argUint32:
		return uint32(a.bits)
	case argInt64:
		return int64(a.bits)
	case argUint64:
		return a.bits
	case argFloat32:
		return math.Float32frombits(uint32(a.bits))
	case argFloat64:
		return math.Float64frombits(a.bits)
	case argString:
		return a.str
	default:
		return nil
	}
}

// render returns `"key":value`, computing it on first use.
func (a *Argument) render(st *StringTable) string {
	if a.rendered != "" {
		return a.rendered
	}

	buf := make([]byte, 0, 32)
	buf = append(buf, st.jsonString(a.Key)...)
	buf = append(buf, ':')
	buf = a.appendValue(buf)

	a.rendered = string(buf)
	return a.rendered
}

func (a *Argument) appendValue(buf []byte) []byte {
	switch a.kind {
	case argInt32, argInt64:
		return strconv.AppendInt(buf, int64(a.bits), 10)
	case argUint32, argUint64:
		return strconv.AppendUint(buf, a.bits, 10)
	case argFloat32:
		return appendFloat(buf, float64(math.Float32frombits(uint32(a.bits))), 32)
	case argFloat64:
		return appendFloat(buf, math.Float64frombits(a.bits), 64)
	case argString:
		quoted, err := json.Marshal(a.str)
		if err != nil {
			return append(buf, "null"...)
		}
		return append(buf, quoted...)
	default:
		return append(buf, "null"...)
	}
}

// appendFloat writes v, or null when v has no JSON representation.
func appendFloat(buf []byte, v float64, bitSize int) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(buf, "null"...)
	}
	return strconv.AppendFloat(buf, v, 'g', -1, bitSize)
}
