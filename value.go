package memscan

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// Tag identifies one of the thirteen value kinds the scan engine can
// reinterpret a byte window as.
type Tag int

const (
	TagInt8 Tag = iota
	TagInt16
	TagInt32
	TagInt64
	TagUInt8
	TagUInt16
	TagUInt32
	TagUInt64
	TagFloat32
	TagFloat64
	TagSize
	TagPointer
	TagBool
)

// addressWidth is the native address width of the architectures this
// scanner targets (amd64, arm64); both are 64-bit.
const addressWidth = 8

func (t Tag) String() string {
	switch t {
	case TagInt8:
		return "Int8"
	case TagInt16:
		return "Int16"
	case TagInt32:
		return "Int32"
	case TagInt64:
		return "Int64"
	case TagUInt8:
		return "UInt8"
	case TagUInt16:
		return "UInt16"
	case TagUInt32:
		return "UInt32"
	case TagUInt64:
		return "UInt64"
	case TagFloat32:
		return "Float32"
	case TagFloat64:
		return "Float64"
	case TagSize:
		return "Size"
	case TagPointer:
		return "Pointer"
	case TagBool:
		return "Bool"
	default:
		return "Unknown"
	}
}

// ParseTag maps a tag's canonical string name back to a Tag, the
// inverse of Tag.String. Used by the CLI's --scan-type flag.
func ParseTag(s string) (Tag, bool) {
	switch s {
	case "Int8":
		return TagInt8, true
	case "Int16":
		return TagInt16, true
	case "Int32":
		return TagInt32, true
	case "Int64":
		return TagInt64, true
	case "UInt8":
		return TagUInt8, true
	case "UInt16":
		return TagUInt16, true
	case "UInt32":
		return TagUInt32, true
	case "UInt64":
		return TagUInt64, true
	case "Float32":
		return TagFloat32, true
	case "Float64":
		return TagFloat64, true
	case "Size":
		return TagSize, true
	case "Pointer":
		return TagPointer, true
	case "Bool":
		return TagBool, true
	default:
		return 0, false
	}
}

// TypeSize returns the fixed byte width of a tag. Size and Pointer use
// the native address width.
func TypeSize(t Tag) int {
	switch t {
	case TagInt8, TagUInt8, TagBool:
		return 1
	case TagInt16, TagUInt16:
		return 2
	case TagInt32, TagUInt32, TagFloat32:
		return 4
	case TagInt64, TagUInt64, TagFloat64:
		return 8
	case TagSize, TagPointer:
		return addressWidth
	default:
		return 0
	}
}

// Value is a tagged variant over the thirteen scan-engine value kinds.
// It is kept as a single flat struct (a Tag discriminant plus a raw
// 64-bit payload) rather than an interface hierarchy, so comparators
// and arithmetic stay total functions over matching tags instead of
// dynamic type assertions.
type Value struct {
	Tag  Tag
	bits uint64
}

func Int8Value(x int8) Value     { return Value{Tag: TagInt8, bits: uint64(uint8(x))} }
func Int16Value(x int16) Value   { return Value{Tag: TagInt16, bits: uint64(uint16(x))} }
func Int32Value(x int32) Value   { return Value{Tag: TagInt32, bits: uint64(uint32(x))} }
func Int64Value(x int64) Value   { return Value{Tag: TagInt64, bits: uint64(x)} }
func UInt8Value(x uint8) Value   { return Value{Tag: TagUInt8, bits: uint64(x)} }
func UInt16Value(x uint16) Value { return Value{Tag: TagUInt16, bits: uint64(x)} }
func UInt32Value(x uint32) Value { return Value{Tag: TagUInt32, bits: uint64(x)} }
func UInt64Value(x uint64) Value { return Value{Tag: TagUInt64, bits: x} }
func Float32Value(x float32) Value {
	return Value{Tag: TagFloat32, bits: uint64(math.Float32bits(x))}
}
func Float64Value(x float64) Value { return Value{Tag: TagFloat64, bits: math.Float64bits(x)} }
func SizeValue(x uint64) Value     { return Value{Tag: TagSize, bits: x} }
func PointerValue(x uint64) Value  { return Value{Tag: TagPointer, bits: x} }
func BoolValue(x bool) Value {
	if x {
		return Value{Tag: TagBool, bits: 1}
	}
	return Value{Tag: TagBool, bits: 0}
}

func (v Value) Int8() int8       { return int8(uint8(v.bits)) }
func (v Value) Int16() int16     { return int16(uint16(v.bits)) }
func (v Value) Int32() int32     { return int32(uint32(v.bits)) }
func (v Value) Int64() int64     { return int64(v.bits) }
func (v Value) UInt8() uint8     { return uint8(v.bits) }
func (v Value) UInt16() uint16   { return uint16(v.bits) }
func (v Value) UInt32() uint32   { return uint32(v.bits) }
func (v Value) UInt64() uint64   { return v.bits }
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Float64() float64 { return math.Float64frombits(v.bits) }
func (v Value) Size() uint64     { return v.bits }
func (v Value) Pointer() uint64  { return v.bits }
func (v Value) Bool() bool       { return v.bits != 0 }

// ToBytes encodes v in the native (little-endian) byte order of the
// amd64/arm64 targets this scanner supports. The result's length
// always equals TypeSize(v.Tag).
func (v Value) ToBytes() []byte {
	switch v.Tag {
	case TagInt8, TagUInt8:
		return []byte{byte(v.bits)}
	case TagBool:
		if v.Bool() {
			return []byte{1}
		}
		return []byte{0}
	case TagInt16, TagUInt16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v.bits))
		return b
	case TagInt32, TagUInt32, TagFloat32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.bits))
		return b
	case TagInt64, TagUInt64, TagFloat64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v.bits)
		return b
	case TagSize, TagPointer:
		b := make([]byte, addressWidth)
		binary.LittleEndian.PutUint64(b, v.bits)
		return b
	default:
		return nil
	}
}

// FromBytes reinterprets the first TypeSize(tag) bytes of b as tag.
// It never fails: decoding is a total reinterpretation of raw bits,
// including denormal floats and NaN bit patterns.
func FromBytes(b []byte, tag Tag) Value {
	switch tag {
	case TagInt8:
		return Int8Value(int8(b[0]))
	case TagUInt8:
		return UInt8Value(b[0])
	case TagBool:
		return BoolValue(b[0] != 0)
	case TagInt16:
		return Int16Value(int16(binary.LittleEndian.Uint16(b)))
	case TagUInt16:
		return UInt16Value(binary.LittleEndian.Uint16(b))
	case TagInt32:
		return Int32Value(int32(binary.LittleEndian.Uint32(b)))
	case TagUInt32:
		return UInt32Value(binary.LittleEndian.Uint32(b))
	case TagFloat32:
		return Float32Value(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case TagInt64:
		return Int64Value(int64(binary.LittleEndian.Uint64(b)))
	case TagUInt64:
		return UInt64Value(binary.LittleEndian.Uint64(b))
	case TagFloat64:
		return Float64Value(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case TagSize:
		return SizeValue(binary.LittleEndian.Uint64(b))
	case TagPointer:
		return PointerValue(binary.LittleEndian.Uint64(b))
	default:
		return Value{}
	}
}

// ScanTypes returns the default reinterpretation tag list for an
// autodetected input value, per the fixed widening/narrowing policy.
func ScanTypes(v Value) []Tag {
	switch v.Tag {
	case TagInt8:
		return []Tag{TagInt8, TagInt16, TagInt32}
	case TagInt16:
		return []Tag{TagInt16, TagInt8, TagInt32}
	case TagInt32:
		return []Tag{TagInt32, TagInt64, TagInt16}
	case TagInt64:
		return []Tag{TagInt64, TagInt32}
	case TagUInt8:
		return []Tag{TagUInt8, TagUInt16, TagUInt32}
	case TagUInt16:
		return []Tag{TagUInt16, TagUInt8, TagUInt32}
	case TagUInt32:
		return []Tag{TagUInt32, TagUInt64, TagUInt16}
	case TagUInt64:
		return []Tag{TagUInt64, TagUInt32}
	case TagFloat32:
		return []Tag{TagFloat32, TagFloat64}
	case TagFloat64:
		return []Tag{TagFloat64, TagFloat32}
	case TagSize:
		return []Tag{TagSize, TagUInt64, TagInt64}
	case TagPointer:
		return []Tag{TagPointer, TagUInt64}
	case TagBool:
		return []Tag{TagBool, TagUInt8}
	default:
		return nil
	}
}

// float32epsilon and float64epsilon are the ULP-1 machine epsilons for
// the respective IEEE-754 widths; this exact epsilon choice is the
// contract for float comparisons (see spec §3).
const float32epsilon = 1.1920929e-7
const float64epsilon = 2.220446049250313e-16

func float32Eq(a, b float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < float32epsilon
}

func float64Eq(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < float64epsilon
}

// Equals compares two values of the same tag for exact equality
// (integers, Bool) or within the float epsilon (Float32/Float64).
// Mismatched tags are never equal.
func (v Value) Equals(o Value) bool {
	if v.Tag != o.Tag {
		return false
	}
	switch v.Tag {
	case TagInt8:
		return v.Int8() == o.Int8()
	case TagInt16:
		return v.Int16() == o.Int16()
	case TagInt32:
		return v.Int32() == o.Int32()
	case TagInt64:
		return v.Int64() == o.Int64()
	case TagUInt8:
		return v.UInt8() == o.UInt8()
	case TagUInt16:
		return v.UInt16() == o.UInt16()
	case TagUInt32:
		return v.UInt32() == o.UInt32()
	case TagUInt64:
		return v.UInt64() == o.UInt64()
	case TagFloat32:
		return float32Eq(v.Float32(), o.Float32())
	case TagFloat64:
		return float64Eq(v.Float64(), o.Float64())
	case TagSize:
		return v.Size() == o.Size()
	case TagPointer:
		return v.Pointer() == o.Pointer()
	case TagBool:
		return v.Bool() == o.Bool()
	default:
		return false
	}
}

// Greater reports whether v strictly exceeds o. Float comparisons are
// strict (a>b and not Equals(a,b)); Bool treats true>false.
func (v Value) Greater(o Value) bool {
	if v.Tag != o.Tag {
		return false
	}
	switch v.Tag {
	case TagInt8:
		return v.Int8() > o.Int8()
	case TagInt16:
		return v.Int16() > o.Int16()
	case TagInt32:
		return v.Int32() > o.Int32()
	case TagInt64:
		return v.Int64() > o.Int64()
	case TagUInt8:
		return v.UInt8() > o.UInt8()
	case TagUInt16:
		return v.UInt16() > o.UInt16()
	case TagUInt32:
		return v.UInt32() > o.UInt32()
	case TagUInt64:
		return v.UInt64() > o.UInt64()
	case TagFloat32:
		return !float32Eq(v.Float32(), o.Float32()) && v.Float32() > o.Float32()
	case TagFloat64:
		return !float64Eq(v.Float64(), o.Float64()) && v.Float64() > o.Float64()
	case TagSize:
		return v.Size() > o.Size()
	case TagPointer:
		return v.Pointer() > o.Pointer()
	case TagBool:
		return v.Bool() && !o.Bool()
	default:
		return false
	}
}

// Less reports whether v is strictly below o; see Greater.
func (v Value) Less(o Value) bool {
	if v.Tag != o.Tag {
		return false
	}
	switch v.Tag {
	case TagInt8:
		return v.Int8() < o.Int8()
	case TagInt16:
		return v.Int16() < o.Int16()
	case TagInt32:
		return v.Int32() < o.Int32()
	case TagInt64:
		return v.Int64() < o.Int64()
	case TagUInt8:
		return v.UInt8() < o.UInt8()
	case TagUInt16:
		return v.UInt16() < o.UInt16()
	case TagUInt32:
		return v.UInt32() < o.UInt32()
	case TagUInt64:
		return v.UInt64() < o.UInt64()
	case TagFloat32:
		return !float32Eq(v.Float32(), o.Float32()) && v.Float32() < o.Float32()
	case TagFloat64:
		return !float64Eq(v.Float64(), o.Float64()) && v.Float64() < o.Float64()
	case TagSize:
		return v.Size() < o.Size()
	case TagPointer:
		return v.Pointer() < o.Pointer()
	case TagBool:
		return !v.Bool() && o.Bool()
	default:
		return false
	}
}

// Add wraps integer addition modulo the operand width; ok is false on
// a tag mismatch.
func (v Value) Add(o Value) (result Value, ok bool) {
	if v.Tag != o.Tag {
		return Value{}, false
	}
	switch v.Tag {
	case TagInt8:
		return Int8Value(v.Int8() + o.Int8()), true
	case TagInt16:
		return Int16Value(v.Int16() + o.Int16()), true
	case TagInt32:
		return Int32Value(v.Int32() + o.Int32()), true
	case TagInt64:
		return Int64Value(v.Int64() + o.Int64()), true
	case TagUInt8:
		return UInt8Value(v.UInt8() + o.UInt8()), true
	case TagUInt16:
		return UInt16Value(v.UInt16() + o.UInt16()), true
	case TagUInt32:
		return UInt32Value(v.UInt32() + o.UInt32()), true
	case TagUInt64:
		return UInt64Value(v.UInt64() + o.UInt64()), true
	case TagFloat32:
		return Float32Value(v.Float32() + o.Float32()), true
	case TagFloat64:
		return Float64Value(v.Float64() + o.Float64()), true
	case TagSize:
		return SizeValue(v.Size() + o.Size()), true
	case TagPointer:
		return PointerValue(v.Pointer() + o.Pointer()), true
	case TagBool:
		return BoolValue(v.Bool() || o.Bool()), true
	default:
		return Value{}, false
	}
}

// Sub wraps integer subtraction modulo the operand width; ok is false
// on a tag mismatch.
func (v Value) Sub(o Value) (result Value, ok bool) {
	if v.Tag != o.Tag {
		return Value{}, false
	}
	switch v.Tag {
	case TagInt8:
		return Int8Value(v.Int8() - o.Int8()), true
	case TagInt16:
		return Int16Value(v.Int16() - o.Int16()), true
	case TagInt32:
		return Int32Value(v.Int32() - o.Int32()), true
	case TagInt64:
		return Int64Value(v.Int64() - o.Int64()), true
	case TagUInt8:
		return UInt8Value(v.UInt8() - o.UInt8()), true
	case TagUInt16:
		return UInt16Value(v.UInt16() - o.UInt16()), true
	case TagUInt32:
		return UInt32Value(v.UInt32() - o.UInt32()), true
	case TagUInt64:
		return UInt64Value(v.UInt64() - o.UInt64()), true
	case TagFloat32:
		return Float32Value(v.Float32() - o.Float32()), true
	case TagFloat64:
		return Float64Value(v.Float64() - o.Float64()), true
	case TagSize:
		return SizeValue(v.Size() - o.Size()), true
	case TagPointer:
		return PointerValue(v.Pointer() - o.Pointer()), true
	case TagBool:
		return BoolValue(v.Bool() && !o.Bool()), true
	default:
		return Value{}, false
	}
}

// Mode names a scan comparator, matching the spec's mode table
// exactly (including the multi-word names with spaces).
type Mode string

const (
	ModeExact              Mode = "Exact"
	ModeChanged            Mode = "Changed"
	ModeUnchanged          Mode = "Unchanged"
	ModeIncreased          Mode = "Increased"
	ModeIncreasedOrGreater Mode = "Increased or Greater"
	ModeIncreasedBy        Mode = "Increased by"
	ModeDecreased          Mode = "Decreased"
	ModeDecreasedOrLess    Mode = "Decreased or Less"
	ModeDecreasedBy        Mode = "Decreased by"
)

// Comparator evaluates mode against (old, new, input) per the
// authoritative mode-semantics table. Exact uses input; every other
// mode uses old (and, for the "by" modes, input as well).
func Comparator(mode Mode, old, new, input Value) bool {
	switch mode {
	case ModeExact:
		return new.Equals(input)
	case ModeChanged:
		return !new.Equals(old)
	case ModeUnchanged:
		return new.Equals(old)
	case ModeIncreased:
		return new.Greater(old)
	case ModeIncreasedOrGreater:
		return new.Greater(old) || new.Equals(old)
	case ModeIncreasedBy:
		sum, ok := old.Add(input)
		return ok && new.Equals(sum)
	case ModeDecreased:
		return new.Less(old)
	case ModeDecreasedOrLess:
		return new.Less(old) || new.Equals(old)
	case ModeDecreasedBy:
		diff, ok := old.Sub(input)
		return ok && new.Equals(diff)
	default:
		return false
	}
}

// Parse recognizes the typed-prefix grammar (tag:lexeme) and, absent a
// recognized prefix, autodetects a bare lexeme as described in spec
// §4.1. It returns ok=false for anything it cannot parse.
func Parse(text string) (Value, bool) {
	t := strings.TrimSpace(text)
	if prefix, lexeme, found := strings.Cut(t, ":"); found {
		switch prefix {
		case "bool", "boolean":
			b, err := strconv.ParseBool(lexeme)
			if err != nil {
				return Value{}, false
			}
			return BoolValue(b), true
		case "byte", "b":
			n, err := strconv.ParseUint(lexeme, 10, 8)
			if err != nil {
				return Value{}, false
			}
			return UInt8Value(uint8(n)), true
		case "hex", "h":
			n, err := strconv.ParseUint(lexeme, 16, 64)
			if err != nil {
				return Value{}, false
			}
			switch {
			case n <= math.MaxUint8:
				return UInt8Value(uint8(n)), true
			case n <= math.MaxUint16:
				return UInt16Value(uint16(n)), true
			case n <= math.MaxUint32:
				return UInt32Value(uint32(n)), true
			default:
				return UInt64Value(n), true
			}
		case "int8", "i8", "char":
			n, err := strconv.ParseInt(lexeme, 10, 8)
			if err != nil {
				return Value{}, false
			}
			return Int8Value(int8(n)), true
		case "int16", "i16", "short":
			n, err := strconv.ParseInt(lexeme, 10, 16)
			if err != nil {
				return Value{}, false
			}
			return Int16Value(int16(n)), true
		case "int32", "i32", "int":
			n, err := strconv.ParseInt(lexeme, 10, 32)
			if err != nil {
				return Value{}, false
			}
			return Int32Value(int32(n)), true
		case "int64", "i64", "long":
			n, err := strconv.ParseInt(lexeme, 10, 64)
			if err != nil {
				return Value{}, false
			}
			return Int64Value(n), true
		case "float32", "f32", "float":
			n, err := strconv.ParseFloat(lexeme, 32)
			if err != nil {
				return Value{}, false
			}
			return Float32Value(float32(n)), true
		case "float64", "f64", "double":
			n, err := strconv.ParseFloat(lexeme, 64)
			if err != nil {
				return Value{}, false
			}
			return Float64Value(n), true
		case "size", "s":
			n, err := strconv.ParseUint(lexeme, 10, 64)
			if err != nil {
				return Value{}, false
			}
			return SizeValue(n), true
		case "ptr", "pointer":
			n, err := strconv.ParseUint(lexeme, 10, 64)
			if err != nil {
				return Value{}, false
			}
			return PointerValue(n), true
		}
		// An unrecognized prefix falls through to bare-lexeme parsing
		// of the whole original text, matching the original's
		// catch-all match arm.
	}

	if n, err := strconv.ParseInt(t, 10, 64); err == nil {
		switch {
		case n >= math.MinInt8 && n <= math.MaxInt8:
			return Int8Value(int8(n)), true
		case n >= math.MinInt16 && n <= math.MaxInt16:
			return Int16Value(int16(n)), true
		case n >= math.MinInt32 && n <= math.MaxInt32:
			return Int32Value(int32(n)), true
		default:
			return Int64Value(n), true
		}
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil {
		if math.Abs(f) <= math.MaxFloat32 {
			return Float32Value(float32(f)), true
		}
		return Float64Value(f), true
	}
	return Value{}, false
}
