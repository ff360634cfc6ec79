package vm

import (
	"math"
	"strconv"
)

// Value represents a coxy value using NaN-boxing.
//
// All values are 64-bit IEEE 754 doubles. Non-number values are encoded in
// the NaN space using the quiet NaN prefix and tag bits to distinguish them.
//
// Encoding scheme:
//   - Number: native IEEE 754 double (anything that is not a tagged NaN)
//   - Object: quiet NaN + tagObject + 32-bit heap Ref
//   - Special: quiet NaN + tagSpecial + special value ID (nil/true/false)
//
// The encoding is an implementation detail; code outside this file only uses
// the constructors and predicates below.
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits, of which objects use the low 32
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	tagObject  uint64 = 0x0001000000000000 // Heap object reference
	tagSpecial uint64 = 0x0003000000000000 // nil, true, false

	// Bits of the one NaN arithmetic is allowed to produce.
	canonicalNaN uint64 = nanBits
)

// Special value payloads
const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special values
const (
	Nil   Value = Value(nanBits | tagSpecial | specialNil)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)
)

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Number creates a Value from a float64. Every NaN is canonicalized so it
// can never collide with a tagged value.
func Number(f float64) Value {
	if f != f {
		return Value(canonicalNaN)
	}
	return Value(math.Float64bits(f))
}

// Bool creates a Value from a Go bool.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromRef creates an object Value from a heap reference.
func FromRef(r Ref) Value {
	return Value(nanBits | tagObject | uint64(r))
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsNumber returns true if v holds a number (including NaN and infinities).
func (v Value) IsNumber() bool {
	bits := uint64(v)
	if bits&nanBits != nanBits {
		return true
	}
	return bits&tagMask == 0
}

// IsObject returns true if v references a heap object.
func (v Value) IsObject() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagObject)
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v == Nil
}

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool {
	return v == True || v == False
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// AsNumber returns v as a float64. The caller must have checked IsNumber.
func (v Value) AsNumber() float64 {
	return math.Float64frombits(uint64(v))
}

// AsBool returns v as a Go bool. The caller must have checked IsBool.
func (v Value) AsBool() bool {
	return v == True
}

// AsRef returns the heap reference held by v. The caller must have checked
// IsObject.
func (v Value) AsRef() Ref {
	return Ref(uint64(v) & payloadMask)
}

// ---------------------------------------------------------------------------
// Semantics
// ---------------------------------------------------------------------------

// Truthy reports whether v counts as true in a condition. Only nil and false
// are falsey; 0 and "" are truthy.
func (v Value) Truthy() bool {
	return v != Nil && v != False
}

// IsFalsey is the negation of Truthy.
func IsFalsey(v Value) bool {
	return !v.Truthy()
}

// Equal compares two values. Values of different types are never equal,
// numbers follow IEEE 754 (NaN != NaN), and objects compare by identity.
// Strings are interned, so identity is content equality for them.
func Equal(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.AsNumber() == b.AsNumber()
	}
	return a == b
}

// TypeName returns the language-level name of v's type, used in error
// messages. Object kinds need the heap to be named; see Heap.TypeName.
func (v Value) TypeName() string {
	switch {
	case v.IsNumber():
		return "number"
	case v.IsBool():
		return "boolean"
	case v.IsNil():
		return "nil"
	default:
		return "object"
	}
}

// formatNumber renders a number the way print shows it.
func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f != f:
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
