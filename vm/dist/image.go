// Package dist serializes compiled coxy programs so they can be stored or
// shipped and loaded into another VM without recompiling. Images use
// canonical CBOR encoding.
package dist

// ImageVersion is the format version written by Marshal. Unmarshal rejects
// any other version.
const ImageVersion = 1

// ConstKind identifies the kind of value in a constant pool entry.
type ConstKind uint8

const (
	ConstNil      ConstKind = 0
	ConstBool     ConstKind = 1
	ConstNumber   ConstKind = 2
	ConstString   ConstKind = 3
	ConstFunction ConstKind = 4
)

// Image is a compiled program: every function reachable from the script,
// flattened into a table. Functions[0] is the top-level script.
type Image struct {
	Version   uint16     `cbor:"1,keyasint"`
	Functions []Function `cbor:"2,keyasint"`
}

// Function is one compiled function. Nested functions appear in the
// constant pool as indexes into Image.Functions.
type Function struct {
	Name         string     `cbor:"1,keyasint,omitempty"` // empty for the script
	Arity        int        `cbor:"2,keyasint"`
	UpvalueCount int        `cbor:"3,keyasint"`
	Code         []byte     `cbor:"4,keyasint"`
	Lines        []int      `cbor:"5,keyasint"`
	Constants    []Constant `cbor:"6,keyasint,omitempty"`
}

// Constant is one constant pool entry. Only the field selected by Kind is
// meaningful.
type Constant struct {
	Kind     ConstKind `cbor:"1,keyasint"`
	Bool     bool      `cbor:"2,keyasint,omitempty"`
	Number   float64   `cbor:"3,keyasint,omitempty"`
	String   string    `cbor:"4,keyasint,omitempty"`
	Function int       `cbor:"5,keyasint,omitempty"`
}
