package dist

import (
	"errors"
	"fmt"

	"github.com/chazu/coxy/vm"
	"github.com/fxamacker/cbor/v2"
)

// ErrVersion is returned when an image was written by an unsupported format.
var ErrVersion = errors.New("dist: unsupported image version")

// cborEncMode uses canonical mode so equal programs encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes fn and every function nested in its constants.
func Marshal(h *vm.Heap, fn *vm.ObjFunction) ([]byte, error) {
	img, err := NewImage(h, fn)
	if err != nil {
		return nil, err
	}
	return MarshalImage(img)
}

// MarshalImage serializes an Image to CBOR bytes.
func MarshalImage(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// UnmarshalImage deserializes an Image from CBOR bytes and checks its
// version.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("dist: unmarshal image: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, img.Version)
	}
	return &img, nil
}

// Unmarshal decodes an image and loads it into h, returning the script
// function. Strings are interned in h, so equal strings from the image and
// from code compiled in h are the same object.
func Unmarshal(h *vm.Heap, data []byte) (*vm.ObjFunction, error) {
	img, err := UnmarshalImage(data)
	if err != nil {
		return nil, err
	}
	return Load(h, img)
}

// NewImage flattens the function tree rooted at fn.
func NewImage(h *vm.Heap, fn *vm.ObjFunction) (*Image, error) {
	b := &imageBuilder{
		heap:  h,
		index: make(map[*vm.ObjFunction]int),
		img:   &Image{Version: ImageVersion},
	}
	if _, err := b.add(fn); err != nil {
		return nil, err
	}
	return b.img, nil
}

type imageBuilder struct {
	heap  *vm.Heap
	index map[*vm.ObjFunction]int
	img   *Image
}

func (b *imageBuilder) add(fn *vm.ObjFunction) (int, error) {
	if idx, ok := b.index[fn]; ok {
		return idx, nil
	}
	idx := len(b.img.Functions)
	b.index[fn] = idx

	out := Function{
		Arity:        fn.Arity,
		UpvalueCount: fn.UpvalueCount,
		Code:         append([]byte(nil), fn.Chunk.Code...),
		Lines:        append([]int(nil), fn.Chunk.Lines...),
	}
	if fn.Name != nil {
		out.Name = fn.Name.Chars
	}
	b.img.Functions = append(b.img.Functions, out)

	constants := make([]Constant, len(fn.Chunk.Constants))
	for i, v := range fn.Chunk.Constants {
		c, err := b.constant(v)
		if err != nil {
			return 0, fmt.Errorf("dist: %s constant %d: %w", fn.DisplayName(), i, err)
		}
		constants[i] = c
	}
	b.img.Functions[idx].Constants = constants
	return idx, nil
}

func (b *imageBuilder) constant(v vm.Value) (Constant, error) {
	switch {
	case v.IsNumber():
		return Constant{Kind: ConstNumber, Number: v.AsNumber()}, nil
	case v.IsBool():
		return Constant{Kind: ConstBool, Bool: v.AsBool()}, nil
	case v.IsNil():
		return Constant{Kind: ConstNil}, nil
	}

	switch o := b.heap.Object(v).(type) {
	case *vm.ObjString:
		return Constant{Kind: ConstString, String: o.Chars}, nil
	case *vm.ObjFunction:
		idx, err := b.add(o)
		if err != nil {
			return Constant{}, err
		}
		return Constant{Kind: ConstFunction, Function: idx}, nil
	default:
		return Constant{}, fmt.Errorf("cannot serialize %s", b.heap.TypeName(v))
	}
}

// Load allocates the image's functions in h and returns the script.
func Load(h *vm.Heap, img *Image) (*vm.ObjFunction, error) {
	if len(img.Functions) == 0 {
		return nil, errors.New("dist: image has no functions")
	}
	for i, f := range img.Functions {
		if len(f.Code) != len(f.Lines) {
			return nil, fmt.Errorf("dist: function %d: %d code bytes but %d lines", i, len(f.Code), len(f.Lines))
		}
		if f.Arity < 0 || f.Arity > 255 || f.UpvalueCount < 0 || f.UpvalueCount > 256 {
			return nil, fmt.Errorf("dist: function %d: arity %d or upvalue count %d out of range", i, f.Arity, f.UpvalueCount)
		}
	}

	// Allocate every function first so constants can refer forward.
	fns := make([]*vm.ObjFunction, len(img.Functions))
	for i, f := range img.Functions {
		fn := h.NewFunction()
		fn.Arity = f.Arity
		fn.UpvalueCount = f.UpvalueCount
		if f.Name != "" {
			fn.Name = h.InternString(f.Name)
		}
		for j, b := range f.Code {
			fn.Chunk.Write(b, f.Lines[j])
		}
		fns[i] = fn
	}

	for i, f := range img.Functions {
		for j, c := range f.Constants {
			v, err := loadConstant(h, fns, c)
			if err != nil {
				return nil, fmt.Errorf("dist: function %d constant %d: %w", i, j, err)
			}
			fns[i].Chunk.AddConstant(v)
		}
	}
	return fns[0], nil
}

func loadConstant(h *vm.Heap, fns []*vm.ObjFunction, c Constant) (vm.Value, error) {
	switch c.Kind {
	case ConstNil:
		return vm.Nil, nil
	case ConstBool:
		return vm.Bool(c.Bool), nil
	case ConstNumber:
		return vm.Number(c.Number), nil
	case ConstString:
		return h.InternString(c.String).Value(), nil
	case ConstFunction:
		if c.Function <= 0 || c.Function >= len(fns) {
			return vm.Nil, fmt.Errorf("function index %d out of range", c.Function)
		}
		return fns[c.Function].Value(), nil
	default:
		return vm.Nil, fmt.Errorf("unknown constant kind %d", c.Kind)
	}
}
