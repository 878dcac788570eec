package schema

import "fmt"

// ---------------------------------------------------------------------------
// EValue: tagged value slot
// ---------------------------------------------------------------------------

// ValueKind tags the payload held by an EValue.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindInt
	KindDouble
	KindBool
	KindString
	KindTensor
	KindIntList
	KindDoubleList
	KindBoolList
	KindTensorList
)

// String returns a human-readable name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindTensor:
		return "tensor"
	case KindIntList:
		return "int_list"
	case KindDoubleList:
		return "double_list"
	case KindBoolList:
		return "bool_list"
	case KindTensorList:
		return "tensor_list"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// EValue is one entry of a plan's value table. Exactly one payload field is
// meaningful, selected by Kind. IntList and TensorList hold indices of other
// slots in the same value table; DoubleList and BoolList hold their payload
// inline.
type EValue struct {
	Kind   ValueKind `cbor:"1,keyasint"`
	Int    int64     `cbor:"2,keyasint,omitempty"`
	Double float64   `cbor:"3,keyasint,omitempty"`
	Bool   bool      `cbor:"4,keyasint,omitempty"`
	String string    `cbor:"5,keyasint,omitempty"`
	Tensor *Tensor   `cbor:"6,keyasint,omitempty"`

	Items   []int     `cbor:"7,keyasint,omitempty"` // IntList, TensorList
	Doubles []float64 `cbor:"8,keyasint,omitempty"` // DoubleList
	Bools   []bool    `cbor:"9,keyasint,omitempty"` // BoolList
}

// None returns an EValue holding no payload.
func None() EValue { return EValue{Kind: KindNone} }

// NewInt returns an integer EValue.
func NewInt(v int64) EValue { return EValue{Kind: KindInt, Int: v} }

// NewDouble returns a double EValue.
func NewDouble(v float64) EValue { return EValue{Kind: KindDouble, Double: v} }

// NewBool returns a boolean EValue.
func NewBool(v bool) EValue { return EValue{Kind: KindBool, Bool: v} }

// NewString returns a string EValue.
func NewString(v string) EValue { return EValue{Kind: KindString, String: v} }

// NewTensor returns a tensor EValue.
func NewTensor(t *Tensor) EValue { return EValue{Kind: KindTensor, Tensor: t} }

// NewIntList returns an int list whose items are value-table indices of
// Int slots.
func NewIntList(items []int) EValue { return EValue{Kind: KindIntList, Items: items} }

// NewTensorList returns a tensor list whose items are value-table indices of
// Tensor slots.
func NewTensorList(items []int) EValue { return EValue{Kind: KindTensorList, Items: items} }

// NewDoubleList returns a double list.
func NewDoubleList(vals []float64) EValue { return EValue{Kind: KindDoubleList, Doubles: vals} }

// NewBoolList returns a bool list.
func NewBoolList(vals []bool) EValue { return EValue{Kind: KindBoolList, Bools: vals} }

func (v EValue) GoString() string {
	switch v.Kind {
	case KindNone:
		return "None"
	case KindInt:
		return fmt.Sprintf("Int(%d)", v.Int)
	case KindDouble:
		return fmt.Sprintf("Double(%g)", v.Double)
	case KindBool:
		return fmt.Sprintf("Bool(%t)", v.Bool)
	case KindString:
		return fmt.Sprintf("String(%q)", v.String)
	case KindTensor:
		return fmt.Sprintf("Tensor(%s, %v, buf=%d)", v.Tensor.ScalarType, v.Tensor.Sizes, v.Tensor.DataBufferIdx)
	case KindIntList, KindTensorList:
		return fmt.Sprintf("%s%v", v.Kind, v.Items)
	case KindDoubleList:
		return fmt.Sprintf("%s%v", v.Kind, v.Doubles)
	case KindBoolList:
		return fmt.Sprintf("%s%v", v.Kind, v.Bools)
	default:
		return v.Kind.String()
	}
}

// ---------------------------------------------------------------------------
// Tensor
// ---------------------------------------------------------------------------

// Tensor describes a tensor value slot. DataBufferIdx 0 means the tensor has
// no constant backing; otherwise it indexes the program's constant buffer,
// or the constant segment's offset table when constants were extracted.
type Tensor struct {
	ScalarType     ScalarType         `cbor:"1,keyasint"`
	StorageOffset  int32              `cbor:"2,keyasint"`
	Sizes          []int32            `cbor:"3,keyasint"`
	DimOrder       []uint8            `cbor:"4,keyasint"`
	RequiresGrad   bool               `cbor:"5,keyasint,omitempty"`
	DataBufferIdx  uint32             `cbor:"6,keyasint"`
	AllocationInfo *AllocationDetails `cbor:"7,keyasint,omitempty"`
	Layout         Layout             `cbor:"8,keyasint"`
	ShapeDynamism  ShapeDynamism      `cbor:"9,keyasint"`
}

// Numel returns the number of elements described by Sizes.
func (t *Tensor) Numel() int64 {
	n := int64(1)
	for _, s := range t.Sizes {
		n *= int64(s)
	}
	return n
}

// AllocationDetails locates a memory-planned tensor inside a non-constant
// memory arena. The offset is split into two 32-bit halves.
type AllocationDetails struct {
	MemoryID         uint32 `cbor:"1,keyasint"`
	MemoryOffsetLow  uint32 `cbor:"2,keyasint"`
	MemoryOffsetHigh uint32 `cbor:"3,keyasint"`
}

// NewAllocationDetails splits a 64-bit arena offset.
func NewAllocationDetails(memID uint32, offset uint64) *AllocationDetails {
	return &AllocationDetails{
		MemoryID:         memID,
		MemoryOffsetLow:  uint32(offset),
		MemoryOffsetHigh: uint32(offset >> 32),
	}
}

// Offset reassembles the 64-bit arena offset.
func (a *AllocationDetails) Offset() uint64 {
	return uint64(a.MemoryOffsetHigh)<<32 | uint64(a.MemoryOffsetLow)
}
