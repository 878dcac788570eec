// Package graph models captured, optimized computation graphs as they arrive
// at the emitter. A graph is a topologically ordered node list plus a
// signature describing which placeholders are user inputs and which are
// lifted parameters, buffers or constants.
package graph

import (
	"fmt"

	"github.com/chazu/flatprog/schema"
)

// OpKind is the kind of a graph node.
type OpKind uint8

const (
	OpPlaceholder OpKind = iota + 1
	OpGetAttr
	OpCallFunction
	OpCallDelegate
	OpGetItem
	OpOutput
)

func (k OpKind) String() string {
	switch k {
	case OpPlaceholder:
		return "placeholder"
	case OpGetAttr:
		return "get_attr"
	case OpCallFunction:
		return "call_function"
	case OpCallDelegate:
		return "call_delegate"
	case OpGetItem:
		return "getitem"
	case OpOutput:
		return "output"
	default:
		return fmt.Sprintf("OpKind(%d)", k)
	}
}

// Target names the callee of a node. For call_function it is an operator
// name and overload; for get_attr and call_delegate, Name is a key into the
// program's Constants or Delegates.
type Target struct {
	Name     string `cbor:"1,keyasint"`
	Overload string `cbor:"2,keyasint,omitempty"`
}

func (t Target) String() string {
	if t.Overload == "" {
		return t.Name
	}
	return t.Name + "." + t.Overload
}

// Node is one graph node.
type Node struct {
	Name   string     `cbor:"1,keyasint"`
	Op     OpKind     `cbor:"2,keyasint"`
	Target Target     `cbor:"3,keyasint"`
	Args   []Argument `cbor:"4,keyasint,omitempty"`
	Meta   NodeMeta   `cbor:"5,keyasint"`
}

// NodeMeta carries the per-node metadata the emitter consumes.
type NodeMeta struct {
	// Specs describes each tensor the node produces, in output order.
	Specs []TensorSpec `cbor:"1,keyasint,omitempty"`
	// Value is set when the node produces a scalar instead of a tensor.
	Value *Argument `cbor:"2,keyasint,omitempty"`
	// DebugHandle correlates lowered instructions with this node. Zero
	// means unassigned.
	DebugHandle int `cbor:"3,keyasint,omitempty"`
	// StackTrace is the captured traceback text of the source call site.
	StackTrace string `cbor:"4,keyasint,omitempty"`
}

// TensorSpec describes a tensor value.
type TensorSpec struct {
	ScalarType   schema.ScalarType    `cbor:"1,keyasint"`
	Sizes        []int64              `cbor:"2,keyasint"`
	DimOrder     []uint8              `cbor:"3,keyasint,omitempty"`
	RequiresGrad bool                 `cbor:"4,keyasint,omitempty"`
	Dynamism     schema.ShapeDynamism `cbor:"5,keyasint,omitempty"`

	// Planned is set by memory planning; MemID and MemOffset are only
	// meaningful when it is.
	Planned   bool   `cbor:"6,keyasint,omitempty"`
	MemID     uint32 `cbor:"7,keyasint,omitempty"`
	MemOffset uint64 `cbor:"8,keyasint,omitempty"`
}

// Numel returns the element count.
func (s TensorSpec) Numel() int64 {
	n := int64(1)
	for _, d := range s.Sizes {
		n *= d
	}
	return n
}

// NBytes returns the byte size of a contiguous tensor with this spec.
func (s TensorSpec) NBytes() int64 {
	return s.Numel() * int64(s.ScalarType.ElementSize())
}

// ---------------------------------------------------------------------------
// Signature
// ---------------------------------------------------------------------------

// InputKind classifies a placeholder.
type InputKind uint8

const (
	InputUser InputKind = iota
	InputParameter
	InputBuffer
	InputConstant
)

func (k InputKind) String() string {
	switch k {
	case InputUser:
		return "user_input"
	case InputParameter:
		return "parameter"
	case InputBuffer:
		return "buffer"
	case InputConstant:
		return "constant"
	default:
		return fmt.Sprintf("InputKind(%d)", k)
	}
}

// InputSpec binds a placeholder node to its role. Target is the Constants
// key for parameters, buffers and constants.
type InputSpec struct {
	Kind   InputKind `cbor:"1,keyasint"`
	Name   string    `cbor:"2,keyasint"`
	Target string    `cbor:"3,keyasint,omitempty"`
}

// Signature describes a program's inputs and outputs.
type Signature struct {
	Inputs []InputSpec `cbor:"1,keyasint"`
	// BuffersToMutate maps output names to the buffers they overwrite.
	BuffersToMutate map[string]string `cbor:"2,keyasint,omitempty"`
}

// Input returns the input spec for a placeholder.
func (s *Signature) Input(name string) (InputSpec, bool) {
	for _, in := range s.Inputs {
		if in.Name == name {
			return in, true
		}
	}
	return InputSpec{}, false
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Graph is a topologically ordered node list ending in one output node.
type Graph struct {
	Nodes []*Node `cbor:"1,keyasint"`
	// NonConstBufferSizes is the memory plan's arena size table.
	NonConstBufferSizes []int64 `cbor:"2,keyasint,omitempty"`
}

// ConstantTensor is a lifted parameter, buffer or constant.
type ConstantTensor struct {
	Spec TensorSpec `cbor:"1,keyasint"`
	Data []byte     `cbor:"2,keyasint"`
}

// LoweredModule is a subgraph already compiled by a backend.
type LoweredModule struct {
	BackendID      string               `cbor:"1,keyasint"`
	ProcessedBytes []byte               `cbor:"2,keyasint"`
	CompileSpecs   []schema.CompileSpec `cbor:"3,keyasint,omitempty"`
	// DebugHandleMap maps backend-internal identifiers to the debug handles
	// of the nodes they were compiled from.
	DebugHandleMap map[string][]int `cbor:"4,keyasint,omitempty"`
}

// ExportedProgram is a captured method ready for emission.
type ExportedProgram struct {
	Graph     Graph                      `cbor:"1,keyasint"`
	Signature Signature                  `cbor:"2,keyasint"`
	Constants map[string]*ConstantTensor `cbor:"3,keyasint,omitempty"`
	Delegates map[string]*LoweredModule  `cbor:"4,keyasint,omitempty"`

	// Encoded tree specs of the method's nested inputs and outputs. Empty
	// means flat.
	InputTreeSpec  string `cbor:"5,keyasint,omitempty"`
	OutputTreeSpec string `cbor:"6,keyasint,omitempty"`
}

// Node returns the node with the given name, or nil.
func (ep *ExportedProgram) Node(name string) *Node {
	for _, n := range ep.Graph.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// MutatesBuffers reports whether the method writes back to any persistent
// buffer.
func (ep *ExportedProgram) MutatesBuffers() bool {
	return len(ep.Signature.BuffersToMutate) > 0
}
