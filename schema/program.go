// Package schema defines the program representation produced by the
// emitter: a flat, index-addressed structure that an interpreter on a
// constrained target can execute without a graph runtime.
package schema

import "fmt"

// SchemaVersion tags every Program produced by this module.
// Increment when making incompatible changes to the representation.
const SchemaVersion uint32 = 0

// Program is the emitted artifact. ConstantBuffer[0] is always present and
// empty; tensors reference it to mean "no constant data".
type Program struct {
	Version             uint32                      `cbor:"1,keyasint"`
	ExecutionPlans      []*ExecutionPlan            `cbor:"2,keyasint"`
	ConstantBuffer      []Buffer                    `cbor:"3,keyasint"`
	BackendDelegateData []BackendDelegateInlineData `cbor:"4,keyasint"`
	Segments            []DataSegment               `cbor:"5,keyasint"`
	ConstantSegment     SubsegmentOffsets           `cbor:"6,keyasint"`
}

// Plan returns the execution plan with the given name, or nil.
func (p *Program) Plan(name string) *ExecutionPlan {
	for _, plan := range p.ExecutionPlans {
		if plan.Name == name {
			return plan
		}
	}
	return nil
}

// PlanNames returns the plan names in program order.
func (p *Program) PlanNames() []string {
	names := make([]string, len(p.ExecutionPlans))
	for i, plan := range p.ExecutionPlans {
		names[i] = plan.Name
	}
	return names
}

// ExecutionPlan is the lowered form of one method.
type ExecutionPlan struct {
	Name                string            `cbor:"1,keyasint"`
	Values              []EValue          `cbor:"2,keyasint"`
	Inputs              []int             `cbor:"3,keyasint"`
	Outputs             []int             `cbor:"4,keyasint"`
	Chains              []Chain           `cbor:"5,keyasint"`
	Operators           []Operator        `cbor:"6,keyasint"`
	Delegates           []BackendDelegate `cbor:"7,keyasint"`
	NonConstBufferSizes []int64           `cbor:"8,keyasint"`
	ContainerMetaType   ContainerMetadata `cbor:"9,keyasint"`
}

// ContainerMetadata carries the encoded tree specs used to rebuild nested
// inputs and outputs from the flat slot lists.
type ContainerMetadata struct {
	EncodedInpStr string `cbor:"1,keyasint"`
	EncodedOutStr string `cbor:"2,keyasint"`
}

// ---------------------------------------------------------------------------
// Chains and instructions
// ---------------------------------------------------------------------------

// Chain is an ordered instruction sequence. Stacktrace is parallel to
// Instructions when stack-trace emission is enabled, and nil otherwise.
type Chain struct {
	Inputs       []int         `cbor:"1,keyasint"`
	Outputs      []int         `cbor:"2,keyasint"`
	Instructions []Instruction `cbor:"3,keyasint"`
	Stacktrace   []FrameList   `cbor:"4,keyasint,omitempty"`
}

// InstructionKind tags the payload of an Instruction.
type InstructionKind uint8

const (
	InstrKernelCall InstructionKind = iota + 1
	InstrDelegateCall
	InstrMoveCall
	InstrFreeCall
)

func (k InstructionKind) String() string {
	switch k {
	case InstrKernelCall:
		return "kernel_call"
	case InstrDelegateCall:
		return "delegate_call"
	case InstrMoveCall:
		return "move_call"
	case InstrFreeCall:
		return "free_call"
	default:
		return fmt.Sprintf("InstructionKind(%d)", k)
	}
}

// Instruction is a single chain step.
//
//	KernelCall:   Index = operator table index, Args = value slots
//	DelegateCall: Index = delegate table index, Args = value slots
//	MoveCall:     Args = [from, to]
//	FreeCall:     Args = [value]
type Instruction struct {
	Kind  InstructionKind `cbor:"1,keyasint"`
	Index int             `cbor:"2,keyasint"`
	Args  []int           `cbor:"3,keyasint"`
}

// KernelCall builds an operator invocation.
func KernelCall(opIndex int, args []int) Instruction {
	return Instruction{Kind: InstrKernelCall, Index: opIndex, Args: args}
}

// DelegateCall builds a delegate invocation.
func DelegateCall(delegateIndex int, args []int) Instruction {
	return Instruction{Kind: InstrDelegateCall, Index: delegateIndex, Args: args}
}

// MoveCall builds a slot-to-slot copy.
func MoveCall(from, to int) Instruction {
	return Instruction{Kind: InstrMoveCall, Args: []int{from, to}}
}

// FreeCall builds an instruction releasing a slot's storage.
func FreeCall(value int) Instruction {
	return Instruction{Kind: InstrFreeCall, Args: []int{value}}
}

// Frame is one stack frame of the source location that produced an
// instruction.
type Frame struct {
	Filename string `cbor:"1,keyasint"`
	Lineno   int    `cbor:"2,keyasint"`
	Name     string `cbor:"3,keyasint"`
	Context  string `cbor:"4,keyasint,omitempty"`
}

// FrameList is the stack trace attached to one instruction.
type FrameList struct {
	Items []Frame `cbor:"1,keyasint"`
}

// ---------------------------------------------------------------------------
// Operator and delegate tables
// ---------------------------------------------------------------------------

// Operator identifies a kernel by name and overload.
type Operator struct {
	Name     string `cbor:"1,keyasint"`
	Overload string `cbor:"2,keyasint"`
}

// DataLocation says where a delegate's processed bytes live.
type DataLocation uint8

const (
	LocationInline  DataLocation = 0
	LocationSegment DataLocation = 1
)

// BackendDelegateDataReference points at a delegate blob.
type BackendDelegateDataReference struct {
	Location DataLocation `cbor:"1,keyasint"`
	Index    int          `cbor:"2,keyasint"`
}

// CompileSpec is one backend compile option.
type CompileSpec struct {
	Key   string `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// BackendDelegate is a plan-level delegate table entry.
type BackendDelegate struct {
	ID           string                       `cbor:"1,keyasint"`
	Processed    BackendDelegateDataReference `cbor:"2,keyasint"`
	CompileSpecs []CompileSpec                `cbor:"3,keyasint"`
}

// ---------------------------------------------------------------------------
// Program-level data
// ---------------------------------------------------------------------------

// Buffer is an immutable constant blob.
type Buffer struct {
	Storage []byte `cbor:"1,keyasint"`
}

// BackendDelegateInlineData is an opaque backend-compiled subgraph.
type BackendDelegateInlineData struct {
	Data []byte `cbor:"1,keyasint"`
}

// DataSegment locates an out-of-line segment in the serialized file.
type DataSegment struct {
	Offset uint64 `cbor:"1,keyasint"`
	Size   uint64 `cbor:"2,keyasint"`
}

// SubsegmentOffsets lists region offsets inside one DataSegment.
type SubsegmentOffsets struct {
	SegmentIndex uint32   `cbor:"1,keyasint"`
	Offsets      []uint64 `cbor:"2,keyasint"`
}
