package emit

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/zeebo/xxh3"

	"github.com/chazu/flatprog/graph"
	"github.com/chazu/flatprog/schema"
)

// DefaultAlignment is the constant-tensor alignment used when none is
// configured. It satisfies every supported scalar type.
const DefaultAlignment = 16

// alignUp rounds n up to a multiple of the power of two a.
func alignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// ---------------------------------------------------------------------------
// ProgramState: state shared by every method of one emission
// ---------------------------------------------------------------------------

// ProgramState accumulates the program-wide tables while methods are lowered
// one after another. Indices it hands out are global and stable for the
// rest of the emission. A ProgramState belongs to a single EmitProgram call.
type ProgramState struct {
	// ConstantBuffer[0] is the empty placeholder meaning "no constant data".
	ConstantBuffer []schema.Buffer

	// BackendDelegateData holds every delegate blob, in allocation order.
	BackendDelegateData []schema.BackendDelegateInlineData

	// ConstantSegment is non-nil when constants are extracted out of line.
	ConstantSegment *ConstantSegment

	// constant content hash -> allocated index
	constantIndex map[[32]byte]uint32
}

// NewProgramState creates the shared state for one emission.
func NewProgramState(extractConstantSegment bool) *ProgramState {
	ps := &ProgramState{
		ConstantBuffer: []schema.Buffer{{Storage: []byte{}}},
		constantIndex:  make(map[[32]byte]uint32),
	}
	if extractConstantSegment {
		ps.ConstantSegment = newConstantSegment()
	}
	return ps
}

// AddConstant stores constant tensor bytes and returns the index tensors use
// as DataBufferIdx. With extraction enabled the bytes go to the constant
// segment and the index selects its offset table; otherwise they become a
// new constant buffer. Identical bytes share one entry. The returned index
// is never 0.
func (ps *ProgramState) AddConstant(data []byte, es *EmitterState) uint32 {
	h := sha256.Sum256(data)
	if idx, ok := ps.constantIndex[h]; ok {
		return idx
	}

	var idx uint32
	if es.ExtractConstantSegment && ps.ConstantSegment != nil {
		idx = ps.ConstantSegment.Append(data, es.ConstantTensorAlignment)
	} else {
		storage := make([]byte, len(data))
		copy(storage, data)
		idx = uint32(len(ps.ConstantBuffer))
		ps.ConstantBuffer = append(ps.ConstantBuffer, schema.Buffer{Storage: storage})
	}
	ps.constantIndex[h] = idx
	return idx
}

// AddDelegateData appends a delegate blob and returns its index. Blobs are
// never merged here; deduplication is per method, in EmitterState.
func (ps *ProgramState) AddDelegateData(data []byte) int {
	idx := len(ps.BackendDelegateData)
	ps.BackendDelegateData = append(ps.BackendDelegateData, schema.BackendDelegateInlineData{Data: data})
	return idx
}

// ---------------------------------------------------------------------------
// ConstantSegment: extracted constant bytes
// ---------------------------------------------------------------------------

// ConstantSegment is a contiguous byte area of aligned constant regions.
// Region 0 is a zero-length placeholder so that index 0 keeps meaning "no
// constant data", as it does for the constant buffer.
type ConstantSegment struct {
	data    []byte
	offsets []uint64
}

func newConstantSegment() *ConstantSegment {
	return &ConstantSegment{offsets: []uint64{0}}
}

// Append places b at the next multiple of alignment past the current end
// and returns the new region's index. Padding bytes are zero.
func (s *ConstantSegment) Append(b []byte, alignment int) uint32 {
	off := alignUp(len(s.data), alignment)
	if pad := off - len(s.data); pad > 0 {
		s.data = append(s.data, make([]byte, pad)...)
	}
	s.offsets = append(s.offsets, uint64(off))
	s.data = append(s.data, b...)
	return uint32(len(s.offsets) - 1)
}

// Bytes returns the segment contents.
func (s *ConstantSegment) Bytes() []byte {
	return s.data
}

// Offsets returns region start offsets, including the placeholder at 0.
func (s *ConstantSegment) Offsets() []uint64 {
	return s.offsets
}

// Len returns the number of real regions.
func (s *ConstantSegment) Len() int {
	return len(s.offsets) - 1
}

// ---------------------------------------------------------------------------
// EmitterState: state private to one method
// ---------------------------------------------------------------------------

// DelegateKey identifies a compiled subgraph by backend and content.
type DelegateKey struct {
	BackendID string
	Digest    [16]byte
}

// delegateKey hashes the processed bytes and compile specs of m.
func delegateKey(m *graph.LoweredModule) DelegateKey {
	buf := make([]byte, 0, len(m.ProcessedBytes)+16)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(m.ProcessedBytes)))
	buf = append(buf, m.ProcessedBytes...)
	for _, cs := range m.CompileSpecs {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cs.Key)))
		buf = append(buf, cs.Key...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cs.Value)))
		buf = append(buf, cs.Value...)
	}
	return DelegateKey{BackendID: m.BackendID, Digest: xxh3.Hash128(buf).Bytes()}
}

// EmitterState holds one method's growing tables and the emission options.
// A fresh EmitterState is created for every method, so operator and delegate
// deduplication never crosses methods.
type EmitterState struct {
	Values    []schema.EValue
	Operators []schema.Operator
	Delegates []schema.BackendDelegate

	operatorCache map[schema.Operator]int
	delegateCache map[DelegateKey]int

	EmitStacktrace          bool
	ExtractConstantSegment  bool
	ConstantTensorAlignment int
}

// NewEmitterState creates empty per-method state.
func NewEmitterState(emitStacktrace, extractConstantSegment bool, alignment int) *EmitterState {
	return &EmitterState{
		operatorCache:           make(map[schema.Operator]int),
		delegateCache:           make(map[DelegateKey]int),
		EmitStacktrace:          emitStacktrace,
		ExtractConstantSegment:  extractConstantSegment,
		ConstantTensorAlignment: alignment,
	}
}

// AddValue appends a value slot and returns its index.
func (es *EmitterState) AddValue(v schema.EValue) int {
	es.Values = append(es.Values, v)
	return len(es.Values) - 1
}

// AddOperator returns the operator-table index for (name, overload),
// appending a new entry on first use.
func (es *EmitterState) AddOperator(name, overload string) int {
	op := schema.Operator{Name: name, Overload: overload}
	if idx, ok := es.operatorCache[op]; ok {
		return idx
	}
	idx := len(es.Operators)
	es.Operators = append(es.Operators, op)
	es.operatorCache[op] = idx
	return idx
}

// AddDelegate returns the delegate-table index for m. On first use within
// the method, m's processed bytes are appended to the program's delegate
// data.
func (es *EmitterState) AddDelegate(m *graph.LoweredModule, ps *ProgramState) int {
	key := delegateKey(m)
	if idx, ok := es.delegateCache[key]; ok {
		return idx
	}
	dataIdx := ps.AddDelegateData(m.ProcessedBytes)
	idx := len(es.Delegates)
	es.Delegates = append(es.Delegates, schema.BackendDelegate{
		ID:           m.BackendID,
		Processed:    schema.BackendDelegateDataReference{Location: schema.LocationInline, Index: dataIdx},
		CompileSpecs: m.CompileSpecs,
	})
	es.delegateCache[key] = idx
	return idx
}
