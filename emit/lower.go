package emit

import (
	"sort"

	"github.com/chazu/flatprog/graph"
	"github.com/chazu/flatprog/schema"
	"github.com/chazu/flatprog/tree"
)

// Lowerer lowers one method. It may append to ps's constant buffer and
// delegate data; es is fresh for every method. It must return an error
// rather than a partial plan.
type Lowerer interface {
	LowerMethod(name string, ep *graph.ExportedProgram, ps *ProgramState, es *EmitterState) (*MethodResult, error)
}

// MethodResult is what a Lowerer produces for one method.
type MethodResult struct {
	Plan               *schema.ExecutionPlan
	DebugHandleMap     DebugHandleMap
	DelegateDebugIDMap DelegateDebugIDMap
}

// GraphLowerer lowers graph.ExportedProgram nodes into a single chain.
type GraphLowerer struct{}

// LowerMethod implements Lowerer.
func (GraphLowerer) LowerMethod(name string, ep *graph.ExportedProgram, ps *ProgramState, es *EmitterState) (*MethodResult, error) {
	if err := ep.Validate(); err != nil {
		return nil, errorf(InvalidInput, "method %q: %v", name, err)
	}
	m := &methodEmitter{
		name:          name,
		ep:            ep,
		ps:            ps,
		es:            es,
		slots:         make(map[string][]int),
		lowered:       make(map[string]string),
		debugHandles:  DebugHandleMap{},
		delegateDebug: DelegateDebugIDMap{},
	}
	if err := m.run(); err != nil {
		return nil, err
	}
	return &MethodResult{
		Plan:               m.plan(),
		DebugHandleMap:     m.debugHandles,
		DelegateDebugIDMap: m.delegateDebug,
	}, nil
}

// methodEmitter walks one graph in node order.
type methodEmitter struct {
	name string
	ep   *graph.ExportedProgram
	ps   *ProgramState
	es   *EmitterState

	slots   map[string][]int  // node name -> value slots it produced
	lowered map[string]string // get_attr node name -> lowered module key

	instructions []schema.Instruction
	stacktrace   []schema.FrameList
	inputs       []int
	outputs      []int

	debugHandles  DebugHandleMap
	delegateDebug DelegateDebugIDMap
}

func (m *methodEmitter) run() error {
	for _, n := range m.ep.Graph.Nodes {
		var err error
		switch n.Op {
		case graph.OpPlaceholder:
			err = m.placeholder(n)
		case graph.OpGetAttr:
			err = m.getAttr(n)
		case graph.OpCallFunction:
			err = m.callFunction(n)
		case graph.OpCallDelegate:
			err = m.callDelegate(n)
		case graph.OpGetItem:
			err = m.getItem(n)
		case graph.OpOutput:
			err = m.output(n)
		default:
			err = errorf(NotSupported, "method %q: node %q has unsupported op %s", m.name, n.Name, n.Op)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *methodEmitter) plan() *schema.ExecutionPlan {
	chain := schema.Chain{
		Inputs:       m.inputs,
		Outputs:      m.outputs,
		Instructions: m.instructions,
	}
	if m.es.EmitStacktrace {
		chain.Stacktrace = m.stacktrace
	}

	sizes := []int64{0, 0}
	if len(m.ep.Graph.NonConstBufferSizes) > 0 {
		sizes = append([]int64(nil), m.ep.Graph.NonConstBufferSizes...)
	}

	inSpec := m.ep.InputTreeSpec
	if inSpec == "" {
		inSpec = tree.FlatTuple(len(m.inputs)).String()
	}
	outSpec := m.ep.OutputTreeSpec
	if outSpec == "" {
		outSpec = tree.FlatTuple(len(m.outputs)).String()
	}

	return &schema.ExecutionPlan{
		Name:                m.name,
		Values:              m.es.Values,
		Inputs:              m.inputs,
		Outputs:             m.outputs,
		Chains:              []schema.Chain{chain},
		Operators:           m.es.Operators,
		Delegates:           m.es.Delegates,
		NonConstBufferSizes: sizes,
		ContainerMetaType:   schema.ContainerMetadata{EncodedInpStr: inSpec, EncodedOutStr: outSpec},
	}
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func tensorValue(spec graph.TensorSpec, dataBufferIdx uint32) schema.EValue {
	sizes := make([]int32, len(spec.Sizes))
	for i, s := range spec.Sizes {
		sizes[i] = int32(s)
	}
	dimOrder := spec.DimOrder
	if len(dimOrder) == 0 {
		dimOrder = make([]uint8, len(spec.Sizes))
		for i := range dimOrder {
			dimOrder[i] = uint8(i)
		}
	}
	t := &schema.Tensor{
		ScalarType:    spec.ScalarType,
		Sizes:         sizes,
		DimOrder:      dimOrder,
		RequiresGrad:  spec.RequiresGrad,
		DataBufferIdx: dataBufferIdx,
		Layout:        schema.LayoutStrided,
		ShapeDynamism: spec.Dynamism,
	}
	if dataBufferIdx == 0 && spec.Planned {
		t.AllocationInfo = schema.NewAllocationDetails(spec.MemID, spec.MemOffset)
	}
	return schema.NewTensor(t)
}

func (m *methodEmitter) constantTensor(key string) (int, error) {
	c, ok := m.ep.Constants[key]
	if !ok {
		return 0, errorf(InternalError, "method %q: no constant %q", m.name, key)
	}
	idx := m.ps.AddConstant(c.Data, m.es)
	return m.es.AddValue(tensorValue(c.Spec, idx)), nil
}

// literal emits a non-reference argument as a new value slot.
func (m *methodEmitter) literal(a graph.Argument) (int, error) {
	switch a.Kind {
	case graph.ArgNone:
		return m.es.AddValue(schema.None()), nil
	case graph.ArgInt:
		return m.es.AddValue(schema.NewInt(a.Int)), nil
	case graph.ArgFloat:
		return m.es.AddValue(schema.NewDouble(a.Float)), nil
	case graph.ArgBool:
		return m.es.AddValue(schema.NewBool(a.Bool)), nil
	case graph.ArgString:
		return m.es.AddValue(schema.NewString(a.Str)), nil
	case graph.ArgInts:
		// Int lists are boxed: each element gets its own slot.
		items := make([]int, len(a.Ints))
		for i, v := range a.Ints {
			items[i] = m.es.AddValue(schema.NewInt(v))
		}
		return m.es.AddValue(schema.NewIntList(items)), nil
	case graph.ArgFloats:
		return m.es.AddValue(schema.NewDoubleList(append([]float64(nil), a.Floats...))), nil
	case graph.ArgBools:
		return m.es.AddValue(schema.NewBoolList(append([]bool(nil), a.Bools...))), nil
	default:
		return 0, errorf(NotSupported, "method %q: argument kind %s cannot be a literal", m.name, a.Kind)
	}
}

// single returns the one slot produced by node.
func (m *methodEmitter) single(user, node string) (int, error) {
	s, ok := m.slots[node]
	if !ok || len(s) == 0 {
		return 0, errorf(InternalError, "method %q: node %q uses %q, which has no value", m.name, user, node)
	}
	if len(s) != 1 {
		return 0, errorf(InternalError, "method %q: node %q uses multi-output node %q without getitem", m.name, user, node)
	}
	return s[0], nil
}

func (m *methodEmitter) argument(user string, a graph.Argument) (int, error) {
	switch a.Kind {
	case graph.ArgNode:
		return m.single(user, a.Node)
	case graph.ArgNodes:
		items := make([]int, len(a.Nodes))
		for i, ref := range a.Nodes {
			s, err := m.single(user, ref)
			if err != nil {
				return 0, err
			}
			items[i] = s
		}
		return m.es.AddValue(schema.NewTensorList(items)), nil
	default:
		return m.literal(a)
	}
}

// results allocates slots for a node's outputs.
func (m *methodEmitter) results(n *graph.Node) ([]int, error) {
	if n.Meta.Value != nil {
		s, err := m.literal(*n.Meta.Value)
		if err != nil {
			return nil, err
		}
		return []int{s}, nil
	}
	out := make([]int, len(n.Meta.Specs))
	for i, spec := range n.Meta.Specs {
		out[i] = m.es.AddValue(tensorValue(spec, 0))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func (m *methodEmitter) placeholder(n *graph.Node) error {
	in, _ := m.ep.Signature.Input(n.Name)
	if in.Kind != graph.InputUser {
		s, err := m.constantTensor(in.Target)
		if err != nil {
			return err
		}
		m.slots[n.Name] = []int{s}
		return nil
	}

	var s int
	if n.Meta.Value != nil {
		var err error
		if s, err = m.literal(*n.Meta.Value); err != nil {
			return err
		}
	} else {
		if len(n.Meta.Specs) != 1 {
			return errorf(InternalError, "method %q: input %q has %d tensor specs", m.name, n.Name, len(n.Meta.Specs))
		}
		s = m.es.AddValue(tensorValue(n.Meta.Specs[0], 0))
	}
	m.slots[n.Name] = []int{s}
	m.inputs = append(m.inputs, s)
	return nil
}

func (m *methodEmitter) getAttr(n *graph.Node) error {
	if _, ok := m.ep.Delegates[n.Target.Name]; ok {
		m.lowered[n.Name] = n.Target.Name
		return nil
	}
	s, err := m.constantTensor(n.Target.Name)
	if err != nil {
		return err
	}
	m.slots[n.Name] = []int{s}
	return nil
}

func (m *methodEmitter) callFunction(n *graph.Node) error {
	opIdx := m.es.AddOperator(n.Target.Name, n.Target.Overload)

	args := make([]int, 0, len(n.Args)+len(n.Meta.Specs))
	for _, a := range n.Args {
		s, err := m.argument(n.Name, a)
		if err != nil {
			return err
		}
		args = append(args, s)
	}
	outs, err := m.results(n)
	if err != nil {
		return err
	}
	m.slots[n.Name] = outs

	pos := m.emit(n, schema.KernelCall(opIdx, append(args, outs...)))
	if n.Meta.DebugHandle != 0 {
		m.debugHandles[pos] = []int{n.Meta.DebugHandle}
	}
	return nil
}

func (m *methodEmitter) callDelegate(n *graph.Node) error {
	key := n.Target.Name
	if alias, ok := m.lowered[key]; ok {
		key = alias
	}
	lm, ok := m.ep.Delegates[key]
	if !ok {
		return errorf(InternalError, "method %q: node %q calls unknown lowered module %q", m.name, n.Name, key)
	}
	delIdx := m.es.AddDelegate(lm, m.ps)

	args := make([]int, 0, len(n.Args)+len(n.Meta.Specs))
	for _, a := range n.Args {
		s, err := m.argument(n.Name, a)
		if err != nil {
			return err
		}
		args = append(args, s)
	}
	outs, err := m.results(n)
	if err != nil {
		return err
	}
	m.slots[n.Name] = outs

	pos := m.emit(n, schema.DelegateCall(delIdx, append(args, outs...)))
	if handles := delegateHandles(lm, n.Meta.DebugHandle); len(handles) > 0 {
		m.debugHandles[pos] = handles
	}
	m.delegateDebug[pos] = DelegateDebugInfo{Name: key, DelegateMap: lm.DebugHandleMap}
	return nil
}

// delegateHandles returns the sorted, distinct debug handles absorbed by a
// lowered module, falling back to the calling node's own handle.
func delegateHandles(lm *graph.LoweredModule, own int) []int {
	set := make(map[int]bool)
	for _, hs := range lm.DebugHandleMap {
		for _, h := range hs {
			set[h] = true
		}
	}
	if len(set) == 0 {
		if own == 0 {
			return nil
		}
		return []int{own}
	}
	out := make([]int, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

func (m *methodEmitter) getItem(n *graph.Node) error {
	src := n.Args[0].Node
	i := int(n.Args[1].Int)
	s := m.slots[src]
	if i < 0 || i >= len(s) {
		return errorf(InternalError, "method %q: getitem %q index %d out of range for %q (%d outputs)", m.name, n.Name, i, src, len(s))
	}
	m.slots[n.Name] = []int{s[i]}
	return nil
}

func (m *methodEmitter) output(n *graph.Node) error {
	for _, a := range n.Args {
		switch a.Kind {
		case graph.ArgNode:
			s, ok := m.slots[a.Node]
			if !ok {
				return errorf(InternalError, "method %q: output uses %q, which has no value", m.name, a.Node)
			}
			m.outputs = append(m.outputs, s...)
		case graph.ArgNodes:
			for _, ref := range a.Nodes {
				s, err := m.single(n.Name, ref)
				if err != nil {
					return err
				}
				m.outputs = append(m.outputs, s)
			}
		default:
			s, err := m.literal(a)
			if err != nil {
				return err
			}
			m.outputs = append(m.outputs, s)
		}
	}
	return nil
}

// emit appends an instruction and returns its position in the chain.
func (m *methodEmitter) emit(n *graph.Node, instr schema.Instruction) int {
	pos := len(m.instructions)
	m.instructions = append(m.instructions, instr)
	if m.es.EmitStacktrace {
		m.stacktrace = append(m.stacktrace, parseStackTrace(n.Meta.StackTrace))
	}
	return pos
}
