package graph

import "fmt"

// Builder assembles an ExportedProgram node by node. Nodes are appended in
// call order, so the result is topologically ordered as long as arguments
// only reference names returned by earlier calls.
//
// Call and Delegate nodes receive sequential debug handles starting at 1.
type Builder struct {
	ep         *ExportedProgram
	next       int
	nextHandle int
}

// NewBuilder starts an empty program.
func NewBuilder() *Builder {
	return &Builder{
		ep: &ExportedProgram{
			Constants: make(map[string]*ConstantTensor),
			Delegates: make(map[string]*LoweredModule),
		},
		nextHandle: 1,
	}
}

func (b *Builder) add(n *Node) string {
	if n.Name == "" {
		n.Name = fmt.Sprintf("n%d", b.next)
	}
	b.next++
	b.ep.Graph.Nodes = append(b.ep.Graph.Nodes, n)
	return n.Name
}

func (b *Builder) handle() int {
	h := b.nextHandle
	b.nextHandle++
	return h
}

// Input adds a user-input tensor placeholder.
func (b *Builder) Input(name string, spec TensorSpec) string {
	b.ep.Signature.Inputs = append(b.ep.Signature.Inputs, InputSpec{Kind: InputUser, Name: name})
	return b.add(&Node{Name: name, Op: OpPlaceholder, Meta: NodeMeta{Specs: []TensorSpec{spec}}})
}

// ScalarInput adds a user-input placeholder holding a scalar. The argument
// gives its kind and example value.
func (b *Builder) ScalarInput(name string, example Argument) string {
	b.ep.Signature.Inputs = append(b.ep.Signature.Inputs, InputSpec{Kind: InputUser, Name: name})
	return b.add(&Node{Name: name, Op: OpPlaceholder, Meta: NodeMeta{Value: &example}})
}

// Lifted adds a parameter, buffer or constant placeholder backed by c.
func (b *Builder) Lifted(kind InputKind, name string, c *ConstantTensor) string {
	target := name
	b.ep.Constants[target] = c
	b.ep.Signature.Inputs = append(b.ep.Signature.Inputs, InputSpec{Kind: kind, Name: name, Target: target})
	return b.add(&Node{Name: name, Op: OpPlaceholder, Meta: NodeMeta{Specs: []TensorSpec{c.Spec}}})
}

// Parameter adds a parameter placeholder.
func (b *Builder) Parameter(name string, c *ConstantTensor) string {
	return b.Lifted(InputParameter, name, c)
}

// Attr adds a get_attr node reading a constant tensor.
func (b *Builder) Attr(name string, c *ConstantTensor) string {
	b.ep.Constants[name] = c
	return b.add(&Node{Op: OpGetAttr, Target: Target{Name: name}, Meta: NodeMeta{Specs: []TensorSpec{c.Spec}}})
}

// Call adds an operator invocation producing the given output tensors.
func (b *Builder) Call(target Target, args []Argument, outputs ...TensorSpec) string {
	return b.add(&Node{
		Op:     OpCallFunction,
		Target: target,
		Args:   args,
		Meta:   NodeMeta{Specs: outputs, DebugHandle: b.handle()},
	})
}

// Delegate registers m under key and adds a call_delegate node running it.
func (b *Builder) Delegate(key string, m *LoweredModule, inputs []string, outputs ...TensorSpec) string {
	b.ep.Delegates[key] = m
	return b.callDelegate(key, inputs, outputs)
}

// ModuleAttr binds lowered module m under key and adds a get_attr node for
// it. The returned name can be passed to CallModule.
func (b *Builder) ModuleAttr(key string, m *LoweredModule) string {
	b.ep.Delegates[key] = m
	return b.add(&Node{Op: OpGetAttr, Target: Target{Name: key}})
}

// CallModule adds a call_delegate node whose target is the get_attr node
// attr returned by ModuleAttr.
func (b *Builder) CallModule(attr string, inputs []string, outputs ...TensorSpec) string {
	return b.callDelegate(attr, inputs, outputs)
}

func (b *Builder) callDelegate(target string, inputs []string, outputs []TensorSpec) string {
	args := make([]Argument, len(inputs))
	for i, in := range inputs {
		args[i] = Ref(in)
	}
	return b.add(&Node{
		Op:     OpCallDelegate,
		Target: Target{Name: target},
		Args:   args,
		Meta:   NodeMeta{Specs: outputs, DebugHandle: b.handle()},
	})
}

// GetItem selects output i of a multi-output node.
func (b *Builder) GetItem(node string, i int) string {
	var spec []TensorSpec
	if src := b.ep.Node(node); src != nil && i < len(src.Meta.Specs) {
		spec = []TensorSpec{src.Meta.Specs[i]}
	}
	return b.add(&Node{Op: OpGetItem, Args: []Argument{Ref(node), Int(int64(i))}, Meta: NodeMeta{Specs: spec}})
}

// SetStackTrace attaches traceback text to a node.
func (b *Builder) SetStackTrace(node, trace string) {
	if n := b.ep.Node(node); n != nil {
		n.Meta.StackTrace = trace
	}
}

// MutateBuffer declares that output name overwrites buffer.
func (b *Builder) MutateBuffer(output, buffer string) {
	if b.ep.Signature.BuffersToMutate == nil {
		b.ep.Signature.BuffersToMutate = make(map[string]string)
	}
	b.ep.Signature.BuffersToMutate[output] = buffer
}

// SetMemoryPlan records the arena size table.
func (b *Builder) SetMemoryPlan(sizes ...int64) {
	b.ep.Graph.NonConstBufferSizes = sizes
}

// Output adds the terminal output node and returns the finished program.
func (b *Builder) Output(outputs ...Argument) *ExportedProgram {
	b.add(&Node{Name: "output", Op: OpOutput, Args: outputs})
	return b.ep
}
