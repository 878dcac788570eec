// Package emit assembles captured graphs into a single interpreter-ready
// schema.Program.
//
// EmitProgram lowers each method in ascending name order against one shared
// ProgramState, so constant-buffer and delegate-data indices are allocated
// deterministically: emitting the same input twice yields identical
// programs. Primitive getters are synthesized after all graphs and appended
// in the order the caller lists them.
//
// # Validation
//
// Two input checks report errors at different granularity:
//
//   - Type validation is aggregate. Every method value that is not a
//     *graph.ExportedProgram is collected and reported in one error.
//   - The mutated-buffer check is fail-fast. It runs per method during the
//     sorted lowering loop and stops at the first offending method.
//
// Any error aborts the whole call; no partial Output is returned.
package emit

import (
	"sort"

	"github.com/chazu/flatprog/graph"
	"github.com/chazu/flatprog/schema"
)

// Methods maps method names to graphs. Values are typed loosely so that
// callers assembling methods from decoded input get one aggregated error for
// every entry that is not a graph.
type Methods map[string]any

// Options configures an emission.
type Options struct {
	// EmitStacktrace attaches source stack traces to every instruction.
	EmitStacktrace bool

	// PrimGetters declares constant-returning methods, emitted in order
	// after the graph methods.
	PrimGetters []PrimGetter

	// ExtractConstantSegment moves constant tensor data out of the constant
	// buffer into a separate aligned segment.
	ExtractConstantSegment bool

	// ConstantTensorAlignment is the power-of-two alignment of constant
	// regions. Zero selects DefaultAlignment.
	ConstantTensorAlignment int

	// Lowerer lowers each method. Nil selects GraphLowerer.
	Lowerer Lowerer
}

func (o *Options) alignment() (int, error) {
	if o.ConstantTensorAlignment == 0 {
		return DefaultAlignment, nil
	}
	if !isPowerOfTwo(o.ConstantTensorAlignment) {
		return 0, errorf(InvalidInput, "constant tensor alignment %d is not a power of 2", o.ConstantTensorAlignment)
	}
	return o.ConstantTensorAlignment, nil
}

// Output is the result of an emission.
type Output struct {
	Program *schema.Program

	// DebugHandleMap holds each method's instruction -> debug handle map.
	DebugHandleMap map[string]DebugHandleMap

	// DelegateDebugIDMap holds each method's delegate instruction ->
	// backend debug identifier map.
	DelegateDebugIDMap map[string]DelegateDebugIDMap

	// ConstantSegmentData is the extracted constant segment. It is nil
	// unless extraction was requested and at least one constant was placed.
	ConstantSegmentData []byte

	// ConstantSegmentOffsets are the region offsets into
	// ConstantSegmentData, indexed by tensor DataBufferIdx. Entry 0 is the
	// empty placeholder region.
	ConstantSegmentOffsets []uint64
}

// EmitMethod emits a single graph as the method "forward".
func EmitMethod(ep *graph.ExportedProgram, opts Options) (*Output, error) {
	return EmitProgram(Methods{"forward": ep}, opts)
}

// EmitProgram lowers methods and primitive getters into one Program.
func EmitProgram(methods Methods, opts Options) (*Output, error) {
	alignment, err := opts.alignment()
	if err != nil {
		return nil, err
	}

	programs, err := validateMethods(methods)
	if err != nil {
		return nil, err
	}
	if err := checkPlanNames(programs, opts.PrimGetters); err != nil {
		return nil, err
	}

	lowerer := opts.Lowerer
	if lowerer == nil {
		lowerer = GraphLowerer{}
	}

	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)

	ps := NewProgramState(opts.ExtractConstantSegment)
	debug := newDebugCollector()
	plans := make([]*schema.ExecutionPlan, 0, len(names)+len(opts.PrimGetters))

	for _, name := range names {
		ep := programs[name]
		if ep.MutatesBuffers() {
			return nil, errorf(InvalidInputType, "method %q: buffers cannot be modified on this target", name)
		}

		es := NewEmitterState(opts.EmitStacktrace, opts.ExtractConstantSegment, alignment)
		res, err := lowerer.LowerMethod(name, ep, ps, es)
		if err != nil {
			return nil, err
		}
		if res == nil || res.Plan == nil {
			return nil, errorf(InternalError, "method %q: lowering produced no plan", name)
		}
		if res.Plan.Name != name {
			return nil, errorf(InternalError, "method %q: lowering produced plan %q", name, res.Plan.Name)
		}

		plans = append(plans, res.Plan)
		debug.collect(name, res.DebugHandleMap, res.DelegateDebugIDMap)
		log.Debugf("emitted method %s: %d values, %d operators, %d delegates",
			name, len(res.Plan.Values), len(res.Plan.Operators), len(res.Plan.Delegates))
	}

	if opts.PrimGetters != nil {
		getterPlans, err := emitPrimGetters(opts.PrimGetters)
		if err != nil {
			return nil, err
		}
		plans = append(plans, getterPlans...)
	}

	constantBuffer := ps.ConstantBuffer
	if constantBuffer == nil {
		constantBuffer = []schema.Buffer{}
	}
	delegateData := ps.BackendDelegateData
	if delegateData == nil {
		delegateData = []schema.BackendDelegateInlineData{}
	}

	out := &Output{
		Program: &schema.Program{
			Version:             schema.SchemaVersion,
			ExecutionPlans:      plans,
			ConstantBuffer:      constantBuffer,
			BackendDelegateData: delegateData,
			// Segments and constant segment offsets are filled in when
			// the program is serialized.
			Segments:        []schema.DataSegment{},
			ConstantSegment: schema.SubsegmentOffsets{SegmentIndex: 0, Offsets: []uint64{}},
		},
		DebugHandleMap:     debug.handles,
		DelegateDebugIDMap: debug.delegates,
	}
	if seg := ps.ConstantSegment; seg != nil && seg.Len() > 0 {
		out.ConstantSegmentData = seg.Bytes()
		out.ConstantSegmentOffsets = seg.Offsets()
	}

	log.Infof("emitted %d plans (%d methods, %d getters), %d constant buffers, %d delegate blobs",
		len(plans), len(names), len(opts.PrimGetters), len(constantBuffer), len(delegateData))
	return out, nil
}

// validateMethods checks every value's type and reports all offenders in a
// single error.
func validateMethods(methods Methods) (map[string]*graph.ExportedProgram, error) {
	programs := make(map[string]*graph.ExportedProgram, len(methods))
	var bad []string
	for name, v := range methods {
		ep, ok := v.(*graph.ExportedProgram)
		if !ok || ep == nil {
			bad = append(bad, name)
			continue
		}
		programs[name] = ep
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, errorf(InvalidInputType, "did not receive ExportedProgram for the following methods %q", bad)
	}
	return programs, nil
}

// checkPlanNames enforces that every plan name in the program is unique.
func checkPlanNames(programs map[string]*graph.ExportedProgram, getters []PrimGetter) error {
	seen := make(map[string]bool, len(getters))
	for _, g := range getters {
		if _, ok := programs[g.Name]; ok {
			return errorf(InvalidInput, "primitive getter %q has the same name as a method", g.Name)
		}
		if seen[g.Name] {
			return errorf(InvalidInput, "primitive getter %q declared twice", g.Name)
		}
		seen[g.Name] = true
	}
	return nil
}
