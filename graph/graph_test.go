package graph

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/flatprog/schema"
)

func f32(sizes ...int64) TensorSpec {
	return TensorSpec{ScalarType: schema.ScalarFloat, Sizes: sizes}
}

func addProgram(t *testing.T) *ExportedProgram {
	t.Helper()
	w, err := FloatConstant(schema.ScalarFloat, []int64{2}, 1.5, -2)
	if err != nil {
		t.Fatal(err)
	}
	b := NewBuilder()
	x := b.Input("x", f32(2))
	p := b.Parameter("w", w)
	y := b.Call(Target{Name: "aten::add", Overload: "out"}, []Argument{Ref(x), Ref(p), Int(1)}, f32(2))
	return b.Output(Ref(y))
}

func TestBuilderAssignsNamesAndHandles(t *testing.T) {
	ep := addProgram(t)

	if len(ep.Graph.Nodes) != 4 {
		t.Fatalf("node count = %d, want 4", len(ep.Graph.Nodes))
	}
	call := ep.Graph.Nodes[2]
	if call.Name != "n2" {
		t.Errorf("call name = %q, want n2", call.Name)
	}
	if call.Meta.DebugHandle != 1 {
		t.Errorf("call debug handle = %d, want 1", call.Meta.DebugHandle)
	}
	in, ok := ep.Signature.Input("w")
	if !ok || in.Kind != InputParameter || in.Target != "w" {
		t.Errorf("input spec for w = %+v, %v", in, ok)
	}
	if err := ep.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	ep := &ExportedProgram{
		Graph: Graph{Nodes: []*Node{
			{Name: "a", Op: OpCallFunction, Args: []Argument{Ref("b")}},
			{Name: "a", Op: OpPlaceholder},
			{Name: "c", Op: OpCallDelegate, Target: Target{Name: "missing"}},
		}},
		Constants: map[string]*ConstantTensor{
			"k": NewConstant(schema.ScalarFloat, []int64{4}, make([]byte, 3)),
		},
	}
	err := ep.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		`references "b" before its definition`,
		`duplicate node name "a"`,
		`placeholder "a" missing from signature`,
		`unknown lowered module "missing"`,
		"does not end in an output node",
		`constant "k": 3 bytes`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateNilEntries(t *testing.T) {
	ep := addProgram(t)
	ep.Graph.Nodes = append([]*Node{nil}, ep.Graph.Nodes...)
	ep.Constants["k"] = nil
	ep.Delegates = map[string]*LoweredModule{"lm": nil}

	err := ep.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"node 0 is nil",
		`constant "k" is nil`,
		`lowered module "lm" is nil`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateDimensionRange(t *testing.T) {
	b := NewBuilder()
	x := b.Input("x", f32(math.MaxInt32+1, 2))
	ep := b.Output(Ref(x))
	ep.Constants["k"] = NewConstant(schema.ScalarFloat, []int64{-1}, nil)

	err := ep.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		`node "x": dimension 0 size 2147483648 out of range`,
		`constant "k": dimension 0 size -1 out of range`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}

	b = NewBuilder()
	x = b.Input("x", f32(math.MaxInt32))
	if err := b.Output(Ref(x)).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateCallThroughModuleAttr(t *testing.T) {
	b := NewBuilder()
	x := b.Input("x", f32(2))
	attr := b.ModuleAttr("lm", &LoweredModule{BackendID: "B", ProcessedBytes: []byte{1}})
	y := b.CallModule(attr, []string{x}, f32(2))
	if err := b.Output(Ref(y)).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	// A call_delegate may not name a get_attr node bound to a constant.
	w, err := FloatConstant(schema.ScalarFloat, []int64{2}, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	b = NewBuilder()
	x = b.Input("x", f32(2))
	k := b.Attr("w", w)
	y = b.CallModule(k, []string{x}, f32(2))
	if err := b.Output(Ref(y)).Validate(); err == nil || !strings.Contains(err.Error(), "unknown lowered module") {
		t.Errorf("got %v, want unknown lowered module", err)
	}
}

func TestPackFloats(t *testing.T) {
	tests := []struct {
		st   schema.ScalarType
		vals []float64
	}{
		{schema.ScalarDouble, []float64{1, -0.25, math.Pi}},
		{schema.ScalarFloat, []float64{1, -0.25, 3.5}},
		{schema.ScalarHalf, []float64{1, -0.25, 65504}},
		{schema.ScalarBFloat16, []float64{1, -0.25, 256}},
	}
	for _, tt := range tests {
		data, err := PackFloats(tt.st, tt.vals)
		if err != nil {
			t.Fatalf("PackFloats(%s): %v", tt.st, err)
		}
		if len(data) != len(tt.vals)*tt.st.ElementSize() {
			t.Errorf("%s: %d bytes, want %d", tt.st, len(data), len(tt.vals)*tt.st.ElementSize())
		}
		got, err := UnpackFloats(tt.st, data)
		if err != nil {
			t.Fatalf("UnpackFloats(%s): %v", tt.st, err)
		}
		for i := range got {
			if got[i] != tt.vals[i] {
				t.Errorf("%s[%d] = %v, want %v", tt.st, i, got[i], tt.vals[i])
			}
		}
	}
}

func TestPackHalfBitPattern(t *testing.T) {
	data, err := PackFloats(schema.ScalarHalf, []float64{1})
	if err != nil {
		t.Fatal(err)
	}
	// 1.0 in IEEE half precision is 0x3c00.
	if data[0] != 0x00 || data[1] != 0x3c {
		t.Errorf("half(1.0) = % x, want 00 3c", data)
	}
}

func TestPackIntsRejectsFloatType(t *testing.T) {
	if _, err := PackInts(schema.ScalarFloat, []int64{1}); err == nil {
		t.Error("expected error packing ints as float")
	}
	data, err := PackInts(schema.ScalarLong, []int64{-1})
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 8 || data[7] != 0xff {
		t.Errorf("long(-1) = % x", data)
	}
}

func TestCodecPreservesProgram(t *testing.T) {
	ep := addProgram(t)
	ep.OutputTreeSpec = "T1#1($)"

	path := t.TempDir() + "/add.graph"
	if err := WriteFile(path, ep); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if len(got.Graph.Nodes) != len(ep.Graph.Nodes) {
		t.Fatalf("node count = %d, want %d", len(got.Graph.Nodes), len(ep.Graph.Nodes))
	}
	call := got.Node("n2")
	if call == nil || call.Target.String() != "aten::add.out" || len(call.Args) != 3 {
		t.Errorf("call node = %+v", call)
	}
	if got.Constants["w"] == nil || len(got.Constants["w"].Data) != 8 {
		t.Error("constant w lost in round trip")
	}
	if got.OutputTreeSpec != "T1#1($)" {
		t.Errorf("OutputTreeSpec = %q", got.OutputTreeSpec)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("decoded program invalid: %v", err)
	}
}

func TestReadFileMissing(t *testing.T) {
	if _, err := ReadFile(t.TempDir() + "/nope.graph"); err == nil {
		t.Error("expected error for missing file")
	}
}
