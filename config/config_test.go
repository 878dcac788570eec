package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/flatprog/emit"
	"github.com/chazu/flatprog/graph"
	"github.com/chazu/flatprog/schema"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[program]
name = "mobilenet"
output = "out/mobilenet.cbor"
segment = "out/constants.bin"
debug = "out/debug.json"
debug-db = "out/debug.sqlite"

[options]
emit-stacktrace = true
extract-constant-segment = true
constant-tensor-alignment = 32
load-concurrency = 2

[methods]
forward = "graphs/forward.cbor"
encode = "/abs/encode.cbor"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if c.Program.Name != "mobilenet" {
		t.Errorf("program name = %q, want mobilenet", c.Program.Name)
	}
	if got, want := c.Path(c.Program.Output), filepath.Join(c.Dir, "out", "mobilenet.cbor"); got != want {
		t.Errorf("output path = %q, want %q", got, want)
	}
	if c.Program.DebugDB != "out/debug.sqlite" {
		t.Errorf("debug-db = %q, want out/debug.sqlite", c.Program.DebugDB)
	}
	if !c.Options.EmitStacktrace || !c.Options.ExtractConstantSegment {
		t.Errorf("options = %+v, want both flags set", c.Options)
	}
	if c.Options.ConstantTensorAlignment != 32 || c.Options.LoadConcurrency != 2 {
		t.Errorf("options = %+v", c.Options)
	}
	if len(c.Methods) != 2 {
		t.Errorf("methods count = %d, want 2", len(c.Methods))
	}
	if got := c.Path(c.Methods["encode"]); got != "/abs/encode.cbor" {
		t.Errorf("absolute method path rewritten to %q", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tinynet")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "[methods]\n")

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Program.Name != "tinynet" {
		t.Errorf("default name = %q, want tinynet", c.Program.Name)
	}
	if c.Program.Output != "tinynet.cbor" {
		t.Errorf("default output = %q, want tinynet.cbor", c.Program.Output)
	}
	if c.Options.LoadConcurrency != 4 {
		t.Errorf("default load concurrency = %d, want 4", c.Options.LoadConcurrency)
	}

	opts, err := c.EmitOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.PrimGetters != nil {
		t.Errorf("prim getters = %v, want nil without a [prim-getters] table", opts.PrimGetters)
	}
}

func TestLoadConfigParseError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[program\nname = 1")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Errorf("got %v, want parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "[program]\nname = \"found\"\n")

	c, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if c.Program.Name != "found" {
		t.Errorf("program name = %q, want found", c.Program.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if c != nil {
		t.Error("expected nil config when no flatprog.toml exists")
	}
}

func TestPrimGettersKeepFileOrder(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[prim-getters]
get_z = 1
get_dtype = { dtype = "half" }
get_a = [1.5, true, "x"]
get_layout = { layout = "sparse_coo" }

[prim-getters.get_meta]
name = "m"
sizes = [2, 3]
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	opts, err := c.EmitOptions()
	if err != nil {
		t.Fatalf("EmitOptions: %v", err)
	}

	var names []string
	for _, g := range opts.PrimGetters {
		names = append(names, g.Name)
	}
	if want := []string{"get_z", "get_dtype", "get_a", "get_layout", "get_meta"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("getter order = %v, want %v", names, want)
	}

	if got := opts.PrimGetters[0].Value; got != int64(1) {
		t.Errorf("get_z = %#v, want int64(1)", got)
	}
	if got := opts.PrimGetters[1].Value; got != schema.ScalarHalf {
		t.Errorf("get_dtype = %#v, want ScalarHalf", got)
	}
	if got, want := opts.PrimGetters[2].Value, []any{1.5, true, "x"}; !reflect.DeepEqual(got, want) {
		t.Errorf("get_a = %#v, want %#v", got, want)
	}
	if got := opts.PrimGetters[3].Value; got != schema.LayoutSparseCOO {
		t.Errorf("get_layout = %#v, want LayoutSparseCOO", got)
	}
	meta, ok := opts.PrimGetters[4].Value.(map[string]any)
	if !ok || meta["name"] != "m" {
		t.Errorf("get_meta = %#v", opts.PrimGetters[4].Value)
	}

	out, err := emit.EmitProgram(emit.Methods{}, opts)
	if err != nil {
		t.Fatalf("EmitProgram: %v", err)
	}
	if v := out.Program.Plan("get_dtype").Values[0]; v.Kind != schema.KindInt || v.Int != int64(schema.ScalarHalf) {
		t.Errorf("emitted dtype = %#v", v)
	}
}

func TestPrimGettersOrderWithTableArraysAndDottedKeys(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"array of tables", `
[prim-getters]
zeta = 1

[[prim-getters.alpha]]
x = 1

[[prim-getters.alpha]]
x = 2
`},
		{"dotted key", `
[prim-getters]
zeta = 1
alpha.x = 1
`},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeConfig(t, dir, tt.content)
		c, err := Load(dir)
		if err != nil {
			t.Fatalf("%s: Load failed: %v", tt.name, err)
		}
		opts, err := c.EmitOptions()
		if err != nil {
			t.Fatalf("%s: EmitOptions: %v", tt.name, err)
		}
		var names []string
		for _, g := range opts.PrimGetters {
			names = append(names, g.Name)
		}
		if want := []string{"zeta", "alpha"}; !reflect.DeepEqual(names, want) {
			t.Errorf("%s: getter order = %v, want %v", tt.name, names, want)
		}
	}
}

func TestPrimGetterUnknownEnum(t *testing.T) {
	c := &Config{PrimGetters: map[string]any{
		"get_dtype": map[string]any{"dtype": "float128"},
	}}
	if _, err := c.EmitOptions(); err == nil || !strings.Contains(err.Error(), "get_dtype") {
		t.Errorf("got %v, want error naming get_dtype", err)
	}

	c = &Config{PrimGetters: map[string]any{
		"get_layout": []any{map[string]any{"layout": 3}},
	}}
	if _, err := c.EmitOptions(); err == nil {
		t.Error("expected error for non-string layout name")
	}
}

func TestPrimGettersWithoutDocumentOrder(t *testing.T) {
	c := &Config{PrimGetters: map[string]any{"b": 1, "a": 2}}
	opts, err := c.EmitOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.PrimGetters[0].Name != "a" || opts.PrimGetters[1].Name != "b" {
		t.Errorf("getters = %v, want sorted", opts.PrimGetters)
	}
}

func testGraph() *graph.ExportedProgram {
	b := graph.NewBuilder()
	x := b.Input("x", graph.TensorSpec{ScalarType: schema.ScalarFloat, Sizes: []int64{2}})
	return b.Output(graph.Ref(x))
}

func TestLoadMethods(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "graphs"), 0755); err != nil {
		t.Fatal(err)
	}
	c := &Config{
		Dir:     dir,
		Methods: map[string]string{},
		Options: Options{LoadConcurrency: 2},
	}
	for _, name := range []string{"forward", "encode", "decode"} {
		rel := filepath.Join("graphs", name+".cbor")
		if err := graph.WriteFile(filepath.Join(dir, rel), testGraph()); err != nil {
			t.Fatal(err)
		}
		c.Methods[name] = rel
	}

	methods, err := c.LoadMethods(context.Background())
	if err != nil {
		t.Fatalf("LoadMethods: %v", err)
	}
	if len(methods) != 3 {
		t.Fatalf("loaded %d methods, want 3", len(methods))
	}
	ep, ok := methods["encode"].(*graph.ExportedProgram)
	if !ok || len(ep.Graph.Nodes) != 2 {
		t.Errorf("encode = %#v", methods["encode"])
	}
}

func TestLoadMethodsMissingFile(t *testing.T) {
	c := &Config{Dir: t.TempDir(), Methods: map[string]string{"forward": "nope.cbor"}}
	_, err := c.LoadMethods(context.Background())
	if err == nil || !strings.Contains(err.Error(), `method "forward"`) {
		t.Errorf("got %v, want error naming the method", err)
	}
}

func TestLoadMethodsCanceled(t *testing.T) {
	c := &Config{Dir: t.TempDir(), Methods: map[string]string{"forward": "nope.cbor"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.LoadMethods(ctx); err == nil {
		t.Error("expected error from canceled context")
	}
}
