package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/flatprog/debuginfo"
	"github.com/chazu/flatprog/graph"
	"github.com/chazu/flatprog/schema"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()

	b := graph.NewBuilder()
	spec := graph.TensorSpec{ScalarType: schema.ScalarFloat, Sizes: []int64{2}}
	x := b.Input("x", spec)
	w, err := graph.FloatConstant(schema.ScalarFloat, []int64{2}, 0.5, 2)
	if err != nil {
		t.Fatal(err)
	}
	k := b.Parameter("w", w)
	y := b.Call(graph.Target{Name: "aten::mul", Overload: "out"}, []graph.Argument{graph.Ref(x), graph.Ref(k)}, spec)
	if err := graph.WriteFile(filepath.Join(dir, "forward.cbor"), b.Output(graph.Ref(y))); err != nil {
		t.Fatal(err)
	}

	toml := `
[program]
name = "scale"
segment = "out/constants.bin"
debug = "out/debug.json"

[options]
extract-constant-segment = true

[methods]
forward = "forward.cbor"

[prim-getters]
get_dtype = { dtype = "float" }
`
	if err := os.WriteFile(filepath.Join(dir, "flatprog.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	dbPath := filepath.Join(dir, "debug.sqlite")
	if err := run(context.Background(), dir, artifacts{debugDB: dbPath}); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "scale.cbor"))
	if err != nil {
		t.Fatal(err)
	}
	p, err := schema.UnmarshalProgram(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.PlanNames(); len(got) != 2 || got[0] != "forward" || got[1] != "get_dtype" {
		t.Errorf("plan names = %v", got)
	}

	seg, err := os.ReadFile(filepath.Join(dir, "out", "constants.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if len(seg) != 8 {
		t.Errorf("segment = %d bytes, want 8", len(seg))
	}

	f, err := os.Open(filepath.Join(dir, "out", "debug.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rec, err := debuginfo.ReadJSON(f)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "scale" {
		t.Errorf("record name = %q, want scale", rec.Name)
	}

	store, err := debuginfo.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.Load(context.Background(), rec.ProgramID); err != nil {
		t.Errorf("record not stored: %v", err)
	}
}

func TestRunMissingConfig(t *testing.T) {
	if err := run(context.Background(), t.TempDir(), artifacts{}); err == nil {
		t.Error("expected error without flatprog.toml")
	}
}
