package tree

import (
	"reflect"
	"testing"
)

func TestFlattenScalar(t *testing.T) {
	leaves, spec := Flatten(5)
	if len(leaves) != 1 || leaves[0] != 5 {
		t.Fatalf("leaves = %v, want [5]", leaves)
	}
	if spec.Kind != KindLeaf || spec.NumLeaves != 1 {
		t.Errorf("spec = %+v, want single leaf", spec)
	}
	if got := spec.String(); got != "$" {
		t.Errorf("spec string = %q, want $", got)
	}
}

func TestFlattenListOrder(t *testing.T) {
	leaves, spec := Flatten([]any{1.0, true, "s"})
	want := []any{1.0, true, "s"}
	if !reflect.DeepEqual(leaves, want) {
		t.Errorf("leaves = %v, want %v", leaves, want)
	}
	if got := spec.String(); got != "L3#1#1#1($,$,$)" {
		t.Errorf("spec string = %q", got)
	}
}

func TestFlattenTypedSlice(t *testing.T) {
	leaves, spec := Flatten([]int{4, 5})
	if len(leaves) != 2 || leaves[0] != 4 || leaves[1] != 5 {
		t.Errorf("leaves = %v, want [4 5]", leaves)
	}
	if spec.Kind != KindList {
		t.Errorf("kind = %v, want list", spec.Kind)
	}
}

func TestFlattenBytesIsLeaf(t *testing.T) {
	leaves, spec := Flatten([]byte("abc"))
	if len(leaves) != 1 || spec.Kind != KindLeaf {
		t.Errorf("[]byte should flatten to one leaf, got %d leaves kind %v", len(leaves), spec.Kind)
	}
}

func TestFlattenDictSortsKeys(t *testing.T) {
	v := map[string]any{"b": 2, "a": []any{1, Tuple{3, 4}}, "c": nil}
	leaves, spec := Flatten(v)

	want := []any{1, 3, 4, 2}
	if !reflect.DeepEqual(leaves, want) {
		t.Errorf("leaves = %v, want %v", leaves, want)
	}
	if got := spec.String(); got != `D3#3#1#0("a":L2#1#2($,T2#1#1($,$)),"b":$,"c":N)` {
		t.Errorf("spec string = %q", got)
	}
}

func TestUnflattenRebuildsNesting(t *testing.T) {
	v := map[string]any{
		"shape": Tuple{int64(2), int64(3)},
		"names": []any{"x", "y"},
		"none":  nil,
		"scale": 0.5,
	}
	leaves, spec := Flatten(v)

	parsed, err := ParseSpec(spec.String())
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	got, err := Unflatten(parsed, leaves)
	if err != nil {
		t.Fatalf("Unflatten: %v", err)
	}
	if !reflect.DeepEqual(got, v) {
		t.Errorf("Unflatten = %#v, want %#v", got, v)
	}
}

func TestUnflattenLeafCountMismatch(t *testing.T) {
	_, spec := Flatten([]any{1, 2})
	if _, err := Unflatten(spec, []any{1}); err == nil {
		t.Error("expected error for too few leaves")
	}
}

func TestFlatTuple(t *testing.T) {
	if got := FlatTuple(2).String(); got != "T2#1#1($,$)" {
		t.Errorf("FlatTuple(2) = %q", got)
	}
	if got := FlatTuple(0).String(); got != "T0()" {
		t.Errorf("FlatTuple(0) = %q", got)
	}
}

func TestParseSpecErrors(t *testing.T) {
	tests := []string{
		"",
		"X",
		"L2#1#1($)",
		"L1#2($)",
		"D1#1(a:$)",
		"$$",
	}
	for _, text := range tests {
		if _, err := ParseSpec(text); err == nil {
			t.Errorf("ParseSpec(%q) should fail", text)
		}
	}
}

func TestParseSpecQuotedKeys(t *testing.T) {
	s, err := ParseSpec(`D1#1("a,\"b\":c":$)`)
	if err != nil {
		t.Fatalf("ParseSpec: %v", err)
	}
	if len(s.Keys) != 1 || s.Keys[0] != `a,"b":c` {
		t.Errorf("keys = %q", s.Keys)
	}
}
