package graph

import "fmt"

// ArgKind tags the payload of an Argument.
type ArgKind uint8

const (
	ArgNone ArgKind = iota
	ArgNode
	ArgInt
	ArgFloat
	ArgBool
	ArgString
	ArgInts
	ArgFloats
	ArgBools
	ArgNodes
)

func (k ArgKind) String() string {
	switch k {
	case ArgNone:
		return "none"
	case ArgNode:
		return "node"
	case ArgInt:
		return "int"
	case ArgFloat:
		return "float"
	case ArgBool:
		return "bool"
	case ArgString:
		return "string"
	case ArgInts:
		return "int[]"
	case ArgFloats:
		return "float[]"
	case ArgBools:
		return "bool[]"
	case ArgNodes:
		return "node[]"
	default:
		return fmt.Sprintf("ArgKind(%d)", k)
	}
}

// Argument is a node input: a reference to another node's value, a list of
// references, or a literal.
type Argument struct {
	Kind   ArgKind   `cbor:"1,keyasint"`
	Node   string    `cbor:"2,keyasint,omitempty"`
	Int    int64     `cbor:"3,keyasint,omitempty"`
	Float  float64   `cbor:"4,keyasint,omitempty"`
	Bool   bool      `cbor:"5,keyasint,omitempty"`
	Str    string    `cbor:"6,keyasint,omitempty"`
	Ints   []int64   `cbor:"7,keyasint,omitempty"`
	Floats []float64 `cbor:"8,keyasint,omitempty"`
	Bools  []bool    `cbor:"9,keyasint,omitempty"`
	Nodes  []string  `cbor:"10,keyasint,omitempty"`
}

// Ref references another node's value.
func Ref(node string) Argument { return Argument{Kind: ArgNode, Node: node} }

// Refs references a list of node values.
func Refs(nodes ...string) Argument { return Argument{Kind: ArgNodes, Nodes: nodes} }

// NoneArg is an absent optional argument.
func NoneArg() Argument { return Argument{Kind: ArgNone} }

// Int is an integer literal.
func Int(v int64) Argument { return Argument{Kind: ArgInt, Int: v} }

// Float is a floating-point literal.
func Float(v float64) Argument { return Argument{Kind: ArgFloat, Float: v} }

// Bool is a boolean literal.
func Bool(v bool) Argument { return Argument{Kind: ArgBool, Bool: v} }

// Str is a string literal.
func Str(v string) Argument { return Argument{Kind: ArgString, Str: v} }

// Ints is an integer list literal.
func Ints(v ...int64) Argument { return Argument{Kind: ArgInts, Ints: v} }

// Floats is a float list literal.
func Floats(v ...float64) Argument { return Argument{Kind: ArgFloats, Floats: v} }

// Bools is a bool list literal.
func Bools(v ...bool) Argument { return Argument{Kind: ArgBools, Bools: v} }

// References returns the names of the nodes this argument reads.
func (a Argument) References() []string {
	switch a.Kind {
	case ArgNode:
		return []string{a.Node}
	case ArgNodes:
		return a.Nodes
	default:
		return nil
	}
}
