package schema

import "fmt"

// ScalarType is the element type of a tensor. The numeric codes are part of
// the program format and must not be renumbered.
type ScalarType int8

const (
	ScalarByte          ScalarType = 0
	ScalarChar          ScalarType = 1
	ScalarShort         ScalarType = 2
	ScalarInt           ScalarType = 3
	ScalarLong          ScalarType = 4
	ScalarHalf          ScalarType = 5
	ScalarFloat         ScalarType = 6
	ScalarDouble        ScalarType = 7
	ScalarComplexHalf   ScalarType = 8
	ScalarComplexFloat  ScalarType = 9
	ScalarComplexDouble ScalarType = 10
	ScalarBool          ScalarType = 11
	ScalarQInt8         ScalarType = 12
	ScalarQUInt8        ScalarType = 13
	ScalarQInt32        ScalarType = 14
	ScalarBFloat16      ScalarType = 15
	ScalarQUInt4x2      ScalarType = 16
	ScalarQUInt2x4      ScalarType = 17
)

var scalarTypeNames = map[ScalarType]string{
	ScalarByte:          "byte",
	ScalarChar:          "char",
	ScalarShort:         "short",
	ScalarInt:           "int",
	ScalarLong:          "long",
	ScalarHalf:          "half",
	ScalarFloat:         "float",
	ScalarDouble:        "double",
	ScalarComplexHalf:   "complex_half",
	ScalarComplexFloat:  "complex_float",
	ScalarComplexDouble: "complex_double",
	ScalarBool:          "bool",
	ScalarQInt8:         "qint8",
	ScalarQUInt8:        "quint8",
	ScalarQInt32:        "qint32",
	ScalarBFloat16:      "bfloat16",
	ScalarQUInt4x2:      "quint4x2",
	ScalarQUInt2x4:      "quint2x4",
}

// String returns the lower-case name of the scalar type.
func (s ScalarType) String() string {
	if name, ok := scalarTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ScalarType(%d)", int8(s))
}

// ElementSize returns the size of one element in bytes, or 0 if the type
// has no fixed byte size.
func (s ScalarType) ElementSize() int {
	switch s {
	case ScalarByte, ScalarChar, ScalarBool, ScalarQInt8, ScalarQUInt8,
		ScalarQUInt4x2, ScalarQUInt2x4:
		return 1
	case ScalarShort, ScalarHalf, ScalarBFloat16:
		return 2
	case ScalarInt, ScalarFloat, ScalarQInt32, ScalarComplexHalf:
		return 4
	case ScalarLong, ScalarDouble, ScalarComplexFloat:
		return 8
	case ScalarComplexDouble:
		return 16
	default:
		return 0
	}
}

// ParseScalarType looks up a scalar type by its String name.
func ParseScalarType(name string) (ScalarType, error) {
	for st, n := range scalarTypeNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown scalar type %q", name)
}

// Layout is the memory layout of a tensor.
type Layout int8

const (
	LayoutStrided   Layout = 0
	LayoutSparseCOO Layout = 1
	LayoutSparseCSR Layout = 2
	LayoutMKLDNN    Layout = 3
)

var layoutNames = map[Layout]string{
	LayoutStrided:   "strided",
	LayoutSparseCOO: "sparse_coo",
	LayoutSparseCSR: "sparse_csr",
	LayoutMKLDNN:    "mkldnn",
}

func (l Layout) String() string {
	if name, ok := layoutNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Layout(%d)", int8(l))
}

// ParseLayout looks up a layout by its String name.
func ParseLayout(name string) (Layout, error) {
	for l, n := range layoutNames {
		if n == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown layout %q", name)
}

// ShapeDynamism describes whether a tensor's shape may change at runtime.
type ShapeDynamism uint8

const (
	DynamismStatic       ShapeDynamism = 0
	DynamismDynamicBound ShapeDynamism = 1
	DynamismDynamic      ShapeDynamism = 2
)
