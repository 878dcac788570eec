package emit

import (
	"math"
	"reflect"

	"github.com/chazu/flatprog/schema"
	"github.com/chazu/flatprog/tree"
)

// PrimGetter declares a method that returns a constant. Value may be a
// primitive (bool, integer, float, string, schema.ScalarType, schema.Layout)
// or any nesting of slices, tree.Tuple and string-keyed maps of them.
type PrimGetter struct {
	Name  string
	Value any
}

// primKind is the closed set of leaf kinds a getter may return.
type primKind uint8

const (
	primUnsupported primKind = iota
	primBool
	primInt
	primDouble
	primString
	primScalarType
	primLayout
)

// kindOf classifies a leaf. Named types are classified by their declared
// type first, so enumerations are never mistaken for plain integers.
func kindOf(v any) primKind {
	switch v.(type) {
	case schema.ScalarType:
		return primScalarType
	case schema.Layout:
		return primLayout
	case bool:
		return primBool
	case string:
		return primString
	case float32, float64:
		return primDouble
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return primInt
	case uint, uint64:
		if reflect.ValueOf(v).Uint() <= math.MaxInt64 {
			return primInt
		}
	}
	return primUnsupported
}

// primValue wraps a leaf as an EValue. Enumerations are stored as their
// integer codes.
func primValue(method string, v any) (schema.EValue, error) {
	switch kindOf(v) {
	case primBool:
		return schema.NewBool(v.(bool)), nil
	case primInt:
		rv := reflect.ValueOf(v)
		if rv.CanInt() {
			return schema.NewInt(rv.Int()), nil
		}
		return schema.NewInt(int64(rv.Uint())), nil
	case primDouble:
		return schema.NewDouble(reflect.ValueOf(v).Float()), nil
	case primString:
		return schema.NewString(v.(string)), nil
	case primScalarType:
		return schema.NewInt(int64(v.(schema.ScalarType))), nil
	case primLayout:
		return schema.NewInt(int64(v.(schema.Layout))), nil
	default:
		return schema.EValue{}, errorf(NotSupported,
			"error emitting %s which returns a value of type %T, which is not a supported primitive", method, v)
	}
}

// emitPrimGetters builds one constant-returning plan per getter, in the
// order given. The plans use no operators, delegates or constant data.
func emitPrimGetters(getters []PrimGetter) ([]*schema.ExecutionPlan, error) {
	plans := make([]*schema.ExecutionPlan, 0, len(getters))
	for _, g := range getters {
		leaves, spec := tree.Flatten(g.Value)

		values := make([]schema.EValue, 0, len(leaves))
		outputs := make([]int, 0, len(leaves))
		for _, leaf := range leaves {
			v, err := primValue(g.Name, leaf)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, len(values))
			values = append(values, v)
		}

		log.Debugf("prim getter %s: %d values, spec %s", g.Name, len(values), spec)
		plans = append(plans, &schema.ExecutionPlan{
			Name:    g.Name,
			Values:  values,
			Inputs:  []int{},
			Outputs: outputs,
			Chains: []schema.Chain{{
				Inputs:       []int{},
				Outputs:      []int{},
				Instructions: []schema.Instruction{},
			}},
			Operators:           []schema.Operator{},
			Delegates:           []schema.BackendDelegate{},
			NonConstBufferSizes: []int64{0, 0},
			ContainerMetaType:   schema.ContainerMetadata{EncodedInpStr: "", EncodedOutStr: spec.String()},
		})
	}
	return plans, nil
}
