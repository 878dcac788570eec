package graph

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/chazu/flatprog/schema"
)

// PackFloats encodes values as little-endian elements of a floating-point
// scalar type.
func PackFloats(st schema.ScalarType, vals []float64) ([]byte, error) {
	size := st.ElementSize()
	out := make([]byte, len(vals)*size)
	for i, v := range vals {
		b := out[i*size:]
		switch st {
		case schema.ScalarDouble:
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		case schema.ScalarFloat:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		case schema.ScalarHalf:
			binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
		case schema.ScalarBFloat16:
			// bfloat16 is the high half of a float32, rounded to nearest even.
			bits := math.Float32bits(float32(v))
			bits += 0x7fff + (bits>>16)&1
			binary.LittleEndian.PutUint16(b, uint16(bits>>16))
		default:
			return nil, fmt.Errorf("graph: cannot pack floats as %s", st)
		}
	}
	return out, nil
}

// UnpackFloats decodes little-endian floating-point elements.
func UnpackFloats(st schema.ScalarType, data []byte) ([]float64, error) {
	size := st.ElementSize()
	if size == 0 || len(data)%size != 0 {
		return nil, fmt.Errorf("graph: %d bytes is not a whole number of %s elements", len(data), st)
	}
	out := make([]float64, len(data)/size)
	for i := range out {
		b := data[i*size:]
		switch st {
		case schema.ScalarDouble:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		case schema.ScalarFloat:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case schema.ScalarHalf:
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
		case schema.ScalarBFloat16:
			out[i] = float64(math.Float32frombits(uint32(binary.LittleEndian.Uint16(b)) << 16))
		default:
			return nil, fmt.Errorf("graph: cannot unpack floats from %s", st)
		}
	}
	return out, nil
}

// PackInts encodes values as little-endian elements of an integer or bool
// scalar type. Values are truncated to the element width.
func PackInts(st schema.ScalarType, vals []int64) ([]byte, error) {
	size := st.ElementSize()
	out := make([]byte, len(vals)*size)
	for i, v := range vals {
		b := out[i*size:]
		switch st {
		case schema.ScalarByte, schema.ScalarChar, schema.ScalarQInt8, schema.ScalarQUInt8:
			b[0] = byte(v)
		case schema.ScalarBool:
			if v != 0 {
				b[0] = 1
			}
		case schema.ScalarShort:
			binary.LittleEndian.PutUint16(b, uint16(v))
		case schema.ScalarInt, schema.ScalarQInt32:
			binary.LittleEndian.PutUint32(b, uint32(v))
		case schema.ScalarLong:
			binary.LittleEndian.PutUint64(b, uint64(v))
		default:
			return nil, fmt.Errorf("graph: cannot pack ints as %s", st)
		}
	}
	return out, nil
}

// NewConstant builds a contiguous constant tensor from raw bytes.
func NewConstant(st schema.ScalarType, sizes []int64, data []byte) *ConstantTensor {
	return &ConstantTensor{
		Spec: TensorSpec{ScalarType: st, Sizes: sizes},
		Data: data,
	}
}

// FloatConstant packs vals into a constant of the given floating-point type.
func FloatConstant(st schema.ScalarType, sizes []int64, vals ...float64) (*ConstantTensor, error) {
	data, err := PackFloats(st, vals)
	if err != nil {
		return nil, err
	}
	return NewConstant(st, sizes, data), nil
}

// IntConstant packs vals into a constant of the given integer type.
func IntConstant(st schema.ScalarType, sizes []int64, vals ...int64) (*ConstantTensor, error) {
	data, err := PackInts(st, vals)
	if err != nil {
		return nil, err
	}
	return NewConstant(st, sizes, data), nil
}
