package schema

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// The program archive is a canonical CBOR dump of a Program. It is an
// interchange form for tools that run after emission (segment layout,
// flatbuffer serialization); it is not the runtime file format.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("schema: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a Program to canonical CBOR bytes.
func MarshalProgram(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// UnmarshalProgram deserializes a Program from CBOR bytes.
func UnmarshalProgram(data []byte) (*Program, error) {
	var p Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("schema: unmarshal program: %w", err)
	}
	return &p, nil
}

// Fingerprint returns the SHA-256 of the program's canonical encoding.
// Emitting the same input twice yields the same fingerprint.
func Fingerprint(p *Program) ([32]byte, error) {
	data, err := MarshalProgram(p)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}
