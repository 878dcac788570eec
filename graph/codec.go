package graph

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Graph files hold one ExportedProgram as canonical CBOR, the form the
// capture pipeline hands to the emitter.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("graph: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes an ExportedProgram to CBOR bytes.
func Marshal(ep *ExportedProgram) ([]byte, error) {
	return cborEncMode.Marshal(ep)
}

// Unmarshal deserializes an ExportedProgram from CBOR bytes.
func Unmarshal(data []byte) (*ExportedProgram, error) {
	var ep ExportedProgram
	if err := cbor.Unmarshal(data, &ep); err != nil {
		return nil, fmt.Errorf("graph: unmarshal program: %w", err)
	}
	return &ep, nil
}

// ReadFile loads and decodes a graph file.
func ReadFile(path string) (*ExportedProgram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	ep, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ep, nil
}

// WriteFile encodes ep and writes it to path.
func WriteFile(path string, ep *ExportedProgram) error {
	data, err := Marshal(ep)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
