// Package debuginfo persists the debug maps produced by an emission so that
// profilers and error reporters can map instruction positions back to graph
// nodes.
//
// A Record is keyed by a ProgramID derived from the program's fingerprint:
// re-emitting the same input yields the same ID, and any change to the
// program yields a new one.
package debuginfo

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/chazu/flatprog/emit"
	"github.com/chazu/flatprog/schema"
)

// Namespace is the UUID namespace program IDs are derived in.
var Namespace = uuid.MustParse("6f3c9a52-4b8e-5d17-9a0c-2e51f7d4b8a3")

// Record is the debug information of one emitted program.
type Record struct {
	ProgramID   uuid.UUID `json:"program_id"`
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`

	// Methods lists every graph method, in emission order. Primitive
	// getters have no debug information and are not listed.
	Methods []string `json:"methods"`

	DebugHandleMap     map[string]emit.DebugHandleMap     `json:"debug_handle_map"`
	DelegateDebugIDMap map[string]emit.DelegateDebugIDMap `json:"delegate_map"`
}

// ProgramID derives the identifier of a program from its fingerprint.
func ProgramID(fingerprint [32]byte) uuid.UUID {
	return uuid.NewSHA1(Namespace, fingerprint[:])
}

// FromOutput builds the record of an emission.
func FromOutput(name string, out *emit.Output) (*Record, error) {
	fp, err := schema.Fingerprint(out.Program)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting program: %w", err)
	}

	r := &Record{
		ProgramID:          ProgramID(fp),
		Name:               name,
		Fingerprint:        hex.EncodeToString(fp[:]),
		DebugHandleMap:     out.DebugHandleMap,
		DelegateDebugIDMap: out.DelegateDebugIDMap,
	}
	for _, plan := range out.Program.ExecutionPlans {
		if _, ok := out.DebugHandleMap[plan.Name]; ok {
			r.Methods = append(r.Methods, plan.Name)
		}
	}
	return r, nil
}

// Handles returns the debug handles of one instruction.
func (r *Record) Handles(method string, instruction int) []int {
	return r.DebugHandleMap[method][instruction]
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding debug record: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// ReadJSON decodes a record written by WriteJSON.
func ReadJSON(rd io.Reader) (*Record, error) {
	var r Record
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding debug record: %w", err)
	}
	return &r, nil
}

// WriteFile writes r as JSON to path.
func WriteFile(path string, r *Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	if err := WriteJSON(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
