package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Validate checks the structural invariants the emitter relies on: unique
// node names, arguments that only reference earlier nodes, a single trailing
// output node, placeholders bound by the signature, resolvable get_attr and
// call_delegate targets, tensor dimensions that fit the program format, and
// constant data matching its spec.
func (ep *ExportedProgram) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(ep.Graph.Nodes))
	// get_attr nodes bound to a lowered module, usable as call_delegate targets.
	delegateAttrs := make(map[string]bool)

	for i, n := range ep.Graph.Nodes {
		if n == nil {
			errs = append(errs, fmt.Errorf("node %d is nil", i))
			continue
		}
		if n.Name == "" {
			errs = append(errs, fmt.Errorf("node %d has no name", i))
		} else if seen[n.Name] {
			errs = append(errs, fmt.Errorf("duplicate node name %q", n.Name))
		}

		for _, a := range n.Args {
			for _, ref := range a.References() {
				if !seen[ref] {
					errs = append(errs, fmt.Errorf("node %q references %q before its definition", n.Name, ref))
				}
			}
		}
		seen[n.Name] = true

		for _, spec := range n.Meta.Specs {
			if err := checkSizes(spec); err != nil {
				errs = append(errs, fmt.Errorf("node %q: %w", n.Name, err))
			}
		}

		switch n.Op {
		case OpPlaceholder:
			in, ok := ep.Signature.Input(n.Name)
			if !ok {
				errs = append(errs, fmt.Errorf("placeholder %q missing from signature", n.Name))
			} else if in.Kind != InputUser {
				if _, ok := ep.Constants[in.Target]; !ok {
					errs = append(errs, fmt.Errorf("%s %q has no constant %q", in.Kind, n.Name, in.Target))
				}
			}
		case OpGetAttr:
			_, isConst := ep.Constants[n.Target.Name]
			_, isDelegate := ep.Delegates[n.Target.Name]
			if !isConst && !isDelegate {
				errs = append(errs, fmt.Errorf("get_attr %q: unknown attribute %q", n.Name, n.Target.Name))
			}
			if isDelegate {
				delegateAttrs[n.Name] = true
			}
		case OpCallDelegate:
			if _, ok := ep.Delegates[n.Target.Name]; !ok && !delegateAttrs[n.Target.Name] {
				errs = append(errs, fmt.Errorf("call_delegate %q: unknown lowered module %q", n.Name, n.Target.Name))
			}
		case OpGetItem:
			if len(n.Args) != 2 || n.Args[0].Kind != ArgNode || n.Args[1].Kind != ArgInt {
				errs = append(errs, fmt.Errorf("getitem %q: want (node, int) arguments", n.Name))
			}
		case OpOutput:
			if i != len(ep.Graph.Nodes)-1 {
				errs = append(errs, fmt.Errorf("output node %q is not last", n.Name))
			}
		case OpCallFunction:
		default:
			errs = append(errs, fmt.Errorf("node %q has unknown op %s", n.Name, n.Op))
		}
	}

	if last := len(ep.Graph.Nodes) - 1; last < 0 || ep.Graph.Nodes[last] == nil || ep.Graph.Nodes[last].Op != OpOutput {
		errs = append(errs, errors.New("graph does not end in an output node"))
	}

	keys := make([]string, 0, len(ep.Constants))
	for key := range ep.Constants {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		c := ep.Constants[key]
		if c == nil {
			errs = append(errs, fmt.Errorf("constant %q is nil", key))
			continue
		}
		if err := checkSizes(c.Spec); err != nil {
			errs = append(errs, fmt.Errorf("constant %q: %w", key, err))
			continue
		}
		if want := c.Spec.NBytes(); int64(len(c.Data)) != want {
			errs = append(errs, fmt.Errorf("constant %q: %d bytes, spec %s%v needs %d", key, len(c.Data), c.Spec.ScalarType, c.Spec.Sizes, want))
		}
	}

	names := make([]string, 0, len(ep.Delegates))
	for name := range ep.Delegates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ep.Delegates[name] == nil {
			errs = append(errs, fmt.Errorf("lowered module %q is nil", name))
		}
	}

	return errors.Join(errs...)
}

// checkSizes rejects dimensions the program format cannot hold.
func checkSizes(spec TensorSpec) error {
	for i, s := range spec.Sizes {
		if s < 0 || s > math.MaxInt32 {
			return fmt.Errorf("dimension %d size %d out of range", i, s)
		}
	}
	return nil
}
