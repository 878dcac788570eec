package emit

// DebugHandleMap maps an instruction's position in the method's chain to
// the debug handles of the graph nodes it was lowered from. Kernel calls map
// to one handle; delegate calls map to every handle the backend absorbed.
type DebugHandleMap map[int][]int

// DelegateDebugInfo describes one delegate-invoking instruction.
type DelegateDebugInfo struct {
	// Name is the lowered module's key in the source program.
	Name string `json:"name"`
	// DelegateMap maps backend-internal identifiers to debug handles.
	DelegateMap map[string][]int `json:"delegate_map"`
}

// DelegateDebugIDMap maps delegate-invoking instruction positions to their
// backend debug identifiers.
type DelegateDebugIDMap map[int]DelegateDebugInfo

// debugCollector re-keys per-method debug maps by method name.
type debugCollector struct {
	handles   map[string]DebugHandleMap
	delegates map[string]DelegateDebugIDMap
}

func newDebugCollector() *debugCollector {
	return &debugCollector{
		handles:   make(map[string]DebugHandleMap),
		delegates: make(map[string]DelegateDebugIDMap),
	}
}

func (c *debugCollector) collect(method string, handles DebugHandleMap, delegates DelegateDebugIDMap) {
	if handles == nil {
		handles = DebugHandleMap{}
	}
	if delegates == nil {
		delegates = DelegateDebugIDMap{}
	}
	c.handles[method] = handles
	c.delegates[method] = delegates
}
