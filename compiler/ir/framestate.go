package ir

type (
	FrameStateType uint8

	FrameStateInfo struct {
		Type      FrameStateType
		BailoutID int
		Function  string

		Parameters int
		Locals     int
	}

	TypedObjectStateInfo struct {
		ID    int
		Types []MachineType
	}

	ArgumentsStateType uint8

	SourcePosition struct {
		Script int
		Offset int
	}
)

const (
	FrameUnoptimized FrameStateType = iota
	FrameInlinedExtraArguments
	FrameConstructStub
	FrameBuiltinContinuation
	FrameJSBuiltinContinuation
)

const (
	ArgumentsElements ArgumentsStateType = iota
	ArgumentsRestParameter
)

// FrameState value inputs.
const (
	FrameStateParameters = iota
	FrameStateLocals
	FrameStateStack
	FrameStateContext
	FrameStateFunction
	FrameStateOuter

	FrameStateInputCount
)

// FrameStateOuterOf returns the outer frame state or Invalid.
func (g *Graph) FrameStateOuterOf(n Node) Node {
	x := g.Input(n, FrameStateOuter)
	if x == Invalid || g.Op[x] != FrameState {
		return Invalid
	}

	return x
}

func (g *Graph) FrameStateInfoOf(n Node) *FrameStateInfo {
	return g.Param[n].(*FrameStateInfo)
}

// FrameStateHasContext is false for frames that do not carry a context.
func (g *Graph) FrameStateHasContext(n Node) bool {
	return g.Input(n, FrameStateContext) != Invalid
}

// FrameStateDepth counts n and its outer frames.
func (g *Graph) FrameStateDepth(n Node) (d int) {
	for ; n != Invalid; n = g.FrameStateOuterOf(n) {
		d++
	}

	return d
}

func (t FrameStateType) String() string {
	switch t {
	case FrameUnoptimized:
		return "unoptimized"
	case FrameInlinedExtraArguments:
		return "inlined_extra_arguments"
	case FrameConstructStub:
		return "construct_stub"
	case FrameBuiltinContinuation:
		return "builtin_continuation"
	case FrameJSBuiltinContinuation:
		return "js_builtin_continuation"
	}

	return "frame?"
}

func (p SourcePosition) IsKnown() bool { return p.Offset >= 0 }
