package back

import (
	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

type (
	stateInputKind uint8

	stateKey struct {
		n    ir.Node
		kind stateInputKind
	}

	cachedState struct {
		ins     []asm.Operand
		values  asm.StateValueSlice
		entries int
	}

	// Deduplicator numbers captured objects in the order the
	// deoptimizer sees them.
	Deduplicator struct {
		g    *ir.Graph
		objs []ir.Node
	}
)

const (
	stateAny stateInputKind = iota
	stateStackSlot
)

const notDuplicated = -1

func NewDeduplicator(g *ir.Graph) *Deduplicator {
	return &Deduplicator{g: g}
}

// ObjectID finds a previous appearance of the object n.
// Objects and ObjectID references with equal identity tags match.
func (d *Deduplicator) ObjectID(n ir.Node) int {
	for i, x := range d.objs {
		if x == n {
			return i
		}

		if d.hasObjectID(x) && d.hasObjectID(n) && d.objectID(x) == d.objectID(n) {
			return i
		}
	}

	return notDuplicated
}

func (d *Deduplicator) Insert(n ir.Node) int {
	d.objs = append(d.objs, n)

	return len(d.objs) - 1
}

func (d *Deduplicator) Size() int { return len(d.objs) }

func (d *Deduplicator) hasObjectID(n ir.Node) bool {
	op := d.g.Op[n]

	return op == ir.TypedObjectState || op == ir.ObjectID
}

func (d *Deduplicator) objectID(n ir.Node) int {
	switch p := d.g.Param[n].(type) {
	case int:
		return p
	case ir.TypedObjectStateInfo:
		return p.ID
	}

	return notDuplicated
}

// FrameStateDescriptor builds the descriptor chain of a frame state node.
func (s *Selector) FrameStateDescriptor(state ir.Node) *asm.FrameStateDescriptor {
	if state == ir.Invalid || s.g.Op[state] != ir.FrameState {
		panic(errors.New("frame state expected, got node %d at %v", state, loc.Caller(1)))
	}

	info := s.g.FrameStateInfoOf(state)

	d := &asm.FrameStateDescriptor{
		Type:       info.Type,
		BailoutID:  info.BailoutID,
		Function:   info.Function,
		Parameters: info.Parameters,
		Locals:     info.Locals,
		Stack:      s.stateValueCount(s.g.Input(state, ir.FrameStateStack)),
		HasContext: s.g.FrameStateHasContext(state),
	}

	if outer := s.g.FrameStateOuterOf(state); outer != ir.Invalid {
		d.Outer = s.FrameStateDescriptor(outer)
	}

	return d
}

// AppendDeoptimizeArguments registers a deoptimization entry and appends
// its id followed by the frame state values.
func (s *Selector) AppendDeoptimizeArguments(ins []asm.Operand, kind ir.DeoptimizeKind, reason ir.DeoptimizeReason, id ir.Node, fb ir.FeedbackSource, state ir.Node) []asm.Operand {
	g := s.Gen()

	d := s.FrameStateDescriptor(state)

	sid := s.seq.AddDeoptimizationEntry(asm.DeoptEntry{
		Desc:     d,
		Kind:     kind,
		Reason:   reason,
		NodeID:   id,
		Feedback: fb,
	})

	ins = append(ins, g.TempImmediate(int32(sid)))

	start := len(ins)

	ins, entries := s.addFrameStateInputs(d, state, NewDeduplicator(s.g), ins, stateAny)

	if entries != len(ins)-start {
		panic(errors.New("frame state entries %d, operands %d at %v", entries, len(ins)-start, loc.Caller(1)))
	}

	return ins
}

// addFrameStateInputs emits outer frames first, then function,
// parameters, context, locals and stack.
func (s *Selector) addFrameStateInputs(d *asm.FrameStateDescriptor, state ir.Node, dd *Deduplicator, ins []asm.Operand, kind stateInputKind) (_ []asm.Operand, entries int) {
	var e int

	if outer := s.g.FrameStateOuterOf(state); outer != ir.Invalid {
		ins, e = s.addFrameStateInputs(d.Outer, outer, dd, ins, kind)
		entries += e
	}

	vals := &d.Values

	ins, e = s.addStateValue(vals, ins, dd, s.g.Input(state, ir.FrameStateFunction), ir.TypeAnyTagged, stateStackSlot)
	entries += e

	ins, e = s.addStateValues(vals, ins, dd, s.g.Input(state, ir.FrameStateParameters), kind)
	entries += e

	if d.HasContext {
		ins, e = s.addStateValue(vals, ins, dd, s.g.Input(state, ir.FrameStateContext), ir.TypeAnyTagged, stateStackSlot)
		entries += e
	}

	ins, e = s.addStateValues(vals, ins, dd, s.g.Input(state, ir.FrameStateLocals), kind)
	entries += e

	ins, e = s.addStateValues(vals, ins, dd, s.g.Input(state, ir.FrameStateStack), kind)
	entries += e

	return ins, entries
}

// addStateValues is cached per (node, kind). A cached result is reused
// only if it did not introduce new objects.
func (s *Selector) addStateValues(vals *asm.StateValueList, ins []asm.Operand, dd *Deduplicator, n ir.Node, kind stateInputKind) (_ []asm.Operand, entries int) {
	if n == ir.Invalid {
		return ins, 0
	}

	key := stateKey{n: n, kind: kind}

	if c, ok := s.states[key]; ok {
		ins = append(ins, c.ins...)
		vals.PushCachedSlice(c.values)

		return ins, c.entries
	}

	insStart := len(ins)
	valStart := vals.Len()
	ddStart := dd.Size()

	empty := 0

	s.rangeStateValues(n, func(x ir.Node, t ir.MachineType) {
		if x == ir.Invalid {
			empty++
			return
		}

		vals.PushOptimizedOut(empty)
		empty = 0

		var e int
		ins, e = s.addStateValue(vals, ins, dd, x, t, kind)
		entries += e
	})

	vals.PushOptimizedOut(empty)

	if dd.Size() == ddStart {
		s.states[key] = &cachedState{
			ins:     append([]asm.Operand{}, ins[insStart:]...),
			values:  vals.MakeSlice(valStart),
			entries: entries,
		}
	}

	return ins, entries
}

func (s *Selector) addStateValue(vals *asm.StateValueList, ins []asm.Operand, dd *Deduplicator, x ir.Node, t ir.MachineType, kind stateInputKind) (_ []asm.Operand, entries int) {
	if x == ir.Invalid {
		vals.PushOptimizedOut(1)
		return ins, 0
	}

	switch s.g.Op[x] {
	case ir.ArgumentsElementsState:
		vals.PushArgumentsElements(s.g.Param[x].(ir.ArgumentsStateType))

		// participates in object numbering, never duplicated
		dd.Insert(x)

		return ins, 0
	case ir.ArgumentsLengthState:
		vals.PushArgumentsLength()

		return ins, 0
	case ir.TypedObjectState, ir.ObjectID:
		id := dd.ObjectID(x)

		if id != notDuplicated {
			// the deoptimizer counts duplicates too
			dd.Insert(x)
			vals.PushDuplicate(id)

			return ins, 0
		}

		if s.g.Op[x] != ir.TypedObjectState {
			panic(errors.New("object id %d refers to no earlier object at %v", x, loc.Caller(1)))
		}

		id = dd.Insert(x)
		nested := vals.PushRecursiveField(id)

		info := s.g.Param[x].(ir.TypedObjectStateInfo)

		for i, f := range s.g.Value[x] {
			var e int
			ins, e = s.addStateValue(nested, ins, dd, f, info.Types[i], kind)
			entries += e
		}

		return ins, entries
	}

	o := s.operandForDeopt(x, kind, t.Rep)
	if o.IsInvalid() {
		vals.PushOptimizedOut(1)
		return ins, 0
	}

	vals.PushPlain(t)

	return append(ins, o), 1
}

func (s *Selector) operandForDeopt(x ir.Node, kind stateInputKind, rep ir.Representation) asm.Operand {
	g := s.Gen()

	if rep == ir.RepNone {
		return g.TempImmediate(ImpossibleValue)
	}

	switch s.g.Op[x] {
	case ir.Int32Constant, ir.Int64Constant, ir.Float32Constant, ir.Float64Constant:
		return g.UseImmediate(x)
	case ir.NumberConstant:
		if rep != ir.RepWord32 {
			return g.UseImmediate(x)
		}

		v := s.g.Param[x].(float64)
		if !isSmiDouble(v) {
			panic(errors.New("number constant %v is not a small integer at %v", v, loc.Caller(1)))
		}

		return g.UseImmediateInt(int32(v) << 1)
	case ir.HeapConstant, ir.CompressedHeapConstant:
		if !rep.CanBeTaggedPointer() {
			// inconsistent static type: the value can't be observed
			return asm.Operand{}
		}

		if s.g.HeapObjectOf(x).OptimizedOut {
			return asm.Operand{}
		}

		return g.UseImmediate(x)
	case ir.ArgumentsElementsState, ir.ArgumentsLengthState, ir.TypedObjectState:
		panic(errors.New("unexpected %v in frame state at %v", s.g.Op[x], loc.Caller(1)))
	}

	if kind == stateStackSlot {
		return g.UseUniqueSlot(x)
	}

	return g.UseAnyAtEnd(x)
}

// rangeStateValues flattens nested state value lists.
// Empty slots are reported as ir.Invalid.
func (s *Selector) rangeStateValues(n ir.Node, f func(x ir.Node, t ir.MachineType)) {
	var types []ir.MachineType

	switch s.g.Op[n] {
	case ir.StateValues:
	case ir.TypedStateValues:
		types = s.g.Param[n].([]ir.MachineType)
	default:
		f(n, ir.TypeAnyTagged)
		return
	}

	for i, x := range s.g.Value[n] {
		if x != ir.Invalid && (s.g.Op[x] == ir.StateValues || s.g.Op[x] == ir.TypedStateValues) {
			s.rangeStateValues(x, f)
			continue
		}

		t := ir.TypeAnyTagged
		if types != nil {
			t = types[i]
		}

		f(x, t)
	}
}

func (s *Selector) stateValueCount(n ir.Node) (c int) {
	if n == ir.Invalid {
		return 0
	}

	s.rangeStateValues(n, func(ir.Node, ir.MachineType) { c++ })

	return c
}

func (s *Selector) VisitDeoptimize(kind ir.DeoptimizeKind, reason ir.DeoptimizeReason, id ir.Node, fb ir.FeedbackSource, state ir.Node) {
	args := s.AppendDeoptimizeArguments(nil, kind, reason, id, fb, state)

	s.EmitN(asm.MakeCode(asm.ArchDeoptimize), nil, args, nil)
}
