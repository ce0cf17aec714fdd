package asm

import (
	"github.com/slowlang/isel/compiler/ir"
	"tlog.app/go/tlog/tlwire"
)

type (
	StateValueKind uint8

	StateValueDescriptor struct {
		Kind StateValueKind
		Type ir.MachineType

		// ID is the object index for nested and duplicate entries.
		ID int

		ArgsType ir.ArgumentsStateType
	}

	// StateValueList describes how the deoptimizer rebuilds the values
	// of one frame. Nested holds the fields of captured objects,
	// in parallel with Fields.
	StateValueList struct {
		Fields []StateValueDescriptor
		Nested []*StateValueList
	}

	// StateValueSlice is a replayable range of a list.
	StateValueSlice struct {
		list  *StateValueList
		start int
		size  int
	}

	FrameStateDescriptor struct {
		Type      ir.FrameStateType
		BailoutID int
		Function  string

		Parameters int
		Locals     int
		Stack      int
		HasContext bool

		Outer *FrameStateDescriptor

		Values StateValueList
	}

	DeoptEntry struct {
		Desc     *FrameStateDescriptor
		Kind     ir.DeoptimizeKind
		Reason   ir.DeoptimizeReason
		NodeID   ir.Node
		Feedback ir.FeedbackSource
	}
)

const (
	StatePlain StateValueKind = iota
	StateOptimizedOut
	StateNested
	StateDuplicate
	StateArgumentsElements
	StateArgumentsLength
)

var stateKindNames = [...]string{
	StatePlain:             "plain",
	StateOptimizedOut:      "optimized_out",
	StateNested:            "nested",
	StateDuplicate:         "duplicate",
	StateArgumentsElements: "arguments_elements",
	StateArgumentsLength:   "arguments_length",
}

func (l *StateValueList) Len() int { return len(l.Fields) }

func (l *StateValueList) push(d StateValueDescriptor, nested *StateValueList) {
	l.Fields = append(l.Fields, d)
	l.Nested = append(l.Nested, nested)
}

func (l *StateValueList) PushPlain(t ir.MachineType) {
	l.push(StateValueDescriptor{Kind: StatePlain, Type: t}, nil)
}

func (l *StateValueList) PushOptimizedOut(n int) {
	for i := 0; i < n; i++ {
		l.push(StateValueDescriptor{Kind: StateOptimizedOut}, nil)
	}
}

func (l *StateValueList) PushDuplicate(id int) {
	l.push(StateValueDescriptor{Kind: StateDuplicate, Type: ir.TypeAnyTagged, ID: id}, nil)
}

// PushRecursiveField starts a captured object and returns the list for
// its fields.
func (l *StateValueList) PushRecursiveField(id int) *StateValueList {
	n := &StateValueList{}

	l.push(StateValueDescriptor{Kind: StateNested, Type: ir.TypeAnyTagged, ID: id}, n)

	return n
}

func (l *StateValueList) PushArgumentsElements(t ir.ArgumentsStateType) {
	l.push(StateValueDescriptor{Kind: StateArgumentsElements, Type: ir.TypeAnyTagged, ArgsType: t}, nil)
}

func (l *StateValueList) PushArgumentsLength() {
	l.push(StateValueDescriptor{Kind: StateArgumentsLength, Type: ir.TypeAnyTagged}, nil)
}

// MakeSlice captures the entries appended since start.
func (l *StateValueList) MakeSlice(start int) StateValueSlice {
	return StateValueSlice{list: l, start: start, size: len(l.Fields) - start}
}

func (l *StateValueList) PushCachedSlice(s StateValueSlice) {
	for i := s.start; i < s.start+s.size; i++ {
		l.push(s.list.Fields[i], s.list.Nested[i])
	}
}

func (s StateValueSlice) Len() int { return s.size }

// Size is the number of values the frame carries, without outer frames.
func (d *FrameStateDescriptor) Size() int {
	n := 1 + d.Parameters + d.Locals + d.Stack

	if d.HasContext {
		n++
	}

	return n
}

func (d *FrameStateDescriptor) TotalSize() (n int) {
	for ; d != nil; d = d.Outer {
		n += d.Size()
	}

	return n
}

func (d *FrameStateDescriptor) FrameCount() (n int) {
	for ; d != nil; d = d.Outer {
		n++
	}

	return n
}

func (k StateValueKind) String() string {
	if int(k) < len(stateKindNames) {
		return stateKindNames[k]
	}

	return "state?"
}

func (d StateValueDescriptor) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyString(b, "kind", d.Kind.String())
	b = e.AppendKeyInt(b, "id", d.ID)

	return b
}
