package back

import (
	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

type (
	// PushParameter is a value passed or returned through a stack slot.
	// Node is ir.Invalid for holes and unused results.
	PushParameter struct {
		Node     ir.Node
		Location ir.LinkageLocation
	}

	// CallBuffer collects the operands of one call site.
	CallBuffer struct {
		Desc  *ir.CallDescriptor
		State *asm.FrameStateDescriptor

		OutputNodes []PushParameter
		Outputs     []asm.Operand
		Args        []asm.Operand
		Pushed      []PushParameter
	}

	CallBufferFlags uint8
)

const (
	CallCodeImmediate CallBufferFlags = 1 << iota
	CallAddressImmediate
	CallTail
	CallFixedTargetRegister
)

// ReturnAddressStackSlots is the number of slots the return address
// takes on the stack.
const ReturnAddressStackSlots = 1

func NewCallBuffer(d *ir.CallDescriptor, state *asm.FrameStateDescriptor) *CallBuffer {
	return &CallBuffer{Desc: d, State: state}
}

// FrameStateValueCount includes the state id immediate.
func (b *CallBuffer) FrameStateValueCount() int {
	if b.State == nil {
		return 0
	}

	return b.State.TotalSize() + 1
}

// InitializeCallBuffer fills outputs, the call target, the frame state
// and the arguments of call. Stack arguments of regular calls go to Pushed.
func (s *Selector) InitializeCallBuffer(call ir.Node, b *CallBuffer, flags CallBufferFlags, stackParamDelta int) {
	g := s.Gen()
	d := b.Desc
	tail := flags&CallTail != 0

	if rc := d.ReturnCount(); rc > 0 {
		if rc == 1 {
			b.OutputNodes = append(b.OutputNodes, PushParameter{Node: call, Location: d.ReturnLocation(0)})
		} else {
			for i := 0; i < rc; i++ {
				b.OutputNodes = append(b.OutputNodes, PushParameter{Node: ir.Invalid, Location: d.ReturnLocation(i)})
			}

			for _, u := range s.g.Uses(call) {
				if u.Kind != ir.ValueEdge {
					continue
				}

				if s.g.Op[u.User] != ir.Projection {
					panic(errors.New("call %d: value use by %v at %v", call, s.g.Op[u.User], loc.Caller(1)))
				}

				idx := s.g.IndexOf(u.User)
				b.OutputNodes[idx].Node = u.User
			}

			s.frame.EnsureReturnSlots(d.ReturnSlotCount())
		}

		for i := range b.OutputNodes {
			p := &b.OutputNodes[i]
			if p.Node == ir.Invalid {
				continue
			}

			o := g.DefineAsLocation(p.Node, p.Location)
			s.MarkOperandAsRepresentation(p.Location.Type.Rep, o)

			if o.Policy != asm.PolicyFixedSlot {
				b.Outputs = append(b.Outputs, o)
				p.Node = ir.Invalid
			}
		}
	}

	callee := s.g.Input(call, 0)
	op := s.g.Op[callee]

	fixed := flags&CallFixedTargetRegister != 0
	codeImm := flags&CallCodeImmediate != 0
	addrImm := flags&CallAddressImmediate != 0

	target := func(imm bool) asm.Operand {
		switch {
		case imm:
			return g.UseImmediate(callee)
		case fixed:
			return g.UseFixed(callee, s.arch.CodeStartRegister())
		default:
			return g.UseRegister(callee)
		}
	}

	switch d.Kind {
	case ir.CallCodeObject:
		b.Args = append(b.Args, target(codeImm && op == ir.HeapConstant))
	case ir.CallAddress:
		b.Args = append(b.Args, target(addrImm && op == ir.ExternalConstant))
	case ir.CallWasmFunction, ir.CallWasmImportWrapper:
		b.Args = append(b.Args, target(addrImm && (op == ir.RelocatableInt32Constant || op == ir.RelocatableInt64Constant)))
	case ir.CallBuiltinPointer:
		b.Args = append(b.Args, target(false))
	case ir.CallJSFunction:
		b.Args = append(b.Args, g.UseLocation(callee, d.InputLocation(0)))
	default:
		panic(errors.New("unsupported call kind %d at %v", d.Kind, loc.Caller(1)))
	}

	if b.State != nil {
		state := s.g.Input(call, d.InputCount())

		if tail {
			state = s.g.FrameStateOuterOf(state)
			b.State = b.State.Outer

			for b.State != nil && b.State.Type == ir.FrameInlinedExtraArguments {
				state = s.g.FrameStateOuterOf(state)
				b.State = b.State.Outer
			}
		}

		if b.State != nil {
			sid := s.seq.AddDeoptimizationEntry(asm.DeoptEntry{
				Desc:   b.State,
				Kind:   ir.DeoptimizeLazy,
				NodeID: call,
			})

			b.Args = append(b.Args, g.TempImmediate(int32(sid)))

			start := len(b.Args)

			var entries int
			b.Args, entries = s.addFrameStateInputs(b.State, state, NewDeduplicator(s.g), b.Args, stateStackSlot)

			if entries != len(b.Args)-start {
				panic(errors.New("frame state entries %d, operands %d at %v", entries, len(b.Args)-start, loc.Caller(1)))
			}
		}
	}

	for i := 1; i < d.InputCount(); i++ {
		x := s.g.Input(call, i)
		l := d.InputLocation(i)

		if tail {
			l = l.ToTailCallerLocation(stackParamDelta)
		}

		if l.IsSlot() && !tail {
			idx := l.SlotIndex()

			if idx >= len(b.Pushed) {
				for len(b.Pushed) < idx+l.SizeInPointers() {
					b.Pushed = append(b.Pushed, PushParameter{Node: ir.Invalid})
				}
			}

			b.Pushed[idx] = PushParameter{Node: x, Location: l}

			continue
		}

		b.Args = append(b.Args, g.UseLocation(x, l))
	}

	if tail && stackParamDelta != 0 {
		ra := ir.SavedCallerReturnAddress()

		b.Args = append(b.Args, g.UsePointerLocation(ra.ToTailCallerLocation(stackParamDelta), ra))
	}
}

// VisitCall lowers a call. handler is the exception handler block or nil.
func (s *Selector) VisitCall(n ir.Node, handler *ir.Block) {
	g := s.Gen()
	d := s.g.CallDescriptorOf(n)

	saveMode := 0
	if d.Has(ir.FlagCallerSavedFPRegisters) {
		saveMode = 1
	}

	if d.NeedsCallerSavedRegisters() {
		s.Emit(asm.MakeCode(asm.ArchSaveCallerRegisters).WithMisc(saveMode), g.NoOutput())
	}

	var state *asm.FrameStateDescriptor
	if d.NeedsFrameState() {
		state = s.FrameStateDescriptor(s.g.Input(n, d.InputCount()))
	}

	b := NewCallBuffer(d, state)

	flags := CallCodeImmediate | CallAddressImmediate
	if d.Has(ir.FlagFixedTargetRegister) {
		flags |= CallFixedTargetRegister
	}

	s.InitializeCallBuffer(n, b, flags, 0)

	s.arch.EmitPrepareArguments(s, b.Pushed, d, n)
	s.maxPushed = max(s.maxPushed, len(b.Pushed))

	cflags := d.Flags

	if handler != nil {
		if len(handler.Nodes) == 0 || s.g.Op[handler.Nodes[0]] != ir.IfException {
			panic(errors.New("exception handler B%d does not start with IfException at %v", handler.RPO, loc.Caller(1)))
		}

		cflags |= ir.FlagHasExceptionHandler
		b.Args = append(b.Args, g.Label(handler.RPO))
	}

	var code asm.Code

	switch d.Kind {
	case ir.CallAddress:
		code = asm.MakeCode(asm.ArchCallCFunction).WithMisc(d.GPParameterCount() | d.FPParameterCount()<<5)
	case ir.CallCodeObject:
		code = encodeCallFlags(asm.ArchCallCodeObject, cflags)
	case ir.CallJSFunction:
		code = encodeCallFlags(asm.ArchCallJSFunction, cflags)
	case ir.CallWasmFunction, ir.CallWasmImportWrapper:
		code = encodeCallFlags(asm.ArchCallWasmFunction, cflags)
	case ir.CallBuiltinPointer:
		code = encodeCallFlags(asm.ArchCallBuiltinPointer, cflags)
	}

	in := s.EmitN(code, b.Outputs, b.Args, nil)
	if in == nil {
		return
	}

	in.MarkAsCall()

	s.arch.EmitPrepareResults(s, b.OutputNodes, d, n)

	if d.NeedsCallerSavedRegisters() {
		s.Emit(asm.MakeCode(asm.ArchRestoreCallerRegisters).WithMisc(saveMode), g.NoOutput())
	}
}

func (s *Selector) VisitTailCall(n ir.Node) {
	g := s.Gen()

	callee := s.g.CallDescriptorOf(n)
	caller := s.link.Incoming

	delta := callee.StackParameterDelta(caller)

	var state *asm.FrameStateDescriptor
	if callee.NeedsFrameState() {
		state = s.FrameStateDescriptor(s.g.Input(n, callee.InputCount()))
	}

	b := NewCallBuffer(callee, state)

	flags := CallCodeImmediate | CallTail
	if s.arch.IsTailCallAddressImmediate() {
		flags |= CallAddressImmediate
	}

	if callee.Has(ir.FlagFixedTargetRegister) {
		flags |= CallFixedTargetRegister
	}

	s.InitializeCallBuffer(n, b, flags, delta)
	s.maxPushed = max(s.maxPushed, delta)

	var op asm.ArchOpcode

	switch callee.Kind {
	case ir.CallCodeObject:
		op = asm.ArchTailCallCodeObject
	case ir.CallAddress:
		op = asm.ArchTailCallAddress
	case ir.CallWasmFunction:
		op = asm.ArchTailCallWasm
	default:
		panic(errors.New("unsupported tail call kind %d at %v", callee.Kind, loc.Caller(1)))
	}

	s.Emit(asm.MakeCode(asm.ArchPrepareTailCall), g.NoOutput())

	b.Args = append(b.Args,
		g.TempImmediate(int32(callee.OffsetToFirstUnusedStackSlot()-1)),
		g.TempImmediate(int32(ReturnAddressStackSlots+delta)),
	)

	s.EmitN(encodeCallFlags(op, callee.Flags), nil, b.Args, nil)
}

func encodeCallFlags(op asm.ArchOpcode, f ir.CallFlags) asm.Code {
	return asm.MakeCode(op).WithMisc(int(f) & asm.MaxMisc)
}
