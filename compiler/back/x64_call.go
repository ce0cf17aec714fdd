package back

import (
	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/ir"
)

const pointerSize = 8

// EmitPrepareArguments pokes C call arguments into the reserved area
// and pushes the others. Push operands carry the stack decrement,
// holes included.
func (a *X64) EmitPrepareArguments(s *Selector, args []PushParameter, d *ir.CallDescriptor, n ir.Node) {
	g := s.Gen()

	if d.IsCFunctionCall() {
		s.Emit(asm.MakeCode(asm.ArchPrepareCallCFunction).WithMisc(d.ParamCount()), g.NoOutput())

		for slot, p := range args {
			if p.Node == ir.Invalid {
				continue
			}

			s.Emit(asm.MakeCode(x64.Poke).WithMisc(slot), g.NoOutput(), g.UseImmediateOrRegister(p.Node))
		}

		return
	}

	level := s.EffectLevel(n)
	dec := 0

	for i := len(args) - 1; i >= 0; i-- {
		p := args[i]

		dec += pointerSize

		if p.Node == ir.Invalid {
			continue
		}

		decrement := g.TempImmediate(int32(dec))
		dec = 0

		rep := p.Location.Type.Rep
		vrep := s.seq.Representation(s.VReg(p.Node))

		switch {
		case a.CanBeImmediate(s, p.Node):
			s.Emit(asm.MakeCode(x64.Push), g.NoOutput(), decrement, g.UseImmediate(p.Node))
		case rep.IsFloat() || rep.IsSimd() || vrep.IsFloat() || vrep.IsSimd():
			// no stack to stack moves for fp values
			s.Emit(asm.MakeCode(x64.Push), g.NoOutput(), decrement, g.UseRegister(p.Node))
		case a.CanBeMemoryOperand(s, x64.Push, n, p.Node, level):
			mode, ins := a.GetEffectiveAddressMemoryOperand(s, p.Node, []asm.Operand{decrement}, false)
			s.EmitN(asm.MakeCode(x64.Push).WithMode(mode), nil, ins, nil)
		default:
			s.Emit(asm.MakeCode(x64.Push), g.NoOutput(), decrement, g.UseAny(p.Node))
		}
	}
}

// EmitPrepareResults peeks stack returned values after the call.
func (a *X64) EmitPrepareResults(s *Selector, results []PushParameter, d *ir.CallDescriptor, n ir.Node) {
	g := s.Gen()

	for _, r := range results {
		if !r.Location.IsCallerFrameSlot() || r.Node == ir.Invalid {
			continue
		}

		switch rep := r.Location.Type.Rep; rep {
		case ir.RepFloat32, ir.RepFloat64, ir.RepSimd128:
			s.MarkAsRepresentation(rep, r.Node)
		}

		slot := -r.Location.Value - d.OffsetToReturns()

		s.Emit(asm.MakeCode(x64.Peek), g.DefineAsRegister(r.Node), g.TempImmediate(int32(slot)))
	}
}
