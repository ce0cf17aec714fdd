package back

import (
	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

// Emit appends an instruction with at most one output.
// An invalid out means no output.
func (s *Selector) Emit(code asm.Code, out asm.Operand, ins ...asm.Operand) *asm.Instruction {
	return s.EmitTemps(code, out, ins)
}

func (s *Selector) EmitTemps(code asm.Code, out asm.Operand, ins []asm.Operand, temps ...asm.Operand) *asm.Instruction {
	var outs []asm.Operand

	if !out.IsInvalid() {
		outs = []asm.Operand{out}
	}

	return s.EmitN(code, outs, ins, temps)
}

// EmitN fails the selection instead of building an instruction
// with too many operands. It returns nil then.
func (s *Selector) EmitN(code asm.Code, outs, ins, temps []asm.Operand) *asm.Instruction {
	if len(outs) >= asm.MaxOutputCount || len(ins) >= asm.MaxInputCount || len(temps) >= asm.MaxTempCount {
		s.fail("operand count overflow", "code", code, "outs", len(outs), "ins", len(ins), "temps", len(temps))
		return nil
	}

	return s.EmitInstruction(asm.NewInstruction(code, outs, ins, temps))
}

func (s *Selector) EmitInstruction(in *asm.Instruction) *asm.Instruction {
	s.instrs = append(s.instrs, in)

	return in
}

// EmitWithContinuation completes a flags setting instruction with
// the operands its continuation needs.
func (s *Selector) EmitWithContinuation(code asm.Code, outs, ins, temps []asm.Operand, cont *Continuation) *asm.Instruction {
	g := s.Gen()

	outs = append([]asm.Operand{}, outs...)
	ins = append([]asm.Operand{}, ins...)

	if cont.IsSelect() {
		// false value goes to len(ins)-2, the output is defined same as it
		if cont.Cond == asm.CondUnorderedEqual {
			cont.Negate()
			ins = append(ins, g.UseRegisterAtEnd(cont.TrueValue), g.UseAnyAtEnd(cont.FalseValue))
		} else {
			ins = append(ins, g.UseRegisterAtEnd(cont.FalseValue), g.UseAnyAtEnd(cont.TrueValue))
		}
	}

	code = cont.Encode(code)

	switch cont.Mode {
	case asm.FlagsBranch:
		ins = append(ins, g.Label(cont.TrueBlock), g.Label(cont.FalseBlock))
	case asm.FlagsDeoptimize:
		code = code.WithMisc(len(ins))

		ins = s.AppendDeoptimizeArguments(ins, cont.Kind, cont.Reason, cont.NodeID, cont.Feedback, cont.FrameState)
	case asm.FlagsSet:
		s.MarkAsRepresentation(ir.RepWord32, cont.Result)

		outs = append(outs, g.DefineAsRegister(cont.Result))
	case asm.FlagsSelect:
		outs = append(outs, g.DefineSameAsInput(cont.Result, len(ins)-2))
	case asm.FlagsTrap:
		ins = append(ins, g.UseImmediateInt(int32(cont.Trap)))
	}

	return s.EmitN(code, outs, ins, temps)
}

// EmitCompare is the two operand form.
func (s *Selector) EmitCompare(code asm.Code, left, right asm.Operand, cont *Continuation) *asm.Instruction {
	return s.EmitWithContinuation(code, nil, []asm.Operand{left, right}, nil, cont)
}
