package back

import (
	"math"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/ir"
)

func canBeBetterLeftOperand(s *Selector, n ir.Node) bool { return !s.IsLive(n) }

func (a *X64) visitBinop(s *Selector, n ir.Node, op asm.ArchOpcode, cont *Continuation) {
	a.visitBinopLR(s, n, s.g.Input(n, 0), s.g.Input(n, 1), op, cont)
}

// visitBinopLR emits `same(n) = op left right` setting the flags for cont.
// right may become an immediate or a memory operand.
func (a *X64) visitBinopLR(s *Selector, n, left, right ir.Node, op asm.ArchOpcode, cont *Continuation) {
	g := s.Gen()
	code := asm.MakeCode(op)

	if s.g.Op[n].IsCommutative() && isIntConstant(s.g, left) && !isIntConstant(s.g, right) {
		left, right = right, left
	}

	ins := make([]asm.Operand, 0, 6)

	switch {
	case left == right:
		// it's not the same operand the allocator sees twice
		r := g.UseRegister(left)
		ins = append(ins, r, r)
	case a.CanBeImmediate(s, right):
		ins = append(ins, g.UseRegister(left), g.UseImmediate(right))
	default:
		level := s.EffectLevelFor(n, cont)

		if s.g.Op[n].IsCommutative() && canBeBetterLeftOperand(s, right) &&
			(!canBeBetterLeftOperand(s, left) || !a.CanBeMemoryOperand(s, op, n, right, level)) {
			left, right = right, left
		}

		if a.CanBeMemoryOperand(s, op, n, right, level) {
			var mode asm.AddressingMode

			ins = append(ins, g.UseRegister(left))
			mode, ins = a.GetEffectiveAddressMemoryOperand(s, right, ins, false)
			code = code.WithMode(mode)
		} else {
			ins = append(ins, g.UseRegister(left), g.Use(right))
		}
	}

	outs := []asm.Operand{g.DefineSameAsFirst(n)}

	s.EmitWithContinuation(code, outs, ins, nil, cont)
}

func (a *X64) binop(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		a.visitBinop(s, n, op, &Continuation{})
	}
}

func (a *X64) visitWord32And(s *Selector, n ir.Node) {
	g := s.Gen()

	if v, ok := s.g.Int32(s.g.Input(n, 1)); ok {
		switch uint32(v) {
		case 0xff:
			s.Emit(asm.MakeCode(x64.Movzxbl), g.DefineAsRegister(n), g.Use(s.g.Input(n, 0)))
			return
		case 0xffff:
			s.Emit(asm.MakeCode(x64.Movzxwl), g.DefineAsRegister(n), g.Use(s.g.Input(n, 0)))
			return
		}
	}

	a.visitBinop(s, n, x64.And32, &Continuation{})
}

func (a *X64) visitWord64And(s *Selector, n ir.Node) {
	g := s.Gen()
	left := s.g.Input(n, 0)

	if v, ok := s.g.Int64(s.g.Input(n, 1)); ok {
		switch {
		case v == 0xff:
			s.Emit(asm.MakeCode(x64.Movzxbq), g.DefineAsRegister(n), g.Use(left))
			return
		case v == 0xffff:
			s.Emit(asm.MakeCode(x64.Movzxwq), g.DefineAsRegister(n), g.Use(left))
			return
		case v == 0xffffffff:
			s.Emit(asm.MakeCode(x64.Movl), g.DefineAsRegister(n), g.Use(left))
			return
		case v >= 0 && v <= math.MaxUint32:
			// a 32 bit mask zero extends the result
			s.Emit(asm.MakeCode(x64.And32), g.DefineSameAsFirst(n), g.UseRegister(left), g.TempImmediate(int32(uint32(v))))
			return
		}
	}

	a.visitBinop(s, n, x64.And, &Continuation{})
}

func (a *X64) visitWordXor(op, not asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()

		if v, ok := s.g.IntValue(s.g.Input(n, 1)); ok && v == -1 {
			s.Emit(asm.MakeCode(not), g.DefineSameAsFirst(n), g.UseRegister(s.g.Input(n, 0)))
			return
		}

		a.visitBinop(s, n, op, &Continuation{})
	}
}

func (a *X64) visitWord32Shift(s *Selector, n ir.Node, op asm.ArchOpcode) {
	g := s.Gen()

	left, right := s.g.Input(n, 0), s.g.Input(n, 1)

	// only the low half is shifted anyway
	if s.g.Op[left] == ir.TruncateInt64ToInt32 {
		left = s.g.Input(left, 0)
	}

	if a.CanBeImmediate(s, right) {
		s.Emit(asm.MakeCode(op), g.DefineSameAsFirst(n), g.UseRegister(left), g.UseImmediate(right))
		return
	}

	s.Emit(asm.MakeCode(op), g.DefineSameAsFirst(n), g.UseRegister(left), g.UseFixed(right, int(x64.RCX)))
}

func (a *X64) visitWord64Shift(s *Selector, n ir.Node, op asm.ArchOpcode) {
	g := s.Gen()

	left, right := s.g.Input(n, 0), s.g.Input(n, 1)

	if a.CanBeImmediate(s, right) {
		if v, ok := s.g.IntValue(right); ok && op == x64.Shr && s.g.Op[left] == ir.ChangeUint32ToUint64 && v >= 0 && v < 32 {
			op = x64.Shr32
			left = s.g.Input(left, 0)
		}

		s.Emit(asm.MakeCode(op), g.DefineSameAsFirst(n), g.UseRegister(left), g.UseImmediate(right))

		return
	}

	// the count is masked by the instruction
	if s.g.Op[right] == ir.Word64And {
		if v, ok := s.g.IntValue(s.g.Input(right, 1)); ok && v == 0x3f {
			right = s.g.Input(right, 0)
		}
	}

	s.Emit(asm.MakeCode(op), g.DefineSameAsFirst(n), g.UseRegister(left), g.UseFixed(right, int(x64.RCX)))
}

func (a *X64) shift32(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) { a.visitWord32Shift(s, n, op) }
}

func (a *X64) shift64(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) { a.visitWord64Shift(s, n, op) }
}

// tryVisitWordShift fuses a flags consumer into a shift. Shifting by zero
// leaves the flags untouched, so only nonzero immediates qualify.
func (a *X64) tryVisitWordShift(s *Selector, n ir.Node, width int32, op asm.ArchOpcode, cont *Continuation) bool {
	g := s.Gen()

	left, right := s.g.Input(n, 0), s.g.Input(n, 1)

	if !a.CanBeImmediate(s, right) || immediateValue(s.g, right)&(width-1) == 0 {
		return false
	}

	outs := []asm.Operand{g.DefineSameAsFirst(n)}
	ins := []asm.Operand{g.UseRegister(left), g.UseImmediate(right)}

	s.EmitWithContinuation(asm.MakeCode(op), outs, ins, nil, cont)

	return true
}

func (a *X64) emitLea(s *Selector, op asm.ArchOpcode, n ir.Node, m AddressMatch) {
	g := s.Gen()

	mode, ins := a.GenerateMemoryOperandInputs(s, m, make([]asm.Operand, 0, 4), false)

	s.EmitN(asm.MakeCode(op).WithMode(mode), []asm.Operand{g.DefineAsRegister(n)}, ins, nil)
}

// tryScaleLea selects x*{1,2,3,4,5,8,9} and x<<{0..3} as a lea.
func (a *X64) tryScaleLea(s *Selector, n ir.Node, ops addrOps, lea asm.ArchOpcode) bool {
	idx, scale, po, ok := matchScale(s.g, n, ops, true)
	if !ok {
		return false
	}

	m := AddressMatch{Base: ir.Invalid, Index: idx, Disp: ir.Invalid, Scale: scale}
	if po {
		m.Base = idx
	}

	a.emitLea(s, lea, n, m)

	return true
}

func (a *X64) visitWord32Shl(s *Selector, n ir.Node) {
	if a.tryScaleLea(s, n, addr32, x64.Lea32) {
		return
	}

	a.visitWord32Shift(s, n, x64.Shl32)
}

func (a *X64) visitWord64Shl(s *Selector, n ir.Node) {
	g := s.Gen()

	if a.tryScaleLea(s, n, addr64, x64.Lea) {
		return
	}

	left, right := s.g.Input(n, 0), s.g.Input(n, 1)

	if op := s.g.Op[left]; op == ir.ChangeInt32ToInt64 || op == ir.ChangeUint32ToUint64 {
		// the extended half is shifted out
		if v, ok := s.g.IntValue(right); ok && v >= 32 && v <= 63 {
			s.Emit(asm.MakeCode(x64.Shl), g.DefineSameAsFirst(n), g.UseRegister(s.g.Input(left, 0)), g.UseImmediate(right))
			return
		}
	}

	a.visitWord64Shift(s, n, x64.Shl)
}

// tryMatchLoadWord64AndShiftRight loads just the upper half of a word
// shifted right by 32. It is how smis are loaded and untagged.
func (a *X64) tryMatchLoadWord64AndShiftRight(s *Selector, n ir.Node, op asm.ArchOpcode) bool {
	g := s.Gen()
	gr := s.g

	left := gr.Input(n, 0)

	if v, ok := gr.IntValue(gr.Input(n, 1)); !ok || v != 32 {
		return false
	}

	if lop := gr.Op[left]; lop != ir.Load && lop != ir.LoadImmutable || !s.CanCover(n, left) {
		return false
	}

	m, ok := MatchAddress(gr, left, addr64)
	if !ok || m.Disp != ir.Invalid && !a.CanBeImmediate(s, m.Disp) {
		return false
	}

	mode, ins := a.GetEffectiveAddressMemoryOperand(s, left, make([]asm.Operand, 0, 4), false)

	switch {
	case x64.HasDisplacement(mode):
		last := ins[len(ins)-1]
		if !last.IsImmediate() {
			// zero base left the displacement in a register
			return false
		}

		c := s.seq.ImmediateValue(last)
		ins[len(ins)-1] = g.TempImmediate(int32(c.Value) + 4)
	default:
		mode = AddDisplacementToAddressingMode(mode)
		ins = append(ins, g.TempImmediate(4))
	}

	s.EmitN(asm.MakeCode(op).WithMode(mode), []asm.Operand{g.DefineAsRegister(n)}, ins, nil)

	return true
}

func (a *X64) visitWord64Shr(s *Selector, n ir.Node) {
	if a.tryMatchLoadWord64AndShiftRight(s, n, x64.Movl) {
		return
	}

	a.visitWord64Shift(s, n, x64.Shr)
}

func (a *X64) visitWord64Sar(s *Selector, n ir.Node) {
	if a.tryMatchLoadWord64AndShiftRight(s, n, x64.Movsxlq) {
		return
	}

	a.visitWord64Shift(s, n, x64.Sar)
}

func (a *X64) visitWord32Sar(s *Selector, n ir.Node) {
	g := s.Gen()
	gr := s.g

	left := gr.Input(n, 0)

	if gr.Op[left] == ir.Word32Shl && s.CanCover(n, left) {
		by, _ := gr.Int32(gr.Input(n, 1))
		inner, _ := gr.Int32(gr.Input(left, 1))

		switch {
		case by == 16 && inner == 16:
			s.Emit(asm.MakeCode(x64.Movsxwl), g.DefineAsRegister(n), g.Use(gr.Input(left, 0)))
			return
		case by == 24 && inner == 24:
			s.Emit(asm.MakeCode(x64.Movsxbl), g.DefineAsRegister(n), g.Use(gr.Input(left, 0)))
			return
		}
	}

	a.visitWord32Shift(s, n, x64.Sar32)
}

func lookThroughTruncate(g *ir.Graph, n ir.Node) ir.Node {
	if n != ir.Invalid && g.Op[n] == ir.TruncateInt64ToInt32 {
		return g.Input(n, 0)
	}

	return n
}

// addsMemoryOperand reports a plain base + index match one of whose
// inputs folds into an add as a memory operand.
func (a *X64) addsMemoryOperand(s *Selector, n ir.Node, m AddressMatch, op asm.ArchOpcode) bool {
	if m.Disp != ir.Invalid || m.Scale != 0 || m.Base == ir.Invalid || m.Index == ir.Invalid {
		return false
	}

	level := s.EffectLevel(n)

	return a.CanBeMemoryOperand(s, op, n, m.Base, level) || a.CanBeMemoryOperand(s, op, n, m.Index, level)
}

func (a *X64) visitInt32Add(s *Selector, n ir.Node) {
	gr := s.g

	if m, ok := MatchAddress(gr, n, addr32); ok && (m.Disp == ir.Invalid || a.CanBeImmediate(s, m.Disp)) && !a.addsMemoryOperand(s, n, m, x64.Add32) {
		// leal reads the low halves only
		m.Base = lookThroughTruncate(gr, m.Base)
		m.Index = lookThroughTruncate(gr, m.Index)

		a.emitLea(s, x64.Lea32, n, m)

		return
	}

	left := lookThroughTruncate(gr, gr.Input(n, 0))
	right := lookThroughTruncate(gr, gr.Input(n, 1))

	a.visitBinopLR(s, n, left, right, x64.Add32, &Continuation{})
}

func (a *X64) visitInt64Add(s *Selector, n ir.Node) {
	if m, ok := MatchAddress(s.g, n, addr64); ok && (m.Disp == ir.Invalid || a.CanBeImmediate(s, m.Disp)) && !a.addsMemoryOperand(s, n, m, x64.Add) {
		a.emitLea(s, x64.Lea, n, m)
		return
	}

	a.visitBinop(s, n, x64.Add, &Continuation{})
}

func (a *X64) visitInt32Sub(s *Selector, n ir.Node) {
	g := s.Gen()
	gr := s.g

	left, right := gr.Input(n, 0), gr.Input(n, 1)

	if gr.Op[left] == ir.TruncateInt64ToInt32 && a.CanBeImmediate(s, right) {
		imm := immediateValue(gr, right)
		wide := g.UseRegister(gr.Input(left, 0))

		if imm == 0 {
			s.Emit(asm.MakeCode(x64.Movl), g.DefineAsRegister(n), wide)
			return
		}

		s.Emit(asm.MakeCode(x64.Lea32).WithMode(x64.MRI), g.DefineAsRegister(n), wide, g.TempImmediate(-imm))

		return
	}

	lv, lok := gr.Int32(left)
	rv, rok := gr.Int32(right)

	switch {
	case lok && lv == 0:
		s.Emit(asm.MakeCode(x64.Neg32), g.DefineSameAsFirst(n), g.UseRegister(right))
	case rok && rv == 0:
		s.EmitIdentity(n)
	case rok && a.CanBeImmediate(s, right):
		s.Emit(asm.MakeCode(x64.Lea32).WithMode(x64.MRI), g.DefineAsRegister(n), g.UseRegister(left), g.TempImmediate(-rv))
	default:
		a.visitBinop(s, n, x64.Sub32, &Continuation{})
	}
}

func (a *X64) visitInt64Sub(s *Selector, n ir.Node) {
	g := s.Gen()
	gr := s.g

	left, right := gr.Input(n, 0), gr.Input(n, 1)

	if v, ok := gr.Int64(left); ok && v == 0 {
		s.Emit(asm.MakeCode(x64.Neg), g.DefineSameAsFirst(n), g.UseRegister(right))
		return
	}

	if v, ok := gr.Int64(right); ok && a.CanBeImmediate(s, right) {
		s.Emit(asm.MakeCode(x64.Lea).WithMode(x64.MRI), g.DefineAsRegister(n), g.UseRegister(left), g.TempImmediate(-int32(v)))
		return
	}

	a.visitBinop(s, n, x64.Sub, &Continuation{})
}

// overflow returns the visitor of an arithmetic op with an overflow bit
// in projection 1.
func (a *X64) overflow(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		if ovf := s.g.FindProjection(n, 1); ovf != ir.Invalid {
			cont := ForSet(asm.CondOverflow, ovf)
			a.visitBinop(s, n, op, &cont)

			return
		}

		a.visitBinop(s, n, op, &Continuation{})
	}
}

func (a *X64) visitMul(s *Selector, n ir.Node, op asm.ArchOpcode) {
	g := s.Gen()

	left, right := s.g.Input(n, 0), s.g.Input(n, 1)

	if isIntConstant(s.g, left) && !isIntConstant(s.g, right) {
		left, right = right, left
	}

	if a.CanBeImmediate(s, right) {
		s.Emit(asm.MakeCode(op), g.DefineAsRegister(n), g.Use(left), g.UseImmediate(right))
		return
	}

	if canBeBetterLeftOperand(s, right) {
		left, right = right, left
	}

	s.Emit(asm.MakeCode(op), g.DefineSameAsFirst(n), g.UseRegister(left), g.Use(right))
}

func (a *X64) mul(ops addrOps, lea, imul asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		if a.tryScaleLea(s, n, ops, lea) {
			return
		}

		a.visitMul(s, n, imul)
	}
}

// mulHigh multiplies into rdx:rax and keeps rdx.
func (a *X64) mulHigh(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()

		left, right := s.g.Input(n, 0), s.g.Input(n, 1)

		if s.IsLive(left) && !s.IsLive(right) {
			left, right = right, left
		}

		s.EmitTemps(asm.MakeCode(op), g.DefineAsFixed(n, int(x64.RDX)),
			[]asm.Operand{g.UseFixed(left, int(x64.RAX)), g.UseUniqueRegister(right)},
			g.TempFixedRegister(int(x64.RAX)))
	}
}

func (a *X64) div(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()

		s.EmitTemps(asm.MakeCode(op), g.DefineAsFixed(n, int(x64.RAX)),
			[]asm.Operand{g.UseFixed(s.g.Input(n, 0), int(x64.RAX)), g.UseUniqueRegister(s.g.Input(n, 1))},
			g.TempFixedRegister(int(x64.RDX)))
	}
}

func (a *X64) mod(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()

		s.EmitTemps(asm.MakeCode(op), g.DefineAsFixed(n, int(x64.RDX)),
			[]asm.Operand{g.UseFixed(s.g.Input(n, 0), int(x64.RAX)), g.UseUniqueRegister(s.g.Input(n, 1))},
			g.TempFixedRegister(int(x64.RAX)))
	}
}

func (a *X64) visitChangeInt32ToInt64(s *Selector, n ir.Node) {
	g := s.Gen()
	gr := s.g

	x := gr.Input(n, 0)

	if op := gr.Op[x]; (op == ir.Load || op == ir.LoadImmutable) && s.CanCover(n, x) {
		t := gr.MachineTypeOf(x)

		var code asm.ArchOpcode

		switch t.Rep {
		case ir.RepBit, ir.RepWord8:
			code = pick(t.IsSigned(), x64.Movsxbq, x64.Movzxbq)
		case ir.RepWord16:
			code = pick(t.IsSigned(), x64.Movsxwq, x64.Movzxwq)
		case ir.RepWord32:
			// the input is signed whatever the load says
			code = x64.Movsxlq
		}

		if code != 0 {
			mode, ins := a.GetEffectiveAddressMemoryOperand(s, x, make([]asm.Operand, 0, 3), false)
			s.EmitN(asm.MakeCode(code).WithMode(mode), []asm.Operand{g.DefineAsRegister(n)}, ins, nil)

			return
		}
	}

	s.Emit(asm.MakeCode(x64.Movsxlq), g.DefineAsRegister(n), g.Use(x))
}

// ZeroExtendsWord32ToWord64 reports whether the code selected for n
// clears the upper half of the register.
func (a *X64) ZeroExtendsWord32ToWord64(s *Selector, n ir.Node) bool {
	gr := s.g

	switch gr.Op[n] {
	case ir.Word32And, ir.Word32Or, ir.Word32Xor, ir.Word32Shl, ir.Word32Shr, ir.Word32Sar,
		ir.Word32Rol, ir.Word32Ror, ir.Word32Equal,
		ir.Int32Add, ir.Int32Sub, ir.Int32Mul, ir.Int32MulHigh, ir.Int32Div, ir.Int32Mod,
		ir.Int32LessThan, ir.Int32LessThanOrEqual,
		ir.Uint32Div, ir.Uint32Mod, ir.Uint32LessThan, ir.Uint32LessThanOrEqual, ir.Uint32MulHigh:
		return true
	case ir.Projection:
		switch gr.Op[gr.Input(n, 0)] {
		case ir.Int32AddWithOverflow, ir.Int32SubWithOverflow, ir.Int32MulWithOverflow:
			return true
		}
	case ir.Load, ir.LoadImmutable, ir.ProtectedLoad:
		switch gr.MachineTypeOf(n).Rep {
		case ir.RepWord8, ir.RepWord16, ir.RepWord32:
			return true
		}
	case ir.Int32Constant, ir.Int64Constant:
		// loaded with movl, so non negative values are zero extended
		return a.CanBeImmediate(s, n) && immediateValue(gr, n) >= 0
	}

	return false
}

func (a *X64) visitChangeUint32ToUint64(s *Selector, n ir.Node) {
	g := s.Gen()
	x := s.g.Input(n, 0)

	if a.ZeroExtendsWord32ToWord64(s, x) {
		s.EmitIdentity(n)
		return
	}

	s.Emit(asm.MakeCode(x64.Movl), g.DefineAsRegister(n), g.Use(x))
}

func (a *X64) visitTruncateInt64ToInt32(s *Selector, n ir.Node) {
	g := s.Gen()
	gr := s.g

	x := gr.Input(n, 0)

	if s.CanCover(n, x) {
		switch gr.Op[x] {
		case ir.Word64Sar, ir.Word64Shr:
			if v, ok := gr.IntValue(gr.Input(x, 1)); ok && v == 32 {
				if s.CanCover(x, gr.Input(x, 0)) && a.tryMatchLoadWord64AndShiftRight(s, x, x64.Movl) {
					s.EmitIdentity(n)
					return
				}

				s.Emit(asm.MakeCode(x64.Shr), g.DefineSameAsFirst(n), g.UseRegister(gr.Input(x, 0)), g.TempImmediate(32))

				return
			}
		case ir.Load, ir.LoadImmutable:
			if a.tryMergeTruncateIntoLoad(s, n, x) {
				return
			}
		}
	}

	s.Emit(asm.MakeCode(x64.Movl), g.DefineAsRegister(n), g.Use(x))
}

func (a *X64) tryMergeTruncateIntoLoad(s *Selector, n, load ir.Node) bool {
	g := s.Gen()
	t := s.g.MachineTypeOf(load)

	var code asm.ArchOpcode

	switch t.Rep {
	case ir.RepBit, ir.RepWord8:
		code = pick(t.IsSigned(), x64.Movsxbl, x64.Movzxbl)
	case ir.RepWord16:
		code = pick(t.IsSigned(), x64.Movsxwl, x64.Movzxwl)
	case ir.RepWord32, ir.RepWord64, ir.RepTaggedSigned, ir.RepTagged, ir.RepCompressed:
		code = x64.Movl
	default:
		return false
	}

	mode, ins := a.GetEffectiveAddressMemoryOperand(s, load, make([]asm.Operand, 0, 3), false)
	s.EmitN(asm.MakeCode(code).WithMode(mode), []asm.Operand{g.DefineAsRegister(n)}, ins, nil)

	return true
}

func pick[T any](c bool, a, b T) T {
	if c {
		return a
	}

	return b
}
