package back

import (
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

// OperandGenerator turns nodes into instruction operands.
// Define* mark the node defined, Use* mark it used.
type OperandGenerator struct {
	s *Selector
}

// ImpossibleValue stands for deopt values with no representation.
const ImpossibleValue = 0xdead

func (s *Selector) Gen() OperandGenerator { return OperandGenerator{s: s} }

func (g OperandGenerator) Selector() *Selector { return g.s }

func (g OperandGenerator) NoOutput() asm.Operand { return asm.Operand{} }

func (g OperandGenerator) define(n ir.Node, o asm.Operand) asm.Operand {
	g.s.MarkAsDefined(n)
	return o
}

func (g OperandGenerator) use(n ir.Node, o asm.Operand) asm.Operand {
	g.s.MarkAsUsed(n)
	return o
}

func (g OperandGenerator) DefineAsRegister(n ir.Node) asm.Operand {
	return g.define(n, asm.Unallocated(asm.PolicyRegister, asm.UsedAtEnd, g.s.VReg(n)))
}

func (g OperandGenerator) DefineSameAsInput(n ir.Node, input int) asm.Operand {
	return g.define(n, asm.SameAsInput(input, g.s.VReg(n)))
}

func (g OperandGenerator) DefineSameAsFirst(n ir.Node) asm.Operand {
	return g.DefineSameAsInput(n, 0)
}

func (g OperandGenerator) DefineAsFixed(n ir.Node, reg int) asm.Operand {
	return g.define(n, asm.Fixed(asm.PolicyFixedRegister, reg, g.s.VReg(n)))
}

func (g OperandGenerator) DefineAsFixedFP(n ir.Node, reg int) asm.Operand {
	return g.define(n, asm.Fixed(asm.PolicyFixedFPRegister, reg, g.s.VReg(n)))
}

func (g OperandGenerator) DefineAsConstant(n ir.Node) asm.Operand {
	g.s.MarkAsDefined(n)

	v := g.s.VReg(n)
	g.s.seq.AddConstant(v, g.ToConstant(n))

	return asm.ConstantOperand(v)
}

func (g OperandGenerator) DefineAsLocation(n ir.Node, l ir.LinkageLocation) asm.Operand {
	return g.define(n, toUnallocated(l, g.s.VReg(n)))
}

func (g OperandGenerator) Use(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyNone, asm.UsedAtStart, g.s.VReg(n)))
}

func (g OperandGenerator) UseAnyAtEnd(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyRegisterOrSlot, asm.UsedAtEnd, g.s.VReg(n)))
}

func (g OperandGenerator) UseAny(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyRegisterOrSlot, asm.UsedAtStart, g.s.VReg(n)))
}

func (g OperandGenerator) UseRegisterOrSlotOrConstant(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyRegisterOrSlotOrConstant, asm.UsedAtStart, g.s.VReg(n)))
}

func (g OperandGenerator) UseUniqueRegisterOrSlotOrConstant(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyRegisterOrSlotOrConstant, asm.UsedAtEnd, g.s.VReg(n)))
}

func (g OperandGenerator) UseRegister(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyRegister, asm.UsedAtStart, g.s.VReg(n)))
}

func (g OperandGenerator) UseRegisterAtEnd(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyRegister, asm.UsedAtEnd, g.s.VReg(n)))
}

func (g OperandGenerator) UseUniqueSlot(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicySlot, asm.UsedAtEnd, g.s.VReg(n)))
}

// UseUnique is not used at start, so it never shares a register with outputs.
func (g OperandGenerator) UseUnique(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyNone, asm.UsedAtEnd, g.s.VReg(n)))
}

func (g OperandGenerator) UseUniqueRegister(n ir.Node) asm.Operand {
	return g.use(n, asm.Unallocated(asm.PolicyRegister, asm.UsedAtEnd, g.s.VReg(n)))
}

func (g OperandGenerator) UseFixed(n ir.Node, reg int) asm.Operand {
	return g.use(n, asm.Fixed(asm.PolicyFixedRegister, reg, g.s.VReg(n)))
}

func (g OperandGenerator) UseFixedFP(n ir.Node, reg int) asm.Operand {
	return g.use(n, asm.Fixed(asm.PolicyFixedFPRegister, reg, g.s.VReg(n)))
}

func (g OperandGenerator) UseImmediate(n ir.Node) asm.Operand {
	return g.s.seq.AddImmediate(g.ToConstant(n))
}

func (g OperandGenerator) UseImmediateInt(v int32) asm.Operand {
	return g.s.seq.AddImmediate(asm.Int32Constant(v))
}

func (g OperandGenerator) UseImmediateInt64(v int64) asm.Operand {
	return g.s.seq.AddImmediate(asm.Int64Constant(v))
}

func (g OperandGenerator) UseNegatedImmediate(n ir.Node) asm.Operand {
	return g.s.seq.AddImmediate(g.ToNegatedConstant(n))
}

func (g OperandGenerator) UseLocation(n ir.Node, l ir.LinkageLocation) asm.Operand {
	return g.use(n, toUnallocated(l, g.s.VReg(n)))
}

// UsePointerLocation moves a value between two locations through a fresh register.
func (g OperandGenerator) UsePointerLocation(to, from ir.LinkageLocation) asm.Operand {
	tmp := g.TempLocation(from)
	g.s.Emit(asm.MakeCode(asm.ArchNop), tmp)

	return toUnallocated(to, tmp.VReg)
}

func (g OperandGenerator) TempRegister() asm.Operand {
	return asm.Unallocated(asm.PolicyRegister, asm.UsedAtStart, g.s.seq.NextVirtualRegister())
}

func (g OperandGenerator) TempDoubleRegister() asm.Operand {
	o := g.TempRegister()
	g.s.seq.MarkAsRepresentation(ir.RepFloat64, o.VReg)

	return o
}

func (g OperandGenerator) TempSimd128Register() asm.Operand {
	o := g.TempRegister()
	g.s.seq.MarkAsRepresentation(ir.RepSimd128, o.VReg)

	return o
}

func (g OperandGenerator) TempFixedRegister(reg int) asm.Operand {
	o := asm.Fixed(asm.PolicyFixedRegister, reg, asm.InvalidVReg)
	o.Life = asm.UsedAtStart

	return o
}

func (g OperandGenerator) TempImmediate(v int32) asm.Operand {
	return g.s.seq.AddImmediate(asm.Int32Constant(v))
}

func (g OperandGenerator) TempLocation(l ir.LinkageLocation) asm.Operand {
	return toUnallocated(l, g.s.seq.NextVirtualRegister())
}

func (g OperandGenerator) Label(rpo int) asm.Operand {
	return g.s.seq.AddImmediate(asm.Constant{Kind: asm.ConstRPO, Value: int64(rpo)})
}

func (g OperandGenerator) CanBeImmediate(n ir.Node) bool {
	return g.s.arch.CanBeImmediate(g.s, n)
}

// UseImmediateOrRegister picks an immediate when the target accepts one.
func (g OperandGenerator) UseImmediateOrRegister(n ir.Node) asm.Operand {
	if g.CanBeImmediate(n) {
		return g.UseImmediate(n)
	}

	return g.UseRegister(n)
}

func (g OperandGenerator) ToConstant(n ir.Node) asm.Constant {
	gr := g.s.g

	switch gr.Op[n] {
	case ir.Int32Constant:
		return asm.Int32Constant(gr.Param[n].(int32))
	case ir.Int64Constant:
		return asm.Int64Constant(gr.Param[n].(int64))
	case ir.RelocatableInt32Constant:
		p := gr.Param[n].(ir.RelocatableConstant)
		return asm.Constant{Kind: asm.ConstInt32, Value: int64(int32(p.Value)), Reloc: p.Mode}
	case ir.RelocatableInt64Constant:
		p := gr.Param[n].(ir.RelocatableConstant)
		return asm.Constant{Kind: asm.ConstInt64, Value: p.Value, Reloc: p.Mode}
	case ir.Float32Constant:
		return asm.Float32Constant(gr.Param[n].(float32))
	case ir.Float64Constant, ir.NumberConstant:
		return asm.Float64Constant(gr.Param[n].(float64))
	case ir.ExternalConstant:
		r := gr.ExternalReferenceOf(n)
		return asm.Constant{Kind: asm.ConstExternalReference, Value: r.Address, Name: r.Name}
	case ir.HeapConstant:
		h := gr.HeapObjectOf(n)
		return asm.Constant{Kind: asm.ConstHeapObject, Value: int64(h.Handle), Name: h.Name}
	case ir.CompressedHeapConstant:
		h := gr.HeapObjectOf(n)
		return asm.Constant{Kind: asm.ConstCompressedHeapObject, Value: int64(h.Handle), Name: h.Name}
	case ir.DeadValue:
		switch gr.RepresentationOf(n) {
		case ir.RepWord64:
			return asm.Int64Constant(0)
		case ir.RepFloat32:
			return asm.Float32Constant(0)
		case ir.RepFloat64:
			return asm.Float64Constant(0)
		}

		return asm.Int32Constant(0)
	}

	panic(errors.New("not a constant: %v (node %d) at %v", gr.Op[n], n, loc.Caller(1)))
}

func (g OperandGenerator) ToNegatedConstant(n ir.Node) asm.Constant {
	gr := g.s.g

	switch gr.Op[n] {
	case ir.Int32Constant:
		return asm.Int32Constant(-gr.Param[n].(int32))
	case ir.Int64Constant:
		return asm.Int64Constant(-gr.Param[n].(int64))
	}

	panic(errors.New("can't negate %v (node %d) at %v", gr.Op[n], n, loc.Caller(1)))
}

func toUnallocated(l ir.LinkageLocation, v asm.VReg) asm.Operand {
	switch l.Kind {
	case ir.LocAnyRegister:
		return asm.Unallocated(asm.PolicyRegister, asm.UsedAtEnd, v)
	case ir.LocCallerFrameSlot, ir.LocCalleeFrameSlot:
		return asm.Fixed(asm.PolicyFixedSlot, l.Value, v)
	}

	if l.Type.Rep.IsFloat() || l.Type.Rep.IsSimd() {
		return asm.Fixed(asm.PolicyFixedFPRegister, l.Value, v)
	}

	return asm.Fixed(asm.PolicyFixedRegister, l.Value, v)
}

// isSmiDouble reports whether v is a small integer on a 31-bit smi target.
func isSmiDouble(v float64) bool {
	if v != math.Trunc(v) || (v == 0 && math.Signbit(v)) {
		return false
	}

	return v >= -(1<<30) && v < 1<<30
}
