package back

import (
	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/ir"
)

// atomicFamily lists the variants of one read-modify-write operation:
// Int8, Uint8, Int16, Uint16, Word32, Word64.
type atomicFamily [6]asm.ArchOpcode

var (
	atomicExchange        = atomicFamily{x64.AtomicExchangeInt8, x64.AtomicExchangeUint8, x64.AtomicExchangeInt16, x64.AtomicExchangeUint16, x64.AtomicExchangeWord32, x64.AtomicExchangeWord64}
	atomicCompareExchange = atomicFamily{x64.AtomicCompareExchangeInt8, x64.AtomicCompareExchangeUint8, x64.AtomicCompareExchangeInt16, x64.AtomicCompareExchangeUint16, x64.AtomicCompareExchangeWord32, x64.AtomicCompareExchangeWord64}
	atomicAdd             = atomicFamily{x64.AtomicAddInt8, x64.AtomicAddUint8, x64.AtomicAddInt16, x64.AtomicAddUint16, x64.AtomicAddWord32, x64.AtomicAddWord64}
	atomicSub             = atomicFamily{x64.AtomicSubInt8, x64.AtomicSubUint8, x64.AtomicSubInt16, x64.AtomicSubUint16, x64.AtomicSubWord32, x64.AtomicSubWord64}
	atomicAnd             = atomicFamily{x64.AtomicAndInt8, x64.AtomicAndUint8, x64.AtomicAndInt16, x64.AtomicAndUint16, x64.AtomicAndWord32, x64.AtomicAndWord64}
	atomicOr              = atomicFamily{x64.AtomicOrInt8, x64.AtomicOrUint8, x64.AtomicOrInt16, x64.AtomicOrUint16, x64.AtomicOrWord32, x64.AtomicOrWord64}
	atomicXor             = atomicFamily{x64.AtomicXorInt8, x64.AtomicXorUint8, x64.AtomicXorInt16, x64.AtomicXorUint16, x64.AtomicXorWord32, x64.AtomicXorWord64}
)

// pick selects the variant for t. Word64 operations on narrow types
// are zero extending only.
func (f atomicFamily) pick(t ir.MachineType, word64 bool) (asm.ArchOpcode, bool) {
	narrow := func(signed, unsigned int) (asm.ArchOpcode, bool) {
		if !t.IsSigned() {
			return f[unsigned], true
		}

		if word64 {
			return 0, false
		}

		return f[signed], true
	}

	switch t.Rep {
	case ir.RepWord8:
		return narrow(0, 1)
	case ir.RepWord16:
		return narrow(2, 3)
	case ir.RepWord32:
		return f[4], true
	case ir.RepWord64:
		if word64 {
			return f[5], true
		}
	}

	return 0, false
}

func atomicStoreOpcode(rep ir.Representation, word64 bool) (asm.ArchOpcode, bool) {
	switch rep {
	case ir.RepWord8:
		return x64.AtomicStoreWord8, true
	case ir.RepWord16:
		return x64.AtomicStoreWord16, true
	case ir.RepWord32:
		return x64.AtomicStoreWord32, true
	case ir.RepWord64:
		return x64.AtomicStoreWord64, word64
	}

	return 0, false
}

func isWord64Atomic(op ir.Opcode) bool {
	return op >= ir.Word64AtomicLoad && op <= ir.Word64AtomicXor
}

// visitAtomicLoad is a plain load: aligned moves are atomic on x64.
func (a *X64) visitAtomicLoad(s *Selector, n ir.Node) {
	t := s.g.MachineTypeOf(n)

	if t.Rep == ir.RepWord64 && !isWord64Atomic(s.g.Op[n]) {
		s.fail("word64 atomic load on word32 operation", "node", n)
		return
	}

	a.visitLoad(s, n)
}

// visitAtomicStore is a sequentially consistent store done with xchg.
// The value register is clobbered, so it is defined as the output.
func (a *X64) visitAtomicStore(s *Selector, n ir.Node) {
	g := s.Gen()
	gr := s.g

	t := gr.MachineTypeOf(n)

	op, ok := atomicStoreOpcode(t.Rep, isWord64Atomic(gr.Op[n]))
	if !ok {
		s.fail("unsupported atomic store", "node", n, "type", t)
		return
	}

	base, index, value := gr.Input(n, 0), gr.Input(n, 1), gr.Input(n, 2)

	idx, mode := a.GetEffectiveIndexOperand(s, index)

	ins := []asm.Operand{g.UseUniqueRegister(value), g.UseUniqueRegister(base), idx}

	s.EmitN(asm.MakeCode(op).WithMode(mode), []asm.Operand{g.DefineSameAsFirst(n)}, ins, nil)
}

func (a *X64) atomicExchange(f atomicFamily) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()
		gr := s.g

		t := gr.MachineTypeOf(n)

		op, ok := f.pick(t, isWord64Atomic(gr.Op[n]))
		if !ok {
			s.fail("unsupported atomic exchange", "node", n, "type", t)
			return
		}

		base, index, value := gr.Input(n, 0), gr.Input(n, 1), gr.Input(n, 2)

		idx, mode := a.GetEffectiveIndexOperand(s, index)

		ins := []asm.Operand{g.UseUniqueRegister(value), g.UseUniqueRegister(base), idx}

		s.EmitN(asm.MakeCode(op).WithMode(mode), []asm.Operand{g.DefineSameAsFirst(n)}, ins, nil)
	}
}

// visitAtomicCompareExchange is lock cmpxchg: the expected value goes in
// and the old value comes out through rax.
func (a *X64) visitAtomicCompareExchange(s *Selector, n ir.Node) {
	g := s.Gen()
	gr := s.g

	t := gr.MachineTypeOf(n)

	op, ok := atomicCompareExchange.pick(t, isWord64Atomic(gr.Op[n]))
	if !ok {
		s.fail("unsupported atomic compare exchange", "node", n, "type", t)
		return
	}

	base, index := gr.Input(n, 0), gr.Input(n, 1)
	expected, value := gr.Input(n, 2), gr.Input(n, 3)

	idx, mode := a.GetEffectiveIndexOperand(s, index)

	ins := []asm.Operand{
		g.UseFixed(expected, int(x64.RAX)),
		g.UseUniqueRegister(value),
		g.UseUniqueRegister(base),
		idx,
	}

	s.EmitN(asm.MakeCode(op).WithMode(mode), []asm.Operand{g.DefineAsFixed(n, int(x64.RAX))}, ins, nil)
}

// atomicBinop loops on lock cmpxchg, so the old value ends in rax
// and the new one is built in a temp.
func (a *X64) atomicBinop(f atomicFamily) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()
		gr := s.g

		t := gr.MachineTypeOf(n)

		op, ok := f.pick(t, isWord64Atomic(gr.Op[n]))
		if !ok {
			s.fail("unsupported atomic binop", "node", n, "op", gr.Op[n], "type", t)
			return
		}

		base, index, value := gr.Input(n, 0), gr.Input(n, 1), gr.Input(n, 2)

		idx, mode := a.GetEffectiveIndexOperand(s, index)

		ins := []asm.Operand{g.UseUniqueRegister(value), g.UseUniqueRegister(base), idx}

		s.EmitN(asm.MakeCode(op).WithMode(mode), []asm.Operand{g.DefineAsFixed(n, int(x64.RAX))}, ins, []asm.Operand{g.TempRegister()})
	}
}

func (a *X64) atomicVisitors(t *Table) {
	w32 := func(f func(*Selector, ir.Node)) Visitor { return Visitor{Rep: ir.RepWord32, Visit: f} }
	w64 := func(f func(*Selector, ir.Node)) Visitor { return Visitor{Rep: ir.RepWord64, Visit: f} }

	t[ir.Word32AtomicLoad] = Visitor{Visit: a.visitAtomicLoad}
	t[ir.Word64AtomicLoad] = Visitor{Visit: a.visitAtomicLoad}
	t.Set(Visitor{Visit: a.visitAtomicStore}, ir.Word32AtomicStore, ir.Word64AtomicStore)

	t[ir.Word32AtomicExchange] = w32(a.atomicExchange(atomicExchange))
	t[ir.Word32AtomicCompareExchange] = w32(a.visitAtomicCompareExchange)
	t[ir.Word32AtomicAdd] = w32(a.atomicBinop(atomicAdd))
	t[ir.Word32AtomicSub] = w32(a.atomicBinop(atomicSub))
	t[ir.Word32AtomicAnd] = w32(a.atomicBinop(atomicAnd))
	t[ir.Word32AtomicOr] = w32(a.atomicBinop(atomicOr))
	t[ir.Word32AtomicXor] = w32(a.atomicBinop(atomicXor))

	t[ir.Word64AtomicExchange] = w64(a.atomicExchange(atomicExchange))
	t[ir.Word64AtomicCompareExchange] = w64(a.visitAtomicCompareExchange)
	t[ir.Word64AtomicAdd] = w64(a.atomicBinop(atomicAdd))
	t[ir.Word64AtomicSub] = w64(a.atomicBinop(atomicSub))
	t[ir.Word64AtomicAnd] = w64(a.atomicBinop(atomicAnd))
	t[ir.Word64AtomicOr] = w64(a.atomicBinop(atomicOr))
	t[ir.Word64AtomicXor] = w64(a.atomicBinop(atomicXor))
}
