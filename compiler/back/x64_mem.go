package back

import (
	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/ir"
)

// Memory access modes go to the misc field of loads and stores.
// Stores with a write barrier put the record write mode below them.
const (
	AccessNormal = iota
	AccessProtected
)

const (
	RecordWriteValueIsMap = iota
	RecordWriteValueIsPointer
	RecordWriteValueIsAny
)

// LoadOpcode selects the move for loading t. Tagged values are
// decompressed on load.
func LoadOpcode(t ir.MachineType) (asm.ArchOpcode, bool) {
	switch t.Rep {
	case ir.RepFloat32:
		return x64.Movss, true
	case ir.RepFloat64:
		return x64.Movsd, true
	case ir.RepBit, ir.RepWord8:
		return pick(t.IsSigned(), x64.Movsxbl, x64.Movzxbl), true
	case ir.RepWord16:
		return pick(t.IsSigned(), x64.Movsxwl, x64.Movzxwl), true
	case ir.RepWord32, ir.RepCompressedPointer, ir.RepCompressed:
		return x64.Movl, true
	case ir.RepTaggedSigned:
		return x64.MovqDecompressTaggedSigned, true
	case ir.RepTaggedPointer, ir.RepTagged:
		return x64.MovqDecompressTagged, true
	case ir.RepWord64:
		return x64.Movq, true
	case ir.RepSimd128:
		return x64.Movdqu, true
	}

	return 0, false
}

func StoreOpcode(rep ir.Representation) (asm.ArchOpcode, bool) {
	switch rep {
	case ir.RepFloat32:
		return x64.Movss, true
	case ir.RepFloat64:
		return x64.Movsd, true
	case ir.RepBit, ir.RepWord8:
		return x64.Movb, true
	case ir.RepWord16:
		return x64.Movw, true
	case ir.RepWord32:
		return x64.Movl, true
	case ir.RepTaggedSigned, ir.RepTaggedPointer, ir.RepTagged, ir.RepCompressedPointer, ir.RepCompressed:
		return x64.MovqCompressTagged, true
	case ir.RepWord64:
		return x64.Movq, true
	case ir.RepSimd128:
		return x64.Movdqu, true
	}

	return 0, false
}

func (a *X64) visitLoad(s *Selector, n ir.Node) {
	g := s.Gen()
	t := s.g.MachineTypeOf(n)

	op, ok := LoadOpcode(t)
	if !ok {
		s.fail("unsupported load", "node", n, "type", t)
		return
	}

	s.MarkAsRepresentation(t.Rep, n)

	access := AccessNormal
	if s.g.Op[n] == ir.ProtectedLoad {
		access = AccessProtected
	}

	mode, ins := a.GetEffectiveAddressMemoryOperand(s, n, make([]asm.Operand, 0, 3), access == AccessProtected)

	code := asm.MakeCode(op).WithMode(mode).WithMisc(access)

	s.EmitN(code, []asm.Operand{g.DefineAsRegister(n)}, ins, nil)
}

func recordWriteMode(k ir.WriteBarrierKind) int {
	switch k {
	case ir.MapWriteBarrier:
		return RecordWriteValueIsMap
	case ir.PointerWriteBarrier:
		return RecordWriteValueIsPointer
	}

	return RecordWriteValueIsAny
}

func (a *X64) visitStore(s *Selector, n ir.Node) {
	g := s.Gen()
	gr := s.g

	base, index, value := gr.Input(n, 0), gr.Input(n, 1), gr.Input(n, 2)
	p := gr.StoreRepresentationOf(n)

	access := AccessNormal
	if gr.Op[n] == ir.ProtectedStore {
		access = AccessProtected
	}

	if p.WriteBarrier != ir.NoWriteBarrier {
		if !p.Rep.CanBeTaggedPointer() {
			s.fail("write barrier on untagged store", "node", n, "rep", p.Rep)
			return
		}

		idx, mode := a.GetEffectiveIndexOperand(s, index)

		ins := []asm.Operand{g.UseUniqueRegister(base), idx, g.UseUniqueRegister(value)}
		temps := []asm.Operand{g.TempRegister(), g.TempRegister()}

		code := asm.MakeCode(asm.ArchStoreWithWriteBarrier).WithMode(mode).
			WithMisc(recordWriteMode(p.WriteBarrier) | access<<2)

		s.EmitN(code, nil, ins, temps)

		return
	}

	op, ok := StoreOpcode(p.Rep)
	if !ok {
		s.fail("unsupported store", "node", n, "rep", p.Rep)
		return
	}

	// narrow stores take the low half anyway
	if p.Rep.SizeLog2() < 3 && gr.Op[value] == ir.TruncateInt64ToInt32 {
		value = gr.Input(value, 0)
	}

	unique := access == AccessProtected

	mode, ins := a.GetEffectiveAddressMemoryOperand(s, n, make([]asm.Operand, 0, 4), unique)

	switch {
	case a.CanBeImmediate(s, value):
		ins = append(ins, g.UseImmediate(value))
	case unique:
		ins = append(ins, g.UseUniqueRegister(value))
	default:
		ins = append(ins, g.UseRegister(value))
	}

	s.EmitN(asm.MakeCode(op).WithMode(mode).WithMisc(access), nil, ins, nil)
}

func (a *X64) visitMemoryBarrier(s *Selector, n ir.Node) {
	s.Emit(asm.MakeCode(x64.MFence), s.Gen().NoOutput())
}
