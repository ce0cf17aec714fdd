package back

import (
	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

type (
	// Visitor selects instructions for one opcode.
	// Rep is marked on the node before Visit unless it is RepNone.
	Visitor struct {
		Rep   ir.Representation
		Visit func(s *Selector, n ir.Node)
	}

	Table [ir.NumOpcodes]Visitor

	// Simple is a one instruction lowering: rep of the result,
	// arch opcode and operand shape.
	Simple struct {
		Op   ir.Opcode
		Rep  ir.Representation
		Code asm.ArchOpcode
		Misc int
	}
)

func nop(*Selector, ir.Node) {}

// Set installs v for every op.
func (t *Table) Set(v Visitor, ops ...ir.Opcode) {
	for _, op := range ops {
		t[op] = v
	}
}

// RO fills entries emitting `def(n) = code use(in0)`.
func (t *Table) RO(l ...Simple) {
	for _, x := range l {
		x := x

		t[x.Op] = Visitor{Rep: x.Rep, Visit: func(s *Selector, n ir.Node) {
			g := s.Gen()
			s.Emit(asm.MakeCode(x.Code).WithMisc(x.Misc), g.DefineAsRegister(n), g.Use(s.g.Input(n, 0)))
		}}
	}
}

// RR fills entries emitting `def(n) = code reg(in0)`.
func (t *Table) RR(l ...Simple) {
	for _, x := range l {
		x := x

		t[x.Op] = Visitor{Rep: x.Rep, Visit: func(s *Selector, n ir.Node) {
			g := s.Gen()
			s.Emit(asm.MakeCode(x.Code).WithMisc(x.Misc), g.DefineAsRegister(n), g.UseRegister(s.g.Input(n, 0)))
		}}
	}
}

// RRR fills entries emitting `def(n) = code reg(in0) reg(in1)`.
func (t *Table) RRR(l ...Simple) {
	for _, x := range l {
		x := x

		t[x.Op] = Visitor{Rep: x.Rep, Visit: func(s *Selector, n ir.Node) {
			g := s.Gen()
			s.Emit(asm.MakeCode(x.Code).WithMisc(x.Misc), g.DefineAsRegister(n),
				g.UseRegister(s.g.Input(n, 0)), g.UseRegister(s.g.Input(n, 1)))
		}}
	}
}

// RRO fills entries emitting `same(n) = code reg(in0) use(in1)`.
func (t *Table) RRO(l ...Simple) {
	for _, x := range l {
		x := x

		t[x.Op] = Visitor{Rep: x.Rep, Visit: func(s *Selector, n ir.Node) {
			g := s.Gen()
			s.Emit(asm.MakeCode(x.Code).WithMisc(x.Misc), g.DefineSameAsFirst(n),
				g.UseRegister(s.g.Input(n, 0)), g.Use(s.g.Input(n, 1)))
		}}
	}
}

func genericTable() (t Table) {
	t.Set(Visitor{Visit: nop},
		ir.Start, ir.End, ir.Loop, ir.Merge, ir.Branch, ir.IfTrue, ir.IfFalse,
		ir.IfSuccess, ir.Switch, ir.IfValue, ir.IfDefault, ir.Return, ir.TailCall,
		ir.Deoptimize, ir.Throw, ir.Terminate, ir.EffectPhi, ir.Checkpoint, ir.BeginRegion,
		ir.FrameState, ir.StateValues, ir.TypedStateValues, ir.ObjectID, ir.TypedObjectState,
		ir.ArgumentsElementsState, ir.ArgumentsLengthState, ir.OptimizedOut)

	// addressed through the roots register by loads and stores
	t[ir.LoadRootRegister] = Visitor{Visit: nop}

	t[ir.IfException] = Visitor{Rep: ir.RepTagged, Visit: (*Selector).VisitIfException}
	t[ir.FinishRegion] = Visitor{Rep: ir.RepTagged, Visit: (*Selector).EmitIdentity}

	t[ir.Parameter] = Visitor{Visit: (*Selector).VisitParameter}
	t[ir.OsrValue] = Visitor{Rep: ir.RepTagged, Visit: (*Selector).VisitOsrValue}
	t[ir.Phi] = Visitor{Visit: (*Selector).VisitPhi}
	t[ir.Projection] = Visitor{Visit: (*Selector).VisitProjection}

	t.Set(Visitor{Rep: ir.RepWord32, Visit: (*Selector).VisitConstant}, ir.Int32Constant, ir.RelocatableInt32Constant)
	t.Set(Visitor{Rep: ir.RepWord64, Visit: (*Selector).VisitConstant}, ir.Int64Constant, ir.RelocatableInt64Constant, ir.ExternalConstant)

	t[ir.Float32Constant] = Visitor{Rep: ir.RepFloat32, Visit: (*Selector).VisitConstant}
	t[ir.Float64Constant] = Visitor{Rep: ir.RepFloat64, Visit: (*Selector).VisitConstant}
	t[ir.HeapConstant] = Visitor{Rep: ir.RepTagged, Visit: (*Selector).VisitConstant}
	t[ir.CompressedHeapConstant] = Visitor{Rep: ir.RepCompressed, Visit: (*Selector).VisitConstant}
	t[ir.NumberConstant] = Visitor{Visit: (*Selector).VisitNumberConstant}

	t[ir.Call] = Visitor{Visit: func(s *Selector, n ir.Node) { s.VisitCall(n, nil) }}
	t[ir.DeoptimizeIf] = Visitor{Visit: (*Selector).VisitDeoptimizeIf}
	t[ir.DeoptimizeUnless] = Visitor{Visit: (*Selector).VisitDeoptimizeUnless}
	t[ir.TrapIf] = Visitor{Visit: (*Selector).VisitTrapIf}
	t[ir.TrapUnless] = Visitor{Visit: (*Selector).VisitTrapUnless}

	t[ir.Retain] = Visitor{Visit: (*Selector).VisitRetain}
	t[ir.Comment] = Visitor{Visit: (*Selector).VisitComment}
	t[ir.DebugBreak] = Visitor{Visit: (*Selector).VisitDebugBreak}
	t[ir.Unreachable] = Visitor{Visit: (*Selector).VisitDebugBreak}
	t[ir.DeadValue] = Visitor{Visit: (*Selector).VisitDeadValue}

	t[ir.StackSlot] = Visitor{Rep: ir.RepWord64, Visit: (*Selector).VisitStackSlot}
	t[ir.LoadStackCheckOffset] = Visitor{Rep: ir.RepTagged, Visit: (*Selector).VisitLoadStackCheckOffset}
	t[ir.LoadFramePointer] = Visitor{Rep: ir.RepWord64, Visit: (*Selector).VisitLoadFramePointer}
	t[ir.LoadParentFramePointer] = Visitor{Rep: ir.RepWord64, Visit: (*Selector).VisitLoadParentFramePointer}
	t[ir.StackPointerGreaterThan] = Visitor{Visit: (*Selector).VisitStackPointerGreaterThan}

	t.Set(Visitor{Visit: (*Selector).VisitSelect},
		ir.Word32Select, ir.Word64Select, ir.Float32Select, ir.Float64Select)

	t[ir.BitcastTaggedToWord] = Visitor{Rep: ir.RepWord64, Visit: (*Selector).EmitIdentity}
	t[ir.BitcastWordToTagged] = Visitor{Rep: ir.RepTagged, Visit: (*Selector).VisitBitcastWordToTagged}

	return t
}
