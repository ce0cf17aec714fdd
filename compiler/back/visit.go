package back

import (
	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

func (s *Selector) VisitGoto(to ir.BlockID) {
	g := s.Gen()

	s.Emit(asm.MakeCode(asm.ArchJmp), g.NoOutput(), g.Label(s.sched.BlockAt(to).RPO))
}

func (s *Selector) VisitBranch(n ir.Node, t, f int) {
	x := s.g.Input(n, 0)

	s.TryPrepareScheduleFirstProjection(x)

	cont := ForBranch(asm.CondNotEqual, t, f)
	s.arch.VisitWordCompareZero(s, n, x, &cont)
}

// VisitReturn emits the pop count followed by the returned values
// in their return locations.
func (s *Selector) VisitReturn(n ir.Node) {
	g := s.Gen()

	cnt := s.g.InputCount(n)
	if s.link.Incoming.ReturnCount() == 0 {
		cnt = 1
	}

	ins := make([]asm.Operand, cnt)

	pop := s.g.Input(n, 0)

	switch s.g.Op[pop] {
	case ir.Int32Constant, ir.Int64Constant:
		ins[0] = g.UseImmediate(pop)
	default:
		ins[0] = g.UseRegister(pop)
	}

	for i := 1; i < cnt; i++ {
		ins[i] = g.UseLocation(s.g.Input(n, i), s.link.ReturnLocation(i-1))
	}

	s.EmitN(asm.MakeCode(asm.ArchRet), nil, ins, nil)
}

func (s *Selector) VisitThrow(n ir.Node) {
	s.Emit(asm.MakeCode(asm.ArchThrowTerminator), asm.Operand{})
}

func (s *Selector) VisitDeoptimizeIf(n ir.Node) {
	p := s.g.DeoptimizeParametersOf(n)

	cont := ForDeoptimize(asm.CondNotEqual, p.Kind, p.Reason, n, p.Feedback, s.g.Input(n, 1))
	s.arch.VisitWordCompareZero(s, n, s.g.Input(n, 0), &cont)
}

func (s *Selector) VisitDeoptimizeUnless(n ir.Node) {
	p := s.g.DeoptimizeParametersOf(n)

	cont := ForDeoptimize(asm.CondEqual, p.Kind, p.Reason, n, p.Feedback, s.g.Input(n, 1))
	s.arch.VisitWordCompareZero(s, n, s.g.Input(n, 0), &cont)
}

func (s *Selector) VisitTrapIf(n ir.Node) {
	cont := ForTrap(asm.CondNotEqual, s.g.TrapIDOf(n))
	s.arch.VisitWordCompareZero(s, n, s.g.Input(n, 0), &cont)
}

func (s *Selector) VisitTrapUnless(n ir.Node) {
	cont := ForTrap(asm.CondEqual, s.g.TrapIDOf(n))
	s.arch.VisitWordCompareZero(s, n, s.g.Input(n, 0), &cont)
}

// VisitSelect becomes a conditional move on the compare of input 0.
func (s *Selector) VisitSelect(n ir.Node) {
	var rep ir.Representation

	switch s.g.Op[n] {
	case ir.Word32Select:
		rep = ir.RepWord32
	case ir.Word64Select:
		rep = ir.RepWord64
	case ir.Float32Select:
		rep = ir.RepFloat32
	default:
		rep = ir.RepFloat64
	}

	s.MarkAsRepresentation(rep, n)

	cont := ForSelect(asm.CondNotEqual, n, s.g.Input(n, 1), s.g.Input(n, 2))
	s.arch.VisitWordCompareZero(s, n, s.g.Input(n, 0), &cont)
}

// VisitStackPointerGreaterThan materializes the stack check as a boolean.
func (s *Selector) VisitStackPointerGreaterThan(n ir.Node) {
	cont := ForSet(asm.CondUnsignedGreaterThan, n)
	s.arch.VisitStackPointerGreaterThan(s, n, &cont)
}

func (s *Selector) VisitParameter(n ir.Node) {
	g := s.Gen()
	idx := s.g.IndexOf(n)

	s.MarkAsRepresentation(s.link.ParameterType(idx).Rep, n)

	s.Emit(asm.MakeCode(asm.ArchNop), g.DefineAsLocation(n, s.link.ParameterLocation(idx)))
}

func (s *Selector) VisitOsrValue(n ir.Node) {
	g := s.Gen()

	s.Emit(asm.MakeCode(asm.ArchNop), g.DefineAsLocation(n, s.link.OsrValueLocation(s.g.IndexOf(n))))
}

// VisitIfException defines the exception value in the return register.
func (s *Selector) VisitIfException(n ir.Node) {
	g := s.Gen()

	l := ir.RegisterLocation(s.arch.ReturnRegister(), ir.TypeAnyTagged)

	s.Emit(asm.MakeCode(asm.ArchNop), g.DefineAsLocation(n, l))
}

func (s *Selector) VisitPhi(n ir.Node) {
	rep := s.g.RepresentationOf(n)
	if rep == ir.RepNone {
		return
	}

	s.MarkAsRepresentation(rep, n)

	ins := s.g.Value[n]

	p := asm.NewPhi(s.VReg(n), len(ins))

	b := s.seq.InstructionBlockAt(s.cur.RPO)
	b.Phis = append(b.Phis, p)

	for i, x := range ins {
		s.MarkAsUsed(x)
		p.SetInput(i, s.VReg(x))
	}
}

func (s *Selector) VisitProjection(n ir.Node) {
	x := s.g.Input(n, 0)

	if !isOverflowOp(s.g.Op[x]) {
		return
	}

	switch s.g.IndexOf(n) {
	case 0:
		s.EmitIdentity(n)
	case 1:
		s.MarkAsUsed(x)
	default:
		panic(errors.New("projection %d of %v at %v", s.g.IndexOf(n), s.g.Op[x], loc.Caller(1)))
	}
}

// TryPrepareScheduleFirstProjection defines projection 0 of an overflow
// operation early so that the operation can be fused into the user of
// projection 1.
func (s *Selector) TryPrepareScheduleFirstProjection(x ir.Node) {
	if s.g.Op[x] != ir.Projection || s.g.IndexOf(x) != 1 {
		return
	}

	op := s.g.Input(x, 0)
	if s.sched.Block(op) != s.cur || !isOverflowOp(s.g.Op[op]) {
		return
	}

	res := s.g.FindProjection(op, 0)
	if res == ir.Invalid || s.IsDefined(res) {
		return
	}

	if s.sched.Block(res) != s.cur {
		return
	}

	for _, u := range s.g.Uses(res) {
		if s.sched.Block(u.User) != s.cur || s.g.Op[u.User] == ir.Phi {
			continue
		}

		if s.IsUsed(u.User) && !s.IsDefined(u.User) {
			return
		}
	}

	s.VisitProjection(res)
}

func isOverflowOp(op ir.Opcode) bool {
	switch op {
	case ir.Int32AddWithOverflow, ir.Int32SubWithOverflow, ir.Int32MulWithOverflow,
		ir.Int64AddWithOverflow, ir.Int64SubWithOverflow, ir.Int64MulWithOverflow:
		return true
	}

	return false
}

func (s *Selector) VisitConstant(n ir.Node) {
	g := s.Gen()

	s.Emit(asm.MakeCode(asm.ArchNop), g.DefineAsConstant(n))
}

func (s *Selector) VisitNumberConstant(n ir.Node) {
	if !isSmiDouble(s.g.Param[n].(float64)) {
		s.MarkAsRepresentation(ir.RepTagged, n)
	}

	s.VisitConstant(n)
}

func (s *Selector) VisitRetain(n ir.Node) {
	g := s.Gen()

	s.Emit(asm.MakeCode(asm.ArchNop), g.NoOutput(), g.UseAny(s.g.Input(n, 0)))
}

func (s *Selector) VisitComment(n ir.Node) {
	msg, _ := s.g.Param[n].(string)

	s.Emit(asm.MakeCode(asm.ArchComment), asm.Operand{}, s.seq.AddImmediate(asm.Constant{Kind: asm.ConstComment, Name: msg}))
}

func (s *Selector) VisitDebugBreak(n ir.Node) {
	s.Emit(asm.MakeCode(asm.ArchDebugBreak), asm.Operand{})
}

func (s *Selector) VisitDeadValue(n ir.Node) {
	g := s.Gen()

	s.MarkAsRepresentation(s.g.RepresentationOf(n), n)
	s.Emit(asm.MakeCode(asm.ArchDebugBreak), g.DefineAsConstant(n))
}

func (s *Selector) VisitStackSlot(n ir.Node) {
	g := s.Gen()
	p := s.g.Param[n].(ir.StackSlotInfo)

	slot := s.frame.AllocateSpillSlot(p.Size, p.Alignment)

	s.Emit(asm.MakeCode(asm.ArchStackSlot), g.DefineAsRegister(n), g.TempImmediate(int32(slot)))
}

func (s *Selector) VisitLoadStackCheckOffset(n ir.Node) {
	s.Emit(asm.MakeCode(asm.ArchStackCheckOffset), s.Gen().DefineAsRegister(n))
}

func (s *Selector) VisitLoadFramePointer(n ir.Node) {
	s.Emit(asm.MakeCode(asm.ArchFramePointer), s.Gen().DefineAsRegister(n))
}

func (s *Selector) VisitLoadParentFramePointer(n ir.Node) {
	s.Emit(asm.MakeCode(asm.ArchParentFramePointer), s.Gen().DefineAsRegister(n))
}

func (s *Selector) VisitBitcastWordToTagged(n ir.Node) {
	g := s.Gen()

	s.Emit(asm.MakeCode(asm.ArchNop), g.DefineSameAsFirst(n), g.Use(s.g.Input(n, 0)))
}
