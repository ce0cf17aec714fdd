package back

import (
	"math"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/ir"
)

func (a *X64) visitCompareWithMemoryOperand(s *Selector, op asm.ArchOpcode, left ir.Node, right asm.Operand, cont *Continuation) {
	mode, ins := a.GetEffectiveAddressMemoryOperand(s, left, make([]asm.Operand, 0, 6), false)
	ins = append(ins, right)

	s.EmitWithContinuation(asm.MakeCode(op).WithMode(mode), nil, ins, nil, cont)
}

func (a *X64) visitCompareNodes(s *Selector, op asm.ArchOpcode, left, right ir.Node, cont *Continuation, commutative bool) {
	g := s.Gen()

	if commutative && canBeBetterLeftOperand(s, right) {
		left, right = right, left
	}

	s.EmitCompare(asm.MakeCode(op), g.UseRegister(left), g.Use(right), cont)
}

func isWordAnd(g *ir.Graph, n ir.Node) bool {
	return g.Op[n] == ir.Word32And || g.Op[n] == ir.Word64And
}

func isLoad(g *ir.Graph, n ir.Node) bool {
	return g.Op[n] == ir.Load || g.Op[n] == ir.LoadImmutable
}

func fitsType(t ir.MachineType, v int64) bool {
	var lo, hi int64

	switch t {
	case ir.TypeInt8:
		lo, hi = math.MinInt8, math.MaxInt8
	case ir.TypeUint8:
		lo, hi = 0, math.MaxUint8
	case ir.TypeInt16:
		lo, hi = math.MinInt16, math.MaxInt16
	case ir.TypeUint16:
		lo, hi = 0, math.MaxUint16
	case ir.TypeInt32:
		lo, hi = math.MinInt32, math.MaxInt32
	case ir.TypeUint32:
		lo, hi = 0, math.MaxUint32
	default:
		return false
	}

	return v >= lo && v <= hi
}

// machineTypeForNarrow is the type n can be compared as next to hint.
func machineTypeForNarrow(g *ir.Graph, n, hint ir.Node) ir.MachineType {
	if isLoad(g, hint) {
		t := g.MachineTypeOf(hint)

		if v, ok := g.IntValue(n); ok && fitsType(t, v) {
			return t
		}
	}

	if isLoad(g, n) {
		return g.MachineTypeOf(n)
	}

	return ir.TypeNone
}

// machineTypeForNarrowWordAnd: and with a non negative mask compared
// to a non negative constant fits the wider of the two.
func machineTypeForNarrowWordAnd(g *ir.Graph, and, c ir.Node) ir.MachineType {
	mask, ok := g.IntValue(g.Input(and, 1))
	if !ok {
		mask, ok = g.IntValue(g.Input(and, 0))
	}

	if !ok {
		return ir.TypeNone
	}

	cv, _ := g.IntValue(c)

	if mask < 0 || cv < 0 {
		return ir.TypeNone
	}

	v := max(mask, cv)

	for _, x := range []struct {
		t   ir.MachineType
		max int64
	}{
		{ir.TypeInt8, math.MaxInt8},
		{ir.TypeUint8, math.MaxUint8},
		{ir.TypeInt16, math.MaxInt16},
		{ir.TypeUint16, math.MaxUint16},
		{ir.TypeInt32, math.MaxInt32},
		{ir.TypeUint32, math.MaxUint32},
	} {
		if v <= x.max {
			return x.t
		}
	}

	return ir.TypeNone
}

// tryNarrowOpcodeSize matches the compare width to its operands.
func tryNarrowOpcodeSize(g *ir.Graph, op asm.ArchOpcode, left, right ir.Node, cont *Continuation) asm.ArchOpcode {
	var lt, rt ir.MachineType

	switch {
	case isWordAnd(g, left) && isIntConstant(g, right):
		lt = machineTypeForNarrowWordAnd(g, left, right)
		rt = lt
	case isWordAnd(g, right) && isIntConstant(g, left):
		rt = machineTypeForNarrowWordAnd(g, right, left)
		lt = rt
	default:
		lt = machineTypeForNarrow(g, left, right)
		rt = machineTypeForNarrow(g, right, left)
	}

	if lt != rt {
		return op
	}

	switch lt.Rep {
	case ir.RepBit, ir.RepWord8:
		if op == x64.Test || op == x64.Test32 {
			return x64.Test8
		}

		if op == x64.Cmp || op == x64.Cmp32 {
			if lt.Sem == ir.SemUint32 {
				cont.OverwriteUnsignedIfSigned()
			}

			return x64.Cmp8
		}
	case ir.RepWord16, ir.RepWord32:
		// 16 bit compares stall on length changing prefixes
		if op == x64.Test {
			return x64.Test32
		}

		if op == x64.Cmp {
			if lt.Sem == ir.SemUint32 {
				cont.OverwriteUnsignedIfSigned()
			}

			return x64.Cmp32
		}
	case ir.RepTaggedSigned, ir.RepTaggedPointer, ir.RepTagged:
		// the low half identifies a compressed pointer
		if op == x64.Cmp {
			return x64.Cmp32
		}
	}

	return op
}

// removeUnnecessaryWordAnd drops an and whose mask covers the compare width.
func removeUnnecessaryWordAnd(g *ir.Graph, op asm.ArchOpcode, and ir.Node) ir.Node {
	var mask int64

	switch op {
	case x64.Cmp32, x64.Test32:
		mask = math.MaxUint32
	case x64.Cmp16, x64.Test16:
		mask = math.MaxUint16
	case x64.Cmp8, x64.Test8:
		mask = math.MaxUint8
	default:
		return and
	}

	l, r := g.Input(and, 0), g.Input(and, 1)

	c, other := ir.Invalid, ir.Invalid

	switch {
	case isIntConstant(g, l):
		c, other = l, r
	case isIntConstant(g, r):
		c, other = r, l
	default:
		return and
	}

	v, _ := g.IntValue(c)
	if g.Op[c] == ir.Int32Constant {
		v = int64(uint32(v))
	}

	if v == mask {
		return other
	}

	return and
}

func (a *X64) visitWordCompare(s *Selector, n ir.Node, op asm.ArchOpcode, cont *Continuation) {
	g := s.Gen()
	gr := s.g

	left, right := gr.Input(n, 0), gr.Input(n, 1)

	// 32 bit compares truncate on their own
	if op == x64.Cmp32 || op == x64.Test32 {
		left = lookThroughTruncate(gr, left)
		right = lookThroughTruncate(gr, right)
	}

	op = tryNarrowOpcodeSize(gr, op, left, right, cont)

	level := s.EffectLevelFor(n, cont)

	// immediates go right, memory operands go left
	if !a.CanBeImmediate(s, right) && a.CanBeImmediate(s, left) ||
		a.CanBeMemoryOperand(s, op, n, right, level) && !a.CanBeMemoryOperand(s, op, n, left, level) {
		if !gr.Op[n].IsCommutative() {
			cont.Commute()
		}

		left, right = right, left
	}

	if isWordAnd(gr, left) {
		left = removeUnnecessaryWordAnd(gr, op, left)
	}

	if a.CanBeImmediate(s, right) {
		if a.CanBeMemoryOperand(s, op, n, left, level) {
			a.visitCompareWithMemoryOperand(s, op, left, g.UseImmediate(right), cont)
			return
		}

		s.EmitCompare(asm.MakeCode(op), g.Use(left), g.UseImmediate(right), cont)

		return
	}

	if a.CanBeMemoryOperand(s, op, n, left, level) {
		a.visitCompareWithMemoryOperand(s, op, left, g.UseRegister(right), cont)
		return
	}

	a.visitCompareNodes(s, op, left, right, cont, gr.Op[n].IsCommutative())
}

// heapConstantOperand finds a heap constant compared against another node.
func heapConstantOperand(g *ir.Graph, n ir.Node) (other, c ir.Node, ok bool) {
	l, r := g.Input(n, 0), g.Input(n, 1)

	isHeap := func(x ir.Node) bool {
		return g.Op[x] == ir.HeapConstant || g.Op[x] == ir.CompressedHeapConstant
	}

	switch {
	case isHeap(r):
		return l, r, true
	case isHeap(l):
		return r, l, true
	}

	return ir.Invalid, ir.Invalid, false
}

// rootOffset is the offset of a roots table entry from the root register.
func rootOffset(idx int) int32 { return int32(idx) * 8 }

func (a *X64) visitWord64EqualImpl(s *Selector, n ir.Node, cont *Continuation) {
	g := s.Gen()

	if left, c, ok := heapConstantOperand(s.g, n); ok && s.g.Op[c] == ir.HeapConstant && s.cfg.RootsRelative && s.g.HeapObjectOf(c).RootIndex >= 0 {
		h := s.g.HeapObjectOf(c)
		code := asm.MakeCode(x64.Cmp).WithMode(x64.Root)

		s.EmitCompare(code, g.TempImmediate(rootOffset(h.RootIndex)), g.UseRegister(left), cont)

		return
	}

	a.visitWordCompare(s, n, x64.Cmp, cont)
}

func (a *X64) visitWord32EqualImpl(s *Selector, n ir.Node, cont *Continuation) {
	g := s.Gen()

	if left, c, ok := heapConstantOperand(s.g, n); ok && s.g.HeapObjectOf(c).RootIndex >= 0 {
		h := s.g.HeapObjectOf(c)

		if h.ReadOnly {
			// read only roots have fixed compressed addresses
			s.EmitCompare(asm.MakeCode(x64.Cmp32), g.UseRegister(left), g.TempImmediate(int32(uint32(h.Handle))), cont)
			return
		}

		if s.cfg.RootsRelative {
			code := asm.MakeCode(x64.Cmp32).WithMode(x64.Root)

			s.EmitCompare(code, g.TempImmediate(rootOffset(h.RootIndex)), g.UseRegister(left), cont)

			return
		}
	}

	a.visitWordCompare(s, n, x64.Cmp32, cont)
}

// visitCompareZero compares n against zero. Equality branches on
// arithmetic reuse the flags the arithmetic sets.
func (a *X64) visitCompareZero(s *Selector, user, n ir.Node, op asm.ArchOpcode, cont *Continuation) {
	g := s.Gen()
	gr := s.g

	if cont.IsBranch() && (cont.Cond == asm.CondNotEqual || cont.Cond == asm.CondEqual) && s.IsOnlyUserOfNodeInSameBlock(user, n) {
		switch gr.Op[n] {
		case ir.Int32Add:
			a.visitBinop(s, n, x64.Add32, cont)
			return
		case ir.Int32Sub:
			a.visitBinop(s, n, x64.Sub32, cont)
			return
		case ir.Word32And:
			a.visitBinop(s, n, x64.And32, cont)
			return
		case ir.Word32Or:
			a.visitBinop(s, n, x64.Or32, cont)
			return
		case ir.Int64Add:
			a.visitBinop(s, n, x64.Add, cont)
			return
		case ir.Int64Sub:
			a.visitBinop(s, n, x64.Sub, cont)
			return
		case ir.Word64And:
			a.visitBinop(s, n, x64.And, cont)
			return
		case ir.Word64Or:
			a.visitBinop(s, n, x64.Or, cont)
			return

		// sar rarely saves an instruction
		case ir.Word32Shl:
			if a.tryVisitWordShift(s, n, 32, x64.Shl32, cont) {
				return
			}
		case ir.Word32Shr:
			if a.tryVisitWordShift(s, n, 32, x64.Shr32, cont) {
				return
			}
		case ir.Word64Shl:
			if a.tryVisitWordShift(s, n, 64, x64.Shl, cont) {
				return
			}
		case ir.Word64Shr:
			if a.tryVisitWordShift(s, n, 64, x64.Shr, cont) {
				return
			}
		}
	}

	level := s.EffectLevelFor(n, cont)

	if isLoad(gr, n) {
		switch gr.MachineTypeOf(n).Rep {
		case ir.RepWord8:
			switch op {
			case x64.Cmp32:
				op = x64.Cmp8
			case x64.Test32:
				op = x64.Test8
			}
		case ir.RepWord16:
			switch op {
			case x64.Cmp32:
				op = x64.Cmp16
			case x64.Test32:
				op = x64.Test16
			}
		}
	}

	if a.CanBeMemoryOperand(s, op, user, n, level) {
		a.visitCompareWithMemoryOperand(s, op, n, g.TempImmediate(0), cont)
		return
	}

	s.EmitCompare(asm.MakeCode(op), g.Use(n), g.TempImmediate(0), cont)
}

func (a *X64) floatCmp(f32 bool) asm.ArchOpcode {
	switch {
	case f32 && a.f.AVX:
		return x64.AVXFloat32Cmp
	case f32:
		return x64.SSEFloat32Cmp
	case a.f.AVX:
		return x64.AVXFloat64Cmp
	}

	return x64.SSEFloat64Cmp
}

// visitFloatCompare commutes the inputs: ucomis sets the unsigned flags.
func (a *X64) visitFloatCompare(s *Selector, n ir.Node, f32 bool, cont *Continuation) {
	a.visitCompareNodes(s, a.floatCmp(f32), s.g.Input(n, 1), s.g.Input(n, 0), cont, false)
}

// float64LessThanAbs matches 0.0 < |x|. It is x != 0 with NaN false.
func float64LessThanAbs(g *ir.Graph, n ir.Node) (zero, x ir.Node, ok bool) {
	l, r := g.Input(n, 0), g.Input(n, 1)

	if g.Op[l] != ir.Float64Constant || g.Param[l].(float64) != 0 || g.Op[r] != ir.Float64Abs {
		return ir.Invalid, ir.Invalid, false
	}

	return l, g.Input(r, 0), true
}

// equalsZero returns the other operand of x == 0.
func equalsZero(g *ir.Graph, n ir.Node) (ir.Node, bool) {
	l, r := g.Input(n, 0), g.Input(n, 1)

	if v, ok := g.IntValue(r); ok && v == 0 {
		return l, true
	}

	if v, ok := g.IntValue(l); ok && v == 0 {
		return r, true
	}

	return ir.Invalid, false
}

func (a *X64) VisitWordCompareZero(s *Selector, user, value ir.Node, cont *Continuation) {
	gr := s.g

	for gr.Op[value] == ir.Word32Equal && s.CanCover(user, value) {
		x, ok := equalsZero(gr, value)
		if !ok {
			break
		}

		user, value = value, x
		cont.Negate()
	}

	if s.CanCover(user, value) {
		switch gr.Op[value] {
		case ir.Word32Equal:
			cont.OverwriteAndNegateIfEqual(asm.CondEqual)
			a.visitWord32EqualImpl(s, value, cont)

			return
		case ir.Int32LessThan:
			cont.OverwriteAndNegateIfEqual(asm.CondSignedLessThan)
			a.visitWordCompare(s, value, x64.Cmp32, cont)

			return
		case ir.Int32LessThanOrEqual:
			cont.OverwriteAndNegateIfEqual(asm.CondSignedLessThanOrEqual)
			a.visitWordCompare(s, value, x64.Cmp32, cont)

			return
		case ir.Uint32LessThan:
			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedLessThan)
			a.visitWordCompare(s, value, x64.Cmp32, cont)

			return
		case ir.Uint32LessThanOrEqual:
			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedLessThanOrEqual)
			a.visitWordCompare(s, value, x64.Cmp32, cont)

			return
		case ir.Word64Equal:
			cont.OverwriteAndNegateIfEqual(asm.CondEqual)

			if x, ok := equalsZero(gr, value); ok {
				if s.CanCover(value, x) {
					switch gr.Op[x] {
					case ir.Int64Sub:
						a.visitWordCompare(s, x, x64.Cmp, cont)
						return
					case ir.Word64And:
						a.visitWordCompare(s, x, x64.Test, cont)
						return
					}
				}

				a.visitCompareZero(s, value, x, x64.Cmp, cont)

				return
			}

			a.visitWord64EqualImpl(s, value, cont)

			return
		case ir.Int64LessThan:
			cont.OverwriteAndNegateIfEqual(asm.CondSignedLessThan)
			a.visitWordCompare(s, value, x64.Cmp, cont)

			return
		case ir.Int64LessThanOrEqual:
			cont.OverwriteAndNegateIfEqual(asm.CondSignedLessThanOrEqual)
			a.visitWordCompare(s, value, x64.Cmp, cont)

			return
		case ir.Uint64LessThan:
			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedLessThan)
			a.visitWordCompare(s, value, x64.Cmp, cont)

			return
		case ir.Uint64LessThanOrEqual:
			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedLessThanOrEqual)
			a.visitWordCompare(s, value, x64.Cmp, cont)

			return
		case ir.Float32Equal:
			cont.OverwriteAndNegateIfEqual(asm.CondUnorderedEqual)
			a.visitFloatCompare(s, value, true, cont)

			return
		case ir.Float32LessThan:
			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedGreaterThan)
			a.visitFloatCompare(s, value, true, cont)

			return
		case ir.Float32LessThanOrEqual:
			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedGreaterThanOrEqual)
			a.visitFloatCompare(s, value, true, cont)

			return
		case ir.Float64Equal:
			cont.OverwriteAndNegateIfEqual(asm.CondUnorderedEqual)
			a.visitFloatCompare(s, value, false, cont)

			return
		case ir.Float64LessThan:
			if zero, x, ok := float64LessThanAbs(gr, value); ok {
				cont.OverwriteAndNegateIfEqual(asm.CondNotEqual)
				a.visitCompareNodes(s, a.floatCmp(false), zero, x, cont, false)

				return
			}

			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedGreaterThan)
			a.visitFloatCompare(s, value, false, cont)

			return
		case ir.Float64LessThanOrEqual:
			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedGreaterThanOrEqual)
			a.visitFloatCompare(s, value, false, cont)

			return
		case ir.Projection:
			if a.tryVisitOverflowProjection(s, value, cont) {
				return
			}
		case ir.Int32Sub:
			a.visitWordCompare(s, value, x64.Cmp32, cont)
			return
		case ir.Word32And:
			a.visitWordCompare(s, value, x64.Test32, cont)
			return
		case ir.StackPointerGreaterThan:
			cont.OverwriteAndNegateIfEqual(asm.CondUnsignedGreaterThan)
			a.VisitStackPointerGreaterThan(s, value, cont)

			return
		}
	}

	a.visitCompareZero(s, user, value, x64.Cmp32, cont)
}

// tryVisitOverflowProjection branches on the overflow bit of an
// arithmetic op whose value, if used, is already defined.
func (a *X64) tryVisitOverflowProjection(s *Selector, p ir.Node, cont *Continuation) bool {
	gr := s.g

	if gr.IndexOf(p) != 1 {
		return false
	}

	n := gr.Input(p, 0)

	if res := gr.FindProjection(n, 0); res != ir.Invalid && !s.IsDefined(res) {
		return false
	}

	var op asm.ArchOpcode

	switch gr.Op[n] {
	case ir.Int32AddWithOverflow:
		op = x64.Add32
	case ir.Int32SubWithOverflow:
		op = x64.Sub32
	case ir.Int32MulWithOverflow:
		op = x64.Imul32
	case ir.Int64AddWithOverflow:
		op = x64.Add
	case ir.Int64SubWithOverflow:
		op = x64.Sub
	case ir.Int64MulWithOverflow:
		op = x64.Imul
	default:
		return false
	}

	cont.OverwriteAndNegateIfEqual(asm.CondOverflow)
	a.visitBinop(s, n, op, cont)

	return true
}

func (a *X64) VisitStackPointerGreaterThan(s *Selector, n ir.Node, cont *Continuation) {
	g := s.Gen()

	code := asm.MakeCode(asm.ArchStackPointerGreaterThan)
	x := s.g.Input(n, 0)

	if a.CanBeMemoryOperand(s, x64.Cmp, n, x, s.EffectLevelFor(n, cont)) {
		mode, ins := a.GetEffectiveAddressMemoryOperand(s, x, make([]asm.Operand, 0, 3), false)
		s.EmitWithContinuation(code.WithMode(mode), nil, ins, nil, cont)

		return
	}

	s.EmitWithContinuation(code, nil, []asm.Operand{g.UseRegister(x)}, nil, cont)
}

func (a *X64) compare(op asm.ArchOpcode, cond asm.Condition) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		cont := ForSet(cond, n)
		a.visitWordCompare(s, n, op, &cont)
	}
}

func (a *X64) floatCompare(f32 bool, cond asm.Condition) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		cont := ForSet(cond, n)
		a.visitFloatCompare(s, n, f32, &cont)
	}
}

func (a *X64) visitWord32Equal(s *Selector, n ir.Node) {
	cont := ForSet(asm.CondEqual, n)

	if x, ok := equalsZero(s.g, n); ok {
		a.VisitWordCompareZero(s, n, x, &cont)
		return
	}

	a.visitWord32EqualImpl(s, n, &cont)
}

func (a *X64) visitWord64Equal(s *Selector, n ir.Node) {
	cont := ForSet(asm.CondEqual, n)

	if x, ok := equalsZero(s.g, n); ok && s.CanCover(n, x) {
		switch s.g.Op[x] {
		case ir.Int64Sub:
			a.visitWordCompare(s, x, x64.Cmp, &cont)
			return
		case ir.Word64And:
			a.visitWordCompare(s, x, x64.Test, &cont)
			return
		}
	}

	a.visitWord64EqualImpl(s, n, &cont)
}

func (a *X64) visitFloat64LessThan(s *Selector, n ir.Node) {
	if zero, x, ok := float64LessThanAbs(s.g, n); ok {
		cont := ForSet(asm.CondNotEqual, n)
		a.visitCompareNodes(s, a.floatCmp(false), zero, x, &cont, false)

		return
	}

	cont := ForSet(asm.CondUnsignedGreaterThan, n)
	a.visitFloatCompare(s, n, false, &cont)
}

func (a *X64) VisitSwitch(s *Selector, n ir.Node, sw *SwitchInfo) {
	g := s.Gen()

	x := s.g.Input(n, 0)
	value := g.UseRegister(x)

	if !s.UseTableSwitch(sw) {
		s.EmitBinarySearchSwitch(sw, value)
		return
	}

	index := g.TempRegister()

	switch {
	case sw.Min != 0:
		s.Emit(asm.MakeCode(x64.Lea32).WithMode(x64.MRI), index, value, g.TempImmediate(-sw.Min))
	case a.ZeroExtendsWord32ToWord64(s, x):
		index = value
	default:
		s.Emit(asm.MakeCode(x64.Movl), index, value)
	}

	s.EmitTableSwitch(sw, index)
}
