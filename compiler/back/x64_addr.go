package back

import (
	"math"
	"math/bits"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/ir"
)

type (
	// AddressMatch is base + index<<Scale + disp.
	// Absent parts are ir.Invalid.
	AddressMatch struct {
		Base  ir.Node
		Index ir.Node
		Disp  ir.Node
		Scale int

		NegDisp bool
	}

	addrOps struct {
		add, sub, mul, shl ir.Opcode
	}

	// addMatch is an add with the scaled operand, if any, on the left.
	addMatch struct {
		left, right ir.Node

		index   ir.Node
		scale   int // -1 if left is not scaled
		plusOne bool
	}
)

var (
	addr32 = addrOps{add: ir.Int32Add, sub: ir.Int32Sub, mul: ir.Int32Mul, shl: ir.Word32Shl}
	addr64 = addrOps{add: ir.Int64Add, sub: ir.Int64Sub, mul: ir.Int64Mul, shl: ir.Word64Shl}
)

func isMemoryAccess(op ir.Opcode) bool {
	switch op {
	case ir.Load, ir.LoadImmutable, ir.ProtectedLoad, ir.Store, ir.ProtectedStore,
		ir.Word32AtomicLoad, ir.Word64AtomicLoad:
		return true
	}

	return false
}

func isIntConstant(g *ir.Graph, n ir.Node) bool {
	_, ok := g.IntValue(n)
	return ok
}

// matchScale matches x*{1,2,4,8} and x<<{0..3}. With plusOne it also
// matches x*{3,5,9} as x + x<<scale.
func matchScale(g *ir.Graph, n ir.Node, ops addrOps, plusOne bool) (index ir.Node, scale int, po bool, ok bool) {
	if n == ir.Invalid {
		return ir.Invalid, 0, false, false
	}

	switch g.Op[n] {
	case ops.mul:
		v, ok := g.IntValue(g.Input(n, 1))
		if !ok {
			return ir.Invalid, 0, false, false
		}

		switch v {
		case 1, 2, 4, 8:
			scale = bits.TrailingZeros64(uint64(v))
		case 3, 5, 9:
			if !plusOne {
				return ir.Invalid, 0, false, false
			}

			po = true
			scale = bits.TrailingZeros64(uint64(v - 1))
		default:
			return ir.Invalid, 0, false, false
		}
	case ops.shl:
		v, ok := g.IntValue(g.Input(n, 1))
		if !ok || v < 0 || v > 3 {
			return ir.Invalid, 0, false, false
		}

		scale = int(v)
	default:
		return ir.Invalid, 0, false, false
	}

	return g.Input(n, 0), scale, po, true
}

func matchAdd(g *ir.Graph, n ir.Node, ops addrOps) addMatch {
	l, r := g.Input(n, 0), g.Input(n, 1)

	sub := g.Op[n] == ops.sub

	if !sub && isIntConstant(g, l) && !isIntConstant(g, r) {
		l, r = r, l
	}

	m := addMatch{left: l, right: r, scale: -1}

	if idx, sc, po, ok := matchScale(g, l, ops, true); ok {
		m.index, m.scale, m.plusOne = idx, sc, po
		return m
	}

	if sub {
		return m
	}

	if idx, sc, po, ok := matchScale(g, r, ops, true); ok {
		m.left, m.right = r, l
		m.index, m.scale, m.plusOne = idx, sc, po

		return m
	}

	lop, rop := g.Op[l], g.Op[r]

	if lop != ops.add && lop != ops.sub && (rop == ops.add || rop == ops.sub) {
		m.left, m.right = r, l
	}

	return m
}

func (m addMatch) hasIndex() bool { return m.scale >= 0 }

// ownedByAddressing reports whether all users of n compute addresses.
func ownedByAddressing(g *ir.Graph, n ir.Node) bool {
	for _, u := range g.Uses(n) {
		if u.Kind != ir.ValueEdge {
			continue
		}

		switch g.Op[u.User] {
		case ir.Load, ir.LoadImmutable, ir.ProtectedLoad, ir.Store, ir.ProtectedStore,
			ir.Int32Add, ir.Int64Add:
		case ir.Int32Sub, ir.Int64Sub:
			if !isIntConstant(g, g.Input(u.User, 1)) {
				return false
			}
		default:
			return false
		}
	}

	return true
}

// MatchAddress splits an add or the address of a memory access.
// Memory accesses are matched as the add of their first two inputs.
func MatchAddress(g *ir.Graph, n ir.Node, ops addrOps) (r AddressMatch, ok bool) {
	op := g.Op[n]
	if op != ops.add && !isMemoryAccess(op) {
		return r, false
	}

	m := matchAdd(g, n, ops)
	if isMemoryAccess(op) && !m.hasIndex() && isIntConstant(g, m.left) && !isIntConstant(g, m.right) {
		m.left, m.right = m.right, m.left
	}

	left, right := m.left, m.right

	base, index, disp := ir.Invalid, ir.Invalid, ir.Invalid
	scaleExpr := ir.Invalid
	scale := 0
	plusOne := false
	neg := false

	rightConst := isIntConstant(g, right)

	if m.hasIndex() && ownedByAddressing(g, left) {
		index, scale, scaleExpr, plusOne = m.index, m.scale, left, m.plusOne

		found := false

		if g.Op[right] == ops.sub && ownedByAddressing(g, right) {
			rm := matchAdd(g, right, ops)

			if isIntConstant(g, rm.right) {
				// S + (B - D)
				base, disp, neg = rm.left, rm.right, true
				found = true
			}
		}

		if !found {
			switch {
			case g.Op[right] == ops.add && ownedByAddressing(g, right):
				rm := matchAdd(g, right, ops)

				if isIntConstant(g, rm.right) {
					// S + (B + D)
					base, disp = rm.left, rm.right
				} else {
					// S + (B + B)
					base = right
				}
			case rightConst:
				// S + D
				disp = right
			default:
				// S + B
				base = right
			}
		}
	} else {
		found := false

		if g.Op[left] == ops.sub && ownedByAddressing(g, left) {
			lm := matchAdd(g, left, ops)
			ll, lr := lm.left, lm.right

			if isIntConstant(g, lr) {
				if lm.hasIndex() && g.OwnedBy(ll, left) {
					// (S - D) + B
					index, scale, scaleExpr, plusOne = lm.index, lm.scale, ll, lm.plusOne
				} else {
					// (B - D) + B
					index = ll
				}

				disp, neg, base = lr, true, right
				found = true
			}
		}

		if !found {
			switch {
			case g.Op[left] == ops.add && ownedByAddressing(g, left):
				lm := matchAdd(g, left, ops)
				ll, lr := lm.left, lm.right

				switch {
				case lm.hasIndex() && g.OwnedBy(ll, left) && isIntConstant(g, lr):
					// (S + D) + B
					index, scale, scaleExpr, plusOne = lm.index, lm.scale, ll, lm.plusOne
					disp, base = lr, right
				case lm.hasIndex() && g.OwnedBy(ll, left) && rightConst && g.OwnedBy(left, n):
					// (S + B) + D
					index, scale, scaleExpr, plusOne = lm.index, lm.scale, ll, lm.plusOne
					base, disp = lr, right
				case !lm.hasIndex() && isIntConstant(g, lr):
					// (B + D) + B
					index, disp, base = ll, lr, right
				case !lm.hasIndex() && rightConst && g.OwnedBy(left, n):
					// (B + B) + D
					index, base, disp = ll, lr, right
				case rightConst:
					// B + D
					base, disp = left, right
				default:
					// B + B
					index, base = left, right
				}
			case rightConst:
				// B + D
				base, disp = left, right
			default:
				// B + B
				base, index = left, right
			}
		}
	}

	if disp != ir.Invalid {
		if v, _ := g.IntValue(disp); v == 0 {
			disp = ir.Invalid
		}
	}

	if plusOne {
		if base != ir.Invalid {
			// x + x<<scale needs the base slot
			index, scale = scaleExpr, 0
		} else {
			base = index
		}
	}

	return AddressMatch{Base: base, Index: index, Disp: disp, Scale: scale, NegDisp: neg}, true
}

func (a *X64) CanBeImmediate(s *Selector, n ir.Node) bool {
	g := s.g

	switch g.Op[n] {
	case ir.CompressedHeapConstant:
		h := g.HeapObjectOf(n)

		return h.ReadOnly && h.RootIndex >= 0
	case ir.Int32Constant:
		// negated displacements overflow otherwise
		return g.Param[n].(int32) != math.MinInt32
	case ir.RelocatableInt32Constant:
		return int32(g.Param[n].(ir.RelocatableConstant).Value) != math.MinInt32
	case ir.Int64Constant:
		v := g.Param[n].(int64)

		return v > math.MinInt32 && v <= math.MaxInt32
	case ir.NumberConstant:
		return math.Float64bits(g.Param[n].(float64)) == 0
	}

	return false
}

func immediateValue(g *ir.Graph, n ir.Node) int32 {
	switch g.Op[n] {
	case ir.RelocatableInt32Constant, ir.RelocatableInt64Constant:
		return int32(g.Param[n].(ir.RelocatableConstant).Value)
	}

	v, _ := g.IntValue(n)

	return int32(v)
}

// CanBeMemoryOperand reports whether input can be folded as a memory
// operand into the instruction code selected for user.
func (a *X64) CanBeMemoryOperand(s *Selector, code asm.ArchOpcode, user, input ir.Node, level int) bool {
	g := s.g

	if op := g.Op[input]; op != ir.Load && op != ir.LoadImmutable {
		return false
	}

	if !s.CanCover(user, input) || level != s.EffectLevel(input) {
		return false
	}

	rep := g.MachineTypeOf(input).Rep

	switch code {
	case x64.And, x64.Or, x64.Xor, x64.Add, x64.Sub, x64.Push, x64.Cmp, x64.Test:
		return rep == ir.RepWord64
	case x64.And32, x64.Or32, x64.Xor32, x64.Add32, x64.Sub32, x64.Cmp32, x64.Test32:
		// low half of a compressed pointer identifies it
		return rep == ir.RepWord32 || rep.IsTagged() || rep.IsCompressed()
	case x64.AVXFloat64Add, x64.AVXFloat64Sub, x64.AVXFloat64Mul:
		return rep == ir.RepFloat64
	case x64.AVXFloat32Add, x64.AVXFloat32Sub, x64.AVXFloat32Mul:
		return rep == ir.RepFloat32
	case x64.Cmp16, x64.Test16:
		return rep == ir.RepWord16
	case x64.Cmp8, x64.Test8:
		return rep == ir.RepWord8
	}

	return false
}

// GenerateMemoryOperandInputs appends the address operands and returns
// the addressing mode describing them.
func (a *X64) GenerateMemoryOperandInputs(s *Selector, m AddressMatch, ins []asm.Operand, unique bool) (asm.AddressingMode, []asm.Operand) {
	g := s.Gen()
	gr := s.g

	reg := g.UseRegister
	if unique {
		reg = g.UseUniqueRegister
	}

	dispOp := func(d ir.Node) asm.Operand {
		if m.NegDisp {
			return g.UseNegatedImmediate(d)
		}

		return g.UseImmediate(d)
	}

	base, index, disp := m.Base, m.Index, m.Disp

	folded, hasFolded := int64(0), false

	if base != ir.Invalid && disp != ir.Invalid && index != ir.Invalid {
		bv, bok := gr.IntValue(base)
		dv, dok := gr.IntValue(disp)

		if bok && dok && a.CanBeImmediate(s, base) && a.CanBeImmediate(s, disp) {
			if m.NegDisp {
				dv = -dv
			}

			sum := bv + dv

			switch {
			case sum == 0:
				base, disp = ir.Invalid, ir.Invalid
			case sum > math.MinInt32 && sum <= math.MaxInt32:
				base, disp = ir.Invalid, ir.Invalid
				folded, hasFolded = sum, true
			}
		}
	}

	if base != ir.Invalid && (index != ir.Invalid || disp != ir.Invalid) {
		if v, ok := gr.IntValue(base); ok && v == 0 {
			base = ir.Invalid
		}
	}

	if base != ir.Invalid {
		ins = append(ins, reg(base))

		if index != ir.Invalid {
			ins = append(ins, reg(index))

			if disp != ir.Invalid {
				return x64.ModesMRI[m.Scale], append(ins, dispOp(disp))
			}

			return x64.ModesMR[m.Scale], ins
		}

		if disp == ir.Invalid {
			return x64.MR, ins
		}

		return x64.MRI, append(ins, dispOp(disp))
	}

	mnI := [4]asm.AddressingMode{x64.MRI, x64.M2I, x64.M4I, x64.M8I}

	if hasFolded {
		ins = append(ins, reg(index), g.TempImmediate(int32(folded)))

		return mnI[m.Scale], ins
	}

	if disp != ir.Invalid {
		if index == ir.Invalid {
			return x64.MR, append(ins, reg(disp))
		}

		ins = append(ins, reg(index), dispOp(disp))

		return mnI[m.Scale], ins
	}

	mode := [4]asm.AddressingMode{x64.MR, x64.MR1, x64.M4, x64.M8}[m.Scale]

	ins = append(ins, reg(index))
	if mode == x64.MR1 {
		// [r + r*1] encodes shorter than [r*2 + 0]
		ins = append(ins, reg(index))
	}

	return mode, ins
}

func isCompressedBase(g *ir.Graph, n ir.Node) bool {
	switch g.Op[n] {
	case ir.Load, ir.LoadImmutable:
		return g.MachineTypeOf(n).Rep.IsCompressed()
	case ir.Phi:
		return g.RepresentationOf(n).IsCompressed()
	}

	return false
}

// GetEffectiveAddressMemoryOperand appends the operands addressing the
// memory accessed by n.
func (a *X64) GetEffectiveAddressMemoryOperand(s *Selector, n ir.Node, ins []asm.Operand, unique bool) (asm.AddressingMode, []asm.Operand) {
	g := s.Gen()
	gr := s.g

	reg := g.UseRegister
	if unique {
		reg = g.UseUniqueRegister
	}

	if op := gr.Op[n]; (op == ir.Load || op == ir.LoadImmutable) && gr.Op[gr.Input(n, 0)] == ir.ExternalConstant {
		ref := gr.ExternalReferenceOf(gr.Input(n, 0))

		if off, ok := gr.IntValue(gr.Input(n, 1)); ok && s.cfg.RootsRelative && ref.IsolateIndependent {
			delta := off + ref.RootsOffset

			if delta >= math.MinInt32 && delta <= math.MaxInt32 {
				return x64.Root, append(ins, g.TempImmediate(int32(delta)))
			}
		}
	}

	m, _ := MatchAddress(gr, n, addr64)

	if m.Base != ir.Invalid && m.Index == ir.Invalid && isCompressedBase(gr, m.Base) {
		ins = append(ins, reg(m.Base))

		if m.Disp == ir.Invalid {
			return x64.MCR, ins
		}

		return x64.MCRI, append(ins, g.UseImmediate(m.Disp))
	}

	if m.Base != ir.Invalid && m.Index == ir.Invalid && gr.Op[m.Base] == ir.LoadRootRegister {
		if m.Disp == ir.Invalid {
			return x64.Root, append(ins, g.TempImmediate(0))
		}

		return x64.Root, append(ins, g.UseImmediate(m.Disp))
	}

	switch {
	case m.Disp == ir.Invalid || a.CanBeImmediate(s, m.Disp):
		return a.GenerateMemoryOperandInputs(s, m, ins, unique)
	case m.Base == ir.Invalid && !m.NegDisp:
		// disp can't be encoded, use it as the base
		m.Base, m.Disp = m.Disp, ir.Invalid

		return a.GenerateMemoryOperandInputs(s, m, ins, unique)
	}

	ins = append(ins, reg(gr.Input(n, 0)), reg(gr.Input(n, 1)))

	return x64.MR1, ins
}

// GetEffectiveIndexOperand is for stores with a write barrier:
// base and index go to separate operands.
func (a *X64) GetEffectiveIndexOperand(s *Selector, index ir.Node) (asm.Operand, asm.AddressingMode) {
	g := s.Gen()

	if a.CanBeImmediate(s, index) {
		return g.UseImmediate(index), x64.MRI
	}

	return g.UseUniqueRegister(index), x64.MR1
}

// AddDisplacementToAddressingMode returns the mode with an immediate
// displacement appended.
func AddDisplacementToAddressingMode(m asm.AddressingMode) asm.AddressingMode {
	switch m {
	case x64.MR:
		return x64.MRI
	case x64.MCR:
		return x64.MCRI
	}

	if sc := x64.ScaleOf(m); sc >= 0 && !x64.HasDisplacement(m) {
		if m >= x64.MR1 && m <= x64.MR8 {
			return x64.ModesMRI[sc]
		}

		return x64.ModesMI[sc]
	}

	return m
}
