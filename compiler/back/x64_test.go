package back

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/ir"
)

// singleBlock schedules all the graph nodes in one block ending with ctl.
func singleBlock(name string, g *ir.Graph, ctl ir.Control, n ir.Node, l *ir.Linkage) *ir.Func {
	sched := ir.NewSchedule()
	b0 := sched.NewBlock()

	for x := 0; x < g.Len(); x++ {
		if ir.Node(x) == n {
			continue
		}

		sched.AddNode(b0, ir.Node(x))
	}

	switch ctl {
	case ir.ControlReturn:
		sched.AddReturn(b0, n)
	case ir.ControlTailCall:
		sched.AddTailCall(b0, n)
	case ir.ControlDeoptimize:
		sched.AddDeoptimize(b0, n)
	}

	return &ir.Func{Name: name, Graph: g, Schedule: sched, Linkage: l}
}

func findInstrs(seq *asm.Sequence, op asm.ArchOpcode) (r []*asm.Instruction) {
	for _, in := range seq.Instrs {
		if in.Opcode() == op {
			r = append(r, in)
		}
	}

	return r
}

func TestLoadFoldsIntoAdd(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	off := g.New(ir.Int64Constant, int64(16))
	ld := g.New(ir.Load, ir.TypeInt32, p0, off)
	add := g.New(ir.Int32Add, nil, p1, ld)
	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero, add)

	fn := singleBlock("load_add", g, ir.ControlReturn, ret, testLinkage([]ir.MachineType{ir.TypePointer, ir.TypeInt32}, ir.TypeInt32))

	s := selectFunc(t, testConfig(), fn)

	assert.Equal(t, []string{
		vreg(s, p0) + "(fixed=0) = ArchNop",
		vreg(s, p1) + "(fixed=1) = ArchNop",
		fmt.Sprintf("%s(same=0) = X64Add32 MRI %s(r,start) %s(r,start) #16", vreg(s, add), vreg(s, p1), vreg(s, p0)),
		fmt.Sprintf("ArchRet #0 %s(fixed=0)", vreg(s, add)),
	}, blockText(s.Sequence(), 0))

	assert.False(t, s.IsDefined(ld), "load is folded and never defined")
}

func TestLoadNotFoldedAcrossStore(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	c8 := g.New(ir.Int64Constant, int64(8))
	c16 := g.New(ir.Int64Constant, int64(16))
	c24 := g.New(ir.Int64Constant, int64(24))
	c32 := g.New(ir.Int64Constant, int64(32))

	ld1 := g.New(ir.Load, ir.TypeInt64, p0, c8)
	st := g.New(ir.Store, ir.StoreRepresentation{Rep: ir.RepWord64, WriteBarrier: ir.NoWriteBarrier}, p0, c16, p1)
	ld2 := g.New(ir.Load, ir.TypeInt64, p0, c24)
	a1 := g.New(ir.Int64Add, nil, ld1, p1)
	a2 := g.New(ir.Int64Add, nil, a1, ld2)
	ld3 := g.New(ir.Load, ir.TypeInt64, p0, c32)
	a3 := g.New(ir.Int64Add, nil, a2, ld3)
	a4 := g.New(ir.Int64Add, nil, a3, ld3)
	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero, a4)

	fn := singleBlock("effects", g, ir.ControlReturn, ret, testLinkage([]ir.MachineType{ir.TypePointer, ir.TypeInt64}, ir.TypeInt64))

	s := selectFunc(t, testConfig(), fn)

	b0 := fn.Schedule.Blocks[0]
	s.cur = b0

	canCover := func(user, node ir.Node) bool {
		s.curEffect = s.EffectLevel(user)
		return s.CanCover(user, node)
	}

	assert.Equal(t, 0, s.EffectLevel(ld1))
	assert.Equal(t, 0, s.EffectLevel(st))
	assert.Equal(t, 1, s.EffectLevel(ld2))

	assert.False(t, canCover(a1, ld1), "store in between")
	assert.True(t, canCover(a2, ld2))
	assert.True(t, canCover(a2, a1))
	assert.False(t, canCover(a3, ld3), "two users")
	assert.False(t, canCover(a4, ld3), "two users")

	for _, user := range b0.Nodes {
		for _, x := range g.Value[user] {
			if x == ir.Invalid || !canCover(user, x) {
				continue
			}

			for _, u := range g.Uses(x) {
				if u.Kind == ir.ValueEdge {
					assert.Equal(t, user, u.User, "node %d covered by %d has another user", x, user)
				}
			}

			if !g.Op[x].IsPure() {
				assert.Equal(t, s.EffectLevel(user), s.EffectLevel(x), "node %d covered by %d", x, user)
			}
		}
	}

	assert.True(t, s.IsDefined(ld1))
	assert.False(t, s.IsDefined(ld2), "folded into a2")
	assert.True(t, s.IsDefined(ld3))
	assert.Len(t, findInstrs(s.Sequence(), x64.Movq), 3, "two loads and a store")
}

func TestEffectiveAddress(t *testing.T) {
	params := []int64{1000, 7}

	for _, tc := range []struct {
		name string
		mode asm.AddressingMode
		addr func(g *ir.Graph, p0, p1 ir.Node) ir.Node
	}{
		{"base_disp", x64.MRI, func(g *ir.Graph, p0, p1 ir.Node) ir.Node {
			return g.New(ir.Load, ir.TypeInt64, p0, g.New(ir.Int64Constant, int64(16)))
		}},
		{"base_index", x64.MR1, func(g *ir.Graph, p0, p1 ir.Node) ir.Node {
			return g.New(ir.Load, ir.TypeInt64, p0, p1)
		}},
		{"scaled_index_disp", x64.MR4I, func(g *ir.Graph, p0, p1 ir.Node) ir.Node {
			shl := g.New(ir.Word64Shl, nil, p1, g.New(ir.Int64Constant, int64(2)))
			add := g.New(ir.Int64Add, nil, p0, shl)

			return g.New(ir.Load, ir.TypeInt64, add, g.New(ir.Int64Constant, int64(24)))
		}},
		{"times_three", x64.MR2I, func(g *ir.Graph, p0, p1 ir.Node) ir.Node {
			mul := g.New(ir.Int64Mul, nil, p1, g.New(ir.Int64Constant, int64(3)))

			return g.New(ir.Load, ir.TypeInt64, mul, g.New(ir.Int64Constant, int64(8)))
		}},
		{"negative_disp", x64.MR1I, func(g *ir.Graph, p0, p1 ir.Node) ir.Node {
			sub := g.New(ir.Int64Sub, nil, p0, g.New(ir.Int64Constant, int64(8)))

			return g.New(ir.Load, ir.TypeInt64, sub, p1)
		}},
		{"wide_disp", x64.MR1, func(g *ir.Graph, p0, p1 ir.Node) ir.Node {
			return g.New(ir.Load, ir.TypeInt64, p0, g.New(ir.Int64Constant, int64(1)<<40))
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			g := ir.NewGraph()

			p0 := g.New(ir.Parameter, 0)
			p1 := g.New(ir.Parameter, 1)
			ld := tc.addr(g, p0, p1)

			fn := singleBlock(tc.name, g, ir.ControlNone, ir.Invalid, testLinkage([]ir.MachineType{ir.TypePointer, ir.TypeInt64}))
			s := newSelector(t, testConfig(), fn)
			a := s.Arch().(*X64)

			mode, ins := a.GetEffectiveAddressMemoryOperand(s, ld, nil, false)
			require.Equal(t, tc.mode, mode, "mode %v", mode)
			require.Len(t, ins, x64.InputCount(mode))

			vals := map[asm.VReg]int64{}

			for n := ir.Node(0); int(n) < g.Len(); n++ {
				if v, ok := evalAddr(g, n, params); ok {
					vals[s.VReg(n)] = v
				}
			}

			imms, regs := 0, 0

			val := func(o asm.Operand) int64 {
				if o.IsImmediate() {
					imms++
					return s.Sequence().ImmediateValue(o).Value
				}

				regs++

				v, ok := vals[o.VReg]
				require.True(t, ok, "operand %v", o)

				return v
			}

			want, ok := evalAddr(g, ld, params)
			require.True(t, ok)

			assert.Equal(t, want, effectiveAddress(mode, ins, val))
			assert.LessOrEqual(t, imms, 1)
			assert.LessOrEqual(t, regs, 2)
		})
	}
}

// effectiveAddress computes the address the operands describe.
func effectiveAddress(mode asm.AddressingMode, ins []asm.Operand, val func(asm.Operand) int64) int64 {
	switch mode {
	case x64.MR:
		return val(ins[0])
	case x64.MRI:
		return val(ins[0]) + val(ins[1])
	}

	var addr int64

	for _, m := range append(x64.ModesMR[:], x64.ModesMRI[:]...) {
		if m == mode {
			addr = val(ins[0])
			ins = ins[1:]
		}
	}

	addr += val(ins[0]) << x64.ScaleOf(mode)

	if x64.HasDisplacement(mode) {
		addr += val(ins[1])
	}

	return addr
}

func evalAddr(g *ir.Graph, n ir.Node, params []int64) (int64, bool) {
	bin := func(f func(a, b int64) int64) (int64, bool) {
		a, aok := evalAddr(g, g.Input(n, 0), params)
		b, bok := evalAddr(g, g.Input(n, 1), params)

		return f(a, b), aok && bok
	}

	switch g.Op[n] {
	case ir.Parameter:
		return params[g.IndexOf(n)], true
	case ir.Int32Constant, ir.Int64Constant:
		return g.IntValue(n)
	case ir.Int64Add, ir.Load:
		return bin(func(a, b int64) int64 { return a + b })
	case ir.Int64Sub:
		return bin(func(a, b int64) int64 { return a - b })
	case ir.Int64Mul:
		return bin(func(a, b int64) int64 { return a * b })
	case ir.Word64Shl:
		return bin(func(a, b int64) int64 { return a << uint(b) })
	}

	return 0, false
}

func TestCanBeImmediate(t *testing.T) {
	g := ir.NewGraph()

	type tc struct {
		n    ir.Node
		want bool
	}

	cases := []tc{
		{g.New(ir.Int32Constant, int32(5)), true},
		{g.New(ir.Int32Constant, int32(math.MaxInt32)), true},
		{g.New(ir.Int32Constant, int32(math.MinInt32)), false},
		{g.New(ir.Int64Constant, int64(math.MaxInt32)), true},
		{g.New(ir.Int64Constant, int64(math.MinInt32)), false},
		{g.New(ir.Int64Constant, int64(math.MinInt32+1)), true},
		{g.New(ir.Int64Constant, int64(math.MaxInt32)+1), false},
		{g.New(ir.NumberConstant, 0.0), true},
		{g.New(ir.NumberConstant, math.Copysign(0, -1)), false},
		{g.New(ir.NumberConstant, 1.0), false},
		{g.New(ir.CompressedHeapConstant, ir.HeapObject{Name: "undefined", ReadOnly: true, RootIndex: 4}), true},
		{g.New(ir.CompressedHeapConstant, ir.HeapObject{Name: "obj", RootIndex: -1}), false},
		{g.New(ir.HeapConstant, ir.HeapObject{Name: "obj", ReadOnly: true, RootIndex: 4}), false},
		{g.New(ir.RelocatableInt32Constant, ir.RelocatableConstant{Value: 12, Mode: ir.RelocWasmCall}), true},
		{g.New(ir.Float64Constant, 0.0), false},
	}

	fn := singleBlock("imm", g, ir.ControlNone, ir.Invalid, testLinkage(nil))
	s := newSelector(t, testConfig(), fn)

	for _, c := range cases {
		assert.Equal(t, c.want, s.Arch().CanBeImmediate(s, c.n), "node %d: %v %v", c.n, g.Op[c.n], g.Param[c.n])
	}
}

// switchFunc switches over p0 with the case values and a default.
func switchFunc(vals ...int32) *ir.Func {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	sw := g.New(ir.Switch, nil, p0)

	sched := ir.NewSchedule()
	b0 := sched.NewBlock()
	sched.AddNode(b0, p0)

	var succ []*ir.Block

	target := func(head ir.Node) *ir.Block {
		b := sched.NewBlock()

		zero := g.New(ir.Int32Constant, int32(0))
		ret := g.New(ir.Return, nil, zero)

		sched.AddNode(b, head, zero)
		sched.AddReturn(b, ret)

		return b
	}

	for i, v := range vals {
		succ = append(succ, target(g.New(ir.IfValue, ir.IfValueParameters{Value: v, Order: i}, sw)))
	}

	succ = append(succ, target(g.New(ir.IfDefault, nil, sw)))

	sched.AddSwitch(b0, sw, succ...)

	return &ir.Func{Name: "switch", Graph: g, Schedule: sched, Linkage: testLinkage([]ir.MachineType{ir.TypeInt32})}
}

func TestSwitchTable(t *testing.T) {
	s := selectFunc(t, testConfig(), switchFunc(0, 1, 2, 3, 4, 5))
	seq := s.Sequence()

	b0 := seq.InstructionBlockAt(0)
	last := seq.Instrs[b0.CodeEnd-1]

	require.Equal(t, asm.ArchTableSwitch, last.Opcode())
	require.Len(t, last.Inputs, 8)

	mov := seq.Instrs[b0.CodeEnd-2]
	require.Equal(t, x64.Movl, mov.Opcode())
	assert.Equal(t, mov.Outputs[0].VReg, last.Inputs[0].VReg)

	assert.Equal(t, asm.Label(7), last.Inputs[1], "default")

	for i := 0; i < 6; i++ {
		assert.Equal(t, asm.Label(1+i), last.Inputs[2+i])
	}
}

func TestSwitchTableMinOffset(t *testing.T) {
	s := selectFunc(t, testConfig(), switchFunc(10, 11, 12, 13, 14, 15))
	seq := s.Sequence()

	b0 := seq.InstructionBlockAt(0)
	last := seq.Instrs[b0.CodeEnd-1]
	lea := seq.Instrs[b0.CodeEnd-2]

	require.Equal(t, asm.ArchTableSwitch, last.Opcode())
	require.Equal(t, x64.Lea32, lea.Opcode())
	assert.Equal(t, x64.MRI, lea.Code.Mode())
	assert.Equal(t, asm.Immediate(-10), lea.Inputs[1])
	assert.Equal(t, lea.Outputs[0].VReg, last.Inputs[0].VReg)
}

func TestSwitchBinarySearch(t *testing.T) {
	check := func(t *testing.T, cfg Config, vals []int32, want []string) {
		s := selectFunc(t, cfg, switchFunc(vals...))
		seq := s.Sequence()

		b0 := seq.InstructionBlockAt(0)
		last := seq.Instrs[b0.CodeEnd-1]

		require.Equal(t, asm.ArchBinarySearchSwitch, last.Opcode())
		require.Len(t, last.Inputs, 2+2*len(vals))

		var got []string
		for _, o := range last.Inputs[1:] {
			got = append(got, o.String())
		}

		assert.Equal(t, want, got)
	}

	t.Run("sparse", func(t *testing.T) {
		check(t, testConfig(), []int32{100, 5, 1000, 30, 7}, []string{
			"B6",
			"#5", "B2",
			"#7", "B5",
			"#30", "B4",
			"#100", "B1",
			"#1000", "B3",
		})
	})

	t.Run("few_cases", func(t *testing.T) {
		check(t, testConfig(), []int32{2, 1}, []string{"B3", "#1", "B2", "#2", "B1"})
	})

	t.Run("no_jump_tables", func(t *testing.T) {
		cfg := testConfig()
		cfg.SwitchJumpTable = false

		check(t, cfg, []int32{0, 1, 2, 3, 4, 5}, []string{
			"B7", "#0", "B1", "#1", "B2", "#2", "B3", "#3", "B4", "#4", "B5", "#5", "B6",
		})
	})
}

func TestUseTableSwitch(t *testing.T) {
	fn, _, _ := branchFunc()
	s := newSelector(t, testConfig(), fn)

	info := func(vals ...int32) *SwitchInfo {
		sw := &SwitchInfo{Min: math.MaxInt32, Max: math.MinInt32}

		for i, v := range vals {
			sw.Cases = append(sw.Cases, CaseInfo{Value: v, Order: i, Block: i + 1})
			sw.Min = min(sw.Min, v)
			sw.Max = max(sw.Max, v)
		}

		return sw
	}

	assert.True(t, s.UseTableSwitch(info(0, 1, 2, 3, 4)))
	assert.False(t, s.UseTableSwitch(info(0, 1, 2, 3)), "too few cases")
	assert.False(t, s.UseTableSwitch(info(0, 1, 2, 3, 1000)), "sparse")
	assert.False(t, s.UseTableSwitch(info(math.MinInt32, math.MinInt32+1, math.MinInt32+2, math.MinInt32+3, math.MinInt32+4)))
}

func TestCallPushesStackArguments(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	c5 := g.New(ir.Int32Constant, int32(5))
	target := g.New(ir.HeapConstant, ir.HeapObject{Name: "callee", Handle: 7, RootIndex: -1})

	d := &ir.CallDescriptor{
		Name:    "callee",
		Kind:    ir.CallCodeObject,
		Target:  ir.AnyRegisterLocation(ir.TypePointer),
		Params:  []ir.LinkageLocation{ir.CallerSlotLocation(0, ir.TypeInt32), ir.CallerSlotLocation(2, ir.TypeInt64)},
		Returns: []ir.LinkageLocation{ir.RegisterLocation(0, ir.TypeAnyTagged)},
	}

	call := g.New(ir.Call, d, target, c5, p0)
	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero, call)

	fn := singleBlock("call", g, ir.ControlReturn, ret, testLinkage([]ir.MachineType{ir.TypeInt64}, ir.TypeAnyTagged))

	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	assert.Equal(t, []string{
		vreg(s, p0) + "(fixed=0) = ArchNop",
		fmt.Sprintf("X64Push #8 %s(rs,start)", vreg(s, p0)),
		"X64Push #16 #5",
		vreg(s, call) + "(fixed=0) = ArchCallCodeObject #i0",
		fmt.Sprintf("ArchRet #0 %s(fixed=0)", vreg(s, call)),
	}, blockText(seq, 0))

	assert.Equal(t, 3, s.MaxPushedArgumentCount())
	assert.False(t, s.IsUsed(c5), "pushed as an immediate")

	calls := findInstrs(seq, asm.ArchCallCodeObject)
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Call)

	assert.Equal(t, "callee", seq.Immediates[0].Name)
}

func TestTailCallShiftsStackArguments(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	target := g.New(ir.HeapConstant, ir.HeapObject{Name: "callee", Handle: 7, RootIndex: -1})

	d := &ir.CallDescriptor{
		Name:   "callee",
		Kind:   ir.CallCodeObject,
		Target: ir.AnyRegisterLocation(ir.TypePointer),
		Params: []ir.LinkageLocation{ir.CallerSlotLocation(0, ir.TypeInt64), ir.CallerSlotLocation(1, ir.TypeInt64)},
	}

	tc := g.New(ir.TailCall, d, target, p0, p1)

	fn := singleBlock("tail", g, ir.ControlTailCall, tc, testLinkage([]ir.MachineType{ir.TypeInt64, ir.TypeInt64}))

	assert.Equal(t, 2, d.StackParameterDelta(fn.Linkage.Incoming))

	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	text := blockText(seq, 0)
	require.Len(t, text, 5)

	b0 := seq.InstructionBlockAt(0)
	ra := seq.Instrs[b0.CodeStart+2]
	require.Equal(t, asm.ArchNop, ra.Opcode())
	require.Len(t, ra.Outputs, 1)

	tmp := fmt.Sprintf("v%d", ra.Outputs[0].VReg)

	assert.Equal(t, []string{
		vreg(s, p0) + "(fixed=0) = ArchNop",
		vreg(s, p1) + "(fixed=1) = ArchNop",
		tmp + "(fixed_slot=1) = ArchNop",
		"ArchPrepareTailCall",
		fmt.Sprintf("ArchTailCallCodeObject #i0 %s(fixed_slot=1) %s(fixed_slot=0) %s(fixed_slot=3) #1 #3", vreg(s, p0), vreg(s, p1), tmp),
	}, text)

	assert.Equal(t, 2, s.MaxPushedArgumentCount())
}

func TestStoreWithWriteBarrier(t *testing.T) {
	build := func(rep ir.Representation) (*ir.Func, ir.Node) {
		g := ir.NewGraph()

		p0 := g.New(ir.Parameter, 0)
		p1 := g.New(ir.Parameter, 1)
		off := g.New(ir.Int64Constant, int64(8))
		st := g.New(ir.Store, ir.StoreRepresentation{Rep: rep, WriteBarrier: ir.FullWriteBarrier}, p0, off, p1)
		zero := g.New(ir.Int32Constant, int32(0))
		ret := g.New(ir.Return, nil, zero)

		return singleBlock("store", g, ir.ControlReturn, ret, testLinkage([]ir.MachineType{ir.TypeTaggedPointer, ir.TypeAnyTagged})), st
	}

	fn, _ := build(ir.RepTagged)
	s := selectFunc(t, testConfig(), fn)

	stores := findInstrs(s.Sequence(), asm.ArchStoreWithWriteBarrier)
	require.Len(t, stores, 1)

	in := stores[0]
	assert.Equal(t, x64.MRI, in.Code.Mode())
	assert.Equal(t, RecordWriteValueIsAny|AccessNormal<<2, in.Code.Misc())
	assert.Len(t, in.Temps, 2)

	require.Len(t, in.Inputs, 3)
	assert.Equal(t, asm.UsedAtEnd, in.Inputs[0].Life)
	assert.Equal(t, asm.Immediate64(8), in.Inputs[1])
	assert.Equal(t, asm.UsedAtEnd, in.Inputs[2].Life)

	fn, _ = build(ir.RepWord64)
	s = newSelector(t, testConfig(), fn)

	err := s.SelectInstructions()
	assert.ErrorIs(t, err, BailoutCodeGenerationFailed)
	assert.True(t, s.Failed())
}

func TestFoldedDisplacementRange(t *testing.T) {
	build := func(base, disp int64) (*Selector, ir.Node) {
		g := ir.NewGraph()

		p0 := g.New(ir.Parameter, 0)
		add := g.New(ir.Int64Add, nil, p0, g.New(ir.Int64Constant, disp))
		ld := g.New(ir.Load, ir.TypeInt64, add, g.New(ir.Int64Constant, base))

		fn := singleBlock("fold", g, ir.ControlNone, ir.Invalid, testLinkage([]ir.MachineType{ir.TypeInt64}))

		return newSelector(t, testConfig(), fn), ld
	}

	s, ld := build(math.MinInt32+2, -1)

	mode, ins := s.Arch().(*X64).GetEffectiveAddressMemoryOperand(s, ld, nil, false)
	assert.Equal(t, x64.MRI, mode)
	require.Len(t, ins, 2)
	assert.Equal(t, asm.Immediate(math.MinInt32+1), ins[1])

	s, ld = build(math.MinInt32+1, -1)

	mode, ins = s.Arch().(*X64).GetEffectiveAddressMemoryOperand(s, ld, nil, false)
	assert.Equal(t, x64.MR1I, mode, "INT32_MIN is not folded")
	assert.Len(t, ins, 3)
}

func TestSelectKeepsValuesLive(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	p2 := g.New(ir.Parameter, 2)
	cmp := g.New(ir.Int32LessThan, nil, p0, p1)
	sel := g.New(ir.Word32Select, nil, cmp, p1, p2)
	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero, sel)

	fn := singleBlock("select", g, ir.ControlReturn, ret, testLinkage([]ir.MachineType{ir.TypeInt32, ir.TypeInt32, ir.TypeInt32}, ir.TypeInt32))

	s := selectFunc(t, testConfig(), fn)

	var in *asm.Instruction

	for _, x := range s.Sequence().Instrs {
		if x.Code.FlagsMode() == asm.FlagsSelect {
			in = x
		}
	}

	require.NotNil(t, in)

	n := len(in.Inputs)
	require.GreaterOrEqual(t, n, 2)

	assert.Equal(t, asm.Unallocated(asm.PolicyRegister, asm.UsedAtEnd, s.VReg(p2)), in.Inputs[n-2])
	assert.Equal(t, asm.Unallocated(asm.PolicyRegisterOrSlot, asm.UsedAtEnd, s.VReg(p1)), in.Inputs[n-1])
	assert.Equal(t, []asm.Operand{asm.SameAsInput(n-2, s.VReg(sel))}, in.Outputs)
}

func TestAtomicBlocksLoadFolding(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	c8 := g.New(ir.Int64Constant, int64(8))
	c16 := g.New(ir.Int64Constant, int64(16))
	ld := g.New(ir.Load, ir.TypeInt64, p0, c8)
	xadd := g.New(ir.Word64AtomicAdd, ir.TypeUint64, p0, c16, p1)
	add := g.New(ir.Int64Add, nil, p1, ld)
	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero, add)

	fn := singleBlock("atomic", g, ir.ControlReturn, ret, testLinkage([]ir.MachineType{ir.TypePointer, ir.TypeInt64}, ir.TypeInt64))

	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	assert.Equal(t, 0, s.EffectLevel(ld))
	assert.Equal(t, 0, s.EffectLevel(xadd))
	assert.Equal(t, 1, s.EffectLevel(add))

	assert.True(t, s.IsUsed(xadd), "atomics are never eliminated")
	assert.True(t, s.IsDefined(ld), "atomic op in between")
	assert.Len(t, findInstrs(seq, x64.Movq), 1)

	xs := findInstrs(seq, x64.AtomicAddWord64)
	require.Len(t, xs, 1)

	in := xs[0]
	assert.Equal(t, x64.MRI, in.Code.Mode())
	assert.Equal(t, []asm.Operand{asm.Fixed(asm.PolicyFixedRegister, int(x64.RAX), s.VReg(xadd))}, in.Outputs)

	require.Len(t, in.Inputs, 3)
	assert.Equal(t, asm.Unallocated(asm.PolicyRegister, asm.UsedAtEnd, s.VReg(p1)), in.Inputs[0])
	assert.Equal(t, asm.Unallocated(asm.PolicyRegister, asm.UsedAtEnd, s.VReg(p0)), in.Inputs[1])
	assert.Equal(t, asm.Immediate64(16), in.Inputs[2])
	assert.Len(t, in.Temps, 1)

	assert.Equal(t, ir.RepWord64, seq.Representation(s.VReg(xadd)))
}

func TestAtomicCompareExchange(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	p2 := g.New(ir.Parameter, 2)
	p3 := g.New(ir.Parameter, 3)
	cas := g.New(ir.Word32AtomicCompareExchange, ir.TypeInt32, p0, p1, p2, p3)
	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero, cas)

	fn := singleBlock("cas", g, ir.ControlReturn, ret, testLinkage([]ir.MachineType{ir.TypePointer, ir.TypeInt64, ir.TypeInt32, ir.TypeInt32}, ir.TypeInt32))

	s := selectFunc(t, testConfig(), fn)

	xs := findInstrs(s.Sequence(), x64.AtomicCompareExchangeWord32)
	require.Len(t, xs, 1)

	in := xs[0]
	assert.Equal(t, x64.MR1, in.Code.Mode())
	assert.Equal(t, []asm.Operand{asm.Fixed(asm.PolicyFixedRegister, int(x64.RAX), s.VReg(cas))}, in.Outputs)

	require.Len(t, in.Inputs, 4)
	assert.Equal(t, asm.Fixed(asm.PolicyFixedRegister, int(x64.RAX), s.VReg(p2)), in.Inputs[0])
	assert.Equal(t, s.VReg(p3), in.Inputs[1].VReg)
	assert.Equal(t, s.VReg(p0), in.Inputs[2].VReg)
	assert.Equal(t, s.VReg(p1), in.Inputs[3].VReg)
}

func TestAtomicNarrowTypes(t *testing.T) {
	build := func(op ir.Opcode, typ ir.MachineType) *ir.Func {
		g := ir.NewGraph()

		p0 := g.New(ir.Parameter, 0)
		p1 := g.New(ir.Parameter, 1)
		c0 := g.New(ir.Int64Constant, int64(0))
		g.New(op, typ, p0, c0, p1)
		zero := g.New(ir.Int32Constant, int32(0))
		ret := g.New(ir.Return, nil, zero)

		return singleBlock("narrow", g, ir.ControlReturn, ret, testLinkage([]ir.MachineType{ir.TypePointer, ir.TypeInt32}))
	}

	for _, tc := range []struct {
		op   ir.Opcode
		typ  ir.MachineType
		want asm.ArchOpcode
	}{
		{ir.Word32AtomicExchange, ir.TypeInt8, x64.AtomicExchangeInt8},
		{ir.Word32AtomicExchange, ir.TypeUint16, x64.AtomicExchangeUint16},
		{ir.Word64AtomicExchange, ir.TypeUint8, x64.AtomicExchangeUint8},
		{ir.Word32AtomicOr, ir.TypeInt16, x64.AtomicOrInt16},
		{ir.Word64AtomicXor, ir.TypeUint32, x64.AtomicXorWord32},
		{ir.Word32AtomicStore, ir.TypeUint8, x64.AtomicStoreWord8},
	} {
		s := selectFunc(t, testConfig(), build(tc.op, tc.typ))
		assert.Len(t, findInstrs(s.Sequence(), tc.want), 1, "%v %v", tc.op, tc.typ)
	}

	for _, tc := range []struct {
		op  ir.Opcode
		typ ir.MachineType
	}{
		{ir.Word64AtomicExchange, ir.TypeInt8},
		{ir.Word32AtomicAdd, ir.TypeInt64},
		{ir.Word32AtomicStore, ir.TypeUint64},
	} {
		s := newSelector(t, testConfig(), build(tc.op, tc.typ))

		err := s.SelectInstructions()
		assert.ErrorIs(t, err, BailoutCodeGenerationFailed, "%v %v", tc.op, tc.typ)
	}
}
