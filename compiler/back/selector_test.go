package back

import (
	"context"
	"fmt"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/format"
	"github.com/slowlang/isel/compiler/ir"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Features = Features{SSE41: true, POPCNT: true}
	cfg.Verify = true

	return cfg
}

// testLinkage passes params and returns in registers 0, 1, ...
func testLinkage(params []ir.MachineType, returns ...ir.MachineType) *ir.Linkage {
	d := &ir.CallDescriptor{
		Name:   "test",
		Kind:   ir.CallCodeObject,
		Target: ir.AnyRegisterLocation(ir.TypePointer),
	}

	for i, t := range params {
		d.Params = append(d.Params, ir.RegisterLocation(i, t))
	}

	for i, t := range returns {
		d.Returns = append(d.Returns, ir.RegisterLocation(i, t))
	}

	return &ir.Linkage{Incoming: d}
}

func newSelector(t testing.TB, cfg Config, fn *ir.Func) *Selector {
	t.Helper()

	a, err := NewArch(cfg.Arch, cfg.Features)
	require.NoError(t, err)

	return New(context.Background(), cfg, a, fn, asm.NewFrame(ir.FixedFrameSlots))
}

func selectFunc(t testing.TB, cfg Config, fn *ir.Func) *Selector {
	t.Helper()

	require.NoError(t, fn.Check())

	s := newSelector(t, cfg, fn)

	err := s.SelectInstructions()
	require.NoError(t, err)

	return s
}

func blockText(seq *asm.Sequence, rpo int) (r []string) {
	b := seq.InstructionBlockAt(rpo)

	for i := b.CodeStart; i < b.CodeEnd; i++ {
		r = append(r, seq.Instrs[i].String())
	}

	return r
}

func vreg(s *Selector, n ir.Node) string {
	return fmt.Sprintf("v%d", s.VReg(n))
}

// branchFunc is `if p0 < p1 { return } else { return }`.
func branchFunc() (fn *ir.Func, p0, p1 ir.Node) {
	g := ir.NewGraph()

	p0 = g.New(ir.Parameter, 0)
	p1 = g.New(ir.Parameter, 1)
	cmp := g.New(ir.Int32LessThan, nil, p0, p1)
	br := g.New(ir.Branch, ir.BranchNone, cmp)

	z0 := g.New(ir.Int32Constant, int32(0))
	r0 := g.New(ir.Return, nil, z0)
	z1 := g.New(ir.Int32Constant, int32(0))
	r1 := g.New(ir.Return, nil, z1)

	sched := ir.NewSchedule()
	b0, b1, b2 := sched.NewBlock(), sched.NewBlock(), sched.NewBlock()

	sched.AddNode(b0, p0, p1, cmp)
	sched.AddBranch(b0, br, b1, b2)

	sched.AddNode(b1, z0)
	sched.AddReturn(b1, r0)

	sched.AddNode(b2, z1)
	sched.AddReturn(b2, r1)

	fn = &ir.Func{
		Name:     "branch",
		Graph:    g,
		Schedule: sched,
		Linkage:  testLinkage([]ir.MachineType{ir.TypeInt32, ir.TypeInt32}),
	}

	return fn, p0, p1
}

// loopFunc counts p0 up until it reaches p1 and returns it.
func loopFunc() (fn *ir.Func, p0, phi, next ir.Node) {
	g := ir.NewGraph()

	p0 = g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	one := g.New(ir.Int32Constant, int32(1))
	zero := g.New(ir.Int32Constant, int32(0))

	phi = g.New(ir.Phi, ir.RepWord32, p0, ir.Invalid)
	next = g.New(ir.Int32Add, nil, phi, one)
	g.SetInput(phi, 1, next)

	cmp := g.New(ir.Int32LessThan, nil, next, p1)
	br := g.New(ir.Branch, ir.BranchNone, cmp)
	ret := g.New(ir.Return, nil, zero, next)

	sched := ir.NewSchedule()
	b0, b1, b2, b3 := sched.NewBlock(), sched.NewBlock(), sched.NewBlock(), sched.NewBlock()
	b1.LoopHeader = true

	sched.AddNode(b0, p0, p1)
	sched.AddGoto(b0, b1)

	sched.AddNode(b1, phi, one, next, cmp)
	sched.AddBranch(b1, br, b2, b3)

	sched.AddGoto(b2, b1)

	sched.AddNode(b3, zero)
	sched.AddReturn(b3, ret)

	fn = &ir.Func{
		Name:     "loop",
		Graph:    g,
		Schedule: sched,
		Linkage:  testLinkage([]ir.MachineType{ir.TypeInt32, ir.TypeInt32}, ir.TypeInt32),
	}

	return fn, p0, phi, next
}

func TestSelectCompareBranch(t *testing.T) {
	fn, p0, p1 := branchFunc()

	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	assert.Equal(t, []string{
		vreg(s, p0) + "(fixed=0) = ArchNop",
		vreg(s, p1) + "(fixed=1) = ArchNop",
		fmt.Sprintf("X64Cmp32 (branch lt) %s(r,start) %s(none,start) B1 B2", vreg(s, p0), vreg(s, p1)),
	}, blockText(seq, 0))

	assert.Equal(t, []string{"ArchRet #0"}, blockText(seq, 1))
	assert.Equal(t, []string{"ArchRet #0"}, blockText(seq, 2))

	if t.Failed() {
		t.Logf("sequence: %s", spew.Sdump(seq.Blocks))
	}
}

func TestSelectLoopPhi(t *testing.T) {
	fn, p0, phi, next := loopFunc()

	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	hdr := seq.InstructionBlockAt(1)
	require.Len(t, hdr.Phis, 1)

	p := hdr.Phis[0]
	assert.Equal(t, s.VReg(phi), p.VReg)
	assert.Equal(t, []asm.VReg{s.VReg(p0), s.VReg(next)}, p.Inputs)

	assert.Equal(t, ir.RepWord32, seq.Representation(p.VReg))
	assert.True(t, hdr.LoopHeader)
	assert.Equal(t, []int{0, 2}, hdr.Pred)

	for _, b := range seq.Blocks {
		assert.GreaterOrEqual(t, b.CodeEnd, b.CodeStart+1, "block B%d is empty", b.RPO)
	}

	// the goto back to the header
	assert.Equal(t, []string{"ArchJmp B1"}, blockText(seq, 2))
}

// latchFunc counts p0 up in the loop body. The incremented value is
// only used by the header phi.
func latchFunc() (fn *ir.Func, p0, phi, next ir.Node) {
	g := ir.NewGraph()

	p0 = g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	one := g.New(ir.Int32Constant, int32(1))
	zero := g.New(ir.Int32Constant, int32(0))

	phi = g.New(ir.Phi, ir.RepWord32, p0, ir.Invalid)
	next = g.New(ir.Int32Add, nil, phi, one)
	g.SetInput(phi, 1, next)

	cmp := g.New(ir.Int32LessThan, nil, phi, p1)
	br := g.New(ir.Branch, ir.BranchNone, cmp)
	ret := g.New(ir.Return, nil, zero, phi)

	sched := ir.NewSchedule()
	b0, b1, b2, b3 := sched.NewBlock(), sched.NewBlock(), sched.NewBlock(), sched.NewBlock()
	b1.LoopHeader = true

	sched.AddNode(b0, p0, p1)
	sched.AddGoto(b0, b1)

	sched.AddNode(b1, phi, cmp)
	sched.AddBranch(b1, br, b2, b3)

	sched.AddNode(b2, one, next)
	sched.AddGoto(b2, b1)

	sched.AddNode(b3, zero)
	sched.AddReturn(b3, ret)

	fn = &ir.Func{
		Name:     "latch",
		Graph:    g,
		Schedule: sched,
		Linkage:  testLinkage([]ir.MachineType{ir.TypeInt32, ir.TypeInt32}, ir.TypeInt32),
	}

	return fn, p0, phi, next
}

func TestSelectLatchValue(t *testing.T) {
	fn, p0, phi, next := latchFunc()

	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	assert.True(t, s.IsDefined(next))

	hdr := seq.InstructionBlockAt(1)
	require.Len(t, hdr.Phis, 1)
	assert.Equal(t, []asm.VReg{s.VReg(p0), s.VReg(next)}, hdr.Phis[0].Inputs)

	latch := seq.InstructionBlockAt(2)
	require.Equal(t, 2, latch.CodeEnd-latch.CodeStart, "%v", blockText(seq, 2))

	in := seq.Instrs[latch.CodeStart]
	assert.Equal(t, x64.Lea32, in.Opcode())
	require.Len(t, in.Outputs, 1)
	assert.Equal(t, s.VReg(next), in.Outputs[0].VReg)
	require.NotEmpty(t, in.Inputs)
	assert.Equal(t, s.VReg(phi), in.Inputs[0].VReg)

	assert.Equal(t, "ArchJmp B1", seq.Instrs[latch.CodeStart+1].String())
}

func TestSelectKeepsDependencyOrder(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	p1 := g.New(ir.Parameter, 1)
	x := g.New(ir.Word32Xor, nil, p0, p1)
	y := g.New(ir.Word32Or, nil, x, p1)
	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero, y)

	sched := ir.NewSchedule()
	b0 := sched.NewBlock()
	sched.AddNode(b0, p0, p1, x, y, zero)
	sched.AddReturn(b0, ret)

	fn := &ir.Func{
		Name:     "order",
		Graph:    g,
		Schedule: sched,
		Linkage:  testLinkage([]ir.MachineType{ir.TypeInt32, ir.TypeInt32}, ir.TypeInt32),
	}

	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	def := func(n ir.Node) int {
		for i, in := range seq.Instrs {
			for _, o := range in.Outputs {
				if o.VReg == s.VReg(n) {
					return i
				}
			}
		}

		return -1
	}

	ip0, ix, iy := def(p0), def(x), def(y)

	require.True(t, ip0 >= 0 && ix >= 0 && iy >= 0, "p0 %d  x %d  y %d", ip0, ix, iy)
	assert.Less(t, ip0, ix)
	assert.Less(t, ix, iy)

	assert.Equal(t, x64.Xor32, seq.Instrs[ix].Opcode())
	assert.Equal(t, x64.Or32, seq.Instrs[iy].Opcode())
}

func TestSelectDeterministic(t *testing.T) {
	dump := func() string {
		fn, _, _, _ := loopFunc()

		s := selectFunc(t, testConfig(), fn)

		b, err := format.Format(context.Background(), nil, s.Sequence())
		require.NoError(t, err)

		return string(b)
	}

	a, b := dump(), dump()
	if a == b {
		return
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "first",
		ToFile:   "second",
		Context:  3,
	})
	require.NoError(t, err)

	t.Errorf("selection is not deterministic:\n%s", diff)
}

func TestSelectRename(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	bc := g.New(ir.BitcastTaggedToWord, nil, p0)
	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero, bc)

	sched := ir.NewSchedule()
	b0 := sched.NewBlock()
	sched.AddNode(b0, p0, bc, zero)
	sched.AddReturn(b0, ret)

	fn := &ir.Func{
		Name:     "rename",
		Graph:    g,
		Schedule: sched,
		Linkage:  testLinkage([]ir.MachineType{ir.TypeAnyTagged}, ir.TypePointer),
	}

	s := selectFunc(t, testConfig(), fn)

	assert.True(t, s.IsDefined(bc))
	assert.Equal(t, s.VReg(p0), s.Rename(s.VReg(bc)))

	assert.Equal(t, []string{
		vreg(s, p0) + "(fixed=0) = ArchNop",
		fmt.Sprintf("ArchRet #0 %s(fixed=0)", vreg(s, p0)),
	}, blockText(s.Sequence(), 0))
}

func TestRenameCycle(t *testing.T) {
	fn, p0, p1 := branchFunc()

	s := newSelector(t, testConfig(), fn)

	s.SetRename(p0, p1)
	s.SetRename(p1, p0)

	assert.Panics(t, func() { s.Rename(s.VReg(p0)) })
}

func TestEmitOperandLimits(t *testing.T) {
	for _, tc := range []struct {
		name             string
		outs, ins, temps int
	}{
		{"outputs", asm.MaxOutputCount, 0, 0},
		{"inputs", 0, asm.MaxInputCount, 0},
		{"temps", 0, 0, asm.MaxTempCount},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fn, _, _ := branchFunc()
			s := newSelector(t, testConfig(), fn)

			in := s.EmitN(asm.MakeCode(asm.ArchNop), make([]asm.Operand, tc.outs), make([]asm.Operand, tc.ins), make([]asm.Operand, tc.temps))
			assert.Nil(t, in)
			assert.True(t, s.Failed())
		})
	}

	fn, _, _ := branchFunc()
	s := newSelector(t, testConfig(), fn)

	in := s.EmitN(asm.MakeCode(asm.ArchNop), make([]asm.Operand, asm.MaxOutputCount-1), nil, nil)
	assert.NotNil(t, in)
	assert.False(t, s.Failed())
}

func TestSelectBailout(t *testing.T) {
	const n = 70000

	g := ir.NewGraph()

	c := g.New(ir.Int32Constant, int32(7))

	vals := make([]ir.Node, n)
	for i := range vals {
		vals[i] = c
	}

	sv := g.New(ir.StateValues, nil, vals...)
	f := g.New(ir.HeapConstant, ir.HeapObject{Name: "f", Handle: 1, RootIndex: -1})
	fs := g.New(ir.FrameState, &ir.FrameStateInfo{Function: "f", Parameters: n}, sv, ir.Invalid, ir.Invalid, ir.Invalid, f, ir.Invalid)
	deopt := g.New(ir.Deoptimize, ir.DeoptimizeParameters{Kind: ir.DeoptimizeEager, Reason: "too many values"}, fs)

	sched := ir.NewSchedule()
	b0 := sched.NewBlock()
	sched.AddNode(b0, c, sv, f, fs)
	sched.AddDeoptimize(b0, deopt)

	fn := &ir.Func{
		Name:     "huge",
		Graph:    g,
		Schedule: sched,
		Linkage:  testLinkage(nil),
	}

	seq, err := Select(context.Background(), testConfig(), fn, asm.NewFrame(ir.FixedFrameSlots))
	assert.ErrorIs(t, err, BailoutCodeGenerationFailed)
	assert.Nil(t, seq)
}

func TestSourcePositions(t *testing.T) {
	fn, _, _, next := loopFunc()

	fn.Positions = map[ir.Node]ir.SourcePosition{
		next: {Script: 1, Offset: 42},
	}

	for _, tc := range []struct {
		mode SourcePositionMode
		want int
	}{
		{PositionsAll, 1},
		{PositionsCalls, 0},
		{PositionsNone, 0},
	} {
		cfg := testConfig()
		cfg.SourcePositions = tc.mode

		s := selectFunc(t, cfg, fn)
		seq := s.Sequence()

		if !assert.Len(t, seq.Positions, tc.want, "mode %v", tc.mode) || tc.want == 0 {
			continue
		}

		for i, p := range seq.Positions {
			assert.Equal(t, ir.SourcePosition{Script: 1, Offset: 42}, p)
			assert.Equal(t, x64.Lea32, seq.Instrs[i].Opcode())
		}
	}
}

func TestBlockWithoutCodeGetsNop(t *testing.T) {
	g := ir.NewGraph()

	zero := g.New(ir.Int32Constant, int32(0))
	ret := g.New(ir.Return, nil, zero)

	sched := ir.NewSchedule()
	b0, b1 := sched.NewBlock(), sched.NewBlock()
	sched.AddNode(b0, zero)
	sched.AddReturn(b0, ret)

	fn := &ir.Func{
		Name:     "unreachable",
		Graph:    g,
		Schedule: sched,
		Linkage:  testLinkage(nil),
	}

	s := selectFunc(t, testConfig(), fn)

	assert.Equal(t, []string{"ArchRet #0"}, blockText(s.Sequence(), 0))
	assert.Equal(t, []string{"ArchNop"}, blockText(s.Sequence(), b1.RPO))
}
