package back

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
	"github.com/slowlang/isel/compiler/set"
)

type (
	// Selector lowers one function. It is not reused.
	Selector struct {
		cfg  Config
		arch Arch

		fn    *ir.Func
		g     *ir.Graph
		sched *ir.Schedule
		link  *ir.Linkage
		frame *asm.Frame
		seq   *asm.Sequence

		table Table

		// instrs is filled back to front per block and copied
		// into the sequence in the final pass.
		instrs []*asm.Instruction

		blockStart []int
		blockEnd   []int

		defined set.Bits[ir.Node]
		used    set.Bits[ir.Node]

		effect  []int
		vregs   []asm.VReg
		renames renameTable

		cur       *ir.Block
		curEffect int
		failed    bool

		positions map[*asm.Instruction]ir.SourcePosition
		states    map[stateKey]*cachedState

		maxPushed int

		ctx context.Context
	}

	BailoutReason string
)

const BailoutCodeGenerationFailed BailoutReason = "code generation failed"

func (r BailoutReason) Error() string { return string(r) }

// Select runs instruction selection over fn.
func Select(ctx context.Context, cfg Config, fn *ir.Func, frame *asm.Frame) (seq *asm.Sequence, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "select", "func", fn.Name, "arch", cfg.Arch, "features", cfg.Features)
	defer tr.Finish("err", &err)

	err = fn.Check()
	if err != nil {
		return nil, errors.Wrap(err, "check func")
	}

	a, err := NewArch(cfg.Arch, cfg.Features)
	if err != nil {
		return nil, err
	}

	s := New(ctx, cfg, a, fn, frame)

	err = s.SelectInstructions()
	if err != nil {
		return nil, err
	}

	return s.seq, nil
}

func New(ctx context.Context, cfg Config, a Arch, fn *ir.Func, frame *asm.Frame) *Selector {
	n := fn.Graph.Len()

	s := &Selector{
		cfg:   cfg,
		arch:  a,
		fn:    fn,
		g:     fn.Graph,
		sched: fn.Schedule,
		link:  fn.Linkage,
		frame: frame,
		seq:   asm.NewSequence(fn.Schedule),

		blockStart: make([]int, len(fn.Schedule.Blocks)),
		blockEnd:   make([]int, len(fn.Schedule.Blocks)),

		defined: set.MakeBits[ir.Node](n),
		used:    set.MakeBits[ir.Node](n),

		effect: make([]int, n),
		vregs:  make([]asm.VReg, n),

		positions: map[*asm.Instruction]ir.SourcePosition{},
		states:    map[stateKey]*cachedState{},

		ctx: ctx,
	}

	for i := range s.vregs {
		s.vregs[i] = asm.InvalidVReg
	}

	s.table = genericTable()
	a.Visitors(&s.table)

	return s
}

func (s *Selector) Sequence() *asm.Sequence { return s.seq }
func (s *Selector) Graph() *ir.Graph        { return s.g }
func (s *Selector) Schedule() *ir.Schedule  { return s.sched }
func (s *Selector) Linkage() *ir.Linkage    { return s.link }
func (s *Selector) Frame() *asm.Frame       { return s.frame }
func (s *Selector) Arch() Arch              { return s.arch }
func (s *Selector) Config() *Config         { return &s.cfg }

func (s *Selector) Failed() bool { return s.failed }

// MaxPushedArgumentCount is the largest number of stack arguments
// a call in the function pushes.
func (s *Selector) MaxPushedArgumentCount() int { return s.maxPushed }

func (s *Selector) SelectInstructions() (err error) {
	tr := tlog.SpanFromContext(s.ctx)

	blocks := s.sched.Blocks

	for _, b := range blocks {
		if !b.LoopHeader {
			continue
		}

		for _, n := range b.Nodes {
			if s.g.Op[n] != ir.Phi {
				continue
			}

			for _, x := range s.g.Value[n] {
				s.MarkAsUsed(x)
			}
		}
	}

	for i := len(blocks) - 1; i >= 0; i-- {
		s.visitBlock(blocks[i])

		if s.failed {
			tr.Printw("selection failed", "block", blocks[i].RPO)

			return BailoutCodeGenerationFailed
		}
	}

	for _, b := range blocks {
		ib := s.seq.InstructionBlockAt(b.RPO)

		for _, p := range ib.Phis {
			s.updateRenamesInPhi(p)
		}

		end := s.blockEnd[b.RPO]
		start := s.blockStart[b.RPO]

		s.seq.StartBlock(b.RPO)

		for i := start - 1; i >= end; i-- {
			in := s.instrs[i]

			s.updateRenames(in)
			idx := s.seq.AddInstruction(in)

			if p, ok := s.positions[in]; ok {
				s.seq.SetSourcePosition(idx, p)
			}
		}

		s.seq.EndBlock(b.RPO)
	}

	if tr.If("dump_sequence") {
		tr.Printw("selected", "instrs", len(s.seq.Instrs), "defined", s.defined, "used_nodes", s.used.Len())

		for i, in := range s.seq.Instrs {
			tr.Printw("instr", "i", i, "in", in)
		}
	}

	if s.cfg.Verify {
		err = s.seq.Validate()
		if err != nil {
			return errors.Wrap(err, "verify")
		}
	}

	return nil
}

func (s *Selector) visitBlock(b *ir.Block) {
	tr := tlog.SpanFromContext(s.ctx).V("block")

	s.cur = b

	level := 0

	for _, n := range b.Nodes {
		s.effect[n] = level

		if s.g.Op[n].BumpsEffectLevel() {
			level++
		}
	}

	if b.ControlInput != ir.Invalid {
		s.effect[b.ControlInput] = level
	}

	blockStart := len(s.instrs)
	start := blockStart

	finish := func(n ir.Node) bool {
		if s.failed {
			return false
		}

		if len(s.instrs) == start {
			return true
		}

		reverse(s.instrs[start:])

		if n != ir.Invalid && s.sourcePositionUsed(n) {
			if p, ok := s.fn.Position(n); ok {
				s.positions[s.instrs[len(s.instrs)-1]] = p
			}
		}

		start = len(s.instrs)

		return true
	}

	s.curEffect = level
	s.visitControl(b)

	ok := finish(b.ControlInput)

	for i := len(b.Nodes) - 1; ok && i >= 0; i-- {
		n := b.Nodes[i]

		if !s.IsUsed(n) || s.IsDefined(n) {
			continue
		}

		s.curEffect = s.effect[n]
		s.visitNode(n)

		ok = finish(n)
	}

	if len(s.instrs) == blockStart {
		s.Emit(asm.MakeCode(asm.ArchNop), asm.Operand{})
	}

	s.blockStart[b.RPO] = len(s.instrs)
	s.blockEnd[b.RPO] = blockStart

	if tr.If("dump_block") {
		tr.Printw("block", "rpo", b.RPO, "start", blockStart, "end", len(s.instrs), "effect", level)

		for i := len(s.instrs) - 1; i >= blockStart; i-- {
			tr.Printw("instr", "in", s.instrs[i])
		}
	}
}

func (s *Selector) visitControl(b *ir.Block) {
	n := b.ControlInput

	switch b.Control {
	case ir.ControlNone:
	case ir.ControlGoto:
		s.VisitGoto(b.Succ[0])
	case ir.ControlCall:
		s.VisitCall(n, s.sched.BlockAt(b.Succ[1]))
		s.VisitGoto(b.Succ[0])
	case ir.ControlTailCall:
		s.VisitTailCall(n)
	case ir.ControlBranch:
		t, f := b.Succ[0], b.Succ[1]
		if t == f {
			s.VisitGoto(t)
			break
		}

		s.VisitBranch(n, s.sched.BlockAt(t).RPO, s.sched.BlockAt(f).RPO)
	case ir.ControlSwitch:
		sw := s.switchInfo(b)
		s.arch.VisitSwitch(s, n, sw)
	case ir.ControlReturn:
		s.VisitReturn(n)
	case ir.ControlDeoptimize:
		p := s.g.DeoptimizeParametersOf(n)
		s.VisitDeoptimize(p.Kind, p.Reason, n, p.Feedback, s.g.Input(n, 0))
	case ir.ControlThrow:
		s.VisitThrow(n)
	default:
		panic(errors.New("unexpected block control %v (B%d) at %v", b.Control, b.RPO, loc.Caller(1)))
	}
}

func (s *Selector) visitNode(n ir.Node) {
	if s.cfg.Safepoint != nil {
		s.cfg.Safepoint()
	}

	op := s.g.Op[n]
	v := s.table[op]

	if v.Visit == nil {
		panic(errors.New("unhandled opcode %v (node %d) at %v", op, n, loc.Caller(1)))
	}

	if v.Rep != ir.RepNone {
		s.MarkAsRepresentation(v.Rep, n)
	}

	v.Visit(s, n)
}

func (s *Selector) sourcePositionUsed(n ir.Node) bool {
	switch s.cfg.SourcePositions {
	case PositionsNone:
		return false
	case PositionsAll:
		return true
	}

	switch s.g.Op[n] {
	case ir.Call, ir.TrapIf, ir.TrapUnless, ir.ProtectedLoad, ir.ProtectedStore:
		return true
	}

	return false
}

// CurrentBlock is the block being visited.
func (s *Selector) CurrentBlock() *ir.Block { return s.cur }

func (s *Selector) EffectLevel(n ir.Node) int { return s.effect[n] }

// EffectLevelFor is the level a compare consumed by cont observes.
// Branches are emitted with the block control.
func (s *Selector) EffectLevelFor(n ir.Node, cont *Continuation) int {
	if cont != nil && cont.IsBranch() && s.cur.ControlInput != ir.Invalid {
		return s.effect[s.cur.ControlInput]
	}

	return s.effect[n]
}

// CanCover reports whether node can be folded into the instruction
// selected for user.
func (s *Selector) CanCover(user, node ir.Node) bool {
	if s.sched.Block(node) != s.cur {
		return false
	}

	if s.g.Op[node].IsPure() {
		return s.g.OwnedBy(node, user)
	}

	if s.effect[node] != s.curEffect {
		return false
	}

	for _, u := range s.g.Uses(node) {
		if u.User != user && u.Kind == ir.ValueEdge {
			return false
		}
	}

	return true
}

// IsOnlyUserOfNodeInSameBlock checks that user is the only reader
// of node scheduled in their common block.
func (s *Selector) IsOnlyUserOfNodeInSameBlock(user, node ir.Node) bool {
	bu := s.sched.Block(user)
	if bu == nil || bu != s.sched.Block(node) {
		return false
	}

	for _, u := range s.g.Uses(node) {
		if u.User != user && s.sched.Block(u.User) == bu {
			return false
		}
	}

	return true
}

func (s *Selector) IsDefined(n ir.Node) bool { return s.defined.IsSet(n) }

func (s *Selector) MarkAsDefined(n ir.Node) { s.defined.Set(n) }

// IsUsed is always true for nodes that may not be eliminated.
func (s *Selector) IsUsed(n ir.Node) bool {
	op := s.g.Op[n]

	if op == ir.Retain || !op.IsEliminatable() {
		return true
	}

	return s.used.IsSet(n)
}

func (s *Selector) MarkAsUsed(n ir.Node) {
	if n == ir.Invalid {
		return
	}

	s.used.Set(n)
}

func (s *Selector) IsLive(n ir.Node) bool {
	return !s.IsDefined(n) && s.IsUsed(n)
}

// VReg returns the virtual register of n, assigning one on first request.
func (s *Selector) VReg(n ir.Node) asm.VReg {
	v := s.vregs[n]

	if v == asm.InvalidVReg {
		v = s.seq.NextVirtualRegister()
		s.vregs[n] = v
	}

	return v
}

func (s *Selector) MarkAsRepresentation(rep ir.Representation, n ir.Node) {
	s.seq.MarkAsRepresentation(rep, s.VReg(n))
}

func (s *Selector) MarkOperandAsRepresentation(rep ir.Representation, o asm.Operand) {
	if !o.HasVReg() || o.VReg == asm.InvalidVReg {
		return
	}

	s.seq.MarkAsRepresentation(rep, o.VReg)
}

// EmitIdentity makes n an alias of its first input. No code is emitted.
func (s *Selector) EmitIdentity(n ir.Node) {
	x := s.g.Input(n, 0)

	s.MarkAsUsed(x)
	s.MarkAsDefined(n)
	s.SetRename(n, x)
}

func (s *Selector) SetRename(n, to ir.Node) {
	v := s.VReg(n)

	s.renames.set(v, s.VReg(to))
}

// Rename follows the rename chain of v.
func (s *Selector) Rename(v asm.VReg) asm.VReg {
	return s.renames.resolve(v)
}

func (s *Selector) tryRename(o *asm.Operand) {
	if !o.IsUnallocated() {
		return
	}

	if r := s.Rename(o.VReg); r != o.VReg {
		*o = o.WithVReg(r)
	}
}

func (s *Selector) updateRenames(in *asm.Instruction) {
	for i := range in.Inputs {
		s.tryRename(&in.Inputs[i])
	}
}

func (s *Selector) updateRenamesInPhi(p *asm.PhiInstruction) {
	for i, v := range p.Inputs {
		if r := s.Rename(v); r != v {
			p.RenameInput(i, r)
		}
	}
}

func (s *Selector) fail(reason string, kvs ...any) {
	if !s.failed {
		tlog.SpanFromContext(s.ctx).Printw("selection bailout", append([]any{"reason", reason, "from", loc.Caller(2)}, kvs...)...)
	}

	s.failed = true
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
