package asm

import (
	"github.com/slowlang/isel/compiler/ir"
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

type (
	InstructionBlock struct {
		RPO int

		// CodeStart and CodeEnd bound the block's instructions, [start, end).
		CodeStart int
		CodeEnd   int

		Phis []*PhiInstruction

		Succ []int
		Pred []int

		LoopHeader bool
		Deferred   bool
	}

	PhiInstruction struct {
		VReg   VReg
		Inputs []VReg
	}

	// Sequence is the output of instruction selection.
	Sequence struct {
		Instrs []*Instruction
		Blocks []*InstructionBlock

		Deopts     []DeoptEntry
		Immediates []Constant
		Constants  map[VReg]Constant
		Reps       []ir.Representation
		Positions  map[int]ir.SourcePosition

		next VReg
		cur  *InstructionBlock
	}
)

func NewSequence(s *ir.Schedule) *Sequence {
	q := &Sequence{
		Constants: map[VReg]Constant{},
		Positions: map[int]ir.SourcePosition{},
	}

	for _, b := range s.Blocks {
		ib := &InstructionBlock{
			RPO:        b.RPO,
			CodeStart:  -1,
			CodeEnd:    -1,
			LoopHeader: b.LoopHeader,
			Deferred:   b.Deferred,
		}

		for _, x := range b.Succ {
			ib.Succ = append(ib.Succ, s.BlockAt(x).RPO)
		}

		for _, x := range b.Pred {
			ib.Pred = append(ib.Pred, s.BlockAt(x).RPO)
		}

		q.Blocks = append(q.Blocks, ib)
	}

	return q
}

func NewPhi(v VReg, inputs int) *PhiInstruction {
	p := &PhiInstruction{VReg: v, Inputs: make([]VReg, inputs)}

	for i := range p.Inputs {
		p.Inputs[i] = InvalidVReg
	}

	return p
}

func (p *PhiInstruction) SetInput(i int, v VReg) { p.Inputs[i] = v }

func (p *PhiInstruction) RenameInput(i int, v VReg) { p.Inputs[i] = v }

func (s *Sequence) NextVirtualRegister() VReg {
	v := s.next
	s.next++

	return v
}

func (s *Sequence) VirtualRegisterCount() int { return int(s.next) }

func (s *Sequence) MarkAsRepresentation(rep ir.Representation, v VReg) {
	for int(v) >= len(s.Reps) {
		s.Reps = append(s.Reps, ir.RepNone)
	}

	s.Reps[v] = rep
}

// Representation defaults to tagged for unmarked registers.
func (s *Sequence) Representation(v VReg) ir.Representation {
	if int(v) >= len(s.Reps) || s.Reps[v] == ir.RepNone {
		return ir.RepTagged
	}

	return s.Reps[v]
}

// AddImmediate inlines integers without relocation and labels,
// other constants go to the pool.
func (s *Sequence) AddImmediate(c Constant) Operand {
	switch {
	case c.Kind == ConstInt32 && c.Reloc == ir.RelocNone:
		return Immediate(int32(c.Value))
	case c.Kind == ConstInt64 && c.Reloc == ir.RelocNone:
		return Immediate64(c.Value)
	case c.Kind == ConstRPO:
		return Label(int(c.Value))
	}

	idx := len(s.Immediates)
	s.Immediates = append(s.Immediates, c)

	return IndexedImmediate(idx)
}

// ImmediateValue resolves an immediate operand to its constant.
func (s *Sequence) ImmediateValue(o Operand) Constant {
	switch o.Imm {
	case ImmInline32:
		return Int32Constant(int32(o.Value))
	case ImmInline64:
		return Int64Constant(o.Value)
	case ImmRPO:
		return Constant{Kind: ConstRPO, Value: o.Value}
	}

	return s.Immediates[o.Value]
}

func (s *Sequence) AddConstant(v VReg, c Constant) {
	s.Constants[v] = c
}

func (s *Sequence) Constant(v VReg) (Constant, bool) {
	c, ok := s.Constants[v]
	return c, ok
}

func (s *Sequence) AddDeoptimizationEntry(e DeoptEntry) int {
	s.Deopts = append(s.Deopts, e)

	return len(s.Deopts) - 1
}

func (s *Sequence) InstructionBlockAt(rpo int) *InstructionBlock {
	return s.Blocks[rpo]
}

func (s *Sequence) StartBlock(rpo int) {
	b := s.Blocks[rpo]
	b.CodeStart = len(s.Instrs)
	s.cur = b
}

func (s *Sequence) EndBlock(rpo int) {
	b := s.Blocks[rpo]
	if s.cur != b {
		panic(errors.New("end block B%d: block was not started", rpo))
	}

	b.CodeEnd = len(s.Instrs)
	s.cur = nil
}

func (s *Sequence) AddInstruction(in *Instruction) int {
	if s.cur == nil {
		panic(errors.New("add instruction outside of a block: %v", in))
	}

	s.Instrs = append(s.Instrs, in)

	return len(s.Instrs) - 1
}

func (s *Sequence) SetSourcePosition(i int, p ir.SourcePosition) {
	s.Positions[i] = p
}

// Validate checks single assignment: every virtual register is defined
// once and every used register has a definition.
func (s *Sequence) Validate() error {
	defs := make(map[VReg]int, s.VirtualRegisterCount())

	def := func(v VReg, where int) error {
		if prev, ok := defs[v]; ok {
			return errors.New("v%d defined twice: at %d and %d", v, prev, where)
		}

		defs[v] = where

		return nil
	}

	for _, b := range s.Blocks {
		for _, p := range b.Phis {
			if err := def(p.VReg, -1-b.RPO); err != nil {
				return err
			}
		}
	}

	for i, in := range s.Instrs {
		for _, o := range in.Outputs {
			if !o.HasVReg() {
				continue
			}

			if err := def(o.VReg, i); err != nil {
				return err
			}
		}
	}

	use := func(v VReg, where int) error {
		if _, ok := defs[v]; ok {
			return nil
		}

		return errors.New("v%d used at %d but never defined", v, where)
	}

	for i, in := range s.Instrs {
		for _, o := range in.Inputs {
			if !o.HasVReg() {
				continue
			}

			if err := use(o.VReg, i); err != nil {
				return err
			}
		}
	}

	for _, b := range s.Blocks {
		for _, p := range b.Phis {
			for _, v := range p.Inputs {
				if err := use(v, -1-b.RPO); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (b *InstructionBlock) TlogAppend(buf []byte) []byte {
	var e tlwire.Encoder

	buf = e.AppendMap(buf, 4)
	buf = e.AppendKeyInt(buf, "rpo", b.RPO)
	buf = e.AppendKeyInt(buf, "start", b.CodeStart)
	buf = e.AppendKeyInt(buf, "end", b.CodeEnd)
	buf = e.AppendKeyInt(buf, "phis", len(b.Phis))

	return buf
}
