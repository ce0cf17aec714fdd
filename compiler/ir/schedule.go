package ir

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

type (
	BlockID int
	Control uint8

	Block struct {
		ID  BlockID
		RPO int

		Nodes []Node

		Control      Control
		ControlInput Node

		Succ []BlockID
		Pred []BlockID

		LoopHeader bool
		Deferred   bool
	}

	// Schedule is the external block order. Blocks are kept in RPO.
	Schedule struct {
		Blocks []*Block

		nodeBlock []BlockID
	}
)

const (
	ControlNone Control = iota
	ControlGoto
	ControlCall
	ControlBranch
	ControlSwitch
	ControlReturn
	ControlDeoptimize
	ControlTailCall
	ControlThrow
)

const NoBlock BlockID = -1

var controlNames = [...]string{
	ControlNone:       "none",
	ControlGoto:       "goto",
	ControlCall:       "call",
	ControlBranch:     "branch",
	ControlSwitch:     "switch",
	ControlReturn:     "return",
	ControlDeoptimize: "deoptimize",
	ControlTailCall:   "tailcall",
	ControlThrow:      "throw",
}

func NewSchedule() *Schedule {
	return &Schedule{}
}

// NewBlock appends a block. Blocks must be created in RPO order.
func (s *Schedule) NewBlock() *Block {
	b := &Block{
		ID:           BlockID(len(s.Blocks)),
		RPO:          len(s.Blocks),
		ControlInput: Invalid,
	}

	s.Blocks = append(s.Blocks, b)

	return b
}

func (s *Schedule) Block(n Node) *Block {
	if int(n) >= len(s.nodeBlock) || n < 0 {
		return nil
	}

	id := s.nodeBlock[n]
	if id == NoBlock {
		return nil
	}

	return s.Blocks[id]
}

func (s *Schedule) BlockAt(id BlockID) *Block {
	return s.Blocks[id]
}

func (s *Schedule) AddNode(b *Block, ns ...Node) {
	for _, n := range ns {
		s.setBlock(n, b.ID)
		b.Nodes = append(b.Nodes, n)
	}
}

func (s *Schedule) AddGoto(b, to *Block) {
	b.Control = ControlGoto
	s.link(b, to)
}

func (s *Schedule) AddBranch(b *Block, br Node, t, f *Block) {
	s.setControl(b, ControlBranch, br)
	s.link(b, t)
	s.link(b, f)
}

// AddSwitch links case successors then the default successor last.
func (s *Schedule) AddSwitch(b *Block, sw Node, succ ...*Block) {
	s.setControl(b, ControlSwitch, sw)

	for _, x := range succ {
		s.link(b, x)
	}
}

// AddCall links the success then the exception handler block.
func (s *Schedule) AddCall(b *Block, call Node, success, exception *Block) {
	s.setControl(b, ControlCall, call)
	s.link(b, success)
	s.link(b, exception)
}

func (s *Schedule) AddReturn(b *Block, ret Node) {
	s.setControl(b, ControlReturn, ret)
}

func (s *Schedule) AddTailCall(b *Block, call Node) {
	s.setControl(b, ControlTailCall, call)
}

func (s *Schedule) AddDeoptimize(b *Block, deopt Node) {
	s.setControl(b, ControlDeoptimize, deopt)
}

func (s *Schedule) AddThrow(b *Block, th Node) {
	s.setControl(b, ControlThrow, th)
}

func (s *Schedule) setControl(b *Block, c Control, n Node) {
	b.Control = c
	b.ControlInput = n

	s.setBlock(n, b.ID)
}

func (s *Schedule) link(from, to *Block) {
	from.Succ = append(from.Succ, to.ID)
	to.Pred = append(to.Pred, from.ID)
}

func (s *Schedule) setBlock(n Node, b BlockID) {
	for int(n) >= len(s.nodeBlock) {
		s.nodeBlock = append(s.nodeBlock, NoBlock)
	}

	s.nodeBlock[n] = b
}

// Check verifies the schedule shape the selector relies on.
func (s *Schedule) Check(g *Graph) error {
	for i, b := range s.Blocks {
		if b.RPO != i || int(b.ID) != i {
			return errors.New("block %d: rpo %d, id %d", i, b.RPO, b.ID)
		}

		switch b.Control {
		case ControlGoto:
			if len(b.Succ) != 1 {
				return errors.New("block %d: goto with %d successors", i, len(b.Succ))
			}
		case ControlBranch, ControlCall:
			if len(b.Succ) != 2 {
				return errors.New("block %d: %v with %d successors", i, b.Control, len(b.Succ))
			}
		case ControlSwitch:
			if len(b.Succ) < 1 {
				return errors.New("block %d: switch without default", i)
			}
		}

		if b.Control > ControlGoto && b.ControlInput == Invalid {
			return errors.New("block %d: %v without control input", i, b.Control)
		}

		if b.LoopHeader && len(b.Pred) < 2 {
			return errors.New("block %d: loop header with %d predecessors", i, len(b.Pred))
		}

		for _, n := range b.Nodes {
			if int(n) >= g.Len() {
				return errors.New("block %d: node %d out of graph", i, n)
			}
		}
	}

	return nil
}

func (c Control) String() string {
	if int(c) < len(controlNames) {
		return controlNames[c]
	}

	return "control?"
}

func (b *Block) TlogAppend(buf []byte) []byte {
	var e tlwire.Encoder

	buf = e.AppendMap(buf, 4)
	buf = e.AppendKeyInt(buf, "rpo", b.RPO)
	buf = e.AppendKeyString(buf, "control", b.Control.String())
	buf = e.AppendKeyInt(buf, "nodes", len(b.Nodes))
	buf = e.AppendKeyInt(buf, "succ", len(b.Succ))

	return buf
}
