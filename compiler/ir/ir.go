package ir

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

type (
	Node     int
	EdgeKind uint8

	// Graph keeps nodes in flat tables indexed by Node.
	// Inputs may point forward (loop phis), indices are stable.
	Graph struct {
		Op      []Opcode
		Param   []any
		Value   [][]Node
		Effect  [][]Node
		Control [][]Node

		uses [][]Use
	}

	Use struct {
		User  Node
		Index int
		Kind  EdgeKind
	}
)

const (
	Invalid Node = -1
)

const (
	ValueEdge EdgeKind = iota
	EffectEdge
	ControlEdge
)

func NewGraph() *Graph {
	return &Graph{}
}

func (g *Graph) Len() int { return len(g.Op) }

// New adds a node with value inputs only.
func (g *Graph) New(op Opcode, p any, in ...Node) Node {
	return g.NewNode(op, p, in, nil, nil)
}

// NewEffect adds a node taking one effect and one control input.
// Invalid effect or control is skipped.
func (g *Graph) NewEffect(op Opcode, p any, effect, control Node, in ...Node) Node {
	var e, c []Node

	if effect != Invalid {
		e = []Node{effect}
	}

	if control != Invalid {
		c = []Node{control}
	}

	return g.NewNode(op, p, in, e, c)
}

func (g *Graph) NewNode(op Opcode, p any, value, effect, control []Node) Node {
	id := Node(len(g.Op))

	g.Op = append(g.Op, op)
	g.Param = append(g.Param, p)
	g.Value = append(g.Value, value)
	g.Effect = append(g.Effect, effect)
	g.Control = append(g.Control, control)

	g.uses = nil

	return id
}

// SetInput replaces value input i. Used to close loop back edges.
func (g *Graph) SetInput(n Node, i int, x Node) {
	g.Value[n][i] = x
	g.uses = nil
}

func (g *Graph) AppendInput(n Node, x Node) {
	g.Value[n] = append(g.Value[n], x)
	g.uses = nil
}

func (g *Graph) Input(n Node, i int) Node {
	in := g.Value[n]
	if i >= len(in) {
		return Invalid
	}

	return in[i]
}

func (g *Graph) InputCount(n Node) int { return len(g.Value[n]) }

func (g *Graph) Uses(n Node) []Use {
	if g.uses == nil {
		g.computeUses()
	}

	return g.uses[n]
}

func (g *Graph) UseCount(n Node) int {
	return len(g.Uses(n))
}

// OwnedBy reports whether all the uses of n come from owner.
func (g *Graph) OwnedBy(n, owner Node) bool {
	us := g.Uses(n)
	if len(us) == 0 {
		return false
	}

	for _, u := range us {
		if u.User != owner {
			return false
		}
	}

	return true
}

// FindProjection returns the Projection of n with index idx or Invalid.
func (g *Graph) FindProjection(n Node, idx int) Node {
	for _, u := range g.Uses(n) {
		if u.Kind != ValueEdge || g.Op[u.User] != Projection {
			continue
		}

		if g.Param[u.User].(int) == idx {
			return u.User
		}
	}

	return Invalid
}

func (g *Graph) computeUses() {
	g.uses = make([][]Use, len(g.Op))

	add := func(from Node, in []Node, k EdgeKind) {
		for i, x := range in {
			if x == Invalid {
				continue
			}

			g.uses[x] = append(g.uses[x], Use{User: from, Index: i, Kind: k})
		}
	}

	for n := range g.Op {
		add(Node(n), g.Value[n], ValueEdge)
		add(Node(n), g.Effect[n], EffectEdge)
		add(Node(n), g.Control[n], ControlEdge)
	}
}

func (g *Graph) Int32(n Node) (int32, bool) {
	if g.Op[n] != Int32Constant {
		return 0, false
	}

	return g.Param[n].(int32), true
}

func (g *Graph) Int64(n Node) (int64, bool) {
	if g.Op[n] != Int64Constant {
		return 0, false
	}

	return g.Param[n].(int64), true
}

// IntValue matches either integer constant kind.
func (g *Graph) IntValue(n Node) (int64, bool) {
	switch g.Op[n] {
	case Int32Constant:
		return int64(g.Param[n].(int32)), true
	case Int64Constant:
		return g.Param[n].(int64), true
	}

	return 0, false
}

func (g *Graph) Check() error {
	for n, op := range g.Op {
		if op <= opInvalid || op >= NumOpcodes {
			return errors.New("node %d: bad opcode %d", n, op)
		}

		for _, tab := range [][][]Node{g.Value, g.Effect, g.Control} {
			for _, x := range tab[n] {
				if x != Invalid && (x < 0 || int(x) >= len(g.Op)) {
					return errors.New("node %d (%v): input %d out of range", n, op, x)
				}
			}
		}
	}

	return nil
}

func (u Use) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendKeyInt(b, "user", int(u.User))
	b = e.AppendKeyInt(b, "index", u.Index)
	b = e.AppendKeyInt(b, "kind", int(u.Kind))

	return b
}
