package back

import (
	"math"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

type (
	CaseInfo struct {
		Value int32
		Order int
		Block int // rpo
	}

	SwitchInfo struct {
		Cases   []CaseInfo
		Min     int32
		Max     int32
		Default int // rpo
	}
)

// MaxTableSwitchRange bounds jump tables.
const MaxTableSwitchRange = 2 << 16

func (s *Selector) switchInfo(b *ir.Block) *SwitchInfo {
	sw := &SwitchInfo{
		Min: math.MaxInt32,
		Max: math.MinInt32,
	}

	last := len(b.Succ) - 1

	for _, id := range b.Succ[:last] {
		cb := s.sched.BlockAt(id)

		if len(cb.Nodes) == 0 || s.g.Op[cb.Nodes[0]] != ir.IfValue {
			panic(errors.New("switch case B%d does not start with IfValue at %v", cb.RPO, loc.Caller(1)))
		}

		p := s.g.Param[cb.Nodes[0]].(ir.IfValueParameters)

		sw.Cases = append(sw.Cases, CaseInfo{Value: p.Value, Order: p.Order, Block: cb.RPO})
		sw.Min = min(sw.Min, p.Value)
		sw.Max = max(sw.Max, p.Value)
	}

	sw.Default = s.sched.BlockAt(b.Succ[last]).RPO

	if len(sw.Cases) == 0 {
		sw.Min, sw.Max = 0, 0
	}

	return sw
}

func (sw *SwitchInfo) CaseCount() int { return len(sw.Cases) }

func (sw *SwitchInfo) ValueRange() int64 {
	if len(sw.Cases) == 0 {
		return 0
	}

	return int64(sw.Max) - int64(sw.Min) + 1
}

// CasesSortedByValue returns cases ordered by value.
func (sw *SwitchInfo) CasesSortedByValue() []CaseInfo {
	h := heap.Heap[CaseInfo]{Less: func(d []CaseInfo, i, j int) bool {
		return d[i].Value < d[j].Value
	}}

	for _, c := range sw.Cases {
		h.Push(c)
	}

	r := make([]CaseInfo, 0, len(sw.Cases))

	for h.Len() != 0 {
		r = append(r, h.Pop())
	}

	return r
}

// UseTableSwitch is the jump table versus binary search cost model.
func (s *Selector) UseTableSwitch(sw *SwitchInfo) bool {
	if !s.cfg.SwitchJumpTable {
		return false
	}

	n := int64(sw.CaseCount())

	tableSpace := 4 + sw.ValueRange()
	tableTime := int64(3)
	lookupSpace := 3 + 2*n
	lookupTime := n

	return n > 4 &&
		tableSpace+3*tableTime <= lookupSpace+3*lookupTime &&
		sw.Min > math.MinInt32 &&
		sw.ValueRange() <= MaxTableSwitchRange
}

// EmitTableSwitch emits index, default label and a label per value in range.
func (s *Selector) EmitTableSwitch(sw *SwitchInfo, index asm.Operand) {
	g := s.Gen()

	n := 2 + int(sw.ValueRange())

	ins := make([]asm.Operand, n)
	ins[0] = index

	def := g.Label(sw.Default)
	for i := 1; i < n; i++ {
		ins[i] = def
	}

	for _, c := range sw.Cases {
		ins[int(int64(c.Value)-int64(sw.Min))+2] = g.Label(c.Block)
	}

	s.EmitN(asm.MakeCode(asm.ArchTableSwitch), nil, ins, nil)
}

// EmitBinarySearchSwitch emits value, default label and value/label pairs.
func (s *Selector) EmitBinarySearchSwitch(sw *SwitchInfo, value asm.Operand) {
	g := s.Gen()

	ins := make([]asm.Operand, 0, 2+2*sw.CaseCount())
	ins = append(ins, value, g.Label(sw.Default))

	for _, c := range sw.CasesSortedByValue() {
		ins = append(ins, g.TempImmediate(c.Value), g.Label(c.Block))
	}

	s.EmitN(asm.MakeCode(asm.ArchBinarySearchSwitch), nil, ins, nil)
}
