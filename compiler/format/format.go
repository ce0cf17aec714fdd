package format

import (
	"context"
	"sort"

	"github.com/nikandfor/hacked/hfmt"
	"nikand.dev/go/heap"
	"tlog.app/go/errors"

	"github.com/slowlang/isel/compiler/asm"
)

type (
	// Options control the dump. Zero value prints plain text
	// with blocks in layout order.
	Options struct {
		Color     bool
		Positions bool
	}
)

const (
	colorReset  = "\x1b[0m"
	colorBlock  = "\x1b[1;34m"
	colorOpcode = "\x1b[33m"
	colorDim    = "\x1b[90m"
)

func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	return Options{}.Format(ctx, b, x)
}

func (o Options) Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	return o.format(ctx, b, x, 0)
}

func (o Options) format(ctx context.Context, b []byte, x any, d int) ([]byte, error) {
	switch x := x.(type) {
	case *asm.Sequence:
		return o.formatSequence(ctx, b, x, d)
	case *asm.Instruction:
		return o.formatInstr(b, x, d), nil
	case *asm.FrameStateDescriptor:
		return formatState(b, x, d), nil
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

// Layout puts deferred blocks after the others keeping RPO order
// within both groups.
func Layout(seq *asm.Sequence) []int {
	r := make([]int, 0, len(seq.Blocks))

	deferred := heap.Heap[int]{Less: func(d []int, i, j int) bool { return d[i] < d[j] }}

	for _, b := range seq.Blocks {
		if b.Deferred {
			deferred.Push(b.RPO)
			continue
		}

		r = append(r, b.RPO)
	}

	for deferred.Len() != 0 {
		r = append(r, deferred.Pop())
	}

	return r
}

func (o Options) formatSequence(ctx context.Context, b []byte, seq *asm.Sequence, d int) (_ []byte, err error) {
	for i, rpo := range Layout(seq) {
		if i != 0 {
			b = append(b, '\n')
		}

		b, err = o.formatBlock(b, seq, seq.Blocks[rpo], d)
		if err != nil {
			return nil, errors.Wrap(err, "block B%d", rpo)
		}
	}

	if len(seq.Constants) != 0 {
		b = app(b, d, "\nconstants:\n")

		vs := make([]asm.VReg, 0, len(seq.Constants))
		for v := range seq.Constants {
			vs = append(vs, v)
		}

		sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })

		for _, v := range vs {
			b = app(b, d+1, "v%d = %v\n", v, seq.Constants[v])
		}
	}

	if len(seq.Immediates) != 0 {
		b = app(b, d, "\nimmediates:\n")

		for i, c := range seq.Immediates {
			b = app(b, d+1, "#i%d = %v\n", i, c)
		}
	}

	if len(seq.Deopts) != 0 {
		b = app(b, d, "\ndeopts:\n")

		for i, e := range seq.Deopts {
			b = app(b, d+1, "%d: %v %q node %d", i, e.Kind, e.Reason, e.NodeID)

			if e.Feedback.Vector != "" {
				b = hfmt.Appendf(b, " feedback %s:%d", e.Feedback.Vector, e.Feedback.Slot)
			}

			b = append(b, '\n')

			if e.Desc != nil {
				b = formatState(b, e.Desc, d+2)
			}
		}
	}

	return b, nil
}

func (o Options) formatBlock(b []byte, seq *asm.Sequence, blk *asm.InstructionBlock, d int) ([]byte, error) {
	b = app(b, d, "%sB%d%s:", o.color(colorBlock), blk.RPO, o.color(colorReset))

	if len(blk.Pred) != 0 {
		b = hfmt.Appendf(b, " pred %v", blk.Pred)
	}

	if len(blk.Succ) != 0 {
		b = hfmt.Appendf(b, " succ %v", blk.Succ)
	}

	if blk.LoopHeader {
		b = append(b, " loop"...)
	}

	if blk.Deferred {
		b = append(b, " deferred"...)
	}

	b = append(b, '\n')

	for _, p := range blk.Phis {
		b = app(b, d+1, "v%d = phi", p.VReg)

		for _, x := range p.Inputs {
			b = hfmt.Appendf(b, " v%d", x)
		}

		b = append(b, '\n')
	}

	if blk.CodeStart < 0 {
		return b, nil
	}

	if blk.CodeEnd < blk.CodeStart || blk.CodeEnd > len(seq.Instrs) {
		return nil, errors.New("bad code range [%d, %d)", blk.CodeStart, blk.CodeEnd)
	}

	for i := blk.CodeStart; i < blk.CodeEnd; i++ {
		b = app(b, d+1, "%4d: ", i)
		b = o.formatInstr(b, seq.Instrs[i], 0)

		if p, ok := seq.Positions[i]; ok && o.Positions {
			b = hfmt.Appendf(b, "  %s@%d:%d%s", o.color(colorDim), p.Script, p.Offset, o.color(colorReset))
		}

		b = append(b, '\n')
	}

	return b, nil
}

func (o Options) formatInstr(b []byte, in *asm.Instruction, d int) []byte {
	b = app(b, d, "")

	if !o.Color {
		return in.AppendText(b)
	}

	for i, x := range in.Outputs {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = x.AppendText(b)
	}

	if len(in.Outputs) != 0 {
		b = append(b, " = "...)
	}

	b = append(b, colorOpcode...)
	b = append(b, in.Code.String()...)
	b = append(b, colorReset...)

	for _, x := range in.Inputs {
		b = append(b, ' ')
		b = x.AppendText(b)
	}

	if len(in.Temps) != 0 {
		b = append(b, colorDim...)
		b = append(b, " temps:"...)

		for _, x := range in.Temps {
			b = append(b, ' ')
			b = x.AppendText(b)
		}

		b = append(b, colorReset...)
	}

	return b
}

func formatState(b []byte, s *asm.FrameStateDescriptor, d int) []byte {
	for ; s != nil; s = s.Outer {
		b = app(b, d, "frame %v bailout %d %s: params %d locals %d stack %d", s.Type, s.BailoutID, s.Function, s.Parameters, s.Locals, s.Stack)

		if s.HasContext {
			b = append(b, " context"...)
		}

		b = append(b, '\n')
		b = formatValues(b, &s.Values, d+1)

		d++
	}

	return b
}

func formatValues(b []byte, l *asm.StateValueList, d int) []byte {
	for i, f := range l.Fields {
		b = app(b, d, "%v %v", f.Kind, f.Type)

		switch f.Kind {
		case asm.StateNested, asm.StateDuplicate:
			b = hfmt.Appendf(b, " id %d", f.ID)
		}

		b = append(b, '\n')

		if i < len(l.Nested) && l.Nested[i] != nil {
			b = formatValues(b, l.Nested[i], d+1)
		}
	}

	return b
}

func (o Options) color(c string) string {
	if !o.Color {
		return ""
	}

	return c
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
