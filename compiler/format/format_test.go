package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

// testSequence is B0 -> B1 (deferred) -> B2, B0 -> B2.
func testSequence() *asm.Sequence {
	sched := ir.NewSchedule()

	b0 := sched.NewBlock()
	b1 := sched.NewBlock()
	b2 := sched.NewBlock()

	b1.Deferred = true

	sched.AddBranch(b0, 0, b1, b2)
	sched.AddGoto(b1, b2)
	sched.AddReturn(b2, 1)

	seq := asm.NewSequence(sched)

	for rpo, in := range []*asm.Instruction{
		asm.NewInstruction(asm.MakeCode(asm.ArchNop), nil, nil, nil),
		asm.NewInstruction(asm.MakeCode(asm.ArchJmp), nil, []asm.Operand{asm.Label(2)}, nil),
		asm.NewInstruction(asm.MakeCode(asm.ArchRet), nil, []asm.Operand{asm.Immediate(0)}, nil),
	} {
		seq.StartBlock(rpo)
		seq.AddInstruction(in)
		seq.EndBlock(rpo)
	}

	seq.SetSourcePosition(2, ir.SourcePosition{Script: 1, Offset: 40})

	return seq
}

func TestLayout(t *testing.T) {
	seq := testSequence()

	assert.Equal(t, []int{0, 2, 1}, Layout(seq))

	seq.Blocks[1].Deferred = false

	assert.Equal(t, []int{0, 1, 2}, Layout(seq))
}

func TestFormatSequence(t *testing.T) {
	ctx := context.Background()
	seq := testSequence()

	b, err := Format(ctx, nil, seq)
	require.NoError(t, err)

	assert.Equal(t, `B0: succ [1 2]
	   0: ArchNop

B2: pred [0 1]
	   2: ArchRet #0

B1: pred [0] succ [2] deferred
	   1: ArchJmp B2
`, string(b))

	b, err = Options{Positions: true}.Format(ctx, nil, seq)
	require.NoError(t, err)
	assert.Contains(t, string(b), "   2: ArchRet #0  @1:40\n")

	b, err = Options{Color: true}.Format(ctx, nil, seq)
	require.NoError(t, err)
	assert.Contains(t, string(b), colorOpcode+"ArchJmp"+colorReset+" B2")
}

func TestFormatImmediatesAndDeopts(t *testing.T) {
	seq := testSequence()

	o := seq.AddImmediate(asm.Constant{Kind: asm.ConstHeapObject, Value: 7, Name: "f"})
	assert.Equal(t, "#i0", o.String())

	seq.AddDeoptimizationEntry(asm.DeoptEntry{
		Desc: &asm.FrameStateDescriptor{
			Type:       ir.FrameUnoptimized,
			BailoutID:  3,
			Function:   "f",
			Parameters: 1,
		},
		Kind:   ir.DeoptimizeEager,
		Reason: "wrong map",
		NodeID: 9,
	})

	b, err := Format(context.Background(), nil, seq)
	require.NoError(t, err)

	assert.Contains(t, string(b), "\nimmediates:\n\t#i0 = ")
	assert.Contains(t, string(b), "\ndeopts:\n\t0: ")
	assert.Contains(t, string(b), `"wrong map" node 9`)
	assert.Contains(t, string(b), "\t\tframe unoptimized bailout 3 f: params 1 locals 0 stack 0\n")
}

func TestFormatUnsupported(t *testing.T) {
	_, err := Format(context.Background(), nil, 5)
	assert.Error(t, err)

	in := asm.NewInstruction(asm.MakeCode(asm.ArchNop), nil, nil, nil)

	b, err := Format(context.Background(), nil, in)
	require.NoError(t, err)
	assert.Equal(t, "ArchNop", string(b))
}
