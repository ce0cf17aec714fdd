package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/back"
	"github.com/slowlang/isel/compiler/format"
)

func testConfig() back.Config {
	cfg := back.DefaultConfig()
	cfg.Features = back.Features{SSE41: true, POPCNT: true}
	cfg.Verify = true

	return cfg
}

func TestSelectFile(t *testing.T) {
	ctx := context.Background()

	rs, err := SelectFile(ctx, testConfig(), "testdata/funcs.yaml")
	require.NoError(t, err)
	require.Len(t, rs, 3)

	assert.Equal(t, "min", rs[0].Func.Name)
	require.NotNil(t, rs[0].Seq)
	assert.Empty(t, rs[0].Bailout)
	assert.Len(t, rs[0].Seq.Blocks, 3)

	assert.Equal(t, "barrier_on_word", rs[1].Func.Name)
	assert.Nil(t, rs[1].Seq)
	assert.Equal(t, back.BailoutCodeGenerationFailed, rs[1].Bailout)

	loop := rs[2]
	require.NotNil(t, loop.Seq, "bailout does not stop other funcs")

	head := loop.Seq.InstructionBlockAt(1)
	assert.True(t, head.LoopHeader)
	assert.Len(t, head.Phis, 2)

	b, err := format.Format(ctx, nil, loop.Seq)
	require.NoError(t, err)
	assert.Contains(t, string(b), "B1: pred [0 2] succ [2 3] loop\n")
}

func TestSelectPositions(t *testing.T) {
	cfg := testConfig()
	cfg.SourcePositions = back.PositionsAll

	rs, err := SelectFile(context.Background(), cfg, "testdata/funcs.yaml")
	require.NoError(t, err)

	seq := rs[0].Seq
	require.Len(t, seq.Positions, 1)

	for i := range seq.Positions {
		in := seq.Instrs[i]

		assert.Equal(t, asm.FlagsBranch, in.Code.FlagsMode(), "position goes to the fused compare: %v", in)
	}
}

func TestSelectFileErrors(t *testing.T) {
	_, err := SelectFile(context.Background(), testConfig(), "testdata/missing.yaml")
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Arch = "pdp11"

	_, err = SelectFile(context.Background(), cfg, "testdata/funcs.yaml")
	assert.Error(t, err)
}
