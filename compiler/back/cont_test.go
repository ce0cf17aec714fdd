package back

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

func TestContinuationNegate(t *testing.T) {
	for _, c := range []asm.Condition{
		asm.CondEqual,
		asm.CondSignedLessThan,
		asm.CondUnsignedGreaterThan,
		asm.CondFloatLessThan,
		asm.CondOverflow,
	} {
		cont := ForBranch(c, 1, 2)

		cont.Negate()
		assert.NotEqual(t, c, cont.Cond)

		cont.Negate()
		assert.Equal(t, c, cont.Cond)
	}

	cont := ForSet(asm.CondSignedLessThan, 3)
	cont.Negate()
	assert.Equal(t, asm.CondSignedGreaterThanOrEqual, cont.Cond)
}

func TestContinuationCommute(t *testing.T) {
	for c, want := range map[asm.Condition]asm.Condition{
		asm.CondEqual:                    asm.CondEqual,
		asm.CondSignedLessThan:           asm.CondSignedGreaterThan,
		asm.CondSignedGreaterThanOrEqual: asm.CondSignedLessThanOrEqual,
		asm.CondUnsignedLessThan:         asm.CondUnsignedGreaterThan,
		asm.CondFloatLessThanOrEqual:     asm.CondFloatGreaterThanOrEqual,
		asm.CondOverflow:                 asm.CondOverflow,
	} {
		cont := ForTrap(c, ir.TrapDivByZero)
		cont.Commute()

		assert.Equal(t, want, cont.Cond, "commute %v", c)
	}
}

func TestContinuationOverwriteAndNegateIfEqual(t *testing.T) {
	cont := ForBranch(asm.CondEqual, 1, 2)
	cont.OverwriteAndNegateIfEqual(asm.CondUnsignedLessThan)
	assert.Equal(t, asm.CondUnsignedGreaterThanOrEqual, cont.Cond)

	cont = ForBranch(asm.CondNotEqual, 1, 2)
	cont.OverwriteAndNegateIfEqual(asm.CondUnsignedLessThan)
	assert.Equal(t, asm.CondUnsignedLessThan, cont.Cond)

	cont = ForBranch(asm.CondSignedLessThan, 1, 2)
	assert.Panics(t, func() {
		cont.OverwriteAndNegateIfEqual(asm.CondEqual)
	})
}

func TestContinuationUnused(t *testing.T) {
	var cont Continuation

	assert.True(t, cont.IsNone())
	assert.Panics(t, cont.Negate)
	assert.Panics(t, cont.Commute)
	assert.Panics(t, func() { cont.Overwrite(asm.CondEqual) })

	code := asm.MakeCode(asm.ArchNop)
	assert.Equal(t, code, cont.Encode(code))
}

func TestContinuationEncode(t *testing.T) {
	cont := ForDeoptimize(asm.CondSignedLessThan, ir.DeoptimizeEager, "overflow", 5, ir.FeedbackSource{}, ir.Invalid)
	cont.OverwriteUnsignedIfSigned()

	code := cont.Encode(asm.MakeCode(asm.ArchNop))

	assert.Equal(t, asm.ArchNop, code.Opcode())
	assert.Equal(t, asm.FlagsDeoptimize, code.FlagsMode())
	assert.Equal(t, asm.CondUnsignedLessThan, code.Condition())

	sel := ForSelect(asm.CondEqual, 1, 2, 3)
	assert.True(t, sel.IsSelect())
	assert.False(t, sel.IsBranch())
}
