package back

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

// Continuation tells how the flags set by a compare are consumed.
// The zero value consumes nothing.
type Continuation struct {
	Mode asm.FlagsMode
	Cond asm.Condition

	// branch
	TrueBlock  int
	FalseBlock int

	// deoptimize
	Kind       ir.DeoptimizeKind
	Reason     ir.DeoptimizeReason
	NodeID     ir.Node
	Feedback   ir.FeedbackSource
	FrameState ir.Node

	// set, select
	Result     ir.Node
	TrueValue  ir.Node
	FalseValue ir.Node

	Trap ir.TrapID
}

func ForBranch(c asm.Condition, t, f int) Continuation {
	return Continuation{Mode: asm.FlagsBranch, Cond: c, TrueBlock: t, FalseBlock: f}
}

func ForDeoptimize(c asm.Condition, kind ir.DeoptimizeKind, reason ir.DeoptimizeReason, id ir.Node, fb ir.FeedbackSource, state ir.Node) Continuation {
	return Continuation{
		Mode:       asm.FlagsDeoptimize,
		Cond:       c,
		Kind:       kind,
		Reason:     reason,
		NodeID:     id,
		Feedback:   fb,
		FrameState: state,
	}
}

func ForSet(c asm.Condition, result ir.Node) Continuation {
	return Continuation{Mode: asm.FlagsSet, Cond: c, Result: result}
}

func ForSelect(c asm.Condition, result, tval, fval ir.Node) Continuation {
	return Continuation{Mode: asm.FlagsSelect, Cond: c, Result: result, TrueValue: tval, FalseValue: fval}
}

func ForTrap(c asm.Condition, trap ir.TrapID) Continuation {
	return Continuation{Mode: asm.FlagsTrap, Cond: c, Trap: trap}
}

func (c *Continuation) IsNone() bool       { return c.Mode == asm.FlagsNone }
func (c *Continuation) IsBranch() bool     { return c.Mode == asm.FlagsBranch }
func (c *Continuation) IsDeoptimize() bool { return c.Mode == asm.FlagsDeoptimize }
func (c *Continuation) IsSet() bool        { return c.Mode == asm.FlagsSet }
func (c *Continuation) IsSelect() bool     { return c.Mode == asm.FlagsSelect }
func (c *Continuation) IsTrap() bool       { return c.Mode == asm.FlagsTrap }

func (c *Continuation) Negate() {
	c.checkUsed()
	c.Cond = c.Cond.Negate()
}

// Commute adjusts the condition for swapped operands.
func (c *Continuation) Commute() {
	c.checkUsed()
	c.Cond = c.Cond.Commute()
}

func (c *Continuation) Overwrite(cond asm.Condition) {
	c.checkUsed()
	c.Cond = cond
}

// OverwriteAndNegateIfEqual replaces an eq/ne condition keeping its polarity.
func (c *Continuation) OverwriteAndNegateIfEqual(cond asm.Condition) {
	if c.Cond != asm.CondEqual && c.Cond != asm.CondNotEqual {
		panic(errors.New("overwrite %v: not an equality", c.Cond))
	}

	negate := c.Cond == asm.CondEqual

	c.Overwrite(cond)

	if negate {
		c.Negate()
	}
}

func (c *Continuation) OverwriteUnsignedIfSigned() {
	c.checkUsed()
	c.Cond = c.Cond.Unsigned()
}

// Encode puts flags mode and condition into the code.
func (c *Continuation) Encode(code asm.Code) asm.Code {
	if c.Mode == asm.FlagsNone {
		return code
	}

	return code.WithFlags(c.Mode, c.Cond)
}

func (c *Continuation) checkUsed() {
	if c.Mode == asm.FlagsNone {
		panic(errors.New("condition of an unused continuation"))
	}
}

func (c Continuation) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if c.Mode == asm.FlagsNone {
		return e.AppendNil(b)
	}

	b = e.AppendMap(b, 2)
	b = e.AppendKeyString(b, "mode", c.Mode.String())
	b = e.AppendKeyString(b, "cond", c.Cond.String())

	return b
}
