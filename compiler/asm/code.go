package asm

import (
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

type (
	// Code packs an arch opcode with its addressing mode, flags mode,
	// flags condition and a misc field.
	Code uint32

	ArchOpcode     uint16
	AddressingMode uint8
	FlagsMode      uint8
	Condition      uint8
)

const (
	opcodeBits    = 9
	modeBits      = 5
	flagsModeBits = 3
	condBits      = 5
	miscBits      = 32 - opcodeBits - modeBits - flagsModeBits - condBits

	modeShift      = opcodeBits
	flagsModeShift = modeShift + modeBits
	condShift      = flagsModeShift + flagsModeBits
	miscShift      = condShift + condBits

	MaxMisc = 1<<miscBits - 1
)

const ModeNone AddressingMode = 0

const (
	FlagsNone FlagsMode = iota
	FlagsBranch
	FlagsDeoptimize
	FlagsSet
	FlagsTrap
	FlagsSelect
)

// Conditions come in negation pairs: c^1 is the negation of c.
const (
	CondEqual Condition = iota
	CondNotEqual
	CondSignedLessThan
	CondSignedGreaterThanOrEqual
	CondSignedLessThanOrEqual
	CondSignedGreaterThan
	CondUnsignedLessThan
	CondUnsignedGreaterThanOrEqual
	CondUnsignedLessThanOrEqual
	CondUnsignedGreaterThan
	CondFloatLessThanOrUnordered
	CondFloatGreaterThanOrEqual
	CondFloatLessThanOrEqual
	CondFloatGreaterThanOrUnordered
	CondFloatLessThan
	CondFloatGreaterThanOrEqualOrUnordered
	CondFloatLessThanOrEqualOrUnordered
	CondFloatGreaterThan
	CondUnorderedEqual
	CondUnorderedNotEqual
	CondOverflow
	CondNotOverflow
	CondPositiveOrZero
	CondNegative
	CondIsNaN
	CondIsNotNaN

	numConditions
)

var condNames = [numConditions]string{
	"eq", "ne",
	"lt", "ge", "le", "gt",
	"ult", "uge", "ule", "ugt",
	"flt_u", "fge", "fle", "fgt_u", "flt", "fge_u", "fle_u", "fgt",
	"ueq", "une",
	"ovf", "novf",
	"pos", "neg",
	"nan", "notnan",
}

var flagsModeNames = [...]string{
	FlagsNone:       "",
	FlagsBranch:     "branch",
	FlagsDeoptimize: "deopt",
	FlagsSet:        "set",
	FlagsTrap:       "trap",
	FlagsSelect:     "select",
}

func MakeCode(op ArchOpcode) Code {
	if op >= 1<<opcodeBits {
		panic(errors.New("opcode %d does not fit", op))
	}

	return Code(op)
}

func (c Code) Opcode() ArchOpcode { return ArchOpcode(c & (1<<opcodeBits - 1)) }

func (c Code) Mode() AddressingMode {
	return AddressingMode(c >> modeShift & (1<<modeBits - 1))
}

func (c Code) FlagsMode() FlagsMode {
	return FlagsMode(c >> flagsModeShift & (1<<flagsModeBits - 1))
}

func (c Code) Condition() Condition {
	return Condition(c >> condShift & (1<<condBits - 1))
}

func (c Code) Misc() int { return int(c >> miscShift) }

func (c Code) WithMode(m AddressingMode) Code {
	c &^= (1<<modeBits - 1) << modeShift
	return c | Code(m)<<modeShift
}

func (c Code) WithFlags(m FlagsMode, cond Condition) Code {
	c &^= (1<<flagsModeBits - 1) << flagsModeShift
	c &^= (1<<condBits - 1) << condShift

	return c | Code(m)<<flagsModeShift | Code(cond)<<condShift
}

func (c Code) WithMisc(v int) Code {
	if v < 0 || v > MaxMisc {
		panic(errors.New("misc field overflow: %d", v))
	}

	c &^= MaxMisc << miscShift

	return c | Code(v)<<miscShift
}

func (c Code) String() string {
	b := append([]byte{}, c.Opcode().String()...)

	if m := c.Mode(); m != ModeNone {
		b = append(b, ' ')
		b = append(b, m.String()...)
	}

	if fm := c.FlagsMode(); fm != FlagsNone {
		b = append(b, " ("...)
		b = append(b, flagsModeNames[fm]...)
		b = append(b, ' ')
		b = append(b, c.Condition().String()...)
		b = append(b, ')')
	}

	if m := c.Misc(); m != 0 {
		b = append(b, " misc:"...)
		b = strconv.AppendInt(b, int64(m), 10)
	}

	return string(b)
}

func (c Code) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, c.String())
}

func (c Condition) Negate() Condition { return c ^ 1 }

// Commute returns the condition for swapped compare operands.
func (c Condition) Commute() Condition {
	switch c {
	case CondSignedLessThan:
		return CondSignedGreaterThan
	case CondSignedGreaterThan:
		return CondSignedLessThan
	case CondSignedLessThanOrEqual:
		return CondSignedGreaterThanOrEqual
	case CondSignedGreaterThanOrEqual:
		return CondSignedLessThanOrEqual
	case CondUnsignedLessThan:
		return CondUnsignedGreaterThan
	case CondUnsignedGreaterThan:
		return CondUnsignedLessThan
	case CondUnsignedLessThanOrEqual:
		return CondUnsignedGreaterThanOrEqual
	case CondUnsignedGreaterThanOrEqual:
		return CondUnsignedLessThanOrEqual
	case CondFloatLessThan:
		return CondFloatGreaterThan
	case CondFloatGreaterThan:
		return CondFloatLessThan
	case CondFloatLessThanOrEqual:
		return CondFloatGreaterThanOrEqual
	case CondFloatGreaterThanOrEqual:
		return CondFloatLessThanOrEqual
	case CondFloatLessThanOrUnordered:
		return CondFloatGreaterThanOrUnordered
	case CondFloatGreaterThanOrUnordered:
		return CondFloatLessThanOrUnordered
	case CondFloatLessThanOrEqualOrUnordered:
		return CondFloatGreaterThanOrEqualOrUnordered
	case CondFloatGreaterThanOrEqualOrUnordered:
		return CondFloatLessThanOrEqualOrUnordered
	case CondEqual, CondNotEqual, CondUnorderedEqual, CondUnorderedNotEqual,
		CondOverflow, CondNotOverflow, CondPositiveOrZero, CondNegative, CondIsNaN, CondIsNotNaN:
		return c
	}

	panic(errors.New("commute: unknown condition %d", c))
}

// Unsigned converts signed ordering conditions to unsigned ones.
func (c Condition) Unsigned() Condition {
	switch c {
	case CondSignedLessThan:
		return CondUnsignedLessThan
	case CondSignedLessThanOrEqual:
		return CondUnsignedLessThanOrEqual
	case CondSignedGreaterThan:
		return CondUnsignedGreaterThan
	case CondSignedGreaterThanOrEqual:
		return CondUnsignedGreaterThanOrEqual
	}

	return c
}

func (c Condition) String() string {
	if c < numConditions {
		return condNames[c]
	}

	return "cond?"
}

func (m FlagsMode) String() string {
	if int(m) < len(flagsModeNames) {
		return flagsModeNames[m]
	}

	return "flags?"
}

var modeNames = map[AddressingMode]string{}

// RegisterModes names target addressing modes for printing.
func RegisterModes(names map[AddressingMode]string) {
	for m, n := range names {
		modeNames[m] = n
	}
}

func (m AddressingMode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}

	return "mode" + strconv.Itoa(int(m))
}
