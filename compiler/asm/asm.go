package asm

import (
	"strconv"

	"tlog.app/go/tlog/tlwire"
)

type (
	VReg int32

	Kind     uint8
	Policy   uint8
	Lifetime uint8
	ImmKind  uint8

	// Operand is a value instruction operand.
	// For unallocated operands Value holds the fixed register or slot
	// or the same-as input index. For immediates it is the inline value,
	// the immediate pool index or the RPO number.
	Operand struct {
		Kind   Kind
		Policy Policy
		Life   Lifetime
		Imm    ImmKind

		VReg  VReg
		Value int64
	}
)

const InvalidVReg VReg = -1

const (
	KindInvalid Kind = iota
	KindUnallocated
	KindConstant
	KindImmediate
)

const (
	PolicyNone Policy = iota
	PolicyAny
	PolicyRegisterOrSlot
	PolicyRegisterOrSlotOrConstant
	PolicyRegister
	PolicySlot
	PolicyFixedRegister
	PolicyFixedFPRegister
	PolicyFixedSlot
	PolicySameAsInput
)

const (
	UsedAtEnd Lifetime = iota
	UsedAtStart
)

const (
	ImmInline32 ImmKind = iota
	ImmInline64
	ImmIndexed
	ImmRPO
)

var policyNames = [...]string{
	PolicyNone:                     "none",
	PolicyAny:                      "any",
	PolicyRegisterOrSlot:           "rs",
	PolicyRegisterOrSlotOrConstant: "rsc",
	PolicyRegister:                 "r",
	PolicySlot:                     "s",
	PolicyFixedRegister:            "fixed",
	PolicyFixedFPRegister:          "fixed_fp",
	PolicyFixedSlot:                "fixed_slot",
	PolicySameAsInput:              "same",
}

func Unallocated(p Policy, l Lifetime, v VReg) Operand {
	return Operand{Kind: KindUnallocated, Policy: p, Life: l, VReg: v}
}

// Fixed is an unallocated operand pinned to a register, FP register or slot.
func Fixed(p Policy, index int, v VReg) Operand {
	return Operand{Kind: KindUnallocated, Policy: p, Life: UsedAtEnd, VReg: v, Value: int64(index)}
}

func SameAsInput(input int, v VReg) Operand {
	return Operand{Kind: KindUnallocated, Policy: PolicySameAsInput, VReg: v, Value: int64(input)}
}

func ConstantOperand(v VReg) Operand {
	return Operand{Kind: KindConstant, VReg: v}
}

func Immediate(v int32) Operand {
	return Operand{Kind: KindImmediate, Imm: ImmInline32, VReg: InvalidVReg, Value: int64(v)}
}

func Immediate64(v int64) Operand {
	return Operand{Kind: KindImmediate, Imm: ImmInline64, VReg: InvalidVReg, Value: v}
}

func IndexedImmediate(i int) Operand {
	return Operand{Kind: KindImmediate, Imm: ImmIndexed, VReg: InvalidVReg, Value: int64(i)}
}

// Label refers to a block by its RPO number.
func Label(rpo int) Operand {
	return Operand{Kind: KindImmediate, Imm: ImmRPO, VReg: InvalidVReg, Value: int64(rpo)}
}

func (o Operand) IsInvalid() bool     { return o.Kind == KindInvalid }
func (o Operand) IsUnallocated() bool { return o.Kind == KindUnallocated }
func (o Operand) IsConstant() bool    { return o.Kind == KindConstant }
func (o Operand) IsImmediate() bool   { return o.Kind == KindImmediate }
func (o Operand) IsLabel() bool       { return o.Kind == KindImmediate && o.Imm == ImmRPO }

func (o Operand) HasVReg() bool {
	return o.Kind == KindUnallocated || o.Kind == KindConstant
}

func (o Operand) IsFixed() bool {
	return o.Kind == KindUnallocated && (o.Policy == PolicyFixedRegister || o.Policy == PolicyFixedFPRegister || o.Policy == PolicyFixedSlot)
}

// WithVReg returns the same operand for another virtual register.
func (o Operand) WithVReg(v VReg) Operand {
	o.VReg = v
	return o
}

func (o Operand) AppendText(b []byte) []byte {
	switch o.Kind {
	case KindInvalid:
		return append(b, "(x)"...)
	case KindConstant:
		b = append(b, "[const:v"...)
		b = strconv.AppendInt(b, int64(o.VReg), 10)
		return append(b, ']')
	case KindImmediate:
		switch o.Imm {
		case ImmRPO:
			b = append(b, "B"...)
		case ImmIndexed:
			b = append(b, "#i"...)
		default:
			b = append(b, '#')
		}

		return strconv.AppendInt(b, o.Value, 10)
	}

	b = append(b, 'v')
	b = strconv.AppendInt(b, int64(o.VReg), 10)
	b = append(b, '(')

	if int(o.Policy) < len(policyNames) {
		b = append(b, policyNames[o.Policy]...)
	}

	switch o.Policy {
	case PolicyFixedRegister, PolicyFixedFPRegister, PolicyFixedSlot, PolicySameAsInput:
		b = append(b, '=')
		b = strconv.AppendInt(b, o.Value, 10)
	}

	if o.Life == UsedAtStart {
		b = append(b, ",start"...)
	}

	return append(b, ')')
}

func (o Operand) String() string {
	return string(o.AppendText(nil))
}

func (o Operand) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, o.String())
}
