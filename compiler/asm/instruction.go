package asm

import (
	"tlog.app/go/tlog/tlwire"
)

type (
	Instruction struct {
		Code Code

		Outputs []Operand
		Inputs  []Operand
		Temps   []Operand

		// Call instructions clobber registers and carry a reference map.
		Call bool
	}
)

const (
	MaxOutputCount = 1<<8 - 1
	MaxInputCount  = 1<<16 - 1
	MaxTempCount   = 1<<6 - 1
)

func NewInstruction(c Code, outs, ins, temps []Operand) *Instruction {
	return &Instruction{
		Code:    c,
		Outputs: outs,
		Inputs:  ins,
		Temps:   temps,
	}
}

func (in *Instruction) Opcode() ArchOpcode { return in.Code.Opcode() }

func (in *Instruction) MarkAsCall() *Instruction {
	in.Call = true
	return in
}

func (in *Instruction) IsTerminator() bool {
	return in.Code.Opcode().IsTerminator() || in.Code.FlagsMode() == FlagsBranch
}

// AppendText renders "outs = op ins temps".
func (in *Instruction) AppendText(b []byte) []byte {
	if len(in.Outputs) != 0 {
		for i, o := range in.Outputs {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = o.AppendText(b)
		}

		b = append(b, " = "...)
	}

	b = append(b, in.Code.String()...)

	for _, x := range in.Inputs {
		b = append(b, ' ')
		b = x.AppendText(b)
	}

	if len(in.Temps) != 0 {
		b = append(b, " temps:"...)

		for _, x := range in.Temps {
			b = append(b, ' ')
			b = x.AppendText(b)
		}
	}

	return b
}

func (in *Instruction) String() string {
	return string(in.AppendText(nil))
}

func (in *Instruction) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, in.String())
}
