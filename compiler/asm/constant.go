package asm

import (
	"math"
	"strconv"

	"github.com/slowlang/isel/compiler/ir"
)

type (
	ConstantKind uint8

	// Constant is a value materialized by the code generator.
	// Value holds integer values or float bits.
	Constant struct {
		Kind  ConstantKind
		Value int64
		Name  string

		Reloc ir.RelocMode
	}
)

const (
	ConstInt32 ConstantKind = iota
	ConstInt64
	ConstFloat32
	ConstFloat64
	ConstExternalReference
	ConstHeapObject
	ConstCompressedHeapObject
	ConstRPO
	ConstComment
)

func Int32Constant(v int32) Constant { return Constant{Kind: ConstInt32, Value: int64(v)} }

func Int64Constant(v int64) Constant { return Constant{Kind: ConstInt64, Value: v} }

func Float32Constant(v float32) Constant {
	return Constant{Kind: ConstFloat32, Value: int64(math.Float32bits(v))}
}

func Float64Constant(v float64) Constant {
	return Constant{Kind: ConstFloat64, Value: int64(math.Float64bits(v))}
}

func (c Constant) Float64() float64 { return math.Float64frombits(uint64(c.Value)) }

func (c Constant) Float32() float32 { return math.Float32frombits(uint32(c.Value)) }

// FitsInt32 reports whether the constant can be an inline 32-bit immediate.
func (c Constant) FitsInt32() bool {
	if c.Reloc != ir.RelocNone {
		return false
	}

	switch c.Kind {
	case ConstInt32:
		return true
	case ConstInt64:
		return c.Value == int64(int32(c.Value))
	}

	return false
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstInt32, ConstInt64:
		return strconv.FormatInt(c.Value, 10)
	case ConstFloat32:
		return strconv.FormatFloat(float64(c.Float32()), 'g', -1, 32) + "f"
	case ConstFloat64:
		return strconv.FormatFloat(c.Float64(), 'g', -1, 64)
	case ConstRPO:
		return "B" + strconv.FormatInt(c.Value, 10)
	case ConstComment:
		return strconv.Quote(c.Name)
	}

	if c.Name != "" {
		return "<" + c.Name + ">"
	}

	return "<0x" + strconv.FormatInt(c.Value, 16) + ">"
}
