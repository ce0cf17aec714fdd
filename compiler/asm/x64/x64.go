package x64

import "github.com/slowlang/isel/compiler/asm"

type Reg int

// General purpose register codes.
const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Floating point register codes.
const (
	XMM0 Reg = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
)

const (
	// RootRegister is pinned to the roots table when available.
	RootRegister = R13
	// CodeStartRegister holds the callee for builtin pointer calls.
	CodeStartRegister = RCX
	ReturnRegister    = RAX
)

const (
	Add asm.ArchOpcode = asm.FirstTargetOpcode + iota
	Add32
	And
	And32
	Cmp
	Cmp32
	Cmp16
	Cmp8
	Test
	Test32
	Test16
	Test8
	Or
	Or32
	Xor
	Xor32
	Sub
	Sub32
	Imul
	Imul32
	ImulHigh32
	UmulHigh32
	Idiv
	Idiv32
	Udiv
	Udiv32
	Not
	Not32
	Neg
	Neg32
	Shl
	Shl32
	Shr
	Shr32
	Sar
	Sar32
	Rol
	Rol32
	Ror
	Ror32
	Lzcnt
	Lzcnt32
	Tzcnt
	Tzcnt32
	Popcnt
	Popcnt32
	Bswap
	Bswap32

	Movsxbl
	Movzxbl
	Movsxbq
	Movzxbq
	Movb
	Movsxwl
	Movzxwl
	Movsxwq
	Movzxwq
	Movw
	Movl
	Movsxlq
	Movq
	Movsd
	Movss
	Movdqu
	MovqDecompressTaggedSigned
	MovqDecompressTagged
	MovqCompressTagged
	Lea
	Lea32
	Push
	Poke
	Peek
	MFence

	AtomicStoreWord8
	AtomicStoreWord16
	AtomicStoreWord32
	AtomicStoreWord64
	AtomicExchangeInt8
	AtomicExchangeUint8
	AtomicExchangeInt16
	AtomicExchangeUint16
	AtomicExchangeWord32
	AtomicExchangeWord64
	AtomicCompareExchangeInt8
	AtomicCompareExchangeUint8
	AtomicCompareExchangeInt16
	AtomicCompareExchangeUint16
	AtomicCompareExchangeWord32
	AtomicCompareExchangeWord64
	AtomicAddInt8
	AtomicAddUint8
	AtomicAddInt16
	AtomicAddUint16
	AtomicAddWord32
	AtomicAddWord64
	AtomicSubInt8
	AtomicSubUint8
	AtomicSubInt16
	AtomicSubUint16
	AtomicSubWord32
	AtomicSubWord64
	AtomicAndInt8
	AtomicAndUint8
	AtomicAndInt16
	AtomicAndUint16
	AtomicAndWord32
	AtomicAndWord64
	AtomicOrInt8
	AtomicOrUint8
	AtomicOrInt16
	AtomicOrUint16
	AtomicOrWord32
	AtomicOrWord64
	AtomicXorInt8
	AtomicXorUint8
	AtomicXorInt16
	AtomicXorUint16
	AtomicXorWord32
	AtomicXorWord64

	SSEFloat32Cmp
	SSEFloat32Add
	SSEFloat32Sub
	SSEFloat32Mul
	SSEFloat32Div
	SSEFloat32Sqrt
	SSEFloat32Round
	SSEFloat64Cmp
	SSEFloat64Add
	SSEFloat64Sub
	SSEFloat64Mul
	SSEFloat64Div
	SSEFloat64Mod
	SSEFloat64Sqrt
	SSEFloat64Round
	SSEFloat64Max
	SSEFloat64Min
	SSEFloat32ToFloat64
	SSEFloat64ToFloat32
	SSEFloat64ToInt32
	SSEFloat64ToUint32
	SSEFloat64ToInt64
	SSEInt32ToFloat32
	SSEInt32ToFloat64
	SSEInt64ToFloat64
	SSEUint32ToFloat64

	AVXFloat32Cmp
	AVXFloat32Add
	AVXFloat32Sub
	AVXFloat32Mul
	AVXFloat32Div
	AVXFloat64Cmp
	AVXFloat64Add
	AVXFloat64Sub
	AVXFloat64Mul
	AVXFloat64Div

	Float32Abs
	Float32Neg
	Float64Abs
	Float64Neg

	BitcastFI
	BitcastDL
	BitcastIF
	BitcastLD
	Float64ExtractLowWord32
	Float64ExtractHighWord32

	S128Zero
	F64x2Add
	F32x4Add
	I32x4Add
	I64x2Add
	I32x4Splat
	F32x8Add
	I32x8Add

	lastOpcode
)

// Addressing modes. The letters name the operands: M memory, R register,
// I immediate displacement, C compressed base, digits the index scale.
const (
	MR asm.AddressingMode = 1 + iota
	MRI
	MR1
	MR2
	MR4
	MR8
	MR1I
	MR2I
	MR4I
	MR8I
	M1
	M2
	M4
	M8
	M1I
	M2I
	M4I
	M8I
	Root
	MCR
	MCRI
)

// RoundingMode values go to the misc field of round instructions.
const (
	RoundToNearest = iota
	RoundDown
	RoundUp
	RoundToZero
)

// Scaled modes ordered by scale exponent.
var (
	ModesMR  = [4]asm.AddressingMode{MR1, MR2, MR4, MR8}
	ModesMRI = [4]asm.AddressingMode{MR1I, MR2I, MR4I, MR8I}
	ModesM   = [4]asm.AddressingMode{M1, M2, M4, M8}
	ModesMI  = [4]asm.AddressingMode{M1I, M2I, M4I, M8I}
)

var names = map[asm.ArchOpcode]string{
	Add: "X64Add", Add32: "X64Add32", And: "X64And", And32: "X64And32",
	Cmp: "X64Cmp", Cmp32: "X64Cmp32", Cmp16: "X64Cmp16", Cmp8: "X64Cmp8",
	Test: "X64Test", Test32: "X64Test32", Test16: "X64Test16", Test8: "X64Test8",
	Or: "X64Or", Or32: "X64Or32", Xor: "X64Xor", Xor32: "X64Xor32",
	Sub: "X64Sub", Sub32: "X64Sub32", Imul: "X64Imul", Imul32: "X64Imul32",
	ImulHigh32: "X64ImulHigh32", UmulHigh32: "X64UmulHigh32",
	Idiv: "X64Idiv", Idiv32: "X64Idiv32", Udiv: "X64Udiv", Udiv32: "X64Udiv32",
	Not: "X64Not", Not32: "X64Not32", Neg: "X64Neg", Neg32: "X64Neg32",
	Shl: "X64Shl", Shl32: "X64Shl32", Shr: "X64Shr", Shr32: "X64Shr32",
	Sar: "X64Sar", Sar32: "X64Sar32", Rol: "X64Rol", Rol32: "X64Rol32",
	Ror: "X64Ror", Ror32: "X64Ror32", Lzcnt: "X64Lzcnt", Lzcnt32: "X64Lzcnt32",
	Tzcnt: "X64Tzcnt", Tzcnt32: "X64Tzcnt32", Popcnt: "X64Popcnt", Popcnt32: "X64Popcnt32",
	Bswap: "X64Bswap", Bswap32: "X64Bswap32",

	Movsxbl: "X64Movsxbl", Movzxbl: "X64Movzxbl", Movsxbq: "X64Movsxbq", Movzxbq: "X64Movzxbq",
	Movb: "X64Movb", Movsxwl: "X64Movsxwl", Movzxwl: "X64Movzxwl", Movsxwq: "X64Movsxwq",
	Movzxwq: "X64Movzxwq", Movw: "X64Movw", Movl: "X64Movl", Movsxlq: "X64Movsxlq",
	Movq: "X64Movq", Movsd: "X64Movsd", Movss: "X64Movss", Movdqu: "X64Movdqu",
	MovqDecompressTaggedSigned: "X64MovqDecompressTaggedSigned",
	MovqDecompressTagged:       "X64MovqDecompressTagged",
	MovqCompressTagged:         "X64MovqCompressTagged",
	Lea: "X64Lea", Lea32: "X64Lea32", Push: "X64Push", Poke: "X64Poke", Peek: "X64Peek",
	MFence: "X64MFence",

	AtomicStoreWord8: "X64AtomicStoreWord8", AtomicStoreWord16: "X64AtomicStoreWord16",
	AtomicStoreWord32: "X64AtomicStoreWord32", AtomicStoreWord64: "X64AtomicStoreWord64",
	AtomicExchangeInt8: "X64AtomicExchangeInt8", AtomicExchangeUint8: "X64AtomicExchangeUint8", AtomicExchangeInt16: "X64AtomicExchangeInt16",
	AtomicExchangeUint16: "X64AtomicExchangeUint16", AtomicExchangeWord32: "X64AtomicExchangeWord32", AtomicExchangeWord64: "X64AtomicExchangeWord64",
	AtomicCompareExchangeInt8: "X64AtomicCompareExchangeInt8", AtomicCompareExchangeUint8: "X64AtomicCompareExchangeUint8", AtomicCompareExchangeInt16: "X64AtomicCompareExchangeInt16",
	AtomicCompareExchangeUint16: "X64AtomicCompareExchangeUint16", AtomicCompareExchangeWord32: "X64AtomicCompareExchangeWord32", AtomicCompareExchangeWord64: "X64AtomicCompareExchangeWord64",
	AtomicAddInt8: "X64AtomicAddInt8", AtomicAddUint8: "X64AtomicAddUint8", AtomicAddInt16: "X64AtomicAddInt16",
	AtomicAddUint16: "X64AtomicAddUint16", AtomicAddWord32: "X64AtomicAddWord32", AtomicAddWord64: "X64AtomicAddWord64",
	AtomicSubInt8: "X64AtomicSubInt8", AtomicSubUint8: "X64AtomicSubUint8", AtomicSubInt16: "X64AtomicSubInt16",
	AtomicSubUint16: "X64AtomicSubUint16", AtomicSubWord32: "X64AtomicSubWord32", AtomicSubWord64: "X64AtomicSubWord64",
	AtomicAndInt8: "X64AtomicAndInt8", AtomicAndUint8: "X64AtomicAndUint8", AtomicAndInt16: "X64AtomicAndInt16",
	AtomicAndUint16: "X64AtomicAndUint16", AtomicAndWord32: "X64AtomicAndWord32", AtomicAndWord64: "X64AtomicAndWord64",
	AtomicOrInt8: "X64AtomicOrInt8", AtomicOrUint8: "X64AtomicOrUint8", AtomicOrInt16: "X64AtomicOrInt16",
	AtomicOrUint16: "X64AtomicOrUint16", AtomicOrWord32: "X64AtomicOrWord32", AtomicOrWord64: "X64AtomicOrWord64",
	AtomicXorInt8: "X64AtomicXorInt8", AtomicXorUint8: "X64AtomicXorUint8", AtomicXorInt16: "X64AtomicXorInt16",
	AtomicXorUint16: "X64AtomicXorUint16", AtomicXorWord32: "X64AtomicXorWord32", AtomicXorWord64: "X64AtomicXorWord64",

	SSEFloat32Cmp: "SSEFloat32Cmp", SSEFloat32Add: "SSEFloat32Add", SSEFloat32Sub: "SSEFloat32Sub",
	SSEFloat32Mul: "SSEFloat32Mul", SSEFloat32Div: "SSEFloat32Div", SSEFloat32Sqrt: "SSEFloat32Sqrt",
	SSEFloat32Round: "SSEFloat32Round",
	SSEFloat64Cmp: "SSEFloat64Cmp", SSEFloat64Add: "SSEFloat64Add", SSEFloat64Sub: "SSEFloat64Sub",
	SSEFloat64Mul: "SSEFloat64Mul", SSEFloat64Div: "SSEFloat64Div", SSEFloat64Mod: "SSEFloat64Mod",
	SSEFloat64Sqrt: "SSEFloat64Sqrt", SSEFloat64Round: "SSEFloat64Round",
	SSEFloat64Max: "SSEFloat64Max", SSEFloat64Min: "SSEFloat64Min",
	SSEFloat32ToFloat64: "SSEFloat32ToFloat64", SSEFloat64ToFloat32: "SSEFloat64ToFloat32",
	SSEFloat64ToInt32: "SSEFloat64ToInt32", SSEFloat64ToUint32: "SSEFloat64ToUint32",
	SSEFloat64ToInt64: "SSEFloat64ToInt64", SSEInt32ToFloat32: "SSEInt32ToFloat32",
	SSEInt32ToFloat64: "SSEInt32ToFloat64", SSEInt64ToFloat64: "SSEInt64ToFloat64",
	SSEUint32ToFloat64: "SSEUint32ToFloat64",

	AVXFloat32Cmp: "AVXFloat32Cmp", AVXFloat32Add: "AVXFloat32Add", AVXFloat32Sub: "AVXFloat32Sub",
	AVXFloat32Mul: "AVXFloat32Mul", AVXFloat32Div: "AVXFloat32Div",
	AVXFloat64Cmp: "AVXFloat64Cmp", AVXFloat64Add: "AVXFloat64Add", AVXFloat64Sub: "AVXFloat64Sub",
	AVXFloat64Mul: "AVXFloat64Mul", AVXFloat64Div: "AVXFloat64Div",

	Float32Abs: "X64Float32Abs", Float32Neg: "X64Float32Neg",
	Float64Abs: "X64Float64Abs", Float64Neg: "X64Float64Neg",

	BitcastFI: "X64BitcastFI", BitcastDL: "X64BitcastDL", BitcastIF: "X64BitcastIF", BitcastLD: "X64BitcastLD",
	Float64ExtractLowWord32:  "X64Float64ExtractLowWord32",
	Float64ExtractHighWord32: "X64Float64ExtractHighWord32",

	S128Zero: "X64S128Zero", F64x2Add: "X64F64x2Add", F32x4Add: "X64F32x4Add",
	I32x4Add: "X64I32x4Add", I64x2Add: "X64I64x2Add", I32x4Splat: "X64I32x4Splat",
	F32x8Add: "X64F32x8Add", I32x8Add: "X64I32x8Add",
}

var modeNames = map[asm.AddressingMode]string{
	MR: "MR", MRI: "MRI",
	MR1: "MR1", MR2: "MR2", MR4: "MR4", MR8: "MR8",
	MR1I: "MR1I", MR2I: "MR2I", MR4I: "MR4I", MR8I: "MR8I",
	M1: "M1", M2: "M2", M4: "M4", M8: "M8",
	M1I: "M1I", M2I: "M2I", M4I: "M4I", M8I: "M8I",
	Root: "Root", MCR: "MCR", MCRI: "MCRI",
}

func init() {
	if lastOpcode > 1<<9 {
		panic("x64: too many opcodes")
	}

	asm.RegisterOpcodes(names)
	asm.RegisterModes(modeNames)
}

// ScaleOf returns the index scale exponent of a scaled mode or -1.
func ScaleOf(m asm.AddressingMode) int {
	for _, tab := range [][4]asm.AddressingMode{ModesMR, ModesMRI, ModesM, ModesMI} {
		for i, x := range tab {
			if x == m {
				return i
			}
		}
	}

	return -1
}

// HasDisplacement reports whether mode m ends with an immediate operand.
func HasDisplacement(m asm.AddressingMode) bool {
	switch m {
	case MRI, MR1I, MR2I, MR4I, MR8I, M1I, M2I, M4I, M8I, Root, MCRI:
		return true
	}

	return false
}

// InputCount is the number of operands mode m consumes.
func InputCount(m asm.AddressingMode) int {
	switch m {
	case MR, M1, M2, M4, M8, Root, MCR:
		return 1
	case MRI, MR1, MR2, MR4, MR8, M1I, M2I, M4I, M8I, MCRI:
		return 2
	case MR1I, MR2I, MR4I, MR8I:
		return 3
	}

	return 0
}
