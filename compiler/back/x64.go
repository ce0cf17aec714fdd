package back

import (
	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/asm/x64"
	"github.com/slowlang/isel/compiler/ir"
)

type (
	// X64 selects x86-64 instructions. Instruction set extensions
	// are used only when present in Features.
	X64 struct {
		f Features
	}
)

func init() {
	RegisterArch("x64", func(f Features) Arch { return NewX64(f) })
}

func NewX64(f Features) *X64 {
	return &X64{f: f}
}

func (a *X64) Name() string { return "x64" }

func (a *X64) Features() Features { return a.f }

func (a *X64) IsTailCallAddressImmediate() bool { return true }

func (a *X64) CodeStartRegister() int { return int(x64.CodeStartRegister) }

func (a *X64) ReturnRegister() int { return int(x64.ReturnRegister) }

func (a *X64) Visitors(t *Table) {
	w32 := func(f func(*Selector, ir.Node)) Visitor { return Visitor{Rep: ir.RepWord32, Visit: f} }
	w64 := func(f func(*Selector, ir.Node)) Visitor { return Visitor{Rep: ir.RepWord64, Visit: f} }

	// memory

	t.Set(Visitor{Visit: a.visitLoad}, ir.Load, ir.LoadImmutable, ir.ProtectedLoad)
	t.Set(Visitor{Visit: a.visitStore}, ir.Store, ir.ProtectedStore)
	t[ir.MemoryBarrier] = Visitor{Visit: a.visitMemoryBarrier}
	a.atomicVisitors(t)

	// word32

	t[ir.Word32And] = w32(a.visitWord32And)
	t[ir.Word32Or] = w32(a.binop(x64.Or32))
	t[ir.Word32Xor] = w32(a.visitWordXor(x64.Xor32, x64.Not32))
	t[ir.Word32Shl] = w32(a.visitWord32Shl)
	t[ir.Word32Shr] = w32(a.shift32(x64.Shr32))
	t[ir.Word32Sar] = w32(a.visitWord32Sar)
	t[ir.Word32Rol] = w32(a.shift32(x64.Rol32))
	t[ir.Word32Ror] = w32(a.shift32(x64.Ror32))
	t[ir.Word32Equal] = w32(a.visitWord32Equal)
	t[ir.Word32ReverseBytes] = w32(a.sameAsFirst(x64.Bswap32))

	// word64

	t[ir.Word64And] = w64(a.visitWord64And)
	t[ir.Word64Or] = w64(a.binop(x64.Or))
	t[ir.Word64Xor] = w64(a.visitWordXor(x64.Xor, x64.Not))
	t[ir.Word64Shl] = w64(a.visitWord64Shl)
	t[ir.Word64Shr] = w64(a.visitWord64Shr)
	t[ir.Word64Sar] = w64(a.visitWord64Sar)
	t[ir.Word64Rol] = w64(a.shift64(x64.Rol))
	t[ir.Word64Ror] = w64(a.shift64(x64.Ror))
	t[ir.Word64Equal] = w32(a.visitWord64Equal)
	t[ir.Word64ReverseBytes] = w64(a.sameAsFirst(x64.Bswap))

	t.RO(
		Simple{Op: ir.Word32Clz, Rep: ir.RepWord32, Code: x64.Lzcnt32},
		Simple{Op: ir.Word64Clz, Rep: ir.RepWord64, Code: x64.Lzcnt},
		Simple{Op: ir.Word32Ctz, Rep: ir.RepWord32, Code: x64.Tzcnt32},
		Simple{Op: ir.Word64Ctz, Rep: ir.RepWord64, Code: x64.Tzcnt},
	)

	if a.f.POPCNT {
		t.RO(
			Simple{Op: ir.Word32Popcnt, Rep: ir.RepWord32, Code: x64.Popcnt32},
			Simple{Op: ir.Word64Popcnt, Rep: ir.RepWord64, Code: x64.Popcnt},
		)
	}

	// arithmetic

	t[ir.Int32Add] = w32(a.visitInt32Add)
	t[ir.Int64Add] = w64(a.visitInt64Add)
	t[ir.Int32Sub] = w32(a.visitInt32Sub)
	t[ir.Int64Sub] = w64(a.visitInt64Sub)

	t[ir.Int32AddWithOverflow] = w32(a.overflow(x64.Add32))
	t[ir.Int32SubWithOverflow] = w32(a.overflow(x64.Sub32))
	t[ir.Int32MulWithOverflow] = w32(a.overflow(x64.Imul32))
	t[ir.Int64AddWithOverflow] = w64(a.overflow(x64.Add))
	t[ir.Int64SubWithOverflow] = w64(a.overflow(x64.Sub))
	t[ir.Int64MulWithOverflow] = w64(a.overflow(x64.Imul))

	t[ir.Int32Mul] = w32(a.mul(addr32, x64.Lea32, x64.Imul32))
	t[ir.Int64Mul] = w64(a.mul(addr64, x64.Lea, x64.Imul))
	t[ir.Int32MulHigh] = w32(a.mulHigh(x64.ImulHigh32))
	t[ir.Uint32MulHigh] = w32(a.mulHigh(x64.UmulHigh32))

	t[ir.Int32Div] = w32(a.div(x64.Idiv32))
	t[ir.Uint32Div] = w32(a.div(x64.Udiv32))
	t[ir.Int64Div] = w64(a.div(x64.Idiv))
	t[ir.Uint64Div] = w64(a.div(x64.Udiv))
	t[ir.Int32Mod] = w32(a.mod(x64.Idiv32))
	t[ir.Uint32Mod] = w32(a.mod(x64.Udiv32))
	t[ir.Int64Mod] = w64(a.mod(x64.Idiv))
	t[ir.Uint64Mod] = w64(a.mod(x64.Udiv))

	// compares produce a bit

	t[ir.Int32LessThan] = w32(a.compare(x64.Cmp32, asm.CondSignedLessThan))
	t[ir.Int32LessThanOrEqual] = w32(a.compare(x64.Cmp32, asm.CondSignedLessThanOrEqual))
	t[ir.Uint32LessThan] = w32(a.compare(x64.Cmp32, asm.CondUnsignedLessThan))
	t[ir.Uint32LessThanOrEqual] = w32(a.compare(x64.Cmp32, asm.CondUnsignedLessThanOrEqual))
	t[ir.Int64LessThan] = w32(a.compare(x64.Cmp, asm.CondSignedLessThan))
	t[ir.Int64LessThanOrEqual] = w32(a.compare(x64.Cmp, asm.CondSignedLessThanOrEqual))
	t[ir.Uint64LessThan] = w32(a.compare(x64.Cmp, asm.CondUnsignedLessThan))
	t[ir.Uint64LessThanOrEqual] = w32(a.compare(x64.Cmp, asm.CondUnsignedLessThanOrEqual))

	t[ir.Float32Equal] = w32(a.floatCompare(true, asm.CondUnorderedEqual))
	t[ir.Float32LessThan] = w32(a.floatCompare(true, asm.CondUnsignedGreaterThan))
	t[ir.Float32LessThanOrEqual] = w32(a.floatCompare(true, asm.CondUnsignedGreaterThanOrEqual))
	t[ir.Float64Equal] = w32(a.floatCompare(false, asm.CondUnorderedEqual))
	t[ir.Float64LessThan] = w32(a.visitFloat64LessThan)
	t[ir.Float64LessThanOrEqual] = w32(a.floatCompare(false, asm.CondUnsignedGreaterThanOrEqual))

	// conversions

	t[ir.ChangeInt32ToInt64] = w64(a.visitChangeInt32ToInt64)
	t[ir.ChangeUint32ToUint64] = w64(a.visitChangeUint32ToUint64)
	t[ir.TruncateInt64ToInt32] = w32(a.visitTruncateInt64ToInt32)

	t.RO(
		Simple{Op: ir.ChangeInt32ToFloat64, Rep: ir.RepFloat64, Code: x64.SSEInt32ToFloat64},
		Simple{Op: ir.ChangeUint32ToFloat64, Rep: ir.RepFloat64, Code: x64.SSEUint32ToFloat64},
		Simple{Op: ir.ChangeInt64ToFloat64, Rep: ir.RepFloat64, Code: x64.SSEInt64ToFloat64},
		Simple{Op: ir.ChangeFloat64ToInt32, Rep: ir.RepWord32, Code: x64.SSEFloat64ToInt32},
		Simple{Op: ir.ChangeFloat64ToUint32, Rep: ir.RepWord32, Code: x64.SSEFloat64ToUint32, Misc: 1},
		Simple{Op: ir.ChangeFloat64ToInt64, Rep: ir.RepWord64, Code: x64.SSEFloat64ToInt64},
		Simple{Op: ir.ChangeFloat32ToFloat64, Rep: ir.RepFloat64, Code: x64.SSEFloat32ToFloat64},
		Simple{Op: ir.TruncateFloat64ToFloat32, Rep: ir.RepFloat32, Code: x64.SSEFloat64ToFloat32},
		Simple{Op: ir.RoundInt32ToFloat32, Rep: ir.RepFloat32, Code: x64.SSEInt32ToFloat32},
		Simple{Op: ir.BitcastFloat32ToInt32, Rep: ir.RepWord32, Code: x64.BitcastFI},
		Simple{Op: ir.BitcastFloat64ToInt64, Rep: ir.RepWord64, Code: x64.BitcastDL},
		Simple{Op: ir.BitcastInt32ToFloat32, Rep: ir.RepFloat32, Code: x64.BitcastIF},
		Simple{Op: ir.BitcastInt64ToFloat64, Rep: ir.RepFloat64, Code: x64.BitcastLD},
		Simple{Op: ir.Float64ExtractLowWord32, Rep: ir.RepWord32, Code: x64.Float64ExtractLowWord32},
		Simple{Op: ir.Float64ExtractHighWord32, Rep: ir.RepWord32, Code: x64.Float64ExtractHighWord32},
		Simple{Op: ir.Float32Sqrt, Rep: ir.RepFloat32, Code: x64.SSEFloat32Sqrt},
		Simple{Op: ir.Float64Sqrt, Rep: ir.RepFloat64, Code: x64.SSEFloat64Sqrt},
	)

	t.RR(Simple{Op: ir.TruncateFloat64ToWord32, Rep: ir.RepWord32, Code: asm.ArchTruncateDoubleToI})

	if a.f.SSE41 {
		t.RR(
			Simple{Op: ir.Float32RoundDown, Rep: ir.RepFloat32, Code: x64.SSEFloat32Round, Misc: x64.RoundDown},
			Simple{Op: ir.Float32RoundUp, Rep: ir.RepFloat32, Code: x64.SSEFloat32Round, Misc: x64.RoundUp},
			Simple{Op: ir.Float32RoundTruncate, Rep: ir.RepFloat32, Code: x64.SSEFloat32Round, Misc: x64.RoundToZero},
			Simple{Op: ir.Float32RoundTiesEven, Rep: ir.RepFloat32, Code: x64.SSEFloat32Round, Misc: x64.RoundToNearest},
			Simple{Op: ir.Float64RoundDown, Rep: ir.RepFloat64, Code: x64.SSEFloat64Round, Misc: x64.RoundDown},
			Simple{Op: ir.Float64RoundUp, Rep: ir.RepFloat64, Code: x64.SSEFloat64Round, Misc: x64.RoundUp},
			Simple{Op: ir.Float64RoundTruncate, Rep: ir.RepFloat64, Code: x64.SSEFloat64Round, Misc: x64.RoundToZero},
			Simple{Op: ir.Float64RoundTiesEven, Rep: ir.RepFloat64, Code: x64.SSEFloat64Round, Misc: x64.RoundToNearest},
		)
	}

	// float arithmetic

	f32 := func(f func(*Selector, ir.Node)) Visitor { return Visitor{Rep: ir.RepFloat32, Visit: f} }
	f64 := func(f func(*Selector, ir.Node)) Visitor { return Visitor{Rep: ir.RepFloat64, Visit: f} }

	t[ir.Float32Add] = f32(a.floatBinop(x64.AVXFloat32Add, x64.SSEFloat32Add))
	t[ir.Float32Sub] = f32(a.floatBinop(x64.AVXFloat32Sub, x64.SSEFloat32Sub))
	t[ir.Float32Mul] = f32(a.floatBinop(x64.AVXFloat32Mul, x64.SSEFloat32Mul))
	t[ir.Float32Div] = f32(a.floatBinop(x64.AVXFloat32Div, x64.SSEFloat32Div))
	t[ir.Float64Add] = f64(a.floatBinop(x64.AVXFloat64Add, x64.SSEFloat64Add))
	t[ir.Float64Sub] = f64(a.floatBinop(x64.AVXFloat64Sub, x64.SSEFloat64Sub))
	t[ir.Float64Mul] = f64(a.floatBinop(x64.AVXFloat64Mul, x64.SSEFloat64Mul))
	t[ir.Float64Div] = f64(a.floatBinop(x64.AVXFloat64Div, x64.SSEFloat64Div))

	t[ir.Float32Abs] = f32(a.floatUnop(x64.Float32Abs))
	t[ir.Float32Neg] = f32(a.floatUnop(x64.Float32Neg))
	t[ir.Float64Abs] = f64(a.floatUnop(x64.Float64Abs))
	t[ir.Float64Neg] = f64(a.floatUnop(x64.Float64Neg))

	t.RRO(
		Simple{Op: ir.Float64Max, Rep: ir.RepFloat64, Code: x64.SSEFloat64Max},
		Simple{Op: ir.Float64Min, Rep: ir.RepFloat64, Code: x64.SSEFloat64Min},
	)

	t[ir.Float64Mod] = f64(a.visitFloat64Mod)

	// simd

	t[ir.S128Zero] = Visitor{Rep: ir.RepSimd128, Visit: func(s *Selector, n ir.Node) {
		s.Emit(asm.MakeCode(x64.S128Zero), s.Gen().DefineAsRegister(n))
	}}

	t.RR(Simple{Op: ir.I32x4Splat, Rep: ir.RepSimd128, Code: x64.I32x4Splat})

	for _, x := range []Simple{
		{Op: ir.F64x2Add, Code: x64.F64x2Add},
		{Op: ir.F32x4Add, Code: x64.F32x4Add},
		{Op: ir.I32x4Add, Code: x64.I32x4Add},
		{Op: ir.I64x2Add, Code: x64.I64x2Add},
	} {
		t[x.Op] = Visitor{Rep: ir.RepSimd128, Visit: a.simdBinop(x.Code)}
	}

	if a.f.AVX {
		t[ir.F32x8Add] = Visitor{Rep: ir.RepSimd256, Visit: a.simdBinop(x64.F32x8Add)}
	}

	if a.f.AVX2 {
		t[ir.I32x8Add] = Visitor{Rep: ir.RepSimd256, Visit: a.simdBinop(x64.I32x8Add)}
	}
}

func (a *X64) sameAsFirst(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()
		s.Emit(asm.MakeCode(op), g.DefineSameAsFirst(n), g.UseRegister(s.g.Input(n, 0)))
	}
}

// floatBinop uses the three operand AVX form when available.
// It may take the right operand from memory.
func (a *X64) floatBinop(avx, sse asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()

		left, right := s.g.Input(n, 0), s.g.Input(n, 1)

		if !a.f.AVX {
			s.Emit(asm.MakeCode(sse), g.DefineSameAsFirst(n), g.UseRegister(left), g.Use(right))
			return
		}

		out := []asm.Operand{g.DefineAsRegister(n)}
		ins := []asm.Operand{g.UseRegister(left)}

		if a.CanBeMemoryOperand(s, avx, n, right, s.EffectLevel(n)) {
			mode, ins := a.GetEffectiveAddressMemoryOperand(s, right, ins, false)
			s.EmitN(asm.MakeCode(avx).WithMode(mode), out, ins, nil)

			return
		}

		s.EmitN(asm.MakeCode(avx), out, append(ins, g.Use(right)), nil)
	}
}

func (a *X64) floatUnop(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()
		x := s.g.Input(n, 0)

		if a.f.AVX {
			s.Emit(asm.MakeCode(op), g.DefineAsRegister(n), g.UseRegister(x))
			return
		}

		s.Emit(asm.MakeCode(op), g.DefineSameAsFirst(n), g.UseRegister(x))
	}
}

// visitFloat64Mod loops on fprem which clobbers rax through fnstsw.
func (a *X64) visitFloat64Mod(s *Selector, n ir.Node) {
	g := s.Gen()

	s.EmitTemps(asm.MakeCode(x64.SSEFloat64Mod), g.DefineSameAsFirst(n),
		[]asm.Operand{g.UseRegister(s.g.Input(n, 0)), g.UseRegister(s.g.Input(n, 1))},
		g.TempFixedRegister(int(x64.RAX)))
}

func (a *X64) simdBinop(op asm.ArchOpcode) func(s *Selector, n ir.Node) {
	return func(s *Selector, n ir.Node) {
		g := s.Gen()

		left, right := s.g.Input(n, 0), s.g.Input(n, 1)

		out := g.DefineSameAsFirst(n)
		if a.f.AVX {
			out = g.DefineAsRegister(n)
		}

		s.Emit(asm.MakeCode(op), out, g.UseRegister(left), g.UseRegister(right))
	}
}
