package ir

import (
	"strconv"

	"tlog.app/go/tlog/tlwire"
)

type (
	Opcode int
	Props  uint8

	OpInfo struct {
		Name  string
		Props Props
	}
)

const (
	Pure Props = 1 << iota
	Eliminatable
	Writes
	Commutative
	ControlOp
)

const (
	opInvalid Opcode = iota

	// control
	Start
	End
	Loop
	Merge
	Branch
	IfTrue
	IfFalse
	IfSuccess
	IfException
	Switch
	IfValue
	IfDefault
	Return
	TailCall
	Deoptimize
	Throw
	Terminate
	EffectPhi
	Checkpoint
	BeginRegion
	FinishRegion

	// state
	FrameState
	StateValues
	TypedStateValues
	ObjectID
	TypedObjectState
	ArgumentsElementsState
	ArgumentsLengthState
	OptimizedOut

	// common values
	Parameter
	OsrValue
	Phi
	Projection
	Int32Constant
	Int64Constant
	Float32Constant
	Float64Constant
	NumberConstant
	HeapConstant
	CompressedHeapConstant
	ExternalConstant
	RelocatableInt32Constant
	RelocatableInt64Constant
	Retain
	Comment
	DebugBreak
	Unreachable
	DeadValue
	StackSlot
	LoadFramePointer
	LoadParentFramePointer
	LoadStackCheckOffset
	LoadRootRegister
	StackPointerGreaterThan

	// calls and checks
	Call
	DeoptimizeIf
	DeoptimizeUnless
	TrapIf
	TrapUnless

	// memory
	Load
	LoadImmutable
	ProtectedLoad
	Store
	ProtectedStore
	MemoryBarrier

	// atomics
	Word32AtomicLoad
	Word32AtomicStore
	Word32AtomicExchange
	Word32AtomicCompareExchange
	Word32AtomicAdd
	Word32AtomicSub
	Word32AtomicAnd
	Word32AtomicOr
	Word32AtomicXor
	Word64AtomicLoad
	Word64AtomicStore
	Word64AtomicExchange
	Word64AtomicCompareExchange
	Word64AtomicAdd
	Word64AtomicSub
	Word64AtomicAnd
	Word64AtomicOr
	Word64AtomicXor

	// word32
	Word32And
	Word32Or
	Word32Xor
	Word32Shl
	Word32Shr
	Word32Sar
	Word32Rol
	Word32Ror
	Word32Equal
	Word32Clz
	Word32Ctz
	Word32Popcnt
	Word32ReverseBytes
	Word32Select

	// word64
	Word64And
	Word64Or
	Word64Xor
	Word64Shl
	Word64Shr
	Word64Sar
	Word64Rol
	Word64Ror
	Word64Equal
	Word64Clz
	Word64Ctz
	Word64Popcnt
	Word64ReverseBytes
	Word64Select

	// int32
	Int32Add
	Int32AddWithOverflow
	Int32Sub
	Int32SubWithOverflow
	Int32Mul
	Int32MulWithOverflow
	Int32MulHigh
	Int32Div
	Int32Mod
	Int32LessThan
	Int32LessThanOrEqual
	Uint32Div
	Uint32Mod
	Uint32LessThan
	Uint32LessThanOrEqual
	Uint32MulHigh

	// int64
	Int64Add
	Int64AddWithOverflow
	Int64Sub
	Int64SubWithOverflow
	Int64Mul
	Int64MulWithOverflow
	Int64Div
	Int64Mod
	Int64LessThan
	Int64LessThanOrEqual
	Uint64Div
	Uint64Mod
	Uint64LessThan
	Uint64LessThanOrEqual

	// conversions
	ChangeInt32ToInt64
	ChangeUint32ToUint64
	TruncateInt64ToInt32
	ChangeInt32ToFloat64
	ChangeUint32ToFloat64
	ChangeInt64ToFloat64
	ChangeFloat64ToInt32
	ChangeFloat64ToUint32
	ChangeFloat64ToInt64
	ChangeFloat32ToFloat64
	TruncateFloat64ToFloat32
	TruncateFloat64ToWord32
	RoundInt32ToFloat32
	BitcastWordToTagged
	BitcastTaggedToWord
	BitcastFloat32ToInt32
	BitcastInt32ToFloat32
	BitcastFloat64ToInt64
	BitcastInt64ToFloat64
	Float64ExtractLowWord32
	Float64ExtractHighWord32

	// float32
	Float32Add
	Float32Sub
	Float32Mul
	Float32Div
	Float32Abs
	Float32Neg
	Float32Sqrt
	Float32Equal
	Float32LessThan
	Float32LessThanOrEqual
	Float32RoundDown
	Float32RoundUp
	Float32RoundTruncate
	Float32RoundTiesEven
	Float32Select

	// float64
	Float64Add
	Float64Sub
	Float64Mul
	Float64Div
	Float64Mod
	Float64Max
	Float64Min
	Float64Abs
	Float64Neg
	Float64Sqrt
	Float64Equal
	Float64LessThan
	Float64LessThanOrEqual
	Float64RoundDown
	Float64RoundUp
	Float64RoundTruncate
	Float64RoundTiesEven
	Float64Select

	// simd
	S128Zero
	F64x2Add
	F32x4Add
	I32x4Add
	I64x2Add
	I32x4Splat
	F32x8Add
	I32x8Add

	NumOpcodes
)

var opInfo = [NumOpcodes]OpInfo{
	Start:        {"Start", ControlOp},
	End:          {"End", ControlOp},
	Loop:         {"Loop", ControlOp},
	Merge:        {"Merge", ControlOp},
	Branch:       {"Branch", ControlOp},
	IfTrue:       {"IfTrue", ControlOp},
	IfFalse:      {"IfFalse", ControlOp},
	IfSuccess:    {"IfSuccess", ControlOp},
	IfException:  {"IfException", ControlOp},
	Switch:       {"Switch", ControlOp},
	IfValue:      {"IfValue", ControlOp},
	IfDefault:    {"IfDefault", ControlOp},
	Return:       {"Return", ControlOp},
	TailCall:     {"TailCall", ControlOp},
	Deoptimize:   {"Deoptimize", ControlOp},
	Throw:        {"Throw", ControlOp},
	Terminate:    {"Terminate", ControlOp},
	EffectPhi:    {"EffectPhi", Pure},
	Checkpoint:   {"Checkpoint", 0},
	BeginRegion:  {"BeginRegion", 0},
	FinishRegion: {"FinishRegion", Eliminatable},

	FrameState:             {"FrameState", Pure},
	StateValues:            {"StateValues", Pure},
	TypedStateValues:       {"TypedStateValues", Pure},
	ObjectID:               {"ObjectId", Pure},
	TypedObjectState:       {"TypedObjectState", Pure},
	ArgumentsElementsState: {"ArgumentsElementsState", Pure},
	ArgumentsLengthState:   {"ArgumentsLengthState", Pure},
	OptimizedOut:           {"OptimizedOut", Pure},

	Parameter:                {"Parameter", Pure},
	OsrValue:                 {"OsrValue", 0},
	Phi:                      {"Phi", Pure},
	Projection:               {"Projection", Pure},
	Int32Constant:            {"Int32Constant", Pure},
	Int64Constant:            {"Int64Constant", Pure},
	Float32Constant:          {"Float32Constant", Pure},
	Float64Constant:          {"Float64Constant", Pure},
	NumberConstant:           {"NumberConstant", Pure},
	HeapConstant:             {"HeapConstant", Pure},
	CompressedHeapConstant:   {"CompressedHeapConstant", Pure},
	ExternalConstant:         {"ExternalConstant", Pure},
	RelocatableInt32Constant: {"RelocatableInt32Constant", Pure},
	RelocatableInt64Constant: {"RelocatableInt64Constant", Pure},
	Retain:                   {"Retain", 0},
	Comment:                  {"Comment", 0},
	DebugBreak:               {"DebugBreak", 0},
	Unreachable:              {"Unreachable", 0},
	DeadValue:                {"DeadValue", Pure},
	StackSlot:                {"StackSlot", Eliminatable},
	LoadFramePointer:         {"LoadFramePointer", Pure},
	LoadParentFramePointer:   {"LoadParentFramePointer", Pure},
	LoadStackCheckOffset:     {"LoadStackCheckOffset", Pure},
	LoadRootRegister:         {"LoadRootRegister", Pure},
	StackPointerGreaterThan:  {"StackPointerGreaterThan", Eliminatable},

	Call:             {"Call", Writes},
	DeoptimizeIf:     {"DeoptimizeIf", 0},
	DeoptimizeUnless: {"DeoptimizeUnless", 0},
	TrapIf:           {"TrapIf", 0},
	TrapUnless:       {"TrapUnless", 0},

	Load:           {"Load", Eliminatable},
	LoadImmutable:  {"LoadImmutable", Pure},
	ProtectedLoad:  {"ProtectedLoad", 0},
	Store:          {"Store", Writes},
	ProtectedStore: {"ProtectedStore", Writes},
	MemoryBarrier:  {"MemoryBarrier", Writes},

	Word32AtomicLoad:            {"Word32AtomicLoad", Writes},
	Word32AtomicStore:           {"Word32AtomicStore", Writes},
	Word32AtomicExchange:        {"Word32AtomicExchange", Writes},
	Word32AtomicCompareExchange: {"Word32AtomicCompareExchange", Writes},
	Word32AtomicAdd:             {"Word32AtomicAdd", Writes},
	Word32AtomicSub:             {"Word32AtomicSub", Writes},
	Word32AtomicAnd:             {"Word32AtomicAnd", Writes},
	Word32AtomicOr:              {"Word32AtomicOr", Writes},
	Word32AtomicXor:             {"Word32AtomicXor", Writes},
	Word64AtomicLoad:            {"Word64AtomicLoad", Writes},
	Word64AtomicStore:           {"Word64AtomicStore", Writes},
	Word64AtomicExchange:        {"Word64AtomicExchange", Writes},
	Word64AtomicCompareExchange: {"Word64AtomicCompareExchange", Writes},
	Word64AtomicAdd:             {"Word64AtomicAdd", Writes},
	Word64AtomicSub:             {"Word64AtomicSub", Writes},
	Word64AtomicAnd:             {"Word64AtomicAnd", Writes},
	Word64AtomicOr:              {"Word64AtomicOr", Writes},
	Word64AtomicXor:             {"Word64AtomicXor", Writes},

	Word32And:          {"Word32And", Pure | Commutative},
	Word32Or:           {"Word32Or", Pure | Commutative},
	Word32Xor:          {"Word32Xor", Pure | Commutative},
	Word32Shl:          {"Word32Shl", Pure},
	Word32Shr:          {"Word32Shr", Pure},
	Word32Sar:          {"Word32Sar", Pure},
	Word32Rol:          {"Word32Rol", Pure},
	Word32Ror:          {"Word32Ror", Pure},
	Word32Equal:        {"Word32Equal", Pure | Commutative},
	Word32Clz:          {"Word32Clz", Pure},
	Word32Ctz:          {"Word32Ctz", Pure},
	Word32Popcnt:       {"Word32Popcnt", Pure},
	Word32ReverseBytes: {"Word32ReverseBytes", Pure},
	Word32Select:       {"Word32Select", Pure},

	Word64And:          {"Word64And", Pure | Commutative},
	Word64Or:           {"Word64Or", Pure | Commutative},
	Word64Xor:          {"Word64Xor", Pure | Commutative},
	Word64Shl:          {"Word64Shl", Pure},
	Word64Shr:          {"Word64Shr", Pure},
	Word64Sar:          {"Word64Sar", Pure},
	Word64Rol:          {"Word64Rol", Pure},
	Word64Ror:          {"Word64Ror", Pure},
	Word64Equal:        {"Word64Equal", Pure | Commutative},
	Word64Clz:          {"Word64Clz", Pure},
	Word64Ctz:          {"Word64Ctz", Pure},
	Word64Popcnt:       {"Word64Popcnt", Pure},
	Word64ReverseBytes: {"Word64ReverseBytes", Pure},
	Word64Select:       {"Word64Select", Pure},

	Int32Add:              {"Int32Add", Pure | Commutative},
	Int32AddWithOverflow:  {"Int32AddWithOverflow", Pure | Commutative},
	Int32Sub:              {"Int32Sub", Pure},
	Int32SubWithOverflow:  {"Int32SubWithOverflow", Pure},
	Int32Mul:              {"Int32Mul", Pure | Commutative},
	Int32MulWithOverflow:  {"Int32MulWithOverflow", Pure | Commutative},
	Int32MulHigh:          {"Int32MulHigh", Pure | Commutative},
	Int32Div:              {"Int32Div", 0},
	Int32Mod:              {"Int32Mod", 0},
	Int32LessThan:         {"Int32LessThan", Pure},
	Int32LessThanOrEqual:  {"Int32LessThanOrEqual", Pure},
	Uint32Div:             {"Uint32Div", 0},
	Uint32Mod:             {"Uint32Mod", 0},
	Uint32LessThan:        {"Uint32LessThan", Pure},
	Uint32LessThanOrEqual: {"Uint32LessThanOrEqual", Pure},
	Uint32MulHigh:         {"Uint32MulHigh", Pure | Commutative},

	Int64Add:              {"Int64Add", Pure | Commutative},
	Int64AddWithOverflow:  {"Int64AddWithOverflow", Pure | Commutative},
	Int64Sub:              {"Int64Sub", Pure},
	Int64SubWithOverflow:  {"Int64SubWithOverflow", Pure},
	Int64Mul:              {"Int64Mul", Pure | Commutative},
	Int64MulWithOverflow:  {"Int64MulWithOverflow", Pure | Commutative},
	Int64Div:              {"Int64Div", 0},
	Int64Mod:              {"Int64Mod", 0},
	Int64LessThan:         {"Int64LessThan", Pure},
	Int64LessThanOrEqual:  {"Int64LessThanOrEqual", Pure},
	Uint64Div:             {"Uint64Div", 0},
	Uint64Mod:             {"Uint64Mod", 0},
	Uint64LessThan:        {"Uint64LessThan", Pure},
	Uint64LessThanOrEqual: {"Uint64LessThanOrEqual", Pure},

	ChangeInt32ToInt64:       {"ChangeInt32ToInt64", Pure},
	ChangeUint32ToUint64:     {"ChangeUint32ToUint64", Pure},
	TruncateInt64ToInt32:     {"TruncateInt64ToInt32", Pure},
	ChangeInt32ToFloat64:     {"ChangeInt32ToFloat64", Pure},
	ChangeUint32ToFloat64:    {"ChangeUint32ToFloat64", Pure},
	ChangeInt64ToFloat64:     {"ChangeInt64ToFloat64", Pure},
	ChangeFloat64ToInt32:     {"ChangeFloat64ToInt32", Pure},
	ChangeFloat64ToUint32:    {"ChangeFloat64ToUint32", Pure},
	ChangeFloat64ToInt64:     {"ChangeFloat64ToInt64", Pure},
	ChangeFloat32ToFloat64:   {"ChangeFloat32ToFloat64", Pure},
	TruncateFloat64ToFloat32: {"TruncateFloat64ToFloat32", Pure},
	TruncateFloat64ToWord32:  {"TruncateFloat64ToWord32", Pure},
	RoundInt32ToFloat32:      {"RoundInt32ToFloat32", Pure},
	BitcastWordToTagged:      {"BitcastWordToTagged", Pure},
	BitcastTaggedToWord:      {"BitcastTaggedToWord", Pure},
	BitcastFloat32ToInt32:    {"BitcastFloat32ToInt32", Pure},
	BitcastInt32ToFloat32:    {"BitcastInt32ToFloat32", Pure},
	BitcastFloat64ToInt64:    {"BitcastFloat64ToInt64", Pure},
	BitcastInt64ToFloat64:    {"BitcastInt64ToFloat64", Pure},
	Float64ExtractLowWord32:  {"Float64ExtractLowWord32", Pure},
	Float64ExtractHighWord32: {"Float64ExtractHighWord32", Pure},

	Float32Add:             {"Float32Add", Pure | Commutative},
	Float32Sub:             {"Float32Sub", Pure},
	Float32Mul:             {"Float32Mul", Pure | Commutative},
	Float32Div:             {"Float32Div", Pure},
	Float32Abs:             {"Float32Abs", Pure},
	Float32Neg:             {"Float32Neg", Pure},
	Float32Sqrt:            {"Float32Sqrt", Pure},
	Float32Equal:           {"Float32Equal", Pure | Commutative},
	Float32LessThan:        {"Float32LessThan", Pure},
	Float32LessThanOrEqual: {"Float32LessThanOrEqual", Pure},
	Float32RoundDown:       {"Float32RoundDown", Pure},
	Float32RoundUp:         {"Float32RoundUp", Pure},
	Float32RoundTruncate:   {"Float32RoundTruncate", Pure},
	Float32RoundTiesEven:   {"Float32RoundTiesEven", Pure},
	Float32Select:          {"Float32Select", Pure},

	Float64Add:             {"Float64Add", Pure | Commutative},
	Float64Sub:             {"Float64Sub", Pure},
	Float64Mul:             {"Float64Mul", Pure | Commutative},
	Float64Div:             {"Float64Div", Pure},
	Float64Mod:             {"Float64Mod", Pure},
	Float64Max:             {"Float64Max", Pure},
	Float64Min:             {"Float64Min", Pure},
	Float64Abs:             {"Float64Abs", Pure},
	Float64Neg:             {"Float64Neg", Pure},
	Float64Sqrt:            {"Float64Sqrt", Pure},
	Float64Equal:           {"Float64Equal", Pure | Commutative},
	Float64LessThan:        {"Float64LessThan", Pure},
	Float64LessThanOrEqual: {"Float64LessThanOrEqual", Pure},
	Float64RoundDown:       {"Float64RoundDown", Pure},
	Float64RoundUp:         {"Float64RoundUp", Pure},
	Float64RoundTruncate:   {"Float64RoundTruncate", Pure},
	Float64RoundTiesEven:   {"Float64RoundTiesEven", Pure},
	Float64Select:          {"Float64Select", Pure},

	S128Zero:   {"S128Zero", Pure},
	F64x2Add:   {"F64x2Add", Pure | Commutative},
	F32x4Add:   {"F32x4Add", Pure | Commutative},
	I32x4Add:   {"I32x4Add", Pure | Commutative},
	I64x2Add:   {"I64x2Add", Pure | Commutative},
	I32x4Splat: {"I32x4Splat", Pure},
	F32x8Add:   {"F32x8Add", Pure | Commutative},
	I32x8Add:   {"I32x8Add", Pure | Commutative},
}

var opByName map[string]Opcode

func init() {
	opByName = make(map[string]Opcode, len(opInfo))

	for op, inf := range opInfo {
		if inf.Name == "" {
			continue
		}

		opByName[inf.Name] = Opcode(op)
	}
}

func Info(op Opcode) OpInfo {
	if op <= opInvalid || op >= NumOpcodes {
		return OpInfo{}
	}

	return opInfo[op]
}

// OpcodeByName is the inverse of Opcode.String.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

func (op Opcode) Has(p Props) bool {
	return Info(op).Props&p == p
}

func (op Opcode) IsAtomic() bool {
	return op >= Word32AtomicLoad && op <= Word64AtomicXor
}

// IsPure nodes have no effects and no control dependencies.
func (op Opcode) IsPure() bool { return op.Has(Pure) }

// IsEliminatable nodes may be dropped when unused.
func (op Opcode) IsEliminatable() bool {
	return op.Has(Pure) || op.Has(Eliminatable)
}

func (op Opcode) IsCommutative() bool { return op.Has(Commutative) }

// BumpsEffectLevel is true for operations with effects observable by later loads.
func (op Opcode) BumpsEffectLevel() bool { return op.Has(Writes) }

func (op Opcode) IsConstant() bool {
	switch op {
	case Int32Constant, Int64Constant, Float32Constant, Float64Constant,
		NumberConstant, HeapConstant, CompressedHeapConstant, ExternalConstant,
		RelocatableInt32Constant, RelocatableInt64Constant:
		return true
	}

	return false
}

func (op Opcode) String() string {
	if n := Info(op).Name; n != "" {
		return n
	}

	return "Opcode(" + strconv.Itoa(int(op)) + ")"
}

func (op Opcode) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, op.String())
}
