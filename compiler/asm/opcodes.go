package asm

import "strconv"

// Arch-independent opcodes. Targets number theirs from FirstTargetOpcode.
const (
	ArchNop ArchOpcode = iota
	ArchJmp
	ArchRet
	ArchTableSwitch
	ArchBinarySearchSwitch
	ArchThrowTerminator
	ArchDeoptimize
	ArchCallCodeObject
	ArchCallJSFunction
	ArchCallWasmFunction
	ArchCallBuiltinPointer
	ArchCallCFunction
	ArchPrepareCallCFunction
	ArchSaveCallerRegisters
	ArchRestoreCallerRegisters
	ArchPrepareTailCall
	ArchTailCallCodeObject
	ArchTailCallAddress
	ArchTailCallWasm
	ArchStackPointerGreaterThan
	ArchStackCheckOffset
	ArchFramePointer
	ArchParentFramePointer
	ArchTruncateDoubleToI
	ArchStoreWithWriteBarrier
	ArchStackSlot
	ArchDebugBreak
	ArchComment

	FirstTargetOpcode
)

var opcodeNames = map[ArchOpcode]string{
	ArchNop:                     "ArchNop",
	ArchJmp:                     "ArchJmp",
	ArchRet:                     "ArchRet",
	ArchTableSwitch:             "ArchTableSwitch",
	ArchBinarySearchSwitch:      "ArchBinarySearchSwitch",
	ArchThrowTerminator:         "ArchThrowTerminator",
	ArchDeoptimize:              "ArchDeoptimize",
	ArchCallCodeObject:          "ArchCallCodeObject",
	ArchCallJSFunction:          "ArchCallJSFunction",
	ArchCallWasmFunction:        "ArchCallWasmFunction",
	ArchCallBuiltinPointer:      "ArchCallBuiltinPointer",
	ArchCallCFunction:           "ArchCallCFunction",
	ArchPrepareCallCFunction:    "ArchPrepareCallCFunction",
	ArchSaveCallerRegisters:     "ArchSaveCallerRegisters",
	ArchRestoreCallerRegisters:  "ArchRestoreCallerRegisters",
	ArchPrepareTailCall:         "ArchPrepareTailCall",
	ArchTailCallCodeObject:      "ArchTailCallCodeObject",
	ArchTailCallAddress:         "ArchTailCallAddress",
	ArchTailCallWasm:            "ArchTailCallWasm",
	ArchStackPointerGreaterThan: "ArchStackPointerGreaterThan",
	ArchStackCheckOffset:        "ArchStackCheckOffset",
	ArchFramePointer:            "ArchFramePointer",
	ArchParentFramePointer:      "ArchParentFramePointer",
	ArchTruncateDoubleToI:       "ArchTruncateDoubleToI",
	ArchStoreWithWriteBarrier:   "ArchStoreWithWriteBarrier",
	ArchStackSlot:               "ArchStackSlot",
	ArchDebugBreak:              "ArchDebugBreak",
	ArchComment:                 "ArchComment",
}

// RegisterOpcodes adds target opcode names. Called from target package init.
func RegisterOpcodes(names map[ArchOpcode]string) {
	for op, n := range names {
		opcodeNames[op] = n
	}
}

func (op ArchOpcode) String() string {
	if n, ok := opcodeNames[op]; ok {
		return n
	}

	return "Opcode" + strconv.Itoa(int(op))
}

// IsCall reports whether op transfers control to another function.
func (op ArchOpcode) IsCall() bool {
	switch op {
	case ArchCallCodeObject, ArchCallJSFunction, ArchCallWasmFunction,
		ArchCallBuiltinPointer, ArchCallCFunction:
		return true
	}

	return false
}

// IsTerminator reports opcodes that end a block.
func (op ArchOpcode) IsTerminator() bool {
	switch op {
	case ArchJmp, ArchRet, ArchTableSwitch, ArchBinarySearchSwitch,
		ArchThrowTerminator, ArchDeoptimize,
		ArchTailCallCodeObject, ArchTailCallAddress, ArchTailCallWasm:
		return true
	}

	return false
}
