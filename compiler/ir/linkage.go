package ir

type (
	LocationKind uint8

	// LinkageLocation is a register code or a stack slot.
	// Caller frame slots are negative: slot i is stored as -1-i.
	LinkageLocation struct {
		Kind  LocationKind
		Value int
		Type  MachineType
	}

	CallKind  uint8
	CallFlags uint16

	CallDescriptor struct {
		Name string
		Kind CallKind

		Target  LinkageLocation
		Params  []LinkageLocation
		Returns []LinkageLocation

		Flags CallFlags
	}

	Linkage struct {
		Incoming *CallDescriptor
	}
)

const (
	LocRegister LocationKind = iota
	LocAnyRegister
	LocCallerFrameSlot
	LocCalleeFrameSlot
)

const (
	CallCodeObject CallKind = iota
	CallAddress
	CallWasmFunction
	CallWasmImportWrapper
	CallBuiltinPointer
	CallJSFunction
)

const (
	FlagNeedsFrameState CallFlags = 1 << iota
	FlagFixedTargetRegister
	FlagCallerSavedRegisters
	FlagCallerSavedFPRegisters
	FlagNoFunctionDescriptor
	FlagCanUseRoots
	FlagHasExceptionHandler
)

// FixedFrameSlots is the number of slots every frame reserves below the
// parameters (return address and saved frame pointer).
const FixedFrameSlots = 2

func RegisterLocation(code int, t MachineType) LinkageLocation {
	return LinkageLocation{Kind: LocRegister, Value: code, Type: t}
}

func AnyRegisterLocation(t MachineType) LinkageLocation {
	return LinkageLocation{Kind: LocAnyRegister, Value: -1, Type: t}
}

func CallerSlotLocation(slot int, t MachineType) LinkageLocation {
	return LinkageLocation{Kind: LocCallerFrameSlot, Value: -1 - slot, Type: t}
}

func CalleeSlotLocation(slot int, t MachineType) LinkageLocation {
	return LinkageLocation{Kind: LocCalleeFrameSlot, Value: slot, Type: t}
}

func (l LinkageLocation) IsRegister() bool { return l.Kind == LocRegister }

func (l LinkageLocation) IsAnyRegister() bool { return l.Kind == LocAnyRegister }

func (l LinkageLocation) IsCallerFrameSlot() bool { return l.Kind == LocCallerFrameSlot }

func (l LinkageLocation) IsCalleeFrameSlot() bool { return l.Kind == LocCalleeFrameSlot }

func (l LinkageLocation) IsSlot() bool {
	return l.Kind == LocCallerFrameSlot || l.Kind == LocCalleeFrameSlot
}

// SlotIndex is the non-negative caller stack index of a caller frame slot.
func (l LinkageLocation) SlotIndex() int { return -l.Value - 1 }

// SizeInPointers is the number of stack slots the location occupies.
func (l LinkageLocation) SizeInPointers() int {
	if l.Type.Rep == RepSimd128 {
		return 2
	}

	if l.Type.Rep == RepSimd256 {
		return 4
	}

	return 1
}

// ToTailCallerLocation moves a stack slot by delta slots.
func (l LinkageLocation) ToTailCallerLocation(delta int) LinkageLocation {
	if !l.IsSlot() {
		return l
	}

	l.Value += delta

	return l
}

// SavedCallerReturnAddress is the slot holding the return address,
// right above the saved frame pointer.
func SavedCallerReturnAddress() LinkageLocation {
	return CalleeSlotLocation(1, TypePointer)
}

func (d *CallDescriptor) InputCount() int { return 1 + len(d.Params) }

func (d *CallDescriptor) ReturnCount() int { return len(d.Returns) }

func (d *CallDescriptor) ParamCount() int { return len(d.Params) }

// InputLocation 0 is the call target.
func (d *CallDescriptor) InputLocation(i int) LinkageLocation {
	if i == 0 {
		return d.Target
	}

	return d.Params[i-1]
}

func (d *CallDescriptor) ReturnLocation(i int) LinkageLocation { return d.Returns[i] }

// ParameterSlotCount is the number of caller stack slots parameters occupy.
func (d *CallDescriptor) ParameterSlotCount() (n int) {
	for _, p := range d.Params {
		if !p.IsCallerFrameSlot() {
			continue
		}

		n = max(n, p.SlotIndex()+p.SizeInPointers())
	}

	return n
}

// ReturnSlotCount is the number of stack slots reserved for returns.
func (d *CallDescriptor) ReturnSlotCount() (n int) {
	off := d.OffsetToReturns()

	for _, r := range d.Returns {
		if !r.IsCallerFrameSlot() {
			continue
		}

		n = max(n, r.SlotIndex()-off+r.SizeInPointers())
	}

	return n
}

// OffsetToReturns is the first stack slot used by stack returns.
func (d *CallDescriptor) OffsetToReturns() int {
	return d.ParameterSlotCount()
}

// StackParameterDelta is the slot difference a tail call from caller has to
// make up for.
func (d *CallDescriptor) StackParameterDelta(caller *CallDescriptor) int {
	return d.OffsetToReturns() - caller.OffsetToReturns()
}

// OffsetToFirstUnusedStackSlot is one past the highest stack slot used by
// the call inputs, at least 1.
func (d *CallDescriptor) OffsetToFirstUnusedStackSlot() int {
	n := 1

	for i := 0; i < d.InputCount(); i++ {
		l := d.InputLocation(i)
		if !l.IsCallerFrameSlot() {
			continue
		}

		n = max(n, l.SlotIndex()+l.SizeInPointers())
	}

	return n
}

func (d *CallDescriptor) Has(f CallFlags) bool { return d.Flags&f == f }

func (d *CallDescriptor) NeedsFrameState() bool { return d.Has(FlagNeedsFrameState) }

func (d *CallDescriptor) NeedsCallerSavedRegisters() bool {
	return d.Has(FlagCallerSavedRegisters)
}

func (d *CallDescriptor) CanUseRoots() bool { return d.Has(FlagCanUseRoots) }

func (d *CallDescriptor) IsCFunctionCall() bool { return d.Kind == CallAddress }

func (d *CallDescriptor) IsJSFunctionCall() bool { return d.Kind == CallJSFunction }

// GPParameterCount counts non-float parameters, C calls encode it.
func (d *CallDescriptor) GPParameterCount() (n int) {
	for _, p := range d.Params {
		if !p.Type.Rep.IsFloat() {
			n++
		}
	}

	return n
}

func (d *CallDescriptor) FPParameterCount() int {
	return len(d.Params) - d.GPParameterCount()
}

func (l *Linkage) ParameterLocation(i int) LinkageLocation {
	return l.Incoming.InputLocation(i + 1)
}

func (l *Linkage) ParameterType(i int) MachineType {
	return l.ParameterLocation(i).Type
}

func (l *Linkage) ReturnLocation(i int) LinkageLocation {
	return l.Incoming.ReturnLocation(i)
}

func (l *Linkage) ReturnType(i int) MachineType {
	return l.Incoming.ReturnLocation(i).Type
}

// OsrValueLocation maps OSR value index to its location on entry.
// Values past the parameters are spilled above the fixed frame slots.
func (l *Linkage) OsrValueLocation(i int) LinkageLocation {
	np := l.Incoming.ParamCount()
	if i < np {
		return l.ParameterLocation(i)
	}

	return CalleeSlotLocation(i-np+FixedFrameSlots, TypeAnyTagged)
}
