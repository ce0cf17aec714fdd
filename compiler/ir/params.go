package ir

// Graph.Param holds per-opcode static parameters:
//
//	Int32Constant            int32
//	Int64Constant            int64
//	Float32Constant          float32
//	Float64Constant          float64
//	NumberConstant           float64
//	HeapConstant             HeapObject (also CompressedHeapConstant)
//	ExternalConstant         ExternalReference
//	Relocatable*Constant     RelocatableConstant
//	Parameter, OsrValue      int
//	Projection               int
//	Phi, DeadValue           Representation
//	Load, ProtectedLoad      MachineType (also LoadImmutable)
//	Store, ProtectedStore    StoreRepresentation
//	Call, TailCall           *CallDescriptor
//	Deoptimize*              DeoptimizeParameters
//	TrapIf, TrapUnless       TrapID
//	IfValue                  IfValueParameters
//	Branch                   BranchHint
//	FrameState               *FrameStateInfo
//	TypedStateValues         []MachineType
//	ObjectID                 int
//	TypedObjectState         TypedObjectStateInfo
//	ArgumentsElementsState   ArgumentsStateType
//	StackSlot                StackSlotInfo
//	Comment                  string

type (
	HeapObject struct {
		Name   string
		Handle uint64

		// ReadOnly objects live in the read-only space and never move.
		ReadOnly bool
		// RootIndex is the index in the roots table, -1 if none.
		RootIndex int

		OptimizedOut bool
	}

	ExternalReference struct {
		Name    string
		Address int64

		// IsolateIndependent references are reachable from the roots register
		// at RootsOffset during both code generation and execution.
		IsolateIndependent bool
		RootsOffset        int64
	}

	RelocatableConstant struct {
		Value int64
		Mode  RelocMode
	}

	RelocMode uint8

	StoreRepresentation struct {
		Rep          Representation
		WriteBarrier WriteBarrierKind
	}

	WriteBarrierKind uint8

	StackSlotInfo struct {
		Size      int
		Alignment int
		Tagged    bool
	}

	DeoptimizeKind   uint8
	DeoptimizeReason string

	FeedbackSource struct {
		Vector string
		Slot   int
	}

	DeoptimizeParameters struct {
		Kind     DeoptimizeKind
		Reason   DeoptimizeReason
		Feedback FeedbackSource
	}

	TrapID int

	IfValueParameters struct {
		Value int32
		Order int
	}

	BranchHint uint8
)

const (
	RelocNone RelocMode = iota
	RelocWasmCall
	RelocWasmStubCall
	RelocExternalReference
)

const (
	NoWriteBarrier WriteBarrierKind = iota
	MapWriteBarrier
	PointerWriteBarrier
	FullWriteBarrier
)

const (
	DeoptimizeEager DeoptimizeKind = iota
	DeoptimizeLazy
)

const (
	BranchNone BranchHint = iota
	BranchTrue
	BranchFalse
)

const (
	TrapUnreachable TrapID = iota
	TrapMemOutOfBounds
	TrapDivByZero
	TrapDivUnrepresentable
	TrapRemByZero
	TrapFloatUnrepresentable
	TrapNullDereference
)

func (k DeoptimizeKind) String() string {
	if k == DeoptimizeLazy {
		return "lazy"
	}

	return "eager"
}

func (g *Graph) CallDescriptorOf(n Node) *CallDescriptor { return g.Param[n].(*CallDescriptor) }

func (g *Graph) MachineTypeOf(n Node) MachineType { return g.Param[n].(MachineType) }

func (g *Graph) StoreRepresentationOf(n Node) StoreRepresentation {
	return g.Param[n].(StoreRepresentation)
}

func (g *Graph) RepresentationOf(n Node) Representation { return g.Param[n].(Representation) }

func (g *Graph) DeoptimizeParametersOf(n Node) DeoptimizeParameters {
	return g.Param[n].(DeoptimizeParameters)
}

func (g *Graph) TrapIDOf(n Node) TrapID { return g.Param[n].(TrapID) }

func (g *Graph) HeapObjectOf(n Node) HeapObject { return g.Param[n].(HeapObject) }

func (g *Graph) ExternalReferenceOf(n Node) ExternalReference {
	return g.Param[n].(ExternalReference)
}

func (g *Graph) IndexOf(n Node) int { return g.Param[n].(int) }
