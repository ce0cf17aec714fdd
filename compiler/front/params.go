package front

import (
	"strings"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/slowlang/isel/compiler/ir"
)

type (
	heapObjectDesc struct {
		Name      string `yaml:"name"`
		Handle    uint64 `yaml:"handle"`
		ReadOnly  bool   `yaml:"read_only"`
		RootIndex *int   `yaml:"root_index"`
		Optimized bool   `yaml:"optimized_out"`
	}

	externalDesc struct {
		Name               string `yaml:"name"`
		Address            int64  `yaml:"address"`
		IsolateIndependent bool   `yaml:"isolate_independent"`
		RootsOffset        int64  `yaml:"roots_offset"`
	}

	relocDesc struct {
		Value int64  `yaml:"value"`
		Mode  string `yaml:"mode"`
	}

	storeDesc struct {
		Rep     string `yaml:"rep"`
		Barrier string `yaml:"barrier"`
	}

	deoptDesc struct {
		Kind   string `yaml:"kind"`
		Reason string `yaml:"reason"`
		Vector string `yaml:"vector"`
		Slot   int    `yaml:"slot"`
	}

	ifValueDesc struct {
		Value int32 `yaml:"value"`
		Order int   `yaml:"order"`
	}

	frameStateDesc struct {
		Type       string `yaml:"type"`
		BailoutID  int    `yaml:"bailout"`
		Function   string `yaml:"function"`
		Parameters int    `yaml:"params"`
		Locals     int    `yaml:"locals"`
	}

	objectStateDesc struct {
		ID    int      `yaml:"id"`
		Types []string `yaml:"types"`
	}

	stackSlotDesc struct {
		Size      int  `yaml:"size"`
		Alignment int  `yaml:"alignment"`
		Tagged    bool `yaml:"tagged"`
	}
)

var (
	callKinds = map[string]ir.CallKind{
		"code_object":         ir.CallCodeObject,
		"address":             ir.CallAddress,
		"wasm_function":       ir.CallWasmFunction,
		"wasm_import_wrapper": ir.CallWasmImportWrapper,
		"builtin_pointer":     ir.CallBuiltinPointer,
		"js_function":         ir.CallJSFunction,
	}

	callFlags = map[string]ir.CallFlags{
		"needs_frame_state":         ir.FlagNeedsFrameState,
		"fixed_target_register":     ir.FlagFixedTargetRegister,
		"caller_saved_registers":    ir.FlagCallerSavedRegisters,
		"caller_saved_fp_registers": ir.FlagCallerSavedFPRegisters,
		"no_function_descriptor":    ir.FlagNoFunctionDescriptor,
		"can_use_roots":             ir.FlagCanUseRoots,
		"has_exception_handler":     ir.FlagHasExceptionHandler,
	}

	locationKinds = map[string]ir.LocationKind{
		"register":     ir.LocRegister,
		"any_register": ir.LocAnyRegister,
		"caller_slot":  ir.LocCallerFrameSlot,
		"callee_slot":  ir.LocCalleeFrameSlot,
	}

	barriers = map[string]ir.WriteBarrierKind{
		"":        ir.NoWriteBarrier,
		"none":    ir.NoWriteBarrier,
		"map":     ir.MapWriteBarrier,
		"pointer": ir.PointerWriteBarrier,
		"full":    ir.FullWriteBarrier,
	}

	relocModes = map[string]ir.RelocMode{
		"":                   ir.RelocNone,
		"none":               ir.RelocNone,
		"wasm_call":          ir.RelocWasmCall,
		"wasm_stub_call":     ir.RelocWasmStubCall,
		"external_reference": ir.RelocExternalReference,
	}

	frameStateTypes = map[string]ir.FrameStateType{
		"unoptimized":             ir.FrameUnoptimized,
		"inlined_extra_arguments": ir.FrameInlinedExtraArguments,
		"construct_stub":          ir.FrameConstructStub,
		"builtin_continuation":    ir.FrameBuiltinContinuation,
		"js_builtin_continuation": ir.FrameJSBuiltinContinuation,
	}

	branchHints = map[string]ir.BranchHint{
		"":      ir.BranchNone,
		"none":  ir.BranchNone,
		"true":  ir.BranchTrue,
		"false": ir.BranchFalse,
	}

	namedTypes = map[string]ir.MachineType{
		"none":           ir.TypeNone,
		"bool":           ir.TypeBool,
		"int8":           ir.TypeInt8,
		"uint8":          ir.TypeUint8,
		"int16":          ir.TypeInt16,
		"uint16":         ir.TypeUint16,
		"int32":          ir.TypeInt32,
		"uint32":         ir.TypeUint32,
		"int64":          ir.TypeInt64,
		"uint64":         ir.TypeUint64,
		"float32":        ir.TypeFloat32,
		"float64":        ir.TypeFloat64,
		"simd128":        ir.TypeSimd128,
		"simd256":        ir.TypeSimd256,
		"pointer":        ir.TypePointer,
		"tagged_signed":  ir.TypeTaggedSigned,
		"tagged_pointer": ir.TypeTaggedPointer,
		"tagged":         ir.TypeAnyTagged,
		"compressed":     ir.TypeCompressed,
	}
)

func lookup[V any](m map[string]V, what, name string) (V, error) {
	v, ok := m[name]
	if !ok {
		return v, errors.New("unknown %v: %q", what, name)
	}

	return v, nil
}

// ParseMachineType accepts a type name or "rep|signed" / "rep|unsigned".
func ParseMachineType(s string) (ir.MachineType, error) {
	if t, ok := namedTypes[s]; ok {
		return t, nil
	}

	name, sem, _ := strings.Cut(s, "|")

	rep, ok := ir.RepresentationByName(name)
	if !ok {
		return ir.TypeNone, errors.New("unknown type: %q", s)
	}

	t := ir.MachineType{Rep: rep}

	switch sem {
	case "":
	case "signed":
		t.Sem = ir.SemInt32
		if rep == ir.RepWord64 {
			t.Sem = ir.SemInt64
		}
	case "unsigned":
		t.Sem = ir.SemUint32
		if rep == ir.RepWord64 {
			t.Sem = ir.SemUint64
		}
	default:
		return ir.TypeNone, errors.New("unknown semantic: %q", sem)
	}

	return t, nil
}

func (l *loader) location(d *LocationDesc) (ir.LinkageLocation, error) {
	k, err := lookup(locationKinds, "location kind", d.Kind)
	if err != nil {
		return ir.LinkageLocation{}, err
	}

	t, err := ParseMachineType(d.Type)
	if err != nil {
		return ir.LinkageLocation{}, err
	}

	switch k {
	case ir.LocAnyRegister:
		return ir.AnyRegisterLocation(t), nil
	case ir.LocCallerFrameSlot:
		return ir.CallerSlotLocation(d.Value, t), nil
	case ir.LocCalleeFrameSlot:
		return ir.CalleeSlotLocation(d.Value, t), nil
	}

	return ir.RegisterLocation(d.Value, t), nil
}

func (l *loader) call(d *CallDesc) (c *ir.CallDescriptor, err error) {
	c = &ir.CallDescriptor{Name: d.Name}

	if d.Kind != "" {
		c.Kind, err = lookup(callKinds, "call kind", d.Kind)
		if err != nil {
			return nil, err
		}
	}

	if d.Target.Kind == "" {
		c.Target = ir.AnyRegisterLocation(ir.TypePointer)
	} else {
		c.Target, err = l.location(&d.Target)
		if err != nil {
			return nil, errors.Wrap(err, "target")
		}
	}

	for i := range d.Params {
		p, err := l.location(&d.Params[i])
		if err != nil {
			return nil, errors.Wrap(err, "param %d", i)
		}

		c.Params = append(c.Params, p)
	}

	for i := range d.Returns {
		r, err := l.location(&d.Returns[i])
		if err != nil {
			return nil, errors.Wrap(err, "return %d", i)
		}

		c.Returns = append(c.Returns, r)
	}

	for _, f := range d.Flags {
		x, err := lookup(callFlags, "call flag", f)
		if err != nil {
			return nil, err
		}

		c.Flags |= x
	}

	return c, nil
}

func (l *loader) param(op ir.Opcode, p *yaml.Node) (_ any, err error) {
	if p.Kind == 0 {
		return defaultParam(op)
	}

	if op.IsAtomic() {
		var s string

		err = p.Decode(&s)
		if err != nil {
			return nil, err
		}

		return ParseMachineType(s)
	}

	switch op {
	case ir.Int32Constant:
		var v int32
		err = p.Decode(&v)
		return v, err
	case ir.Int64Constant:
		var v int64
		err = p.Decode(&v)
		return v, err
	case ir.Float32Constant:
		var v float32
		err = p.Decode(&v)
		return v, err
	case ir.Float64Constant, ir.NumberConstant:
		var v float64
		err = p.Decode(&v)
		return v, err
	case ir.HeapConstant, ir.CompressedHeapConstant:
		var d heapObjectDesc

		err = p.Decode(&d)
		if err != nil {
			return nil, err
		}

		h := ir.HeapObject{Name: d.Name, Handle: d.Handle, ReadOnly: d.ReadOnly, RootIndex: -1, OptimizedOut: d.Optimized}
		if d.RootIndex != nil {
			h.RootIndex = *d.RootIndex
		}

		return h, nil
	case ir.ExternalConstant:
		var d externalDesc

		err = p.Decode(&d)

		return ir.ExternalReference(d), err
	case ir.RelocatableInt32Constant, ir.RelocatableInt64Constant:
		var d relocDesc

		err = p.Decode(&d)
		if err != nil {
			return nil, err
		}

		m, err := lookup(relocModes, "reloc mode", d.Mode)

		return ir.RelocatableConstant{Value: d.Value, Mode: m}, err
	case ir.Parameter, ir.OsrValue, ir.Projection, ir.ObjectID:
		var v int
		err = p.Decode(&v)
		return v, err
	case ir.Phi, ir.DeadValue:
		var s string

		err = p.Decode(&s)
		if err != nil {
			return nil, err
		}

		r, ok := ir.RepresentationByName(s)
		if !ok {
			return nil, errors.New("unknown representation: %q", s)
		}

		return r, nil
	case ir.Load, ir.LoadImmutable, ir.ProtectedLoad:
		var s string

		err = p.Decode(&s)
		if err != nil {
			return nil, err
		}

		return ParseMachineType(s)
	case ir.Store, ir.ProtectedStore:
		var d storeDesc

		err = p.Decode(&d)
		if err != nil {
			return nil, err
		}

		r, ok := ir.RepresentationByName(d.Rep)
		if !ok {
			return nil, errors.New("unknown representation: %q", d.Rep)
		}

		b, err := lookup(barriers, "write barrier", d.Barrier)

		return ir.StoreRepresentation{Rep: r, WriteBarrier: b}, err
	case ir.Call, ir.TailCall:
		var d CallDesc

		err = p.Decode(&d)
		if err != nil {
			return nil, err
		}

		return l.call(&d)
	case ir.Deoptimize, ir.DeoptimizeIf, ir.DeoptimizeUnless:
		var d deoptDesc

		err = p.Decode(&d)
		if err != nil {
			return nil, err
		}

		dp := ir.DeoptimizeParameters{
			Reason:   ir.DeoptimizeReason(d.Reason),
			Feedback: ir.FeedbackSource{Vector: d.Vector, Slot: d.Slot},
		}

		if d.Kind == "lazy" {
			dp.Kind = ir.DeoptimizeLazy
		}

		return dp, nil
	case ir.TrapIf, ir.TrapUnless:
		var v int
		err = p.Decode(&v)
		return ir.TrapID(v), err
	case ir.IfValue:
		var d ifValueDesc

		err = p.Decode(&d)

		return ir.IfValueParameters(d), err
	case ir.Branch:
		var s string

		err = p.Decode(&s)
		if err != nil {
			return nil, err
		}

		return lookup(branchHints, "branch hint", s)
	case ir.FrameState:
		var d frameStateDesc

		err = p.Decode(&d)
		if err != nil {
			return nil, err
		}

		t, err := lookup(frameStateTypes, "frame state type", d.Type)
		if err != nil {
			return nil, err
		}

		return &ir.FrameStateInfo{Type: t, BailoutID: d.BailoutID, Function: d.Function, Parameters: d.Parameters, Locals: d.Locals}, nil
	case ir.TypedStateValues:
		var ss []string

		err = p.Decode(&ss)
		if err != nil {
			return nil, err
		}

		return machineTypes(ss)
	case ir.TypedObjectState:
		var d objectStateDesc

		err = p.Decode(&d)
		if err != nil {
			return nil, err
		}

		ts, err := machineTypes(d.Types)

		return ir.TypedObjectStateInfo{ID: d.ID, Types: ts}, err
	case ir.ArgumentsElementsState:
		var s string

		err = p.Decode(&s)
		if err != nil {
			return nil, err
		}

		if s == "rest" {
			return ir.ArgumentsRestParameter, nil
		}

		return ir.ArgumentsElements, nil
	case ir.StackSlot:
		var d stackSlotDesc

		err = p.Decode(&d)

		return ir.StackSlotInfo(d), err
	case ir.Comment:
		var s string
		err = p.Decode(&s)
		return s, err
	}

	return nil, errors.New("%v takes no parameter", op)
}

func defaultParam(op ir.Opcode) (any, error) {
	if op.IsAtomic() {
		return nil, errors.New("%v needs a machine type", op)
	}

	switch op {
	case ir.Int32Constant:
		return int32(0), nil
	case ir.Int64Constant:
		return int64(0), nil
	case ir.Branch:
		return ir.BranchNone, nil
	case ir.Deoptimize, ir.DeoptimizeIf, ir.DeoptimizeUnless:
		return ir.DeoptimizeParameters{}, nil
	case ir.TrapIf, ir.TrapUnless:
		return ir.TrapUnreachable, nil
	case ir.ArgumentsElementsState:
		return ir.ArgumentsElements, nil
	case ir.Comment:
		return "", nil
	case ir.Parameter, ir.OsrValue, ir.Projection, ir.ObjectID:
		return 0, nil
	case ir.TypedStateValues:
		return []ir.MachineType(nil), nil
	}

	switch op {
	case ir.Float32Constant, ir.Float64Constant, ir.NumberConstant,
		ir.HeapConstant, ir.CompressedHeapConstant, ir.ExternalConstant,
		ir.RelocatableInt32Constant, ir.RelocatableInt64Constant,
		ir.Phi, ir.DeadValue, ir.Load, ir.LoadImmutable, ir.ProtectedLoad, ir.Store, ir.ProtectedStore,
		ir.Call, ir.TailCall, ir.IfValue, ir.FrameState, ir.TypedObjectState, ir.StackSlot:
		return nil, errors.New("%v needs a parameter", op)
	}

	return nil, nil
}

func machineTypes(ss []string) (r []ir.MachineType, err error) {
	r = make([]ir.MachineType, len(ss))

	for i, s := range ss {
		r[i], err = ParseMachineType(s)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}
