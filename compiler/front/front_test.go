package front

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/isel/compiler/ir"
)

func TestLoadFile(t *testing.T) {
	fs, err := LoadFile(context.Background(), "../testdata/funcs.yaml")
	require.NoError(t, err)
	require.Len(t, fs, 3)

	fn := fs[0]
	assert.Equal(t, "min", fn.Name)
	assert.Equal(t, 7, fn.Graph.Len())
	require.Len(t, fn.Schedule.Blocks, 3)

	g := fn.Graph

	assert.Equal(t, ir.Parameter, g.Op[0])
	assert.Equal(t, 1, g.IndexOf(1))
	assert.Equal(t, ir.Int32LessThan, g.Op[2])
	assert.Equal(t, []ir.Node{0, 1}, g.Value[2])
	assert.Equal(t, ir.BranchNone, g.Param[3])
	assert.Equal(t, int32(0), g.Param[4])

	b0 := fn.Schedule.Blocks[0]
	assert.Equal(t, ir.ControlBranch, b0.Control)
	assert.Equal(t, ir.Node(3), b0.ControlInput)
	assert.Equal(t, []ir.BlockID{1, 2}, b0.Succ)

	assert.Equal(t, map[ir.Node]ir.SourcePosition{3: {Script: 0, Offset: 12}}, fn.Positions)

	inc := fn.Linkage.Incoming
	assert.Equal(t, []ir.LinkageLocation{
		ir.RegisterLocation(0, ir.TypeInt32),
		ir.RegisterLocation(1, ir.TypeInt32),
	}, inc.Params)
	assert.Equal(t, ir.AnyRegisterLocation(ir.TypePointer), inc.Target)

	st := fs[1].Graph.Param[2]
	assert.Equal(t, ir.StoreRepresentation{Rep: ir.RepWord64, WriteBarrier: ir.FullWriteBarrier}, st)

	loop := fs[2]
	assert.True(t, loop.Schedule.Blocks[1].LoopHeader)
	assert.Equal(t, []ir.BlockID{0, 2}, loop.Schedule.Blocks[1].Pred)
	assert.Equal(t, ir.RepWord32, loop.Graph.Param[3])
	assert.Equal(t, ir.BranchTrue, loop.Graph.Param[6])
}

func TestLoadParams(t *testing.T) {
	fs, err := Load(context.Background(), []byte(`
funcs:
  - name: params
    linkage:
      kind: js_function
      params:
        - {kind: caller_slot, value: 1, type: tagged}
      flags: [needs_frame_state, can_use_roots]
    nodes:
      - {id: h, op: HeapConstant, param: {name: undefined, read_only: true, root_index: 4}}
      - {id: o, op: HeapConstant, param: {name: obj, handle: 77}}
      - {id: r, op: RelocatableInt32Constant, param: {value: 5, mode: wasm_call}}
      - {id: l, op: Load, param: "word32|unsigned", in: [h, r]}
      - {id: fs, op: FrameState, param: {type: unoptimized, bailout: 3, function: f, params: 1}, in: [sv, "-", "-", "-", o, "-"]}
      - {id: sv, op: TypedStateValues, param: [int32, tagged], in: [r, h]}
      - {id: ts, op: TypedObjectState, param: {id: 2, types: [float64]}, in: [r]}
      - {id: d, op: Deoptimize, param: {kind: lazy, reason: overflow, vector: v, slot: 3}, in: [fs]}
      - {id: iv, op: IfValue, param: {value: -4, order: 1}}
    blocks:
      - {nodes: [h, o, r, l, sv, fs, ts], control: deoptimize, input: d}
`))
	require.NoError(t, err)
	require.Len(t, fs, 1)

	fn := fs[0]
	g := fn.Graph

	inc := fn.Linkage.Incoming
	assert.Equal(t, ir.CallJSFunction, inc.Kind)
	assert.True(t, inc.NeedsFrameState())
	assert.True(t, inc.CanUseRoots())
	assert.Equal(t, ir.CallerSlotLocation(1, ir.TypeAnyTagged), inc.Params[0])

	assert.Equal(t, ir.HeapObject{Name: "undefined", ReadOnly: true, RootIndex: 4}, g.Param[0])
	assert.Equal(t, ir.HeapObject{Name: "obj", Handle: 77, RootIndex: -1}, g.Param[1])
	assert.Equal(t, ir.RelocatableConstant{Value: 5, Mode: ir.RelocWasmCall}, g.Param[2])
	assert.Equal(t, ir.TypeUint32, g.Param[3])

	info := g.FrameStateInfoOf(4)
	assert.Equal(t, &ir.FrameStateInfo{Type: ir.FrameUnoptimized, BailoutID: 3, Function: "f", Parameters: 1}, info)
	assert.Equal(t, []ir.Node{5, ir.Invalid, ir.Invalid, ir.Invalid, 1, ir.Invalid}, g.Value[4])
	assert.Equal(t, ir.Invalid, g.FrameStateOuterOf(4))
	assert.False(t, g.FrameStateHasContext(4))

	assert.Equal(t, []ir.MachineType{ir.TypeInt32, ir.TypeAnyTagged}, g.Param[5])
	assert.Equal(t, ir.TypedObjectStateInfo{ID: 2, Types: []ir.MachineType{ir.TypeFloat64}}, g.Param[6])

	assert.Equal(t, ir.DeoptimizeParameters{
		Kind:     ir.DeoptimizeLazy,
		Reason:   "overflow",
		Feedback: ir.FeedbackSource{Vector: "v", Slot: 3},
	}, g.DeoptimizeParametersOf(7))

	assert.Equal(t, ir.IfValueParameters{Value: -4, Order: 1}, g.Param[8])
}

func TestLoadErrors(t *testing.T) {
	for name, text := range map[string]string{
		"unknown_op": `
funcs:
  - name: f
    nodes: [{id: a, op: Frobnicate}]
`,
		"duplicate_id": `
funcs:
  - name: f
    nodes: [{id: a, op: Parameter}, {id: a, op: Parameter, param: 1}]
`,
		"undefined_ref": `
funcs:
  - name: f
    nodes: [{id: a, op: Int32Add, in: [x, y]}]
`,
		"missing_param": `
funcs:
  - name: f
    nodes: [{id: a, op: Load, in: [a, a]}]
`,
		"unexpected_param": `
funcs:
  - name: f
    nodes: [{id: a, op: Int32Add, param: 5}]
`,
		"bad_type": `
funcs:
  - name: f
    nodes: [{id: a, op: Load, param: word7}]
`,
		"bad_location": `
funcs:
  - name: f
    linkage:
      params: [{kind: heap, type: int32}]
`,
		"successor_out_of_range": `
funcs:
  - name: f
    blocks: [{control: goto, succ: [3]}]
`,
		"branch_needs_two": `
funcs:
  - name: f
    nodes: [{id: b, op: Branch, in: [b]}]
    blocks: [{control: branch, input: b, succ: [0]}]
`,
		"unknown_control": `
funcs:
  - name: f
    blocks: [{control: jump}]
`,
		"no_id": `
funcs:
  - name: f
    nodes: [{op: Parameter}]
`,
		"syntax": "funcs: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), []byte(text))
			assert.Error(t, err)
		})
	}
}

func TestParseMachineType(t *testing.T) {
	for s, want := range map[string]ir.MachineType{
		"int32":           ir.TypeInt32,
		"tagged":          ir.TypeAnyTagged,
		"word64|signed":   ir.TypeInt64,
		"word64|unsigned": ir.TypeUint64,
		"word8|signed":    ir.TypeInt8,
		"float64":         ir.TypeFloat64,
		"word32":          {Rep: ir.RepWord32},
	} {
		typ, err := ParseMachineType(s)
		require.NoError(t, err, "type %q", s)
		assert.Equal(t, want, typ, "type %q", s)
	}

	_, err := ParseMachineType("word32|maybe")
	assert.Error(t, err)
}
