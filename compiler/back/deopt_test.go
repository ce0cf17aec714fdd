package back

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/isel/compiler/asm"
	"github.com/slowlang/isel/compiler/ir"
)

func frameState(g *ir.Graph, params, locals, function, outer ir.Node) ir.Node {
	info := &ir.FrameStateInfo{
		Type:       ir.FrameUnoptimized,
		BailoutID:  g.Len(),
		Function:   "f",
		Parameters: g.InputCount(params),
	}

	if locals != ir.Invalid {
		info.Locals = g.InputCount(locals)
	}

	return g.New(ir.FrameState, info, params, locals, ir.Invalid, ir.Invalid, function, outer)
}

func deoptFunc(g *ir.Graph, state ir.Node) *ir.Func {
	d := g.New(ir.Deoptimize, ir.DeoptimizeParameters{Kind: ir.DeoptimizeEager, Reason: "wrong map"}, state)

	return singleBlock("deopt", g, ir.ControlDeoptimize, d, testLinkage([]ir.MachineType{ir.TypeAnyTagged}))
}

func TestDeoptimizeCapturedObject(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	fnc := g.New(ir.HeapConstant, ir.HeapObject{Name: "f", Handle: 1, RootIndex: -1})
	params := g.New(ir.StateValues, nil, p0)
	obj := g.New(ir.TypedObjectState, ir.TypedObjectStateInfo{ID: 0, Types: []ir.MachineType{ir.TypeAnyTagged}}, p0)
	ref := g.New(ir.ObjectID, 0)
	locals := g.New(ir.StateValues, nil, obj, ref)
	fs := frameState(g, params, locals, fnc, ir.Invalid)

	fn := deoptFunc(g, fs)
	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	v := vreg(s, p0)

	assert.Equal(t, []string{
		v + "(fixed=0) = ArchNop",
		fmt.Sprintf("ArchDeoptimize #0 #i0 %s(rs) %s(rs)", v, v),
	}, blockText(seq, 0))

	require.Len(t, seq.Deopts, 1)

	e := seq.Deopts[0]
	assert.Equal(t, ir.DeoptimizeEager, e.Kind)
	assert.Equal(t, ir.DeoptimizeReason("wrong map"), e.Reason)

	vals := e.Desc.Values

	require.Len(t, vals.Fields, 4)
	assert.Equal(t, asm.StatePlain, vals.Fields[0].Kind, "function")
	assert.Equal(t, asm.StatePlain, vals.Fields[1].Kind, "parameter")
	assert.Equal(t, asm.StateValueDescriptor{Kind: asm.StateNested, Type: ir.TypeAnyTagged, ID: 0}, vals.Fields[2])
	assert.Equal(t, asm.StateValueDescriptor{Kind: asm.StateDuplicate, Type: ir.TypeAnyTagged, ID: 0}, vals.Fields[3])

	require.NotNil(t, vals.Nested[2])
	require.Len(t, vals.Nested[2].Fields, 1)
	assert.Equal(t, asm.StatePlain, vals.Nested[2].Fields[0].Kind)

	assert.Equal(t, 1, e.Desc.Parameters)
	assert.Equal(t, 2, e.Desc.Locals)
	assert.False(t, e.Desc.HasContext)

	_, ok := s.states[stateKey{n: params, kind: stateAny}]
	assert.True(t, ok, "params cached")

	_, ok = s.states[stateKey{n: locals, kind: stateAny}]
	assert.False(t, ok, "locals introduced objects")
}

func TestDeoptimizeSharedStateValues(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	fnc := g.New(ir.HeapConstant, ir.HeapObject{Name: "f", Handle: 1, RootIndex: -1})
	params := g.New(ir.StateValues, nil, p0)
	outer := frameState(g, params, ir.Invalid, fnc, ir.Invalid)
	inner := frameState(g, params, ir.Invalid, fnc, outer)

	fn := deoptFunc(g, inner)
	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	v := vreg(s, p0)

	text := blockText(seq, 0)
	require.Len(t, text, 2)
	assert.Equal(t, fmt.Sprintf("ArchDeoptimize #0 #i0 %s(rs) #i1 %s(rs)", v, v), text[1])

	require.Len(t, seq.Deopts, 1)

	d := seq.Deopts[0].Desc
	require.NotNil(t, d.Outer)

	assert.Equal(t, 2, d.FrameCount())
	assert.Equal(t, d.Outer.Values.Fields, d.Values.Fields)
	assert.Len(t, d.Values.Fields, 2)
}

func TestDeoptimizeTypedStateValues(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	fnc := g.New(ir.HeapConstant, ir.HeapObject{Name: "f", Handle: 1, RootIndex: -1})
	three := g.New(ir.NumberConstant, 3.0)
	params := g.New(ir.TypedStateValues, []ir.MachineType{ir.TypeInt32, ir.TypeNone}, three, p0)
	fs := frameState(g, params, ir.Invalid, fnc, ir.Invalid)

	fn := deoptFunc(g, fs)
	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	assert.Equal(t, []string{"ArchDeoptimize #0 #i0 #6 #57005"}, blockText(seq, 0))
	assert.False(t, s.IsUsed(p0))

	vals := seq.Deopts[0].Desc.Values

	require.Len(t, vals.Fields, 3)
	assert.Equal(t, ir.TypeInt32, vals.Fields[1].Type)
	assert.Equal(t, ir.TypeNone, vals.Fields[2].Type)
}

func TestDeduplicator(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	a := g.New(ir.TypedObjectState, ir.TypedObjectStateInfo{ID: 3, Types: []ir.MachineType{ir.TypeAnyTagged}}, p0)
	b := g.New(ir.TypedObjectState, ir.TypedObjectStateInfo{ID: 4, Types: []ir.MachineType{ir.TypeAnyTagged}}, p0)
	refA := g.New(ir.ObjectID, 3)
	refC := g.New(ir.ObjectID, 5)

	dd := NewDeduplicator(g)

	assert.Equal(t, notDuplicated, dd.ObjectID(a))
	assert.Equal(t, 0, dd.Insert(a))
	assert.Equal(t, 1, dd.Insert(b))

	assert.Equal(t, 0, dd.ObjectID(a))
	assert.Equal(t, 1, dd.ObjectID(b))
	assert.Equal(t, 0, dd.ObjectID(refA))
	assert.Equal(t, notDuplicated, dd.ObjectID(refC))

	assert.Equal(t, 2, dd.Size())

	same := g.New(ir.TypedObjectState, ir.TypedObjectStateInfo{ID: 3, Types: []ir.MachineType{ir.TypeAnyTagged}}, p0)
	assert.Equal(t, 0, dd.ObjectID(same), "same tag as a")

	args := g.New(ir.ArgumentsElementsState, ir.ArgumentsElements)
	dd.Insert(args)

	other := g.New(ir.ArgumentsElementsState, ir.ArgumentsElements)
	assert.Equal(t, notDuplicated, dd.ObjectID(other), "arguments state has no tag")
}

func TestDeoptimizeSameTagObjects(t *testing.T) {
	g := ir.NewGraph()

	p0 := g.New(ir.Parameter, 0)
	fnc := g.New(ir.HeapConstant, ir.HeapObject{Name: "f", Handle: 1, RootIndex: -1})
	params := g.New(ir.StateValues, nil, p0)
	a := g.New(ir.TypedObjectState, ir.TypedObjectStateInfo{ID: 7, Types: []ir.MachineType{ir.TypeAnyTagged}}, p0)
	b := g.New(ir.TypedObjectState, ir.TypedObjectStateInfo{ID: 7, Types: []ir.MachineType{ir.TypeAnyTagged}}, p0)
	locals := g.New(ir.StateValues, nil, a, b)
	fs := frameState(g, params, locals, fnc, ir.Invalid)

	fn := deoptFunc(g, fs)
	s := selectFunc(t, testConfig(), fn)
	seq := s.Sequence()

	v := vreg(s, p0)

	assert.Equal(t, fmt.Sprintf("ArchDeoptimize #0 #i0 %s(rs) %s(rs)", v, v), blockText(seq, 0)[1])

	vals := seq.Deopts[0].Desc.Values

	require.Len(t, vals.Fields, 4)
	assert.Equal(t, asm.StateNested, vals.Fields[2].Kind)
	assert.Equal(t, asm.StateValueDescriptor{Kind: asm.StateDuplicate, Type: ir.TypeAnyTagged, ID: 0}, vals.Fields[3])
}
