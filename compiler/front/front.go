package front

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/isel/compiler/ir"
)

type (
	// File is a graph description. Nodes reference each other by id,
	// blocks are listed in RPO and reference successors by index.
	File struct {
		Funcs []FuncDesc `yaml:"funcs"`
	}

	FuncDesc struct {
		Name      string                  `yaml:"name"`
		Linkage   CallDesc                `yaml:"linkage"`
		Nodes     []NodeDesc              `yaml:"nodes"`
		Blocks    []BlockDesc             `yaml:"blocks"`
		Positions map[string]PositionDesc `yaml:"positions"`
	}

	NodeDesc struct {
		ID      string    `yaml:"id"`
		Op      string    `yaml:"op"`
		Param   yaml.Node `yaml:"param"`
		In      []string  `yaml:"in"`
		Effect  []string  `yaml:"effect"`
		Control []string  `yaml:"control"`
	}

	BlockDesc struct {
		Nodes    []string `yaml:"nodes"`
		Control  string   `yaml:"control"`
		Input    string   `yaml:"input"`
		Succ     []int    `yaml:"succ"`
		Loop     bool     `yaml:"loop"`
		Deferred bool     `yaml:"deferred"`
	}

	PositionDesc struct {
		Script int `yaml:"script"`
		Offset int `yaml:"offset"`
	}

	CallDesc struct {
		Name    string         `yaml:"name"`
		Kind    string         `yaml:"kind"`
		Target  LocationDesc   `yaml:"target"`
		Params  []LocationDesc `yaml:"params"`
		Returns []LocationDesc `yaml:"returns"`
		Flags   []string       `yaml:"flags"`
	}

	LocationDesc struct {
		Kind  string `yaml:"kind"`
		Value int    `yaml:"value"`
		Type  string `yaml:"type"`
	}

	loader struct {
		g   *ir.Graph
		ids map[string]ir.Node
	}
)

func LoadFile(ctx context.Context, name string) (fs []*ir.Func, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Load(ctx, text)
}

func Load(ctx context.Context, text []byte) (fs []*ir.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "load graphs")
	defer tr.Finish("err", &err)

	var f File

	err = yaml.Unmarshal(text, &f)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal")
	}

	for _, d := range f.Funcs {
		fn, err := Build(ctx, &d)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", d.Name)
		}

		fs = append(fs, fn)
	}

	return fs, nil
}

// Build converts a description into a checked function.
func Build(ctx context.Context, d *FuncDesc) (*ir.Func, error) {
	l := &loader{
		g:   ir.NewGraph(),
		ids: make(map[string]ir.Node, len(d.Nodes)),
	}

	inc, err := l.call(&d.Linkage)
	if err != nil {
		return nil, errors.Wrap(err, "linkage")
	}

	// ids first: inputs may point forward
	for i, n := range d.Nodes {
		if n.ID == "" {
			return nil, errors.New("node %d: no id", i)
		}

		if _, ok := l.ids[n.ID]; ok {
			return nil, errors.New("node %v: duplicate id", n.ID)
		}

		l.ids[n.ID] = ir.Node(i)
	}

	for _, n := range d.Nodes {
		err = l.node(&n)
		if err != nil {
			return nil, errors.Wrap(err, "node %v", n.ID)
		}
	}

	sched, err := l.schedule(d.Blocks)
	if err != nil {
		return nil, errors.Wrap(err, "schedule")
	}

	fn := &ir.Func{
		Name:     d.Name,
		Graph:    l.g,
		Schedule: sched,
		Linkage:  &ir.Linkage{Incoming: inc},
	}

	if len(d.Positions) != 0 {
		fn.Positions = make(map[ir.Node]ir.SourcePosition, len(d.Positions))

		for id, p := range d.Positions {
			n, err := l.ref(id)
			if err != nil {
				return nil, errors.Wrap(err, "position")
			}

			fn.Positions[n] = ir.SourcePosition{Script: p.Script, Offset: p.Offset}
		}
	}

	err = fn.Check()
	if err != nil {
		return nil, err
	}

	tlog.SpanFromContext(ctx).V("front").Printw("func loaded", "name", fn.Name, "nodes", l.g.Len(), "blocks", len(sched.Blocks))

	return fn, nil
}

func (l *loader) node(n *NodeDesc) error {
	op, ok := ir.OpcodeByName(n.Op)
	if !ok {
		return errors.New("unknown op: %q", n.Op)
	}

	p, err := l.param(op, &n.Param)
	if err != nil {
		return errors.Wrap(err, "param")
	}

	in, err := l.refs(n.In)
	if err != nil {
		return errors.Wrap(err, "inputs")
	}

	eff, err := l.refs(n.Effect)
	if err != nil {
		return errors.Wrap(err, "effect")
	}

	ctl, err := l.refs(n.Control)
	if err != nil {
		return errors.Wrap(err, "control")
	}

	l.g.NewNode(op, p, in, eff, ctl)

	return nil
}

func (l *loader) refs(ids []string) (r []ir.Node, err error) {
	if len(ids) == 0 {
		return nil, nil
	}

	r = make([]ir.Node, len(ids))

	for i, id := range ids {
		r[i], err = l.ref(id)
		if err != nil {
			return nil, err
		}
	}

	return r, nil
}

// ref resolves a node id. "-" stands for a missing input.
func (l *loader) ref(id string) (ir.Node, error) {
	if id == "-" {
		return ir.Invalid, nil
	}

	n, ok := l.ids[id]
	if !ok {
		return ir.Invalid, errors.New("undefined node: %q", id)
	}

	return n, nil
}

func (l *loader) schedule(bs []BlockDesc) (*ir.Schedule, error) {
	s := ir.NewSchedule()

	blocks := make([]*ir.Block, len(bs))

	for i, d := range bs {
		b := s.NewBlock()
		b.LoopHeader = d.Loop
		b.Deferred = d.Deferred

		blocks[i] = b
	}

	succ := func(i int, d *BlockDesc, k int) (*ir.Block, error) {
		if k >= len(d.Succ) {
			return nil, errors.New("block %d: %v needs %d successors", i, d.Control, k+1)
		}

		x := d.Succ[k]
		if x < 0 || x >= len(blocks) {
			return nil, errors.New("block %d: successor %d out of range", i, x)
		}

		return blocks[x], nil
	}

	for i, d := range bs {
		b := blocks[i]

		ns, err := l.refs(d.Nodes)
		if err != nil {
			return nil, errors.Wrap(err, "block %d", i)
		}

		s.AddNode(b, ns...)

		in, err := l.ref(d.Input)
		if d.Input == "" {
			in, err = ir.Invalid, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "block %d: control input", i)
		}

		switch d.Control {
		case "", "none":
		case "goto":
			to, err := succ(i, &d, 0)
			if err != nil {
				return nil, err
			}

			s.AddGoto(b, to)
		case "branch", "call":
			t, err := succ(i, &d, 0)
			if err != nil {
				return nil, err
			}

			f, err := succ(i, &d, 1)
			if err != nil {
				return nil, err
			}

			if d.Control == "branch" {
				s.AddBranch(b, in, t, f)
			} else {
				s.AddCall(b, in, t, f)
			}
		case "switch":
			to := make([]*ir.Block, len(d.Succ))

			for k := range d.Succ {
				to[k], err = succ(i, &d, k)
				if err != nil {
					return nil, err
				}
			}

			s.AddSwitch(b, in, to...)
		case "return":
			s.AddReturn(b, in)
		case "tailcall":
			s.AddTailCall(b, in)
		case "deoptimize":
			s.AddDeoptimize(b, in)
		case "throw":
			s.AddThrow(b, in)
		default:
			return nil, errors.New("block %d: unknown control: %q", i, d.Control)
		}
	}

	return s, nil
}
