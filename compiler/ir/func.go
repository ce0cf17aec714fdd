package ir

import "tlog.app/go/errors"

type (
	// Func is one compilation unit handed to instruction selection.
	Func struct {
		Name string

		Graph    *Graph
		Schedule *Schedule
		Linkage  *Linkage

		// Positions is optional.
		Positions map[Node]SourcePosition
	}
)

func (f *Func) Check() error {
	if f.Graph == nil || f.Schedule == nil || f.Linkage == nil || f.Linkage.Incoming == nil {
		return errors.New("incomplete func %q", f.Name)
	}

	if err := f.Graph.Check(); err != nil {
		return errors.Wrap(err, "graph")
	}

	if err := f.Schedule.Check(f.Graph); err != nil {
		return errors.Wrap(err, "schedule")
	}

	return nil
}

func (f *Func) Position(n Node) (SourcePosition, bool) {
	p, ok := f.Positions[n]

	return p, ok && p.IsKnown()
}
