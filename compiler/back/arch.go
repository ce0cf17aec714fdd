package back

import (
	"sort"

	"github.com/slowlang/isel/compiler/ir"
	"tlog.app/go/errors"
)

type (
	// Arch is the target strategy. It overlays its visitors on the generic
	// table and answers the target specific questions the generic code asks.
	Arch interface {
		Name() string

		// Visitors fills in machine operator entries.
		Visitors(t *Table)

		CanBeImmediate(s *Selector, n ir.Node) bool

		VisitWordCompareZero(s *Selector, user, value ir.Node, cont *Continuation)
		VisitSwitch(s *Selector, n ir.Node, sw *SwitchInfo)
		VisitStackPointerGreaterThan(s *Selector, n ir.Node, cont *Continuation)

		EmitPrepareArguments(s *Selector, args []PushParameter, d *ir.CallDescriptor, n ir.Node)
		EmitPrepareResults(s *Selector, results []PushParameter, d *ir.CallDescriptor, n ir.Node)

		IsTailCallAddressImmediate() bool

		// CodeStartRegister holds the call target for fixed target calls.
		CodeStartRegister() int
		// ReturnRegister receives the exception on IfException.
		ReturnRegister() int
	}

	ArchFactory func(f Features) Arch
)

var arches = map[string]ArchFactory{}

// RegisterArch makes an arch available by name for Config.Arch.
func RegisterArch(name string, f ArchFactory) {
	arches[name] = f
}

func NewArch(name string, f Features) (Arch, error) {
	fac, ok := arches[name]
	if !ok {
		return nil, errors.New("unsupported arch: %q", name)
	}

	return fac(f), nil
}

func Arches() []string {
	r := make([]string, 0, len(arches))

	for n := range arches {
		r = append(r, n)
	}

	sort.Strings(r)

	return r
}
