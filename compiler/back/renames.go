package back

import (
	"tlog.app/go/errors"

	"github.com/slowlang/isel/compiler/asm"
)

// renameTable maps a virtual register to the one it aliases.
// Unset entries hold InvalidVReg.
type renameTable []asm.VReg

func (t *renameTable) set(v, to asm.VReg) {
	if v < 0 {
		panic(errors.New("rename of invalid vreg"))
	}

	if int(v) >= len(*t) {
		grown := make(renameTable, int(v)+1, max(int(v)+1, 2*len(*t)))

		n := copy(grown, *t)
		for i := n; i < len(grown); i++ {
			grown[i] = asm.InvalidVReg
		}

		*t = grown
	}

	(*t)[v] = to
}

func (t renameTable) resolve(v asm.VReg) asm.VReg {
	for steps := 0; v >= 0 && int(v) < len(t); steps++ {
		next := t[v]
		if next == asm.InvalidVReg {
			break
		}

		if steps > len(t) {
			panic(errors.New("rename cycle at v%d", v))
		}

		v = next
	}

	return v
}
