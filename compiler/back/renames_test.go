package back

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slowlang/isel/compiler/asm"
)

func TestRenameTable(t *testing.T) {
	var r renameTable

	r.set(5, 2)
	r.set(2, 0)

	assert.Len(t, r, 6)
	assert.Equal(t, asm.InvalidVReg, r[3])

	assert.Equal(t, asm.VReg(0), r.resolve(5))
	assert.Equal(t, asm.VReg(0), r.resolve(2))
	assert.Equal(t, asm.VReg(4), r.resolve(4))
	assert.Equal(t, asm.VReg(10), r.resolve(10))
	assert.Equal(t, asm.InvalidVReg, r.resolve(asm.InvalidVReg))

	r.set(0, 5)
	assert.Panics(t, func() { r.resolve(5) })
}
