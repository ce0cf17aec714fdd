package back

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeatures(t *testing.T) {
	f, err := ParseFeatures("avx, sse4.1,POPCNT")
	require.NoError(t, err)
	assert.Equal(t, Features{AVX: true, SSE41: true, POPCNT: true}, f)
	assert.Equal(t, "avx,sse41,popcnt", f.String())

	f, err = ParseFeatures("none")
	require.NoError(t, err)
	assert.Equal(t, Features{}, f)
	assert.Equal(t, "none", f.String())

	_, err = ParseFeatures("avx,neon")
	assert.Error(t, err)
}

func TestParseSourcePositionMode(t *testing.T) {
	for s, want := range map[string]SourcePositionMode{
		"":      PositionsCalls,
		"calls": PositionsCalls,
		"ALL":   PositionsAll,
		"none":  PositionsNone,
	} {
		m, err := ParseSourcePositionMode(s)
		require.NoError(t, err, "mode %q", s)
		assert.Equal(t, want, m, "mode %q", s)
	}

	_, err := ParseSourcePositionMode("some")
	assert.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("ISEL_ARCH", "x64")
	t.Setenv("ISEL_SWITCH_JUMP_TABLE", "false")
	t.Setenv("ISEL_VERIFY", "true")
	t.Setenv("ISEL_SOURCE_POSITIONS", "all")
	t.Setenv("ISEL_FEATURES", "avx2,bmi1")

	cfg, err := DefaultConfig().FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "x64", cfg.Arch)
	assert.False(t, cfg.SwitchJumpTable)
	assert.True(t, cfg.RootsRelative)
	assert.True(t, cfg.Verify)
	assert.Equal(t, PositionsAll, cfg.SourcePositions)
	assert.Equal(t, Features{AVX2: true, BMI1: true}, cfg.Features)

	t.Setenv("ISEL_FEATURES", "avx512")

	_, err = DefaultConfig().FromEnv()
	assert.Error(t, err)
}

func TestNewArch(t *testing.T) {
	a, err := NewArch("x64", Features{AVX: true})
	require.NoError(t, err)
	assert.Equal(t, "x64", a.Name())
	assert.Equal(t, Features{AVX: true}, a.(*X64).Features())

	assert.Contains(t, Arches(), "x64")

	_, err = NewArch("mips", Features{})
	assert.Error(t, err)
}
