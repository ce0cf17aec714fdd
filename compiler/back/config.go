package back

import (
	"strings"

	"github.com/xyproto/env/v2"
	"golang.org/x/sys/cpu"
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

type (
	Config struct {
		Arch string

		// SwitchJumpTable allows table switches.
		SwitchJumpTable bool
		// RootsRelative allows addressing external references
		// relative to the roots register.
		RootsRelative bool

		SourcePositions SourcePositionMode

		// Verify checks single assignment of the result.
		Verify bool

		Features Features

		// Safepoint is called once per visited node.
		Safepoint func()
	}

	Features struct {
		AVX    bool
		AVX2   bool
		SSE41  bool
		POPCNT bool
		BMI1   bool
	}

	SourcePositionMode uint8
)

const (
	// PositionsCalls records positions of calls and trapping memory accesses.
	PositionsCalls SourcePositionMode = iota
	PositionsAll
	PositionsNone
)

func DefaultConfig() Config {
	return Config{
		Arch:            "x64",
		SwitchJumpTable: true,
		RootsRelative:   true,
		SourcePositions: PositionsCalls,
		Features:        DetectFeatures(),
	}
}

// DetectFeatures reports host CPU features.
func DetectFeatures() Features {
	return Features{
		AVX:    cpu.X86.HasAVX,
		AVX2:   cpu.X86.HasAVX2,
		SSE41:  cpu.X86.HasSSE41,
		POPCNT: cpu.X86.HasPOPCNT,
		BMI1:   cpu.X86.HasBMI1,
	}
}

// FromEnv overrides the config from ISEL_* environment variables.
// The environment is reread on every call.
func (c Config) FromEnv() (Config, error) {
	env.Load()

	c.Arch = env.Str("ISEL_ARCH", c.Arch)

	if env.Has("ISEL_SWITCH_JUMP_TABLE") {
		c.SwitchJumpTable = env.Bool("ISEL_SWITCH_JUMP_TABLE")
	}

	if env.Has("ISEL_ROOTS_RELATIVE") {
		c.RootsRelative = env.Bool("ISEL_ROOTS_RELATIVE")
	}

	if env.Has("ISEL_VERIFY") {
		c.Verify = env.Bool("ISEL_VERIFY")
	}

	if env.Has("ISEL_SOURCE_POSITIONS") {
		m, err := ParseSourcePositionMode(env.Str("ISEL_SOURCE_POSITIONS"))
		if err != nil {
			return c, errors.Wrap(err, "ISEL_SOURCE_POSITIONS")
		}

		c.SourcePositions = m
	}

	if env.Has("ISEL_FEATURES") {
		f, err := ParseFeatures(env.Str("ISEL_FEATURES"))
		if err != nil {
			return c, errors.Wrap(err, "ISEL_FEATURES")
		}

		c.Features = f
	}

	return c, nil
}

func ParseSourcePositionMode(s string) (SourcePositionMode, error) {
	switch strings.ToLower(s) {
	case "calls", "":
		return PositionsCalls, nil
	case "all":
		return PositionsAll, nil
	case "none":
		return PositionsNone, nil
	}

	return 0, errors.New("unknown source positions mode: %q", s)
}

// ParseFeatures parses a comma separated feature list, "none" for no features.
func ParseFeatures(s string) (f Features, err error) {
	for _, x := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "none":
		case "avx":
			f.AVX = true
		case "avx2":
			f.AVX2 = true
		case "sse41", "sse4.1":
			f.SSE41 = true
		case "popcnt":
			f.POPCNT = true
		case "bmi1":
			f.BMI1 = true
		default:
			return f, errors.New("unknown feature: %q", x)
		}
	}

	return f, nil
}

func (f Features) String() string {
	var l []string

	for _, x := range []struct {
		on   bool
		name string
	}{
		{f.AVX, "avx"},
		{f.AVX2, "avx2"},
		{f.SSE41, "sse41"},
		{f.POPCNT, "popcnt"},
		{f.BMI1, "bmi1"},
	} {
		if x.on {
			l = append(l, x.name)
		}
	}

	if l == nil {
		return "none"
	}

	return strings.Join(l, ",")
}

func (f Features) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, f.String())
}

func (m SourcePositionMode) String() string {
	switch m {
	case PositionsCalls:
		return "calls"
	case PositionsAll:
		return "all"
	case PositionsNone:
		return "none"
	}

	return "positions?"
}
