package ir

type (
	Representation uint8
	Semantic       uint8

	MachineType struct {
		Rep Representation
		Sem Semantic
	}
)

const (
	RepNone Representation = iota
	RepBit
	RepWord8
	RepWord16
	RepWord32
	RepWord64
	RepFloat32
	RepFloat64
	RepSimd128
	RepSimd256
	RepTaggedSigned
	RepTaggedPointer
	RepTagged
	RepCompressedPointer
	RepCompressed
)

const (
	SemNone Semantic = iota
	SemBool
	SemInt32
	SemUint32
	SemInt64
	SemUint64
	SemNumber
	SemAny
)

var (
	TypeNone    = MachineType{}
	TypeBool    = MachineType{RepBit, SemBool}
	TypeInt8    = MachineType{RepWord8, SemInt32}
	TypeUint8   = MachineType{RepWord8, SemUint32}
	TypeInt16   = MachineType{RepWord16, SemInt32}
	TypeUint16  = MachineType{RepWord16, SemUint32}
	TypeInt32   = MachineType{RepWord32, SemInt32}
	TypeUint32  = MachineType{RepWord32, SemUint32}
	TypeInt64   = MachineType{RepWord64, SemInt64}
	TypeUint64  = MachineType{RepWord64, SemUint64}
	TypeFloat32 = MachineType{RepFloat32, SemNumber}
	TypeFloat64 = MachineType{RepFloat64, SemNumber}
	TypeSimd128 = MachineType{RepSimd128, SemNone}
	TypeSimd256 = MachineType{RepSimd256, SemNone}
	TypePointer = MachineType{RepWord64, SemNone}

	TypeTaggedSigned  = MachineType{RepTaggedSigned, SemInt32}
	TypeTaggedPointer = MachineType{RepTaggedPointer, SemAny}
	TypeAnyTagged     = MachineType{RepTagged, SemAny}
	TypeCompressed    = MachineType{RepCompressed, SemAny}
)

var repNames = [...]string{
	RepNone:              "none",
	RepBit:               "bit",
	RepWord8:             "word8",
	RepWord16:            "word16",
	RepWord32:            "word32",
	RepWord64:            "word64",
	RepFloat32:           "float32",
	RepFloat64:           "float64",
	RepSimd128:           "simd128",
	RepSimd256:           "simd256",
	RepTaggedSigned:      "tagged_signed",
	RepTaggedPointer:     "tagged_pointer",
	RepTagged:            "tagged",
	RepCompressedPointer: "compressed_pointer",
	RepCompressed:        "compressed",
}

func (r Representation) String() string {
	if int(r) < len(repNames) {
		return repNames[r]
	}

	return "rep?"
}

func RepresentationByName(s string) (Representation, bool) {
	for r, n := range repNames {
		if n == s {
			return Representation(r), true
		}
	}

	return RepNone, false
}

func (r Representation) IsTagged() bool {
	return r == RepTaggedSigned || r == RepTaggedPointer || r == RepTagged
}

func (r Representation) IsCompressed() bool {
	return r == RepCompressedPointer || r == RepCompressed
}

func (r Representation) IsFloat() bool {
	return r == RepFloat32 || r == RepFloat64
}

func (r Representation) IsSimd() bool {
	return r == RepSimd128 || r == RepSimd256
}

// CanBeTaggedPointer reports whether a store of r may need a write barrier.
func (r Representation) CanBeTaggedPointer() bool {
	return r == RepTaggedPointer || r == RepTagged || r == RepCompressedPointer || r == RepCompressed
}

// SizeLog2 returns log2 of the byte width. Tagged values are full words.
func (r Representation) SizeLog2() int {
	switch r {
	case RepBit, RepWord8:
		return 0
	case RepWord16:
		return 1
	case RepWord32, RepFloat32, RepCompressedPointer, RepCompressed:
		return 2
	case RepWord64, RepFloat64, RepTaggedSigned, RepTaggedPointer, RepTagged:
		return 3
	case RepSimd128:
		return 4
	case RepSimd256:
		return 5
	}

	return 0
}

func (t MachineType) IsSigned() bool {
	return t.Sem == SemInt32 || t.Sem == SemInt64
}

func (t MachineType) IsUnsigned() bool {
	return t.Sem == SemUint32 || t.Sem == SemUint64
}

func (t MachineType) String() string {
	switch t.Sem {
	case SemInt32, SemInt64:
		return t.Rep.String() + "|signed"
	case SemUint32, SemUint64:
		return t.Rep.String() + "|unsigned"
	}

	return t.Rep.String()
}
