package index

import (
	"fmt"
	"strconv"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

// Wire sentinels for generation fields.
const (
	genNo      int64 = -1
	genWithout int64 = 0 // also "check directory" for pre-lockless segments
	genYes     int64 = 1
)

// GenKind distinguishes the three states a generation field can be in.
type GenKind uint8

const (
	// GenAbsent: the file is known not to exist.
	GenAbsent GenKind = iota
	// GenProbe: written by a pre-lockless index, existence must be checked
	// against the directory.
	GenProbe
	// GenAt: the file exists at a concrete generation >= 1.
	GenAt
)

// Gen is a deletion or norm generation. The zero value is Absent.
type Gen struct {
	kind GenKind
	n    int64
}

var (
	Absent = Gen{kind: GenAbsent}
	Probe  = Gen{kind: GenProbe}
)

// At returns the concrete generation n. n must be >= 1.
func At(n int64) Gen {
	if n < genYes {
		panic(fmt.Sprintf("index: generation %d out of range", n))
	}
	return Gen{kind: GenAt, n: n}
}

// GenFromWire decodes the on-disk representation.
func GenFromWire(v int64) (Gen, error) {
	switch {
	case v == genNo:
		return Absent, nil
	case v == genWithout:
		return Probe, nil
	case v >= genYes:
		return Gen{kind: GenAt, n: v}, nil
	default:
		return Gen{}, serrors.Newf(serrors.ErrCorruptIndex, "decode generation", "", "invalid generation %d", v)
	}
}

// Wire returns the on-disk representation.
func (g Gen) Wire() int64 {
	switch g.kind {
	case GenProbe:
		return genWithout
	case GenAt:
		return g.n
	default:
		return genNo
	}
}

func (g Gen) Kind() GenKind { return g.kind }

// Value returns the concrete generation, or 0 when g is not At.
func (g Gen) Value() int64 {
	if g.kind != GenAt {
		return 0
	}
	return g.n
}

func (g Gen) IsAbsent() bool { return g.kind == GenAbsent }
func (g Gen) IsProbe() bool  { return g.kind == GenProbe }
func (g Gen) IsSet() bool    { return g.kind == GenAt }

// Advance returns the next generation. Absent and Probe both advance to 1.
func (g Gen) Advance() Gen {
	if g.kind != GenAt {
		return Gen{kind: GenAt, n: genYes}
	}
	return Gen{kind: GenAt, n: g.n + 1}
}

// FileName names the file this generation refers to. ok is false when the
// generation is Absent and no such file can exist.
func (g Gen) FileName(base, ext string) (name string, ok bool) {
	if g.kind == GenAbsent {
		return "", false
	}
	return FileNameFromGeneration(base, ext, g.Wire()), true
}

func (g Gen) String() string {
	switch g.kind {
	case GenProbe:
		return "probe"
	case GenAt:
		return strconv.FormatInt(g.n, 10)
	default:
		return "absent"
	}
}

// CompoundMode records whether a segment's files are packed into a .cfs.
type CompoundMode int8

const (
	CompoundNo    CompoundMode = -1
	CompoundProbe CompoundMode = 0
	CompoundYes   CompoundMode = 1
)

func compoundModeOf(b bool) CompoundMode {
	if b {
		return CompoundYes
	}
	return CompoundNo
}

func compoundModeFromWire(b byte) (CompoundMode, error) {
	switch m := CompoundMode(int8(b)); m {
	case CompoundNo, CompoundProbe, CompoundYes:
		return m, nil
	default:
		return 0, serrors.Newf(serrors.ErrCorruptIndex, "decode compound flag", "", "invalid compound flag %d", m)
	}
}

func (m CompoundMode) String() string {
	switch m {
	case CompoundNo:
		return "no"
	case CompoundYes:
		return "yes"
	default:
		return "probe"
	}
}
