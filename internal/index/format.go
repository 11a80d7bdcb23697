package index

import "fmt"

// Format is the tag at the head of a segments file. Negative tags name a
// format epoch; each epoch adds fields to the previous one, so "this file
// has the fields of epoch E" is f <= E. Non-negative tags predate
// versioning and hold the segment name counter instead.
type Format int32

const (
	// FormatVersioned adds the version and counter header fields.
	FormatVersioned Format = -1
	// FormatLockless adds delGen, normGen and the compound flag per segment.
	FormatLockless Format = -2
	// FormatSingleNormFile adds hasSingleNormFile.
	FormatSingleNormFile Format = -3
	// FormatSharedDocStore adds the doc store offset, segment and flag.
	FormatSharedDocStore Format = -4

	FormatCurrent = FormatSharedDocStore
)

// segmentsGenFormat tags the segments.gen pointer file.
const segmentsGenFormat = int32(FormatLockless)

func (f Format) Versioned() bool { return f < 0 }

// Has reports whether files in format f carry the fields introduced by epoch.
func (f Format) Has(epoch Format) bool {
	return f.Versioned() && f <= epoch
}

// Supported reports whether this package can read format f.
func (f Format) Supported() bool { return f >= FormatCurrent }

func (f Format) String() string {
	switch f {
	case FormatVersioned:
		return "versioned"
	case FormatLockless:
		return "lockless"
	case FormatSingleNormFile:
		return "single-norm-file"
	case FormatSharedDocStore:
		return "shared-doc-store"
	}
	if f >= 0 {
		return fmt.Sprintf("pre-versioning(counter=%d)", int32(f))
	}
	return fmt.Sprintf("unknown(%d)", int32(f))
}

type segmentField uint8

const (
	fieldDelGen segmentField = iota
	fieldDocStore
	fieldSingleNorm
	fieldNormGen
	fieldCompound
)

// fieldEpochs is the epoch that introduced each optional SegmentInfo field.
var fieldEpochs = [...]Format{
	fieldDelGen:     FormatLockless,
	fieldDocStore:   FormatSharedDocStore,
	fieldSingleNorm: FormatSingleNormFile,
	fieldNormGen:    FormatLockless,
	fieldCompound:   FormatLockless,
}

func (f Format) hasField(field segmentField) bool {
	return f.Has(fieldEpochs[field])
}
