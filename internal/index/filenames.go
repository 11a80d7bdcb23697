package index

import (
	"slices"
	"strconv"
	"strings"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

// File name vocabulary. These strings are part of the on-disk format.
const (
	SegmentsFile    = "segments"
	SegmentsGenFile = "segments.gen"
	DeletableFile   = "deletable"

	NormsExtension             = "nrm"
	FreqExtension              = "frq"
	ProxExtension              = "prx"
	TermsExtension             = "tis"
	TermsIndexExtension        = "tii"
	FieldsIndexExtension       = "fdx"
	FieldsExtension            = "fdt"
	VectorsFieldsExtension     = "tvf"
	VectorsDocumentsExtension  = "tvd"
	VectorsIndexExtension      = "tvx"
	CompoundFileExtension      = "cfs"
	CompoundFileStoreExtension = "cfx"
	DeletesExtension           = "del"
	FieldInfosExtension        = "fnm"
	PlainNormsExtension        = "f"
	SeparateNormsExtension     = "s"
	GenExtension               = "gen"
)

var (
	// IndexExtensions lists every extension an index may contain.
	IndexExtensions = []string{
		CompoundFileExtension, FieldInfosExtension, FieldsIndexExtension,
		FieldsExtension, TermsIndexExtension, TermsExtension, FreqExtension,
		ProxExtension, DeletesExtension, VectorsIndexExtension,
		VectorsDocumentsExtension, VectorsFieldsExtension, GenExtension,
		NormsExtension, CompoundFileStoreExtension,
	}

	// IndexExtensionsInCompoundFile lists the extensions packed into a
	// segment's .cfs file.
	IndexExtensionsInCompoundFile = []string{
		FieldInfosExtension, FieldsIndexExtension, FieldsExtension,
		TermsIndexExtension, TermsExtension, FreqExtension, ProxExtension,
		VectorsIndexExtension, VectorsDocumentsExtension,
		VectorsFieldsExtension, NormsExtension,
	}

	// StoreIndexExtensions are the doc store files: stored fields and term
	// vectors. They may be shared between segments.
	StoreIndexExtensions = []string{
		VectorsIndexExtension, VectorsFieldsExtension,
		VectorsDocumentsExtension, FieldsIndexExtension, FieldsExtension,
	}

	// NonStoreIndexExtensions are the per-segment files that are never shared.
	NonStoreIndexExtensions = []string{
		FieldInfosExtension, FreqExtension, ProxExtension, TermsExtension,
		TermsIndexExtension, NormsExtension,
	}

	// CompoundExtensions is the old-style compound file content.
	CompoundExtensions = []string{
		FieldInfosExtension, FreqExtension, ProxExtension,
		FieldsIndexExtension, FieldsExtension, TermsIndexExtension,
		TermsExtension,
	}

	VectorExtensions = []string{
		VectorsIndexExtension, VectorsDocumentsExtension, VectorsFieldsExtension,
	}
)

// FileNameFromGeneration builds the name of a generational file. NO yields
// "", WITHOUT_GEN yields base+ext, anything else base_<gen in base 36>ext.
func FileNameFromGeneration(base, ext string, gen int64) string {
	switch gen {
	case genNo:
		return ""
	case genWithout:
		return base + ext
	default:
		return base + "_" + strconv.FormatInt(gen, 36) + ext
	}
}

// SegmentFileName joins a segment name and an extension.
func SegmentFileName(segment, ext string) string {
	return segment + "." + ext
}

// IsDocStoreFile reports whether name belongs to a doc store.
func IsDocStoreFile(name string) bool {
	_, ext, ok := strings.Cut(name, ".")
	if !ok {
		return false
	}
	return ext == CompoundFileStoreExtension || slices.Contains(StoreIndexExtensions, ext)
}

// GenerationFromSegmentsFileName parses the generation out of a segments
// file name: "segments" is generation 0, "segments_N" is N in base 36.
func GenerationFromSegmentsFileName(name string) (int64, error) {
	if name == SegmentsFile {
		return 0, nil
	}
	suffix, ok := strings.CutPrefix(name, SegmentsFile+"_")
	if !ok || suffix == "" {
		return 0, serrors.Newf(serrors.ErrIllegalArgument, "parse generation", name, "fileName %q is not a segments file", name)
	}
	gen, err := strconv.ParseInt(suffix, 36, 64)
	if err != nil {
		return 0, serrors.Wrap(serrors.ErrIllegalArgument, "parse generation", name, err)
	}
	return gen, nil
}

// IsSegmentsFile reports whether name is a commit file (segments or
// segments_N), excluding the segments.gen pointer.
func IsSegmentsFile(name string) bool {
	return strings.HasPrefix(name, SegmentsFile) && name != SegmentsGenFile
}

// FileNameFilter recognizes files written by the index.
type FileNameFilter struct{}

// Accept reports whether name is an index file: a known extension, a legacy
// per-field norms file (.fN / .sN), deletable, or a segments file.
func (FileNameFilter) Accept(name string) bool {
	if _, ext, ok := strings.Cut(name, "."); ok {
		if slices.Contains(IndexExtensions, ext) {
			return true
		}
		if isNumberedExtension(ext, PlainNormsExtension) || isNumberedExtension(ext, SeparateNormsExtension) {
			return true
		}
	}
	if name == DeletableFile {
		return true
	}
	return strings.HasPrefix(name, SegmentsFile)
}

// IsCFSFile reports whether an accepted index file would be packed into a
// compound file.
func (FileNameFilter) IsCFSFile(name string) bool {
	_, ext, ok := strings.Cut(name, ".")
	if !ok {
		return false
	}
	return slices.Contains(IndexExtensionsInCompoundFile, ext) || isNumberedExtension(ext, PlainNormsExtension)
}

func isNumberedExtension(ext, prefix string) bool {
	digits, ok := strings.CutPrefix(ext, prefix)
	if !ok || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// hasDigitAfter reports whether name starts with prefix and the next byte
// is a decimal digit.
func hasDigitAfter(name, prefix string) bool {
	return len(name) > len(prefix) && strings.HasPrefix(name, prefix) &&
		name[len(prefix)] >= '0' && name[len(prefix)] <= '9'
}
