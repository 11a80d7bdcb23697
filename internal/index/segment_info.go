package index

import (
	"slices"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
)

// SegmentInfo describes one segment: its name, document count, and which
// generation of its deletions and norms files is live. Generation fields
// written by pre-lockless indexes are Probe and resolved against the
// directory on demand.
//
// A SegmentInfo is not safe for concurrent mutation.
type SegmentInfo struct {
	Name     string
	DocCount int32

	dir store.Directory

	// preLockless is true for segments written before generations were
	// recorded; their norm and deletion files must be discovered.
	preLockless bool

	delGen  Gen
	normGen []Gen // nil when the segment records no per-field norm state

	isCompoundFile    CompoundMode
	hasSingleNormFile bool

	// docStoreOffset is -1 when the segment owns its stored fields and term
	// vectors; otherwise they live in docStoreSegment starting at that doc.
	docStoreOffset         int32
	docStoreSegment        string
	docStoreIsCompoundFile bool

	files       []string
	sizeInBytes int64
}

// NewSegmentInfo describes a freshly flushed segment that owns its doc store.
func NewSegmentInfo(name string, docCount int32, dir store.Directory, compound, singleNormFile bool) *SegmentInfo {
	return &SegmentInfo{
		Name:              name,
		DocCount:          docCount,
		dir:               dir,
		delGen:            Absent,
		isCompoundFile:    compoundModeOf(compound),
		hasSingleNormFile: singleNormFile,
		docStoreOffset:    -1,
		docStoreSegment:   name,
		sizeInBytes:       -1,
	}
}

// NewSharedSegmentInfo describes a segment whose stored fields and term
// vectors live in docStoreSegment, starting at docStoreOffset.
func NewSharedSegmentInfo(name string, docCount int32, dir store.Directory, compound, singleNormFile bool,
	docStoreOffset int32, docStoreSegment string, docStoreIsCompound bool) (*SegmentInfo, error) {
	if docStoreOffset != -1 && docStoreSegment == "" {
		return nil, serrors.New(serrors.ErrIllegalArgument, "new segment", name, "shared doc store requires a doc store segment")
	}
	si := NewSegmentInfo(name, docCount, dir, compound, singleNormFile)
	si.docStoreOffset = docStoreOffset
	if docStoreOffset != -1 {
		si.docStoreSegment = docStoreSegment
		si.docStoreIsCompoundFile = docStoreIsCompound
	}
	return si, nil
}

// ReadSegmentInfo decodes one segment record written in format.
func ReadSegmentInfo(dir store.Directory, format Format, in store.IndexInput) (*SegmentInfo, error) {
	name, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	docCount, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	if docCount < 0 {
		return nil, serrors.Newf(serrors.ErrCorruptIndex, "read segment", name, "negative docCount %d", docCount)
	}
	si := &SegmentInfo{
		Name:            name,
		DocCount:        docCount,
		dir:             dir,
		docStoreOffset:  -1,
		docStoreSegment: name,
		sizeInBytes:     -1,
	}

	if !format.hasField(fieldDelGen) {
		si.delGen = Probe
		si.isCompoundFile = CompoundProbe
		si.preLockless = true
		return si, nil
	}

	rawDelGen, err := in.ReadLong()
	if err != nil {
		return nil, err
	}
	if si.delGen, err = GenFromWire(rawDelGen); err != nil {
		return nil, err
	}

	if format.hasField(fieldDocStore) {
		if si.docStoreOffset, err = in.ReadInt(); err != nil {
			return nil, err
		}
		if si.docStoreOffset != -1 {
			if si.docStoreSegment, err = in.ReadString(); err != nil {
				return nil, err
			}
			if si.docStoreSegment == "" {
				si.docStoreSegment = name
			}
			b, err := in.ReadByte()
			if err != nil {
				return nil, err
			}
			si.docStoreIsCompoundFile = b == 1
		}
	}

	if format.hasField(fieldSingleNorm) {
		b, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		si.hasSingleNormFile = b == 1
	}

	numNormGen, err := in.ReadInt()
	if err != nil {
		return nil, err
	}
	switch {
	case numNormGen == int32(genNo):
	case numNormGen < 0:
		return nil, serrors.Newf(serrors.ErrCorruptIndex, "read segment", name, "invalid norm generation count %d", numNormGen)
	case int64(numNormGen)*8 > in.Length()-in.FilePointer():
		return nil, serrors.Newf(serrors.ErrCorruptIndex, "read segment", name,
			"norm generation count %d does not fit in the %d bytes left", numNormGen, in.Length()-in.FilePointer())
	default:
		si.normGen = make([]Gen, numNormGen)
		for j := range si.normGen {
			raw, err := in.ReadLong()
			if err != nil {
				return nil, err
			}
			if si.normGen[j], err = GenFromWire(raw); err != nil {
				return nil, err
			}
		}
	}

	b, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	if si.isCompoundFile, err = compoundModeFromWire(b); err != nil {
		return nil, err
	}
	si.preLockless = si.isCompoundFile == CompoundProbe
	return si, nil
}

// Write encodes the segment in FormatCurrent.
func (si *SegmentInfo) Write(out store.IndexOutput) error {
	if err := out.WriteString(si.Name); err != nil {
		return err
	}
	if err := out.WriteInt(si.DocCount); err != nil {
		return err
	}
	if err := out.WriteLong(si.delGen.Wire()); err != nil {
		return err
	}
	if err := out.WriteInt(si.docStoreOffset); err != nil {
		return err
	}
	if si.docStoreOffset != -1 {
		if err := out.WriteString(si.docStoreSegment); err != nil {
			return err
		}
		if err := out.WriteByte(boolByte(si.docStoreIsCompoundFile)); err != nil {
			return err
		}
	}
	if err := out.WriteByte(boolByte(si.hasSingleNormFile)); err != nil {
		return err
	}
	if si.normGen == nil {
		if err := out.WriteInt(int32(genNo)); err != nil {
			return err
		}
	} else {
		if err := out.WriteInt(int32(len(si.normGen))); err != nil {
			return err
		}
		for _, g := range si.normGen {
			if err := out.WriteLong(g.Wire()); err != nil {
				return err
			}
		}
	}
	return out.WriteByte(byte(si.isCompoundFile))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (si *SegmentInfo) Dir() store.Directory { return si.dir }

func (si *SegmentInfo) DelGen() Gen { return si.delGen }

func (si *SegmentInfo) PreLockless() bool { return si.preLockless }

func (si *SegmentInfo) HasSingleNormFile() bool { return si.hasSingleNormFile }

func (si *SegmentInfo) CompoundMode() CompoundMode { return si.isCompoundFile }

func (si *SegmentInfo) DocStoreOffset() int32 { return si.docStoreOffset }

func (si *SegmentInfo) DocStoreSegment() string { return si.docStoreSegment }

func (si *SegmentInfo) DocStoreIsCompoundFile() bool { return si.docStoreIsCompoundFile }

// NumNormGens is the length of the per-field norm generation table, or -1
// when the segment has none.
func (si *SegmentInfo) NumNormGens() int {
	if si.normGen == nil {
		return -1
	}
	return len(si.normGen)
}

// NormGen returns field i's norm generation; Probe when no table exists.
func (si *SegmentInfo) NormGen(i int) Gen {
	if si.normGen == nil || i < 0 || i >= len(si.normGen) {
		return Probe
	}
	return si.normGen[i]
}

// UseCompoundFile resolves the compound flag, probing for name.cfs when the
// segment predates the flag.
func (si *SegmentInfo) UseCompoundFile() (bool, error) {
	switch si.isCompoundFile {
	case CompoundNo:
		return false, nil
	case CompoundYes:
		return true, nil
	default:
		return si.dir.FileExists(SegmentFileName(si.Name, CompoundFileExtension))
	}
}

func (si *SegmentInfo) SetUseCompoundFile(compound bool) {
	si.isCompoundFile = compoundModeOf(compound)
	si.clearFiles()
}

func (si *SegmentInfo) SetDocStoreOffset(offset int32) {
	si.docStoreOffset = offset
	si.clearFiles()
}

func (si *SegmentInfo) SetDocStoreIsCompoundFile(v bool) {
	si.docStoreIsCompoundFile = v
	si.clearFiles()
}

// DelFileName names the deletions file; ok is false when the segment
// certainly has none.
func (si *SegmentInfo) DelFileName() (string, bool) {
	return si.delGen.FileName(si.Name, "."+DeletesExtension)
}

func (si *SegmentInfo) HasDeletions() (bool, error) {
	switch si.delGen.Kind() {
	case GenAbsent:
		return false, nil
	case GenAt:
		return true, nil
	default:
		name, _ := si.DelFileName()
		return si.dir.FileExists(name)
	}
}

func (si *SegmentInfo) AdvanceDelGen() {
	si.delGen = si.delGen.Advance()
	si.clearFiles()
}

func (si *SegmentInfo) ClearDelGen() {
	si.delGen = Absent
	si.clearFiles()
}

// SetNumFields sizes the norm generation table the first time norms are
// tracked. Pre-lockless segments keep every entry at Probe.
func (si *SegmentInfo) SetNumFields(n int) {
	if si.normGen != nil {
		return
	}
	si.normGen = make([]Gen, n)
	fill := Absent
	if si.preLockless {
		fill = Probe
	}
	for i := range si.normGen {
		si.normGen[i] = fill
	}
}

// AdvanceNormGen bumps field's separate norms generation.
func (si *SegmentInfo) AdvanceNormGen(field int) error {
	if field < 0 || field >= len(si.normGen) {
		return serrors.Newf(serrors.ErrIllegalArgument, "advance norm gen", si.Name,
			"field %d out of range (%d fields)", field, len(si.normGen))
	}
	si.normGen[field] = si.normGen[field].Advance()
	si.clearFiles()
	return nil
}

func separateNormsExt(field int) string {
	return "." + SeparateNormsExtension + strconv.Itoa(field)
}

func plainNormsExt(field int) string {
	return "." + PlainNormsExtension + strconv.Itoa(field)
}

// HasSeparateNormsForField reports whether field's norms live in a separate
// .sN file.
func (si *SegmentInfo) HasSeparateNormsForField(field int) (bool, error) {
	if si.normGen != nil && (field < 0 || field >= len(si.normGen)) {
		return false, serrors.Newf(serrors.ErrIllegalArgument, "separate norms", si.Name,
			"field %d out of range (%d fields)", field, len(si.normGen))
	}
	if (si.normGen == nil && si.preLockless) || (si.normGen != nil && si.normGen[field].IsProbe()) {
		return si.dir.FileExists(si.Name + separateNormsExt(field))
	}
	if si.normGen == nil || si.normGen[field].IsAbsent() {
		return false, nil
	}
	return true, nil
}

// HasSeparateNorms reports whether any field has separate norms.
func (si *SegmentInfo) HasSeparateNorms() (bool, error) {
	if si.normGen == nil {
		if !si.preLockless {
			return false, nil
		}
		names, err := si.legacyNormFiles(SegmentFileName(si.Name, SeparateNormsExtension))
		if err != nil {
			return false, err
		}
		return len(names) > 0, nil
	}
	for _, g := range si.normGen {
		if g.IsSet() {
			return true, nil
		}
	}
	for i, g := range si.normGen {
		if !g.IsProbe() {
			continue
		}
		ok, err := si.HasSeparateNormsForField(i)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// NormFileName names the file holding field's norms.
func (si *SegmentInfo) NormFileName(field int) (string, error) {
	separate, err := si.HasSeparateNormsForField(field)
	if err != nil {
		return "", err
	}
	if separate {
		return FileNameFromGeneration(si.Name, separateNormsExt(field), si.NormGen(field).Wire()), nil
	}
	if si.hasSingleNormFile {
		return FileNameFromGeneration(si.Name, "."+NormsExtension, genWithout), nil
	}
	return FileNameFromGeneration(si.Name, plainNormsExt(field), genWithout), nil
}

// Files lists every file the segment currently depends on. The result is
// cached until a generation or storage flag changes.
func (si *SegmentInfo) Files() ([]string, error) {
	if si.files != nil {
		return slices.Clone(si.files), nil
	}
	files, err := si.resolveFiles()
	if err != nil {
		return nil, err
	}
	si.files = files
	return slices.Clone(files), nil
}

func (si *SegmentInfo) resolveFiles() ([]string, error) {
	var files []string
	addIfExists := func(name string) error {
		ok, err := si.dir.FileExists(name)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, name)
		}
		return nil
	}

	useCompound, err := si.UseCompoundFile()
	if err != nil {
		return nil, err
	}
	if useCompound {
		files = append(files, SegmentFileName(si.Name, CompoundFileExtension))
	} else {
		for _, ext := range NonStoreIndexExtensions {
			if err := addIfExists(SegmentFileName(si.Name, ext)); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case si.docStoreOffset != -1 && si.docStoreIsCompoundFile:
		files = append(files, SegmentFileName(si.docStoreSegment, CompoundFileStoreExtension))
	case si.docStoreOffset != -1:
		for _, ext := range StoreIndexExtensions {
			if err := addIfExists(SegmentFileName(si.docStoreSegment, ext)); err != nil {
				return nil, err
			}
		}
	case !useCompound:
		for _, ext := range StoreIndexExtensions {
			if err := addIfExists(SegmentFileName(si.Name, ext)); err != nil {
				return nil, err
			}
		}
	}

	if delName, ok := si.DelFileName(); ok {
		if si.delGen.IsSet() {
			files = append(files, delName)
		} else if err := addIfExists(delName); err != nil {
			return nil, err
		}
	}

	if si.normGen != nil {
		for i, g := range si.normGen {
			switch g.Kind() {
			case GenAt:
				files = append(files, FileNameFromGeneration(si.Name, separateNormsExt(i), g.Wire()))
			case GenAbsent:
				if !si.hasSingleNormFile && !useCompound {
					if err := addIfExists(si.Name + plainNormsExt(i)); err != nil {
						return nil, err
					}
				}
			case GenProbe:
				var name string
				if useCompound {
					name = si.Name + separateNormsExt(i)
				} else if !si.hasSingleNormFile {
					name = si.Name + plainNormsExt(i)
				}
				if name != "" {
					if err := addIfExists(name); err != nil {
						return nil, err
					}
				}
			}
		}
	} else if si.preLockless || (!si.hasSingleNormFile && !useCompound) {
		ext := PlainNormsExtension
		if useCompound {
			ext = SeparateNormsExtension
		}
		legacy, err := si.legacyNormFiles(SegmentFileName(si.Name, ext))
		if err != nil {
			// Only optional norm files are lost; the segment stays usable.
			logger.WithComponent("segment-info").Warn("legacy norm scan failed",
				"segment", si.Name, "dir", si.dir.String(), "error", err)
		} else {
			files = append(files, legacy...)
		}
	}
	if files == nil {
		files = []string{}
	}
	return files, nil
}

// legacyNormFiles scans the whole directory for prefix<digit>... files.
// Only segments without a norm generation table reach this path.
func (si *SegmentInfo) legacyNormFiles(prefix string) ([]string, error) {
	all, err := si.dir.ListAll()
	if err != nil {
		return nil, serrors.Wrap(serrors.ErrIO, "list", si.dir.String(), err)
	}
	var matched []string
	for _, name := range all {
		if hasDigitAfter(name, prefix) {
			matched = append(matched, name)
		}
	}
	return matched, nil
}

// SizeInBytes sums the lengths of Files(), leaving out doc store files the
// segment shares with others.
func (si *SegmentInfo) SizeInBytes() (int64, error) {
	if si.sizeInBytes >= 0 {
		return si.sizeInBytes, nil
	}
	files, err := si.Files()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, name := range files {
		if si.docStoreOffset != -1 && IsDocStoreFile(name) {
			continue
		}
		n, err := si.dir.FileLength(name)
		if err != nil {
			return 0, err
		}
		total += n
	}
	si.sizeInBytes = total
	return total, nil
}

func (si *SegmentInfo) clearFiles() {
	si.files = nil
	si.sizeInBytes = -1
}

// Clone deep-copies si. The file cache is not carried over.
func (si *SegmentInfo) Clone() *SegmentInfo {
	c := *si
	c.normGen = slices.Clone(si.normGen)
	c.clearFiles()
	return &c
}

// Reset makes si a copy of src.
func (si *SegmentInfo) Reset(src *SegmentInfo) {
	*si = *src.Clone()
}

// Equals reports whether both describe the same segment of the same directory.
func (si *SegmentInfo) Equals(other *SegmentInfo) bool {
	return other != nil && si.dir == other.dir && si.Name == other.Name
}

// SegString is a compact description: name, compound marker (c/C/?), an x
// when the segment lives outside dir, doc count and shared doc store.
func (si *SegmentInfo) SegString(dir store.Directory) string {
	cfs := "C"
	if ok, err := si.UseCompoundFile(); err != nil {
		cfs = "?"
	} else if ok {
		cfs = "c"
	}
	s := si.Name + ":" + cfs
	if si.dir != dir {
		s += "x"
	}
	s += strconv.Itoa(int(si.DocCount))
	if si.docStoreOffset != -1 {
		s += "->" + si.docStoreSegment
	}
	return s
}
