package index

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
)

// SegmentInfos is one commit point: the ordered segment list persisted as
// segments_N, where N is the generation.
//
//	segments_N := format:int32 [version:int64 counter:int32] count:int32
//	              SegmentInfo*count [version:int64]
//
// The version/counter header exists for versioned (negative) formats; older
// files use the leading int as the counter and may append the version.
type SegmentInfos struct {
	infos []*SegmentInfo

	// generation is the segments_N this list was read from or last written
	// to; lastGeneration only moves once a read or write fully succeeded.
	generation     int64
	lastGeneration int64

	version int64
	counter int32
}

func NewSegmentInfos() *SegmentInfos {
	return &SegmentInfos{
		generation:     -1,
		lastGeneration: -1,
		version:        time.Now().UnixMilli(),
	}
}

func (sis *SegmentInfos) Len() int { return len(sis.infos) }

func (sis *SegmentInfos) Info(i int) *SegmentInfo { return sis.infos[i] }

// Infos returns the segments in commit order.
func (sis *SegmentInfos) Infos() []*SegmentInfo { return slices.Clone(sis.infos) }

func (sis *SegmentInfos) Add(info *SegmentInfo) { sis.infos = append(sis.infos, info) }

// Insert places info at pos, shifting later segments right.
func (sis *SegmentInfos) Insert(pos int, info *SegmentInfo) error {
	if pos < 0 || pos > len(sis.infos) {
		return serrors.Newf(serrors.ErrIllegalArgument, "insert segment", info.Name, "pos %d is out of range", pos)
	}
	sis.infos = slices.Insert(sis.infos, pos, info)
	return nil
}

func (sis *SegmentInfos) Set(pos int, info *SegmentInfo) { sis.infos[pos] = info }

func (sis *SegmentInfos) Remove(i int) {
	sis.infos = slices.Delete(sis.infos, i, i+1)
}

// RemoveRange drops segments [from, to).
func (sis *SegmentInfos) RemoveRange(from, to int) {
	to = min(to, len(sis.infos))
	if from >= to {
		return
	}
	sis.infos = slices.Delete(sis.infos, from, to)
}

// Range returns a list sharing the segments [from, to).
func (sis *SegmentInfos) Range(from, to int) *SegmentInfos {
	r := NewSegmentInfos()
	to = min(to, len(sis.infos))
	if from < to {
		r.infos = slices.Clone(sis.infos[from:to])
	}
	return r
}

// IndexOf returns the position of info (by identity) or -1.
func (sis *SegmentInfos) IndexOf(info *SegmentInfo) int {
	return slices.Index(sis.infos, info)
}

func (sis *SegmentInfos) Clear() { sis.infos = nil }

func (sis *SegmentInfos) Version() int64 { return sis.version }

func (sis *SegmentInfos) Generation() int64 { return sis.generation }

func (sis *SegmentInfos) LastGeneration() int64 { return sis.lastGeneration }

// Counter seeds new segment names.
func (sis *SegmentInfos) Counter() int32 { return sis.counter }

func (sis *SegmentInfos) SetCounter(c int32) { sis.counter = c }

// Clone deep-copies the list and every segment in it.
func (sis *SegmentInfos) Clone() *SegmentInfos {
	c := *sis
	c.infos = make([]*SegmentInfo, len(sis.infos))
	for i, info := range sis.infos {
		c.infos[i] = info.Clone()
	}
	return &c
}

// Read loads segmentsFileName. On failure the list is left empty.
func (sis *SegmentInfos) Read(dir store.Directory, segmentsFileName string) error {
	sis.Clear()
	gen, err := GenerationFromSegmentsFileName(segmentsFileName)
	if err != nil {
		return err
	}
	in, err := dir.OpenInput(segmentsFileName)
	if err != nil {
		return err
	}
	defer in.Close()

	sis.generation = gen
	sis.lastGeneration = gen
	if err := sis.decode(dir, segmentsFileName, in); err != nil {
		sis.Clear()
		return err
	}
	return nil
}

func (sis *SegmentInfos) decode(dir store.Directory, name string, in store.IndexInput) error {
	raw, err := in.ReadInt()
	if err != nil {
		return err
	}
	format := Format(raw)
	if format.Versioned() {
		if !format.Supported() {
			return serrors.Newf(serrors.ErrFormat, "read", name, "Unknown format version: %d", raw)
		}
		if sis.version, err = in.ReadLong(); err != nil {
			return err
		}
		if sis.counter, err = in.ReadInt(); err != nil {
			return err
		}
	} else {
		sis.counter = raw
	}

	count, err := in.ReadInt()
	if err != nil {
		return err
	}
	if count < 0 {
		return serrors.Newf(serrors.ErrCorruptIndex, "read", name, "negative segment count %d", count)
	}
	for i := int32(0); i < count; i++ {
		info, err := ReadSegmentInfo(dir, format, in)
		if err != nil {
			return err
		}
		sis.infos = append(sis.infos, info)
	}

	if !format.Versioned() {
		if in.FilePointer() >= in.Length() {
			sis.version = time.Now().UnixMilli()
		} else if sis.version, err = in.ReadLong(); err != nil {
			return err
		}
	}
	return nil
}

// ReadLatest finds and loads the current commit of dir.
func (sis *SegmentInfos) ReadLatest(ctx context.Context, dir store.Directory, cfg config.DiscoveryConfig, opts ...FinderOption) error {
	sis.generation = -1
	sis.lastGeneration = -1
	f := NewFinder[struct{}](dir, cfg, opts...)
	_, err := f.Run(ctx, func(name string) (struct{}, error) {
		return struct{}{}, sis.Read(dir, name)
	})
	if err != nil {
		return err
	}
	f.metrics.CommitLoaded(sis.generation, sis.Len())
	return nil
}

// Write commits the list as segments_<generation+1>. The generation is
// consumed even if the write fails, and a partial file is removed. The
// segments.gen pointer is written afterwards on a best-effort basis.
func (sis *SegmentInfos) Write(dir store.Directory) error {
	name := sis.NextSegmentFileName()
	if sis.generation < 0 {
		sis.generation = 1
	} else {
		sis.generation++
	}

	out, err := dir.CreateOutput(name)
	if err != nil {
		return err
	}
	err = sis.encode(out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if derr := dir.DeleteFile(name); derr != nil {
			logger.WithComponent("segment-infos").Warn("could not remove partial commit", "file", name, "error", derr)
		}
		return err
	}

	if err := writeSegmentsGen(dir, sis.generation); err != nil {
		if !serrors.IsIO(err) {
			return err
		}
		logger.WithComponent("segment-infos").Debug("skipping "+SegmentsGenFile, "generation", sis.generation, "error", err)
	}
	sis.lastGeneration = sis.generation
	return nil
}

func (sis *SegmentInfos) encode(out store.IndexOutput) error {
	if err := out.WriteInt(int32(FormatCurrent)); err != nil {
		return err
	}
	sis.version++
	if err := out.WriteLong(sis.version); err != nil {
		return err
	}
	if err := out.WriteInt(sis.counter); err != nil {
		return err
	}
	if err := out.WriteInt(int32(len(sis.infos))); err != nil {
		return err
	}
	for _, info := range sis.infos {
		if err := info.Write(out); err != nil {
			return err
		}
	}
	return nil
}

func writeSegmentsGen(dir store.Directory, gen int64) error {
	out, err := dir.CreateOutput(SegmentsGenFile)
	if err != nil {
		return err
	}
	err = out.WriteInt(segmentsGenFormat)
	if err == nil {
		err = out.WriteLong(gen)
	}
	if err == nil {
		err = out.WriteLong(gen)
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// Files lists the files referenced by this commit that live in dir,
// optionally including the segments_N file itself.
func (sis *SegmentInfos) Files(dir store.Directory, includeSegmentsFile bool) ([]string, error) {
	var files []string
	if includeSegmentsFile {
		if name := sis.SegmentsFileName(); name != "" {
			files = append(files, name)
		}
	}
	for _, info := range sis.infos {
		if info.Dir() != dir {
			continue
		}
		fs, err := info.Files()
		if err != nil {
			return nil, err
		}
		files = append(files, fs...)
	}
	return files, nil
}

// SegmentsFileName names the last successfully read or written commit.
func (sis *SegmentInfos) SegmentsFileName() string {
	return FileNameFromGeneration(SegmentsFile, "", sis.lastGeneration)
}

// NextSegmentFileName names the file the next Write will create.
func (sis *SegmentInfos) NextSegmentFileName() string {
	next := sis.generation + 1
	if sis.generation < 0 {
		next = 1
	}
	return FileNameFromGeneration(SegmentsFile, "", next)
}

// CurrentSegmentGeneration returns the highest generation among the
// segments files in names, or -1 when there are none.
func CurrentSegmentGeneration(names []string) int64 {
	gen := int64(-1)
	for _, name := range names {
		if !IsSegmentsFile(name) {
			continue
		}
		g, err := GenerationFromSegmentsFileName(name)
		if err != nil {
			continue
		}
		gen = max(gen, g)
	}
	return gen
}

func CurrentSegmentGenerationIn(dir store.Directory) (int64, error) {
	names, err := dir.ListAll()
	if err != nil {
		return -1, serrors.Wrap(serrors.ErrIO, "list", dir.String(), err)
	}
	return CurrentSegmentGeneration(names), nil
}

// CurrentSegmentFileName names the newest segments file in names, or ""
// when there is none.
func CurrentSegmentFileName(names []string) string {
	return FileNameFromGeneration(SegmentsFile, "", CurrentSegmentGeneration(names))
}

func CurrentSegmentFileNameIn(dir store.Directory) (string, error) {
	gen, err := CurrentSegmentGenerationIn(dir)
	if err != nil {
		return "", err
	}
	return FileNameFromGeneration(SegmentsFile, "", gen), nil
}

// ReadCurrentVersion returns the version of the current commit without
// loading its segments, except for pre-versioning files whose version can
// only be found after the last segment record.
func ReadCurrentVersion(ctx context.Context, dir store.Directory, cfg config.DiscoveryConfig, opts ...FinderOption) (int64, error) {
	f := NewFinder[int64](dir, cfg, opts...)
	return f.Run(ctx, func(name string) (int64, error) {
		version, versioned, err := readVersionHeader(dir, name)
		if err != nil || versioned {
			return version, err
		}
		sis := NewSegmentInfos()
		if err := sis.Read(dir, name); err != nil {
			return 0, err
		}
		return sis.Version(), nil
	})
}

func readVersionHeader(dir store.Directory, name string) (version int64, versioned bool, err error) {
	in, err := dir.OpenInput(name)
	if err != nil {
		return 0, false, err
	}
	defer in.Close()
	raw, err := in.ReadInt()
	if err != nil {
		return 0, false, err
	}
	format := Format(raw)
	if !format.Versioned() {
		return 0, false, nil
	}
	if !format.Supported() {
		return 0, true, serrors.Newf(serrors.ErrFormat, "read", name, "Unknown format version: %d", raw)
	}
	version, err = in.ReadLong()
	return version, true, err
}

// NewSegmentName allocates the next segment name, "_" + counter in base 36.
func (sis *SegmentInfos) NewSegmentName() string {
	name := "_" + strconv.FormatInt(int64(sis.counter), 36)
	sis.counter++
	return name
}
