package index

import (
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/metrics"
)

// CompoundFileWriter packs several files of a directory into one compound
// file:
//
//	count:VInt {dataOffset:int64 name:string}*count payload*count
//
// Entries are written with zero offsets first and patched once every
// payload has been copied. Source files are left in place.
type CompoundFileWriter struct {
	dir     store.Directory
	name    string
	cfg     config.CompoundConfig
	abort   func() error
	metrics *metrics.Metrics

	entries []*compoundEntry
	ids     map[string]struct{}
	merged  bool
}

type compoundEntry struct {
	file            string
	directoryOffset int64
	dataOffset      int64
}

// CompoundOption configures a CompoundFileWriter.
type CompoundOption func(*CompoundFileWriter)

// WithCompoundConfig sets the copy buffer size and abort check cadence.
func WithCompoundConfig(cfg config.CompoundConfig) CompoundOption {
	return func(w *CompoundFileWriter) { w.cfg = cfg }
}

// WithAbortCheck installs fn, called every AbortCheckBytes copied. A non-nil
// return stops the copy and fails Close with ErrAborted.
func WithAbortCheck(fn func() error) CompoundOption {
	return func(w *CompoundFileWriter) { w.abort = fn }
}

func WithCompoundMetrics(m *metrics.Metrics) CompoundOption {
	return func(w *CompoundFileWriter) { w.metrics = m }
}

func NewCompoundFileWriter(dir store.Directory, name string, opts ...CompoundOption) (*CompoundFileWriter, error) {
	if dir == nil {
		return nil, serrors.New(serrors.ErrIllegalArgument, "new compound writer", name, "directory cannot be nil")
	}
	if name == "" {
		return nil, serrors.New(serrors.ErrIllegalArgument, "new compound writer", "", "name cannot be empty")
	}
	w := &CompoundFileWriter{
		dir:  dir,
		name: name,
		cfg:  config.DefaultCompound(),
		ids:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cfg.BufferSize <= 0 {
		w.cfg.BufferSize = config.DefaultCompound().BufferSize
	}
	if w.cfg.AbortCheckBytes <= 0 {
		w.cfg.AbortCheckBytes = config.DefaultCompound().AbortCheckBytes
	}
	return w, nil
}

func (w *CompoundFileWriter) Name() string { return w.name }

func (w *CompoundFileWriter) Dir() store.Directory { return w.dir }

// AddFile queues file for packing. Files are stored in the order added.
func (w *CompoundFileWriter) AddFile(file string) error {
	if w.merged {
		return serrors.New(serrors.ErrIllegalState, "add file", file, "Can't add extensions after merge has been called")
	}
	if file == "" {
		return serrors.New(serrors.ErrIllegalArgument, "add file", w.name, "file cannot be empty")
	}
	if _, dup := w.ids[file]; dup {
		return serrors.New(serrors.ErrIllegalArgument, "add file", file, "File "+file+" already added")
	}
	w.ids[file] = struct{}{}
	w.entries = append(w.entries, &compoundEntry{file: file})
	return nil
}

// Close writes the compound file. It can be called once, and only after at
// least one file was added. A failed Close removes the partial output.
func (w *CompoundFileWriter) Close() (err error) {
	if w.merged {
		return serrors.New(serrors.ErrIllegalState, "close compound", w.name, "Merge already performed")
	}
	if len(w.entries) == 0 {
		return serrors.New(serrors.ErrIllegalState, "close compound", w.name, "No entries to merge have been defined")
	}
	w.merged = true

	out, err := w.dir.CreateOutput(w.name)
	if err != nil {
		return err
	}
	defer func() {
		cerr := out.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			if derr := w.dir.DeleteFile(w.name); derr != nil {
				logger.WithComponent("compound-writer").Warn("could not remove partial compound file",
					"file", w.name, "error", derr)
			}
		}
	}()

	if err := out.WriteVInt(int32(len(w.entries))); err != nil {
		return err
	}
	for _, e := range w.entries {
		e.directoryOffset = out.FilePointer()
		if err := out.WriteLong(0); err != nil {
			return err
		}
		if err := out.WriteString(e.file); err != nil {
			return err
		}
	}

	c := copier{buf: make([]byte, w.cfg.BufferSize), checkEvery: w.cfg.AbortCheckBytes, abort: w.abort}
	for _, e := range w.entries {
		e.dataOffset = out.FilePointer()
		if err := w.copyFile(&c, e, out); err != nil {
			return err
		}
	}

	for _, e := range w.entries {
		if err := out.SeekTo(e.directoryOffset); err != nil {
			return err
		}
		if err := out.WriteLong(e.dataOffset); err != nil {
			return err
		}
	}
	w.metrics.CompoundSealed()
	return nil
}

// copier carries the copy buffer and abort accounting across files.
type copier struct {
	buf        []byte
	checkEvery int64
	sinceCheck int64
	abort      func() error
}

func (c *copier) copied(n int) error {
	c.sinceCheck += int64(n)
	if c.abort == nil || c.sinceCheck < c.checkEvery {
		return nil
	}
	c.sinceCheck = 0
	return c.abort()
}

func (w *CompoundFileWriter) copyFile(c *copier, e *compoundEntry, out store.IndexOutput) error {
	in, err := w.dir.OpenInput(e.file)
	if err != nil {
		return err
	}
	defer in.Close()

	start := out.FilePointer()
	length := in.Length()
	remainder := length
	for remainder > 0 {
		n := int(min(int64(len(c.buf)), remainder))
		if err := in.ReadBytes(c.buf[:n]); err != nil {
			return err
		}
		if err := out.WriteBytes(c.buf[:n]); err != nil {
			return err
		}
		remainder -= int64(n)
		w.metrics.CompoundCopied(int64(n))
		if err := c.copied(n); err != nil {
			return serrors.Wrap(serrors.ErrAborted, "copy", e.file, err)
		}
	}

	if remainder != 0 {
		return serrors.Newf(serrors.ErrCorruptIndex, "copy", e.file,
			"Non-zero remainder length after copying: %d (length: %d, buffer size: %d)", remainder, length, len(c.buf))
	}
	if diff := out.FilePointer() - start; diff != length {
		return serrors.Newf(serrors.ErrCorruptIndex, "copy", e.file,
			"Difference in the output file offsets %d does not match the original file length %d", diff, length)
	}
	return nil
}
