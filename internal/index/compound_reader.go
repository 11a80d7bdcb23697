package index

import (
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

// CompoundFileReader exposes the sub-files of a compound file as a
// read-only Directory. All sub-file inputs share one underlying stream;
// their reads are serialized by the reader's mutex.
type CompoundFileReader struct {
	dir            store.Directory
	name           string
	readBufferSize int

	mu      sync.Mutex
	stream  store.IndexInput
	entries map[string]subFile
	names   []string
}

type subFile struct {
	offset int64
	length int64
}

var _ store.Directory = (*CompoundFileReader)(nil)

// minCompoundEntrySize is an 8-byte offset plus a one-byte name length.
const minCompoundEntrySize = 9

// OpenCompoundFileReader reads the entry table of name in dir.
func OpenCompoundFileReader(dir store.Directory, name string) (r *CompoundFileReader, err error) {
	stream, err := dir.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			stream.Close()
		}
	}()

	count, err := stream.ReadVInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, serrors.Newf(serrors.ErrCorruptIndex, "open compound", name, "negative entry count %d", count)
	}
	if left := stream.Length() - stream.FilePointer(); int64(count)*minCompoundEntrySize > left {
		return nil, serrors.Newf(serrors.ErrCorruptIndex, "open compound", name,
			"entry count %d does not fit in the %d bytes left", count, left)
	}

	r = &CompoundFileReader{
		dir:            dir,
		name:           name,
		readBufferSize: store.DefaultReadBufferSize,
		stream:         stream,
		entries:        make(map[string]subFile),
	}
	var prev string
	for i := int32(0); i < count; i++ {
		offset, err := stream.ReadLong()
		if err != nil {
			return nil, err
		}
		id, err := stream.ReadString()
		if err != nil {
			return nil, err
		}
		if prev != "" {
			if err := r.setLength(prev, offset-r.entries[prev].offset); err != nil {
				return nil, err
			}
		}
		if _, dup := r.entries[id]; dup {
			return nil, serrors.Newf(serrors.ErrCorruptIndex, "open compound", name, "duplicate sub-file %q", id)
		}
		r.entries[id] = subFile{offset: offset}
		r.names = append(r.names, id)
		prev = id
	}
	if prev != "" {
		if err := r.setLength(prev, stream.Length()-r.entries[prev].offset); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *CompoundFileReader) setLength(id string, length int64) error {
	e := r.entries[id]
	if length < 0 || e.offset < 0 {
		return serrors.Newf(serrors.ErrCorruptIndex, "open compound", r.name,
			"sub-file %q has offset %d and length %d", id, e.offset, length)
	}
	e.length = length
	r.entries[id] = e
	return nil
}

// Directory is the directory holding the compound file.
func (r *CompoundFileReader) Directory() store.Directory { return r.dir }

func (r *CompoundFileReader) Name() string { return r.name }

// OpenInput returns an independent cursor over sub-file id. Reads past the
// sub-file's end fail with ErrReadPastEOF.
func (r *CompoundFileReader) OpenInput(id string) (store.IndexInput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return nil, serrors.New(serrors.ErrIO, "open input", id, "Stream closed")
	}
	e, ok := r.entries[id]
	if !ok {
		return nil, serrors.Newf(serrors.ErrIllegalArgument, "open input", r.name, "No sub-file with id %s found", id)
	}
	section := &sharedSection{r: r, offset: e.offset}
	return store.NewInput(r.name+"/"+id, section, e.length, nil, r.readBufferSize), nil
}

// sharedSection reads a window of the shared stream. Seek and read happen
// under the reader's lock so concurrent cursors do not interleave.
type sharedSection struct {
	r      *CompoundFileReader
	offset int64
}

func (s *sharedSection) ReadAt(p []byte, off int64) (int, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if s.r.stream == nil {
		return 0, serrors.New(serrors.ErrIO, "read", s.r.name, "Stream closed")
	}
	if err := s.r.stream.SeekTo(s.offset + off); err != nil {
		return 0, err
	}
	if err := s.r.stream.ReadBytes(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ListAll returns the sub-file names in the order they were packed.
func (r *CompoundFileReader) ListAll() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.names), nil
}

func (r *CompoundFileReader) FileExists(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok, nil
}

func (r *CompoundFileReader) FileLength(id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return 0, serrors.New(serrors.ErrFileNotFound, "file length", id, "File "+id+" does not exist")
	}
	return e.length, nil
}

// FileModified reports the compound file's modification time.
func (r *CompoundFileReader) FileModified(string) (time.Time, error) {
	return r.dir.FileModified(r.name)
}

// TouchFile touches the compound file itself.
func (r *CompoundFileReader) TouchFile(string) error {
	return r.dir.TouchFile(r.name)
}

func (r *CompoundFileReader) CreateOutput(id string) (store.IndexOutput, error) {
	return nil, r.unsupported("create output", id)
}

func (r *CompoundFileReader) DeleteFile(id string) error {
	return r.unsupported("delete", id)
}

func (r *CompoundFileReader) RenameFile(from, _ string) error {
	return r.unsupported("rename", from)
}

func (r *CompoundFileReader) MakeLock(name string) (store.Lock, error) {
	return nil, r.unsupported("make lock", name)
}

func (r *CompoundFileReader) ClearLock(name string) error {
	return r.unsupported("clear lock", name)
}

func (r *CompoundFileReader) unsupported(op, id string) error {
	return serrors.New(serrors.ErrUnsupported, op, id, "compound file "+r.name+" is read-only")
}

// Close releases the shared stream. Inputs opened earlier fail afterwards.
func (r *CompoundFileReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return nil
	}
	err := r.stream.Close()
	r.stream = nil
	r.entries = map[string]subFile{}
	r.names = nil
	return err
}

func (r *CompoundFileReader) String() string {
	return "CompoundFileReader@" + r.name
}
