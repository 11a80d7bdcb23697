package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
)

// FSDirectory stores files in one directory of an afero filesystem: the OS
// filesystem in production, an in-memory one for RAM directories and tests.
type FSDirectory struct {
	fs             afero.Fs
	path           string
	useMMap        bool
	readBufferSize int
	lockFactory    LockFactory
	logger         *slog.Logger
}

// Option configures an FSDirectory.
type Option func(*FSDirectory)

// WithMMap maps input files into memory when the backing filesystem is the
// OS filesystem. Other filesystems ignore it.
func WithMMap(enabled bool) Option {
	return func(d *FSDirectory) { d.useMMap = enabled }
}

// WithLockFactory overrides the default lock factory.
func WithLockFactory(lf LockFactory) Option {
	return func(d *FSDirectory) { d.lockFactory = lf }
}

// WithReadBufferSize sets the per-input buffer size.
func WithReadBufferSize(n int) Option {
	return func(d *FSDirectory) { d.readBufferSize = n }
}

// NewFSDirectory opens (creating if needed) path on fs. Unless overridden,
// locks are files created next to the index files.
func NewFSDirectory(fs afero.Fs, path string, opts ...Option) (*FSDirectory, error) {
	if err := fs.MkdirAll(path, 0o755); err != nil {
		return nil, serrors.FromOS("create directory", path, err)
	}
	d := &FSDirectory{
		fs:             fs,
		path:           path,
		readBufferSize: DefaultReadBufferSize,
		logger:         logger.WithComponent("fs-directory").With("path", path),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.lockFactory == nil {
		d.lockFactory = NewFSLockFactory(fs, path)
	}
	return d, nil
}

// OpenFSDirectory opens an index directory on the OS filesystem.
func OpenFSDirectory(path string, opts ...Option) (*FSDirectory, error) {
	return NewFSDirectory(afero.NewOsFs(), path, opts...)
}

// NewRAMDirectory returns an empty in-memory directory with in-process locks.
func NewRAMDirectory() *FSDirectory {
	d, err := NewFSDirectory(afero.NewMemMapFs(), "/", WithLockFactory(NewSingleInstanceLockFactory()))
	if err != nil {
		// MkdirAll on a fresh MemMapFs cannot fail.
		panic(fmt.Sprintf("creating RAM directory: %v", err))
	}
	return d
}

func (d *FSDirectory) Fs() afero.Fs { return d.fs }

func (d *FSDirectory) Path() string { return d.path }

func (d *FSDirectory) LockFactory() LockFactory { return d.lockFactory }

func (d *FSDirectory) file(name string) string {
	return filepath.Join(d.path, name)
}

func (d *FSDirectory) ListAll() ([]string, error) {
	infos, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, serrors.FromOS("list", d.path, err)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		if !fi.IsDir() {
			names = append(names, fi.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *FSDirectory) FileExists(name string) (bool, error) {
	_, err := d.fs.Stat(d.file(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, serrors.FromOS("stat", name, err)
}

func (d *FSDirectory) FileLength(name string) (int64, error) {
	fi, err := d.fs.Stat(d.file(name))
	if err != nil {
		return 0, serrors.FromOS("file length", name, err)
	}
	return fi.Size(), nil
}

func (d *FSDirectory) FileModified(name string) (time.Time, error) {
	fi, err := d.fs.Stat(d.file(name))
	if err != nil {
		return time.Time{}, serrors.FromOS("file modified", name, err)
	}
	return fi.ModTime(), nil
}

func (d *FSDirectory) TouchFile(name string) error {
	now := time.Now()
	return serrors.FromOS("touch", name, d.fs.Chtimes(d.file(name), now, now))
}

func (d *FSDirectory) OpenInput(name string) (IndexInput, error) {
	f, err := d.fs.Open(d.file(name))
	if err != nil {
		return nil, serrors.FromOS("open input", name, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, serrors.FromOS("open input", name, err)
	}
	if d.useMMap {
		if osFile, ok := f.(*os.File); ok && fi.Size() > 0 {
			in, err := openMMapInput(name, osFile, fi.Size(), d.readBufferSize)
			if err == nil {
				return in, nil
			}
			d.logger.Warn("mmap failed, falling back to buffered reads", "file", name, "error", err)
		}
	}
	return NewInput(name, f, fi.Size(), f, d.readBufferSize), nil
}

func (d *FSDirectory) CreateOutput(name string) (IndexOutput, error) {
	f, err := d.fs.OpenFile(d.file(name), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, serrors.FromOS("create output", name, err)
	}
	return NewOutput(name, f), nil
}

func (d *FSDirectory) DeleteFile(name string) error {
	return serrors.FromOS("delete", name, d.fs.Remove(d.file(name)))
}

func (d *FSDirectory) RenameFile(from, to string) error {
	return serrors.FromOS("rename", from, d.fs.Rename(d.file(from), d.file(to)))
}

func (d *FSDirectory) MakeLock(name string) (Lock, error) {
	return d.lockFactory.MakeLock(name), nil
}

func (d *FSDirectory) ClearLock(name string) error {
	return d.lockFactory.ClearLock(name)
}

func (d *FSDirectory) Close() error { return nil }

func (d *FSDirectory) String() string {
	return "FSDirectory@" + d.path
}
