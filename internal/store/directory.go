// Package store provides the flat, named-file storage the index is written
// to: a Directory abstraction, sequential/random-access streams with the
// primitive encodings used by every index file, and advisory locks.
package store

import (
	"io"
	"time"
)

// Directory is a flat collection of named files.
type Directory interface {
	// ListAll returns the names of all files in the directory.
	ListAll() ([]string, error)
	FileExists(name string) (bool, error)
	FileLength(name string) (int64, error)
	FileModified(name string) (time.Time, error)
	TouchFile(name string) error
	// OpenInput opens an existing file for reading. A missing file yields an
	// error matching errors.ErrFileNotFound.
	OpenInput(name string) (IndexInput, error)
	// CreateOutput creates (or truncates) a file for writing.
	CreateOutput(name string) (IndexOutput, error)
	DeleteFile(name string) error
	// RenameFile renames from to to, replacing to if it exists.
	RenameFile(from, to string) error
	MakeLock(name string) (Lock, error)
	ClearLock(name string) error
	Close() error
	String() string
}

// IndexInput is a random-access read stream over one file.
type IndexInput interface {
	io.Closer
	ReadByte() (byte, error)
	// ReadBytes fills p completely or fails.
	ReadBytes(p []byte) error
	ReadInt() (int32, error)
	ReadVInt() (int32, error)
	ReadLong() (int64, error)
	ReadVLong() (int64, error)
	ReadString() (string, error)
	FilePointer() int64
	SeekTo(pos int64) error
	Length() int64
	// Clone returns an independent cursor over the same data. Closing a
	// clone does not release the underlying file.
	Clone() IndexInput
}

// IndexOutput is a seekable write stream over one file.
type IndexOutput interface {
	io.Closer
	WriteByte(b byte) error
	WriteBytes(p []byte) error
	WriteInt(v int32) error
	WriteVInt(v int32) error
	WriteLong(v int64) error
	WriteVLong(v int64) error
	WriteString(s string) error
	FilePointer() int64
	SeekTo(pos int64) error
	Length() int64
	Flush() error
}

// Standard lock names.
const (
	WriteLockName  = "write.lock"
	CommitLockName = "commit.lock"
)
