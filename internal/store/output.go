package store

import (
	"bufio"
	"io"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

// DefaultWriteBufferSize is the buffer in front of every output file.
const DefaultWriteBufferSize = 16384

// WriteSeekCloser is the file handle an Output writes through.
type WriteSeekCloser interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Output is a buffered IndexOutput. Seeking flushes the buffer first so
// that back-patching earlier bytes works.
type Output struct {
	name   string
	f      WriteSeekCloser
	w      *bufio.Writer
	pos    int64
	length int64
	closed bool
}

func NewOutput(name string, f WriteSeekCloser) *Output {
	return &Output{
		name: name,
		f:    f,
		w:    bufio.NewWriterSize(f, DefaultWriteBufferSize),
	}
}

func (o *Output) WriteByte(b byte) error {
	if err := o.check(); err != nil {
		return err
	}
	if err := o.w.WriteByte(b); err != nil {
		return serrors.FromOS("write", o.name, err)
	}
	o.advance(1)
	return nil
}

func (o *Output) WriteBytes(p []byte) error {
	if err := o.check(); err != nil {
		return err
	}
	n, err := o.w.Write(p)
	o.advance(n)
	if err != nil {
		return serrors.FromOS("write", o.name, err)
	}
	return nil
}

func (o *Output) WriteInt(v int32) error     { return writeInt(o, v) }
func (o *Output) WriteVInt(v int32) error    { return writeVarint(o, uint64(uint32(v))) }
func (o *Output) WriteLong(v int64) error    { return writeLong(o, v) }
func (o *Output) WriteVLong(v int64) error   { return writeVarint(o, uint64(v)) }
func (o *Output) WriteString(s string) error { return writeString(o, s) }

func (o *Output) FilePointer() int64 { return o.pos }

func (o *Output) Length() int64 { return o.length }

func (o *Output) SeekTo(pos int64) error {
	if err := o.check(); err != nil {
		return err
	}
	if pos < 0 {
		return serrors.Newf(serrors.ErrIllegalArgument, "seek", o.name, "negative position %d", pos)
	}
	if err := o.Flush(); err != nil {
		return err
	}
	if _, err := o.f.Seek(pos, io.SeekStart); err != nil {
		return serrors.FromOS("seek", o.name, err)
	}
	o.pos = pos
	return nil
}

func (o *Output) Flush() error {
	if err := o.w.Flush(); err != nil {
		return serrors.FromOS("flush", o.name, err)
	}
	return nil
}

func (o *Output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	flushErr := o.Flush()
	closeErr := serrors.FromOS("close", o.name, o.f.Close())
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (o *Output) check() error {
	if o.closed {
		return serrors.New(serrors.ErrIllegalState, "write", o.name, "output already closed")
	}
	return nil
}

func (o *Output) advance(n int) {
	o.pos += int64(n)
	if o.pos > o.length {
		o.length = o.pos
	}
}
