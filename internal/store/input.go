package store

import (
	"errors"
	"io"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

// DefaultReadBufferSize is the per-cursor read buffer.
const DefaultReadBufferSize = 1024

// Input is a buffered IndexInput over any io.ReaderAt. The reader must be
// safe for concurrent ReadAt calls when clones are used from several
// goroutines.
type Input struct {
	name   string
	src    io.ReaderAt
	closer io.Closer
	length int64
	pos    int64

	buf      []byte
	bufStart int64
	bufLen   int
}

// NewInput returns an input of the given length over src. closer, if
// non-nil, is released by Close.
func NewInput(name string, src io.ReaderAt, length int64, closer io.Closer, bufferSize int) *Input {
	if bufferSize <= 0 {
		bufferSize = DefaultReadBufferSize
	}
	return &Input{
		name:   name,
		src:    src,
		closer: closer,
		length: length,
		buf:    make([]byte, bufferSize),
	}
}

func (in *Input) Name() string { return in.name }

func (in *Input) Length() int64 { return in.length }

func (in *Input) FilePointer() int64 { return in.pos }

func (in *Input) SeekTo(pos int64) error {
	if pos < 0 {
		return serrors.Newf(serrors.ErrIllegalArgument, "seek", in.name, "negative position %d", pos)
	}
	in.pos = pos
	return nil
}

func (in *Input) ReadByte() (byte, error) {
	if !in.buffered(in.pos) {
		if err := in.refill(); err != nil {
			return 0, err
		}
	}
	b := in.buf[in.pos-in.bufStart]
	in.pos++
	return b, nil
}

func (in *Input) ReadBytes(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if in.pos+int64(len(p)) > in.length {
		return serrors.Newf(serrors.ErrReadPastEOF, "read", in.name,
			"pos=%d len=%d length=%d", in.pos, len(p), in.length)
	}
	for len(p) > 0 {
		if in.buffered(in.pos) {
			n := copy(p, in.buf[in.pos-in.bufStart:in.bufLen])
			p = p[n:]
			in.pos += int64(n)
			continue
		}
		if len(p) >= len(in.buf) {
			// Large reads bypass the buffer.
			if err := in.readAt(p, in.pos); err != nil {
				return err
			}
			in.pos += int64(len(p))
			return nil
		}
		if err := in.refill(); err != nil {
			return err
		}
	}
	return nil
}

func (in *Input) ReadInt() (int32, error)     { return readInt(in) }
func (in *Input) ReadVInt() (int32, error)    { return readVInt(in) }
func (in *Input) ReadLong() (int64, error)    { return readLong(in) }
func (in *Input) ReadVLong() (int64, error)   { return readVLong(in) }
func (in *Input) ReadString() (string, error) { return readString(in) }

func (in *Input) Clone() IndexInput {
	return &Input{
		name:   in.name,
		src:    in.src,
		length: in.length,
		pos:    in.pos,
		buf:    make([]byte, len(in.buf)),
	}
}

func (in *Input) Close() error {
	if in.closer == nil {
		return nil
	}
	c := in.closer
	in.closer = nil
	return serrors.FromOS("close", in.name, c.Close())
}

func (in *Input) buffered(pos int64) bool {
	return in.bufLen > 0 && pos >= in.bufStart && pos < in.bufStart+int64(in.bufLen)
}

func (in *Input) refill() error {
	if in.pos >= in.length {
		return serrors.Newf(serrors.ErrReadPastEOF, "read", in.name, "pos=%d length=%d", in.pos, in.length)
	}
	n := int64(len(in.buf))
	if remaining := in.length - in.pos; remaining < n {
		n = remaining
	}
	if err := in.readAt(in.buf[:n], in.pos); err != nil {
		in.bufLen = 0
		return err
	}
	in.bufStart = in.pos
	in.bufLen = int(n)
	return nil
}

func (in *Input) readAt(p []byte, off int64) error {
	n, err := in.src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return serrors.Newf(serrors.ErrReadPastEOF, "read", in.name, "short read at %d: got %d of %d bytes", off, n, len(p))
	}
	return serrors.FromOS("read", in.name, err)
}
