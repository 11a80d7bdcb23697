package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

func writeFile(t *testing.T, dir Directory, name string, fn func(out IndexOutput)) {
	t.Helper()
	out, err := dir.CreateOutput(name)
	require.NoError(t, err)
	fn(out)
	require.NoError(t, out.Close())
}

func TestPrimitiveEncoding(t *testing.T) {
	dir := NewRAMDirectory()
	writeFile(t, dir, "prims", func(out IndexOutput) {
		require.NoError(t, out.WriteInt(-4))
		require.NoError(t, out.WriteLong(math.MaxInt64))
		require.NoError(t, out.WriteVInt(300))
		require.NoError(t, out.WriteVLong(1<<40))
		require.NoError(t, out.WriteString("seg_a"))
		require.NoError(t, out.WriteString(""))
		require.NoError(t, out.WriteByte(0xff))
	})

	in, err := dir.OpenInput("prims")
	require.NoError(t, err)
	defer in.Close()

	i, err := in.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(-4), i)

	l, err := in.ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), l)

	vi, err := in.ReadVInt()
	require.NoError(t, err)
	assert.Equal(t, int32(300), vi)

	vl, err := in.ReadVLong()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), vl)

	s, err := in.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "seg_a", s)

	s, err = in.ReadString()
	require.NoError(t, err)
	assert.Empty(t, s)

	b, err := in.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), b)

	assert.Equal(t, in.Length(), in.FilePointer())
	_, err = in.ReadByte()
	assert.ErrorIs(t, err, serrors.ErrReadPastEOF)
}

func TestIntIsBigEndian(t *testing.T) {
	dir := NewRAMDirectory()
	writeFile(t, dir, "be", func(out IndexOutput) {
		require.NoError(t, out.WriteInt(0x01020304))
	})
	in, err := dir.OpenInput("be")
	require.NoError(t, err)
	defer in.Close()

	got := make([]byte, 4)
	require.NoError(t, in.ReadBytes(got))
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestStringLengthBeyondInputIsCorrupt(t *testing.T) {
	dir := NewRAMDirectory()
	writeFile(t, dir, "str", func(out IndexOutput) {
		require.NoError(t, out.WriteVInt(math.MaxInt32))
		require.NoError(t, out.WriteBytes([]byte("abc")))
	})
	in, err := dir.OpenInput("str")
	require.NoError(t, err)
	defer in.Close()

	_, err = in.ReadString()
	assert.ErrorIs(t, err, serrors.ErrCorruptIndex)
	assert.Contains(t, err.Error(), "exceeds the 3 bytes left")
}

func TestOutputSeekBackPatches(t *testing.T) {
	dir := NewRAMDirectory()
	writeFile(t, dir, "patch", func(out IndexOutput) {
		require.NoError(t, out.WriteLong(0))
		require.NoError(t, out.WriteBytes([]byte("payload")))
		end := out.FilePointer()
		require.NoError(t, out.SeekTo(0))
		require.NoError(t, out.WriteLong(99))
		assert.Equal(t, end, out.Length())
	})

	in, err := dir.OpenInput("patch")
	require.NoError(t, err)
	defer in.Close()
	v, err := in.ReadLong()
	require.NoError(t, err)
	assert.Equal(t, int64(99), v)
	assert.Equal(t, int64(15), in.Length())
}

func TestInputCloneIsIndependent(t *testing.T) {
	dir := NewRAMDirectory()
	writeFile(t, dir, "clone", func(out IndexOutput) {
		for i := int32(0); i < 600; i++ {
			require.NoError(t, out.WriteInt(i))
		}
	})
	in, err := dir.OpenInput("clone")
	require.NoError(t, err)
	defer in.Close()

	require.NoError(t, in.SeekTo(400))
	c := in.Clone()
	v, err := c.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(100), v)
	assert.Equal(t, int64(400), in.FilePointer())

	require.NoError(t, c.SeekTo(0))
	v, err = in.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(100), v)
}

func TestLargeReadSpansBuffer(t *testing.T) {
	dir := NewRAMDirectory()
	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	writeFile(t, dir, "big", func(out IndexOutput) {
		require.NoError(t, out.WriteBytes(payload))
	})
	in, err := dir.OpenInput("big")
	require.NoError(t, err)
	defer in.Close()

	_, err = in.ReadByte()
	require.NoError(t, err)
	got := make([]byte, len(payload)-1)
	require.NoError(t, in.ReadBytes(got))
	assert.Equal(t, payload[1:], got)

	assert.ErrorIs(t, in.ReadBytes(make([]byte, 1)), serrors.ErrReadPastEOF)
}

func TestWriteAfterCloseFails(t *testing.T) {
	dir := NewRAMDirectory()
	out, err := dir.CreateOutput("closed")
	require.NoError(t, err)
	require.NoError(t, out.Close())
	require.NoError(t, out.Close())
	assert.ErrorIs(t, out.WriteInt(1), serrors.ErrIllegalState)
}

func TestDirectoryListExistsDeleteRename(t *testing.T) {
	dir := NewRAMDirectory()
	for _, name := range []string{"b", "a", "c"} {
		writeFile(t, dir, name, func(out IndexOutput) {
			require.NoError(t, out.WriteByte(1))
		})
	}

	names, err := dir.ListAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	ok, err := dir.FileExists("a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, dir.RenameFile("a", "z"))
	ok, err = dir.FileExists("a")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := dir.FileLength("z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, dir.DeleteFile("z"))
	err = dir.DeleteFile("z")
	assert.ErrorIs(t, err, serrors.ErrFileNotFound)
	assert.True(t, serrors.IsIO(err))

	_, err = dir.OpenInput("missing")
	assert.ErrorIs(t, err, serrors.ErrFileNotFound)
}

func TestTouchFileUpdatesModTime(t *testing.T) {
	dir := NewRAMDirectory()
	writeFile(t, dir, "t", func(out IndexOutput) {})
	old := time.Now().Add(-time.Hour)
	require.NoError(t, dir.Fs().Chtimes("/t", old, old))

	require.NoError(t, dir.TouchFile("t"))
	mod, err := dir.FileModified("t")
	require.NoError(t, err)
	assert.True(t, mod.After(old))
}

func TestMMapDirectory(t *testing.T) {
	path := t.TempDir()
	dir, err := OpenFSDirectory(path, WithMMap(true))
	require.NoError(t, err)

	writeFile(t, dir, "mapped", func(out IndexOutput) {
		require.NoError(t, out.WriteString("hello mmap"))
	})
	writeFile(t, dir, "empty", func(out IndexOutput) {})

	in, err := dir.OpenInput("mapped")
	require.NoError(t, err)
	s, err := in.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello mmap", s)
	require.NoError(t, in.Close())

	in, err = dir.OpenInput("empty")
	require.NoError(t, err)
	assert.Equal(t, int64(0), in.Length())
	require.NoError(t, in.Close())

	_, err = os.Stat(filepath.Join(path, "mapped"))
	require.NoError(t, err)
}

func TestFSLockIsExclusive(t *testing.T) {
	fs := afero.NewMemMapFs()
	lf := NewFSLockFactory(fs, "/idx")
	require.NoError(t, fs.MkdirAll("/idx", 0o755))

	a := lf.MakeLock(WriteLockName)
	b := lf.MakeLock(WriteLockName)

	ok, err := a.Obtain()
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Obtain()
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := b.IsLocked()
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, a.Release())
	ok, err = b.Obtain()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, lf.ClearLock(WriteLockName))
	locked, err = a.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestSingleInstanceLock(t *testing.T) {
	lf := NewSingleInstanceLockFactory()
	a := lf.MakeLock(CommitLockName)
	b := lf.MakeLock(CommitLockName)

	locked, err := a.IsLocked()
	require.NoError(t, err)
	assert.False(t, locked)

	ok, _ := a.Obtain()
	assert.True(t, ok)
	ok, _ = b.Obtain()
	assert.False(t, ok)

	// Releasing a lock that was never obtained must not free the holder's.
	require.NoError(t, b.Release())
	locked, _ = a.IsLocked()
	assert.True(t, locked)

	require.NoError(t, a.Release())
	ok, _ = b.Obtain()
	assert.True(t, ok)
}

func TestObtainLockTimesOut(t *testing.T) {
	lf := NewSingleInstanceLockFactory()
	holder := lf.MakeLock(WriteLockName)
	ok, _ := holder.Obtain()
	require.True(t, ok)

	start := time.Now()
	err := ObtainLock(context.Background(), lf.MakeLock(WriteLockName), 30*time.Millisecond, 5*time.Millisecond)
	assert.ErrorIs(t, err, serrors.ErrLockObtainFailed)
	assert.Contains(t, err.Error(), "Lock obtain timed out")
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestObtainLockSucceedsAfterRelease(t *testing.T) {
	lf := NewSingleInstanceLockFactory()
	holder := lf.MakeLock(WriteLockName)
	ok, _ := holder.Obtain()
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		holder.Release()
	}()
	err := ObtainLock(context.Background(), lf.MakeLock(WriteLockName), 2*time.Second, 5*time.Millisecond)
	assert.NoError(t, err)
}

func TestNoLockAlwaysSucceeds(t *testing.T) {
	l := NoLockFactory{}.MakeLock("x")
	for i := 0; i < 3; i++ {
		ok, err := l.Obtain()
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func BenchmarkReadVInt(b *testing.B) {
	dir := NewRAMDirectory()
	out, _ := dir.CreateOutput("vints")
	for i := int32(0); i < 10000; i++ {
		out.WriteVInt(i * 31)
	}
	out.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		in, _ := dir.OpenInput("vints")
		for j := 0; j < 10000; j++ {
			if _, err := in.ReadVInt(); err != nil {
				b.Fatal(err)
			}
		}
		in.Close()
	}
}
