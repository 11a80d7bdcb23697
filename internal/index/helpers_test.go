package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

func fastDiscovery() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		GenFileRetryCount: 2,
		GenFileRetryPause: time.Millisecond,
		GenLookaheadCount: 3,
	}
}

func writeRaw(t testing.TB, dir store.Directory, name string, fn func(out store.IndexOutput) error) {
	t.Helper()
	out, err := dir.CreateOutput(name)
	require.NoError(t, err)
	require.NoError(t, fn(out))
	require.NoError(t, out.Close())
}

func touch(t testing.TB, dir store.Directory, names ...string) {
	t.Helper()
	for _, name := range names {
		writeRaw(t, dir, name, func(out store.IndexOutput) error {
			return out.WriteBytes([]byte(name))
		})
	}
}

func readAll(t testing.TB, dir store.Directory, name string) []byte {
	t.Helper()
	in, err := dir.OpenInput(name)
	require.NoError(t, err)
	defer in.Close()
	b := make([]byte, in.Length())
	require.NoError(t, in.ReadBytes(b))
	return b
}

// hookDir overrides selected Directory methods.
type hookDir struct {
	store.Directory
	listAll      func() ([]string, error)
	openInput    func(name string) (store.IndexInput, error)
	createOutput func(name string) (store.IndexOutput, error)
}

func (d *hookDir) ListAll() ([]string, error) {
	if d.listAll != nil {
		return d.listAll()
	}
	return d.Directory.ListAll()
}

func (d *hookDir) OpenInput(name string) (store.IndexInput, error) {
	if d.openInput != nil {
		return d.openInput(name)
	}
	return d.Directory.OpenInput(name)
}

func (d *hookDir) CreateOutput(name string) (store.IndexOutput, error) {
	if d.createOutput != nil {
		return d.createOutput(name)
	}
	return d.Directory.CreateOutput(name)
}

// failingOutput fails every write once more than limit writes were made.
type failingOutput struct {
	store.IndexOutput
	limit  int
	writes int
	err    error
}

func (o *failingOutput) tick() error {
	o.writes++
	if o.writes > o.limit {
		return o.err
	}
	return nil
}

func (o *failingOutput) WriteByte(b byte) error {
	if err := o.tick(); err != nil {
		return err
	}
	return o.IndexOutput.WriteByte(b)
}

func (o *failingOutput) WriteBytes(p []byte) error {
	if err := o.tick(); err != nil {
		return err
	}
	return o.IndexOutput.WriteBytes(p)
}

func (o *failingOutput) WriteInt(v int32) error {
	if err := o.tick(); err != nil {
		return err
	}
	return o.IndexOutput.WriteInt(v)
}

func (o *failingOutput) WriteVInt(v int32) error {
	if err := o.tick(); err != nil {
		return err
	}
	return o.IndexOutput.WriteVInt(v)
}

func (o *failingOutput) WriteLong(v int64) error {
	if err := o.tick(); err != nil {
		return err
	}
	return o.IndexOutput.WriteLong(v)
}

func (o *failingOutput) WriteVLong(v int64) error {
	if err := o.tick(); err != nil {
		return err
	}
	return o.IndexOutput.WriteVLong(v)
}

func (o *failingOutput) WriteString(s string) error {
	if err := o.tick(); err != nil {
		return err
	}
	return o.IndexOutput.WriteString(s)
}

func ioFailure(name string) error {
	return serrors.New(serrors.ErrIO, "write", name, "disk full")
}

// writeSegmentsFile writes a segments_N file by hand in FormatCurrent.
func writeSegmentsFile(t testing.TB, dir store.Directory, name string, version int64, counter int32, infos ...*SegmentInfo) {
	t.Helper()
	writeRaw(t, dir, name, func(out store.IndexOutput) error {
		if err := out.WriteInt(int32(FormatCurrent)); err != nil {
			return err
		}
		if err := out.WriteLong(version); err != nil {
			return err
		}
		if err := out.WriteInt(counter); err != nil {
			return err
		}
		if err := out.WriteInt(int32(len(infos))); err != nil {
			return err
		}
		for _, si := range infos {
			if err := si.Write(out); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeTruncated leaves a segments file that ends right after its header
// tag, as seen while a writer is still producing it.
func writeTruncated(t testing.TB, dir store.Directory, name string) {
	t.Helper()
	writeRaw(t, dir, name, func(out store.IndexOutput) error {
		return out.WriteInt(int32(FormatCurrent))
	})
}

func writeGenFile(t testing.TB, dir store.Directory, gen0, gen1 int64) {
	t.Helper()
	writeRaw(t, dir, SegmentsGenFile, func(out store.IndexOutput) error {
		if err := out.WriteInt(segmentsGenFormat); err != nil {
			return err
		}
		if err := out.WriteLong(gen0); err != nil {
			return err
		}
		return out.WriteLong(gen1)
	})
}
