package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

func TestFileNameFromGeneration(t *testing.T) {
	tests := []struct {
		base, ext string
		gen       int64
		want      string
	}{
		{"segments", "", 0, "segments"},
		{"segments", "", -1, ""},
		{"x", ".ext", 5, "x_5.ext"},
		{"x", ".ext", 36, "x_10.ext"},
		{"segments", "", 35, "segments_z"},
		{"_3", ".del", 1, "_3_1.del"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileNameFromGeneration(tt.base, tt.ext, tt.gen),
			"FileNameFromGeneration(%q, %q, %d)", tt.base, tt.ext, tt.gen)
	}
}

func TestGenerationFromSegmentsFileName(t *testing.T) {
	gen, err := GenerationFromSegmentsFileName("segments")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	gen, err = GenerationFromSegmentsFileName("segments_10")
	require.NoError(t, err)
	assert.Equal(t, int64(36), gen)

	_, err = GenerationFromSegmentsFileName("_1.cfs")
	assert.ErrorIs(t, err, serrors.ErrIllegalArgument)
	_, err = GenerationFromSegmentsFileName("segments_")
	assert.ErrorIs(t, err, serrors.ErrIllegalArgument)
}

func TestCurrentSegmentGeneration(t *testing.T) {
	assert.Equal(t, int64(-1), CurrentSegmentGeneration(nil))
	assert.Equal(t, int64(-1), CurrentSegmentGeneration([]string{"segments.gen", "_0.cfs"}))
	assert.Equal(t, int64(37), CurrentSegmentGeneration([]string{"segments_3", "segments_11", "segments.gen", "segments"}))
	assert.Equal(t, "segments_3", CurrentSegmentFileName([]string{"segments_2", "segments_3", "_1.fnm"}))
	assert.Equal(t, "", CurrentSegmentFileName([]string{"_1.fnm"}))
}

func TestIsDocStoreFile(t *testing.T) {
	for _, name := range []string{"_1.fdx", "_1.fdt", "_1.tvx", "_1.tvd", "_1.tvf", "_1.cfx"} {
		assert.True(t, IsDocStoreFile(name), name)
	}
	for _, name := range []string{"_1.cfs", "_1.frq", "_1.nrm", "segments_2", "_1_2.del"} {
		assert.False(t, IsDocStoreFile(name), name)
	}
}

func TestExtensionSets(t *testing.T) {
	assert.Len(t, IndexExtensions, 15)
	assert.Len(t, IndexExtensionsInCompoundFile, 11)
	assert.Equal(t, []string{"tvx", "tvf", "tvd", "fdx", "fdt"}, StoreIndexExtensions)
	assert.Equal(t, []string{"fnm", "frq", "prx", "tis", "tii", "nrm"}, NonStoreIndexExtensions)
	assert.Equal(t, []string{"fnm", "frq", "prx", "fdx", "fdt", "tii", "tis"}, CompoundExtensions)
	assert.Equal(t, []string{"tvx", "tvd", "tvf"}, VectorExtensions)
}

func TestFileNameFilter(t *testing.T) {
	var f FileNameFilter
	for _, name := range []string{"_1.cfs", "_1.f3", "_1.s12", "_1_4.s2", "segments_5", "segments.gen", "deletable", "_2.cfx"} {
		assert.True(t, f.Accept(name), name)
	}
	for _, name := range []string{"write.lock", "_1.fx", "notes.txt", "_1.s"} {
		assert.False(t, f.Accept(name), name)
	}
	assert.True(t, f.IsCFSFile("_1.tis"))
	assert.True(t, f.IsCFSFile("_1.f0"))
	assert.False(t, f.IsCFSFile("_1.s0"))
	assert.False(t, f.IsCFSFile("_1.del"))
}

func TestGenStates(t *testing.T) {
	assert.True(t, Gen{}.IsAbsent())
	assert.Equal(t, At(1), Absent.Advance())
	assert.Equal(t, At(1), Probe.Advance())
	assert.Equal(t, At(6), At(5).Advance())

	for _, wire := range []int64{-1, 0, 1, 42} {
		g, err := GenFromWire(wire)
		require.NoError(t, err)
		assert.Equal(t, wire, g.Wire())
	}
	_, err := GenFromWire(-2)
	assert.ErrorIs(t, err, serrors.ErrCorruptIndex)

	_, ok := Absent.FileName("_1", ".del")
	assert.False(t, ok)
	name, ok := Probe.FileName("_1", ".del")
	assert.True(t, ok)
	assert.Equal(t, "_1.del", name)
	name, _ = At(5).FileName("seg_a", ".del")
	assert.Equal(t, "seg_a_5.del", name)
}

func TestFormatEpochs(t *testing.T) {
	assert.True(t, FormatCurrent.Has(FormatLockless))
	assert.True(t, FormatSingleNormFile.Has(FormatLockless))
	assert.False(t, FormatSingleNormFile.Has(FormatSharedDocStore))
	assert.False(t, FormatVersioned.Has(FormatLockless))
	assert.False(t, Format(3).Has(FormatLockless))
	assert.False(t, Format(3).Versioned())
	assert.True(t, FormatCurrent.Supported())
	assert.False(t, Format(-5).Supported())
}
