package snapshot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/commit"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Lock.Timeout = 0
	cfg.Discovery = config.DiscoveryConfig{GenFileRetryCount: 1, GenFileRetryPause: time.Millisecond, GenLookaheadCount: 2}
	return cfg
}

func write(t *testing.T, dir store.Directory, name, content string) {
	t.Helper()
	out, err := dir.CreateOutput(name)
	require.NoError(t, err)
	require.NoError(t, out.WriteBytes([]byte(content)))
	require.NoError(t, out.Close())
}

// buildIndex commits one compound and one plain segment.
func buildIndex(t *testing.T, dir store.Directory) *commit.Committer {
	t.Helper()
	ctx := context.Background()
	c, err := commit.Open(ctx, dir, testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	packed := c.NewSegmentName()
	write(t, dir, packed+".fnm", "fields")
	write(t, dir, packed+".frq", "postings")
	require.NoError(t, c.AddSegment(index.NewSegmentInfo(packed, 10, dir, false, true)))
	require.NoError(t, c.PackCompound(ctx, packed))

	plain := c.NewSegmentName()
	write(t, dir, plain+".fnm", "f")
	write(t, dir, plain+".tis", "terms")
	require.NoError(t, c.AddSegment(index.NewSegmentInfo(plain, 5, dir, false, true)))
	require.NoError(t, c.Commit(ctx))
	return c
}

func TestOpenResolvesSegments(t *testing.T) {
	dir := store.NewRAMDirectory()
	buildIndex(t, dir)

	s, err := Open(context.Background(), dir, testConfig().Discovery)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(1), s.Generation())
	assert.Equal(t, "segments_1", s.SegmentsFileName())
	assert.Equal(t, int64(15), s.DocCount())
	require.Len(t, s.Segments(), 2)

	packed := s.Segment("_0")
	require.NotNil(t, packed)
	assert.Equal(t, []string{"_0.cfs"}, packed.Files)
	assert.ElementsMatch(t, []string{"_0.fnm", "_0.frq"}, packed.SubFiles())
	in, err := packed.Open("frq")
	require.NoError(t, err)
	buf := make([]byte, in.Length())
	require.NoError(t, in.ReadBytes(buf))
	assert.Equal(t, "postings", string(buf))

	plain := s.Segment("_1")
	require.NotNil(t, plain)
	assert.Nil(t, plain.SubFiles())
	assert.ElementsMatch(t, []string{"_1.fnm", "_1.tis"}, plain.Files)
	assert.Equal(t, int64(len("f")+len("terms")), plain.SizeInBytes)
	in, err = plain.Open("tis")
	require.NoError(t, err)
	require.NoError(t, in.Close())

	assert.Nil(t, s.Segment("_7"))
	assert.Greater(t, s.SizeInBytes(), plain.SizeInBytes)
}

func TestOpenFailsWhenCompoundFileMissing(t *testing.T) {
	dir := store.NewRAMDirectory()
	buildIndex(t, dir)
	require.NoError(t, dir.DeleteFile("_0.cfs"))

	_, err := Open(context.Background(), dir, testConfig().Discovery)
	assert.ErrorIs(t, err, serrors.ErrFileNotFound)
}

func TestOpenEmptyDirectory(t *testing.T) {
	_, err := Open(context.Background(), store.NewRAMDirectory(), testConfig().Discovery)
	assert.ErrorIs(t, err, serrors.ErrNoCommit)
}

func TestWatcherReopen(t *testing.T) {
	ctx := context.Background()
	dir := store.NewRAMDirectory()
	c := buildIndex(t, dir)

	s, err := Open(ctx, dir, testConfig().Discovery)
	require.NoError(t, err)
	defer s.Close()

	w := NewWatcher(dir, testConfig().Discovery)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := w.IsCurrent(ctx, s)
			assert.NoError(t, err)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	same, changed, err := w.Reopen(ctx, s)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, s, same)

	name := c.NewSegmentName()
	write(t, dir, name+".fnm", "x")
	require.NoError(t, c.AddSegment(index.NewSegmentInfo(name, 1, dir, false, true)))
	require.NoError(t, c.Commit(ctx))

	next, changed, err := w.Reopen(ctx, s)
	require.NoError(t, err)
	require.True(t, changed)
	defer next.Close()
	assert.Equal(t, int64(2), next.Generation())
	assert.Len(t, next.Segments(), 3)
	assert.Equal(t, s.Version()+1, next.Version())
}
