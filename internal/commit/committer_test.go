package commit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/metrics"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Lock.Timeout = 0
	cfg.Lock.PollInterval = time.Millisecond
	cfg.Discovery = config.DiscoveryConfig{GenFileRetryCount: 1, GenFileRetryPause: time.Millisecond, GenLookaheadCount: 2}
	cfg.Compound = config.CompoundConfig{BufferSize: 256, AbortCheckBytes: 1024}
	return cfg
}

func touch(t *testing.T, dir store.Directory, names ...string) {
	t.Helper()
	for _, name := range names {
		out, err := dir.CreateOutput(name)
		require.NoError(t, err)
		require.NoError(t, out.WriteBytes([]byte(name)))
		require.NoError(t, out.Close())
	}
}

type recordingNotifier struct {
	events []notify.CommitEvent
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, ev notify.CommitEvent) error {
	n.events = append(n.events, ev)
	return n.err
}

func TestCommitterLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := store.NewRAMDirectory()
	n := &recordingNotifier{err: errors.New("kafka unreachable")}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	c, err := Open(ctx, dir, testConfig(), WithNotifier(n), WithMetrics(m))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Infos().Len())

	name := c.NewSegmentName()
	assert.Equal(t, "_0", name)
	touch(t, dir, name+".fnm", name+".frq", name+".tis", name+".f0")
	require.NoError(t, c.AddSegment(index.NewSegmentInfo(name, 12, dir, false, false)))
	assert.ErrorIs(t, c.AddSegment(index.NewSegmentInfo(name, 1, dir, false, false)), serrors.ErrIllegalArgument)

	require.NoError(t, c.Commit(ctx))
	require.Len(t, n.events, 1)
	assert.Equal(t, int64(1), n.events[0].Generation)
	assert.Equal(t, "segments_1", n.events[0].SegmentsFile)
	assert.Equal(t, int64(12), n.events[0].DocCount)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitGeneration))

	require.NoError(t, c.PackCompound(ctx, name))
	require.NoError(t, c.Commit(ctx))
	require.NoError(t, c.Close())

	names, err := dir.ListAll()
	require.NoError(t, err)
	assert.Contains(t, names, "_0.cfs")
	assert.NotContains(t, names, "_0.frq")
	assert.NotContains(t, names, "_0.f0")

	sis := index.NewSegmentInfos()
	require.NoError(t, sis.ReadLatest(ctx, dir, testConfig().Discovery))
	assert.Equal(t, int64(2), sis.Generation())
	files, err := sis.Info(0).Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"_0.cfs"}, files)
	assert.Equal(t, int32(1), sis.Counter())

	r, err := index.OpenCompoundFileReader(dir, "_0.cfs")
	require.NoError(t, err)
	defer r.Close()
	subs, err := r.ListAll()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"_0.fnm", "_0.frq", "_0.tis", "_0.f0"}, subs)
}

func TestCommitterHoldsWriteLock(t *testing.T) {
	ctx := context.Background()
	dir := store.NewRAMDirectory()
	c, err := Open(ctx, dir, testConfig())
	require.NoError(t, err)

	_, err = Open(ctx, dir, testConfig())
	assert.ErrorIs(t, err, serrors.ErrLockObtainFailed)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Commit(ctx), serrors.ErrIllegalState)

	again, err := Open(ctx, dir, testConfig())
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestCommitterReopensExistingIndex(t *testing.T) {
	ctx := context.Background()
	dir := store.NewRAMDirectory()
	c, err := Open(ctx, dir, testConfig())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		name := c.NewSegmentName()
		touch(t, dir, name+".cfs")
		require.NoError(t, c.AddSegment(index.NewSegmentInfo(name, 1, dir, true, true)))
	}
	require.NoError(t, c.Commit(ctx))
	require.NoError(t, c.Close())

	c, err = Open(ctx, dir, testConfig())
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 3, c.Infos().Len())
	assert.Equal(t, "_3", c.NewSegmentName())
}

func TestPackCompoundAborts(t *testing.T) {
	dir := store.NewRAMDirectory()
	c, err := Open(context.Background(), dir, testConfig())
	require.NoError(t, err)
	defer c.Close()

	name := c.NewSegmentName()
	out, err := dir.CreateOutput(name + ".frq")
	require.NoError(t, err)
	require.NoError(t, out.WriteBytes(make([]byte, 4096)))
	require.NoError(t, out.Close())
	require.NoError(t, c.AddSegment(index.NewSegmentInfo(name, 1, dir, false, true)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.PackCompound(ctx, name)
	assert.ErrorIs(t, err, serrors.ErrAborted)

	exists, err := dir.FileExists(name + ".frq")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = dir.FileExists(name + ".cfs")
	require.NoError(t, err)
	assert.False(t, exists)
	compound, err := c.Infos().Info(0).UseCompoundFile()
	require.NoError(t, err)
	assert.False(t, compound)

	assert.ErrorIs(t, c.PackCompound(context.Background(), "_9"), serrors.ErrIllegalArgument)
}

func TestDeleteObsoleteCommits(t *testing.T) {
	ctx := context.Background()
	dir := store.NewRAMDirectory()
	c, err := Open(ctx, dir, testConfig())
	require.NoError(t, err)
	defer c.Close()

	deleted, err := c.DeleteObsoleteCommits(1)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	for i := 0; i < 4; i++ {
		require.NoError(t, c.Commit(ctx))
	}
	_, err = c.DeleteObsoleteCommits(0)
	assert.ErrorIs(t, err, serrors.ErrIllegalArgument)

	deleted, err = c.DeleteObsoleteCommits(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"segments_1", "segments_2"}, deleted)

	names, err := dir.ListAll()
	require.NoError(t, err)
	assert.Contains(t, names, "segments_3")
	assert.Contains(t, names, "segments_4")
	assert.Contains(t, names, index.SegmentsGenFile)
}
