package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
)

func validCommit(t *testing.T, dir store.Directory, name string) {
	t.Helper()
	writeSegmentsFile(t, dir, name, 100, 1, NewSegmentInfo("_0", 1, dir, true, true))
}

func TestFindFallsBackToPreviousGeneration(t *testing.T) {
	dir := store.NewRAMDirectory()
	validCommit(t, dir, "segments_1")
	writeTruncated(t, dir, "segments_2")

	sis := NewSegmentInfos()
	require.NoError(t, sis.ReadLatest(context.Background(), dir, fastDiscovery()))
	assert.Equal(t, int64(1), sis.Generation())
	assert.Equal(t, 1, sis.Len())
}

func TestFindPicksUpCommitPublishedDuringRetry(t *testing.T) {
	base := store.NewRAMDirectory()
	writeTruncated(t, base, "segments_2")

	opens := 0
	dir := &hookDir{Directory: base}
	dir.openInput = func(name string) (store.IndexInput, error) {
		if name == "segments_2" {
			opens++
			if opens == 2 {
				validCommit(t, base, "segments_3")
			}
		}
		return base.OpenInput(name)
	}

	sis := NewSegmentInfos()
	require.NoError(t, sis.ReadLatest(context.Background(), dir, fastDiscovery()))
	assert.Equal(t, int64(3), sis.Generation())
	assert.Equal(t, 2, opens)
}

func TestFindGivesUpWithFirstError(t *testing.T) {
	dir := store.NewRAMDirectory()
	writeTruncated(t, dir, "segments_2")

	var tried []string
	f := NewFinder[struct{}](dir, fastDiscovery(), WithFinderLogger(logger.Discard()))
	_, err := f.Run(context.Background(), func(name string) (struct{}, error) {
		tried = append(tried, name)
		return struct{}{}, NewSegmentInfos().Read(dir, name)
	})
	require.ErrorIs(t, err, serrors.ErrReadPastEOF)
	assert.Contains(t, err.Error(), "segments_2")
	assert.LessOrEqual(t, len(tried), 2+fastDiscovery().GenLookaheadCount*2+2)
	assert.Contains(t, tried, "segments_5")
	assert.NotContains(t, tried, "segments_6")
}

func TestFindWithoutCommit(t *testing.T) {
	dir := store.NewRAMDirectory()
	touch(t, dir, "_0.cfs")

	calls := 0
	f := NewFinder[int](dir, fastDiscovery())
	_, err := f.Run(context.Background(), func(string) (int, error) {
		calls++
		return 0, nil
	})
	assert.ErrorIs(t, err, serrors.ErrNoCommit)
	assert.Contains(t, err.Error(), "No segments* file found in")
	assert.Zero(t, calls)
}

func TestFindLooksAheadPastStaleListing(t *testing.T) {
	base := store.NewRAMDirectory()
	validCommit(t, base, "segments_2")
	dir := &hookDir{Directory: base, listAll: func() ([]string, error) {
		return []string{"segments_1"}, nil
	}}

	sis := NewSegmentInfos()
	require.NoError(t, sis.ReadLatest(context.Background(), dir, fastDiscovery()))
	assert.Equal(t, int64(2), sis.Generation())
}

func TestFindUsesGenFileWhenListingFails(t *testing.T) {
	base := store.NewRAMDirectory()
	validCommit(t, base, "segments_4")
	writeGenFile(t, base, 4, 4)
	dir := &hookDir{Directory: base, listAll: func() ([]string, error) {
		return nil, ioFailure("list")
	}}

	sis := NewSegmentInfos()
	require.NoError(t, sis.ReadLatest(context.Background(), dir, fastDiscovery()))
	assert.Equal(t, int64(4), sis.Generation())

	cfg := fastDiscovery()
	cfg.GenFileRetryCount = 0
	err := NewSegmentInfos().ReadLatest(context.Background(), dir, cfg)
	assert.ErrorIs(t, err, serrors.ErrNoCommit)
}

func TestFindIgnoresInconsistentGenFile(t *testing.T) {
	dir := store.NewRAMDirectory()
	validCommit(t, dir, "segments_2")
	writeGenFile(t, dir, 9, 10)

	sis := NewSegmentInfos()
	require.NoError(t, sis.ReadLatest(context.Background(), dir, fastDiscovery()))
	assert.Equal(t, int64(2), sis.Generation())
}

func TestFindStopsOnFatalError(t *testing.T) {
	dir := store.NewRAMDirectory()
	validCommit(t, dir, "segments_3")

	calls := 0
	f := NewFinder[struct{}](dir, fastDiscovery())
	_, err := f.Run(context.Background(), func(name string) (struct{}, error) {
		calls++
		return struct{}{}, serrors.Newf(serrors.ErrFormat, "read", name, "Unknown format version: %d", -9)
	})
	assert.ErrorIs(t, err, serrors.ErrFormat)
	assert.Equal(t, 1, calls)
}

func TestFindHonoursCancellation(t *testing.T) {
	dir := store.NewRAMDirectory()
	validCommit(t, dir, "segments_1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSegmentInfos().ReadLatest(ctx, dir, fastDiscovery())
	assert.ErrorIs(t, err, serrors.ErrAborted)
}

func TestFindPredicates(t *testing.T) {
	assert.False(t, shouldLookahead(findLoop{lastGen: 2, gen: 2}))
	assert.True(t, shouldLookahead(findLoop{lastGen: 2, gen: 2, retry: true}))
	assert.True(t, shouldLookahead(findLoop{lastGen: 1, gen: 2, lookaheadMode: true}))

	assert.True(t, isRepeatFailure(findLoop{lastGen: 4, gen: 4, retry: true}))
	assert.False(t, isRepeatFailure(findLoop{lastGen: 3, gen: 4, retry: true}))

	assert.True(t, shouldTryPrevious(findLoop{gen: 2}))
	assert.False(t, shouldTryPrevious(findLoop{gen: 1}))
	assert.False(t, shouldTryPrevious(findLoop{gen: 5, retry: true}))
}
