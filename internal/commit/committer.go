// Package commit is the single-writer side of an index directory. A
// Committer holds write.lock for its lifetime, accumulates flushed
// segments, packs them into compound files and publishes each new commit
// point as segments_N.
package commit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/metrics"
)

// Notifier receives an event after every successful commit.
type Notifier interface {
	Publish(ctx context.Context, ev notify.CommitEvent) error
}

type Committer struct {
	dir      store.Directory
	cfg      *config.Config
	lock     store.Lock
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	infos  *index.SegmentInfos
	closed bool
}

type Option func(*Committer)

func WithNotifier(n Notifier) Option {
	return func(c *Committer) { c.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Committer) { c.metrics = m }
}

// Open obtains write.lock on dir and loads its current commit. A directory
// without any commit starts as an empty index.
func Open(ctx context.Context, dir store.Directory, cfg *config.Config, opts ...Option) (*Committer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Committer{
		dir:    dir,
		cfg:    cfg,
		logger: logger.FromContext(ctx).With("component", "committer", "dir", dir.String()),
	}
	for _, opt := range opts {
		opt(c)
	}

	lock, err := dir.MakeLock(store.WriteLockName)
	if err != nil {
		return nil, err
	}
	if err := store.ObtainLock(ctx, lock, cfg.Lock.Timeout, cfg.Lock.PollInterval); err != nil {
		return nil, err
	}
	c.lock = lock

	c.infos = index.NewSegmentInfos()
	err = c.infos.ReadLatest(ctx, dir, cfg.Discovery, index.WithFinderMetrics(c.metrics))
	switch {
	case err == nil:
		c.logger.Info("opened index", "generation", c.infos.Generation(), "segments", c.infos.Len())
	case serrors.Is(err, serrors.ErrNoCommit):
		c.infos = index.NewSegmentInfos()
		c.logger.Info("opened empty index")
	default:
		if rerr := lock.Release(); rerr != nil {
			c.logger.Warn("could not release write lock", "error", rerr)
		}
		return nil, err
	}
	return c, nil
}

func (c *Committer) Dir() store.Directory { return c.dir }

func (c *Committer) check(op string) error {
	if c.closed {
		return serrors.New(serrors.ErrIllegalState, op, c.dir.String(), "committer is closed")
	}
	return nil
}

// Infos returns a deep copy of the pending segment list.
func (c *Committer) Infos() *index.SegmentInfos {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.infos.Clone()
}

// NewSegmentName allocates the name for the next flushed segment.
func (c *Committer) NewSegmentName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.infos.NewSegmentName()
}

// AddSegment appends info to the pending commit.
func (c *Committer) AddSegment(info *index.SegmentInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("add segment"); err != nil {
		return err
	}
	if c.find(info.Name) != nil {
		return serrors.New(serrors.ErrIllegalArgument, "add segment", info.Name, "segment "+info.Name+" already present")
	}
	c.infos.Add(info)
	return nil
}

func (c *Committer) find(name string) *index.SegmentInfo {
	for _, info := range c.infos.Infos() {
		if info.Name == name {
			return info
		}
	}
	return nil
}

// PackCompound folds segment's individual files into <segment>.cfs, removes
// the originals and marks the segment compound. Cancelling ctx aborts the
// copy and leaves the segment untouched.
func (c *Committer) PackCompound(ctx context.Context, segment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("pack compound"); err != nil {
		return err
	}
	info := c.find(segment)
	if info == nil {
		return serrors.New(serrors.ErrIllegalArgument, "pack compound", segment, "no such segment")
	}
	if compound, err := info.UseCompoundFile(); err != nil || compound {
		return err
	}

	names, err := c.dir.ListAll()
	if err != nil {
		return err
	}
	var filter index.FileNameFilter
	var sources []string
	for _, name := range names {
		if strings.HasPrefix(name, segment+".") && filter.IsCFSFile(name) {
			sources = append(sources, name)
		}
	}
	if len(sources) == 0 {
		return serrors.New(serrors.ErrIllegalState, "pack compound", segment, "segment has no files to pack")
	}

	cfsName := index.SegmentFileName(segment, index.CompoundFileExtension)
	w, err := index.NewCompoundFileWriter(c.dir, cfsName,
		index.WithCompoundConfig(c.cfg.Compound),
		index.WithCompoundMetrics(c.metrics),
		index.WithAbortCheck(ctx.Err))
	if err != nil {
		return err
	}
	for _, name := range sources {
		if err := w.AddFile(name); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	info.SetUseCompoundFile(true)
	for _, name := range sources {
		if err := c.dir.DeleteFile(name); err != nil {
			c.logger.Warn("could not delete packed file", "file", name, "error", err)
		}
	}
	c.logger.Debug("packed compound file", "segment", segment, "files", len(sources))
	return nil
}

// Commit writes the pending list as the next segments_N. Notification
// failures are logged; they never fail a commit that reached disk.
func (c *Committer) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("commit"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return serrors.Wrap(serrors.ErrAborted, "commit", c.dir.String(), err)
	}

	start := time.Now()
	err := c.infos.Write(c.dir)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.metrics.CommitWritten("error", elapsed)
		c.logger.Error("commit failed", "generation", c.infos.Generation(), "error", err)
		return err
	}
	c.metrics.CommitWritten("ok", elapsed)
	c.metrics.CommitLoaded(c.infos.Generation(), c.infos.Len())
	c.logger.Info("committed", "segments_file", c.infos.SegmentsFileName(), "segments", c.infos.Len())

	if c.notifier != nil {
		var docs int64
		for _, info := range c.infos.Infos() {
			docs += int64(info.DocCount)
		}
		ev := notify.NewCommitEvent(c.dir.String(), c.infos.Generation(), c.infos.SegmentsFileName(),
			c.infos.Version(), c.infos.Len(), docs)
		if err := c.notifier.Publish(ctx, ev); err != nil {
			c.logger.Warn("commit notification incomplete", "generation", ev.Generation, "error", err)
		}
	}
	return nil
}

// DeleteObsoleteCommits removes segments_N files older than the newest keep
// generations and returns the names removed.
func (c *Committer) DeleteObsoleteCommits(keep int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check("delete commits"); err != nil {
		return nil, err
	}
	if keep < 1 {
		return nil, serrors.Newf(serrors.ErrIllegalArgument, "delete commits", c.dir.String(), "keep must be >= 1, got %d", keep)
	}
	last := c.infos.LastGeneration()
	if last < 0 {
		return nil, nil
	}

	names, err := c.dir.ListAll()
	if err != nil {
		return nil, err
	}
	var (
		deleted []string
		errs    *multierror.Error
	)
	for _, name := range names {
		if !index.IsSegmentsFile(name) {
			continue
		}
		gen, err := index.GenerationFromSegmentsFileName(name)
		if err != nil || gen > last-int64(keep) {
			continue
		}
		if err := c.dir.DeleteFile(name); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		deleted = append(deleted, name)
	}
	return deleted, errs.ErrorOrNil()
}

// Close releases write.lock. Pending segments that were not committed are
// dropped.
func (c *Committer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.lock.Release()
}
