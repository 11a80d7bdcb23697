package index

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/resilience"
)

// Finder locates and loads the current commit while a writer may be
// publishing new generations concurrently. Errors that may come from such a
// race (IO, missing files, truncated or half-written segments files) are
// retried as long as the candidate generation keeps moving; when the same
// generation fails twice in a row the first error seen is returned.
//
// Two signals pick the candidate: the highest segments_N in a directory
// listing and the segments.gen pointer file. If neither advances, the finder
// assumes both are stale and probes up to GenLookaheadCount generations past
// them.
type Finder[T any] struct {
	dir     store.Directory
	cfg     config.DiscoveryConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type finderOptions struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// FinderOption configures a Finder.
type FinderOption func(*finderOptions)

func WithFinderLogger(l *slog.Logger) FinderOption {
	return func(o *finderOptions) { o.logger = l }
}

func WithFinderMetrics(m *metrics.Metrics) FinderOption {
	return func(o *finderOptions) { o.metrics = m }
}

func NewFinder[T any](dir store.Directory, cfg config.DiscoveryConfig, opts ...FinderOption) *Finder[T] {
	o := finderOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.WithComponent("find-segments")
	}
	return &Finder[T]{
		dir:     dir,
		cfg:     cfg,
		logger:  o.logger.With("dir", dir.String()),
		metrics: o.metrics,
	}
}

type findState uint8

const (
	stateDetermineCandidate findState = iota
	stateTryLoad
	stateTryPrevious
)

func (s findState) String() string {
	switch s {
	case stateDetermineCandidate:
		return "determine-candidate"
	case stateTryLoad:
		return "try-load"
	default:
		return "try-previous"
	}
}

// findLoop is the state carried between iterations.
type findLoop struct {
	lastGen   int64
	gen       int64
	lookahead int
	// lookaheadMode is set once listing and pointer file stopped advancing;
	// from then on the candidate is only ever incremented.
	lookaheadMode bool
	retry         bool
	saved         error
}

// shouldLookahead: guess past the signals once they returned the generation
// that just failed for the second time.
func shouldLookahead(l findLoop) bool {
	return l.lookaheadMode || (l.lastGen == l.gen && l.retry)
}

// isRepeatFailure: the candidate already failed on the previous two
// attempts; the saved error is real.
func isRepeatFailure(l findLoop) bool {
	return l.lastGen == l.gen && l.retry
}

// shouldTryPrevious: on the first failure of a generation, segments_(N-1)
// may still be intact.
func shouldTryPrevious(l findLoop) bool {
	return !l.retry && l.gen > 1
}

// Run drives body over candidate segments file names until it succeeds or
// discovery gives up. Format and misuse errors from body are returned at
// once.
func (f *Finder[T]) Run(ctx context.Context, body func(segmentsFileName string) (T, error)) (T, error) {
	var zero T
	l := findLoop{lastGen: -1}
	state := stateDetermineCandidate

	for {
		switch state {
		case stateDetermineCandidate:
			if err := ctx.Err(); err != nil {
				return zero, serrors.Wrap(serrors.ErrAborted, "find segments", f.dir.String(), err)
			}
			if !l.lookaheadMode {
				gen, err := f.candidateGeneration(ctx)
				if err != nil {
					return zero, err
				}
				l.gen = gen
			}
			if shouldLookahead(l) {
				l.lookaheadMode = true
				if l.lookahead < f.cfg.GenLookaheadCount {
					l.gen++
					l.lookahead++
					f.metrics.DiscoveryLookahead()
					f.logger.Debug("look ahead", "generation", l.gen, "lookahead", l.lookahead)
				}
			}
			if isRepeatFailure(l) {
				f.logger.Warn("segments file failed twice, giving up", "generation", l.gen, "error", l.saved)
				return zero, l.saved
			}
			l.retry = l.lastGen == l.gen
			l.lastGen = l.gen
			state = stateTryLoad

		case stateTryLoad:
			name := FileNameFromGeneration(SegmentsFile, "", l.gen)
			v, err := body(name)
			if err == nil {
				f.metrics.DiscoveryAttempt("success")
				return v, nil
			}
			f.metrics.DiscoveryAttempt("error")
			if l.saved == nil {
				l.saved = err
			}
			if serrors.IsFatal(err) {
				return zero, err
			}
			f.logger.Debug("segments file load failed", "file", name, "retry", l.retry, "error", err)
			state = stateTryPrevious

		case stateTryPrevious:
			state = stateDetermineCandidate
			if !shouldTryPrevious(l) {
				continue
			}
			prev := FileNameFromGeneration(SegmentsFile, "", l.gen-1)
			exists, err := f.dir.FileExists(prev)
			if err != nil || !exists {
				continue
			}
			f.logger.Debug("falling back to previous segments file", "file", prev)
			v, err := body(prev)
			if err == nil {
				f.metrics.DiscoveryAttempt("previous")
				return v, nil
			}
			if serrors.IsFatal(err) {
				return zero, err
			}
			f.logger.Debug("previous segments file load failed", "file", prev, "error", err)
		}
	}
}

// candidateGeneration reconciles the directory listing with segments.gen.
func (f *Finder[T]) candidateGeneration(ctx context.Context) (int64, error) {
	genA := int64(-1)
	if names, err := f.dir.ListAll(); err == nil {
		genA = CurrentSegmentGeneration(names)
	} else {
		f.logger.Debug("directory listing failed", "error", err)
	}

	genB, err := f.readGenFile(ctx)
	if err != nil {
		return -1, err
	}
	f.logger.Debug("candidate generation", "listing", genA, "gen_file", genB)

	gen := max(genA, genB)
	if gen == -1 {
		return -1, serrors.New(serrors.ErrNoCommit, "find segments", f.dir.String(),
			"No segments* file found in "+f.dir.String())
	}
	return gen, nil
}

// readGenFile returns the generation recorded in segments.gen, or -1 when
// the file is missing or never reads back consistently.
func (f *Finder[T]) readGenFile(ctx context.Context) (int64, error) {
	if f.cfg.GenFileRetryCount <= 0 {
		return -1, nil
	}
	gen := int64(-1)
	var fatal error
	err := resilience.ConstantRetry(ctx, "read "+SegmentsGenFile, f.cfg.GenFileRetryCount, f.cfg.GenFileRetryPause, func() error {
		g, err := readSegmentsGen(f.dir)
		switch {
		case err == nil:
			gen = g
			return nil
		case serrors.Is(err, serrors.ErrFileNotFound):
			return nil
		case serrors.IsIO(err), serrors.Is(err, serrors.ErrCorruptIndex):
			f.metrics.GenFileRetry()
			return err
		default:
			fatal = err
			return resilience.Permanent(err)
		}
	})
	if fatal != nil {
		return -1, fatal
	}
	if err != nil {
		if ctx.Err() != nil {
			return -1, serrors.Wrap(serrors.ErrAborted, "find segments", f.dir.String(), ctx.Err())
		}
		f.logger.Debug("ignoring unreadable "+SegmentsGenFile, "error", err)
		return -1, nil
	}
	return gen, nil
}

// readSegmentsGen reads the pointer file once. A wrong tag or mismatched
// copies of the generation are reported as corruption so the caller retries.
func readSegmentsGen(dir store.Directory) (gen int64, err error) {
	in, err := dir.OpenInput(SegmentsGenFile)
	if err != nil {
		return -1, err
	}
	defer in.Close()

	tag, err := in.ReadInt()
	if err != nil {
		return -1, err
	}
	if tag != segmentsGenFormat {
		return -1, serrors.Newf(serrors.ErrCorruptIndex, "read", SegmentsGenFile, "unexpected format %d", tag)
	}
	gen0, err := in.ReadLong()
	if err != nil {
		return -1, err
	}
	gen1, err := in.ReadLong()
	if err != nil {
		return -1, err
	}
	if gen0 != gen1 {
		return -1, serrors.Newf(serrors.ErrCorruptIndex, "read", SegmentsGenFile, "generations disagree: %d != %d", gen0, gen1)
	}
	return gen0, nil
}
