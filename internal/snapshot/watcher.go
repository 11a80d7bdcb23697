package snapshot

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
)

// Watcher answers "has the index changed?" for many concurrent callers.
// Concurrent CurrentVersion calls share one discovery run.
type Watcher struct {
	dir   store.Directory
	cfg   config.DiscoveryConfig
	opts  []index.FinderOption
	group singleflight.Group
}

func NewWatcher(dir store.Directory, cfg config.DiscoveryConfig, opts ...index.FinderOption) *Watcher {
	return &Watcher{dir: dir, cfg: cfg, opts: opts}
}

// CurrentVersion reads the version of the newest commit.
func (w *Watcher) CurrentVersion(ctx context.Context) (int64, error) {
	v, err, _ := w.group.Do("version", func() (any, error) {
		return index.ReadCurrentVersion(ctx, w.dir, w.cfg, w.opts...)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// IsCurrent reports whether s still reflects the newest commit.
func (w *Watcher) IsCurrent(ctx context.Context, s *Snapshot) (bool, error) {
	v, err := w.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return v == s.Version(), nil
}

// Reopen returns s when it is current; otherwise it opens the newest commit
// and reports true. The caller closes the old snapshot.
func (w *Watcher) Reopen(ctx context.Context, s *Snapshot) (*Snapshot, bool, error) {
	current, err := w.IsCurrent(ctx, s)
	if err != nil || current {
		return s, false, err
	}
	next, err := Open(ctx, w.dir, w.cfg, w.opts...)
	if err != nil {
		return s, false, err
	}
	return next, true, nil
}
