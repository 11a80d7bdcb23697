package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/snapshot"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	serrors "github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/resilience"
)

const requestTimeout = 10 * time.Second

// connectRetry is the backoff used for every startup connect.
func connectRetry(cfg *config.Config) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  cfg.Notify.ConnectAttempts,
		InitialDelay: cfg.Notify.ConnectBackoff,
	}
}

// buildFanout connects the sinks enabled under notify. It returns a nil
// fanout when none are enabled.
func buildFanout(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*notify.Fanout, func(), error) {
	var (
		sinks   []notify.Sink
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("closing notification sink", "error", err)
			}
		}
	}

	if cfg.Notify.Kafka {
		p := kafka.NewProducer(cfg.Kafka)
		closers = append(closers, p.Close)
		sinks = append(sinks, notify.NewKafkaSink(p))
	}
	if cfg.Notify.Redis {
		rc, err := redis.Connect(ctx, cfg.Redis, connectRetry(cfg))
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, rc.Close)
		sinks = append(sinks, notify.NewRedisSink(rc))
	}
	if cfg.Notify.Journal {
		pg, err := postgres.Connect(ctx, cfg.Postgres, connectRetry(cfg))
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, pg.Close)
		j := notify.NewJournal(pg)
		err = resilience.Retry(ctx, "journal schema", connectRetry(cfg), func() error {
			return j.EnsureSchema(ctx)
		})
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, j)
	}

	if len(sinks) == 0 {
		return nil, closeAll, nil
	}
	return notify.NewFanout(cfg.Notify.PublishTimeout, sinks, notify.WithMetrics(m)), closeAll, nil
}

// snapshotCache holds the newest snapshot for the HTTP handlers and reopens
// it when a newer commit appears.
type snapshotCache struct {
	watcher *snapshot.Watcher
	dir     store.Directory
	cfg     config.DiscoveryConfig

	mu      sync.Mutex
	current *snapshot.Snapshot
}

func (c *snapshotCache) get(ctx context.Context) (*snapshot.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		s, err := snapshot.Open(ctx, c.dir, c.cfg)
		if err != nil {
			return nil, err
		}
		c.current = s
		return s, nil
	}
	next, changed, err := c.watcher.Reopen(ctx, c.current)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := c.current.Close(); err != nil {
			slog.Warn("closing stale snapshot", "error", err)
		}
		c.current = next
	}
	return c.current, nil
}

func (c *snapshotCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Close()
		c.current = nil
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, serrors.ErrNoCommit), errors.Is(err, serrors.ErrFileNotFound):
		code = http.StatusNotFound
	case errors.Is(err, serrors.ErrAborted):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func runServe(ctx context.Context, dir store.Directory, cfg *config.Config) error {
	m := metrics.New()
	finderOpts := []index.FinderOption{index.WithFinderMetrics(m)}
	cache := &snapshotCache{
		watcher: snapshot.NewWatcher(dir, cfg.Discovery, finderOpts...),
		dir:     dir,
		cfg:     cfg.Discovery,
	}
	defer cache.close()

	checker := health.NewChecker()
	checker.Register("commit", health.FromError(func(ctx context.Context) error {
		_, err := cache.watcher.CurrentVersion(ctx)
		return err
	}))
	if cfg.Notify.Redis {
		rc, err := redis.Connect(ctx, cfg.Redis, connectRetry(cfg))
		if err != nil {
			return err
		}
		defer rc.Close()
		checker.Register("redis", health.Degradable(rc.Ping))
	}
	if cfg.Notify.Journal {
		pg, err := postgres.Connect(ctx, cfg.Postgres, connectRetry(cfg))
		if err != nil {
			return err
		}
		defer pg.Close()
		checker.Register("postgres", health.Degradable(pg.Ping))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.HandleFunc("GET /commit", func(w http.ResponseWriter, r *http.Request) {
		s, err := cache.get(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, describe(s))
	})
	mux.HandleFunc("GET /segments/{name}", func(w http.ResponseWriter, r *http.Request) {
		s, err := cache.get(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		name := r.PathValue("name")
		for _, seg := range describe(s).Segments {
			if seg.Name == name {
				writeJSON(w, http.StatusOK, seg)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("segment %s not in %s", name, s.SegmentsFileName())})
	})

	shutdown := metrics.StartServer(cfg.Metrics.Port, mux, middleware.Metrics(m), middleware.Timeout(requestTimeout))
	<-ctx.Done()
	slog.Info("shutting down admin server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return shutdown(shutdownCtx)
}

func logCommit(ev notify.CommitEvent) {
	slog.Info("commit",
		"dir", ev.Dir,
		"generation", ev.Generation,
		"segments_file", ev.SegmentsFile,
		"version", ev.Version,
		"segments", ev.Segments,
		"doc_count", ev.DocCount,
		"committed_at", ev.CommittedAt,
	)
}

func runWatch(ctx context.Context, cfg *config.Config, source string) error {
	switch source {
	case "kafka":
		consumer := kafka.NewConsumer(cfg.Kafka, func(_ context.Context, _, value []byte) error {
			ev, err := kafka.DecodeJSON[notify.CommitEvent](value)
			if err != nil {
				slog.Warn("skipping undecodable commit event", "error", err)
				return nil
			}
			logCommit(ev)
			return nil
		})
		return consumer.Run(ctx)
	case "redis":
		rc, err := redis.Connect(ctx, cfg.Redis, connectRetry(cfg))
		if err != nil {
			return err
		}
		defer rc.Close()
		messages, err := rc.Subscribe(ctx, notify.NewRedisSink(rc).Channel())
		if err != nil {
			return err
		}
		for msg := range messages {
			var ev notify.CommitEvent
			if err := json.Unmarshal([]byte(msg), &ev); err != nil {
				slog.Warn("skipping undecodable commit event", "error", err)
				continue
			}
			logCommit(ev)
		}
		return nil
	default:
		return fmt.Errorf("unknown event source %q", source)
	}
}
