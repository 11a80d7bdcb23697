package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/commit"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/snapshot"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/internal/store"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/metrics"
)

const usage = `usage: indexadmin <command> [flags]

commands:
  inspect   print the current commit and its segments as JSON
  version   print the version of the current commit
  pack      pack a segment into a compound file and commit
  prune     delete segments_N files older than the newest -keep commits
  serve     run the admin HTTP server (metrics, health, /commit)
  watch     follow commit events from Kafka or Redis
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	dirFlag := fs.String("dir", "", "index directory (overrides store.dir)")
	segment := fs.String("segment", "", "segment to pack (pack)")
	keep := fs.Int("keep", 1, "commits to keep (prune)")
	source := fs.String("source", "kafka", "event source: kafka or redis (watch)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dirFlag != "" {
		cfg.Store.Dir = *dirFlag
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithIndexDir(ctx, cfg.Store.Dir)

	dirOpts := []store.Option{store.WithMMap(cfg.Store.UseMMap)}
	if cfg.Store.ReadBufferSize > 0 {
		dirOpts = append(dirOpts, store.WithReadBufferSize(cfg.Store.ReadBufferSize))
	}
	dir, err := store.OpenFSDirectory(cfg.Store.Dir, dirOpts...)
	if err != nil {
		slog.Error("failed to open index directory", "dir", cfg.Store.Dir, "error", err)
		os.Exit(1)
	}
	defer dir.Close()

	switch cmd {
	case "inspect":
		err = runInspect(ctx, dir, cfg)
	case "version":
		err = runVersion(ctx, dir, cfg)
	case "pack":
		err = runPack(ctx, dir, cfg, *segment)
	case "prune":
		err = runPrune(ctx, dir, cfg, *keep)
	case "serve":
		err = runServe(ctx, dir, cfg)
	case "watch":
		err = runWatch(ctx, cfg, *source)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

type segmentView struct {
	Name            string   `json:"name"`
	DocCount        int32    `json:"doc_count"`
	Compound        bool     `json:"compound"`
	DelGen          string   `json:"del_gen"`
	DocStoreSegment string   `json:"doc_store_segment,omitempty"`
	Files           []string `json:"files"`
	SubFiles        []string `json:"sub_files,omitempty"`
	SizeInBytes     int64    `json:"size_in_bytes"`
}

type commitView struct {
	Dir          string        `json:"dir"`
	SegmentsFile string        `json:"segments_file"`
	Generation   int64         `json:"generation"`
	Version      int64         `json:"version"`
	DocCount     int64         `json:"doc_count"`
	SizeInBytes  int64         `json:"size_in_bytes"`
	Segments     []segmentView `json:"segments"`
}

func describe(s *snapshot.Snapshot) commitView {
	v := commitView{
		Dir:          s.Dir().String(),
		SegmentsFile: s.SegmentsFileName(),
		Generation:   s.Generation(),
		Version:      s.Version(),
		DocCount:     s.DocCount(),
		SizeInBytes:  s.SizeInBytes(),
	}
	for _, seg := range s.Segments() {
		compound, _ := seg.Info.UseCompoundFile()
		sv := segmentView{
			Name:        seg.Info.Name,
			DocCount:    seg.Info.DocCount,
			Compound:    compound,
			DelGen:      seg.Info.DelGen().String(),
			Files:       seg.Files,
			SubFiles:    seg.SubFiles(),
			SizeInBytes: seg.SizeInBytes,
		}
		if seg.Info.DocStoreOffset() != -1 {
			sv.DocStoreSegment = seg.Info.DocStoreSegment()
		}
		v.Segments = append(v.Segments, sv)
	}
	return v
}

func runInspect(ctx context.Context, dir store.Directory, cfg *config.Config) error {
	s, err := snapshot.Open(ctx, dir, cfg.Discovery)
	if err != nil {
		return err
	}
	defer s.Close()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(describe(s))
}

func runVersion(ctx context.Context, dir store.Directory, cfg *config.Config) error {
	v, err := index.ReadCurrentVersion(ctx, dir, cfg.Discovery)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

func runPack(ctx context.Context, dir store.Directory, cfg *config.Config, segment string) error {
	if segment == "" {
		return fmt.Errorf("pack requires -segment")
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	fanout, closeSinks, err := buildFanout(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer closeSinks()

	opts := []commit.Option{commit.WithMetrics(m)}
	if fanout != nil {
		opts = append(opts, commit.WithNotifier(fanout))
	}
	c, err := commit.Open(ctx, dir, cfg, opts...)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.PackCompound(ctx, segment); err != nil {
		return err
	}
	return c.Commit(ctx)
}

func runPrune(ctx context.Context, dir store.Directory, cfg *config.Config, keep int) error {
	c, err := commit.Open(ctx, dir, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	deleted, err := c.DeleteObsoleteCommits(keep)
	for _, name := range deleted {
		fmt.Println(name)
	}
	return err
}
