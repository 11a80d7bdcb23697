// Package notify announces new commits to external systems. A commit is
// durable once segments_N is on disk; notification is best effort and never
// fails the commit.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CommitEvent describes one written segments_N.
type CommitEvent struct {
	ID           string    `json:"id"`
	Dir          string    `json:"dir"`
	Generation   int64     `json:"generation"`
	SegmentsFile string    `json:"segments_file"`
	Version      int64     `json:"version"`
	Segments     int       `json:"segments"`
	DocCount     int64     `json:"doc_count"`
	CommittedAt  time.Time `json:"committed_at"`
}

// NewCommitEvent stamps a fresh ID and time.
func NewCommitEvent(dir string, generation int64, segmentsFile string, version int64, segments int, docCount int64) CommitEvent {
	return CommitEvent{
		ID:           uuid.NewString(),
		Dir:          dir,
		Generation:   generation,
		SegmentsFile: segmentsFile,
		Version:      version,
		Segments:     segments,
		DocCount:     docCount,
		CommittedAt:  time.Now().UTC(),
	}
}

// Sink receives commit events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev CommitEvent) error
}
