package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-index-store/pkg/postgres"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS commit_journal (
	id            UUID PRIMARY KEY,
	index_dir     TEXT        NOT NULL,
	generation    BIGINT      NOT NULL,
	segments_file TEXT        NOT NULL,
	version       BIGINT      NOT NULL,
	segments      INTEGER     NOT NULL,
	doc_count     BIGINT      NOT NULL,
	committed_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (index_dir, generation)
)`

// ErrNoJournalEntry is returned by Latest for a directory never committed.
var ErrNoJournalEntry = errors.New("no journal entry")

// Journal records every commit in the commit_journal table.
type Journal struct {
	pg *postgres.Client
}

func NewJournal(pg *postgres.Client) *Journal {
	return &Journal{pg: pg}
}

// EnsureSchema creates commit_journal when missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pg.DB.ExecContext(ctx, journalSchema); err != nil {
		return fmt.Errorf("creating commit_journal: %w", err)
	}
	return nil
}

func (j *Journal) Name() string { return "journal" }

// Publish inserts ev. Replaying the same generation of a directory is a
// no-op.
func (j *Journal) Publish(ctx context.Context, ev CommitEvent) error {
	return j.pg.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commit_journal
				(id, index_dir, generation, segments_file, version, segments, doc_count, committed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (index_dir, generation) DO NOTHING`,
			ev.ID, ev.Dir, ev.Generation, ev.SegmentsFile, ev.Version, ev.Segments, ev.DocCount, ev.CommittedAt)
		if err != nil {
			return fmt.Errorf("inserting journal entry: %w", err)
		}
		return nil
	})
}

// Latest returns the highest generation journaled for dir.
func (j *Journal) Latest(ctx context.Context, dir string) (CommitEvent, error) {
	var ev CommitEvent
	err := j.pg.DB.QueryRowContext(ctx, `
		SELECT id, index_dir, generation, segments_file, version, segments, doc_count, committed_at
		FROM commit_journal
		WHERE index_dir = $1
		ORDER BY generation DESC
		LIMIT 1`, dir).
		Scan(&ev.ID, &ev.Dir, &ev.Generation, &ev.SegmentsFile, &ev.Version, &ev.Segments, &ev.DocCount, &ev.CommittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, fmt.Errorf("%w for %s", ErrNoJournalEntry, dir)
	}
	if err != nil {
		return ev, fmt.Errorf("querying journal: %w", err)
	}
	return ev, nil
}
