package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlTranscripts stores one row per transcript and one per word entry.
// Word timing and confidence are nullable so that partially transcribed
// words survive the round trip and are skipped by the indexer, not here.
const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id          TEXT        PRIMARY KEY,
    file_name   TEXT        NOT NULL DEFAULT '',
    audio_path  TEXT        NOT NULL,
    origin      TEXT        NOT NULL DEFAULT '',
    imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcript_words (
    transcript_id   TEXT             NOT NULL REFERENCES transcripts (id) ON DELETE CASCADE,
    segment_id      INTEGER          NOT NULL,
    position        INTEGER          NOT NULL,
    segment_speaker TEXT             NOT NULL DEFAULT '',
    word            TEXT             NOT NULL,
    start_s         DOUBLE PRECISION,
    end_s           DOUBLE PRECISION,
    confidence      DOUBLE PRECISION,
    speaker         TEXT             NOT NULL DEFAULT '',
    PRIMARY KEY (transcript_id, segment_id, position)
);
`

// Migrate creates the transcript tables. It is idempotent and safe to call
// on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
