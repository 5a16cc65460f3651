// Package postgres is a PostgreSQL-backed transcript corpus. [Store] imports
// [corpus.Record] values and serves them back as a [corpus.Source].
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/mixplay/pkg/corpus"
)

// Compile-time interface check.
var _ corpus.Source = (*Store)(nil)

// Option configures a [Store].
type Option func(*pgxpool.Config)

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) Option {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// Store holds a connection pool to the transcript database. All operations
// are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and runs [Migrate].
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	for _, o := range opts {
		o(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ImportResult summarises an [Store.Import] call.
type ImportResult struct {
	Imported int
	Words    int
	Skipped  int
}

var wordColumns = []string{
	"transcript_id", "segment_id", "position", "segment_speaker",
	"word", "start_s", "end_s", "confidence", "speaker",
}

// Import stores records, replacing any transcript with the same id. Each
// record is written in its own transaction. Records failing
// [corpus.Record.Validate] are logged and skipped.
func (s *Store) Import(ctx context.Context, records []corpus.Record) (ImportResult, error) {
	var res ImportResult
	for _, r := range records {
		if err := r.Validate(); err != nil {
			slog.Warn("postgres import: skipping record", "origin", r.Origin, "err", err)
			res.Skipped++
			continue
		}
		n, err := s.importRecord(ctx, r)
		if err != nil {
			return res, fmt.Errorf("postgres import %s: %w", r.ID, err)
		}
		res.Imported++
		res.Words += n
	}
	return res, nil
}

func (s *Store) importRecord(ctx context.Context, r corpus.Record) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	// No-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `DELETE FROM transcripts WHERE id = $1`, r.ID); err != nil {
		return 0, err
	}
	if _, err = tx.Exec(ctx,
		`INSERT INTO transcripts (id, file_name, audio_path, origin) VALUES ($1, $2, $3, $4)`,
		r.ID, r.FileName, r.AudioPath, r.Origin,
	); err != nil {
		return 0, err
	}

	var rows [][]any
	for _, seg := range r.Segments {
		for pos, w := range seg.Words {
			rows = append(rows, []any{
				r.ID, seg.ID, pos, seg.Speaker,
				w.Text, w.Start, w.End, w.Confidence, w.Speaker,
			})
		}
	}
	if len(rows) > 0 {
		if _, err = tx.CopyFrom(ctx, pgx.Identifier{"transcript_words"}, wordColumns, pgx.CopyFromRows(rows)); err != nil {
			return 0, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Load implements [corpus.Source]. Records are ordered by id, segments by
// segment id and words by their original position.
func (s *Store) Load(ctx context.Context) ([]corpus.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, file_name, audio_path, origin FROM transcripts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres load: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (corpus.Record, error) {
		var r corpus.Record
		err := row.Scan(&r.ID, &r.FileName, &r.AudioPath, &r.Origin)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres load: %w", err)
	}
	byID := make(map[string]int, len(records))
	for i, r := range records {
		byID[r.ID] = i
	}

	rows, err = s.pool.Query(ctx, `
		SELECT transcript_id, segment_id, segment_speaker, word, start_s, end_s, confidence, speaker
		FROM transcript_words
		ORDER BY transcript_id, segment_id, position`)
	if err != nil {
		return nil, fmt.Errorf("postgres load words: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id         string
			segID      int
			segSpeaker string
			w          corpus.WordEntry
		)
		if err := rows.Scan(&id, &segID, &segSpeaker, &w.Text, &w.Start, &w.End, &w.Confidence, &w.Speaker); err != nil {
			return nil, fmt.Errorf("postgres load words: scan: %w", err)
		}
		i, ok := byID[id]
		if !ok {
			continue
		}
		r := &records[i]
		if n := len(r.Segments); n == 0 || r.Segments[n-1].ID != segID {
			r.Segments = append(r.Segments, corpus.Segment{ID: segID, Speaker: segSpeaker})
		}
		last := &r.Segments[len(r.Segments)-1]
		last.Words = append(last.Words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres load words: %w", err)
	}
	return records, nil
}

// Count returns the number of stored transcripts and word entries.
func (s *Store) Count(ctx context.Context) (transcripts, words int, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM transcripts), (SELECT count(*) FROM transcript_words)`,
	).Scan(&transcripts, &words)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres count: %w", err)
	}
	return transcripts, words, nil
}
