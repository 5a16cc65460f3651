package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/mixplay/internal/config"
	"github.com/MrWong99/mixplay/internal/resilience"
	"github.com/MrWong99/mixplay/pkg/corpus"
	"github.com/MrWong99/mixplay/pkg/corpus/jsondir"
	"github.com/MrWong99/mixplay/pkg/corpus/postgres"
)

// registerBackends wires every built-in corpus backend into reg.
func registerBackends(reg *config.Registry) {
	reg.RegisterSource(config.BackendJSONDir, func(_ context.Context, cfg *config.Config) (corpus.Source, error) {
		return newJSONDirSource(cfg)
	})
	reg.RegisterSource(config.BackendPostgres, newPostgresSource)
}

// newPostgresSource opens the database. With a transcript directory
// configured, the directory backs up the database on every reload and
// serves alone when the database is unreachable at startup.
func newPostgresSource(ctx context.Context, cfg *config.Config) (corpus.Source, error) {
	store, err := postgres.NewStore(ctx, cfg.Postgres.DSN, postgres.WithMaxConns(cfg.Postgres.MaxConns))
	if cfg.Corpus.TranscriptsDir == "" {
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	dir, dirErr := newJSONDirSource(cfg)
	if dirErr != nil {
		return nil, dirErr
	}
	if err != nil {
		slog.Warn("database unavailable, serving transcripts from directory", "dir", cfg.Corpus.TranscriptsDir, "err", err)
		return dir, nil
	}
	fs := resilience.NewFallbackSource("postgres", store)
	fs.Add("jsondir", dir)
	return fs, nil
}

func newJSONDirSource(cfg *config.Config) (*jsondir.Source, error) {
	if cfg.Corpus.TranscriptsDir == "" {
		return nil, errors.New("no transcript directory; pass --transcripts or set corpus.transcripts_dir")
	}
	return jsondir.New(cfg.Corpus.TranscriptsDir,
		jsondir.WithPattern(cfg.Corpus.Pattern),
		jsondir.WithAudioDir(cfg.Corpus.AudioDir),
		jsondir.WithConcurrency(cfg.Corpus.Concurrency),
	), nil
}
