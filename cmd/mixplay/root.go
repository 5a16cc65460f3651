package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/config"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

// cli carries the persistent flags and the state derived from them.
type cli struct {
	configPath  string
	transcripts string
	audioDir    string
	backend     string
	dsn         string
	logLevel    string

	cfg      *config.Config
	level    *slog.LevelVar
	registry *config.Registry
}

func newRootCmd() *cobra.Command {
	c := &cli{level: new(slog.LevelVar), registry: config.NewRegistry()}
	registerBackends(c.registry)

	root := &cobra.Command{
		Use:   "mixplay",
		Short: "Compose sentences out of words recorded by many speakers",
		Long: `mixplay indexes diarised word-level transcripts and assembles new
sentences from the recorded words, preferring a different voice for every
word.

Examples:
  mixplay search --transcripts ./transcriptions amour
  mixplay render --transcripts ./transcriptions --mode artistic "je t'aime"
  mixplay serve --config mixplay.yaml`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return c.init() },
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	pf.StringVarP(&c.transcripts, "transcripts", "t", "", "transcript directory (overrides corpus.transcripts_dir)")
	pf.StringVar(&c.audioDir, "audio-dir", "", "directory holding the recorded audio (overrides corpus.audio_dir)")
	pf.StringVar(&c.backend, "backend", "", "corpus backend: jsondir or postgres")
	pf.StringVar(&c.dsn, "dsn", "", "PostgreSQL connection string (overrides postgres.dsn)")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newSearchCmd(c),
		newComposeCmd(c),
		newRenderCmd(c),
		newStatsCmd(c),
		newServeCmd(c),
		newMCPCmd(c),
		newImportCmd(c),
	)
	return root
}

// init loads the config, applies flag overrides and installs the logger.
func (c *cli) init() error {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	c.applyOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	c.level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(newLogger(c.level))
	c.cfg = cfg
	return nil
}

// applyOverrides copies the flags given on the command line into cfg.
func (c *cli) applyOverrides(cfg *config.Config) {
	if c.transcripts != "" {
		cfg.Corpus.TranscriptsDir = c.transcripts
	}
	if c.audioDir != "" {
		cfg.Corpus.AudioDir = c.audioDir
	}
	if c.backend != "" {
		cfg.Corpus.Backend = config.Backend(c.backend)
	}
	if c.dsn != "" {
		cfg.Postgres.DSN = c.dsn
	}
	if c.logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(c.logLevel)
	}
}

// openApp creates the configured source and builds the application on it.
// Sources holding resources are closed by [app.App.Shutdown].
func (c *cli) openApp(ctx context.Context, opts ...app.Option) (*app.App, corpus.Source, error) {
	src, err := c.registry.CreateSource(ctx, c.cfg)
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, app.WithLogLevel(c.level))
	if closer, ok := src.(io.Closer); ok {
		opts = append(opts, app.WithCloser(closer.Close))
	}

	a, err := app.New(ctx, c.cfg, src, opts...)
	if err != nil {
		if closer, ok := src.(io.Closer); ok {
			err = errors.Join(err, closer.Close())
		}
		return nil, nil, err
	}
	return a, src, nil
}
