package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/internal/export"
	"github.com/MrWong99/mixplay/pkg/audio/dca"
	"github.com/MrWong99/mixplay/pkg/audio/wav"
)

// Container selects the file format of generated audio.
type Container string

const (
	ContainerWAV Container = "wav"
	ContainerDCA Container = "dca"
)

// ParseContainer parses a container name. The empty string selects WAV.
func ParseContainer(s string) (Container, error) {
	switch c := Container(strings.ToLower(strings.TrimSpace(s))); c {
	case "", ContainerWAV:
		return ContainerWAV, nil
	case ContainerDCA:
		return c, nil
	}
	return "", fmt.Errorf("app: unknown container %q", s)
}

// GenerateRequest asks for a composed and rendered sentence.
type GenerateRequest struct {
	Words     []string
	Compose   compose.Options
	Render    assemble.Options
	Container Container

	// OutputDir overrides the configured output directory.
	OutputDir string
}

// Generated describes the files written by [App.Generate].
type Generated struct {
	ID        string            `json:"id"`
	Sentence  *compose.Sentence `json:"sentence"`
	Render    *assemble.Render  `json:"-"`
	AudioPath string            `json:"audio_path"`
	InfoPath  string            `json:"info_path"`
	Duration  float64           `json:"duration"`
}

// Generate composes req.Words, renders the sentence and writes the audio
// and its JSON description to the output directory. Files are named after a
// fresh UUID. Nothing is left behind when either write fails.
func (a *App) Generate(ctx context.Context, req GenerateRequest) (*Generated, error) {
	sentence, err := a.Compose(ctx, req.Words, req.Compose)
	if err != nil {
		return nil, err
	}
	render, err := a.Render(ctx, sentence, req.Render)
	if err != nil {
		return nil, err
	}

	dir := req.OutputDir
	if dir == "" {
		dir = a.Config().Server.OutputDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("app: output dir: %w", err)
	}

	container := req.Container
	if container == "" {
		container = ContainerWAV
	}
	id := a.newID()
	out := &Generated{
		ID:        id,
		Sentence:  sentence,
		Render:    render,
		AudioPath: filepath.Join(dir, "mix_"+id+"."+string(container)),
		InfoPath:  filepath.Join(dir, "mix_"+id+".json"),
		Duration:  render.Duration().Seconds(),
	}

	if err := a.writeAudio(out.AudioPath, render, container); err != nil {
		return nil, errors.Join(err, removeFile(out.AudioPath))
	}
	info := export.New(sentence,
		export.WithID(id),
		export.WithRender(render, filepath.Base(out.AudioPath)),
		export.WithTime(time.Now().UTC()),
	)
	if err := export.WriteFile(out.InfoPath, info); err != nil {
		return nil, errors.Join(err, removeFile(out.AudioPath))
	}
	return out, nil
}

func (a *App) writeAudio(path string, r *assemble.Render, c Container) (err error) {
	if c == ContainerWAV {
		if err := wav.WriteFile(path, r.Audio, a.Config().Render.BitDepth); err != nil {
			return fmt.Errorf("app: write audio: %w", err)
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("app: write audio: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	if err := dca.Encode(f, r.Audio); err != nil {
		return fmt.Errorf("app: write audio: %w", err)
	}
	return nil
}

// removeFile deletes a partially written output file.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("app: clean up: %w", err)
	}
	return nil
}
