package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/pkg/audio/stretch"
)

// withApp runs fn on a freshly built application and shuts it down after.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, _, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newSearchCmd(c *cli) *cobra.Command {
	var (
		maxResults int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search <word>...",
		Short: "Look up recorded occurrences of words",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				out := cmd.OutOrStdout()
				for _, word := range args {
					res, err := a.Search(cmd.Context(), word, maxResults)
					if err != nil {
						return err
					}
					if asJSON {
						if err := printJSON(out, res); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintf(out, "%s → %q (%s, %d results)\n", word, res.Term, res.Tier, len(res.Occurrences))
					tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
					for _, o := range res.Occurrences {
						fmt.Fprintf(tw, "  %s\t%s\t%s\t%.2f-%.2fs\t%.2f\n",
							o.Surface, o.Speaker, o.FileName, o.Start, o.End, o.Confidence)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max", "n", 10, "maximum results per word (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

// composeFlags are shared by compose and render.
type composeFlags struct {
	minConfidence float64
	speakers      []string
	noDiversity   bool
	gap           time.Duration
}

func (f *composeFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.minConfidence, "min-confidence", -1, "minimum ASR confidence (default from config)")
	fs.StringSliceVar(&f.speakers, "speaker", nil, "preferred speaker label (repeatable)")
	fs.BoolVar(&f.noDiversity, "no-diversity", false, "disable the speaker/file diversity bonus")
	fs.DurationVar(&f.gap, "gap", -1, "gap between words (default from config)")
}

func (f *composeFlags) options(base compose.Options) compose.Options {
	if f.minConfidence >= 0 {
		base.MinConfidence = f.minConfidence
	}
	if len(f.speakers) > 0 {
		base.PreferredSpeakers = f.speakers
	}
	if f.noDiversity {
		base.Diversity = false
	}
	if f.gap >= 0 {
		base.Gap = f.gap
	}
	return base
}

func printSentence(w io.Writer, s *compose.Sentence) {
	fmt.Fprintf(w, "%s\n", s.Text)
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	for i, o := range s.Words {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%.2f-%.2fs\t%s\n",
			i+1, o.Surface, o.Speaker, o.FileName, o.Start, o.End, s.Tiers[i])
	}
	_ = tw.Flush()
	for _, m := range s.Missing {
		fmt.Fprintf(w, "  missing: %q (%s)\n", m.Word, m.Reason)
	}
	fmt.Fprintf(w, "duration %.2fs, speakers %d, files %d, reused %d\n",
		s.TotalDuration, len(s.SpeakersUsed), len(s.FilesUsed), s.Reused)
}

func newComposeCmd(c *cli) *cobra.Command {
	var (
		flags  composeFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "compose <text>...",
		Short: "Pick a recorded occurrence for every word without rendering audio",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words := compose.SplitWords(strings.Join(args, " "))
			return c.withApp(cmd.Context(), func(a *app.App) error {
				s, err := a.Compose(cmd.Context(), words, flags.options(a.ComposeOptions()))
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), s)
				}
				printSentence(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the composition as JSON")
	return cmd
}

func newRenderCmd(c *cli) *cobra.Command {
	var (
		flags     composeFlags
		mode      string
		tempo     float64
		resample  bool
		container string
		outDir    string
	)
	cmd := &cobra.Command{
		Use:   "render <text>...",
		Short: "Compose a sentence and write it as audio plus a JSON description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			words := compose.SplitWords(strings.Join(args, " "))
			ctr, err := app.ParseContainer(container)
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), func(a *app.App) error {
				opts := a.RenderOptions()
				if mode != "" {
					m, err := assemble.ParseMode(mode)
					if err != nil {
						return err
					}
					opts.Mode = m
				}
				if tempo > 0 {
					opts.Tempo = tempo
				}
				if resample {
					opts.Stretch = stretch.ModeResample
				}
				if flags.gap >= 0 {
					opts.Gap = flags.gap
				}

				gen, err := a.Generate(cmd.Context(), app.GenerateRequest{
					Words:     words,
					Compose:   flags.options(a.ComposeOptions()),
					Render:    opts,
					Container: ctr,
					OutputDir: outDir,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printSentence(out, gen.Sentence)
				fmt.Fprintf(out, "%s mode, %d segments, %.2fs rendered\n",
					gen.Render.Mode, gen.Render.Segments, gen.Duration)
				fmt.Fprintf(out, "audio: %s\ninfo:  %s\n", gen.AudioPath, gen.InfoPath)
				return nil
			})
		},
	}
	flags.register(cmd)
	fs := cmd.Flags()
	fs.StringVarP(&mode, "mode", "m", "", "assembly mode: standard, artistic or seamless")
	fs.Float64Var(&tempo, "tempo", 0, "playback speed factor (default from config)")
	fs.BoolVar(&resample, "resample", false, "change pitch with tempo instead of preserving it")
	fs.StringVar(&container, "format", "wav", "output container: wav or dca")
	fs.StringVarP(&outDir, "out", "o", "", "output directory (default server.output_dir)")
	return cmd
}

func newStatsCmd(c *cli) *cobra.Command {
	var (
		top    int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print corpus statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				st, err := a.Stats(top)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, st)
				}
				fmt.Fprintf(out, "words: %d (%d unique), average confidence %.3f\n",
					st.TotalWords, st.UniqueWords, st.AverageConfidence)
				fmt.Fprintf(out, "speakers: %d, files: %d\n", len(st.Speakers), len(st.Files))
				tw := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
				for _, kc := range st.MostCommon {
					fmt.Fprintf(tw, "  %s\t%d\n", kc.Key, kc.Count)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 10, "number of most common words to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	return cmd
}
