// Package mcptools exposes the mixplay corpus to MCP clients. It registers
// three tools on an MCP server:
//
//   - search_word: multi-tier search for one word
//   - compose_sentence: compose (and optionally render) a word collage
//   - corpus_stats: statistics of the live index
//
// Domain failures such as an empty composition are reported as tool errors
// (IsError results) so that the calling model can react to them; only
// malformed requests surface as protocol errors.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/internal/observe"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

const (
	serverName = "mixplay"

	defaultSearchMax = 10
	defaultStatsTop  = 10
)

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics used to count tool calls.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the implementation version announced to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server is an MCP server bound to an [app.App].
type Server struct {
	app     *app.App
	metrics *observe.Metrics
	version string
	mcp     *mcpsdk.Server
}

// New creates the MCP server and registers all tools.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{app: a, version: "dev"}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: s.version}, nil)
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "search_word",
		Description: "Find recorded occurrences of a word in the audio corpus. Tries exact, morphological, fuzzy and short-word matching in that order and reports which tier answered.",
	}, instrument(s, "search_word", s.searchWord))
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "compose_sentence",
		Description: "Build a sentence out of recorded words from different speakers. Optionally renders the collage to an audio file.",
	}, instrument(s, "compose_sentence", s.composeSentence))
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "corpus_stats",
		Description: "Summarise the indexed corpus: word counts, speakers, files and the most common words.",
	}, instrument(s, "corpus_stats", s.corpusStats))
	return s
}

// MCPServer returns the underlying SDK server, e.g. to connect it to a
// custom transport.
func (s *Server) MCPServer() *mcpsdk.Server { return s.mcp }

// Run serves t until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcptools: %w", err)
	}
	return nil
}

// toolFunc is the domain handler of one tool. A returned error becomes an
// IsError result.
type toolFunc[In any] func(ctx context.Context, in In) (any, error)

// instrument adapts fn to the SDK handler signature, encodes its result as
// JSON text content and records the call.
func instrument[In any](s *Server, name string, fn toolFunc[In]) mcpsdk.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *mcpsdk.CallToolRequest, in In) (*mcpsdk.CallToolResult, any, error) {
		ctx, span := observe.StartSpan(ctx, "mcptools."+name)
		defer span.End()

		start := time.Now()
		out, err := fn(ctx, in)
		log := observe.Logger(ctx).With("tool", name, "duration", time.Since(start))
		if err != nil {
			s.metrics.RecordToolCall(ctx, name, "error")
			log.Warn("tool call failed", "err", err)
			return errorResult(err), nil, nil
		}

		data, err := json.Marshal(out)
		if err != nil {
			s.metrics.RecordToolCall(ctx, name, "error")
			return nil, nil, fmt.Errorf("mcptools: %s: encode result: %w", name, err)
		}
		s.metrics.RecordToolCall(ctx, name, "ok")
		log.Debug("tool call completed")
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
		}, nil, nil
	}
}

// toolError is the JSON body of an IsError result.
type toolError struct {
	Error   string                `json:"error"`
	Missing []compose.MissingWord `json:"missing,omitempty"`
}

func errorResult(err error) *mcpsdk.CallToolResult {
	body := toolError{Error: err.Error()}
	var empty *compose.EmptyCompositionError
	if errors.As(err, &empty) {
		body.Missing = empty.Missing
	}
	data, _ := json.Marshal(body)
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}
}

// SearchInput is the argument of search_word.
type SearchInput struct {
	Word       string `json:"word" jsonschema:"the word to look up"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of occurrences to return (default 10)"`
}

// SearchOutput is the result of search_word.
type SearchOutput struct {
	Term        string              `json:"term"`
	Tier        string              `json:"tier"`
	Occurrences []corpus.Occurrence `json:"occurrences"`
}

func (s *Server) searchWord(ctx context.Context, in SearchInput) (any, error) {
	if in.Word == "" {
		return nil, errors.New("word is required")
	}
	limit := in.MaxResults
	if limit <= 0 {
		limit = defaultSearchMax
	}
	res, err := s.app.Search(ctx, in.Word, limit)
	if err != nil {
		return nil, err
	}
	out := SearchOutput{Term: res.Term, Tier: res.Tier.String(), Occurrences: res.Occurrences}
	if out.Occurrences == nil {
		out.Occurrences = []corpus.Occurrence{}
	}
	return out, nil
}

// ComposeInput is the argument of compose_sentence.
type ComposeInput struct {
	Words             []string `json:"words,omitempty" jsonschema:"the words of the sentence in order"`
	Text              string   `json:"text,omitempty" jsonschema:"the sentence as free text, used when words is empty"`
	MinConfidence     *float64 `json:"min_confidence,omitempty" jsonschema:"minimum ASR confidence between 0 and 1"`
	PreferredSpeakers []string `json:"preferred_speakers,omitempty" jsonschema:"speaker labels to favour"`
	Diversity         *bool    `json:"diversity,omitempty" jsonschema:"spread selections across speakers and files (default true)"`
	Render            bool     `json:"render,omitempty" jsonschema:"also render the collage to an audio file"`
	Mode              string   `json:"mode,omitempty" jsonschema:"assembly mode: standard, artistic or seamless"`
}

// ComposeOutput is the result of compose_sentence.
type ComposeOutput struct {
	*compose.Sentence

	AudioPath string `json:"audio_path,omitempty"`
	InfoPath  string `json:"info_path,omitempty"`
}

func (s *Server) composeSentence(ctx context.Context, in ComposeInput) (any, error) {
	words := in.Words
	if len(words) == 0 {
		words = compose.SplitWords(in.Text)
	}
	if len(words) == 0 {
		return nil, errors.New("words or text is required")
	}

	opts := s.app.ComposeOptions()
	if v := in.MinConfidence; v != nil {
		if *v < 0 || *v > 1 {
			return nil, fmt.Errorf("min_confidence %v outside [0, 1]", *v)
		}
		opts.MinConfidence = *v
	}
	if len(in.PreferredSpeakers) > 0 {
		opts.PreferredSpeakers = in.PreferredSpeakers
	}
	if in.Diversity != nil {
		opts.Diversity = *in.Diversity
	}

	if !in.Render {
		sentence, err := s.app.Compose(ctx, words, opts)
		if err != nil {
			return nil, err
		}
		return ComposeOutput{Sentence: sentence}, nil
	}

	renderOpts := s.app.RenderOptions()
	if in.Mode != "" {
		m, err := assemble.ParseMode(in.Mode)
		if err != nil {
			return nil, err
		}
		renderOpts.Mode = m
	}
	gen, err := s.app.Generate(ctx, app.GenerateRequest{
		Words:   words,
		Compose: opts,
		Render:  renderOpts,
	})
	if err != nil {
		return nil, err
	}
	return ComposeOutput{Sentence: gen.Sentence, AudioPath: gen.AudioPath, InfoPath: gen.InfoPath}, nil
}

// StatsInput is the argument of corpus_stats.
type StatsInput struct {
	Top int `json:"top,omitempty" jsonschema:"number of most common words to list (default 10)"`
}

func (s *Server) corpusStats(_ context.Context, in StatsInput) (any, error) {
	top := in.Top
	if top <= 0 {
		top = defaultStatsTop
	}
	return s.app.Stats(top)
}
