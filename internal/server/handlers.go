package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/assemble"
	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/pkg/audio/stretch"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

type searchResponse struct {
	Query   string              `json:"query"`
	Term    string              `json:"term"`
	Tier    string              `json:"tier"`
	Count   int                 `json:"count"`
	Results []corpus.Occurrence `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, r, badRequest{msg: "q is required"})
		return
	}
	limit, err := intParam("max", r.URL.Query().Get("max"), defaultSearchMax)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.app.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	results := res.Occurrences
	if results == nil {
		results = []corpus.Occurrence{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Query:   q,
		Term:    res.Term,
		Tier:    res.Tier.String(),
		Count:   len(results),
		Results: results,
	})
}

// composeRequest carries the words plus optional per-request overrides of
// the configured composition defaults.
type composeRequest struct {
	Words             []string `json:"words"`
	Text              string   `json:"text"`
	MinConfidence     *float64 `json:"min_confidence"`
	PreferredSpeakers []string `json:"preferred_speakers"`
	Diversity         *bool    `json:"diversity"`
	GapMS             *int     `json:"gap_ms"`
}

func (req composeRequest) words() ([]string, error) {
	words := req.Words
	if len(words) == 0 {
		words = compose.SplitWords(req.Text)
	}
	if len(words) == 0 {
		return nil, badRequest{msg: "words or text is required"}
	}
	return words, nil
}

func (req composeRequest) options(base compose.Options) (compose.Options, error) {
	if v := req.MinConfidence; v != nil {
		if *v < 0 || *v > 1 {
			return base, badRequest{msg: "min_confidence must be within [0, 1]"}
		}
		base.MinConfidence = *v
	}
	if len(req.PreferredSpeakers) > 0 {
		base.PreferredSpeakers = req.PreferredSpeakers
	}
	if req.Diversity != nil {
		base.Diversity = *req.Diversity
	}
	if req.GapMS != nil {
		if *req.GapMS < 0 {
			return base, badRequest{msg: "gap_ms must not be negative"}
		}
		base.Gap = time.Duration(*req.GapMS) * time.Millisecond
	}
	return base, nil
}

func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	words, err := req.words()
	if err != nil {
		writeError(w, r, err)
		return
	}
	opts, err := req.options(s.app.ComposeOptions())
	if err != nil {
		writeError(w, r, err)
		return
	}
	sentence, err := s.app.Compose(r.Context(), words, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sentence)
}

type generateRequest struct {
	composeRequest

	Mode          string   `json:"mode"`
	Tempo         *float64 `json:"tempo"`
	PreservePitch *bool    `json:"preserve_pitch"`
	Container     string   `json:"container"`
}

type generateResponse struct {
	*app.Generated

	AudioURL string `json:"audio_url"`
	InfoURL  string `json:"info_url"`
	Mode     string `json:"mode"`
}

func (req generateRequest) renderOptions(base assemble.Options) (assemble.Options, error) {
	if req.Mode != "" {
		m, err := assemble.ParseMode(req.Mode)
		if err != nil {
			return base, badRequest{msg: err.Error()}
		}
		base.Mode = m
	}
	if t := req.Tempo; t != nil {
		if *t < stretch.MinFactor || *t > stretch.MaxFactor {
			return base, badRequest{msg: "tempo out of range"}
		}
		base.Tempo = *t
	}
	if p := req.PreservePitch; p != nil {
		base.Stretch = stretch.ModeResample
		if *p {
			base.Stretch = stretch.ModePreservePitch
		}
	}
	// An explicit gap shapes the audio as well as the reported duration.
	if g := req.GapMS; g != nil {
		if *g < 0 {
			return base, badRequest{msg: "gap_ms must not be negative"}
		}
		base.Gap = time.Duration(*g) * time.Millisecond
	}
	return base, nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	words, err := req.words()
	if err != nil {
		writeError(w, r, err)
		return
	}
	composeOpts, err := req.options(s.app.ComposeOptions())
	if err != nil {
		writeError(w, r, err)
		return
	}
	renderOpts, err := req.renderOptions(s.app.RenderOptions())
	if err != nil {
		writeError(w, r, err)
		return
	}
	container, err := app.ParseContainer(req.Container)
	if err != nil {
		writeError(w, r, badRequest{msg: err.Error()})
		return
	}

	out, err := s.app.Generate(r.Context(), app.GenerateRequest{
		Words:     words,
		Compose:   composeOpts,
		Render:    renderOpts,
		Container: container,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logger(r).Info("sentence generated",
		"id", out.ID,
		"words", len(out.Sentence.Words),
		"missing", len(out.Sentence.Missing),
		"duration", out.Duration,
	)
	writeJSON(w, http.StatusOK, generateResponse{
		Generated: out,
		AudioURL:  "/audio/" + filepath.Base(out.AudioPath),
		InfoURL:   "/audio/" + filepath.Base(out.InfoPath),
		Mode:      renderOpts.Mode.String(),
	})
}

type wordsResponse struct {
	Count int      `json:"count"`
	Words []string `json:"words"`
}

func (s *Server) handleWords(w http.ResponseWriter, r *http.Request) {
	words, err := s.app.Words()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wordsResponse{Count: len(words), Words: words})
}

func (s *Server) handleRandomWords(w http.ResponseWriter, r *http.Request) {
	n, err := intParam("count", r.PathValue("count"), 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	words, err := s.app.RandomWords(n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wordsResponse{Count: len(words), Words: words})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Reload(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	top, err := intParam("top", r.URL.Query().Get("top"), defaultStatsTop)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.app.Stats(top)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleAudio serves files from the output directory. os.DirFS rejects
// names escaping the root.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	dir := s.app.Config().Server.OutputDir
	http.ServeFileFS(w, r, os.DirFS(dir), r.PathValue("file"))
}
