package compose_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/mixplay/internal/compose"
	"github.com/MrWong99/mixplay/internal/match"
	"github.com/MrWong99/mixplay/internal/observe"
	"github.com/MrWong99/mixplay/pkg/corpus"
)

// said is one recorded word for a test corpus.
type said struct {
	source, speaker, text string
	conf, dur             float64
}

func buildCorpus(t *testing.T, words ...said) *corpus.Index {
	t.Helper()
	bySource := map[string]*corpus.Record{}
	var order []string
	for i, w := range words {
		r, ok := bySource[w.source]
		if !ok {
			r = &corpus.Record{ID: w.source, FileName: w.source + ".wav", AudioPath: "/audio/" + w.source + ".wav"}
			bySource[w.source] = r
			order = append(order, w.source)
		}
		start, end, conf := float64(i), float64(i)+w.dur, w.conf
		r.Segments = append(r.Segments, corpus.Segment{
			ID:      len(r.Segments),
			Speaker: w.speaker,
			Words:   []corpus.WordEntry{{Text: w.text, Start: &start, End: &end, Confidence: &conf}},
		})
	}
	records := make([]corpus.Record, 0, len(order))
	for _, id := range order {
		records = append(records, *bySource[id])
	}
	return corpus.Build(records)
}

func newComposer(t *testing.T, idx *corpus.Index) *compose.Composer {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return compose.New(compose.NewSelector(match.New(idx)), compose.WithMetrics(m))
}

func usage(s *compose.Sentence) map[string]int {
	out := map[string]int{}
	for _, w := range s.Words {
		out[w.SourceID]++
	}
	return out
}

func TestCompose_DiversitySpreadsSources(t *testing.T) {
	t.Parallel()

	idx := buildCorpus(t,
		said{"a", "S1", "amour", 0.9, 0.4},
		said{"b", "S2", "amour", 0.9, 0.4},
	)
	c := newComposer(t, idx)

	s, err := c.Compose(context.Background(), []string{"amour", "amour", "amour"}, compose.DefaultOptions())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	u := usage(s)
	if u["a"] != 2 || u["b"] != 1 {
		t.Errorf("usage = %v, want a:2 b:1", u)
	}
	if s.Reused != 1 {
		t.Errorf("Reused = %d, want 1", s.Reused)
	}

	opts := compose.DefaultOptions()
	opts.Diversity = false
	s, err = c.Compose(context.Background(), []string{"amour", "amour", "amour"}, opts)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if u := usage(s); u["a"] != 3 {
		t.Errorf("usage without diversity = %v, want a:3", u)
	}
}

func TestCompose_DiversityBound(t *testing.T) {
	t.Parallel()

	const n = 7
	idx := buildCorpus(t,
		said{"a", "S1", "oui", 0.8, 0.2},
		said{"b", "S1", "oui", 0.8, 0.2},
		said{"c", "S2", "oui", 0.8, 0.2},
	)
	c := newComposer(t, idx)
	words := make([]string, n)
	for i := range words {
		words[i] = "oui"
	}

	s, err := c.Compose(context.Background(), words, compose.DefaultOptions())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	bound := (n + 2) / 3 // ceil(n / 3)
	worst := 0
	for src, cnt := range usage(s) {
		if cnt > bound {
			t.Errorf("source %s used %d times, bound %d", src, cnt, bound)
		}
		worst = max(worst, cnt)
	}

	opts := compose.DefaultOptions()
	opts.Diversity = false
	plain, err := c.Compose(context.Background(), words, opts)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	plainWorst := 0
	for _, cnt := range usage(plain) {
		plainWorst = max(plainWorst, cnt)
	}
	if worst >= plainWorst {
		t.Errorf("max reuse with diversity = %d, without = %d; want strictly fewer", worst, plainWorst)
	}
}

func TestCompose_MissingWordReported(t *testing.T) {
	t.Parallel()

	idx := buildCorpus(t,
		said{"a", "S1", "je", 0.9, 0.1},
		said{"a", "S1", "t'aime", 0.9, 0.3},
	)
	c := newComposer(t, idx)

	s, err := c.Compose(context.Background(), []string{"je", "xylophone", "t'aime"}, compose.DefaultOptions())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(s.Words) != 2 {
		t.Fatalf("got %d words, want 2", len(s.Words))
	}
	if len(s.Missing) != 1 || s.Missing[0].Word != "xylophone" || s.Missing[0].Position != 1 {
		t.Errorf("Missing = %+v", s.Missing)
	}
	if s.Missing[0].Reason != compose.ReasonNotFound {
		t.Errorf("Reason = %q, want %q", s.Missing[0].Reason, compose.ReasonNotFound)
	}
	if !errors.Is(s.Missing[0], compose.ErrNotFound) {
		t.Error("MissingWord does not match ErrNotFound")
	}
	if s.Text != "je t'aime" {
		t.Errorf("Text = %q", s.Text)
	}
}

func TestCompose_BelowConfidence(t *testing.T) {
	t.Parallel()

	idx := buildCorpus(t,
		said{"a", "S1", "chat", 0.3, 0.2},
		said{"a", "S1", "noir", 0.9, 0.2},
	)
	s, err := newComposer(t, idx).Compose(context.Background(), []string{"chat", "noir"}, compose.DefaultOptions())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(s.Missing) != 1 || s.Missing[0].Reason != compose.ReasonBelowConfidence {
		t.Errorf("Missing = %+v, want chat below confidence", s.Missing)
	}
}

func TestCompose_EmptyComposition(t *testing.T) {
	t.Parallel()

	idx := buildCorpus(t, said{"a", "S1", "bonjour", 0.9, 0.3})
	s, err := newComposer(t, idx).Compose(context.Background(), []string{"zzz", "qqqq"}, compose.DefaultOptions())
	if !errors.Is(err, compose.ErrEmptyComposition) {
		t.Fatalf("err = %v, want ErrEmptyComposition", err)
	}
	var empty *compose.EmptyCompositionError
	if !errors.As(err, &empty) || len(empty.Missing) != 2 {
		t.Errorf("EmptyCompositionError = %+v", empty)
	}
	if s == nil || len(s.Words) != 0 {
		t.Errorf("partial sentence = %+v", s)
	}
}

func TestCompose_TotalDuration(t *testing.T) {
	t.Parallel()

	idx := buildCorpus(t,
		said{"a", "S1", "le", 0.9, 0.137},
		said{"b", "S2", "petit", 0.9, 0.291},
		said{"c", "S3", "prince", 0.9, 0.443},
	)
	opts := compose.DefaultOptions()
	opts.Gap = 330 * time.Millisecond

	s, err := newComposer(t, idx).Compose(context.Background(), []string{"le", "petit", "prince"}, opts)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	var want float64
	for _, w := range s.Words {
		want += w.Duration
	}
	want += opts.Gap.Seconds() * float64(len(s.Words)-1)
	if s.TotalDuration != want {
		t.Errorf("TotalDuration = %v, want %v", s.TotalDuration, want)
	}
	if fmt.Sprint(s.SpeakersUsed) != "[S1 S2 S3]" || len(s.FilesUsed) != 3 {
		t.Errorf("SpeakersUsed = %v, FilesUsed = %v", s.SpeakersUsed, s.FilesUsed)
	}
}

func TestCompose_PreferredSpeakers(t *testing.T) {
	t.Parallel()

	idx := buildCorpus(t,
		said{"a", "S1", "merci", 0.95, 0.3},
		said{"b", "S2", "merci", 0.6, 0.3},
		said{"a", "S1", "beaucoup", 0.9, 0.3},
	)
	opts := compose.DefaultOptions()
	opts.PreferredSpeakers = []string{"S2"}

	s, err := newComposer(t, idx).Compose(context.Background(), []string{"merci", "beaucoup"}, opts)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if s.Words[0].Speaker != "S2" {
		t.Errorf("merci spoken by %s, want preferred S2", s.Words[0].Speaker)
	}
	// Soft preference: no S2 recording of "beaucoup" exists.
	if s.Words[1].Speaker != "S1" {
		t.Errorf("beaucoup spoken by %s, want fallback S1", s.Words[1].Speaker)
	}
}

func TestCompose_Canceled(t *testing.T) {
	t.Parallel()

	idx := buildCorpus(t, said{"a", "S1", "oui", 0.9, 0.2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newComposer(t, idx).Compose(ctx, []string{"oui"}, compose.DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSelector_TieBreaks(t *testing.T) {
	t.Parallel()

	idx := buildCorpus(t,
		said{"a", "S1", "rose", 0.8, 0.2},
		said{"b", "S1", "rose", 0.4, 0.2},
		said{"c", "S1", "rose", 0.4, 0.2},
	)
	sel := compose.NewSelector(match.New(idx), compose.WithDamping(1))

	ledger := compose.NewLedger()
	first, err := sel.Select("rose", ledger, 0, nil)
	if err != nil || first.Occurrence.SourceID != "a" {
		t.Fatalf("first pick = %+v, %v; want a", first.Occurrence, err)
	}
	ledger.Use(first.Occurrence)

	// a scores 0.8/2 = 0.4, level with b and c; confidence breaks the tie.
	second, err := sel.Select("rose", ledger, 0, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if second.Occurrence.SourceID != "a" {
		t.Errorf("second pick = %s, want a", second.Occurrence.SourceID)
	}
	ledger.Use(second.Occurrence)

	// b and c tie on score and confidence; first seen wins.
	third, err := sel.Select("rose", ledger, 0, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if third.Occurrence.SourceID != "b" {
		t.Errorf("third pick = %s, want b", third.Occurrence.SourceID)
	}
	if ledger.Total() != 2 || ledger.Count(compose.SourceKey{SourceID: "a", Speaker: "S1"}) != 2 {
		t.Errorf("ledger counts = %v", ledger.Counts())
	}
}

func TestSelector_NotFound(t *testing.T) {
	t.Parallel()

	sel := compose.NewSelector(match.New(buildCorpus(t, said{"a", "S1", "oui", 0.9, 0.2})))
	if _, err := sel.Select("introuvable", nil, 0.5, nil); !errors.Is(err, compose.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSelector_Bonus(t *testing.T) {
	t.Parallel()

	sel := compose.NewSelector(match.New(corpus.Build(nil)))
	tests := []struct {
		count int
		want  float64
	}{
		{0, 1},
		{1, 1 / 1.3},
		{2, 1 / 1.6},
	}
	for _, tc := range tests {
		if got := sel.Bonus(tc.count); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("Bonus(%d) = %v, want %v", tc.count, got, tc.want)
		}
	}
}

func TestCompose_Telemetry(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	idx := buildCorpus(t,
		said{"a", "S1", "bonjour", 0.9, 0.4},
		said{"a", "S1", "toujours", 0.9, 0.4},
	)
	c := compose.New(compose.NewSelector(match.New(idx)), compose.WithMetrics(m))
	ctx := context.Background()

	if _, err := c.Compose(ctx, []string{"bonjour", "jours", "xylophone"}, compose.DefaultOptions()); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if _, err := c.Compose(ctx, []string{"xylophone"}, compose.DefaultOptions()); !errors.Is(err, compose.ErrEmptyComposition) {
		t.Fatalf("err = %v, want ErrEmptyComposition", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	for i, want := range []codes.Code{codes.Unset, codes.Error} {
		if spans[i].Name != "compose.Compose" || spans[i].Status.Code != want {
			t.Errorf("span %d = %s/%v, want compose.Compose/%v", i, spans[i].Name, spans[i].Status.Code, want)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	sums := map[string]map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			sums[met.Name] = map[string]int64{}
			for _, dp := range sum.DataPoints {
				tier, _ := dp.Attributes.Value("tier")
				sums[met.Name][tier.AsString()] += dp.Value
			}
		}
	}
	if got := sums["mixplay.compose.missing_words"][""]; got != 2 {
		t.Errorf("missing words = %d, want 2", got)
	}
	wantTiers := map[string]int64{"exact": 1, "morphological": 1, "none": 2}
	for tier, want := range wantTiers {
		if got := sums["mixplay.search.tier"][tier]; got != want {
			t.Errorf("searches answered by %s = %d, want %d", tier, got, want)
		}
	}
}
