package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/discovery"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/errs"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/keywords"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/pain"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/relevance"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/storage"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// noiseEmbedder 含 noise 的文本与其他文本正交
type noiseEmbedder struct{}

func (noiseEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "noise") {
			out[i] = []float64{0, 1}
		} else {
			out[i] = []float64{1, 0}
		}
	}
	return out, nil
}

// fakeFetcher 按调用顺序返回预置结果
type fakeFetcher struct {
	mu       sync.Mutex
	rounds   [][]model.RawItem
	err      error
	requests []*source.Request
}

func (f *fakeFetcher) Fetch(_ context.Context, req *source.Request) (*source.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	n := len(f.requests) - 1
	if n >= len(f.rounds) {
		return &source.Response{SourcesUsed: req.Sources}, nil
	}
	return &source.Response{Items: f.rounds[n], SourcesUsed: req.Sources}, nil
}

// seqDiscoverer 每次调用返回下一组社区
type seqDiscoverer struct {
	answers [][]string
	calls   int
}

func (d *seqDiscoverer) Discover(context.Context, *llm.Usage, discovery.Request) ([]string, error) {
	if d.calls >= len(d.answers) {
		return nil, nil
	}
	d.calls++
	return d.answers[d.calls-1], nil
}

type flatEstimator struct{}

func (flatEstimator) EstimateSourceWeights(context.Context, *llm.Usage, model.Hypothesis, []string) (map[string]float64, error) {
	return nil, errors.New("not available")
}

type memStore struct {
	err   error
	saved map[string]*model.Report
}

func (m *memStore) SaveResult(_ context.Context, jobID string, r *model.Report) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = map[string]*model.Report{}
	}
	m.saved[jobID] = r
	return nil
}

func (m *memStore) LoadResult(_ context.Context, jobID string) (*model.Report, error) {
	if r, ok := m.saved[jobID]; ok {
		return r, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memStore) Close() error { return nil }

func posts(prefix, body string, n int) []model.RawItem {
	out := make([]model.RawItem, n)
	for i := range out {
		out[i] = model.RawItem{
			ID:     fmt.Sprintf("%s-%d", prefix, i),
			Kind:   model.KindPost,
			Source: "r/productivity",
			Title:  body,
			Body:   body + " and it keeps happening every week",
		}
	}
	return out
}

func newTestEngine(t *testing.T, fetcher source.Fetcher, disc *seqDiscoverer, store storage.Store) *Engine {
	t.Helper()
	cfg := config.Default()
	scorer := llm.NewScorer(noiseEmbedder{}, nil)
	tiered := relevance.NewTiered(scorer, cfg.Filter.Thresholds, cfg.Embedding.BatchSize, 2)
	cascade := relevance.NewCascade(nil, cfg.Filter.Thresholds, cfg.Filter.Cascade, 2)
	return New(cfg, Deps{
		Keywords:   keywords.NewExtractor(nil),
		Discoverer: disc,
		Fetcher:    fetcher,
		Filter:     relevance.NewFilter(tiered, cascade),
		Analyzer:   pain.NewAnalyzer(cfg.Pain.ExcerptLength),
		Weigher:    pain.NewWeigher(flatEstimator{}, cfg.Pain.MinWeight, cfg.Pain.MaxWeight),
		Praise:     pain.NewPraiseFilter(scorer, cfg.Pain.PraiseMargin, cfg.Embedding.BatchSize),
		Store:      store,
	})
}

func TestRun_ExpandsWhenCoreIsScarce(t *testing.T) {
	first := append(posts("core", "I hate losing my tasks when sync breaks", 10),
		posts("noise", "random noise about weekend plans", 90)...)
	fetcher := &fakeFetcher{rounds: [][]model.RawItem{
		first,
		posts("extra", "Sync breaks and I lose my tasks again", 5),
	}}
	disc := &seqDiscoverer{answers: [][]string{{"r/productivity"}, {"r/gtd"}}}
	store := &memStore{}

	var steps []string
	e := newTestEngine(t, fetcher, disc, store)
	report, err := e.Run(context.Background(), RunOptions{
		JobID:            "job-a",
		Hypothesis:       model.Hypothesis{Text: "People lose tasks when their todo app sync fails"},
		ProgressCallback: func(status string, _ int) { steps = append(steps, status) },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Expansion) != 1 {
		t.Fatalf("got %d expansion attempts, want 1", len(report.Expansion))
	}
	att := report.Expansion[0]
	if att.Kind != model.ExpandCommunities || att.Value != "r/gtd" || !att.Success || att.SignalsGained != 5 {
		t.Errorf("unexpected attempt %+v", att)
	}
	if got := report.Metrics.TierCounts[tier.Core]; got != 15 {
		t.Errorf("CORE = %d, want 15", got)
	}
	if report.Metrics.PostsFound != 105 || report.Metrics.PostsFiltered != 90 {
		t.Errorf("metrics = %+v", report.Metrics)
	}
	if report.Metrics.TierCounts.Total() != 105 {
		t.Errorf("tier counts %v do not cover every item", report.Metrics.TierCounts)
	}
	if len(report.Signals) != 15 {
		t.Errorf("got %d signals, want 15", len(report.Signals))
	}
	if store.saved["job-a"] == nil {
		t.Error("report not persisted")
	}
	if steps[len(steps)-1] != "done" {
		t.Errorf("progress = %v", steps)
	}
	if req := fetcher.requests[0]; len(req.Sources) != 2 || req.Sources[1] != source.HackerNews {
		t.Errorf("first request sources = %v", req.Sources)
	}
}

func TestRun_FixedCommunitiesSkipExpansion(t *testing.T) {
	fetcher := &fakeFetcher{rounds: [][]model.RawItem{posts("core", "sync keeps failing", 3)}}
	disc := &seqDiscoverer{answers: [][]string{{"r/gtd"}}}
	e := newTestEngine(t, fetcher, disc, nil)

	report, err := e.Run(context.Background(), RunOptions{
		Hypothesis:  model.Hypothesis{Text: "todo sync fails"},
		Communities: []string{"r/todoist"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Expansion) != 0 || disc.calls != 0 || len(fetcher.requests) != 1 {
		t.Errorf("expansion ran with fixed communities: %+v", report.Expansion)
	}
	if report.JobID == "" {
		t.Error("job id not generated")
	}
}

func TestRun_AppReview(t *testing.T) {
	review := model.RawItem{
		ID:         "as_1",
		Kind:       model.KindReview,
		Source:     model.AppSource("123"),
		Body:       "App crashes every time I open it",
		Engagement: 2,
	}
	other := model.RawItem{ID: "as_2", Kind: model.KindReview, Source: model.AppSource("999"), Body: "Crashes a lot"}
	fetcher := &fakeFetcher{rounds: [][]model.RawItem{{review, other}}}
	e := newTestEngine(t, fetcher, &seqDiscoverer{}, nil)

	report, err := e.Run(context.Background(), RunOptions{
		Hypothesis:  model.Hypothesis{Text: "Note app crashes on launch", AppName: "Notion", AppID: "123"},
		Communities: []string{"r/notion"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Signals) != 1 || report.Signals[0].ItemID != "as_1" {
		t.Fatalf("signals = %+v", report.Signals)
	}
	if report.Signals[0].Intensity.Rank() < model.IntensityMedium.Rank() {
		t.Errorf("intensity %v, want at least medium", report.Signals[0].Intensity)
	}
	if report.Metrics.AppGateRemoved != 1 {
		t.Errorf("AppGateRemoved = %d, want 1", report.Metrics.AppGateRemoved)
	}
	if last := fetcher.requests[0].Sources; last[len(last)-1] != "app:123" {
		t.Errorf("app reviews not requested: %v", last)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
		store   *memStore
		want    errs.Kind
	}{
		{
			name:    "fetch failure",
			fetcher: &fakeFetcher{err: errors.New("reddit down")},
			store:   &memStore{},
			want:    errs.KindSourceFetch,
		},
		{
			name:    "persistence failure",
			fetcher: &fakeFetcher{rounds: [][]model.RawItem{posts("core", "sync keeps failing", 2)}},
			store:   &memStore{err: errors.New("disk full")},
			want:    errs.KindPersistence,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.fetcher, &seqDiscoverer{}, tt.store)
			_, err := e.Run(context.Background(), RunOptions{
				Hypothesis:  model.Hypothesis{Text: "todo sync fails"},
				Communities: []string{"r/todoist"},
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errs.KindOf(err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
