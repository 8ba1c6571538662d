package factory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
)

type stubFetcher struct {
	resp *source.Response
	err  error
}

func (s stubFetcher) Fetch(context.Context, *source.Request) (*source.Response, error) {
	return s.resp, s.err
}

func TestMulti_MergesAndDedupes(t *testing.T) {
	now := time.Now()
	m := NewMulti(map[string]source.Fetcher{
		"a": stubFetcher{resp: &source.Response{
			Items:       []model.RawItem{{ID: "1", CreatedAt: now}, {ID: "2", CreatedAt: now}},
			SourcesUsed: []string{"r/a"},
		}},
		"b": stubFetcher{resp: &source.Response{
			Items:       []model.RawItem{{ID: "2", CreatedAt: now}, {ID: "3", CreatedAt: now}},
			SourcesUsed: []string{"hackernews"},
		}},
		"c": stubFetcher{err: errors.New("down")},
	}, 30)

	resp, err := m.Fetch(context.Background(), &source.Request{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(resp.Items) != 3 || len(resp.SourcesUsed) != 2 {
		t.Fatalf("items=%d sources=%v", len(resp.Items), resp.SourcesUsed)
	}
	if resp.StaleWarning != "" {
		t.Errorf("unexpected stale warning %q", resp.StaleWarning)
	}
}

func TestMulti_AllFailed(t *testing.T) {
	m := NewMulti(map[string]source.Fetcher{
		"a": stubFetcher{err: errors.New("down")},
	}, 30)
	if _, err := m.Fetch(context.Background(), &source.Request{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMulti_StaleWarning(t *testing.T) {
	m := NewMulti(map[string]source.Fetcher{
		"a": stubFetcher{resp: &source.Response{
			Items:       []model.RawItem{{ID: "1", CreatedAt: time.Now().Add(-(90*24 + 1) * time.Hour)}},
			SourcesUsed: []string{"r/a"},
		}},
	}, 30)
	resp, err := m.Fetch(context.Background(), &source.Request{})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !strings.Contains(resp.StaleWarning, "90 days") {
		t.Errorf("StaleWarning = %q", resp.StaleWarning)
	}
}

func TestNewSearcher(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.WebConfig
		wantErr bool
	}{
		{"tavily", config.WebConfig{Provider: "tavily", Tavily: config.TavilyConfig{APIKey: "k"}}, false},
		{"tavily without key", config.WebConfig{Provider: "tavily"}, true},
		{"searxng", config.WebConfig{Provider: "searxng", SearXNG: config.SearXNGConfig{BaseURL: "http://localhost:8080"}}, false},
		{"searxng without url", config.WebConfig{Provider: "searxng"}, true},
		{"unknown", config.WebConfig{Provider: "bing"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSearcher(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSearcher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Fatal("nil searcher")
			}
		})
	}
}

func TestNewFetcher_WebSource(t *testing.T) {
	cfg := config.Default().Sources
	cfg.Web = config.WebConfig{Provider: "searxng", SearXNG: config.SearXNGConfig{BaseURL: "http://localhost:8080"}}
	m := NewFetcher(cfg, nil).(*Multi)
	if _, ok := m.fetchers[source.Web]; !ok {
		t.Fatal("web fetcher not registered")
	}

	cfg.Web.Provider = "tavily" // 缺少 api key
	if _, ok := NewFetcher(cfg, nil).(*Multi).fetchers[source.Web]; ok {
		t.Fatal("misconfigured web fetcher should be skipped")
	}
}
