package factory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/appstore"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/hackernews"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/reddit"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/web"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/web/searxng"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/web/tavily"
)

// NewFetcher 根据配置创建组合抓取器，网页搜索配置有误时跳过该数据源
func NewFetcher(cfg config.SourcesConfig, limiter *rate.Limiter) source.Fetcher {
	fetchers := map[string]source.Fetcher{
		"reddit":          reddit.NewClient(cfg.Reddit, limiter),
		source.HackerNews: hackernews.NewClient(cfg.HackerNews, limiter),
		"appstore":        appstore.NewClient(cfg.AppStore, limiter),
	}
	if cfg.Web.Provider != "" {
		searcher, err := NewSearcher(cfg.Web)
		if err != nil {
			logger.Log.Warnf("[source] web search disabled: %v", err)
		} else {
			fetchers[source.Web] = web.NewFetcher(searcher, limiter, cfg.Web.MaxResults)
		}
	}
	return NewMulti(fetchers, cfg.StaleAfterDays)
}

// NewSearcher 根据配置创建网页搜索实例
func NewSearcher(cfg config.WebConfig) (web.Searcher, error) {
	switch cfg.Provider {
	case "tavily":
		if cfg.Tavily.APIKey == "" {
			return nil, fmt.Errorf("tavily api key is missing")
		}
		return tavily.NewClient(cfg.Tavily), nil

	case "searxng":
		if cfg.SearXNG.BaseURL == "" {
			return nil, fmt.Errorf("searxng base url is missing")
		}
		return searxng.NewClient(cfg.SearXNG), nil

	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Provider)
	}
}

// Multi 并发调用各数据源并合并结果
type Multi struct {
	fetchers   map[string]source.Fetcher
	staleAfter time.Duration
	now        func() time.Time
}

// NewMulti 由调用方指定各数据源
func NewMulti(fetchers map[string]source.Fetcher, staleAfterDays int) *Multi {
	return &Multi{
		fetchers:   fetchers,
		staleAfter: time.Duration(staleAfterDays) * 24 * time.Hour,
		now:        time.Now,
	}
}

// Fetch 部分数据源失败不影响整体，全部失败才返回错误
func (m *Multi) Fetch(ctx context.Context, req *source.Request) (*source.Response, error) {
	names := make([]string, 0, len(m.fetchers))
	for name := range m.fetchers {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]*source.Response, len(names))
	errs := make([]error, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			resp, err := m.fetchers[name].Fetch(gctx, req)
			if err != nil {
				logger.Log.Warnf("[source] %s failed: %v", name, err)
			}
			results[i], errs[i] = resp, err
			return nil
		})
	}
	_ = g.Wait()

	out := &source.Response{}
	seen := map[string]bool{}
	var firstErr error
	for i, r := range results {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", names[i], errs[i])
			}
			continue
		}
		if r == nil {
			continue
		}
		for _, it := range r.Items {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			out.Items = append(out.Items, it)
		}
		out.SourcesUsed = append(out.SourcesUsed, r.SourcesUsed...)
	}
	if len(out.SourcesUsed) == 0 && firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out.StaleWarning = m.staleness(out)
	return out, nil
}

// staleness 最新一条数据早于阈值时给出提示
func (m *Multi) staleness(resp *source.Response) string {
	if m.staleAfter <= 0 || len(resp.Items) == 0 {
		return ""
	}
	var newest time.Time
	for _, it := range resp.Items {
		if it.CreatedAt.After(newest) {
			newest = it.CreatedAt
		}
	}
	if newest.IsZero() {
		return ""
	}
	age := m.now().Sub(newest)
	if age <= m.staleAfter {
		return ""
	}
	return fmt.Sprintf("newest item is %d days old; results may not reflect current sentiment", int(age.Hours()/24))
}
