// Package expansion 在证据不足时扩大搜索范围，最多执行 MaxRounds 轮。
package expansion

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/discovery"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/relevance"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// ShouldExpand CORE 不足，或 CORE+STRONG+RELATED 总量不足时扩展。
// 用户指定了社区时不扩展。
func ShouldExpand(counts tier.Counts, cfg config.ExpansionConfig, fixedCommunities bool) bool {
	if !cfg.Enabled || fixedCommunities {
		return false
	}
	core := counts[tier.Core]
	total := core + counts[tier.Strong] + counts[tier.Related]
	return core < cfg.MinCore || total < cfg.MinTotal
}

// Processor 对新抓取的条目执行与首轮相同的预过滤和相关度过滤
type Processor func(ctx context.Context, items []model.RawItem) (*relevance.Outcome, error)

// Input 扩展前的状态
type Input struct {
	Query       relevance.Query
	Communities []string // 首轮搜索过的社区
	Keywords    []string
	Limit       int
	RangeDays   int
	Counts      tier.Counts
	Fixed       bool
	// Seen 首轮已处理的条目 id，扩展轮跳过
	Seen map[string]bool
}

// Output 扩展结果，Outcome 只包含新增条目
type Output struct {
	Attempts []model.ExpansionAttempt
	Outcome  *relevance.Outcome
	Items    []model.RawItem // 新抓取且未处理过的条目
	Sources  []string
}

// Loop 有界的扩展循环
type Loop struct {
	cfg        config.ExpansionConfig
	discoverer discovery.Discoverer
	fetcher    source.Fetcher
	process    Processor
}

// NewLoop 创建扩展循环
func NewLoop(cfg config.ExpansionConfig, d discovery.Discoverer, f source.Fetcher, p Processor) *Loop {
	return &Loop{cfg: cfg, discoverer: d, fetcher: f, process: p}
}

// Run 不会返回错误，失败记录在 ExpansionAttempt 中，调用方保留扩展前的结果
func (l *Loop) Run(ctx context.Context, usage *llm.Usage, in Input) *Output {
	out := &Output{}
	counts := tier.Counts{}
	counts.Add(in.Counts)
	seen := make(map[string]bool, len(in.Seen))
	for id := range in.Seen {
		seen[id] = true
	}
	searched := append([]string(nil), in.Communities...)

	for round := 0; round < l.cfg.MaxRounds && ShouldExpand(counts, l.cfg, in.Fixed); round++ {
		if ctx.Err() != nil {
			break
		}
		attempt, req := l.plan(ctx, usage, in, searched)
		logger.Log.Infof("[expansion] round %d: %s=%s", round+1, attempt.Kind, attempt.Value)

		outcome, items, err := l.runRound(ctx, req, seen)
		if err != nil {
			attempt.Error = err.Error()
			logger.Log.Warnf("[expansion] round %d failed: %v", round+1, err)
			out.Attempts = append(out.Attempts, attempt)
			continue
		}

		gained := 0
		for _, it := range outcome.Scored() {
			if it.Tier.FeedsAnalysis() {
				gained++
			}
		}
		attempt.SignalsGained = gained
		attempt.Success = gained > 0
		out.Attempts = append(out.Attempts, attempt)

		out.Items = append(out.Items, items...)
		if attempt.Kind == model.ExpandCommunities {
			out.Sources = append(out.Sources, req.Sources...)
			searched = append(searched, req.Sources...)
		}
		if out.Outcome == nil {
			out.Outcome = outcome
		} else {
			out.Outcome.Merge(outcome)
		}
		counts.Add(outcome.TierCounts())
	}
	return out
}

// plan 优先发现新社区；没有新社区时放宽时间范围，时间范围已经够宽则提高抓取上限
func (l *Loop) plan(ctx context.Context, usage *llm.Usage, in Input, searched []string) (model.ExpansionAttempt, *source.Request) {
	fresh, err := l.discoverer.Discover(ctx, usage, discovery.Request{
		Hypothesis: in.Query.Hypothesis,
		Keywords:   in.Query.Keywords,
		Exclude:    searched,
		Max:        l.cfg.MaxNewSources,
	})
	if err != nil {
		logger.Log.Warnf("[expansion] discovery failed: %v", err)
	}
	if len(fresh) > 0 {
		return model.ExpansionAttempt{Kind: model.ExpandCommunities, Value: strings.Join(fresh, ",")},
			&source.Request{Sources: fresh, Keywords: in.Keywords, Limit: l.cfg.SampleLimit, RangeDays: in.RangeDays}
	}

	if in.RangeDays > 0 && in.RangeDays < l.cfg.WidenedRangeDays {
		return model.ExpansionAttempt{Kind: model.ExpandTimeRange, Value: fmt.Sprintf("%dd", l.cfg.WidenedRangeDays)},
			&source.Request{Sources: in.Communities, Keywords: in.Keywords, Limit: l.cfg.SampleLimit, RangeDays: l.cfg.WidenedRangeDays}
	}

	limit := max(in.Limit*2, l.cfg.SampleLimit)
	return model.ExpansionAttempt{Kind: model.ExpandFetchLimit, Value: strconv.Itoa(limit)},
		&source.Request{Sources: in.Communities, Keywords: in.Keywords, Limit: limit, RangeDays: in.RangeDays}
}

func (l *Loop) runRound(ctx context.Context, req *source.Request, seen map[string]bool) (*relevance.Outcome, []model.RawItem, error) {
	if len(req.Sources) == 0 {
		return nil, nil, fmt.Errorf("no sources to search")
	}
	resp, err := l.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch: %w", err)
	}

	fresh := make([]model.RawItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		fresh = append(fresh, it)
	}
	if len(fresh) == 0 {
		return nil, nil, fmt.Errorf("no new items")
	}

	outcome, err := l.process(ctx, fresh)
	if err != nil {
		return nil, nil, fmt.Errorf("filter: %w", err)
	}
	return outcome, fresh, nil
}
