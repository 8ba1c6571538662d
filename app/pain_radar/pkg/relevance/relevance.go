// Package relevance 是相关度过滤的核心：把原始条目按假设打分定档，
// 并尽量减少送入付费分类调用的条目数。
//
// 三种策略实现同一个 Strategy 接口，部署时通过配置选定其一；
// 评论永远走级联策略。所有策略产出相同结构的 Result，下游与策略无关。
package relevance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// ErrUnknownStrategy 配置了不存在的策略
var ErrUnknownStrategy = errors.New("relevance: unknown strategy")

// 阶段名称，出现在审计记录与统计中
const (
	StageEmbedding    = "embedding"
	StageVerification = "verification"
	StageQuality      = "quality_gate"
	StagePrerank      = "prerank"
	StageDomain       = "domain_gate"
	StageProblem      = "problem_gate"
	StageAppGate      = "app_name_gate"
)

// Query 一次请求的过滤依据
type Query struct {
	Hypothesis model.Hypothesis
	Keywords   model.ExtractedKeywords
}

// Text 用于向量化的假设文本
func (q Query) Text() string {
	s := q.Hypothesis.Statement()
	if ctx := strings.TrimSpace(q.Keywords.SearchContext); ctx != "" && !strings.Contains(s, ctx) {
		s += "\n" + ctx
	}
	return s
}

// Strategy 过滤策略
type Strategy interface {
	Name() string
	Filter(ctx context.Context, usage *llm.Usage, items []model.RawItem, q Query) (*Result, error)
}

// Result 一次过滤的输出。TierCounts 覆盖全部输入条目，每个条目恰好计入一个档位。
type Result struct {
	Input      int                       `json:"input"`
	Items      []model.ScoredItem        `json:"items"` // 非 NOISE 条目，按分数降序
	TierCounts tier.Counts               `json:"tier_counts"`
	Stages     []model.StageMetrics      `json:"stages"`
	Decisions  []model.RelevanceDecision `json:"decisions"`
}

func newResult(input int) *Result {
	return &Result{Input: input, TierCounts: tier.Counts{}}
}

// keep 记录最终定档，NOISE 只计数不保留
func (r *Result) keep(it model.RawItem, score float64, t tier.Tier) {
	r.TierCounts[t]++
	if t == tier.Noise {
		return
	}
	r.Items = append(r.Items, model.ScoredItem{Item: it, Score: score, Tier: t})
}

func (r *Result) stage(name string, kind string, before, after int) {
	r.Stages = append(r.Stages, model.StageMetrics{
		Stage:  name,
		Kind:   kind,
		Before: before,
		After:  after,
		Rate:   filterRate(before, after),
	})
}

func (r *Result) sortItems() {
	sort.SliceStable(r.Items, func(i, j int) bool {
		return r.Items[i].Score > r.Items[j].Score
	})
}

// Merge 合并另一批次（例如扩展轮）的结果
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Input += other.Input
	if r.TierCounts == nil {
		r.TierCounts = tier.Counts{}
	}
	r.TierCounts.Add(other.TierCounts)
	r.Decisions = append(r.Decisions, other.Decisions...)

	seen := make(map[string]bool, len(r.Items))
	for _, it := range r.Items {
		seen[it.Item.ID] = true
	}
	for _, it := range other.Items {
		if seen[it.Item.ID] {
			// 重复条目不再计数，转为 NOISE 保持分区
			r.TierCounts[it.Tier]--
			r.TierCounts[tier.Noise]++
			continue
		}
		seen[it.Item.ID] = true
		r.Items = append(r.Items, it)
	}

	idx := make(map[string]int, len(r.Stages))
	for i, s := range r.Stages {
		idx[s.Stage+"/"+s.Kind] = i
	}
	for _, s := range other.Stages {
		if i, ok := idx[s.Stage+"/"+s.Kind]; ok {
			r.Stages[i].Before += s.Before
			r.Stages[i].After += s.After
			r.Stages[i].Rate = filterRate(r.Stages[i].Before, r.Stages[i].After)
			continue
		}
		idx[s.Stage+"/"+s.Kind] = len(r.Stages)
		r.Stages = append(r.Stages, s)
	}
	r.sortItems()
}

// Count 指定档位及以上的条目数
func (r *Result) Count(min tier.Tier) int {
	n := 0
	for _, it := range r.Items {
		if it.Tier.AtLeast(min) {
			n++
		}
	}
	return n
}

// Deps 构造策略所需的外部服务
type Deps struct {
	Scorer     *llm.Scorer
	Classifier *llm.Classifier
	Workers    int
}

// NewStrategy 按配置选定帖子/评价使用的策略
func NewStrategy(cfg config.FilterConfig, embeddingBatch int, deps Deps) (Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyTiered:
		if deps.Scorer == nil {
			return nil, fmt.Errorf("relevance: tiered strategy requires an embedding scorer")
		}
		return NewTiered(deps.Scorer, cfg.Thresholds, embeddingBatch, deps.Workers), nil
	case config.StrategyTwoStage:
		if deps.Scorer == nil || deps.Classifier == nil {
			return nil, fmt.Errorf("relevance: two_stage strategy requires embedding and classification")
		}
		return NewTwoStage(deps.Scorer, deps.Classifier, cfg.Thresholds, cfg.TwoStage, embeddingBatch, deps.Workers), nil
	case config.StrategyCascade:
		if deps.Classifier == nil {
			return nil, fmt.Errorf("relevance: cascade strategy requires classification")
		}
		return NewCascade(deps.Classifier, cfg.Thresholds, cfg.Cascade, deps.Workers), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

func filterRate(before, after int) float64 {
	if before <= 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}

func kindLabel(items []model.RawItem) string {
	kinds := map[model.ItemKind]bool{}
	for _, it := range items {
		kinds[it.Kind] = true
	}
	switch {
	case len(kinds) == 1 && kinds[model.KindComment]:
		return "comments"
	case kinds[model.KindComment]:
		return "mixed"
	default:
		return "posts"
	}
}

func embedText(it model.RawItem) string {
	return llm.Truncate(it.Text(), 2000)
}
