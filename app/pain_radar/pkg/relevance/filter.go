package relevance

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// Filter 帖子/评价走配置的策略，评论固定走级联，两路并发
type Filter struct {
	posts    Strategy
	comments Strategy
}

// NewFilter comments 必须是级联策略
func NewFilter(posts Strategy, comments *Cascade) *Filter {
	return &Filter{posts: posts, comments: comments}
}

// StrategyName 帖子使用的策略名
func (f *Filter) StrategyName() string {
	return f.posts.Name()
}

// Outcome 一次过滤（含应用名门）的完整结果
type Outcome struct {
	Posts          *Result
	Comments       *Result
	AppGateRemoved int
}

// Run 任一路失败即返回错误；批次级别的失败已在策略内部保留条目
func (f *Filter) Run(ctx context.Context, usage *llm.Usage, posts, comments []model.RawItem, q Query) (*Outcome, error) {
	out := &Outcome{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := f.posts.Filter(gctx, usage, posts, q)
		if err != nil {
			return fmt.Errorf("filter posts: %w", err)
		}
		out.Posts = res
		return nil
	})
	g.Go(func() error {
		res, err := f.comments.Filter(gctx, usage, comments, q)
		if err != nil {
			return fmt.Errorf("filter comments: %w", err)
		}
		out.Comments = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if gate := NewAppGate(q.Hypothesis.AppName, q.Hypothesis.AppID); gate != nil {
		out.AppGateRemoved += gate.Apply(out.Posts, "posts")
		out.AppGateRemoved += gate.Apply(out.Comments, "comments")
	}
	return out, nil
}

// Merge 合并扩展轮的结果
func (o *Outcome) Merge(other *Outcome) {
	if other == nil {
		return
	}
	if o.Posts == nil {
		o.Posts = newResult(0)
	}
	if o.Comments == nil {
		o.Comments = newResult(0)
	}
	o.Posts.Merge(other.Posts)
	o.Comments.Merge(other.Comments)
	o.AppGateRemoved += other.AppGateRemoved
}

// TierCounts 帖子与评论合计，每个输入条目恰好计入一个档位
func (o *Outcome) TierCounts() tier.Counts {
	c := tier.Counts{}
	for _, r := range []*Result{o.Posts, o.Comments} {
		if r != nil {
			c.Add(r.TierCounts)
		}
	}
	return c
}

// Scored 非 NOISE 条目，按分数降序
func (o *Outcome) Scored() []model.ScoredItem {
	var out []model.ScoredItem
	for _, r := range []*Result{o.Posts, o.Comments} {
		if r != nil {
			out = append(out, r.Items...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Decisions 审计记录，帖子在前
func (o *Outcome) Decisions() []model.RelevanceDecision {
	var out []model.RelevanceDecision
	for _, r := range []*Result{o.Posts, o.Comments} {
		if r != nil {
			out = append(out, r.Decisions...)
		}
	}
	return out
}
