package relevance

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

var firstPersonMarkers = []string{"i ", "i'm", "i've", "my ", "me ", "we ", "our "}

var removedBodies = map[string]bool{"[removed]": true, "[deleted]": true}

// Cascade 免费的质量门与预排序，之后是领域门和问题门两道模型判定。
// 评论固定走这条路径。
type Cascade struct {
	classifier *llm.Classifier
	thresholds tier.Thresholds
	cfg        config.CascadeConfig
	workers    int
}

// NewCascade 创建级联策略
func NewCascade(classifier *llm.Classifier, th tier.Thresholds, cfg config.CascadeConfig, workers int) *Cascade {
	return &Cascade{classifier: classifier, thresholds: th, cfg: cfg, workers: workers}
}

func (c *Cascade) Name() string { return "cascade" }

// Filter 帖子/评价和评论分开处理，各自使用对应的预排序上限与批大小
func (c *Cascade) Filter(ctx context.Context, usage *llm.Usage, items []model.RawItem, q Query) (*Result, error) {
	res := newResult(len(items))
	if len(items) == 0 {
		return res, nil
	}

	var posts, comments []model.RawItem
	for _, it := range items {
		if it.Kind == model.KindComment {
			comments = append(comments, it)
		} else {
			posts = append(posts, it)
		}
	}
	c.run(ctx, usage, posts, q, "posts", c.cfg.PrerankPosts, c.cfg.PostBatchSize, res)
	c.run(ctx, usage, comments, q, "comments", c.cfg.PrerankComments, c.cfg.CommentBatchSize, res)
	res.sortItems()
	return res, nil
}

func (c *Cascade) run(ctx context.Context, usage *llm.Usage, items []model.RawItem, q Query,
	kind string, topN, batchSize int, res *Result) {
	if len(items) == 0 {
		return
	}

	passed := make(map[string]float64)
	defer func() {
		for _, it := range items {
			if s, ok := passed[it.ID]; ok {
				res.keep(it, s, tier.Core)
			} else {
				res.keep(it, 0, tier.Noise)
			}
		}
	}()

	quality := make([]model.RawItem, 0, len(items))
	for _, it := range items {
		if c.passesQuality(it) {
			quality = append(quality, it)
		}
	}
	res.stage(StageQuality, kind, len(items), len(quality))

	ranked := prerank(quality, q.Keywords.All(), topN)
	res.stage(StagePrerank, kind, len(quality), len(ranked))

	domain := c.gate(ctx, usage, ranked, StageDomain, llm.Task{
		Question: "Is this item about the same domain, audience or activity as the hypothesis?",
		Context:  q.Hypothesis.Statement(),
	}, batchSize, res)
	res.stage(StageDomain, kind, len(ranked), len(domain))

	problem := c.gate(ctx, usage, domain, StageProblem, llm.Task{
		Question: "Does the author describe a problem, frustration or unmet need they personally experience?",
		Context:  q.Hypothesis.Statement(),
	}, batchSize, res)
	res.stage(StageProblem, kind, len(domain), len(problem))

	for _, sc := range problem {
		passed[sc.Item.ID] = math.Max(sc.Score, c.thresholds.Core)
	}
	logger.Log.Infof("[cascade] %s: %d -> quality %d -> prerank %d -> domain %d -> problem %d",
		kind, len(items), len(quality), len(ranked), len(domain), len(problem))
}

func (c *Cascade) passesQuality(it model.RawItem) bool {
	body := strings.TrimSpace(it.Body)
	if removedBodies[strings.ToLower(body)] {
		return false
	}
	min := c.cfg.MinPostLength
	switch it.Kind {
	case model.KindComment:
		min = c.cfg.MinCommentLength
	case model.KindReview:
		min = c.cfg.MinReviewLength
	}
	if len([]rune(strings.TrimSpace(it.Text()))) < min {
		return false
	}
	if it.IsCommunity() && it.Engagement < c.cfg.MinEngagement {
		return false
	}
	return true
}

// gate 对 items 做一轮 yes/no 判定，返回通过的条目，Score 为模型给出的分数
func (c *Cascade) gate(ctx context.Context, usage *llm.Usage, items []model.ScoredItem, stage string,
	task llm.Task, batchSize int, res *Result) []model.ScoredItem {
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Item.Text()
	}
	verdicts, failed := classifyBatches(ctx, c.classifier, usage, task, texts, batchSize, c.workers, stage)

	out := make([]model.ScoredItem, 0, len(items))
	for i, it := range items {
		v := verdicts[i]
		pass, reason := v.Pass, ""
		switch {
		case failed[i]:
			pass, reason = true, "batch failed, kept"
		case !v.Decided:
			pass, reason = true, "undecided, kept"
		}
		res.Decisions = append(res.Decisions, model.RelevanceDecision{
			ItemID: it.Item.ID, Kind: it.Item.Kind, Stage: stage,
			Passed: pass, Score: v.Score, Reason: reason,
		})
		if pass {
			out = append(out, model.ScoredItem{Item: it.Item, Score: v.Score})
		}
	}
	return out
}

// prerank 免费排序：互动量、第一人称、关键词命中，保留前 topN
func prerank(items []model.RawItem, keywords []string, topN int) []model.ScoredItem {
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}

	out := make([]model.ScoredItem, len(items))
	for i, it := range items {
		out[i] = model.ScoredItem{Item: it, Score: prerankScore(it, kw)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func prerankScore(it model.RawItem, keywords []string) float64 {
	text := " " + strings.ToLower(it.Text()) + " "
	engagement := it.Engagement
	if it.Kind == model.KindReview {
		// 差评更可能是痛点
		engagement = 6 - it.Engagement
	}
	score := math.Log1p(math.Max(float64(engagement), 0))
	for _, m := range firstPersonMarkers {
		if strings.Contains(text, " "+m) {
			score++
		}
	}
	for _, k := range keywords {
		if strings.Contains(text, k) {
			score++
		}
	}
	return score
}
