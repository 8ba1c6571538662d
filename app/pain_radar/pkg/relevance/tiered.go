package relevance

import (
	"context"
	"fmt"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// Tiered 纯 embedding 打分定档，不调用对话模型
type Tiered struct {
	scorer     *llm.Scorer
	thresholds tier.Thresholds
	batchSize  int
	workers    int
}

// NewTiered 创建分档策略
func NewTiered(scorer *llm.Scorer, th tier.Thresholds, batchSize, workers int) *Tiered {
	return &Tiered{scorer: scorer, thresholds: th, batchSize: batchSize, workers: workers}
}

func (t *Tiered) Name() string { return "tiered" }

// Filter 假设向量化失败直接返回错误；条目批次失败时该批按 STRONG 下限保留
func (t *Tiered) Filter(ctx context.Context, usage *llm.Usage, items []model.RawItem, q Query) (*Result, error) {
	res := newResult(len(items))
	if len(items) == 0 {
		return res, nil
	}

	scores, err := similarity(ctx, t.scorer, usage, items, q, t.batchSize, t.workers)
	if err != nil {
		return nil, err
	}

	kept := 0
	for i, it := range items {
		s, tr, reason := scores[i], tier.Noise, ""
		if s < 0 {
			s, tr, reason = t.thresholds.Strong, tier.Strong, "embedding failed, kept"
		} else {
			tr = t.thresholds.Classify(s)
		}
		res.keep(it, s, tr)
		if tr != tier.Noise {
			kept++
		}
		res.Decisions = append(res.Decisions, model.RelevanceDecision{
			ItemID: it.ID, Kind: it.Kind, Stage: StageEmbedding,
			Passed: tr != tier.Noise, Score: s, Tier: tr.String(), Reason: reason,
		})
	}
	res.stage(StageEmbedding, kindLabel(items), len(items), kept)
	res.sortItems()
	logger.Log.Infof("[tiered] %d items -> %d above noise", len(items), kept)
	return res, nil
}

// similarity 返回每个条目与假设的相似度（截断到 [0,1]），所在批次失败时为 -1
func similarity(ctx context.Context, s *llm.Scorer, usage *llm.Usage, items []model.RawItem, q Query, batchSize, workers int) ([]float64, error) {
	hv, err := s.Embed(ctx, usage, []string{q.Text()})
	if err != nil {
		return nil, fmt.Errorf("embed hypothesis: %w", err)
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = embedText(it)
	}
	vecs := embedBatches(ctx, s, usage, texts, batchSize, workers)

	out := make([]float64, len(items))
	for i, v := range vecs {
		if v == nil {
			out[i] = -1
			continue
		}
		out[i] = tier.Clamp(llm.Cosine(hv[0], v))
	}
	return out, nil
}
