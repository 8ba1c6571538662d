package relevance

import (
	"context"
	"math"
	"sort"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// TwoStage embedding 初筛后由模型复核，只有复核通过的条目成为 CORE
type TwoStage struct {
	scorer     *llm.Scorer
	classifier *llm.Classifier
	thresholds tier.Thresholds
	cfg        config.TwoStageConfig
	embedBatch int
	workers    int
}

// NewTwoStage 创建两阶段策略
func NewTwoStage(scorer *llm.Scorer, classifier *llm.Classifier, th tier.Thresholds,
	cfg config.TwoStageConfig, embedBatch, workers int) *TwoStage {
	return &TwoStage{
		scorer:     scorer,
		classifier: classifier,
		thresholds: th,
		cfg:        cfg,
		embedBatch: embedBatch,
		workers:    workers,
	}
}

func (t *TwoStage) Name() string { return "two_stage" }

type candidate struct {
	idx    int
	score  float64
	forced bool // embedding 失败保留，不受数量上限约束
}

func (t *TwoStage) Filter(ctx context.Context, usage *llm.Usage, items []model.RawItem, q Query) (*Result, error) {
	res := newResult(len(items))
	if len(items) == 0 {
		return res, nil
	}
	kind := kindLabel(items)

	scores, err := similarity(ctx, t.scorer, usage, items, q, t.embedBatch, t.workers)
	if err != nil {
		return nil, err
	}

	var ranked, forced []candidate
	for i, s := range scores {
		switch {
		case s < 0:
			forced = append(forced, candidate{idx: i, score: t.thresholds.Strong, forced: true})
		case s >= t.cfg.CandidateThreshold:
			ranked = append(ranked, candidate{idx: i, score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if t.cfg.MaxCandidates > 0 && len(ranked) > t.cfg.MaxCandidates {
		ranked = ranked[:t.cfg.MaxCandidates]
	}
	cands := append(ranked, forced...)
	res.stage(StageEmbedding, kind, len(items), len(cands))

	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = items[c.idx].Text()
	}
	task := llm.Task{
		Question: "Does this item describe a real problem or frustration relevant to the hypothesis?",
		Context:  q.Hypothesis.Statement(),
	}
	verdicts, failed := classifyBatches(ctx, t.classifier, usage, task, texts, t.cfg.BatchSize, t.workers, StageVerification)

	verified := make(map[int]float64, len(cands))
	for i, c := range cands {
		it := items[c.idx]
		pass, reason := verdicts[i].Pass, ""
		switch {
		case failed[i]:
			pass, reason = true, "verification failed, kept"
		case !verdicts[i].Decided:
			pass, reason = true, "undecided, kept"
		}
		if pass {
			verified[c.idx] = math.Max(c.score, t.thresholds.Core)
		}
		res.Decisions = append(res.Decisions, model.RelevanceDecision{
			ItemID: it.ID, Kind: it.Kind, Stage: StageVerification,
			Passed: pass, Score: c.score, Reason: reason,
		})
	}
	res.stage(StageVerification, kind, len(cands), len(verified))

	for i, it := range items {
		if s, ok := verified[i]; ok {
			res.keep(it, s, tier.Core)
			continue
		}
		res.keep(it, math.Max(scores[i], 0), tier.Noise)
	}
	res.sortItems()
	logger.Log.Infof("[two_stage] %d items -> %d candidates -> %d verified", len(items), len(cands), len(verified))
	return res, nil
}
