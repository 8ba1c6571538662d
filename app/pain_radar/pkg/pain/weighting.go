package pain

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

// SourceRelevanceEstimator 估计每个数据源与假设的相关程度，1.0 为中性
type SourceRelevanceEstimator interface {
	EstimateSourceWeights(ctx context.Context, usage *llm.Usage, hyp model.Hypothesis, sources []string) (map[string]float64, error)
}

// Weigher 按数据源加权痛点分数
type Weigher struct {
	estimator SourceRelevanceEstimator
	min, max  float64
}

// NewWeigher 权重限制在 [min,max]
func NewWeigher(e SourceRelevanceEstimator, min, max float64) *Weigher {
	return &Weigher{estimator: e, min: min, max: max}
}

// Apply 返回加权后的新切片。已经加权过的信号（SourceWeight 非零）保持不变，
// 估计失败时所有权重为 1.0。
func (w *Weigher) Apply(ctx context.Context, usage *llm.Usage, hyp model.Hypothesis, signals []model.PainSignal) []model.PainSignal {
	out := make([]model.PainSignal, len(signals))
	copy(out, signals)

	var sources []string
	seen := map[string]bool{}
	for _, s := range out {
		if s.SourceWeight == 0 && !seen[s.Source] {
			seen[s.Source] = true
			sources = append(sources, s.Source)
		}
	}
	if len(sources) == 0 {
		return out
	}
	sort.Strings(sources)

	weights := map[string]float64{}
	if w.estimator != nil {
		est, err := w.estimator.EstimateSourceWeights(ctx, usage, hyp, sources)
		if err != nil {
			logger.Log.Warnf("[weighting] source weights unavailable, using 1.0: %v", err)
		} else {
			weights = est
		}
	}

	for i := range out {
		if out[i].SourceWeight != 0 {
			continue
		}
		wt := w.clamp(weights[out[i].Source])
		out[i].SourceWeight = wt
		out[i].Score = ClampScore(out[i].Score * wt)
	}
	sortSignals(out)
	return out
}

// clamp 缺失或非法的权重视为 1.0
func (w *Weigher) clamp(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	return math.Min(math.Max(v, w.min), w.max)
}

// LLMEstimator 让模型为每个数据源给出权重
type LLMEstimator struct {
	completer llm.Completer
}

// NewLLMEstimator 创建基于模型的权重估计
func NewLLMEstimator(c llm.Completer) *LLMEstimator {
	return &LLMEstimator{completer: c}
}

func (e *LLMEstimator) EstimateSourceWeights(ctx context.Context, usage *llm.Usage, hyp model.Hypothesis, sources []string) (map[string]float64, error) {
	prompt := fmt.Sprintf("Hypothesis:\n%s\n\nSources: %s\n\n"+
		"For each source, rate how likely its members are the people described by the hypothesis, "+
		"as a weight between 0.5 (unlikely) and 1.5 (very likely). "+
		`Respond with a JSON object mapping each source to its weight, e.g. {"r/example": 1.2}.`,
		hyp.Statement(), strings.Join(sources, ", "))

	raw, err := e.completer.Complete(ctx, usage, "You assess online communities for customer research.", prompt)
	if err != nil {
		return nil, err
	}
	var weights map[string]float64
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &weights); err != nil {
		return nil, fmt.Errorf("parse source weights %q: %w", llm.Truncate(raw, 120), err)
	}
	return weights, nil
}
