package pain

import (
	"context"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

const (
	praiseAnchor    = "I love this app. It works perfectly, it is easy to use and I recommend it to everyone. Five stars."
	complaintAnchor = "This app is frustrating. It keeps breaking, it is missing features I need and it wastes my time."
)

// PraiseFilter 剔除没有痛点词、语义上更接近好评的信号
type PraiseFilter struct {
	scorer     *llm.Scorer
	margin     float64
	embedBatch int
}

// NewPraiseFilter margin 为好评相似度需要超过差评相似度的幅度
func NewPraiseFilter(scorer *llm.Scorer, margin float64, embedBatch int) *PraiseFilter {
	return &PraiseFilter{scorer: scorer, margin: margin, embedBatch: embedBatch}
}

// Filter 任何失败都原样返回输入
func (f *PraiseFilter) Filter(ctx context.Context, usage *llm.Usage, signals []model.PainSignal) []model.PainSignal {
	var idx []int
	texts := []string{praiseAnchor, complaintAnchor}
	for i, s := range signals {
		if s.SolutionSeeking || s.WillingnessToPay || HasPainMarker(s.Excerpt) {
			continue
		}
		idx = append(idx, i)
		texts = append(texts, s.Excerpt)
	}
	if len(idx) == 0 || f.scorer == nil {
		return signals
	}

	vecs, err := f.scorer.EmbedBatched(ctx, usage, texts, f.embedBatch)
	if err != nil {
		logger.Log.Warnf("[praise] embedding failed, keeping all signals: %v", err)
		return signals
	}

	drop := make(map[int]bool, len(idx))
	for j, i := range idx {
		v := vecs[j+2]
		if llm.Cosine(v, vecs[0])-llm.Cosine(v, vecs[1]) > f.margin {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return signals
	}
	out := make([]model.PainSignal, 0, len(signals)-len(drop))
	for i, s := range signals {
		if !drop[i] {
			out = append(out, s)
		}
	}
	logger.Log.Infof("[praise] removed %d praise-only signals", len(drop))
	return out
}
