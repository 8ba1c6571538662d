package relevance

import (
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

// Found 过滤前的原始数量
type Found struct {
	PostsFound       int
	CommentsFound    int
	PrefilterRemoved int
}

// BuildMetrics 与策略无关的过滤统计，只在请求末尾计算一次
func BuildMetrics(strategy string, found Found, o *Outcome) model.FilteringMetrics {
	m := model.FilteringMetrics{
		Strategy:         strategy,
		PostsFound:       found.PostsFound,
		CommentsFound:    found.CommentsFound,
		PrefilterRemoved: found.PrefilterRemoved,
		AppGateRemoved:   o.AppGateRemoved,
		TierCounts:       o.TierCounts(),
	}

	var rates []float64
	if o.Posts != nil {
		m.PostsAnalyzed = o.Posts.Input
		m.PostsFiltered = o.Posts.Input - len(o.Posts.Items)
		m.PostFilterRate = filterRate(o.Posts.Input, len(o.Posts.Items))
		m.Stages = append(m.Stages, o.Posts.Stages...)
		if m.PostsAnalyzed > 0 {
			rates = append(rates, m.PostFilterRate)
		}
	}
	if o.Comments != nil {
		m.CommentsAnalyzed = o.Comments.Input
		m.CommentsFiltered = o.Comments.Input - len(o.Comments.Items)
		m.CommentFilterRate = filterRate(o.Comments.Input, len(o.Comments.Items))
		m.Stages = append(m.Stages, o.Comments.Stages...)
		if m.CommentsAnalyzed > 0 {
			rates = append(rates, m.CommentFilterRate)
		}
	}
	m.QualityLevel = QualityLevel(rates)
	return m
}

// QualityLevel 平均过滤率越高说明噪声被剔除得越彻底
func QualityLevel(rates []float64) model.QualityLevel {
	if len(rates) == 0 {
		return model.QualityLow
	}
	var sum float64
	for _, r := range rates {
		sum += r
	}
	avg := sum / float64(len(rates))
	switch {
	case avg >= 60:
		return model.QualityHigh
	case avg >= 30:
		return model.QualityMedium
	default:
		return model.QualityLow
	}
}
