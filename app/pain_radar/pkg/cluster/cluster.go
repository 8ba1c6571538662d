// Package cluster 把相似的证据分组，便于阅读和去重。失败时返回空结果。
package cluster

import (
	"context"
	"sort"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/relevance"
)

// Clusterer 基于 embedding 的贪心质心聚类
type Clusterer struct {
	scorer     *llm.Scorer
	cfg        config.ClusteringConfig
	embedBatch int
}

// NewClusterer embedBatch 为单次向量化请求的最大条数
func NewClusterer(scorer *llm.Scorer, cfg config.ClusteringConfig, embedBatch int) *Clusterer {
	return &Clusterer{scorer: scorer, cfg: cfg, embedBatch: embedBatch}
}

type group struct {
	members  []int
	centroid []float64
}

// Eligible CORE/STRONG 的评价，以及提到应用名的社区内容。没有分析具体应用时社区内容全部入选。
func Eligible(items []model.ScoredItem, appName string) []model.ScoredItem {
	gate := relevance.NewAppGate(appName, "")
	var out []model.ScoredItem
	for _, it := range items {
		if !it.Tier.FeedsAnalysis() {
			continue
		}
		if it.Item.Kind == model.KindReview || gate == nil || gate.Mentions(it.Item) {
			out = append(out, it)
		}
	}
	return out
}

// Cluster 入选条目少于最小簇大小时不聚类
func (c *Clusterer) Cluster(ctx context.Context, usage *llm.Usage, items []model.ScoredItem, appName string) []model.Cluster {
	eligible := Eligible(items, appName)
	if len(eligible) < c.cfg.MinClusterSize || c.scorer == nil {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Score > eligible[j].Score })

	texts := make([]string, len(eligible))
	for i, it := range eligible {
		texts[i] = llm.Truncate(it.Item.Text(), 2000)
	}
	vecs, err := c.scorer.EmbedBatched(ctx, usage, texts, c.embedBatch)
	if err != nil {
		logger.Log.Warnf("[cluster] embedding failed, skipping clustering: %v", err)
		return nil
	}

	var groups []*group
	for i, v := range vecs {
		var best *group
		bestSim := c.cfg.Similarity
		for _, g := range groups {
			if s := llm.Cosine(v, g.centroid); s >= bestSim {
				best, bestSim = g, s
			}
		}
		if best == nil {
			groups = append(groups, &group{members: []int{i}, centroid: append([]float64(nil), v...)})
			continue
		}
		best.members = append(best.members, i)
		updateCentroid(best.centroid, v, len(best.members))
	}

	var out []model.Cluster
	for _, g := range groups {
		if len(g.members) < c.cfg.MinClusterSize {
			continue
		}
		out = append(out, build(g, eligible, vecs))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Size > out[j].Size })
	if c.cfg.MaxClusters > 0 && len(out) > c.cfg.MaxClusters {
		out = out[:c.cfg.MaxClusters]
	}
	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

// updateCentroid 增量更新均值，n 为加入 v 之后的成员数
func updateCentroid(centroid, v []float64, n int) {
	for k := range centroid {
		centroid[k] += (v[k] - centroid[k]) / float64(n)
	}
}

func build(g *group, items []model.ScoredItem, vecs [][]float64) model.Cluster {
	cl := model.Cluster{Size: len(g.members)}
	bestSim, sum := -2.0, 0.0
	for _, m := range g.members {
		cl.ItemIDs = append(cl.ItemIDs, items[m].Item.ID)
		s := llm.Cosine(vecs[m], g.centroid)
		sum += s
		if s > bestSim {
			bestSim = s
			cl.Representative = llm.Truncate(items[m].Item.Text(), 200)
		}
	}
	cl.Cohesion = sum / float64(len(g.members))
	return cl
}
