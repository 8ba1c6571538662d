package relevance

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
)

// batchOutcome 单批的结果，err 非空时 verdicts 为空
type batchOutcome struct {
	start    int
	verdicts []llm.Verdict
	err      error
}

// chunk 把 [0,n) 切成不超过 size 的区间
func chunk(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for s := 0; s < n; s += size {
		e := s + size
		if e > n {
			e = n
		}
		out = append(out, [2]int{s, e})
	}
	return out
}

// classifyBatches 并发分批判定，单批失败不影响其它批次。
// 返回值按输入位置对齐：failed[i] 为 true 表示该条目所在批次失败。
func classifyBatches(ctx context.Context, c *llm.Classifier, usage *llm.Usage, task llm.Task,
	texts []string, size, workers int, stage string) (verdicts []llm.Verdict, failed []bool) {
	verdicts = make([]llm.Verdict, len(texts))
	failed = make([]bool, len(texts))
	if len(texts) == 0 {
		return verdicts, failed
	}

	ranges := chunk(len(texts), size)
	outcomes := make([]batchOutcome, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for i, r := range ranges {
		g.Go(func() error {
			v, err := c.Classify(gctx, usage, task, texts[r[0]:r[1]])
			outcomes[i] = batchOutcome{start: r[0], verdicts: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		r := ranges[i]
		if o.err != nil {
			logger.Log.Warnf("[%s] batch %d-%d failed, keeping items: %v", stage, r[0], r[1], o.err)
			for j := r[0]; j < r[1]; j++ {
				failed[j] = true
			}
			continue
		}
		copy(verdicts[r[0]:r[1]], o.verdicts)
	}
	return verdicts, failed
}

// embedBatches 并发分批向量化。失败批次对应位置为 nil。
func embedBatches(ctx context.Context, s *llm.Scorer, usage *llm.Usage, texts []string, size, workers int) [][]float64 {
	vecs := make([][]float64, len(texts))
	if len(texts) == 0 {
		return vecs
	}
	ranges := chunk(len(texts), size)

	g, gctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)
	for _, r := range ranges {
		g.Go(func() error {
			v, err := s.Embed(gctx, usage, texts[r[0]:r[1]])
			if err != nil {
				logger.Log.Warnf("[embedding] batch %d-%d failed: %v", r[0], r[1], err)
				return nil
			}
			copy(vecs[r[0]:r[1]], v)
			return nil
		})
	}
	_ = g.Wait()
	return vecs
}
