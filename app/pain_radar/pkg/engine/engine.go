package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/cluster"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/discovery"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/errs"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/expansion"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/keywords"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/pain"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/prefilter"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/relevance"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/factory"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/storage"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// maxEvidence 报告中保留的 RELATED/ADJACENT 条目数
const maxEvidence = 50

// Deps 引擎依赖的各个组件，Store 可为空
type Deps struct {
	Keywords   *keywords.Extractor
	Discoverer discovery.Discoverer
	Fetcher    source.Fetcher
	Filter     *relevance.Filter
	Analyzer   *pain.Analyzer
	Weigher    *pain.Weigher
	Praise     *pain.PraiseFilter
	Clusterer  *cluster.Clusterer
	Store      storage.Store
}

// Engine 核心处理引擎，请求之间不共享可变状态
type Engine struct {
	cfg  *config.Config
	deps Deps
}

// New 使用给定组件创建引擎
func New(cfg *config.Config, deps Deps) *Engine {
	return &Engine{cfg: cfg, deps: deps}
}

// NewEngine 按配置创建全部组件
func NewEngine(ctx context.Context, cfg *config.Config, store storage.Store) (*Engine, error) {
	chatModel, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	limiter := llm.NewLimiter(cfg.Concurrency)
	completer := llm.NewClient(chatModel, limiter, cfg.LLM.MaxRetries)
	classifier := llm.NewClassifier(completer)
	scorer := llm.NewScorer(llm.NewHTTPEmbedder(cfg.Embedding, cfg.LLM), limiter)

	workers := cfg.Concurrency.BatchWorkers
	strategy, err := relevance.NewStrategy(cfg.Filter, cfg.Embedding.BatchSize, relevance.Deps{
		Scorer:     scorer,
		Classifier: classifier,
		Workers:    workers,
	})
	if err != nil {
		return nil, err
	}
	cascade := relevance.NewCascade(classifier, cfg.Filter.Thresholds, cfg.Filter.Cascade, workers)

	// 数据源单独限流，不占用模型调用的配额
	sourceLimiter := llm.NewLimiter(cfg.Concurrency)

	return New(cfg, Deps{
		Keywords: keywords.NewExtractor(keywords.NewLLMSource(completer)),
		Discoverer: discovery.Chain{
			discovery.NewLLMDiscoverer(completer),
			discovery.NewStatic(cfg.Sources.Communities),
		},
		Fetcher:   factory.NewFetcher(cfg.Sources, sourceLimiter),
		Filter:    relevance.NewFilter(strategy, cascade),
		Analyzer:  pain.NewAnalyzer(cfg.Pain.ExcerptLength),
		Weigher:   pain.NewWeigher(pain.NewLLMEstimator(completer), cfg.Pain.MinWeight, cfg.Pain.MaxWeight),
		Praise:    pain.NewPraiseFilter(scorer, cfg.Pain.PraiseMargin, cfg.Embedding.BatchSize),
		Clusterer: cluster.NewClusterer(scorer, cfg.Clustering, cfg.Embedding.BatchSize),
		Store:     store,
	}), nil
}

// RunOptions 运行选项
type RunOptions struct {
	JobID      string // 为空时自动生成
	Hypothesis model.Hypothesis
	// Communities 用户指定的社区，非空时不做社区发现和扩展
	Communities      []string
	ProgressCallback func(status string, progress int)
}

func (o RunOptions) progress(status string, p int) {
	if o.ProgressCallback != nil {
		o.ProgressCallback(status, p)
	}
}

// Run 执行一次研究任务。抓取、过滤和持久化失败返回带分类标签的错误，
// 其余增强步骤失败只降级。
func (e *Engine) Run(ctx context.Context, opts RunOptions) (report *model.Report, err error) {
	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	log := logger.WithJob(jobID)
	hyp := opts.Hypothesis

	usage := llm.NewUsage()
	report = &model.Report{JobID: jobID, Hypothesis: hyp, StartedAt: time.Now()}
	defer func() {
		summary := usage.Close()
		if report != nil {
			report.Usage = summary
		}
		log.Infof("用量: %d 次补全, %d 次向量, %d 次失败, %d tokens",
			summary.CompletionCalls, summary.EmbeddingCalls, summary.FailedCalls, summary.TotalTokens())
	}()

	log.Infof("开始分析假设: %s", hyp.Text)
	opts.progress("keywords", 5)
	kw := e.deps.Keywords.Extract(ctx, usage, hyp)
	report.Keywords = kw
	query := relevance.Query{Hypothesis: hyp, Keywords: kw}

	opts.progress("discovery", 10)
	fixed := len(opts.Communities) > 0
	sources := e.sources(ctx, usage, query, opts.Communities)
	if len(sources) == 0 {
		return nil, errs.SourceFetch(fmt.Errorf("no sources to search"))
	}

	opts.progress("fetching", 20)
	fetchReq := &source.Request{
		Sources:   sources,
		Keywords:  searchTerms(kw),
		Limit:     e.cfg.Sources.FetchLimit,
		RangeDays: e.cfg.Sources.RangeDays,
	}
	resp, err := e.deps.Fetcher.Fetch(ctx, fetchReq)
	if err != nil {
		return nil, errs.SourceFetch(err)
	}
	report.Sources = resp.SourcesUsed
	report.StaleWarning = resp.StaleWarning
	log.Infof("抓取到 %d 条数据，来源: %v", len(resp.Items), resp.SourcesUsed)

	found := relevance.Found{}
	seen := make(map[string]bool, len(resp.Items))
	for _, it := range resp.Items {
		seen[it.ID] = true
	}
	process := func(ctx context.Context, items []model.RawItem) (*relevance.Outcome, error) {
		kept, removed := prefilter.Apply(items, kw.Exclude)
		found.PrefilterRemoved += removed
		posts, comments := split(items)
		found.PostsFound += len(posts)
		found.CommentsFound += len(comments)
		kp, kc := split(kept)
		return e.deps.Filter.Run(ctx, usage, kp, kc, query)
	}

	opts.progress("filtering", 40)
	outcome, err := process(ctx, resp.Items)
	if err != nil {
		return nil, errs.Classification(err)
	}
	counts := outcome.TierCounts()
	log.Infof("过滤完成: CORE=%d STRONG=%d RELATED=%d ADJACENT=%d NOISE=%d",
		counts[tier.Core], counts[tier.Strong], counts[tier.Related], counts[tier.Adjacent], counts[tier.Noise])

	if expansion.ShouldExpand(counts, e.cfg.Expansion, fixed) {
		opts.progress("expanding", 55)
		loop := expansion.NewLoop(e.cfg.Expansion, e.deps.Discoverer, e.deps.Fetcher, process)
		exp := loop.Run(ctx, usage, expansion.Input{
			Query:       query,
			Communities: sources,
			Keywords:    fetchReq.Keywords,
			Limit:       fetchReq.Limit,
			RangeDays:   fetchReq.RangeDays,
			Counts:      counts,
			Fixed:       fixed,
			Seen:        seen,
		})
		report.Expansion = exp.Attempts
		report.Sources = append(report.Sources, exp.Sources...)
		outcome.Merge(exp.Outcome)
	}
	report.Metrics = relevance.BuildMetrics(e.deps.Filter.StrategyName(), found, outcome)
	report.Decisions = outcome.Decisions()

	opts.progress("analyzing", 70)
	scored := outcome.Scored()
	signals := e.deps.Analyzer.Analyze(scored)
	signals = e.deps.Weigher.Apply(ctx, usage, hyp, signals)
	if hyp.AppName != "" && e.deps.Praise != nil {
		signals = e.deps.Praise.Filter(ctx, usage, signals)
	}
	report.Signals = signals
	report.Evidence = evidence(scored)

	opts.progress("clustering", 85)
	if e.deps.Clusterer != nil {
		report.Clusters = e.deps.Clusterer.Cluster(ctx, usage, scored, hyp.AppName)
	}
	report.FinishedAt = time.Now()

	if e.deps.Store != nil {
		opts.progress("saving", 95)
		report.Usage = usage.Snapshot()
		if err := e.deps.Store.SaveResult(ctx, jobID, report); err != nil {
			return nil, errs.Persistence(err)
		}
	}
	opts.progress("done", 100)
	log.Infof("完成: %d 条痛点信号, 质量 %s", len(report.Signals), report.Metrics.QualityLevel)
	return report, nil
}

// sources 用户指定社区时直接使用，否则通过发现补充；分析应用时加入其评价
func (e *Engine) sources(ctx context.Context, usage *llm.Usage, q relevance.Query, fixed []string) []string {
	var out []string
	if len(fixed) > 0 {
		out = discovery.Normalize(fixed, nil, 0)
	} else {
		found, err := e.deps.Discoverer.Discover(ctx, usage, discovery.Request{
			Hypothesis: q.Hypothesis,
			Keywords:   q.Keywords,
			Max:        e.cfg.Expansion.MaxNewSources,
		})
		if err != nil {
			logger.Log.Warnf("社区发现失败: %v", err)
		}
		out = append(found, source.HackerNews)
		if e.cfg.Sources.Web.Provider != "" {
			out = append(out, source.Web)
		}
		out = discovery.Normalize(out, nil, 0)
	}
	if id := q.Hypothesis.AppID; id != "" {
		out = append(out, model.AppSource(id))
	}
	return out
}

// searchTerms 主关键词加少量次关键词
func searchTerms(kw model.ExtractedKeywords) []string {
	terms := append([]string(nil), kw.Primary...)
	if n := min(len(kw.Secondary), 3); n > 0 {
		terms = append(terms, kw.Secondary[:n]...)
	}
	return terms
}

// split 评论单独走级联，帖子与评价走配置的策略
func split(items []model.RawItem) (posts, comments []model.RawItem) {
	for _, it := range items {
		if it.Kind == model.KindComment {
			comments = append(comments, it)
		} else {
			posts = append(posts, it)
		}
	}
	return posts, comments
}

func evidence(scored []model.ScoredItem) []model.ScoredItem {
	var out []model.ScoredItem
	for _, it := range scored {
		if it.Tier == tier.Related || it.Tier == tier.Adjacent {
			out = append(out, it)
			if len(out) >= maxEvidence {
				break
			}
		}
	}
	return out
}
