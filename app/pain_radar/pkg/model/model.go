package model

import (
	"strings"
	"time"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// ItemKind 原始条目的来源类型
type ItemKind string

const (
	KindPost    ItemKind = "post"
	KindComment ItemKind = "comment"
	KindReview  ItemKind = "review"
)

// RawItem 一条帖子、评论或应用商店评价，抓取后不可修改
type RawItem struct {
	ID         string    `json:"id"`
	Kind       ItemKind  `json:"kind"`
	Title      string    `json:"title,omitempty"`
	Body       string    `json:"body"`
	Source     string    `json:"source"` // 社区名 (r/xxx, hackernews) 或 app:<id>
	URL        string    `json:"url,omitempty"`
	Engagement int       `json:"engagement"` // 点赞数；评价为 1-5 星
	CreatedAt  time.Time `json:"created_at"`
}

// Text 标题与正文拼接
func (r RawItem) Text() string {
	if r.Title == "" {
		return r.Body
	}
	if r.Body == "" {
		return r.Title
	}
	return r.Title + "\n" + r.Body
}

// IsCommunity 帖子和评论属于社区内容
func (r RawItem) IsCommunity() bool {
	return r.Kind == KindPost || r.Kind == KindComment
}

// Hypothesis 用户提交的业务假设，结构化字段可选
type Hypothesis struct {
	Text            string `json:"text"`
	Audience        string `json:"audience,omitempty"`
	Problem         string `json:"problem,omitempty"`
	ProblemLanguage string `json:"problem_language,omitempty"`
	ExcludeTopics   string `json:"exclude_topics,omitempty"`
	// AppName/AppID 非空时针对某个现有应用做分析
	AppName string `json:"app_name,omitempty"`
	AppID   string `json:"app_id,omitempty"`
}

// Statement 给模型看的假设描述
func (h Hypothesis) Statement() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(h.Text))
	if h.Audience != "" {
		sb.WriteString("\nAudience: " + h.Audience)
	}
	if h.Problem != "" {
		sb.WriteString("\nProblem: " + h.Problem)
	}
	if h.AppName != "" {
		sb.WriteString("\nApp: " + h.AppName)
	}
	return sb.String()
}

// ExtractedKeywords 每次请求生成一次，之后只读
type ExtractedKeywords struct {
	Primary       []string `json:"primary"`
	Secondary     []string `json:"secondary"`
	Exclude       []string `json:"exclude"`
	SearchContext string   `json:"search_context"`
}

// All 主关键词在前
func (k ExtractedKeywords) All() []string {
	out := make([]string, 0, len(k.Primary)+len(k.Secondary))
	out = append(out, k.Primary...)
	return append(out, k.Secondary...)
}

// RelevanceDecision 付费阶段的审计记录，只追加
type RelevanceDecision struct {
	ItemID string   `json:"item_id"`
	Kind   ItemKind `json:"kind"`
	Stage  string   `json:"stage"`
	Passed bool     `json:"passed"`
	Score  float64  `json:"score"`
	Tier   string   `json:"tier,omitempty"` // 只有最终定档的阶段才填写
	Reason string   `json:"reason,omitempty"`
}

// ScoredItem 通过过滤并打分的条目
type ScoredItem struct {
	Item  RawItem   `json:"item"`
	Score float64   `json:"score"`
	Tier  tier.Tier `json:"tier"`
}

// Intensity 痛点强度
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Rank 用于比较强度
func (i Intensity) Rank() int {
	switch i {
	case IntensityHigh:
		return 2
	case IntensityMedium:
		return 1
	default:
		return 0
	}
}

// PainSignal 由分析器生成，来源加权时修改一次分数
type PainSignal struct {
	ItemID           string    `json:"item_id"`
	Kind             ItemKind  `json:"kind"`
	Excerpt          string    `json:"excerpt"`
	Intensity        Intensity `json:"intensity"`
	Score            float64   `json:"score"`
	SolutionSeeking  bool      `json:"solution_seeking"`
	WillingnessToPay bool      `json:"willingness_to_pay"`
	Tier             tier.Tier `json:"tier"`
	Relevance        float64   `json:"relevance"`
	SourceWeight     float64   `json:"source_weight"`
	Source           string    `json:"source"`
	Engagement       int       `json:"engagement"`
	URL              string    `json:"url,omitempty"`
}

// StageMetrics 单个过滤阶段前后的数量
type StageMetrics struct {
	Stage  string  `json:"stage"`
	Kind   string  `json:"kind"`
	Before int     `json:"before"`
	After  int     `json:"after"`
	Rate   float64 `json:"filter_rate"`
}

// QualityLevel 按平均过滤率推导的质量等级
type QualityLevel string

const (
	QualityHigh   QualityLevel = "high"
	QualityMedium QualityLevel = "medium"
	QualityLow    QualityLevel = "low"
)

// FilteringMetrics 每次请求的过滤统计
type FilteringMetrics struct {
	Strategy          string         `json:"strategy"`
	PostsFound        int            `json:"posts_found"`
	PostsAnalyzed     int            `json:"posts_analyzed"`
	PostsFiltered     int            `json:"posts_filtered"`
	CommentsFound     int            `json:"comments_found"`
	CommentsAnalyzed  int            `json:"comments_analyzed"`
	CommentsFiltered  int            `json:"comments_filtered"`
	PrefilterRemoved  int            `json:"prefilter_removed"`
	AppGateRemoved    int            `json:"app_gate_removed"`
	PostFilterRate    float64        `json:"post_filter_rate"`
	CommentFilterRate float64        `json:"comment_filter_rate"`
	QualityLevel      QualityLevel   `json:"quality_level"`
	Stages            []StageMetrics `json:"stages"`
	TierCounts        tier.Counts    `json:"tier_counts"`
}

// ExpansionKind 扩展搜索方式
type ExpansionKind string

const (
	ExpandCommunities ExpansionKind = "new_communities"
	ExpandTimeRange   ExpansionKind = "time_range"
	ExpandFetchLimit  ExpansionKind = "fetch_limit"
)

// ExpansionAttempt 一次自适应扩展的记录
type ExpansionAttempt struct {
	Kind          ExpansionKind `json:"kind"`
	Value         string        `json:"value"`
	Success       bool          `json:"success"`
	SignalsGained int           `json:"signals_gained"`
	Error         string        `json:"error,omitempty"`
}

// AppSource 应用商店评价的来源标识
func AppSource(appID string) string {
	return "app:" + appID
}

// Cluster 主题聚类结果
type Cluster struct {
	ID             int      `json:"id"`
	Size           int      `json:"size"`
	ItemIDs        []string `json:"item_ids"`
	Representative string   `json:"representative"`
	Cohesion       float64  `json:"cohesion"`
}
