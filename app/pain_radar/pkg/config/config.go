package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// Config 项目配置结构体
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Filter      FilterConfig      `yaml:"filter"`
	Expansion   ExpansionConfig   `yaml:"expansion"`
	Clustering  ClusteringConfig  `yaml:"clustering"`
	Pain        PainConfig        `yaml:"pain"`
	Sources     SourcesConfig     `yaml:"sources"`
	Log         LogConfig         `yaml:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	DB          DBConfig          `yaml:"db"`
	Server      ServerConfig      `yaml:"server"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	MaxRetries int    `yaml:"max_retries"`
}

// EmbeddingConfig 向量服务配置，base_url/api_key 为空时沿用 LLM 配置
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	Timeout   int    `yaml:"timeout"` // 秒
}

// FilterConfig 相关度过滤配置。strategy 取 tiered / two_stage / cascade，部署级开关。
type FilterConfig struct {
	Strategy   string          `yaml:"strategy"`
	Thresholds tier.Thresholds `yaml:"thresholds"`
	TwoStage   TwoStageConfig  `yaml:"two_stage"`
	Cascade    CascadeConfig   `yaml:"cascade"`
}

// TwoStageConfig embedding 初筛 + 模型复核
type TwoStageConfig struct {
	CandidateThreshold float64 `yaml:"candidate_threshold"`
	MaxCandidates      int     `yaml:"max_candidates"`
	BatchSize          int     `yaml:"batch_size"`
}

// CascadeConfig 旧版级联过滤
type CascadeConfig struct {
	MinPostLength    int `yaml:"min_post_length"`
	MinCommentLength int `yaml:"min_comment_length"`
	MinReviewLength  int `yaml:"min_review_length"`
	MinEngagement    int `yaml:"min_engagement"`
	PrerankPosts     int `yaml:"prerank_posts"`
	PrerankComments  int `yaml:"prerank_comments"`
	PostBatchSize    int `yaml:"post_batch_size"`
	CommentBatchSize int `yaml:"comment_batch_size"`
}

// ExpansionConfig 自适应扩展
type ExpansionConfig struct {
	Enabled          bool `yaml:"enabled"`
	MinCore          int  `yaml:"min_core"`
	MinTotal         int  `yaml:"min_total"`
	MaxRounds        int  `yaml:"max_rounds"`
	MaxNewSources    int  `yaml:"max_new_sources"`
	SampleLimit      int  `yaml:"sample_limit"`
	WidenedRangeDays int  `yaml:"widened_range_days"`
}

// ClusteringConfig 证据聚类
type ClusteringConfig struct {
	MinClusterSize int     `yaml:"min_cluster_size"`
	Similarity     float64 `yaml:"similarity"`
	MaxClusters    int     `yaml:"max_clusters"`
}

// PainConfig 痛点分析
type PainConfig struct {
	ExcerptLength int     `yaml:"excerpt_length"`
	MinWeight     float64 `yaml:"min_weight"`
	MaxWeight     float64 `yaml:"max_weight"`
	PraiseMargin  float64 `yaml:"praise_margin"`
}

// SourcesConfig 数据源配置
type SourcesConfig struct {
	Communities    []string         `yaml:"communities"` // 未指定社区时的默认候选
	FetchLimit     int              `yaml:"fetch_limit"`
	RangeDays      int              `yaml:"range_days"`
	StaleAfterDays int              `yaml:"stale_after_days"`
	Reddit         RedditConfig     `yaml:"reddit"`
	HackerNews     HackerNewsConfig `yaml:"hackernews"`
	AppStore       AppStoreConfig   `yaml:"appstore"`
	Web            WebConfig        `yaml:"web"`
}

// RedditConfig reddit 搜索 RSS
type RedditConfig struct {
	BaseURL        string `yaml:"base_url"`
	UserAgent      string `yaml:"user_agent"`
	Timeout        int    `yaml:"timeout"`
	CommentThreads int    `yaml:"comment_threads"` // 每个社区抓取评论的帖子数
}

// HackerNewsConfig Algolia HN 搜索
type HackerNewsConfig struct {
	BaseURL     string `yaml:"base_url"`
	Timeout     int    `yaml:"timeout"`
	FetchLinked bool   `yaml:"fetch_linked"`
}

// AppStoreConfig iTunes 评价 RSS
type AppStoreConfig struct {
	BaseURL string `yaml:"base_url"`
	Country string `yaml:"country"`
	Pages   int    `yaml:"pages"`
	Timeout int    `yaml:"timeout"`
}

// WebConfig 通用网页搜索，Provider 为空时不启用
type WebConfig struct {
	Provider   string        `yaml:"provider"` // tavily | searxng
	MaxResults int           `yaml:"max_results"`
	Tavily     TavilyConfig  `yaml:"tavily"`
	SearXNG    SearXNGConfig `yaml:"searxng"`
}

// TavilyConfig Tavily 搜索
type TavilyConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SearXNGConfig 自建 SearXNG 实例
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS          int `yaml:"qps"`
	RPM          int `yaml:"rpm"`
	BatchWorkers int `yaml:"batch_workers"`
}

// DBConfig 数据库相关配置，driver 为 postgres 或 sqlite
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"` // sqlite 文件
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Enabled 是否配置了数据库
func (c DBConfig) Enabled() bool {
	return c.Host != "" || c.Path != ""
}

// ServerConfig HTTP 服务
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Timeout string `yaml:"timeout"`
}

// Strategy 名称
const (
	StrategyTiered   = "tiered"
	StrategyTwoStage = "two_stage"
	StrategyCascade  = "cascade"
)

// Default 默认配置，阈值与批大小均为经验值
func Default() *Config {
	return &Config{
		LLM: LLMConfig{MaxRetries: 3},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			BatchSize: 64,
			Timeout:   30,
		},
		Filter: FilterConfig{
			Strategy:   StrategyTiered,
			Thresholds: tier.DefaultThresholds(),
			TwoStage: TwoStageConfig{
				CandidateThreshold: 0.28,
				MaxCandidates:      50,
				BatchSize:          20,
			},
			Cascade: CascadeConfig{
				MinPostLength:    40,
				MinCommentLength: 20,
				MinReviewLength:  15,
				MinEngagement:    1,
				PrerankPosts:     150,
				PrerankComments:  200,
				PostBatchSize:    20,
				CommentBatchSize: 25,
			},
		},
		Expansion: ExpansionConfig{
			Enabled:          true,
			MinCore:          15,
			MinTotal:         30,
			MaxRounds:        1,
			MaxNewSources:    5,
			SampleLimit:      50,
			WidenedRangeDays: 365,
		},
		Clustering: ClusteringConfig{
			MinClusterSize: 3,
			Similarity:     0.70,
			MaxClusters:    10,
		},
		Pain: PainConfig{
			ExcerptLength: 280,
			MinWeight:     0.5,
			MaxWeight:     1.5,
			PraiseMargin:  0.05,
		},
		Sources: SourcesConfig{
			FetchLimit:     100,
			RangeDays:      90,
			StaleAfterDays: 30,
			Reddit: RedditConfig{
				BaseURL:        "https://www.reddit.com",
				UserAgent:      "pain-radar/1.0",
				Timeout:        30,
				CommentThreads: 5,
			},
			HackerNews: HackerNewsConfig{
				BaseURL: "https://hn.algolia.com/api/v1",
				Timeout: 30,
			},
			AppStore: AppStoreConfig{
				BaseURL: "https://itunes.apple.com",
				Country: "us",
				Pages:   2,
				Timeout: 30,
			},
			Web: WebConfig{
				MaxResults: 20,
				Tavily:     TavilyConfig{BaseURL: "https://api.tavily.com"},
				SearXNG:    SearXNGConfig{Timeout: 30},
			},
		},
		Log:         LogConfig{Level: "info"},
		Concurrency: ConcurrencyConfig{QPS: 5, RPM: 120, BatchWorkers: 4},
		DB:          DBConfig{Driver: "postgres", Port: 5432},
		Server:      ServerConfig{Addr: ":8000", Timeout: "300s"},
	}
}

// LoadConfig 从指定路径加载配置，未出现的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置的一致性
func (c *Config) Validate() error {
	switch c.Filter.Strategy {
	case StrategyTiered, StrategyTwoStage, StrategyCascade:
	default:
		return fmt.Errorf("config: unknown filter strategy %q", c.Filter.Strategy)
	}
	if err := c.Filter.Thresholds.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	ts := c.Filter.TwoStage
	if ts.CandidateThreshold <= 0 || ts.CandidateThreshold > 1 {
		return fmt.Errorf("config: two_stage.candidate_threshold %v out of (0,1]", ts.CandidateThreshold)
	}
	positive := map[string]int{
		"embedding.batch_size":              c.Embedding.BatchSize,
		"filter.two_stage.max_candidates":   ts.MaxCandidates,
		"filter.two_stage.batch_size":       ts.BatchSize,
		"filter.cascade.post_batch_size":    c.Filter.Cascade.PostBatchSize,
		"filter.cascade.comment_batch_size": c.Filter.Cascade.CommentBatchSize,
		"filter.cascade.prerank_posts":      c.Filter.Cascade.PrerankPosts,
		"filter.cascade.prerank_comments":   c.Filter.Cascade.PrerankComments,
		"clustering.min_cluster_size":       c.Clustering.MinClusterSize,
		"clustering.max_clusters":           c.Clustering.MaxClusters,
		"sources.fetch_limit":               c.Sources.FetchLimit,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("config: %s must be > 0, got %d", name, v)
		}
	}
	if c.Expansion.MaxRounds < 0 {
		return fmt.Errorf("config: expansion.max_rounds must be >= 0")
	}
	if c.Pain.MinWeight <= 0 || c.Pain.MinWeight > 1 || c.Pain.MaxWeight < 1 {
		return fmt.Errorf("config: pain weight range [%v,%v] must contain 1.0", c.Pain.MinWeight, c.Pain.MaxWeight)
	}
	switch c.Sources.Web.Provider {
	case "", "tavily", "searxng":
	default:
		return fmt.Errorf("config: unknown web search provider %q", c.Sources.Web.Provider)
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown db driver %q", c.DB.Driver)
	}
	return nil
}
