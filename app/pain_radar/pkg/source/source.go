package source

import (
	"context"
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

// 数据源标识
const (
	HackerNews      = "hackernews"
	Web             = "web"
	subredditPrefix = "r/"
	appPrefix       = "app:"
)

// Fetcher 定义通用的抓取接口
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// Request 通用抓取请求
type Request struct {
	Sources   []string // r/<name>、hackernews、web、app:<id>
	Keywords  []string
	Limit     int // 每个数据源的条目上限
	RangeDays int
	// Velocity 各社区的日均发帖量，用于挑选时间窗口，缺省按 RangeDays
	Velocity map[string]float64
}

// Response 通用抓取响应
type Response struct {
	Items        []model.RawItem
	SourcesUsed  []string
	StaleWarning string // 数据整体偏旧时的提示
}

// IsSubreddit 是否 reddit 社区
func IsSubreddit(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), subredditPrefix)
}

// SubredditName "r/Design" -> "Design"
func SubredditName(s string) string {
	return strings.TrimSpace(s[len(subredditPrefix):])
}

// AppID "app:123" -> "123"，不是应用来源时返回空
func AppID(s string) string {
	if !strings.HasPrefix(s, appPrefix) {
		return ""
	}
	return strings.TrimSpace(s[len(appPrefix):])
}

// NormalizeCommunity 统一成 r/<name>、hackernews 或 web，无法识别返回空
func NormalizeCommunity(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	lower := strings.ToLower(s)
	switch {
	case lower == "" || lower == "r/":
		return ""
	case lower == HackerNews || lower == "hn" || lower == "hacker news":
		return HackerNews
	case lower == Web:
		return Web
	case strings.HasPrefix(lower, appPrefix):
		if AppID(s) == "" {
			return ""
		}
		return s
	case IsSubreddit(s):
		s = s[len(subredditPrefix):]
	}
	s = strings.Trim(s, "/ ")
	if s == "" || strings.ContainsAny(s, " /?#") {
		return ""
	}
	return subredditPrefix + s
}
