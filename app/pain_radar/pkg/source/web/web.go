// Package web 通过通用搜索引擎补充社区之外的讨论，如博客和论坛帖子。
package web

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/htmltext"
)

// Searcher 定义通用的搜索接口
type Searcher interface {
	Search(ctx context.Context, req *Request) (*Response, error)
}

// Request 通用搜索请求
type Request struct {
	Query      string
	MaxResults int
	StartDate  string // YYYY-MM-DD
	EndDate    string // YYYY-MM-DD
}

// Response 通用搜索响应
type Response struct {
	Results []Result
}

// Result 通用搜索结果
type Result struct {
	Title         string
	URL           string
	Content       string
	RawContent    string
	Score         float64
	PublishedDate string
}

// Fetcher 把搜索结果转换成帖子
type Fetcher struct {
	searcher   Searcher
	limiter    *rate.Limiter
	maxResults int
	now        func() time.Time
}

// Ensure Fetcher implements source.Fetcher
var _ source.Fetcher = (*Fetcher)(nil)

// NewFetcher limiter 可为空
func NewFetcher(s Searcher, limiter *rate.Limiter, maxResults int) *Fetcher {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if maxResults <= 0 {
		maxResults = 20
	}
	return &Fetcher{searcher: s, limiter: limiter, maxResults: maxResults, now: time.Now}
}

// Fetch 请求中包含 web 时执行一次搜索
func (f *Fetcher) Fetch(ctx context.Context, req *source.Request) (*source.Response, error) {
	resp := &source.Response{}
	wanted := false
	for _, s := range req.Sources {
		if s == source.Web {
			wanted = true
		}
	}
	if !wanted || len(req.Keywords) == 0 {
		return resp, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	now := f.now()
	sr := &Request{
		Query:      strings.Join(req.Keywords, " "),
		MaxResults: min(max(req.Limit, 1), f.maxResults),
		EndDate:    now.Format(time.DateOnly),
	}
	var from time.Time
	if req.RangeDays > 0 {
		from = now.AddDate(0, 0, -req.RangeDays)
		sr.StartDate = from.Format(time.DateOnly)
	}
	res, err := f.searcher.Search(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	for _, r := range res.Results {
		if r.URL == "" {
			continue
		}
		created := parseDate(r.PublishedDate)
		// 没有日期的结果保留
		if !from.IsZero() && !created.IsZero() && created.Before(from) {
			continue
		}
		body := r.RawContent
		if body == "" {
			body = r.Content
		}
		resp.Items = append(resp.Items, model.RawItem{
			ID:         "web_" + urlID(r.URL),
			Kind:       model.KindPost,
			Title:      htmltext.Strip(r.Title),
			Body:       htmltext.Strip(body),
			Source:     source.Web,
			URL:        r.URL,
			Engagement: 1,
			CreatedAt:  created,
		})
	}
	resp.SourcesUsed = []string{source.Web}
	return resp, nil
}

func urlID(u string) string {
	sum := sha1.Sum([]byte(u))
	return hex.EncodeToString(sum[:8])
}

// parseDate 不同搜索引擎的日期格式不一致，无法解析时返回零值
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", time.RFC1123Z, time.RFC1123, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
