package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/htmltext"
)

// Client 通过 reddit 的搜索 RSS 抓取帖子与评论，不需要 API 凭证
type Client struct {
	baseURL        string
	userAgent      string
	commentThreads int
	client         *http.Client
	limiter        *rate.Limiter
	now            func() time.Time
}

// Ensure Client implements source.Fetcher
var _ source.Fetcher = (*Client)(nil)

// NewClient 创建 reddit 客户端
func NewClient(cfg config.RedditConfig, limiter *rate.Limiter) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		commentThreads: cfg.CommentThreads,
		client:         &http.Client{Timeout: timeout},
		limiter:        limiter,
		now:            time.Now,
	}
}

// Fetch 逐个社区搜索；单个社区失败只记录日志，全部失败才返回错误
func (c *Client) Fetch(ctx context.Context, req *source.Request) (*source.Response, error) {
	resp := &source.Response{}
	query := strings.Join(quoteTerms(req.Keywords), " OR ")
	var lastErr error

	for _, s := range req.Sources {
		if !source.IsSubreddit(s) {
			continue
		}
		sub := source.SubredditName(s)
		window := TimeWindow(req.RangeDays, req.Velocity[s], req.Limit)

		posts, err := c.searchPosts(ctx, sub, query, window, req.Limit)
		if err != nil {
			logger.Log.Warnf("[reddit] search r/%s failed: %v", sub, err)
			lastErr = err
			continue
		}
		posts = withinRange(posts, c.now(), req.RangeDays)
		resp.Items = append(resp.Items, posts...)
		resp.SourcesUsed = append(resp.SourcesUsed, s)

		for i, p := range posts {
			if i >= c.commentThreads || p.URL == "" {
				break
			}
			comments, err := c.comments(ctx, s, p)
			if err != nil {
				logger.Log.Debugf("[reddit] comments for %s failed: %v", p.ID, err)
				continue
			}
			resp.Items = append(resp.Items, comments...)
		}
	}

	if len(resp.SourcesUsed) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return resp, nil
}

// TimeWindow 选择 reddit 搜索的 t 参数。活跃社区在较短窗口内就能凑满 limit，
// 按日均发帖量收窄窗口。
func TimeWindow(rangeDays int, velocity float64, limit int) string {
	days := rangeDays
	if velocity > 0 && limit > 0 {
		// 预期帖子数超过 limit 的 10 倍时缩短窗口
		for days > 7 && velocity*float64(days) > float64(limit*10) {
			days /= 4
		}
	}
	switch {
	case days <= 0:
		return "all"
	case days <= 1:
		return "day"
	case days <= 7:
		return "week"
	case days <= 31:
		return "month"
	case days <= 365:
		return "year"
	default:
		return "all"
	}
}

func (c *Client) searchPosts(ctx context.Context, sub, query, window string, limit int) ([]model.RawItem, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("restrict_sr", "on")
	q.Set("sort", "relevance")
	q.Set("t", window)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(min(limit, 100)))
	}
	feed, err := c.get(ctx, fmt.Sprintf("%s/r/%s/search.rss?%s", c.baseURL, url.PathEscape(sub), q.Encode()))
	if err != nil {
		return nil, err
	}

	items := make([]model.RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if limit > 0 && len(items) >= limit {
			break
		}
		items = append(items, model.RawItem{
			ID:     itemID(it),
			Kind:   model.KindPost,
			Title:  strings.TrimSpace(it.Title),
			Body:   htmltext.Strip(content(it)),
			Source: "r/" + sub,
			URL:    strings.TrimSpace(it.Link),
			// RSS 不带投票数
			Engagement: 1,
			CreatedAt:  published(it),
		})
	}
	return items, nil
}

func (c *Client) comments(ctx context.Context, src string, p model.RawItem) ([]model.RawItem, error) {
	feed, err := c.get(ctx, strings.TrimSuffix(p.URL, "/")+"/.rss")
	if err != nil {
		return nil, err
	}
	var out []model.RawItem
	for _, it := range feed.Items {
		id := itemID(it)
		// 帖子本身也出现在评论 feed 中
		if id == p.ID || !strings.HasPrefix(id, "t1_") {
			continue
		}
		out = append(out, model.RawItem{
			ID:         id,
			Kind:       model.KindComment,
			Body:       htmltext.Strip(content(it)),
			Source:     src,
			URL:        strings.TrimSpace(it.Link),
			Engagement: 1,
			CreatedAt:  published(it),
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, u string) (*gofeed.Feed, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit status %d for %s", res.StatusCode, u)
	}
	feed, err := gofeed.NewParser().Parse(res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed failed: %w", err)
	}
	return feed, nil
}

func quoteTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(strings.ReplaceAll(t, `"`, ""))
		if t == "" {
			continue
		}
		if strings.Contains(t, " ") {
			t = `"` + t + `"`
		}
		out = append(out, t)
	}
	return out
}

func itemID(it *gofeed.Item) string {
	if it.GUID != "" {
		return it.GUID
	}
	return it.Link
}

func content(it *gofeed.Item) string {
	if it.Content != "" {
		return it.Content
	}
	return it.Description
}

func published(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return *it.PublishedParsed
	case it.UpdatedParsed != nil:
		return *it.UpdatedParsed
	default:
		return time.Time{}
	}
}

func withinRange(items []model.RawItem, now time.Time, rangeDays int) []model.RawItem {
	if rangeDays <= 0 {
		return items
	}
	from := now.AddDate(0, 0, -rangeDays)
	out := items[:0]
	for _, it := range items {
		if it.CreatedAt.IsZero() || !it.CreatedAt.Before(from) {
			out = append(out, it)
		}
	}
	return out
}
