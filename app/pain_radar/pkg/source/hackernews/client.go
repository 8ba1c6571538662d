package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source/htmltext"
)

// maxLinkedChars 外链正文保留的最大字符数
const maxLinkedChars = 4000

// Client Algolia Hacker News 搜索客户端
type Client struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	fetchLinked bool
	timeout     time.Duration
	// readable 抓取外链正文，测试时替换
	readable func(pageURL string, timeout time.Duration) (string, error)
	now      func() time.Time
}

// Ensure Client implements source.Fetcher
var _ source.Fetcher = (*Client)(nil)

// NewClient 创建 HN 客户端
func NewClient(cfg config.HackerNewsConfig, limiter *rate.Limiter) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		limiter:     limiter,
		fetchLinked: cfg.FetchLinked,
		timeout:     timeout,
		readable:    fetchReadable,
		now:         time.Now,
	}
}

// SearchResponse Algolia 搜索响应
type SearchResponse struct {
	Hits []Hit `json:"hits"`
}

// Hit 单条搜索结果，story 与 comment 共用
type Hit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	StoryText   string `json:"story_text"`
	CommentText string `json:"comment_text"`
	Points      int    `json:"points"`
	NumComments int    `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
	StoryID     int64  `json:"story_id"`
}

// Fetch 请求中包含 hackernews 时分别搜索帖子和评论
func (c *Client) Fetch(ctx context.Context, req *source.Request) (*source.Response, error) {
	resp := &source.Response{}
	wanted := false
	for _, s := range req.Sources {
		if s == source.HackerNews {
			wanted = true
		}
	}
	if !wanted {
		return resp, nil
	}

	query := strings.Join(req.Keywords, " ")
	stories, err := c.search(ctx, query, "story", req)
	if err != nil {
		return nil, fmt.Errorf("hackernews stories: %w", err)
	}
	for _, h := range stories {
		resp.Items = append(resp.Items, c.storyItem(h))
	}

	comments, err := c.search(ctx, query, "comment", req)
	if err != nil {
		logger.Log.Warnf("[hackernews] comment search failed: %v", err)
	}
	for _, h := range comments {
		resp.Items = append(resp.Items, model.RawItem{
			ID:         "hn_" + h.ObjectID,
			Kind:       model.KindComment,
			Body:       htmltext.Strip(h.CommentText),
			Source:     source.HackerNews,
			URL:        itemURL(h.ObjectID),
			Engagement: max(h.Points, 1),
			CreatedAt:  time.Unix(h.CreatedAtI, 0),
		})
	}
	resp.SourcesUsed = []string{source.HackerNews}
	return resp, nil
}

func (c *Client) storyItem(h Hit) model.RawItem {
	body := htmltext.Strip(h.StoryText)
	if body == "" && h.URL != "" && c.fetchLinked {
		text, err := c.readable(h.URL, c.timeout)
		if err != nil {
			logger.Log.Debugf("[hackernews] readability %s failed: %v", h.URL, err)
		} else {
			body = truncate(text, maxLinkedChars)
		}
	}
	return model.RawItem{
		ID:         "hn_" + h.ObjectID,
		Kind:       model.KindPost,
		Title:      h.Title,
		Body:       body,
		Source:     source.HackerNews,
		URL:        itemURL(h.ObjectID),
		Engagement: h.Points + h.NumComments,
		CreatedAt:  time.Unix(h.CreatedAtI, 0),
	}
}

func (c *Client) search(ctx context.Context, query, tag string, req *source.Request) ([]Hit, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("tags", tag)
	if req.Limit > 0 {
		q.Set("hitsPerPage", strconv.Itoa(req.Limit))
	}
	if req.RangeDays > 0 {
		from := c.now().AddDate(0, 0, -req.RangeDays).Unix()
		q.Set("numericFilters", fmt.Sprintf("created_at_i>%d", from))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("algolia api error (status %d): %s", res.StatusCode, truncate(string(body), 200))
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}
	return out.Hits, nil
}

func fetchReadable(pageURL string, timeout time.Duration) (string, error) {
	article, err := readability.FromURL(pageURL, timeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(article.TextContent), nil
}

func itemURL(id string) string {
	return "https://news.ycombinator.com/item?id=" + id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
