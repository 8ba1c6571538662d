package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
)

// Client iTunes 用户评价 RSS（JSON 格式）客户端
type Client struct {
	baseURL string
	country string
	pages   int
	client  *http.Client
	limiter *rate.Limiter
}

// Ensure Client implements source.Fetcher
var _ source.Fetcher = (*Client)(nil)

// NewClient 创建 App Store 客户端
func NewClient(cfg config.AppStoreConfig, limiter *rate.Limiter) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	pages := cfg.Pages
	if pages <= 0 {
		pages = 1
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		country: cfg.Country,
		pages:   pages,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

type label struct {
	Label string `json:"label"`
}

// Entry 单条评价
type Entry struct {
	ID      label `json:"id"`
	Title   label `json:"title"`
	Content label `json:"content"`
	Rating  label `json:"im:rating"`
	Updated label `json:"updated"`
	Link    struct {
		Attributes struct {
			Href string `json:"href"`
		} `json:"attributes"`
	} `json:"link"`
}

type feedResponse struct {
	Feed struct {
		// 只有一条时是对象，多条时是数组
		Entry json.RawMessage `json:"entry"`
	} `json:"feed"`
}

// Fetch 抓取请求中所有 app:<id> 的最新评价
func (c *Client) Fetch(ctx context.Context, req *source.Request) (*source.Response, error) {
	resp := &source.Response{}
	var lastErr error
	for _, s := range req.Sources {
		appID := source.AppID(s)
		if appID == "" {
			continue
		}
		items, err := c.reviews(ctx, appID, req.Limit)
		if err != nil {
			logger.Log.Warnf("[appstore] reviews for %s failed: %v", appID, err)
			lastErr = err
			continue
		}
		resp.Items = append(resp.Items, items...)
		resp.SourcesUsed = append(resp.SourcesUsed, s)
	}
	if len(resp.SourcesUsed) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return resp, nil
}

func (c *Client) reviews(ctx context.Context, appID string, limit int) ([]model.RawItem, error) {
	var out []model.RawItem
	for page := 1; page <= c.pages; page++ {
		entries, err := c.page(ctx, appID, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			break
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			rating, err := strconv.Atoi(e.Rating.Label)
			if err != nil {
				// 第一条可能是应用本身的信息
				continue
			}
			created, _ := time.Parse(time.RFC3339, e.Updated.Label)
			out = append(out, model.RawItem{
				ID:         "as_" + e.ID.Label,
				Kind:       model.KindReview,
				Title:      e.Title.Label,
				Body:       strings.TrimSpace(e.Content.Label),
				Source:     model.AppSource(appID),
				URL:        e.Link.Attributes.Href,
				Engagement: rating,
				CreatedAt:  created,
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (c *Client) page(ctx context.Context, appID string, page int) ([]Entry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/json", c.baseURL, c.country, page, appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("itunes api error (status %d)", res.StatusCode)
	}

	var feed feedResponse
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}
	raw := feed.Feed.Entry
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var entries []Entry
	if raw[0] == '{' {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry failed: %w", err)
		}
		return []Entry{e}, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal entries failed: %w", err)
	}
	return entries, nil
}
