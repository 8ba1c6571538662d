// Package discovery 为假设挑选要搜索的社区，首轮抓取和扩展轮共用。
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/source"
)

// Request 一次社区发现
type Request struct {
	Hypothesis model.Hypothesis
	Keywords   model.ExtractedKeywords
	// Exclude 已经搜索过的社区
	Exclude []string
	Max     int
}

// Discoverer 返回规范化后的社区名（r/<name> 或 hackernews）
type Discoverer interface {
	Discover(ctx context.Context, usage *llm.Usage, req Request) ([]string, error)
}

// LLMDiscoverer 让模型推荐社区
type LLMDiscoverer struct {
	completer llm.Completer
}

// NewLLMDiscoverer 创建基于模型的社区发现
func NewLLMDiscoverer(c llm.Completer) *LLMDiscoverer {
	return &LLMDiscoverer{completer: c}
}

// Discover 模型输出无法解析时返回错误
func (d *LLMDiscoverer) Discover(ctx context.Context, usage *llm.Usage, req Request) ([]string, error) {
	max := req.Max
	if max <= 0 {
		max = 5
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hypothesis:\n%s\n\n", req.Hypothesis.Statement())
	if kw := req.Keywords.All(); len(kw) > 0 {
		fmt.Fprintf(&sb, "Keywords: %s\n", strings.Join(kw, ", "))
	}
	if len(req.Exclude) > 0 {
		fmt.Fprintf(&sb, "Already searched (do not repeat): %s\n", strings.Join(req.Exclude, ", "))
	}
	fmt.Fprintf(&sb, "\nList up to %d active subreddits where the people described above discuss their problems. "+
		`Respond with a JSON array of names such as ["r/example"] and nothing else.`, max+2)

	raw, err := d.completer.Complete(ctx, usage, "You recommend online communities for customer research.", sb.String())
	if err != nil {
		return nil, fmt.Errorf("discover communities: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &names); err != nil {
		return nil, fmt.Errorf("discover communities: parse %q: %w", llm.Truncate(raw, 120), err)
	}
	return Normalize(names, req.Exclude, max), nil
}

// Static 配置中的固定候选
type Static struct {
	communities []string
}

// NewStatic 创建固定候选列表
func NewStatic(communities []string) *Static {
	return &Static{communities: communities}
}

func (s *Static) Discover(_ context.Context, _ *llm.Usage, req Request) ([]string, error) {
	return Normalize(s.communities, req.Exclude, req.Max), nil
}

// Chain 依次尝试，第一个返回非空结果的生效
type Chain []Discoverer

func (c Chain) Discover(ctx context.Context, usage *llm.Usage, req Request) ([]string, error) {
	var lastErr error
	for _, d := range c {
		out, err := d.Discover(ctx, usage, req)
		if err != nil {
			lastErr = err
			continue
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, lastErr
}

// Normalize 规范化、去重并剔除已搜索的社区，max<=0 表示不限
func Normalize(names, exclude []string, max int) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[strings.ToLower(source.NormalizeCommunity(e))] = true
	}
	var out []string
	for _, n := range names {
		c := source.NormalizeCommunity(n)
		if c == "" || source.AppID(c) != "" || skip[strings.ToLower(c)] {
			continue
		}
		skip[strings.ToLower(c)] = true
		out = append(out, c)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}
