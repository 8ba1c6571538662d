// Package keywords 把业务假设转换成检索关键词与排除词。
package keywords

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

const (
	maxUserPhrases  = 3
	minPhraseLen    = 3
	maxPhraseLen    = 50
	minExcludeLen   = 2
	maxExcludeLen   = 50
	fallbackPrimary = 5
	fallbackSecond  = 10
)

// Source 模型侧的关键词提取
type Source interface {
	ExtractKeywords(ctx context.Context, usage *llm.Usage, hyp model.Hypothesis) (*model.ExtractedKeywords, error)
}

// Extractor 合并用户给出的字段与模型提取结果
type Extractor struct {
	source Source
}

// NewExtractor source 可以为 nil，此时只用基础拆词
func NewExtractor(source Source) *Extractor {
	return &Extractor{source: source}
}

// Extract 生成本次请求的关键词。模型提取失败时退回到对假设文本的基础拆词。
func (e *Extractor) Extract(ctx context.Context, usage *llm.Usage, hyp model.Hypothesis) model.ExtractedKeywords {
	var kw model.ExtractedKeywords
	if e.source != nil {
		got, err := e.source.ExtractKeywords(ctx, usage, hyp)
		switch {
		case err != nil:
			logger.Log.Warnf("关键词提取失败，使用基础拆词: %v", err)
		case got == nil || len(cleanList(got.Primary)) == 0:
			logger.Log.Warn("关键词提取结果为空，使用基础拆词")
		default:
			kw = *got
		}
	}
	if len(cleanList(kw.Primary)) == 0 {
		kw = BasicSplit(hyp.Text)
	}

	kw.Primary = dedupe(append(UserPhrases(hyp.ProblemLanguage), cleanList(kw.Primary)...))
	kw.Secondary = dedupe(cleanList(kw.Secondary))
	kw.Exclude = dedupe(append(lowerAll(cleanList(kw.Exclude)), ExcludeTerms(hyp.ExcludeTopics)...))
	if kw.SearchContext == "" {
		kw.SearchContext = hyp.Statement()
	}
	return kw
}

var phraseSplitRe = regexp.MustCompile(`[,;\n]+`)

// UserPhrases 用户描述问题时的原话，取前 3 条长度 3-50 的短语
func UserPhrases(problemLanguage string) []string {
	var out []string
	for _, p := range phraseSplitRe.Split(problemLanguage, -1) {
		p = strings.Trim(strings.TrimSpace(p), `"'“”‘’`)
		p = strings.TrimSpace(p)
		if n := len([]rune(p)); n < minPhraseLen || n > maxPhraseLen {
			continue
		}
		out = append(out, p)
		if len(out) == maxUserPhrases {
			break
		}
	}
	return out
}

// ExcludeTerms 逗号分隔的排除话题，小写，长度 2-50
func ExcludeTerms(excludeTopics string) []string {
	var out []string
	for _, t := range strings.Split(excludeTopics, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if n := len([]rune(t)); n < minExcludeLen || n > maxExcludeLen {
			continue
		}
		out = append(out, t)
	}
	return out
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'-]*`)

// BasicSplit 不依赖模型的兜底拆词
func BasicSplit(text string) model.ExtractedKeywords {
	var words []string
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		w = strings.Trim(w, "'-")
		if len([]rune(w)) < 3 || stopwords[w] {
			continue
		}
		words = append(words, w)
	}
	words = dedupe(words)

	kw := model.ExtractedKeywords{SearchContext: strings.TrimSpace(text)}
	if len(words) <= fallbackPrimary {
		kw.Primary = words
		return kw
	}
	kw.Primary = words[:fallbackPrimary]
	rest := words[fallbackPrimary:]
	if len(rest) > fallbackSecond {
		rest = rest[:fallbackSecond]
	}
	kw.Secondary = rest
	return kw
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	for i := range in {
		in[i] = strings.ToLower(in[i])
	}
	return in
}

// dedupe 忽略大小写去重，保留首次出现的顺序
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

// LLMSource 让模型给出检索关键词
type LLMSource struct {
	completer llm.Completer
}

// NewLLMSource 创建模型关键词源
func NewLLMSource(c llm.Completer) *LLMSource {
	return &LLMSource{completer: c}
}

type llmKeywords struct {
	Primary       []string `json:"primary"`
	Secondary     []string `json:"secondary"`
	Exclude       []string `json:"exclude"`
	SearchContext string   `json:"search_context"`
}

// ExtractKeywords implements Source
func (s *LLMSource) ExtractKeywords(ctx context.Context, usage *llm.Usage, hyp model.Hypothesis) (*model.ExtractedKeywords, error) {
	prompt := fmt.Sprintf(`Business hypothesis:
%s

Produce search keywords for finding people who complain about this problem in online communities and app reviews.
Return JSON only:
{
  "primary": ["3-6 short phrases people would actually write, most important first"],
  "secondary": ["up to 10 related terms"],
  "exclude": ["terms that indicate an unrelated meaning"],
  "search_context": "one sentence describing the problem and who has it"
}`, hyp.Statement())

	raw, err := s.completer.Complete(ctx, usage, "You are a JSON generator. Output JSON only.", prompt)
	if err != nil {
		return nil, err
	}
	var out llmKeywords
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return &model.ExtractedKeywords{
		Primary:       out.Primary,
		Secondary:     out.Secondary,
		Exclude:       out.Exclude,
		SearchContext: out.SearchContext,
	}, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true, "you": true,
	"all": true, "any": true, "can": true, "had": true, "her": true, "was": true, "one": true,
	"our": true, "out": true, "has": true, "have": true, "with": true, "that": true, "this": true,
	"they": true, "them": true, "their": true, "from": true, "feel": true, "feels": true, "who": true,
	"what": true, "when": true, "where": true, "which": true, "while": true, "would": true, "could": true,
	"should": true, "there": true, "about": true, "into": true, "than": true, "then": true, "very": true,
	"just": true, "like": true, "more": true, "most": true, "some": true, "such": true, "will": true,
	"your": true, "been": true, "being": true, "because": true, "people": true, "really": true,
}
