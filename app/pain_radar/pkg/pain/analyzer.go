// Package pain 从 CORE/STRONG 条目中提取痛点信号并打分。
package pain

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

// MaxScore 痛点分数上限
const MaxScore = 10.0

var (
	highMarkers = []string{
		"hate", "nightmare", "unbearable", "furious", "desperate", "worst", "killing me",
		"can't stand", "fed up", "sick of", "useless", "unusable", "waste of money", "lost all",
	}
	mediumMarkers = []string{
		"frustrat", "annoying", "struggl", "problem", "issue", "pain", "difficult", "slow",
		"crash", "broken", "bug", "confusing", "tedious", "lonely", "isolat", "stuck", "doesn't work",
	}
	solutionMarkers = []string{
		"looking for", "any recommendations", "is there a tool", "is there an app", "alternative to",
		"how do you", "what do you use", "any suggestions", "recommend",
	}
	payMarkers = []string{
		"would pay", "i'd pay", "happy to pay", "willing to pay", "take my money", "paid for",
		"subscription", "worth paying", "shut up and take",
	}
)

// Analyzer 基于词表的痛点分析，不调用模型
type Analyzer struct {
	excerptLen int
}

// NewAnalyzer excerptLen 为摘录的最大字符数
func NewAnalyzer(excerptLen int) *Analyzer {
	if excerptLen <= 0 {
		excerptLen = 280
	}
	return &Analyzer{excerptLen: excerptLen}
}

// Analyze 只分析 CORE/STRONG 条目，输出按分数降序
func (a *Analyzer) Analyze(items []model.ScoredItem) []model.PainSignal {
	out := make([]model.PainSignal, 0, len(items))
	for _, it := range items {
		if !it.Tier.FeedsAnalysis() {
			continue
		}
		out = append(out, a.analyze(it))
	}
	sortSignals(out)
	return out
}

func (a *Analyzer) analyze(it model.ScoredItem) model.PainSignal {
	text := it.Item.Text()
	lower := strings.ToLower(text)

	high := countMarkers(lower, highMarkers)
	medium := countMarkers(lower, mediumMarkers)
	seeking := countMarkers(lower, solutionMarkers) > 0
	pays := countMarkers(lower, payMarkers) > 0

	intensity := model.IntensityLow
	switch {
	case high > 0:
		intensity = model.IntensityHigh
	case medium > 0:
		intensity = model.IntensityMedium
	}

	score := 2*float64(high) + float64(medium)
	if it.Item.Kind == model.KindReview {
		rating := it.Item.Engagement
		// 低星评价本身就是不满
		if rating > 0 && rating <= 2 && intensity == model.IntensityLow {
			intensity = model.IntensityMedium
		}
		if rating > 0 {
			score += 0.75 * float64(5-min(rating, 5))
		}
	} else {
		score += 0.5 * math.Log1p(math.Max(float64(it.Item.Engagement), 0))
	}
	if seeking {
		score++
	}
	if pays {
		score += 1.5
	}

	return model.PainSignal{
		ItemID:           it.Item.ID,
		Kind:             it.Item.Kind,
		Excerpt:          excerpt(text, a.excerptLen),
		Intensity:        intensity,
		Score:            ClampScore(score),
		SolutionSeeking:  seeking,
		WillingnessToPay: pays,
		Tier:             it.Tier,
		Relevance:        tier.Clamp(it.Score),
		Source:           it.Item.Source,
		Engagement:       it.Item.Engagement,
		URL:              it.Item.URL,
	}
}

// HasPainMarker 文本是否包含任一痛点词
func HasPainMarker(text string) bool {
	lower := strings.ToLower(text)
	return countMarkers(lower, highMarkers)+countMarkers(lower, mediumMarkers) > 0
}

// ClampScore 限制在 [0,10]，NaN 视为 0
func ClampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

func countMarkers(lower string, markers []string) int {
	n := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}

// excerpt 截取第一个痛点词附近的文本
func excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	lower := strings.ToLower(text)
	start := -1
	for _, ms := range [][]string{highMarkers, mediumMarkers} {
		for _, m := range ms {
			if i := strings.Index(lower, m); i >= 0 && (start < 0 || i < start) {
				start = i
			}
		}
	}
	r := []rune(text)
	from := 0
	if start > 0 {
		from = max(utf8.RuneCountInString(lower[:start])-n/3, 0)
		// 对齐到词首
		for from > 0 && r[from-1] != ' ' {
			from--
		}
	}
	to := min(from+n, len(r))
	s := string(r[from:to])
	if from > 0 {
		s = "…" + s
	}
	if to < len(r) {
		s += "…"
	}
	return s
}

func sortSignals(s []model.PainSignal) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Score > s[j].Score })
}
