package relevance

import (
	"regexp"
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/tier"
)

var appNameSeparators = []string{":", " - ", "–", "—", "|"}

// CoreAppName 去掉商店标题里的副标题，例如 "Notion: Notes, Docs" -> "Notion"
func CoreAppName(title string) string {
	name := title
	for _, sep := range appNameSeparators {
		if i := strings.Index(name, sep); i >= 0 {
			name = name[:i]
		}
	}
	return strings.TrimSpace(name)
}

// AppGate 应用分析模式下剔除没有提到该应用的社区内容
type AppGate struct {
	source string
	re     *regexp.Regexp
}

// NewAppGate appName 为空时返回 nil，表示不做过滤
func NewAppGate(appName, appID string) *AppGate {
	core := CoreAppName(appName)
	if core == "" {
		return nil
	}
	fields := strings.Fields(core)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	// \b 对 "C++"、"Todo.txt" 这类名字不可靠，改用字母数字边界
	pattern := `(?i)(?:^|[^\p{L}\p{N}])` + strings.Join(fields, `\s+`) + `(?:$|[^\p{L}\p{N}])`
	g := &AppGate{re: regexp.MustCompile(pattern)}
	if appID != "" {
		g.source = model.AppSource(appID)
	}
	return g
}

// Mentions 文本是否提到应用名
func (g *AppGate) Mentions(it model.RawItem) bool {
	return g.re.MatchString(it.Title) || g.re.MatchString(it.Body)
}

// Allow 被分析应用自己的评价总是通过，其它内容必须提到应用名
func (g *AppGate) Allow(it model.RawItem) bool {
	if it.Kind == model.KindReview && (g.source == "" || it.Source == g.source) {
		return true
	}
	return g.Mentions(it)
}

// Apply 过滤结果中的条目，被剔除的条目在档位计数中转为 NOISE
func (g *AppGate) Apply(res *Result, kind string) (removed int) {
	if g == nil || res == nil {
		return 0
	}
	before := len(res.Items)
	kept := res.Items[:0]
	for _, it := range res.Items {
		if g.Allow(it.Item) {
			kept = append(kept, it)
			continue
		}
		res.TierCounts[it.Tier]--
		res.TierCounts[tier.Noise]++
		res.Decisions = append(res.Decisions, model.RelevanceDecision{
			ItemID: it.Item.ID, Kind: it.Item.Kind, Stage: StageAppGate,
			Passed: false, Score: it.Score, Reason: "app not mentioned",
		})
		removed++
	}
	res.Items = kept
	res.stage(StageAppGate, kind, before, len(kept))
	return removed
}
