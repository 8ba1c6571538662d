// Package prefilter 在任何付费阶段之前按排除词剔除条目，不调用模型。
package prefilter

import (
	"strings"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

// Apply 剔除标题或正文包含任一排除词（忽略大小写的子串匹配）的条目。
// 纯函数，对已过滤的结果再次执行不会再移除任何条目。
func Apply(items []model.RawItem, exclude []string) (kept []model.RawItem, removed int) {
	terms := normalize(exclude)
	if len(terms) == 0 {
		return items, 0
	}

	kept = make([]model.RawItem, 0, len(items))
	for _, it := range items {
		if Matches(it, terms) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	return kept, removed
}

// Matches terms 需已小写
func Matches(it model.RawItem, terms []string) bool {
	text := strings.ToLower(it.Title + "\n" + it.Body)
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func normalize(exclude []string) []string {
	out := make([]string, 0, len(exclude))
	for _, t := range exclude {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
