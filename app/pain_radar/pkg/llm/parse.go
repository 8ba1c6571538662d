package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseable 所有解析方式都失败
var ErrUnparseable = errors.New("llm: unparseable classification output")

// Verdict 单条目的判定。Decided 为 false 表示模型没有给出该位置的结果。
type Verdict struct {
	Decided bool
	Pass    bool
	Score   float64
}

var (
	codeBlockRe  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	codesRe      = regexp.MustCompile(`^[YNyn]+$`)
	singleCodeRe = regexp.MustCompile(`(?i)\b[yn]\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// ParseVerdicts 解析 n 个条目的分类输出。依次尝试：直接解析、代码块、方括号截取、
// 离散单字母序列；全部失败返回 ErrUnparseable。
func ParseVerdicts(raw string, n int) ([]Verdict, error) {
	if n <= 0 {
		return nil, nil
	}
	raw = strings.TrimSpace(raw)

	if v, ok := parseDirect(raw, n); ok {
		return v, nil
	}
	for _, m := range codeBlockRe.FindAllStringSubmatch(raw, -1) {
		if v, ok := parseDirect(strings.TrimSpace(m[1]), n); ok {
			return v, nil
		}
	}
	if i, j := strings.Index(raw, "["), strings.LastIndex(raw, "]"); i >= 0 && j > i {
		if v, ok := parseJSONArray(raw[i:j+1], n); ok {
			return v, nil
		}
	}
	if codes := singleCodeRe.FindAllString(raw, -1); len(codes) == n {
		return fromCodes(strings.Join(codes, "")), nil
	}
	return nil, ErrUnparseable
}

func parseDirect(s string, n int) ([]Verdict, bool) {
	compact := whitespaceRe.ReplaceAllString(s, "")
	if len(compact) == n && codesRe.MatchString(compact) {
		return fromCodes(compact), true
	}
	if strings.HasPrefix(s, "[") {
		return parseJSONArray(s, n)
	}
	if strings.HasPrefix(s, "{") {
		// {"results": [...]} 之类的包装
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &wrapper); err != nil {
			return nil, false
		}
		for _, v := range wrapper {
			if v, ok := parseJSONArray(string(v), n); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func fromCodes(codes string) []Verdict {
	out := make([]Verdict, len(codes))
	for i, c := range strings.ToUpper(codes) {
		pass := c == 'Y'
		out[i] = Verdict{Decided: true, Pass: pass, Score: boolScore(pass)}
	}
	return out
}

type jsonEntry struct {
	Index    *int            `json:"index"`
	Label    json.RawMessage `json:"label"`
	Decision json.RawMessage `json:"decision"`
	Score    *float64        `json:"score"`
}

func parseJSONArray(s string, n int) ([]Verdict, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(s), &elems); err != nil || len(elems) == 0 {
		return nil, false
	}

	type indexed struct {
		idx int
		v   Verdict
	}
	var parsed []indexed
	explicit := false
	minIdx := int(^uint(0) >> 1)

	for pos, el := range elems {
		v, idx, ok := parseElement(el)
		if !ok {
			continue
		}
		if idx == nil {
			parsed = append(parsed, indexed{idx: pos, v: v})
			continue
		}
		explicit = true
		parsed = append(parsed, indexed{idx: *idx, v: v})
		minIdx = min(minIdx, *idx)
	}
	if len(parsed) == 0 {
		return nil, false
	}

	// 提示中的序号从 1 开始，出现 0 时才按 0 起始处理
	offset := 0
	if explicit && minIdx >= 1 {
		offset = 1
	}

	out := make([]Verdict, n)
	decided := 0
	for _, p := range parsed {
		i := p.idx - offset
		if i < 0 || i >= n || out[i].Decided {
			continue
		}
		out[i] = p.v
		decided++
	}
	if decided == 0 {
		return nil, false
	}
	return out, true
}

func parseElement(el json.RawMessage) (Verdict, *int, bool) {
	var s string
	if err := json.Unmarshal(el, &s); err == nil {
		pass, ok := labelPass(s)
		return Verdict{Decided: ok, Pass: pass, Score: boolScore(pass)}, nil, ok
	}
	var b bool
	if err := json.Unmarshal(el, &b); err == nil {
		return Verdict{Decided: true, Pass: b, Score: boolScore(b)}, nil, true
	}
	var f float64
	if err := json.Unmarshal(el, &f); err == nil {
		score := normalizeScore(f)
		return Verdict{Decided: true, Pass: score >= 0.5, Score: score}, nil, true
	}

	var e jsonEntry
	if err := json.Unmarshal(el, &e); err != nil {
		return Verdict{}, nil, false
	}
	label := e.Label
	if len(label) == 0 {
		label = e.Decision
	}
	if len(label) > 0 {
		if lv, _, ok := parseElement(label); ok {
			if e.Score != nil {
				lv.Score = normalizeScore(*e.Score)
			}
			return lv, e.Index, true
		}
	}
	if e.Score != nil {
		score := normalizeScore(*e.Score)
		return Verdict{Decided: true, Pass: score >= 0.5, Score: score}, e.Index, true
	}
	return Verdict{}, nil, false
}

func labelPass(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true", "relevant", "pass", "match", "1":
		return true, true
	case "n", "no", "false", "irrelevant", "fail", "reject", "0":
		return false, true
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return normalizeScore(f) >= 0.5, true
	}
	return false, false
}

// normalizeScore 兼容 0-1 与 0-10 两种刻度
func normalizeScore(f float64) float64 {
	if f > 1 {
		f /= 10
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func boolScore(pass bool) float64 {
	if pass {
		return 1
	}
	return 0
}

// ExtractJSON 去掉 markdown 代码块等包装，返回最外层 JSON 文本
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if m := codeBlockRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	oi, ai := strings.Index(s, "{"), strings.Index(s, "[")
	switch {
	case oi >= 0 && (ai < 0 || oi < ai):
		if j := strings.LastIndex(s, "}"); j > oi {
			return s[oi : j+1]
		}
	case ai >= 0:
		if j := strings.LastIndex(s, "]"); j > ai {
			return s[ai : j+1]
		}
	}
	return s
}
