package relevance

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/llm"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/model"
)

var (
	itemLineRe = regexp.MustCompile(`(?m)^\[(\d+)\] (.*)$`)
	simRe      = regexp.MustCompile(`sim=([0-9.]+)`)
)

// mockCompleter 根据题目和条目文本逐条作答，answer 返回 false 时答 N
type mockCompleter struct {
	mu     sync.Mutex
	calls  int
	err    error
	answer func(question, text string) bool
}

func (m *mockCompleter) Complete(_ context.Context, _ *llm.Usage, _, user string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	question := ""
	for _, line := range strings.Split(user, "\n") {
		if strings.HasPrefix(line, "Question for each item:") {
			question = line
		}
	}
	var sb strings.Builder
	for _, match := range itemLineRe.FindAllStringSubmatch(user, -1) {
		if m.answer(question, match[2]) {
			sb.WriteByte('Y')
		} else {
			sb.WriteByte('N')
		}
	}
	return sb.String(), nil
}

func (m *mockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// simEmbedder 条目文本中的 sim=0.42 决定与假设向量 [1,0] 的余弦值；
// 含 FAIL 的批次整体失败，failHypothesis 时假设向量化也失败
type simEmbedder struct {
	failHypothesis bool
}

func (e *simEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "FAIL") {
			return nil, errors.New("embedding backend unavailable")
		}
		m := simRe.FindStringSubmatch(t)
		if m == nil {
			if e.failHypothesis {
				return nil, errors.New("embedding backend unavailable")
			}
			out[i] = []float64{1, 0}
			continue
		}
		s, _ := strconv.ParseFloat(m[1], 64)
		out[i] = []float64{s, math.Sqrt(1 - s*s)}
	}
	return out, nil
}

func newScorer(e embedding.Embedder) *llm.Scorer {
	return llm.NewScorer(e, nil)
}

func post(id, text string, engagement int) model.RawItem {
	return model.RawItem{ID: id, Kind: model.KindPost, Title: "post " + id, Body: text, Source: "r/test", Engagement: engagement}
}

func comment(id, text string) model.RawItem {
	return model.RawItem{ID: id, Kind: model.KindComment, Body: text, Source: "r/test", Engagement: 2}
}

func query() Query {
	return Query{Hypothesis: model.Hypothesis{Text: "remote designers feel isolated"}}
}
