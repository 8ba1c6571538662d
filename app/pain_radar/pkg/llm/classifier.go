package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxItemChars 单条目送入模型的最大字符数
const maxItemChars = 600

// Classifier 批量 yes/no 判定
type Classifier struct {
	completer Completer
}

// NewClassifier 创建分类器
func NewClassifier(c Completer) *Classifier {
	return &Classifier{completer: c}
}

// Task 一次批量判定的说明
type Task struct {
	// Question 对每个条目提出的是/否问题
	Question string
	// Context 假设描述等背景
	Context string
}

// Classify 对 texts 逐条给出判定，结果与输入按位置对应。
// 模型调用失败或输出无法解析时返回错误，由调用方决定保留整批。
func (c *Classifier) Classify(ctx context.Context, usage *Usage, task Task, texts []string) ([]Verdict, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	system := "You are a strict relevance classifier. Answer only in the requested format."
	raw, err := c.completer.Complete(ctx, usage, system, buildPrompt(task, texts))
	if err != nil {
		return nil, fmt.Errorf("classify batch of %d: %w", len(texts), err)
	}
	verdicts, err := ParseVerdicts(raw, len(texts))
	if err != nil {
		return nil, fmt.Errorf("classify batch of %d (output %q): %w", len(texts), Truncate(raw, 120), err)
	}
	return verdicts, nil
}

func buildPrompt(task Task, texts []string) string {
	var sb strings.Builder
	if task.Context != "" {
		fmt.Fprintf(&sb, "Context:\n%s\n\n", task.Context)
	}
	fmt.Fprintf(&sb, "Question for each item: %s\n\n", task.Question)
	for i, t := range texts {
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, oneLine(Truncate(t, maxItemChars)))
	}
	fmt.Fprintf(&sb, "\nRespond with exactly %d characters, one per item in order, Y for yes and N for no. "+
		"No spaces, no explanation. Example for 3 items: YNY", len(texts))
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate 按 rune 截断
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
