package llm

import (
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Usage 单次请求的模型调用计数，贯穿所有分类/向量调用，请求结束时 Close。
// 各批次并发调用，内部加锁。
type Usage struct {
	mu     sync.Mutex
	closed bool
	sum    UsageSummary
}

// UsageSummary 调用与 token 统计
type UsageSummary struct {
	CompletionCalls  int `json:"completion_calls"`
	EmbeddingCalls   int `json:"embedding_calls"`
	FailedCalls      int `json:"failed_calls"`
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	EmbeddedTexts    int `json:"embedded_texts"`
	LateRecords      int `json:"late_records,omitempty"`
}

// TotalTokens prompt + completion
func (s UsageSummary) TotalTokens() int {
	return s.PromptTokens + s.CompletionTokens
}

// NewUsage 创建计数器
func NewUsage() *Usage {
	return &Usage{}
}

// RecordCompletion 记录一次对话补全
func (u *Usage) RecordCompletion(msg *schema.Message) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		u.sum.LateRecords++
		return
	}
	u.sum.CompletionCalls++
	if msg != nil && msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		u.sum.PromptTokens += msg.ResponseMeta.Usage.PromptTokens
		u.sum.CompletionTokens += msg.ResponseMeta.Usage.CompletionTokens
	}
}

// RecordEmbedding 记录一次向量调用
func (u *Usage) RecordEmbedding(texts int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		u.sum.LateRecords++
		return
	}
	u.sum.EmbeddingCalls++
	u.sum.EmbeddedTexts += texts
}

// RecordFailure 记录一次失败调用
func (u *Usage) RecordFailure() {
	if u == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		u.sum.LateRecords++
		return
	}
	u.sum.FailedCalls++
}

// Snapshot 当前统计
func (u *Usage) Snapshot() UsageSummary {
	if u == nil {
		return UsageSummary{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sum
}

// Close 结束计数并返回最终统计，之后的记录只计入 LateRecords
func (u *Usage) Close() UsageSummary {
	if u == nil {
		return UsageSummary{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	return u.sum
}
