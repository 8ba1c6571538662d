package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/logger"
)

// Completer 一次 system+user 的文本补全，分类、关键词、社区发现都基于它
type Completer interface {
	Complete(ctx context.Context, usage *Usage, system, user string) (string, error)
}

// Client 基于 eino ChatModel 的补全客户端，带限流与 429 退避重试
type Client struct {
	chatModel  model.BaseChatModel
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

var _ Completer = (*Client)(nil)

// NewChatModel 初始化 OpenAI 兼容的对话模型
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.BaseChatModel, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return chatModel, nil
}

// NewLimiter 按 RPM/QPS 配置生成限流器
func NewLimiter(cfg config.ConcurrencyConfig) *rate.Limiter {
	if cfg.RPM <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.QPS
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(cfg.RPM)/60.0), burst)
}

// NewClient 创建补全客户端
func NewClient(cm model.BaseChatModel, limiter *rate.Limiter, maxRetries int) *Client {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		chatModel:  cm,
		limiter:    limiter,
		maxRetries: maxRetries,
		baseDelay:  2 * time.Second,
	}
}

// Complete 调用模型，遇到限流错误时指数退避
func (c *Client) Complete(ctx context.Context, usage *Usage, system, user string) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: system},
		{Role: schema.User, Content: user},
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		resp, err := c.chatModel.Generate(ctx, messages)
		if err != nil {
			usage.RecordFailure()
			lastErr = err
			if isRateLimited(err) && i < c.maxRetries {
				delay := c.baseDelay * time.Duration(1<<i)
				logger.Log.Warnf("模型限流，%v 后重试 (%d/%d)", delay, i+1, c.maxRetries)
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return "", err
		}
		usage.RecordCompletion(resp)
		return resp.Content, nil
	}
	return "", fmt.Errorf("failed after retries: %w", lastErr)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit")
}
