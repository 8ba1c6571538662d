package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/pain_radar/app/pain_radar/pkg/config"
)

// HTTPEmbedder 调用 OpenAI 兼容的 /embeddings 接口
type HTTPEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

var _ embedding.Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder 创建向量客户端，未单独配置时沿用 LLM 的地址和密钥
func NewHTTPEmbedder(cfg config.EmbeddingConfig, llmCfg config.LLMConfig) *HTTPEmbedder {
	baseURL, apiKey := cfg.BaseURL, cfg.APIKey
	if baseURL == "" {
		baseURL = llmCfg.BaseURL
	}
	if apiKey == "" {
		apiKey = llmCfg.APIKey
	}
	t := time.Duration(cfg.Timeout) * time.Second
	if t == 0 {
		t = 30 * time.Second
	}
	return &HTTPEmbedder{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: t},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// EmbedStrings implements embedding.Embedder
func (e *HTTPEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	payload, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	res, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding api error (status %d): %s", res.StatusCode, Truncate(string(body), 200))
	}

	var out embeddingResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response failed: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("embedding api error: %s", out.Error.Message)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(out.Data), len(texts))
	}

	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vecs := make([][]float64, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// Scorer 在 Embedder 外包一层限流与用量统计
type Scorer struct {
	embedder embedding.Embedder
	limiter  *rate.Limiter
}

// NewScorer 创建相似度计算器
func NewScorer(e embedding.Embedder, limiter *rate.Limiter) *Scorer {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Scorer{embedder: e, limiter: limiter}
}

// Embed 单批向量化
func (s *Scorer) Embed(ctx context.Context, usage *Usage, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	vecs, err := s.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		usage.RecordFailure()
		return nil, err
	}
	if len(vecs) != len(texts) {
		usage.RecordFailure()
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	usage.RecordEmbedding(len(texts))
	return vecs, nil
}

// EmbedBatched 按 size 分批顺序向量化，任一批失败即返回错误
func (s *Scorer) EmbedBatched(ctx context.Context, usage *Usage, texts []string, size int) ([][]float64, error) {
	if size <= 0 || len(texts) <= size {
		return s.Embed(ctx, usage, texts)
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := s.Embed(ctx, usage, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Cosine 余弦相似度，任一向量为零或维度不同返回 0
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
