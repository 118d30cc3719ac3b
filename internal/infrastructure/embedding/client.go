// Package embedding 封装 OpenAI 兼容的 Embedding API
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/ragcore/backend/internal/infrastructure/log"
)

const (
	defaultMaxRetries = 3
	requestTimeout    = 30 * time.Second
)

// Client Embedding API 客户端，429 与 5xx 由 SDK 退避重试
type Client struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewClient 创建 Embedding 客户端
// baseURL 可以是服务根地址、.../v1 或完整的 .../v1/embeddings
func NewClient(baseURL, apiKey, model string) *Client {
	opts := []option.RequestOption{
		option.WithMaxRetries(defaultMaxRetries),
		option.WithRequestTimeout(requestTimeout),
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(baseURL)))
	}

	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
		logger: log.NewModuleLogger("embedding", "client"),
	}
}

// normalizeBaseURL 统一为以 /v1/ 结尾的 API 根地址
func normalizeBaseURL(baseURL string) string {
	base := strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	base = strings.TrimSuffix(base, "/embeddings")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/"
}

// EmbedQuery 向量化单条查询
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embedding API returned an empty vector")
	}
	return vectors[0], nil
}

// EmbedTexts 批量向量化，结果按输入顺序排列
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("texts cannot be empty")
	}

	c.logger.DebugContext(ctx, "Sending embedding request", "batch_size", len(texts), "model", c.model)

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Embedding request failed", "error", err)
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		vectors[data.Index] = vec
	}
	return vectors, nil
}
