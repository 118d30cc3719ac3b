// Package llm 实现 LLM 提供方：OpenAI 兼容接口与 Ollama
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// ErrNotConfigured 提供方缺少必要配置
var ErrNotConfigured = errors.New("provider not configured")

// OpenAIProvider OpenAI Chat Completions 提供方
// BaseURL 可指向任意 OpenAI 兼容服务
type OpenAIProvider struct {
	client     openai.Client
	model      string
	configured bool
	logger     *slog.Logger
}

// NewOpenAIProvider 创建 OpenAI 提供方
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// 重试交给编排层的降级逻辑
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      model,
		configured: apiKey != "" || baseURL != "",
		logger:     log.NewModuleLogger("llm", "openai"),
	}
}

// Kind 提供方类型
func (p *OpenAIProvider) Kind() domainRAG.ProviderKind {
	return domainRAG.ProviderOpenAI
}

// Model 默认模型
func (p *OpenAIProvider) Model() string {
	return p.model
}

// buildParams 构建 Chat Completions 参数
func (p *OpenAIProvider) buildParams(req *domainRAG.GenerationRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

// Generate 阻塞生成
func (p *OpenAIProvider) Generate(ctx context.Context, req *domainRAG.GenerationRequest) (string, error) {
	if !p.configured {
		return "", ErrNotConfigured
	}

	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	p.logger.DebugContext(ctx, "Chat completion finished",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Choices[0].Message.Content, nil
}

// Stream 流式生成
func (p *OpenAIProvider) Stream(ctx context.Context, req *domainRAG.GenerationRequest, emit func(string) error) (err error) {
	if !p.configured {
		return ErrNotConfigured
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, p.buildParams(req))
	defer func() {
		if closeErr := stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close stream: %w", closeErr)
		}
	}()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if err := emit(content); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("failed to receive stream response: %w", err)
	}
	return nil
}

// Ping 通过列出模型检查可用性
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if !p.configured {
		return ErrNotConfigured
	}
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	return nil
}

var _ domainRAG.Provider = (*OpenAIProvider)(nil)
