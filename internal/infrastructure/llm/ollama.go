package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// OllamaProvider 本地 Ollama 提供方
type OllamaProvider struct {
	client *api.Client
	model  string
	logger *slog.Logger
}

// NewOllamaProvider 创建 Ollama 提供方
func NewOllamaProvider(host, model string) (*OllamaProvider, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}
	return &OllamaProvider{
		client: api.NewClient(u, http.DefaultClient),
		model:  model,
		logger: log.NewModuleLogger("llm", "ollama"),
	}, nil
}

// Kind 提供方类型
func (p *OllamaProvider) Kind() domainRAG.ProviderKind {
	return domainRAG.ProviderOllama
}

// Model 默认模型
func (p *OllamaProvider) Model() string {
	return p.model
}

// buildChatRequest 构建 Chat 请求
func (p *OllamaProvider) buildChatRequest(req *domainRAG.GenerationRequest, stream bool) *api.ChatRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]api.Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	options := map[string]any{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	return &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Options:  options,
		Stream:   &stream,
	}
}

// Generate 阻塞生成
func (p *OllamaProvider) Generate(ctx context.Context, req *domainRAG.GenerationRequest) (string, error) {
	var sb strings.Builder
	err := p.client.Chat(ctx, p.buildChatRequest(req, false), func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to chat with ollama: %w", err)
	}
	return sb.String(), nil
}

// Stream 流式生成
func (p *OllamaProvider) Stream(ctx context.Context, req *domainRAG.GenerationRequest, emit func(string) error) error {
	err := p.client.Chat(ctx, p.buildChatRequest(req, true), func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return emit(resp.Message.Content)
	})
	if err != nil {
		return fmt.Errorf("failed to chat with ollama: %w", err)
	}
	return nil
}

// Ping 心跳检查
func (p *OllamaProvider) Ping(ctx context.Context) error {
	if err := p.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat failed: %w", err)
	}
	return nil
}

var _ domainRAG.Provider = (*OllamaProvider)(nil)
