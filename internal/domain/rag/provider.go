package rag

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProviderKind LLM 提供方类型
type ProviderKind string

const (
	ProviderOpenAI ProviderKind = "openai"
	ProviderOllama ProviderKind = "ollama"
)

// AllProviderKinds 已支持的提供方
var AllProviderKinds = []ProviderKind{ProviderOpenAI, ProviderOllama}

// ParseProviderKind 解析提供方名称
func ParseProviderKind(name string) (ProviderKind, error) {
	kind := ProviderKind(strings.ToLower(strings.TrimSpace(name)))
	for _, k := range AllProviderKinds {
		if k == kind {
			return k, nil
		}
	}
	return "", NewDomainError(ErrorTypeProviderNotFound, fmt.Sprintf("unknown provider %q", name), nil)
}

// String 实现 fmt.Stringer
func (k ProviderKind) String() string {
	return string(k)
}

// GenerationRequest 发送给提供方的生成请求
type GenerationRequest struct {
	SystemPrompt string
	Prompt       string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// Provider LLM 提供方协作接口
type Provider interface {
	// Kind 提供方类型
	Kind() ProviderKind
	// Model 使用的模型名
	Model() string
	// Generate 阻塞生成完整文本
	Generate(ctx context.Context, req *GenerationRequest) (string, error)
	// Stream 流式生成，每个片段调用一次 emit；emit 返回错误时应停止生成
	Stream(ctx context.Context, req *GenerationRequest, emit func(fragment string) error) error
	// Ping 健康检查，不触发生成
	Ping(ctx context.Context) error
}

// ProviderStatus 提供方健康状态
type ProviderStatus struct {
	Name      string    `json:"name"`
	Model     string    `json:"model"`
	Priority  int       `json:"priority"`
	Available bool      `json:"available"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}
