package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragcore/backend/internal/domain/events"
	domainRAG "github.com/ragcore/backend/internal/domain/rag"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
	"github.com/ragcore/backend/internal/infrastructure/metrics"
)

const (
	defaultProviderTimeout = 30 * time.Second
	providerPingTimeout    = 5 * time.Second
)

// 提供方调用结果
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
)

// ErrProviderAlreadyRegistered 重复注册提供方
var ErrProviderAlreadyRegistered = errors.New("provider already registered")

// GenerationResult 生成结果
type GenerationResult struct {
	Text     string
	Provider domainRAG.ProviderKind
	Model    string
}

// GenerationService 多提供方生成编排
// 按优先级依次尝试，超时或失败时降级到下一个提供方，不对同一提供方重试
type GenerationService struct {
	mu        sync.RWMutex
	providers map[domainRAG.ProviderKind]domainRAG.Provider
	priority  []domainRAG.ProviderKind

	timeout      time.Duration
	maxTokens    int
	temperature  float64
	systemPrompt string
	streamBuffer int

	pool     *WorkerPool
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewGenerationService 创建生成编排，providers 的顺序即默认优先级
func NewGenerationService(
	providers []domainRAG.Provider,
	cfg *config.LLMConfig,
	pipelineCfg *config.PipelineConfig,
	pool *WorkerPool,
	recorder *metrics.Recorder,
) (*GenerationService, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	s := &GenerationService{
		providers:    make(map[domainRAG.ProviderKind]domainRAG.Provider),
		timeout:      timeout,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: systemPrompt,
		streamBuffer: pipelineCfg.StreamBuffer,
		pool:         pool,
		recorder:     recorder,
		logger:       log.NewModuleLogger("rag", "generation"),
	}
	for _, p := range providers {
		if err := s.Register(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register 注册提供方，追加到优先级末尾
func (s *GenerationService) Register(p domainRAG.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.providers[p.Kind()]; ok {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, p.Kind())
	}
	s.providers[p.Kind()] = p
	s.priority = append(s.priority, p.Kind())
	return nil
}

// SetPriority 调整优先级，未列出的已注册提供方保持原有相对顺序追加在末尾
func (s *GenerationService) SetPriority(kinds []domainRAG.ProviderKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[domainRAG.ProviderKind]bool, len(kinds))
	next := make([]domainRAG.ProviderKind, 0, len(s.providers))
	for _, kind := range kinds {
		if _, ok := s.providers[kind]; !ok {
			return domainRAG.NewDomainError(domainRAG.ErrorTypeProviderNotFound,
				fmt.Sprintf("provider %s is not registered", kind), nil)
		}
		if !seen[kind] {
			seen[kind] = true
			next = append(next, kind)
		}
	}
	for _, kind := range s.priority {
		if !seen[kind] {
			next = append(next, kind)
		}
	}

	s.priority = next
	s.logger.Info("Provider priority updated", "priority", next)
	return nil
}

// HandleEvent 配置重新加载后应用新的优先级，未注册的提供方被忽略
func (s *GenerationService) HandleEvent(event events.Event) error {
	reloaded, ok := event.(*events.ConfigEvent)
	if !ok || len(reloaded.ProviderPriority) == 0 {
		return nil
	}

	kinds := make([]domainRAG.ProviderKind, 0, len(reloaded.ProviderPriority))
	for _, name := range reloaded.ProviderPriority {
		kind, err := domainRAG.ParseProviderKind(name)
		if err != nil {
			s.logger.Warn("Ignoring unknown provider in reloaded config", "provider", name)
			continue
		}
		s.mu.RLock()
		_, registered := s.providers[kind]
		s.mu.RUnlock()
		if !registered {
			s.logger.Warn("Ignoring unregistered provider in reloaded config", "provider", kind)
			continue
		}
		kinds = append(kinds, kind)
	}
	return s.SetPriority(kinds)
}

// Priority 当前优先级
func (s *GenerationService) Priority() []domainRAG.ProviderKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domainRAG.ProviderKind(nil), s.priority...)
}

// candidates 候选提供方：首选提供方（已注册时）在前，其余按优先级
func (s *GenerationService) candidates(preferred string) []domainRAG.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domainRAG.Provider, 0, len(s.priority))
	var first domainRAG.ProviderKind
	if preferred != "" {
		if kind, err := domainRAG.ParseProviderKind(preferred); err == nil {
			if p, ok := s.providers[kind]; ok {
				first = kind
				out = append(out, p)
			}
		}
	}
	for _, kind := range s.priority {
		if kind != first {
			out = append(out, s.providers[kind])
		}
	}
	return out
}

// buildRequest 合并请求选项与默认配置
func (s *GenerationService) buildRequest(query, contextText string, opts domainRAG.QueryOptions) *domainRAG.GenerationRequest {
	req := &domainRAG.GenerationRequest{
		SystemPrompt: s.systemPrompt,
		Prompt:       BuildPrompt(query, contextText),
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	}
	if opts.SystemPrompt != "" {
		req.SystemPrompt = opts.SystemPrompt
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	return req
}

// attemptError 记录一次尝试的结果并返回包装后的错误
func (s *GenerationService) attemptError(parent, attemptCtx context.Context, p domainRAG.Provider, err error) error {
	if parent.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		s.recorder.IncProviderCall(p.Kind().String(), outcomeTimeout)
		return fmt.Errorf("%s: %w", p.Kind(),
			domainRAG.NewDomainError(domainRAG.ErrorTypeTimeout, "generation timed out after "+s.timeout.String(), err))
	}
	s.recorder.IncProviderCall(p.Kind().String(), outcomeError)
	return fmt.Errorf("%s: %w", p.Kind(), err)
}

// Generate 阻塞生成，按候选顺序降级
func (s *GenerationService) Generate(ctx context.Context, query, contextText string, opts domainRAG.QueryOptions) (*GenerationResult, error) {
	candidates := s.candidates(opts.Provider)
	if len(candidates) == 0 {
		return nil, domainRAG.NewUpstreamError("generation", errors.New("no providers registered"))
	}

	req := s.buildRequest(query, contextText, opts)
	var errs []error
	for i, p := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		text, err := p.Generate(attemptCtx, req)
		if err == nil {
			cancel()
			s.recorder.IncProviderCall(p.Kind().String(), outcomeOK)
			if i > 0 {
				s.logger.InfoContext(ctx, "Generation served by fallback provider", "provider", p.Kind())
			}
			return &GenerationResult{Text: text, Provider: p.Kind(), Model: p.Model()}, nil
		}
		err = s.attemptError(ctx, attemptCtx, p, err)
		cancel()

		s.logger.WarnContext(ctx, "Provider generation failed",
			"provider", p.Kind(),
			"error", err,
		)
		errs = append(errs, err)
	}

	return nil, domainRAG.NewUpstreamError("generation", errors.Join(errs...))
}

// GenerateAsync 在工作池中生成
func (s *GenerationService) GenerateAsync(ctx context.Context, query, contextText string, opts domainRAG.QueryOptions) (*Future[*GenerationResult], error) {
	taskCtx := context.WithoutCancel(ctx)
	return SubmitFuture(ctx, s.pool, func() (*GenerationResult, error) {
		return s.Generate(taskCtx, query, contextText, opts)
	})
}

// GenerateStreaming 流式生成
// 只在输出第一个片段前降级；之后的失败直接结束流
func (s *GenerationService) GenerateStreaming(ctx context.Context, query, contextText string, opts domainRAG.QueryOptions) (*TextStream, error) {
	candidates := s.candidates(opts.Provider)
	if len(candidates) == 0 {
		return nil, domainRAG.NewUpstreamError("generation", errors.New("no providers registered"))
	}

	stream := NewTextStream(ctx, s.streamBuffer)
	req := s.buildRequest(query, contextText, opts)

	go func() {
		streamCtx := stream.Context()
		var errs []error
		for _, p := range candidates {
			if streamCtx.Err() != nil {
				stream.finish(streamCtx.Err())
				return
			}

			started := false
			attemptCtx, cancel := context.WithTimeout(streamCtx, s.timeout)
			err := p.Stream(attemptCtx, req, func(fragment string) error {
				if !started {
					started = true
					stream.setProvider(p.Kind().String())
				}
				return stream.send(fragment)
			})
			if err == nil {
				cancel()
				s.recorder.IncProviderCall(p.Kind().String(), outcomeOK)
				stream.finish(nil)
				return
			}
			err = s.attemptError(streamCtx, attemptCtx, p, err)
			cancel()

			if started || streamCtx.Err() != nil {
				s.logger.WarnContext(ctx, "Streaming generation interrupted",
					"provider", p.Kind(),
					"error", err,
				)
				stream.finish(err)
				return
			}
			s.logger.WarnContext(ctx, "Provider streaming failed before first fragment",
				"provider", p.Kind(),
				"error", err,
			)
			errs = append(errs, err)
		}
		stream.finish(domainRAG.NewUpstreamError("generation", errors.Join(errs...)))
	}()

	return stream, nil
}

// IsProviderAvailable 健康检查，不触发生成
func (s *GenerationService) IsProviderAvailable(ctx context.Context, name string) bool {
	kind, err := domainRAG.ParseProviderKind(name)
	if err != nil {
		return false
	}
	s.mu.RLock()
	p, ok := s.providers[kind]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, providerPingTimeout)
	defer cancel()
	return p.Ping(pingCtx) == nil
}

// GetProviderStatus 并发检查全部提供方
func (s *GenerationService) GetProviderStatus(ctx context.Context) map[string]domainRAG.ProviderStatus {
	s.mu.RLock()
	priority := append([]domainRAG.ProviderKind(nil), s.priority...)
	providers := make([]domainRAG.Provider, len(priority))
	for i, kind := range priority {
		providers[i] = s.providers[kind]
	}
	s.mu.RUnlock()

	statuses := make([]domainRAG.ProviderStatus, len(providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(gctx, providerPingTimeout)
			defer cancel()

			status := domainRAG.ProviderStatus{
				Name:      p.Kind().String(),
				Model:     p.Model(),
				Priority:  i + 1,
				Available: true,
			}
			if err := p.Ping(pingCtx); err != nil {
				status.Available = false
				status.Error = err.Error()
			}
			status.CheckedAt = time.Now()
			statuses[i] = status
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]domainRAG.ProviderStatus, len(statuses))
	for _, st := range statuses {
		result[st.Name] = st
	}
	return result
}

// AnyAvailable 是否至少有一个提供方可用
func (s *GenerationService) AnyAvailable(ctx context.Context) bool {
	for _, st := range s.GetProviderStatus(ctx) {
		if st.Available {
			return true
		}
	}
	return false
}
