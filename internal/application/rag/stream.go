package rag

import (
	"context"
	"strings"
	"sync"

	domainRAG "github.com/ragcore/backend/internal/domain/rag"
)

// 默认流缓冲片段数
const defaultStreamBuffer = 32

// TextStream 有界、有限、不可重启的文本片段流
// 消费方放弃读取时必须调用 Cancel，生产方会随之停止
type TextStream struct {
	ch     chan string
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	err      error
	provider string
	response *domainRAG.QueryResponse
	once     sync.Once
}

// NewTextStream 创建流，生产方使用 Context() 感知取消
func NewTextStream(parent context.Context, buffer int) *TextStream {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &TextStream{
		ch:     make(chan string, buffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// NewStaticStream 只包含一个片段的已完成流
func NewStaticStream(text string, resp *domainRAG.QueryResponse) *TextStream {
	s := NewTextStream(context.Background(), 1)
	if text != "" {
		s.ch <- text
	}
	s.response = resp
	s.finish(nil)
	return s
}

// Context 生产方上下文，Cancel 后结束
func (s *TextStream) Context() context.Context {
	return s.ctx
}

// send 写入片段，缓冲区满时阻塞（背压）
func (s *TextStream) send(fragment string) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}
	select {
	case s.ch <- fragment:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// finish 结束流，只生效一次
func (s *TextStream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

func (s *TextStream) setProvider(name string) {
	s.mu.Lock()
	s.provider = name
	s.mu.Unlock()
}

// Provider 实际产生片段的提供方
func (s *TextStream) Provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

func (s *TextStream) setResponse(resp *domainRAG.QueryResponse) {
	s.mu.Lock()
	s.response = resp
	s.mu.Unlock()
}

// Response 流结束后的完整响应；生成流或被取消的流为 nil
func (s *TextStream) Response() *domainRAG.QueryResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response
}

// Next 读取下一个片段，流结束或 ctx 结束时返回 false
func (s *TextStream) Next(ctx context.Context) (string, bool) {
	select {
	case fragment, ok := <-s.ch:
		return fragment, ok
	case <-ctx.Done():
		return "", false
	}
}

// Err 流结束后的错误，正常完成为 nil
func (s *TextStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel 取消流并停止上游生成，可重复调用
func (s *TextStream) Cancel() {
	s.cancel()
}

// Collect 读取全部片段并拼接
func (s *TextStream) Collect(ctx context.Context) (string, error) {
	var sb strings.Builder
	for {
		fragment, ok := s.Next(ctx)
		if !ok {
			break
		}
		sb.WriteString(fragment)
	}
	if err := ctx.Err(); err != nil {
		s.Cancel()
		return sb.String(), err
	}
	return sb.String(), s.Err()
}
