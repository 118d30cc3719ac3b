package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// 默认异步并发数
const defaultAsyncWorkers = 8

var (
	// ErrPoolClosed 工作池已关闭
	ErrPoolClosed = errors.New("worker pool closed")
	// ErrFutureNotReady 任务尚未完成
	ErrFutureNotReady = errors.New("future not ready")
)

// WorkerPool 有界异步工作池
type WorkerPool struct {
	sem    *semaphore.Weighted
	size   int64
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	logger *slog.Logger
}

// NewWorkerPool 创建工作池
func NewWorkerPool(cfg *config.PipelineConfig) *WorkerPool {
	size := int64(cfg.AsyncWorkers)
	if size <= 0 {
		size = defaultAsyncWorkers
	}
	return &WorkerPool{
		sem:    semaphore.NewWeighted(size),
		size:   size,
		logger: log.NewModuleLogger("rag", "worker_pool"),
	}
}

// Size 最大并发数
func (p *WorkerPool) Size() int {
	return int(p.size)
}

// Submit 提交任务，池满时阻塞直到有空位或 ctx 结束
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return err
	}

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Async task panicked", "panic", r)
			}
		}()
		fn()
	}()
	return nil
}

// Close 拒绝新任务并等待运行中的任务结束
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Future 异步任务句柄，只解析一次
type Future[T any] struct {
	id    string
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// NewFuture 创建未完成的句柄
func NewFuture[T any]() *Future[T] {
	return &Future[T]{
		id:   uuid.New().String(),
		done: make(chan struct{}),
	}
}

// ID 任务 ID
func (f *Future[T]) ID() string {
	return f.id
}

// Done 完成时关闭
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Await 等待结果；ctx 结束只放弃等待，不取消任务
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result 非阻塞读取结果，未完成时返回 ErrFutureNotReady
func (f *Future[T]) Result() (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
		var zero T
		return zero, ErrFutureNotReady
	}
}

// SubmitFuture 在工作池中执行 fn 并返回句柄
func SubmitFuture[T any](ctx context.Context, pool *WorkerPool, fn func() (T, error)) (*Future[T], error) {
	f := NewFuture[T]()
	err := pool.Submit(ctx, func() {
		var (
			value T
			err   error
		)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.resolve(zero, fmt.Errorf("async task panicked: %v", r))
				panic(r)
			}
			f.resolve(value, err)
		}()
		value, err = fn()
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}
