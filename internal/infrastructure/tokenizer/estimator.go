// Package tokenizer 提供上下文组装使用的 Token 估算
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/ragcore/backend/internal/infrastructure/log"
)

// 在包初始化时设置离线加载器，避免运行时下载 BPE 文件
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// DefaultEncoding 默认编码（GPT-4 系列兼容）
const DefaultEncoding = "cl100k_base"

// Estimator Token 估算器
// 优先使用 tiktoken，编码加载失败时回退到 字符数/4
type Estimator struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

var (
	defaultEstimator *Estimator
	defaultOnce      sync.Once
)

// NewEstimator 创建估算器（进程内共享编码表）
func NewEstimator() *Estimator {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			log.NewModuleLogger("tokenizer", "estimator").Warn("Failed to load tiktoken encoding, falling back to char estimate",
				"encoding", DefaultEncoding,
				"error", err,
			)
		}
		defaultEstimator = &Estimator{encoding: enc}
	})
	return defaultEstimator
}

// NewCharEstimator 创建只按字符估算的估算器
func NewCharEstimator() *Estimator {
	return &Estimator{}
}

// CountTokens 估算文本的 Token 数量
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e == nil || e.encoding == nil {
		return EstimateByChars(text)
	}

	// tiktoken 的编码缓存不是并发安全的
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.encoding.Encode(text, nil, nil))
}

// Method 返回计算方法标识
func (e *Estimator) Method() string {
	if e == nil || e.encoding == nil {
		return "chars"
	}
	return "tiktoken"
}

// EstimateByChars 按 4 字符 ≈ 1 Token 估算（向上取整）
func EstimateByChars(text string) int {
	n := len(text)
	return (n + 3) / 4
}
