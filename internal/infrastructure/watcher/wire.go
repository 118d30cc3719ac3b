package watcher

import (
	"github.com/google/wire"
	"github.com/ragcore/backend/internal/domain/events"
	"github.com/ragcore/backend/internal/infrastructure/config"
)

// ProviderSet 事件总线与配置监听 Provider
var ProviderSet = wire.NewSet(
	ProvideEventBus,
	ProvideConfigWatcher,
)

// ProvideEventBus 提供事件总线
func ProvideEventBus() events.EventBus {
	return NewEventBus()
}

// ProvideConfigWatcher 监听当前配置文件
// 配置未从文件加载时监听默认路径，文件创建后即生效
func ProvideConfigWatcher(cfg *config.Config, bus events.EventBus) (*ConfigWatcher, error) {
	path := cfg.Path()
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return NewConfigWatcher(path, 0, config.Load, bus)
}
