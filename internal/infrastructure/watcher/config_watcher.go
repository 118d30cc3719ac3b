package watcher

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ragcore/backend/internal/domain/events"
	"github.com/ragcore/backend/internal/infrastructure/config"
	"github.com/ragcore/backend/internal/infrastructure/log"
)

// defaultDebounceDelay 编辑器保存时通常触发多次写事件
const defaultDebounceDelay = 500 * time.Millisecond

// ReloadFunc 重新加载配置
type ReloadFunc func(path string) (*config.Config, error)

// ConfigWatcher 监听配置文件变化并发布 ConfigReloaded 事件
// 监听的是配置文件所在目录，兼容先删除再重命名的保存方式
type ConfigWatcher struct {
	path     string
	delay    time.Duration
	reload   ReloadFunc
	eventBus events.EventBus
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	timerMu sync.Mutex
	timer   *time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(path string, delay time.Duration, reload ReloadFunc, eventBus events.EventBus) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		delay = defaultDebounceDelay
	}
	if reload == nil {
		reload = config.Load
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return &ConfigWatcher{
		path:     abs,
		delay:    delay,
		reload:   reload,
		eventBus: eventBus,
		watcher:  w,
		logger:   log.NewModuleLogger("watcher", "config_watcher"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start 开始监听
func (cw *ConfigWatcher) Start() error {
	dir := filepath.Dir(cw.path)
	if err := cw.watcher.Add(dir); err != nil {
		return err
	}

	cw.logger.Info("Starting config watcher", "path", cw.path)

	cw.wg.Add(1)
	go cw.watchLoop()
	return nil
}

// Stop 停止监听，可重复调用
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopCh)
		cw.watcher.Close()
		cw.wg.Wait()

		cw.timerMu.Lock()
		if cw.timer != nil {
			cw.timer.Stop()
		}
		cw.timerMu.Unlock()

		cw.logger.Info("Config watcher stopped")
	})
}

func (cw *ConfigWatcher) watchLoop() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.stopCh:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFsEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 只关心目标文件的写入和创建
func (cw *ConfigWatcher) handleFsEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != cw.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	cw.debounce()
}

// debounce 合并短时间内的多次变更
func (cw *ConfigWatcher) debounce() {
	cw.timerMu.Lock()
	defer cw.timerMu.Unlock()

	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.delay, cw.reloadAndPublish)
}

// reloadAndPublish 重新加载配置，加载失败时保留旧配置
func (cw *ConfigWatcher) reloadAndPublish() {
	select {
	case <-cw.stopCh:
		return
	default:
	}

	cfg, err := cw.reload(cw.path)
	if err != nil {
		cw.logger.Warn("Config reload failed, keeping previous config", "path", cw.path, "error", err)
		return
	}

	cw.logger.Info("Config reloaded", "path", cw.path, "provider_priority", cfg.LLM.Priority)

	cw.eventBus.Publish(&events.ConfigEvent{
		Path:             cw.path,
		ProviderPriority: append([]string(nil), cfg.LLM.Priority...),
		EventTime:        time.Now(),
	})
}
