package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/knowflow/backend/internal/domain/events"
	"github.com/knowflow/backend/internal/infrastructure/log"
)

// WatchConfig UploadWatcher 配置
type WatchConfig struct {
	// DebounceDelay 防抖延迟
	DebounceDelay time.Duration
}

// DefaultWatchConfig 返回默认配置
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		DebounceDelay: 500 * time.Millisecond,
	}
}

// UploadWatcher 上传知识库数据目录监听器
// 监听各上传型知识库的数据目录，文件变更时发布事件以刷新文件计数和状态
type UploadWatcher struct {
	config   WatchConfig
	eventBus events.EventBus
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// repoByDir 监听目录到知识库名称的映射
	repoByDir map[string]string
	repoMu    sync.RWMutex

	// 防抖相关
	debounceTimers map[string]*time.Timer
	debounceMu     sync.Mutex

	// 控制
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewUploadWatcher 创建上传目录监听器
func NewUploadWatcher(config WatchConfig, eventBus events.EventBus) (*UploadWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &UploadWatcher{
		config:         config,
		eventBus:       eventBus,
		watcher:        watcher,
		logger:         log.NewModuleLogger("watcher", "upload_watcher"),
		repoByDir:      make(map[string]string),
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}, nil
}

// Start 启动监听循环
func (uw *UploadWatcher) Start() error {
	uw.logger.Info("Starting upload watcher")

	uw.wg.Add(1)
	go uw.watchLoop()

	return nil
}

// Stop 停止监听
func (uw *UploadWatcher) Stop() {
	uw.logger.Info("Stopping upload watcher")

	close(uw.stopCh)
	uw.watcher.Close()
	uw.wg.Wait()

	// 取消所有防抖定时器
	uw.debounceMu.Lock()
	for _, timer := range uw.debounceTimers {
		timer.Stop()
	}
	uw.debounceMu.Unlock()

	uw.logger.Info("Upload watcher stopped")
}

// WatchRepository 将某知识库的数据目录加入监听
func (uw *UploadWatcher) WatchRepository(repository, dataDir string) error {
	if err := uw.watcher.Add(dataDir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dataDir, err)
	}

	uw.repoMu.Lock()
	uw.repoByDir[dataDir] = repository
	uw.repoMu.Unlock()

	uw.logger.Info("Watching repository data directory",
		"repository", repository,
		"dir", dataDir,
	)

	return nil
}

// UnwatchRepository 停止监听某知识库的数据目录
func (uw *UploadWatcher) UnwatchRepository(dataDir string) {
	_ = uw.watcher.Remove(dataDir)

	uw.repoMu.Lock()
	delete(uw.repoByDir, dataDir)
	uw.repoMu.Unlock()
}

// watchLoop 事件监听循环
func (uw *UploadWatcher) watchLoop() {
	defer uw.wg.Done()

	for {
		select {
		case <-uw.stopCh:
			return

		case event, ok := <-uw.watcher.Events:
			if !ok {
				return
			}
			uw.handleFsEvent(event)

		case err, ok := <-uw.watcher.Errors:
			if !ok {
				return
			}
			uw.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleFsEvent 处理文件系统事件（带防抖）
func (uw *UploadWatcher) handleFsEvent(fsEvent fsnotify.Event) {
	repository := uw.repositoryForPath(fsEvent.Name)
	if repository == "" {
		return
	}

	uw.debounceMu.Lock()
	defer uw.debounceMu.Unlock()

	// 取消之前的定时器
	if timer, exists := uw.debounceTimers[fsEvent.Name]; exists {
		timer.Stop()
	}

	// 创建新的防抖定时器
	uw.debounceTimers[fsEvent.Name] = time.AfterFunc(uw.config.DebounceDelay, func() {
		uw.emitUploadEvent(repository, fsEvent)

		// 清理定时器
		uw.debounceMu.Lock()
		delete(uw.debounceTimers, fsEvent.Name)
		uw.debounceMu.Unlock()
	})
}

// repositoryForPath 根据文件路径找到所属知识库
func (uw *UploadWatcher) repositoryForPath(path string) string {
	dir := filepath.Dir(path)

	uw.repoMu.RLock()
	defer uw.repoMu.RUnlock()

	return uw.repoByDir[dir]
}

// emitUploadEvent 发送上传文件事件
func (uw *UploadWatcher) emitUploadEvent(repository string, fsEvent fsnotify.Event) {
	var eventType events.EventType
	switch {
	case fsEvent.Has(fsnotify.Create):
		eventType = events.UploadFileCreated
	case fsEvent.Has(fsnotify.Write):
		eventType = events.UploadFileModified
	case fsEvent.Has(fsnotify.Remove), fsEvent.Has(fsnotify.Rename):
		eventType = events.UploadFileDeleted
	default:
		return
	}

	uw.eventBus.Publish(events.NewUploadFileEvent(eventType, repository, fsEvent.Name))

	uw.logger.Debug("Upload file event emitted",
		"type", eventType,
		"repository", repository,
		"file", fsEvent.Name,
	)
}
