// Package repository 提供知识库的管理服务
package repository

import (
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/knowflow/backend/internal/domain/events"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	"github.com/knowflow/backend/internal/infrastructure/config"
	"github.com/knowflow/backend/internal/infrastructure/log"
)

// DirWatcher 上传目录监听能力
type DirWatcher interface {
	WatchRepository(repository, dataDir string) error
	UnwatchRepository(dataDir string)
}

// CreateParams 创建知识库的参数
type CreateParams struct {
	Name         string
	Kind         domainRepo.SourceKind
	Crawl        domainRepo.CrawlConfig
	DirectImport bool
	PartialSync  domainRepo.PartialSync
	Prompts      *domainRepo.PromptConfig
}

// Service 知识库管理服务
// 上传型知识库的数据目录由文件监听器跟踪，文件变更时自动刷新计数
type Service struct {
	store    domainRepo.Store
	watcher  DirWatcher
	eventBus events.EventBus
	cfg      *config.PipelineConfig
	logger   *slog.Logger

	unsubscribe func()
}

// NewService 创建知识库管理服务
// watcher 与 eventBus 可以为 nil（不启用上传目录监听）
func NewService(store domainRepo.Store, watcher DirWatcher, eventBus events.EventBus, cfg *config.PipelineConfig) *Service {
	return &Service{
		store:    store,
		watcher:  watcher,
		eventBus: eventBus,
		cfg:      cfg,
		logger:   log.NewModuleLogger("repository", "service"),
	}
}

// Start 恢复已有上传知识库的目录监听并订阅文件变更事件
func (s *Service) Start() error {
	if s.eventBus != nil {
		s.unsubscribe = s.eventBus.SubscribeMultiple(
			[]events.EventType{
				events.UploadFileCreated,
				events.UploadFileModified,
				events.UploadFileDeleted,
			},
			events.HandlerFunc(s.handleUploadEvent),
		)
	}

	if s.watcher == nil {
		return nil
	}

	repos, err := s.store.List()
	if err != nil {
		return fmt.Errorf("failed to list repositories: %w", err)
	}
	for _, repo := range repos {
		if repo.Kind != domainRepo.SourceUploaded {
			continue
		}
		dataDir := config.CrawledDataDir(repo.Name)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := s.watcher.WatchRepository(repo.Name, dataDir); err != nil {
			s.logger.Error("Failed to watch upload directory",
				"repository", repo.Name,
				"error", err,
			)
		}
	}
	return nil
}

// Stop 取消事件订阅
func (s *Service) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Create 创建知识库
func (s *Service) Create(params CreateParams) (*domainRepo.Repository, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("repository name is required")
	}
	if !params.Kind.Valid() {
		return nil, fmt.Errorf("invalid source kind: %s", params.Kind)
	}
	if params.Kind == domainRepo.SourceCrawled && len(params.Crawl.SeedURLs) == 0 {
		return nil, fmt.Errorf("crawled repository requires at least one seed url")
	}

	if _, err := s.store.Get(params.Name); err == nil {
		return nil, domainRepo.ErrAlreadyExists
	}

	now := time.Now()
	repo := &domainRepo.Repository{
		Name:         params.Name,
		Kind:         params.Kind,
		Status:       domainRepo.StatusNotStarted,
		Crawl:        params.Crawl,
		PartialSync:  params.PartialSync,
		DirectImport: params.DirectImport,
		TokenCounts:  map[string]int{},
		Prompts:      params.Prompts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	dataDir := config.CrawledDataDir(repo.Name)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.store.Save(repo); err != nil {
		return nil, err
	}

	// 上传型知识库的数据目录立即纳入监听
	if repo.Kind == domainRepo.SourceUploaded && s.watcher != nil {
		if err := s.watcher.WatchRepository(repo.Name, dataDir); err != nil {
			s.logger.Error("Failed to watch upload directory",
				"repository", repo.Name,
				"error", err,
			)
		}
	}

	s.logger.Info("Repository created",
		"repository", repo.Name,
		"kind", repo.Kind,
	)

	return repo, nil
}

// Get 按名称获取知识库
func (s *Service) Get(name string) (*domainRepo.Repository, error) {
	return s.store.Get(name)
}

// List 列出所有知识库
func (s *Service) List() ([]*domainRepo.Repository, error) {
	return s.store.List()
}

// Delete 删除知识库及其本地产物
// 内容哈希账本保留：同名知识库重建后未变化的文件不会重复处理
func (s *Service) Delete(name string) error {
	repo, err := s.store.Get(name)
	if err != nil {
		return err
	}

	dataDir := config.CrawledDataDir(name)
	if repo.Kind == domainRepo.SourceUploaded && s.watcher != nil {
		s.watcher.UnwatchRepository(dataDir)
	}

	if err := s.store.Delete(name); err != nil {
		return err
	}

	for _, dir := range []string{
		dataDir,
		config.SummaryOutputDir(name),
		config.TokenCountDir(name),
		config.QAOutputDir(name, "summaries"),
		config.QAOutputDir(name, "raw"),
	} {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Error("Failed to remove artifact directory",
				"repository", name,
				"dir", dir,
				"error", err,
			)
		}
	}

	s.logger.Info("Repository deleted", "repository", name)
	return nil
}

// SetAutoUpdate 配置自动更新
// 上传型知识库没有可重复执行的获取过程，不允许启用
func (s *Service) SetAutoUpdate(name string, enabled bool, frequency domainRepo.Frequency) error {
	repo, err := s.store.Get(name)
	if err != nil {
		return err
	}

	if enabled {
		if !repo.CanAutoUpdate() {
			return domainRepo.ErrUploadedAutoUpdate
		}
		if !frequency.Valid() {
			return domainRepo.ErrInvalidFrequency
		}
	}

	repo.AutoUpdate.Enabled = enabled
	if enabled {
		repo.AutoUpdate.Frequency = frequency
	}
	repo.UpdatedAt = time.Now()
	return s.store.Save(repo)
}

// SetDirectImport 切换同步模式
// 实际的远端清理在下一次对账时发生
func (s *Service) SetDirectImport(name string, direct bool) error {
	repo, err := s.store.Get(name)
	if err != nil {
		return err
	}

	repo.DirectImport = direct
	repo.UpdatedAt = time.Now()
	return s.store.Save(repo)
}

// SetPrompts 设置知识库级提示词覆盖，nil 表示清除覆盖
func (s *Service) SetPrompts(name string, prompts *domainRepo.PromptConfig) error {
	repo, err := s.store.Get(name)
	if err != nil {
		return err
	}

	repo.Prompts = prompts
	repo.UpdatedAt = time.Now()
	return s.store.Save(repo)
}

// SetPartialSync 配置部分同步检测
func (s *Service) SetPartialSync(name string, ps domainRepo.PartialSync) error {
	repo, err := s.store.Get(name)
	if err != nil {
		return err
	}

	repo.PartialSync = ps
	repo.UpdatedAt = time.Now()
	return s.store.Save(repo)
}

// UpdateCrawlConfig 更新爬取参数
func (s *Service) UpdateCrawlConfig(name string, crawl domainRepo.CrawlConfig) error {
	repo, err := s.store.Get(name)
	if err != nil {
		return err
	}
	if repo.Kind != domainRepo.SourceCrawled {
		return fmt.Errorf("repository %s is not a crawled repository", name)
	}

	repo.Crawl = crawl
	repo.UpdatedAt = time.Now()
	return s.store.Save(repo)
}

// EffectivePrompts 返回知识库实际生效的提示词（全局配置叠加知识库覆盖）
func (s *Service) EffectivePrompts(name string) (domainRepo.PromptConfig, error) {
	repo, err := s.store.Get(name)
	if err != nil {
		return domainRepo.PromptConfig{}, err
	}
	return repo.Prompts.Merge(s.cfg.Prompts.ToDomain()), nil
}

// handleUploadEvent 处理上传目录的文件变更事件，刷新文件计数与状态
func (s *Service) handleUploadEvent(event events.Event) error {
	uploadEvent, ok := event.(*events.UploadFileEvent)
	if !ok {
		return nil
	}
	return s.RefreshFileCount(uploadEvent.Repository)
}

// RefreshFileCount 重新统计数据目录的文件数并刷新状态
func (s *Service) RefreshFileCount(name string) error {
	repo, err := s.store.Get(name)
	if err != nil {
		return err
	}

	count, err := countFiles(config.CrawledDataDir(name))
	if err != nil {
		return err
	}

	repo.FileCount = count
	if repo.Kind == domainRepo.SourceUploaded {
		if count > 0 {
			repo.Status = domainRepo.StatusComplete
		} else {
			repo.Status = domainRepo.StatusNotStarted
		}
	}
	repo.UpdatedAt = time.Now()

	if err := s.store.Save(repo); err != nil {
		return err
	}

	s.logger.Debug("File count refreshed",
		"repository", name,
		"files", count,
	)
	return nil
}

// countFiles 统计目录下的普通文件数，目录不存在视为 0
func countFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	return count, nil
}
