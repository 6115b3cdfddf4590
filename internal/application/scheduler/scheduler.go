// Package scheduler 按配置的频率自动更新爬取型知识库
// 更新序列为 爬取 -> token 统计 -> (摘要 -> 问答 ->) 对账
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"log/slog"

	apptask "github.com/knowflow/backend/internal/application/task"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/config"
	"github.com/knowflow/backend/internal/infrastructure/log"
)

// TaskStarter 可以为某个知识库启动一次异步任务的服务
type TaskStarter interface {
	Start(repository string) (*domainTask.Task, error)
}

// ErrorSink 自动更新失败的上报出口
type ErrorSink interface {
	ReportError(repository, stage string, err error)
}

// slogErrorSink 默认实现，仅写结构化日志
type slogErrorSink struct {
	logger *slog.Logger
}

// NewSlogErrorSink 创建日志版错误上报
func NewSlogErrorSink() ErrorSink {
	return &slogErrorSink{logger: log.NewModuleLogger("scheduler", "error_sink")}
}

func (s *slogErrorSink) ReportError(repository, stage string, err error) {
	s.logger.Error("Auto update failed",
		"repository", repository,
		"stage", stage,
		"error", err,
	)
}

// stage 更新序列中的一个阶段
type stage struct {
	name    string
	starter TaskStarter
}

// Stages 更新序列用到的各阶段服务
type Stages struct {
	Crawl   TaskStarter
	Token   TaskStarter
	Summary TaskStarter
	QA      TaskStarter
	Sync    TaskStarter
}

// Scheduler 自动更新调度器
type Scheduler struct {
	registry  *apptask.Registry
	repoStore domainRepo.Store
	stages    Stages
	cfg       *config.SchedulerConfig
	errorSink ErrorSink
	logger    *slog.Logger

	loc *time.Location

	mu      sync.Mutex
	running map[string]bool // repository -> 序列执行中

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler 创建自动更新调度器
func NewScheduler(
	registry *apptask.Registry,
	repoStore domainRepo.Store,
	stages Stages,
	cfg *config.SchedulerConfig,
	errorSink ErrorSink,
) *Scheduler {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.Local
	}

	return &Scheduler{
		registry:  registry,
		repoStore: repoStore,
		stages:    stages,
		cfg:       cfg,
		errorSink: errorSink,
		logger:    log.NewModuleLogger("scheduler", "scheduler"),
		loc:       loc,
		running:   make(map[string]bool),
		stopCh:    make(chan struct{}),
	}
}

// Start 启动调度循环
func (s *Scheduler) Start() {
	s.logger.Info("Starting auto update scheduler", "timezone", s.loc.String())

	s.wg.Add(1)
	go s.loop()
}

// Stop 停止调度循环，等待进行中的序列结束
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Auto update scheduler stopped")
}

// loop 每分钟检查一次到期的知识库
func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(time.Now())
		}
	}
}

// tick 找出到期的知识库并启动更新序列
func (s *Scheduler) tick(now time.Time) {
	repos, err := s.repoStore.List()
	if err != nil {
		s.logger.Error("Failed to list repositories", "error", err)
		return
	}

	for _, repo := range repos {
		if repo.Kind != domainRepo.SourceCrawled {
			continue
		}
		if !isDue(repo.AutoUpdate, now, s.loc) {
			continue
		}

		s.mu.Lock()
		if s.running[repo.Name] {
			s.mu.Unlock()
			continue
		}
		s.running[repo.Name] = true
		s.mu.Unlock()

		s.wg.Add(1)
		go func(name string) {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.running, name)
				s.mu.Unlock()
			}()
			s.RunSequence(name)
		}(repo.Name)
	}
}

// RunSequence 执行一次完整的更新序列
// 每个阶段失败后按配置重试，最终失败时知识库标记为 error 并上报
func (s *Scheduler) RunSequence(repository string) {
	repo, err := s.repoStore.Get(repository)
	if err != nil {
		s.logger.Error("Failed to load repository", "repository", repository, "error", err)
		return
	}

	// 序列启动即记录 LastRun，避免失败后每分钟重试
	now := time.Now()
	repo.AutoUpdate.LastRun = &now
	if err := s.repoStore.Save(repo); err != nil {
		s.logger.Error("Failed to record last run", "repository", repository, "error", err)
		return
	}

	s.logger.Info("Auto update started", "repository", repository)

	stages := []stage{
		{name: "crawl", starter: s.stages.Crawl},
		{name: "token", starter: s.stages.Token},
	}
	if repo.DirectImport {
		stages = append(stages, stage{name: "sync", starter: s.stages.Sync})
	} else {
		stages = append(stages,
			stage{name: "summary", starter: s.stages.Summary},
			stage{name: "qa", starter: s.stages.QA},
			stage{name: "sync", starter: s.stages.Sync},
		)
	}

	for _, st := range stages {
		if err := s.runStage(repository, st); err != nil {
			s.markFailed(repository, st.name, err)
			return
		}
	}

	s.logger.Info("Auto update completed", "repository", repository)
}

// runStage 执行单个阶段，失败后重试
func (s *Scheduler) runStage(repository string, st stage) error {
	attempts := s.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		task, err := st.starter.Start(repository)
		if err != nil {
			lastErr = err
		} else {
			finished := s.awaitTask(task.ID)
			switch finished.State {
			case domainTask.StateCompleted:
				return nil
			case domainTask.StateCancelled:
				return fmt.Errorf("stage %s cancelled", st.name)
			default:
				lastErr = fmt.Errorf("stage %s failed: %s", st.name, finished.Error)
			}
		}

		s.logger.Warn("Stage attempt failed",
			"repository", repository,
			"stage", st.name,
			"attempt", attempt,
			"error", lastErr,
		)
	}

	return lastErr
}

// awaitTask 轮询任务直到终态
func (s *Scheduler) awaitTask(taskID string) *domainTask.Task {
	interval := time.Duration(s.cfg.PollSeconds) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	for {
		task, err := s.registry.Get(taskID)
		if err != nil {
			// 任务已被清理，按取消处理
			return &domainTask.Task{ID: taskID, State: domainTask.StateCancelled}
		}
		if task.State.Terminal() {
			return task
		}

		select {
		case <-s.stopCh:
			_ = s.registry.Cancel(taskID)
		case <-time.After(interval):
		}
	}
}

// markFailed 序列最终失败：知识库标记 error 并上报
func (s *Scheduler) markFailed(repository, stageName string, err error) {
	s.errorSink.ReportError(repository, stageName, err)

	repo, getErr := s.repoStore.Get(repository)
	if getErr != nil {
		return
	}
	repo.Status = domainRepo.StatusError
	repo.UpdatedAt = time.Now()
	if saveErr := s.repoStore.Save(repo); saveErr != nil {
		s.logger.Error("Failed to mark repository as errored",
			"repository", repository,
			"error", saveErr,
		)
	}
}
