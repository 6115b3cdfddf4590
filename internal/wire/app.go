package wire

import (
	"database/sql"

	"log/slog"

	appcrawl "github.com/knowflow/backend/internal/application/crawl"
	apppipeline "github.com/knowflow/backend/internal/application/pipeline"
	apprepo "github.com/knowflow/backend/internal/application/repository"
	appscheduler "github.com/knowflow/backend/internal/application/scheduler"
	appsync "github.com/knowflow/backend/internal/application/sync"
	apptask "github.com/knowflow/backend/internal/application/task"
	"github.com/knowflow/backend/internal/domain/events"
	applog "github.com/knowflow/backend/internal/infrastructure/log"
	"github.com/knowflow/backend/internal/infrastructure/watcher"
)

// App 应用主结构，组合所有服务
type App struct {
	Repositories *apprepo.Service
	Tasks        *apptask.Registry
	Crawler      *appcrawl.Engine
	Tokens       *apppipeline.TokenService
	Summaries    *apppipeline.SummaryService
	QA           *apppipeline.QAService
	Reconciler   *appsync.Reconciler
	Scheduler    *appscheduler.Scheduler

	eventBus      events.EventBus
	uploadWatcher *watcher.UploadWatcher
	db            *sql.DB
	logger        *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	repositories *apprepo.Service,
	tasks *apptask.Registry,
	crawler *appcrawl.Engine,
	tokens *apppipeline.TokenService,
	summaries *apppipeline.SummaryService,
	qa *apppipeline.QAService,
	reconciler *appsync.Reconciler,
	scheduler *appscheduler.Scheduler,
	eventBus events.EventBus,
	uploadWatcher *watcher.UploadWatcher,
	db *sql.DB,
) *App {
	return &App{
		Repositories:  repositories,
		Tasks:         tasks,
		Crawler:       crawler,
		Tokens:        tokens,
		Summaries:     summaries,
		QA:            qa,
		Reconciler:    reconciler,
		Scheduler:     scheduler,
		eventBus:      eventBus,
		uploadWatcher: uploadWatcher,
		db:            db,
		logger:        applog.NewModuleLogger("app", "main"),
	}
}

// Start 启动所有后台服务
func (a *App) Start() error {
	a.logger.Info("Starting knowflow backend")

	a.Tasks.Start()

	if err := a.uploadWatcher.Start(); err != nil {
		return err
	}

	// 恢复上传知识库的目录监听与事件订阅
	if err := a.Repositories.Start(); err != nil {
		return err
	}

	a.Scheduler.Start()

	a.logger.Info("Knowflow backend started")
	return nil
}

// Stop 停止所有后台服务
func (a *App) Stop() error {
	a.logger.Info("Stopping knowflow backend")

	a.Scheduler.Stop()
	a.Repositories.Stop()
	a.uploadWatcher.Stop()
	a.Tasks.Stop()
	a.eventBus.Close()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database connection", "error", err)
			return err
		}
	}

	a.logger.Info("Knowflow backend stopped")
	return nil
}
