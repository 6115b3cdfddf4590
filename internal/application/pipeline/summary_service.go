package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"log/slog"

	"golang.org/x/sync/errgroup"

	apptask "github.com/knowflow/backend/internal/application/task"
	domainPipeline "github.com/knowflow/backend/internal/domain/pipeline"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/config"
	"github.com/knowflow/backend/internal/infrastructure/llm"
	"github.com/knowflow/backend/internal/infrastructure/log"
)

// SummaryService 摘要生成服务
// 通过内容哈希账本做增量处理：仅对新增或变化的文件调用 LLM
type SummaryService struct {
	registry  *apptask.Registry
	repoStore domainRepo.Store
	hashes    domainPipeline.HashStore
	chat      ChatClient
	cfg       *config.PipelineConfig
	logger    *slog.Logger
}

// NewSummaryService 创建摘要生成服务
func NewSummaryService(
	registry *apptask.Registry,
	repoStore domainRepo.Store,
	hashes domainPipeline.HashStore,
	chat ChatClient,
	cfg *config.PipelineConfig,
) *SummaryService {
	return &SummaryService{
		registry:  registry,
		repoStore: repoStore,
		hashes:    hashes,
		chat:      chat,
		cfg:       cfg,
		logger:    log.NewModuleLogger("pipeline", "summary_service"),
	}
}

// Start 启动一次摘要生成任务，立即返回任务快照
func (s *SummaryService) Start(repository string) (*domainTask.Task, error) {
	repo, err := s.repoStore.Get(repository)
	if err != nil {
		return nil, err
	}

	t, ctx, err := s.registry.Begin(domainTask.KindSummary, repository)
	if err != nil {
		return nil, err
	}

	go s.run(ctx, t.ID, repo)

	return t, nil
}

// run 执行摘要生成
func (s *SummaryService) run(ctx context.Context, taskID string, repo *domainRepo.Repository) {
	s.registry.MarkRunning(taskID)

	dataDir := config.CrawledDataDir(repo.Name)
	outDir := config.SummaryOutputDir(repo.Name)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		s.registry.Fail(taskID, fmt.Errorf("failed to create output directory: %w", err))
		return
	}

	files, err := listTextFiles(dataDir)
	if err != nil {
		s.registry.Fail(taskID, fmt.Errorf("failed to list data directory: %w", err))
		return
	}

	s.registry.UpdateProgress(taskID, 0, len(files))

	prompts := repo.Prompts.Merge(s.cfg.Prompts.ToDomain())

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := s.cfg.SummaryWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, file := range files {
		file := file
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			outcome, err := s.summarizeFile(gctx, repo, prompts, dataDir, outDir, file)
			if err != nil {
				// 认证失败或取消使整个任务失败，其余错误只影响单个文件
				if errors.Is(err, llm.ErrAuthFailed) || errors.Is(err, context.Canceled) {
					return err
				}
				s.registry.AppendResult(taskID, domainTask.ItemResult{
					Item:    file,
					Outcome: "error",
					Error:   err.Error(),
				})
			} else {
				s.registry.AppendResult(taskID, domainTask.ItemResult{Item: file, Outcome: outcome})
			}

			mu.Lock()
			done++
			current := done
			mu.Unlock()
			s.registry.UpdateProgress(taskID, current, len(files))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.registry.Fail(taskID, err)
		return
	}

	s.logger.Info("Summary generation completed",
		"repository", repo.Name,
		"files", len(files),
	)

	s.registry.Complete(taskID)
}

// summarizeFile 处理单个文件，返回结果标识
func (s *SummaryService) summarizeFile(
	ctx context.Context,
	repo *domainRepo.Repository,
	prompts domainRepo.PromptConfig,
	dataDir, outDir, file string,
) (string, error) {
	content, err := os.ReadFile(filepath.Join(dataDir, file))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := hashContent(content)
	should, err := s.hashes.ShouldProcess(repo.Name, file, hash)
	if err != nil {
		return "", fmt.Errorf("failed to check content hash: %w", err)
	}
	if !should {
		return "skipped_unchanged", nil
	}

	summary, err := s.chat.Chat(ctx, prompts.SummarySystemPrompt, buildPrompt(prompts.SummaryPrompt, string(content)))
	if err != nil {
		return "", err
	}

	artifactPath := filepath.Join(outDir, baseName(file)+"_summary.txt")
	if err := os.WriteFile(artifactPath, []byte(summary), 0644); err != nil {
		return "", fmt.Errorf("failed to write summary artifact: %w", err)
	}

	// 部分同步检测：摘要中包含失败标记时，产物删除但哈希照常记录，
	// 该文件在内容变化前不会再被重试
	if repo.PartialSync.Enabled && repo.PartialSync.FailureMarker != "" &&
		strings.Contains(summary, repo.PartialSync.FailureMarker) {
		if err := os.Remove(artifactPath); err != nil {
			return "", fmt.Errorf("failed to remove partial summary artifact: %w", err)
		}
		if err := s.hashes.Record(repo.Name, file, hash); err != nil {
			return "", fmt.Errorf("failed to record content hash: %w", err)
		}
		s.logger.Warn("Partial sync failure detected",
			"repository", repo.Name,
			"file", file,
		)
		return "partial_sync_failure", nil
	}

	// 哈希仅在产物成功写入后记录
	if err := s.hashes.Record(repo.Name, file, hash); err != nil {
		return "", fmt.Errorf("failed to record content hash: %w", err)
	}

	return "processed", nil
}
