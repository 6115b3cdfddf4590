package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	apptask "github.com/knowflow/backend/internal/application/task"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/config"
	"github.com/knowflow/backend/internal/infrastructure/log"
)

// TokenService token 统计服务
// 每次全量重算，不走内容哈希账本
type TokenService struct {
	registry  *apptask.Registry
	repoStore domainRepo.Store
	counter   TokenCounter
	cfg       *config.PipelineConfig
	logger    *slog.Logger
}

// NewTokenService 创建 token 统计服务
func NewTokenService(registry *apptask.Registry, repoStore domainRepo.Store, counter TokenCounter, cfg *config.PipelineConfig) *TokenService {
	return &TokenService{
		registry:  registry,
		repoStore: repoStore,
		counter:   counter,
		cfg:       cfg,
		logger:    log.NewModuleLogger("pipeline", "token_service"),
	}
}

// Start 启动一次 token 统计任务，立即返回任务快照
func (s *TokenService) Start(repository string) (*domainTask.Task, error) {
	repo, err := s.repoStore.Get(repository)
	if err != nil {
		return nil, err
	}

	t, ctx, err := s.registry.Begin(domainTask.KindToken, repository)
	if err != nil {
		return nil, err
	}

	go s.run(ctx, t.ID, repo)

	return t, nil
}

// run 执行 token 统计
func (s *TokenService) run(ctx context.Context, taskID string, repo *domainRepo.Repository) {
	s.registry.MarkRunning(taskID)

	dataDir := config.CrawledDataDir(repo.Name)
	files, err := listTextFiles(dataDir)
	if err != nil {
		s.registry.Fail(taskID, fmt.Errorf("failed to list data directory: %w", err))
		return
	}

	s.registry.UpdateProgress(taskID, 0, len(files))

	var (
		mu      sync.Mutex
		perFile = make(map[string]map[string]int) // file -> model -> count
		totals  = make(map[string]int)            // model -> total
		done    int
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := s.cfg.TokenWorkers
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

			content, err := os.ReadFile(filepath.Join(dataDir, file))
			if err != nil {
				s.registry.AppendResult(taskID, domainTask.ItemResult{
					Item:    file,
					Outcome: "error",
					Error:   err.Error(),
				})
				return nil
			}

			counts := make(map[string]int, len(s.cfg.TokenModels))
			for _, model := range s.cfg.TokenModels {
				n, err := s.counter.CountTokens(model, string(content))
				if err != nil {
					return fmt.Errorf("failed to count tokens for %s: %w", file, err)
				}
				counts[model] = n
			}

			mu.Lock()
			perFile[file] = counts
			for model, n := range counts {
				totals[model] += n
			}
			done++
			current := done
			mu.Unlock()

			s.registry.AppendResult(taskID, domainTask.ItemResult{Item: file, Outcome: "processed"})
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

	if err := s.writeLedgers(repo.Name, perFile, totals); err != nil {
		s.registry.Fail(taskID, err)
		return
	}

	// 刷新知识库的 token 统计与文件计数
	current, err := s.repoStore.Get(repo.Name)
	if err != nil {
		s.registry.Fail(taskID, fmt.Errorf("failed to reload repository: %w", err))
		return
	}
	current.TokenCounts = totals
	current.FileCount = len(files)
	current.UpdatedAt = time.Now()
	if err := s.repoStore.Save(current); err != nil {
		s.registry.Fail(taskID, fmt.Errorf("failed to save repository: %w", err))
		return
	}

	s.logger.Info("Token counting completed",
		"repository", repo.Name,
		"files", len(files),
	)

	s.registry.Complete(taskID)
}

// writeLedgers 写出各模型的 token 统计账本
// 格式：每行 "<file>: <count>"，末尾 "Total: <count>"
func (s *TokenService) writeLedgers(repository string, perFile map[string]map[string]int, totals map[string]int) error {
	ledgerDir := config.TokenCountDir(repository)
	if err := os.MkdirAll(ledgerDir, 0755); err != nil {
		return fmt.Errorf("failed to create token count directory: %w", err)
	}

	files := make([]string, 0, len(perFile))
	for file := range perFile {
		files = append(files, file)
	}
	sort.Strings(files)

	for _, model := range s.cfg.TokenModels {
		var b strings.Builder
		for _, file := range files {
			fmt.Fprintf(&b, "%s: %d\n", file, perFile[file][model])
		}
		fmt.Fprintf(&b, "Total: %d\n", totals[model])

		ledgerPath := filepath.Join(ledgerDir, model+"_token_count.txt")
		if err := os.WriteFile(ledgerPath, []byte(b.String()), 0644); err != nil {
			return fmt.Errorf("failed to write token ledger: %w", err)
		}
	}

	return nil
}
