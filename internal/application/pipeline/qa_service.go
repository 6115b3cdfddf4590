package pipeline

import (
	"context"
	"encoding/json"
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

// 问答输入来源标识，也是产物目录与哈希账本键的命名空间
// 切换来源后旧账本键不再命中，文件会按新来源重新生成
const (
	qaSourceSummaries = "summaries"
	qaSourceRaw       = "raw"
)

// QAService 问答对生成服务
// 流水线为 分块生成 -> 去重归并 -> 质量评估，后两个阶段可关闭，
// 阶段失败时保留该阶段的输入继续
type QAService struct {
	registry  *apptask.Registry
	repoStore domainRepo.Store
	hashes    domainPipeline.HashStore
	chat      ChatClient
	counter   TokenCounter
	cfg       *config.PipelineConfig
	logger    *slog.Logger
}

// NewQAService 创建问答对生成服务
func NewQAService(
	registry *apptask.Registry,
	repoStore domainRepo.Store,
	hashes domainPipeline.HashStore,
	chat ChatClient,
	counter TokenCounter,
	cfg *config.PipelineConfig,
) *QAService {
	return &QAService{
		registry:  registry,
		repoStore: repoStore,
		hashes:    hashes,
		chat:      chat,
		counter:   counter,
		cfg:       cfg,
		logger:    log.NewModuleLogger("pipeline", "qa_service"),
	}
}

// Start 启动一次问答生成任务，立即返回任务快照
func (s *QAService) Start(repository string) (*domainTask.Task, error) {
	repo, err := s.repoStore.Get(repository)
	if err != nil {
		return nil, err
	}

	t, ctx, err := s.registry.Begin(domainTask.KindQA, repository)
	if err != nil {
		return nil, err
	}

	go s.run(ctx, t.ID, repo)

	return t, nil
}

// sourceDir 选择问答输入来源
// 配置要求用摘要且摘要目录非空时用摘要，否则退回原始文件
// 开启部分同步检测的知识库始终使用摘要来源：
// 摘要失败的文件没有摘要产物，绝不会从原始文件直接生成问答
func (s *QAService) sourceDir(repo *domainRepo.Repository) (string, string) {
	summaryDir := config.SummaryOutputDir(repo.Name)
	if repo.PartialSync.Enabled {
		return summaryDir, qaSourceSummaries
	}
	if s.cfg.QAFromSummaries {
		if files, err := listTextFiles(summaryDir); err == nil && len(files) > 0 {
			return summaryDir, qaSourceSummaries
		}
	}
	return config.CrawledDataDir(repo.Name), qaSourceRaw
}

// run 执行问答生成
func (s *QAService) run(ctx context.Context, taskID string, repo *domainRepo.Repository) {
	s.registry.MarkRunning(taskID)

	srcDir, source := s.sourceDir(repo)
	outDir := config.QAOutputDir(repo.Name, source)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		s.registry.Fail(taskID, fmt.Errorf("failed to create output directory: %w", err))
		return
	}

	files, err := listTextFiles(srcDir)
	if err != nil {
		s.registry.Fail(taskID, fmt.Errorf("failed to list source directory: %w", err))
		return
	}

	s.registry.UpdateProgress(taskID, 0, len(files))

	prompts := repo.Prompts.Merge(s.cfg.Prompts.ToDomain())

	chunkModel := "gpt-4o"
	if len(s.cfg.TokenModels) > 0 {
		chunkModel = s.cfg.TokenModels[0]
	}
	chunker := NewChunker(s.counter, chunkModel, s.cfg.ChunkSize, s.cfg.ChunkOverlap)

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := s.cfg.QAWorkers
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

			outcome, err := s.generateForFile(gctx, repo, prompts, chunker, srcDir, outDir, source, file)
			if err != nil {
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

	s.logger.Info("QA generation completed",
		"repository", repo.Name,
		"source", source,
		"files", len(files),
	)

	s.registry.Complete(taskID)
}

// generateForFile 为单个文件生成问答对产物
func (s *QAService) generateForFile(
	ctx context.Context,
	repo *domainRepo.Repository,
	prompts domainRepo.PromptConfig,
	chunker *Chunker,
	srcDir, outDir, source, file string,
) (string, error) {
	content, err := os.ReadFile(filepath.Join(srcDir, file))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := hashContent(content)
	ledgerKey := fmt.Sprintf("qa/%s/%s", source, file)
	should, err := s.hashes.ShouldProcess(repo.Name, ledgerKey, hash)
	if err != nil {
		return "", fmt.Errorf("failed to check content hash: %w", err)
	}
	if !should {
		return "skipped_unchanged", nil
	}

	// 分块阶段：关闭时整个文件作为单一窗口
	windows := []string{string(content)}
	if s.cfg.QAChunkEnabled {
		windows, err = chunker.Split(string(content))
		if err != nil {
			return "", fmt.Errorf("failed to chunk content: %w", err)
		}
	}

	var pairs []domainPipeline.QAPair
	for _, window := range windows {
		answer, err := s.chat.Chat(ctx, prompts.QASystemPrompt, buildPrompt(prompts.QAPrompt, window))
		if err != nil {
			if errors.Is(err, llm.ErrAuthFailed) || errors.Is(err, context.Canceled) {
				return "", err
			}
			// 单个窗口生成失败不致命，其余窗口继续
			s.logger.Warn("Failed to generate qa pairs for window",
				"repository", repo.Name,
				"file", file,
				"error", err,
			)
			continue
		}
		parsed, err := ParseQAPairs(answer)
		if err != nil {
			// 单个窗口解析失败不致命
			s.logger.Warn("Failed to parse qa pairs from window",
				"repository", repo.Name,
				"file", file,
				"error", err,
			)
			continue
		}
		pairs = append(pairs, parsed...)
	}

	if len(pairs) == 0 {
		return "", fmt.Errorf("no qa pairs generated")
	}

	pairs = s.reduce(ctx, repo.Name, file, prompts, pairs)
	pairs = s.evaluate(ctx, repo.Name, file, prompts, pairs)

	if err := s.writeArtifacts(outDir, file, pairs); err != nil {
		return "", err
	}

	if err := s.hashes.Record(repo.Name, ledgerKey, hash); err != nil {
		return "", fmt.Errorf("failed to record content hash: %w", err)
	}

	return "processed", nil
}

// reduce 去重归并阶段，失败时原样返回输入
func (s *QAService) reduce(ctx context.Context, repository, file string, prompts domainRepo.PromptConfig, pairs []domainPipeline.QAPair) []domainPipeline.QAPair {
	if !s.cfg.QAReduceEnabled {
		return pairs
	}

	encoded, err := json.Marshal(pairs)
	if err != nil {
		return pairs
	}

	answer, err := s.chat.Chat(ctx, prompts.QASystemPrompt, buildPrompt(prompts.ReducePrompt, string(encoded)))
	if err != nil {
		s.logger.Warn("QA reduce stage failed, keeping original pairs",
			"repository", repository,
			"file", file,
			"error", err,
		)
		return pairs
	}

	reduced, err := ParseQAPairs(answer)
	if err != nil || len(reduced) == 0 {
		s.logger.Warn("QA reduce output unparseable, keeping original pairs",
			"repository", repository,
			"file", file,
		)
		return pairs
	}
	return reduced
}

// evaluate 质量评估阶段，失败时原样返回输入
func (s *QAService) evaluate(ctx context.Context, repository, file string, prompts domainRepo.PromptConfig, pairs []domainPipeline.QAPair) []domainPipeline.QAPair {
	if !s.cfg.QAEvaluateEnabled {
		return pairs
	}

	encoded, err := json.Marshal(pairs)
	if err != nil {
		return pairs
	}

	answer, err := s.chat.Chat(ctx, prompts.QASystemPrompt, buildPrompt(prompts.EvaluatePrompt, string(encoded)))
	if err != nil {
		s.logger.Warn("QA evaluate stage failed, keeping original pairs",
			"repository", repository,
			"file", file,
			"error", err,
		)
		return pairs
	}

	evaluated, err := ParseQAPairs(answer)
	if err != nil || len(evaluated) == 0 {
		s.logger.Warn("QA evaluate output unparseable, keeping original pairs",
			"repository", repository,
			"file", file,
		)
		return pairs
	}
	return evaluated
}

// writeArtifacts 写出 JSON 与 CSV 两种问答产物
func (s *QAService) writeArtifacts(outDir, file string, pairs []domainPipeline.QAPair) error {
	base := baseName(file)

	encoded, err := json.MarshalIndent(pairs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal qa pairs: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, base+"_qa.json"), encoded, 0644); err != nil {
		return fmt.Errorf("failed to write qa json artifact: %w", err)
	}

	// CSV 形式使用制表符分隔，便于直接导入表格工具
	var b strings.Builder
	b.WriteString("question\tanswer\tself_eval\n")
	for _, p := range pairs {
		fmt.Fprintf(&b, "%s\t%s\t%d\n", escapeTSV(p.Question), escapeTSV(p.Answer), p.SelfEval)
	}
	if err := os.WriteFile(filepath.Join(outDir, base+"_qa.csv"), []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write qa csv artifact: %w", err)
	}

	return nil
}

// escapeTSV 替换会破坏制表符分隔格式的字符
func escapeTSV(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
