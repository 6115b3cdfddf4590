// Package crawl 实现知识库的网页爬取引擎
package crawl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	apptask "github.com/knowflow/backend/internal/application/task"
	domainCrawl "github.com/knowflow/backend/internal/domain/crawl"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/config"
	"github.com/knowflow/backend/internal/infrastructure/fetch"
	"github.com/knowflow/backend/internal/infrastructure/log"
)

// Fetcher 页面抓取接口
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// newFetcher 可替换的抓取器构造函数，测试时注入
type fetcherFactory func(opts fetch.Options) Fetcher

// Engine 爬取引擎
// 共享前沿队列 + 固定数量工作协程的 BFS 爬取
type Engine struct {
	registry   *apptask.Registry
	repoStore  domainRepo.Store
	crawlerCfg *config.CrawlerConfig
	newFetcher fetcherFactory
	logger     *slog.Logger
}

// NewEngine 创建爬取引擎
func NewEngine(registry *apptask.Registry, repoStore domainRepo.Store, crawlerCfg *config.CrawlerConfig) *Engine {
	return &Engine{
		registry:   registry,
		repoStore:  repoStore,
		crawlerCfg: crawlerCfg,
		newFetcher: func(opts fetch.Options) Fetcher { return fetch.NewFetcher(opts) },
		logger:     log.NewModuleLogger("crawl", "engine"),
	}
}

// Start 启动一次爬取任务，立即返回任务快照
func (e *Engine) Start(repository string) (*domainTask.Task, error) {
	repo, err := e.repoStore.Get(repository)
	if err != nil {
		return nil, err
	}
	if repo.Kind != domainRepo.SourceCrawled {
		return nil, fmt.Errorf("repository %s is not a crawled repository", repository)
	}
	if len(repo.Crawl.SeedURLs) == 0 {
		return nil, fmt.Errorf("repository %s has no seed urls", repository)
	}

	t, ctx, err := e.registry.Begin(domainTask.KindCrawl, repository)
	if err != nil {
		return nil, err
	}

	go e.run(ctx, t.ID, repo)

	return t, nil
}

// frontierItem 前沿队列条目
type frontierItem struct {
	url   string
	depth int
}

// crawlState 一次爬取的共享状态
type crawlState struct {
	mu         sync.Mutex
	visited    map[string]struct{}
	discovered int
	completed  int
	saved      int
}

// run 执行爬取
func (e *Engine) run(ctx context.Context, taskID string, repo *domainRepo.Repository) {
	e.registry.MarkRunning(taskID)

	dataDir := config.CrawledDataDir(repo.Name)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		e.registry.Fail(taskID, fmt.Errorf("failed to create data directory: %w", err))
		return
	}

	fetcher := e.newFetcher(e.fetchOptions(repo))
	blocklist := NewBlocklist(repo.Crawl.Blocklist)

	state := &crawlState{visited: make(map[string]struct{})}

	queue := make(chan frontierItem)
	var pending sync.WaitGroup

	// 种子入队，归一化后去重
	seeds := 0
	for _, seed := range repo.Crawl.SeedURLs {
		normalized := NormalizeURL(seed)

		state.mu.Lock()
		if _, dup := state.visited[normalized]; dup {
			state.mu.Unlock()
			e.registry.AppendResult(taskID, domainTask.ItemResult{
				Item:    normalized,
				Outcome: string(domainCrawl.OutcomeSkippedDuplicate),
			})
			continue
		}
		state.visited[normalized] = struct{}{}
		state.discovered++
		state.mu.Unlock()

		seeds++
		pending.Add(1)
		go func(u string) { queue <- frontierItem{url: u, depth: 0} }(normalized)
	}

	if seeds == 0 {
		e.registry.Fail(taskID, fmt.Errorf("no usable seed urls"))
		return
	}

	// 全部条目处理完后关闭队列
	go func() {
		pending.Wait()
		close(queue)
	}()

	workers := repo.Crawl.MaxThreads
	if workers <= 0 {
		workers = e.crawlerCfg.MaxThreads
	}
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for item := range queue {
				e.processURL(ctx, taskID, repo, fetcher, blocklist, dataDir, state, item, queue, &pending)
				pending.Done()
			}
		}(i)
	}

	wg.Wait()

	if ctx.Err() != nil {
		// 任务已被取消，注册表中的状态已是终态
		e.logger.Info("Crawl cancelled", "task_id", taskID, "repository", repo.Name)
		return
	}

	e.finishCrawl(taskID, repo, state, dataDir)
}

// fetchOptions 组合知识库配置与全局默认值
func (e *Engine) fetchOptions(repo *domainRepo.Repository) fetch.Options {
	userAgent := repo.Crawl.UserAgent
	if userAgent == "" {
		userAgent = e.crawlerCfg.UserAgent
	}

	timeout := time.Duration(repo.Crawl.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(e.crawlerCfg.TimeoutSeconds) * time.Second
	}

	return fetch.Options{
		UserAgent:         userAgent,
		Timeout:           timeout,
		RequestsPerSecond: e.crawlerCfg.RequestsPerSecond,
	}
}

// processURL 处理单个 URL：抓取、按需保存、发现子链接
func (e *Engine) processURL(
	ctx context.Context,
	taskID string,
	repo *domainRepo.Repository,
	fetcher Fetcher,
	blocklist *Blocklist,
	dataDir string,
	state *crawlState,
	item frontierItem,
	queue chan<- frontierItem,
	pending *sync.WaitGroup,
) {
	if ctx.Err() != nil {
		return
	}

	result := domainCrawl.PageResult{URL: item.url, Depth: item.depth}

	// PDF 直接下载，不受屏蔽列表限制
	if IsPDFURL(item.url) {
		e.savePDF(ctx, fetcher, dataDir, item.url, &result)
		e.recordResult(taskID, state, result)
		return
	}

	blocked := blocklist.Blocked(item.url)

	fetched, err := fetcher.Fetch(ctx, item.url)
	if err != nil {
		result.Outcome = domainCrawl.OutcomeError
		result.Error = err.Error()
		e.recordResult(taskID, state, result)
		return
	}

	if blocked {
		// 命中屏蔽列表：不保存内容，但仍参与链接发现
		result.Outcome = domainCrawl.OutcomeSkippedBlocklist
	} else if strings.Contains(fetched.ContentType, "application/pdf") {
		e.writePage(dataDir, URLToFilename(item.url)+".pdf", fetched.Body, &result)
	} else {
		text, err := fetch.ExtractText(fetched.Body)
		if err != nil {
			result.Outcome = domainCrawl.OutcomeError
			result.Error = err.Error()
			e.recordResult(taskID, state, result)
			return
		}
		e.writePage(dataDir, URLToFilename(item.url)+".txt", []byte(text), &result)
	}

	e.recordResult(taskID, state, result)

	// 深度上限内继续发现子链接
	if item.depth+1 > repo.Crawl.MaxDepth {
		return
	}

	links, err := fetch.ExtractLinks(item.url, fetched.Body)
	if err != nil {
		return
	}

	for _, link := range links {
		normalized := NormalizeURL(link)

		if !SameHost(normalized, item.url) || IsAssetURL(normalized) {
			continue
		}

		state.mu.Lock()
		if _, dup := state.visited[normalized]; dup {
			state.mu.Unlock()
			// 重复发现的链接也计入任务明细
			e.registry.AppendResult(taskID, domainTask.ItemResult{
				Item:    normalized,
				Outcome: string(domainCrawl.OutcomeSkippedDuplicate),
			})
			continue
		}
		state.visited[normalized] = struct{}{}
		state.discovered++
		state.mu.Unlock()

		pending.Add(1)
		go func(u string, depth int) {
			select {
			case queue <- frontierItem{url: u, depth: depth}:
			case <-ctx.Done():
				pending.Done()
			}
		}(normalized, item.depth+1)
	}
}

// savePDF 下载并保存 PDF 文件
func (e *Engine) savePDF(ctx context.Context, fetcher Fetcher, dataDir, url string, result *domainCrawl.PageResult) {
	fetched, err := fetcher.Fetch(ctx, url)
	if err != nil {
		result.Outcome = domainCrawl.OutcomeError
		result.Error = err.Error()
		return
	}
	e.writePage(dataDir, URLToFilename(url)+".pdf", fetched.Body, result)
}

// writePage 落盘页面内容并计算哈希
func (e *Engine) writePage(dataDir, filename string, content []byte, result *domainCrawl.PageResult) {
	path := filepath.Join(dataDir, filename)
	if err := os.WriteFile(path, content, 0644); err != nil {
		result.Outcome = domainCrawl.OutcomeError
		result.Error = err.Error()
		return
	}

	sum := sha256.Sum256(content)
	result.Outcome = domainCrawl.OutcomeSaved
	result.File = filename
	result.Hash = hex.EncodeToString(sum[:])
}

// recordResult 记录单个 URL 的结果并更新进度
func (e *Engine) recordResult(taskID string, state *crawlState, result domainCrawl.PageResult) {
	state.mu.Lock()
	state.completed++
	if result.Outcome == domainCrawl.OutcomeSaved {
		state.saved++
	}
	completed, discovered := state.completed, state.discovered
	state.mu.Unlock()

	e.registry.AppendResult(taskID, domainTask.ItemResult{
		Item:    result.URL,
		Outcome: string(result.Outcome),
		Error:   result.Error,
	})
	e.registry.UpdateProgress(taskID, completed, discovered)
}

// finishCrawl 爬取完成后刷新知识库状态
func (e *Engine) finishCrawl(taskID string, repo *domainRepo.Repository, state *crawlState, dataDir string) {
	state.mu.Lock()
	saved := state.saved
	completed := state.completed
	state.mu.Unlock()

	// 重新读取，避免覆盖爬取期间的配置变更
	current, err := e.repoStore.Get(repo.Name)
	if err != nil {
		e.registry.Fail(taskID, fmt.Errorf("failed to reload repository: %w", err))
		return
	}

	current.Status = domainRepo.StatusComplete
	if saved == 0 {
		current.Status = domainRepo.StatusIncomplete
	}
	current.FileCount = countFiles(dataDir)
	current.UpdatedAt = time.Now()

	if err := e.repoStore.Save(current); err != nil {
		e.registry.Fail(taskID, fmt.Errorf("failed to save repository: %w", err))
		return
	}

	e.logger.Info("Crawl completed",
		"task_id", taskID,
		"repository", repo.Name,
		"pages", completed,
		"saved", saved,
	)

	e.registry.Complete(taskID)
}

// countFiles 统计目录下的文件数
func countFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			count++
		}
	}
	return count
}
