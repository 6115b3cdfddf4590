package crawl

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apptask "github.com/knowflow/backend/internal/application/task"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/config"
)

// fakeRepoStore 内存版知识库存储
type fakeRepoStore struct {
	repos map[string]*domainRepo.Repository
}

func newFakeRepoStore() *fakeRepoStore {
	return &fakeRepoStore{repos: make(map[string]*domainRepo.Repository)}
}

func (s *fakeRepoStore) Save(repo *domainRepo.Repository) error {
	clone := *repo
	s.repos[repo.Name] = &clone
	return nil
}

func (s *fakeRepoStore) Get(name string) (*domainRepo.Repository, error) {
	repo, ok := s.repos[name]
	if !ok {
		return nil, domainRepo.ErrNotFound
	}
	clone := *repo
	return &clone, nil
}

func (s *fakeRepoStore) List() ([]*domainRepo.Repository, error) {
	var result []*domainRepo.Repository
	for _, repo := range s.repos {
		clone := *repo
		result = append(result, &clone)
	}
	return result, nil
}

func (s *fakeRepoStore) Delete(name string) error {
	delete(s.repos, name)
	return nil
}

// setupCrawlTest 创建测试服务器与引擎
func setupCrawlTest(t *testing.T, pages map[string]string) (*httptest.Server, *Engine, *apptask.Registry, *fakeRepoStore) {
	t.Helper()

	tmpDir := t.TempDir()
	t.Setenv(config.EnvDataDir, tmpDir)
	config.ResetDataDir()
	t.Cleanup(config.ResetDataDir)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	registry := apptask.NewRegistry(nil)
	store := newFakeRepoStore()
	engine := NewEngine(registry, store, &config.CrawlerConfig{
		UserAgent:      "test-crawler",
		TimeoutSeconds: 5,
		MaxThreads:     2,
	})

	return server, engine, registry, store
}

// waitForTask 等待任务进入终态
func waitForTask(t *testing.T, registry *apptask.Registry, taskID string) *domainTask.Task {
	t.Helper()

	var result *domainTask.Task
	require.Eventually(t, func() bool {
		got, err := registry.Get(taskID)
		if err != nil {
			return false
		}
		if got.State.Terminal() {
			result = got
			return true
		}
		return false
	}, 10*time.Second, 20*time.Millisecond)

	return result
}

// outcomesByURL 任务结果按 URL 索引
func outcomesByURL(task *domainTask.Task) map[string]string {
	result := make(map[string]string)
	for _, r := range task.Results {
		result[r.Item] = r.Outcome
	}
	return result
}

func TestEngine_DepthBound(t *testing.T) {
	server, engine, registry, store := setupCrawlTest(t, map[string]string{
		"/":  `<html><body><a href="/a">a</a></body></html>`,
		"/a": `<html><body><a href="/b">b</a></body></html>`,
		"/b": `<html><body><a href="/c">c</a></body></html>`,
		"/c": `<html><body>deep</body></html>`,
	})

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:   "docs",
		Kind:   domainRepo.SourceCrawled,
		Status: domainRepo.StatusNotStarted,
		Crawl: domainRepo.CrawlConfig{
			SeedURLs: []string{server.URL + "/"},
			MaxDepth: 1,
		},
		TokenCounts: map[string]int{},
	}))

	task, err := engine.Start("docs")
	require.NoError(t, err)

	finished := waitForTask(t, registry, task.ID)
	assert.Equal(t, domainTask.StateCompleted, finished.State)

	outcomes := outcomesByURL(finished)
	assert.Equal(t, "saved", outcomes[server.URL+"/"])
	assert.Equal(t, "saved", outcomes[server.URL+"/a"])
	// 深度 2 及以上的页面不被爬取
	assert.NotContains(t, outcomes, server.URL+"/b")
	assert.NotContains(t, outcomes, server.URL+"/c")

	// 知识库状态刷新
	repo, err := store.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, domainRepo.StatusComplete, repo.Status)
	assert.Equal(t, 2, repo.FileCount)
}

func TestEngine_BlocklistBlocksStorageNotExploration(t *testing.T) {
	server, engine, registry, store := setupCrawlTest(t, map[string]string{
		"/":        `<html><body><a href="/listing">listing</a></body></html>`,
		"/listing": `<html><body><a href="/detail">detail</a></body></html>`,
		"/detail":  `<html><body>target content</body></html>`,
	})

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:   "docs",
		Kind:   domainRepo.SourceCrawled,
		Status: domainRepo.StatusNotStarted,
		Crawl: domainRepo.CrawlConfig{
			SeedURLs:  []string{server.URL + "/"},
			MaxDepth:  3,
			Blocklist: []string{`/listing`},
		},
		TokenCounts: map[string]int{},
	}))

	task, err := engine.Start("docs")
	require.NoError(t, err)

	finished := waitForTask(t, registry, task.ID)
	assert.Equal(t, domainTask.StateCompleted, finished.State)

	outcomes := outcomesByURL(finished)
	// 命中屏蔽列表的页面不保存
	assert.Equal(t, "skipped_blocklist", outcomes[server.URL+"/listing"])
	// 但其子链接仍被发现并保存
	assert.Equal(t, "saved", outcomes[server.URL+"/detail"])

	// 落盘文件中没有被屏蔽的页面
	dataDir := config.CrawledDataDir("docs")
	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), "listing")
	}
}

func TestEngine_DuplicateLinksProcessedOnce(t *testing.T) {
	server, engine, registry, store := setupCrawlTest(t, map[string]string{
		"/":  `<html><body><a href="/a">a</a><a href="/b">b</a></body></html>`,
		"/a": `<html><body><a href="/b">b again</a></body></html>`,
		"/b": `<html><body>shared</body></html>`,
	})

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:   "docs",
		Kind:   domainRepo.SourceCrawled,
		Status: domainRepo.StatusNotStarted,
		Crawl: domainRepo.CrawlConfig{
			SeedURLs: []string{server.URL + "/"},
			MaxDepth: 2,
		},
		TokenCounts: map[string]int{},
	}))

	task, err := engine.Start("docs")
	require.NoError(t, err)

	finished := waitForTask(t, registry, task.ID)
	assert.Equal(t, domainTask.StateCompleted, finished.State)

	// /b 只抓取一次，重复发现记为 skipped_duplicate
	saved, duplicates := 0, 0
	for _, r := range finished.Results {
		if r.Item != server.URL+"/b" {
			continue
		}
		switch r.Outcome {
		case "saved":
			saved++
		case "skipped_duplicate":
			duplicates++
		}
	}
	assert.Equal(t, 1, saved)
	assert.Equal(t, 1, duplicates)
}

func TestEngine_DuplicateSeedsSkipped(t *testing.T) {
	server, engine, registry, store := setupCrawlTest(t, map[string]string{
		"/": `<html><body>root</body></html>`,
	})

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:   "docs",
		Kind:   domainRepo.SourceCrawled,
		Status: domainRepo.StatusNotStarted,
		Crawl: domainRepo.CrawlConfig{
			// 两个种子归一化后相同
			SeedURLs: []string{server.URL + "/", server.URL + "/"},
			MaxDepth: 0,
		},
		TokenCounts: map[string]int{},
	}))

	task, err := engine.Start("docs")
	require.NoError(t, err)

	finished := waitForTask(t, registry, task.ID)
	assert.Equal(t, domainTask.StateCompleted, finished.State)

	outcomes := outcomesByURL(finished)
	assert.Equal(t, "saved", outcomes[server.URL+"/"])

	skipped := 0
	for _, r := range finished.Results {
		if r.Outcome == "skipped_duplicate" {
			skipped++
		}
	}
	assert.Equal(t, 1, skipped)
}

func TestEngine_FetchErrorIsNonFatal(t *testing.T) {
	server, engine, registry, store := setupCrawlTest(t, map[string]string{
		"/":   `<html><body><a href="/missing">gone</a><a href="/ok">ok</a></body></html>`,
		"/ok": `<html><body>fine</body></html>`,
	})

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:   "docs",
		Kind:   domainRepo.SourceCrawled,
		Status: domainRepo.StatusNotStarted,
		Crawl: domainRepo.CrawlConfig{
			SeedURLs: []string{server.URL + "/"},
			MaxDepth: 1,
		},
		TokenCounts: map[string]int{},
	}))

	task, err := engine.Start("docs")
	require.NoError(t, err)

	finished := waitForTask(t, registry, task.ID)
	// 单个页面失败不影响任务完成
	assert.Equal(t, domainTask.StateCompleted, finished.State)

	outcomes := outcomesByURL(finished)
	assert.Equal(t, "error", outcomes[server.URL+"/missing"])
	assert.Equal(t, "saved", outcomes[server.URL+"/ok"])
}

func TestEngine_UploadedRepositoryRejected(t *testing.T) {
	_, engine, _, store := setupCrawlTest(t, nil)

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:        "uploads",
		Kind:        domainRepo.SourceUploaded,
		Status:      domainRepo.StatusNotStarted,
		TokenCounts: map[string]int{},
	}))

	_, err := engine.Start("uploads")
	assert.Error(t, err)
}
