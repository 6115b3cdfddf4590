package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apptask "github.com/knowflow/backend/internal/application/task"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/config"
)

// fakeRepoStore 内存版知识库存储
type fakeRepoStore struct {
	mu    sync.Mutex
	repos map[string]*domainRepo.Repository
}

func newFakeRepoStore() *fakeRepoStore {
	return &fakeRepoStore{repos: make(map[string]*domainRepo.Repository)}
}

func (s *fakeRepoStore) Save(repo *domainRepo.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *repo
	s.repos[repo.Name] = &clone
	return nil
}

func (s *fakeRepoStore) Get(name string) (*domainRepo.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos[name]
	if !ok {
		return nil, domainRepo.ErrNotFound
	}
	clone := *repo
	return &clone, nil
}

func (s *fakeRepoStore) List() ([]*domainRepo.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*domainRepo.Repository
	for _, repo := range s.repos {
		clone := *repo
		result = append(result, &clone)
	}
	return result, nil
}

func (s *fakeRepoStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.repos, name)
	return nil
}

// fakeHashStore 内存版内容哈希账本
type fakeHashStore struct {
	mu     sync.Mutex
	hashes map[string]string // repository + "\x00" + path -> hash
}

func newFakeHashStore() *fakeHashStore {
	return &fakeHashStore{hashes: make(map[string]string)}
}

func (s *fakeHashStore) key(repository, path string) string {
	return repository + "\x00" + path
}

func (s *fakeHashStore) ShouldProcess(repository, path, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	known, ok := s.hashes[s.key(repository, path)]
	return !ok || known != hash, nil
}

func (s *fakeHashStore) Record(repository, path, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[s.key(repository, path)] = hash
	return nil
}

func (s *fakeHashStore) Known(repository string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]string)
	prefix := repository + "\x00"
	for k, v := range s.hashes {
		if strings.HasPrefix(k, prefix) {
			result[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return result, nil
}

// fakeChat 计数的 LLM 模拟客户端
// respond 根据系统提示词与用户提示词决定返回内容
type fakeChat struct {
	mu      sync.Mutex
	calls   int
	respond func(systemPrompt, userPrompt string) (string, error)
}

func (c *fakeChat) Chat(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.respond(systemPrompt, userPrompt)
}

func (c *fakeChat) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// fakeCounter 按空白分词计数的 token 计数器
type fakeCounter struct{}

func (fakeCounter) CountTokens(_ string, text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// setupPipelineTest 初始化数据目录并写入原始文件
func setupPipelineTest(t *testing.T, repository string, files map[string]string) {
	t.Helper()

	tmpDir := t.TempDir()
	t.Setenv(config.EnvDataDir, tmpDir)
	config.ResetDataDir()
	t.Cleanup(config.ResetDataDir)

	dataDir := config.CrawledDataDir(repository)
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0644))
	}
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

// outcomesByFile 任务结果按文件名索引
func outcomesByFile(task *domainTask.Task) map[string]string {
	result := make(map[string]string)
	for _, r := range task.Results {
		result[r.Item] = r.Outcome
	}
	return result
}
