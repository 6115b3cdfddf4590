package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apptask "github.com/knowflow/backend/internal/application/task"
	domainRepo "github.com/knowflow/backend/internal/domain/repository"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/config"
)

func newTokenTestService(store *fakeRepoStore, registry *apptask.Registry) *TokenService {
	return NewTokenService(registry, store, fakeCounter{}, &config.PipelineConfig{
		TokenModels:  []string{"gpt-4o", "deepseek-chat"},
		TokenWorkers: 2,
	})
}

func TestTokenService_LedgerFormat(t *testing.T) {
	setupPipelineTest(t, "docs", map[string]string{
		"alpha.txt": "one two three",
		"beta.txt":  "four five",
	})

	registry := apptask.NewRegistry(nil)
	store := newFakeRepoStore()
	require.NoError(t, store.Save(&domainRepo.Repository{
		Name: "docs",
		Kind: domainRepo.SourceCrawled,
	}))

	svc := newTokenTestService(store, registry)
	task, err := svc.Start("docs")
	require.NoError(t, err)

	finished := waitForTask(t, registry, task.ID)
	require.Equal(t, domainTask.StateCompleted, finished.State)

	// 账本格式：每行 "<file>: <count>"，末尾 Total
	ledger, err := os.ReadFile(filepath.Join(config.TokenCountDir("docs"), "gpt-4o_token_count.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha.txt: 3\nbeta.txt: 2\nTotal: 5\n", string(ledger))

	// 每个模型一份账本
	_, err = os.Stat(filepath.Join(config.TokenCountDir("docs"), "deepseek-chat_token_count.txt"))
	assert.NoError(t, err)

	// 知识库上的统计被刷新
	repo, err := store.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, 5, repo.TokenCounts["gpt-4o"])
	assert.Equal(t, 2, repo.FileCount)
}

func TestTokenService_UnreadableFileIsNonFatal(t *testing.T) {
	setupPipelineTest(t, "docs", map[string]string{
		"ok.txt": "one two",
	})
	// 指向不存在目标的符号链接读取必然失败
	require.NoError(t, os.Symlink(
		filepath.Join(config.CrawledDataDir("docs"), "nowhere"),
		filepath.Join(config.CrawledDataDir("docs"), "broken.txt"),
	))

	registry := apptask.NewRegistry(nil)
	store := newFakeRepoStore()
	require.NoError(t, store.Save(&domainRepo.Repository{
		Name: "docs",
		Kind: domainRepo.SourceCrawled,
	}))

	svc := newTokenTestService(store, registry)
	task, err := svc.Start("docs")
	require.NoError(t, err)

	finished := waitForTask(t, registry, task.ID)
	assert.Equal(t, domainTask.StateCompleted, finished.State)

	outcomes := outcomesByFile(finished)
	assert.Equal(t, "processed", outcomes["ok.txt"])
	assert.Equal(t, "error", outcomes["broken.txt"])
}

func TestTokenService_EmptyRepository(t *testing.T) {
	setupPipelineTest(t, "docs", nil)

	registry := apptask.NewRegistry(nil)
	store := newFakeRepoStore()
	require.NoError(t, store.Save(&domainRepo.Repository{
		Name: "docs",
		Kind: domainRepo.SourceCrawled,
	}))

	svc := newTokenTestService(store, registry)
	task, err := svc.Start("docs")
	require.NoError(t, err)

	finished := waitForTask(t, registry, task.ID)
	assert.Equal(t, domainTask.StateCompleted, finished.State)
	assert.Empty(t, finished.Results)
}
