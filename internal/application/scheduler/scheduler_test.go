package scheduler

import (
	"fmt"
	"sync"
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

// stageRecorder 记录阶段执行顺序
type stageRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *stageRecorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *stageRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// fakeStage 同步完成任务的阶段桩
// failuresLeft 大于 0 时前几次执行失败
type fakeStage struct {
	registry     *apptask.Registry
	kind         domainTask.Kind
	name         string
	recorder     *stageRecorder
	mu           sync.Mutex
	failuresLeft int
}

func (f *fakeStage) Start(repository string) (*domainTask.Task, error) {
	f.recorder.record(f.name)

	t, _, err := f.registry.Begin(f.kind, repository)
	if err != nil {
		return nil, err
	}
	f.registry.MarkRunning(t.ID)

	f.mu.Lock()
	shouldFail := f.failuresLeft > 0
	if shouldFail {
		f.failuresLeft--
	}
	f.mu.Unlock()

	if shouldFail {
		f.registry.Fail(t.ID, fmt.Errorf("stage %s exploded", f.name))
	} else {
		f.registry.Complete(t.ID)
	}
	return t, nil
}

// errorRecorder 记录上报的错误
type errorRecorder struct {
	mu      sync.Mutex
	reports []string
}

func (r *errorRecorder) ReportError(repository, stage string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, repository+"/"+stage)
}

func setupSchedulerTest(t *testing.T, maxRetries int) (*Scheduler, *fakeRepoStore, *stageRecorder, *errorRecorder, map[string]*fakeStage) {
	t.Helper()

	registry := apptask.NewRegistry(nil)
	store := newFakeRepoStore()
	recorder := &stageRecorder{}
	sink := &errorRecorder{}

	stages := map[string]*fakeStage{
		"crawl":   {registry: registry, kind: domainTask.KindCrawl, name: "crawl", recorder: recorder},
		"token":   {registry: registry, kind: domainTask.KindToken, name: "token", recorder: recorder},
		"summary": {registry: registry, kind: domainTask.KindSummary, name: "summary", recorder: recorder},
		"qa":      {registry: registry, kind: domainTask.KindQA, name: "qa", recorder: recorder},
		"sync":    {registry: registry, kind: domainTask.KindSync, name: "sync", recorder: recorder},
	}

	sched := NewScheduler(registry, store, Stages{
		Crawl:   stages["crawl"],
		Token:   stages["token"],
		Summary: stages["summary"],
		QA:      stages["qa"],
		Sync:    stages["sync"],
	}, &config.SchedulerConfig{
		Timezone:    "Asia/Shanghai",
		MaxRetries:  maxRetries,
		PollSeconds: 1,
	}, sink)

	return sched, store, recorder, sink, stages
}

func TestScheduler_ProcessedSequenceOrder(t *testing.T) {
	sched, store, recorder, sink, _ := setupSchedulerTest(t, 0)

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:       "docs",
		Kind:       domainRepo.SourceCrawled,
		AutoUpdate: domainRepo.AutoUpdate{Enabled: true, Frequency: domainRepo.FrequencyDaily},
	}))

	sched.RunSequence("docs")

	assert.Equal(t, []string{"crawl", "token", "summary", "qa", "sync"}, recorder.snapshot())
	assert.Empty(t, sink.reports)

	// LastRun 已记录
	repo, err := store.Get("docs")
	require.NoError(t, err)
	assert.NotNil(t, repo.AutoUpdate.LastRun)
}

func TestScheduler_DirectImportSkipsProcessing(t *testing.T) {
	sched, store, recorder, _, _ := setupSchedulerTest(t, 0)

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:         "docs",
		Kind:         domainRepo.SourceCrawled,
		DirectImport: true,
		AutoUpdate:   domainRepo.AutoUpdate{Enabled: true, Frequency: domainRepo.FrequencyDaily},
	}))

	sched.RunSequence("docs")

	assert.Equal(t, []string{"crawl", "token", "sync"}, recorder.snapshot())
}

func TestScheduler_StageRetryThenSuccess(t *testing.T) {
	sched, store, recorder, sink, stages := setupSchedulerTest(t, 1)

	stages["crawl"].failuresLeft = 1

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:       "docs",
		Kind:       domainRepo.SourceCrawled,
		AutoUpdate: domainRepo.AutoUpdate{Enabled: true, Frequency: domainRepo.FrequencyDaily},
	}))

	sched.RunSequence("docs")

	// 爬取阶段执行两次后序列继续
	assert.Equal(t, []string{"crawl", "crawl", "token", "summary", "qa", "sync"}, recorder.snapshot())
	assert.Empty(t, sink.reports)
}

func TestScheduler_FinalFailureMarksRepository(t *testing.T) {
	sched, store, recorder, sink, stages := setupSchedulerTest(t, 1)

	stages["token"].failuresLeft = 10

	require.NoError(t, store.Save(&domainRepo.Repository{
		Name:       "docs",
		Kind:       domainRepo.SourceCrawled,
		Status:     domainRepo.StatusComplete,
		AutoUpdate: domainRepo.AutoUpdate{Enabled: true, Frequency: domainRepo.FrequencyDaily},
	}))

	sched.RunSequence("docs")

	// token 阶段重试耗尽后序列中止
	assert.Equal(t, []string{"crawl", "token", "token"}, recorder.snapshot())
	assert.Equal(t, []string{"docs/token"}, sink.reports)

	repo, err := store.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, domainRepo.StatusError, repo.Status)
}

func TestScheduler_TickSkipsNotDue(t *testing.T) {
	sched, store, recorder, _, _ := setupSchedulerTest(t, 0)

	justNow := time.Now()
	require.NoError(t, store.Save(&domainRepo.Repository{
		Name: "docs",
		Kind: domainRepo.SourceCrawled,
		AutoUpdate: domainRepo.AutoUpdate{
			Enabled:   true,
			Frequency: domainRepo.FrequencyDaily,
			LastRun:   &justNow,
		},
	}))
	require.NoError(t, store.Save(&domainRepo.Repository{
		Name: "uploads",
		Kind: domainRepo.SourceUploaded,
	}))

	sched.tick(time.Now())
	sched.wg.Wait()

	assert.Empty(t, recorder.snapshot())
}
