package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainTask "github.com/knowflow/backend/internal/domain/task"
)

func TestRegistry_DuplicateStartRejected(t *testing.T) {
	r := NewRegistry(nil)

	first, _, err := r.Begin(domainTask.KindCrawl, "docs")
	require.NoError(t, err)

	// 同一知识库上的同类任务被拒绝
	_, _, err = r.Begin(domainTask.KindCrawl, "docs")
	assert.ErrorIs(t, err, domainTask.ErrTaskConflict)

	// 不同类型或不同知识库不冲突
	_, _, err = r.Begin(domainTask.KindSummary, "docs")
	assert.NoError(t, err)
	_, _, err = r.Begin(domainTask.KindCrawl, "wiki")
	assert.NoError(t, err)

	// 终态后可以再次启动
	r.Complete(first.ID)
	_, _, err = r.Begin(domainTask.KindCrawl, "docs")
	assert.NoError(t, err)
}

func TestRegistry_StateTransitions(t *testing.T) {
	r := NewRegistry(nil)

	created, _, err := r.Begin(domainTask.KindToken, "docs")
	require.NoError(t, err)
	assert.Equal(t, domainTask.StateQueued, created.State)

	r.MarkRunning(created.ID)
	r.UpdateProgress(created.ID, 3, 10)
	r.AppendResult(created.ID, domainTask.ItemResult{Item: "a.txt", Outcome: "processed"})

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, domainTask.StateRunning, got.State)
	assert.Equal(t, 3, got.Done)
	assert.Equal(t, 10, got.Total)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "a.txt", got.Results[0].Item)

	r.Complete(created.ID)

	got, err = r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, domainTask.StateCompleted, got.State)
	require.NotNil(t, got.FinishedAt)

	// 终态后的更新被忽略
	r.UpdateProgress(created.ID, 9, 10)
	got, _ = r.Get(created.ID)
	assert.Equal(t, 3, got.Done)
}

func TestRegistry_CancelStopsContext(t *testing.T) {
	r := NewRegistry(nil)

	created, ctx, err := r.Begin(domainTask.KindQA, "docs")
	require.NoError(t, err)
	r.MarkRunning(created.ID)

	require.NoError(t, r.Cancel(created.ID))

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("取消任务后 context 应当结束")
	}

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, domainTask.StateCancelled, got.State)

	// 执行方后续的 Fail 调用不会改变终态
	r.Fail(created.ID, context.Canceled)
	got, _ = r.Get(created.ID)
	assert.Equal(t, domainTask.StateCancelled, got.State)
}

func TestRegistry_CancelUnknownTask(t *testing.T) {
	r := NewRegistry(nil)

	err := r.Cancel("no-such-task")
	assert.ErrorIs(t, err, domainTask.ErrTaskNotFound)
}

func TestRegistry_EvictExpired(t *testing.T) {
	r := NewRegistry(nil)
	r.retention = 10 * time.Millisecond

	created, _, err := r.Begin(domainTask.KindCrawl, "docs")
	require.NoError(t, err)
	r.Complete(created.ID)

	time.Sleep(20 * time.Millisecond)
	r.evictExpired()

	_, err = r.Get(created.ID)
	assert.ErrorIs(t, err, domainTask.ErrTaskNotFound)
}
