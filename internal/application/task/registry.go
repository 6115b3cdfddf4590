// Package task 提供异步任务注册表
// 同一知识库上同类任务最多一个处于活动状态
package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/knowflow/backend/internal/domain/events"
	domainTask "github.com/knowflow/backend/internal/domain/task"
	"github.com/knowflow/backend/internal/infrastructure/log"
)

// record 注册表内部的任务记录
type record struct {
	task   domainTask.Task
	cancel context.CancelFunc
}

// Registry 任务注册表
// 终态任务保留一段时间后由清理协程回收
type Registry struct {
	mu     sync.Mutex
	tasks  map[string]*record
	active map[string]string // kind/repository -> taskID

	eventBus  events.EventBus
	logger    *slog.Logger
	retention time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry 创建任务注册表
// eventBus 可以为 nil，此时不发布任务事件
func NewRegistry(eventBus events.EventBus) *Registry {
	return &Registry{
		tasks:     make(map[string]*record),
		active:    make(map[string]string),
		eventBus:  eventBus,
		logger:    log.NewModuleLogger("task", "registry"),
		retention: time.Hour,
		stopCh:    make(chan struct{}),
	}
}

// Start 启动终态任务清理协程
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.janitorLoop()
}

// Stop 停止清理协程
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// activeKey 活动任务索引键
func activeKey(kind domainTask.Kind, repository string) string {
	return string(kind) + "/" + repository
}

// Begin 创建新任务
// 同一 (kind, repository) 上已有未终态任务时返回 ErrTaskConflict
// 返回的 context 在任务被取消时结束，执行方需要在条目之间检查
func (r *Registry) Begin(kind domainTask.Kind, repository string) (*domainTask.Task, context.Context, error) {
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("invalid task kind: %s", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := activeKey(kind, repository)
	if existingID, ok := r.active[key]; ok {
		r.logger.Warn("Task conflict",
			"kind", kind,
			"repository", repository,
			"active_task", existingID,
		)
		return nil, nil, domainTask.ErrTaskConflict
	}

	ctx, cancel := context.WithCancel(context.Background())

	rec := &record{
		task: domainTask.Task{
			ID:         uuid.New().String(),
			Kind:       kind,
			Repository: repository,
			State:      domainTask.StateQueued,
			CreatedAt:  time.Now(),
		},
		cancel: cancel,
	}

	r.tasks[rec.task.ID] = rec
	r.active[key] = rec.task.ID

	r.logger.Info("Task created",
		"task_id", rec.task.ID,
		"kind", kind,
		"repository", repository,
	)

	snapshot := rec.task
	return &snapshot, ctx, nil
}

// MarkRunning 将任务置为运行中
func (r *Registry) MarkRunning(taskID string) {
	r.mu.Lock()
	rec, ok := r.tasks[taskID]
	if !ok || rec.task.State.Terminal() {
		r.mu.Unlock()
		return
	}

	now := time.Now()
	rec.task.State = domainTask.StateRunning
	rec.task.StartedAt = &now
	event := r.taskEventLocked(rec, events.TaskStarted)
	r.mu.Unlock()

	r.publish(event)
}

// UpdateProgress 更新任务进度
func (r *Registry) UpdateProgress(taskID string, done, total int) {
	r.mu.Lock()
	rec, ok := r.tasks[taskID]
	if !ok || rec.task.State.Terminal() {
		r.mu.Unlock()
		return
	}

	rec.task.Done = done
	rec.task.Total = total
	event := r.taskEventLocked(rec, events.TaskProgressed)
	r.mu.Unlock()

	r.publish(event)
}

// AppendResult 记录单个条目的处理结果
func (r *Registry) AppendResult(taskID string, result domainTask.ItemResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok || rec.task.State.Terminal() {
		return
	}

	rec.task.Results = append(rec.task.Results, result)
}

// Complete 将任务置为完成
func (r *Registry) Complete(taskID string) {
	r.finish(taskID, domainTask.StateCompleted, "")
}

// Fail 将任务置为失败
func (r *Registry) Fail(taskID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.finish(taskID, domainTask.StateFailed, msg)
}

// Cancel 取消任务
// 任务立刻进入 cancelled 终态，执行方通过 context 感知并停止
func (r *Registry) Cancel(taskID string) error {
	r.mu.Lock()
	rec, ok := r.tasks[taskID]
	if !ok {
		r.mu.Unlock()
		return domainTask.ErrTaskNotFound
	}
	if rec.task.State.Terminal() {
		r.mu.Unlock()
		return nil
	}
	cancel := rec.cancel
	r.mu.Unlock()

	cancel()
	r.finish(taskID, domainTask.StateCancelled, "")
	return nil
}

// finish 将任务置为终态并释放活动索引
func (r *Registry) finish(taskID string, state domainTask.State, errMsg string) {
	r.mu.Lock()
	rec, ok := r.tasks[taskID]
	if !ok || rec.task.State.Terminal() {
		r.mu.Unlock()
		return
	}

	now := time.Now()
	rec.task.State = state
	rec.task.Error = errMsg
	rec.task.FinishedAt = &now
	delete(r.active, activeKey(rec.task.Kind, rec.task.Repository))
	event := r.taskEventLocked(rec, events.TaskFinished)
	r.mu.Unlock()

	r.logger.Info("Task finished",
		"task_id", taskID,
		"state", state,
		"error", errMsg,
	)

	r.publish(event)
}

// Get 获取任务快照
func (r *Registry) Get(taskID string) (*domainTask.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[taskID]
	if !ok {
		return nil, domainTask.ErrTaskNotFound
	}

	snapshot := rec.task
	snapshot.Results = append([]domainTask.ItemResult(nil), rec.task.Results...)
	return &snapshot, nil
}

// List 列出所有任务快照
func (r *Registry) List() []*domainTask.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*domainTask.Task, 0, len(r.tasks))
	for _, rec := range r.tasks {
		snapshot := rec.task
		snapshot.Results = append([]domainTask.ItemResult(nil), rec.task.Results...)
		result = append(result, &snapshot)
	}
	return result
}

// taskEventLocked 构造任务事件，调用方需持有锁
func (r *Registry) taskEventLocked(rec *record, eventType events.EventType) *events.TaskEvent {
	return events.NewTaskEvent(
		eventType,
		rec.task.ID,
		string(rec.task.Kind),
		rec.task.Repository,
		string(rec.task.State),
		rec.task.Done,
		rec.task.Total,
	)
}

// publish 发布任务事件
func (r *Registry) publish(event *events.TaskEvent) {
	if r.eventBus == nil || event == nil {
		return
	}
	r.eventBus.Publish(event)
}

// janitorLoop 周期清理过期的终态任务
func (r *Registry) janitorLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

// evictExpired 回收超过保留期的终态任务
func (r *Registry) evictExpired() {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.tasks {
		if rec.task.State.Terminal() && rec.task.FinishedAt != nil && rec.task.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
		}
	}
}
