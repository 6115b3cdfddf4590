package events

import "time"

// TaskEvent 任务状态事件
// 任务注册表在任务状态变化时发布，订阅方可据此推送进度
type TaskEvent struct {
	// TaskID 任务 ID
	TaskID string
	// Kind 任务类型（crawl/token/summary/qa/sync）
	Kind string
	// Repository 关联的知识库名称
	Repository string
	// State 当前任务状态
	State string
	// Done 已完成的条目数
	Done int
	// Total 已发现的条目总数
	Total int

	eventType  EventType
	occurredAt time.Time
}

var _ Event = (*TaskEvent)(nil)

// NewTaskEvent 创建任务事件
func NewTaskEvent(eventType EventType, taskID, kind, repository, state string, done, total int) *TaskEvent {
	return &TaskEvent{
		TaskID:     taskID,
		Kind:       kind,
		Repository: repository,
		State:      state,
		Done:       done,
		Total:      total,
		eventType:  eventType,
		occurredAt: time.Now(),
	}
}

// Type 返回事件类型
func (e *TaskEvent) Type() EventType {
	return e.eventType
}

// Timestamp 返回事件发生时间
func (e *TaskEvent) Timestamp() time.Time {
	return e.occurredAt
}
