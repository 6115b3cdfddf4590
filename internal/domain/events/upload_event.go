package events

import "time"

// UploadFileEvent 上传知识库数据目录的文件变更事件
// 由文件监听器发布，用于刷新文件计数和知识库状态
type UploadFileEvent struct {
	// Repository 知识库名称
	Repository string
	// FilePath 变更文件的绝对路径
	FilePath string

	eventType  EventType
	occurredAt time.Time
}

var _ Event = (*UploadFileEvent)(nil)

// NewUploadFileEvent 创建上传文件事件
func NewUploadFileEvent(eventType EventType, repository, filePath string) *UploadFileEvent {
	return &UploadFileEvent{
		Repository: repository,
		FilePath:   filePath,
		eventType:  eventType,
		occurredAt: time.Now(),
	}
}

// Type 返回事件类型
func (e *UploadFileEvent) Type() EventType {
	return e.eventType
}

// Timestamp 返回事件发生时间
func (e *UploadFileEvent) Timestamp() time.Time {
	return e.occurredAt
}
