// Package events 定义领域事件类型和接口
// 用于系统内部的事件驱动通信
package events

import "time"

// EventType 事件类型标识
type EventType string

// 任务相关事件类型
const (
	// TaskStarted 任务开始执行事件
	TaskStarted EventType = "task.started"
	// TaskProgressed 任务进度更新事件
	TaskProgressed EventType = "task.progressed"
	// TaskFinished 任务进入终态事件（完成/失败/取消）
	TaskFinished EventType = "task.finished"
)

// 上传知识库文件相关事件类型
const (
	// UploadFileCreated 上传目录新增文件事件
	UploadFileCreated EventType = "upload.file.created"
	// UploadFileModified 上传目录文件修改事件
	UploadFileModified EventType = "upload.file.modified"
	// UploadFileDeleted 上传目录文件删除事件
	UploadFileDeleted EventType = "upload.file.deleted"
)

// Event 领域事件接口
// 所有事件类型都必须实现此接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
}
