// Package sync 定义本地与远端知识库索引的对账类型
package sync

import "time"

// State 同步状态分类
type State string

const (
	// StateConnectionFailed 无法连接远端索引服务
	StateConnectionFailed State = "connection_failed"
	// StateIndexMissing 远端数据集不存在或尚未绑定
	StateIndexMissing State = "index_missing"
	// StateCountMismatch 本地与远端文档数量不一致
	StateCountMismatch State = "count_mismatch"
	// StateSynced 本地与远端一致
	StateSynced State = "synced"
)

// Snapshot 一次同步状态检查的结果
type Snapshot struct {
	// Repository 知识库名称
	Repository string
	// State 同步状态分类
	State State
	// LocalCount 本地应同步的文档数
	LocalCount int
	// RemoteCount 远端实际的文档数
	RemoteCount int
	// Detail 补充说明（连接失败原因等）
	Detail string
	// CheckedAt 检查时间
	CheckedAt time.Time
}

// Document 远端文档清单条目
type Document struct {
	// ID 远端文档 ID
	ID string
	// Name 文档名（与本地文件名对应）
	Name string
	// Hash 文档内容哈希，远端未提供时为空
	Hash string
	// Size 文档大小（字节）
	Size int64
}

// Result 一次对账执行的统计结果
type Result struct {
	// Uploaded 新上传的文档数
	Uploaded int
	// Updated 内容变化而重新上传的文档数
	Updated int
	// Skipped 无变化跳过的文档数
	Skipped int
	// Removed 远端多余而删除的文档数
	Removed int
	// ModeSwitched 本次对账是否因同步模式切换触发了全量重传
	ModeSwitched bool
}
