// Package task 定义异步任务实体与状态机
package task

import "time"

// Kind 任务类型
type Kind string

const (
	// KindCrawl 网页爬取任务
	KindCrawl Kind = "crawl"
	// KindToken token 统计任务
	KindToken Kind = "token"
	// KindSummary 摘要生成任务
	KindSummary Kind = "summary"
	// KindQA 问答对生成任务
	KindQA Kind = "qa"
	// KindSync 远端索引同步任务
	KindSync Kind = "sync"
)

// Valid 检查任务类型是否合法
func (k Kind) Valid() bool {
	switch k {
	case KindCrawl, KindToken, KindSummary, KindQA, KindSync:
		return true
	}
	return false
}

// State 任务状态
// 状态机：queued -> running -> completed | failed | cancelled
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal 判断状态是否为终态
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ItemResult 单个条目的处理结果
type ItemResult struct {
	// Item 条目标识（URL 或文件路径）
	Item string
	// Outcome 处理结果（saved/processed/skipped_* /error 等）
	Outcome string
	// Error 失败原因，成功时为空
	Error string
}

// Task 异步任务快照
// 注册表对外返回的均为副本，调用方不可据此修改任务状态
type Task struct {
	// ID 任务唯一标识
	ID string
	// Kind 任务类型
	Kind Kind
	// Repository 关联的知识库名称
	Repository string
	// State 当前状态
	State State
	// Done 已处理的条目数
	Done int
	// Total 已发现的条目总数（爬取任务中随发现增长）
	Total int
	// Results 各条目的处理结果
	Results []ItemResult
	// Error 任务级失败原因
	Error string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}
