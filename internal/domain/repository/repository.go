// Package repository 定义知识库实体及其存储接口
package repository

import (
	"time"
)

// SourceKind 知识库内容来源
type SourceKind string

const (
	// SourceCrawled 内容来自网页爬取
	SourceCrawled SourceKind = "crawled"
	// SourceUploaded 内容由用户直接上传
	SourceUploaded SourceKind = "uploaded"
)

// Valid 检查来源类型是否合法
func (k SourceKind) Valid() bool {
	return k == SourceCrawled || k == SourceUploaded
}

// Status 知识库状态
type Status string

const (
	// StatusNotStarted 尚未获取任何内容
	StatusNotStarted Status = "not_started"
	// StatusIncomplete 已有部分内容，处理未完成
	StatusIncomplete Status = "incomplete"
	// StatusComplete 内容获取与处理均已完成
	StatusComplete Status = "complete"
	// StatusError 最近一次自动更新失败
	StatusError Status = "error"
)

// Frequency 自动更新频率
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid 检查频率取值是否合法
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// 同步模式标记，记录上一次成功同步使用的导入方式
const (
	// SyncModeDirect 原始文件直接导入
	SyncModeDirect = "direct_import"
	// SyncModeProcessed 导入摘要与问答产物
	SyncModeProcessed = "processed_import"
)

// CrawlConfig 爬取参数
type CrawlConfig struct {
	// SeedURLs 种子 URL 列表
	SeedURLs []string
	// MaxDepth 最大爬取深度，种子为 0 层
	MaxDepth int
	// MaxThreads 并发爬取线程数
	MaxThreads int
	// TimeoutSeconds 单个请求超时（秒）
	TimeoutSeconds int
	// UserAgent 请求使用的 User-Agent
	UserAgent string
	// Blocklist 有序的 URL 屏蔽模式列表
	// 每项先按正则匹配，正则非法时退化为子串匹配，首个命中生效
	Blocklist []string
}

// AutoUpdate 自动更新配置
type AutoUpdate struct {
	// Enabled 是否启用自动更新
	Enabled bool
	// Frequency 更新频率
	Frequency Frequency
	// LastRun 上一次自动更新的执行时间，nil 表示从未执行
	LastRun *time.Time
}

// PartialSync 部分同步检测配置
// 当生成的摘要包含失败标记时，该文件被认为摘要失败且不再重试
type PartialSync struct {
	// Enabled 是否启用部分同步检测
	Enabled bool
	// FailureMarker 摘要内容中的失败标记子串
	FailureMarker string
}

// PromptConfig 提示词配置
// 知识库可以覆盖全局配置中的任意一项，空字符串表示使用全局值
type PromptConfig struct {
	SummaryPrompt       string
	SummarySystemPrompt string
	QAPrompt            string
	QASystemPrompt      string
	ReducePrompt        string
	EvaluatePrompt      string
}

// Merge 以 base 为底合并覆盖项，返回最终生效的提示词
func (p *PromptConfig) Merge(base PromptConfig) PromptConfig {
	if p == nil {
		return base
	}
	merged := base
	if p.SummaryPrompt != "" {
		merged.SummaryPrompt = p.SummaryPrompt
	}
	if p.SummarySystemPrompt != "" {
		merged.SummarySystemPrompt = p.SummarySystemPrompt
	}
	if p.QAPrompt != "" {
		merged.QAPrompt = p.QAPrompt
	}
	if p.QASystemPrompt != "" {
		merged.QASystemPrompt = p.QASystemPrompt
	}
	if p.ReducePrompt != "" {
		merged.ReducePrompt = p.ReducePrompt
	}
	if p.EvaluatePrompt != "" {
		merged.EvaluatePrompt = p.EvaluatePrompt
	}
	return merged
}

// Repository 知识库实体
// 名称在创建后不可变，是所有衍生产物的目录键
type Repository struct {
	// Name 知识库名称（唯一标识）
	Name string
	// Kind 内容来源类型
	Kind SourceKind
	// Status 当前状态
	Status Status
	// Crawl 爬取参数（仅 crawled 类型有效）
	Crawl CrawlConfig
	// AutoUpdate 自动更新配置（uploaded 类型永远不可启用）
	AutoUpdate AutoUpdate
	// PartialSync 部分同步检测配置
	PartialSync PartialSync
	// DirectImport 是否跳过摘要/问答处理，直接同步原始文件
	DirectImport bool
	// DatasetID 远端知识库索引的数据集 ID，空表示尚未绑定
	DatasetID string
	// LastSyncMode 上一次成功同步使用的模式，空表示从未同步
	LastSyncMode string
	// TokenCounts 按模型统计的 token 总数
	TokenCounts map[string]int
	// FileCount 数据目录中的文件数
	FileCount int
	// Prompts 知识库级提示词覆盖，nil 表示完全使用全局配置
	Prompts *PromptConfig

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncMode 返回当前配置对应的同步模式
func (r *Repository) SyncMode() string {
	if r.DirectImport {
		return SyncModeDirect
	}
	return SyncModeProcessed
}

// CanAutoUpdate 检查该知识库是否允许启用自动更新
// 上传型知识库没有可重复执行的获取过程，不允许自动更新
func (r *Repository) CanAutoUpdate() bool {
	return r.Kind == SourceCrawled
}

// Store 知识库存储接口
type Store interface {
	// Save 保存（插入或覆盖）知识库
	Save(repo *Repository) error
	// Get 按名称获取知识库，不存在时返回 ErrNotFound
	Get(name string) (*Repository, error)
	// List 列出所有知识库
	List() ([]*Repository, error)
	// Delete 删除知识库记录
	Delete(name string) error
}
