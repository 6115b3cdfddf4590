// Package crawl 定义爬取结果类型
package crawl

// Outcome 单个 URL 的爬取结果分类
type Outcome string

const (
	// OutcomeSaved 页面已抓取并落盘
	OutcomeSaved Outcome = "saved"
	// OutcomeSkippedBlocklist URL 命中屏蔽列表，未保存（仍参与链接发现）
	OutcomeSkippedBlocklist Outcome = "skipped_blocklist"
	// OutcomeSkippedDuplicate 归一化后重复的 URL
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"
	// OutcomeError 抓取或落盘失败
	OutcomeError Outcome = "error"
)

// PageResult 单个 URL 的爬取记录
type PageResult struct {
	// URL 归一化后的页面 URL
	URL string
	// Depth 距种子的层数，种子为 0
	Depth int
	// Outcome 处理结果
	Outcome Outcome
	// File 落盘文件名（仅 saved）
	File string
	// Hash 页面内容的 sha256（仅 saved）
	Hash string
	// Error 失败原因（仅 error）
	Error string
}
