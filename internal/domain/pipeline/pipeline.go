// Package pipeline 定义内容处理流水线的领域类型
package pipeline

// HashStore 内容哈希账本
// 增量处理的唯一事实来源：哈希只增不删，任何路径都不得删除已记录的哈希
type HashStore interface {
	// ShouldProcess 判断文件是否需要处理
	// 返回 true 当且仅当 (repository, path) 未记录或记录的哈希与 hash 不同
	ShouldProcess(repository, path, hash string) (bool, error)
	// Record 记录（插入或覆盖）文件哈希
	// 仅在产物成功写入后调用；部分同步失败是唯一的例外，
	// 此时产物被删除但哈希仍然记录，使该文件不再重试
	Record(repository, path, hash string) error
	// Known 返回某知识库已记录的全部 path -> hash
	Known(repository string) (map[string]string, error)
}

// QAPair 问答对
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	// SelfEval 评估阶段打出的 1-5 质量分，0 表示未评估
	SelfEval int `json:"self_eval,omitempty"`
}
