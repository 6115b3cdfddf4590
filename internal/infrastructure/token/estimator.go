// Package token 提供基于 tiktoken 的精确 token 统计
package token

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// 在包初始化时设置离线加载器
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Estimator 按模型统计 token 数量
// 编码实例按编码名缓存，避免重复加载编码文件
type Estimator struct {
	encodings map[string]*tiktoken.Tiktoken
	mu        sync.Mutex
}

// estimatorInstance 单例实例
var (
	estimatorInstance *Estimator
	estimatorOnce     sync.Once
)

// GetEstimator 获取 Estimator 单例
func GetEstimator() *Estimator {
	estimatorOnce.Do(func() {
		estimatorInstance = &Estimator{
			encodings: make(map[string]*tiktoken.Tiktoken),
		}
	})
	return estimatorInstance
}

// NewEstimator 提供给 wire 的构造函数，复用单例
func NewEstimator() *Estimator {
	return GetEstimator()
}

// encodingNameForModel 模型名到编码名的映射
// gpt-4o 系列使用 o200k_base，其余模型统一退化到 cl100k_base
func encodingNameForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"):
		return "o200k_base"
	default:
		return "cl100k_base"
	}
}

// encodingFor 获取（并缓存）某模型对应的编码实例
func (e *Estimator) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	name := encodingNameForModel(model)

	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encodings[name]; ok {
		return enc, nil
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", name, err)
	}
	e.encodings[name] = enc
	return enc, nil
}

// CountTokens 计算文本在指定模型下的 token 数量
func (e *Estimator) CountTokens(model, text string) (int, error) {
	if text == "" {
		return 0, nil
	}

	enc, err := e.encodingFor(model)
	if err != nil {
		return 0, err
	}

	tokens := enc.Encode(text, nil, nil)
	return len(tokens), nil
}

// CountTokensBatch 批量计算多个文本的 token 总数
func (e *Estimator) CountTokensBatch(model string, texts []string) (int, error) {
	total := 0
	for _, text := range texts {
		n, err := e.CountTokens(model, text)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
