package pipeline

import (
	"fmt"
	"strings"
)

// Chunker 按 token 预算切分文本为带重叠的窗口
type Chunker struct {
	counter TokenCounter
	model   string
	size    int
	overlap int
}

// NewChunker 创建切分器
// overlap 必须小于 size，否则按 size 的十分之一收缩
func NewChunker(counter TokenCounter, model string, size, overlap int) *Chunker {
	if size <= 0 {
		size = 2000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}
	return &Chunker{
		counter: counter,
		model:   model,
		size:    size,
		overlap: overlap,
	}
}

// Split 切分文本
// 以行为最小单位贪心装入窗口，窗口间保留约 overlap 个 token 的行
func (c *Chunker) Split(text string) ([]string, error) {
	lines := strings.Split(text, "\n")

	type countedLine struct {
		text   string
		tokens int
	}

	counted := make([]countedLine, 0, len(lines))
	total := 0
	for _, line := range lines {
		n, err := c.counter.CountTokens(c.model, line)
		if err != nil {
			return nil, fmt.Errorf("failed to count tokens: %w", err)
		}
		counted = append(counted, countedLine{text: line, tokens: n})
		total += n
	}

	// 整体不超过窗口大小时不切分
	if total <= c.size {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < len(counted) {
		tokens := 0
		end := start
		for end < len(counted) {
			next := counted[end].tokens
			// 单行超过窗口时独占一个窗口
			if tokens > 0 && tokens+next > c.size {
				break
			}
			tokens += next
			end++
			if tokens >= c.size {
				break
			}
		}

		var b strings.Builder
		for i := start; i < end; i++ {
			if i > start {
				b.WriteByte('\n')
			}
			b.WriteString(counted[i].text)
		}
		chunks = append(chunks, b.String())

		if end >= len(counted) {
			break
		}

		// 回退若干行形成重叠
		backTokens := 0
		newStart := end
		for newStart > start+1 && backTokens < c.overlap {
			newStart--
			backTokens += counted[newStart].tokens
		}
		start = newStart
	}

	return chunks, nil
}
