package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	domainPipeline "github.com/knowflow/backend/internal/domain/pipeline"
)

// qaPairRegex 最后兜底的问答对提取正则
var qaPairRegex = regexp.MustCompile(`"question"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"answer"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// ParseQAPairs 容错解析 LLM 返回的问答对 JSON
// 依次尝试：去除代码围栏后整体解析数组、逐行解析对象、正则兜底提取
func ParseQAPairs(raw string) ([]domainPipeline.QAPair, error) {
	cleaned := stripCodeFence(raw)

	// 整体按 JSON 数组解析
	var pairs []domainPipeline.QAPair
	if err := json.Unmarshal([]byte(cleaned), &pairs); err == nil {
		return filterValid(pairs), nil
	}

	// 逐行解析独立的 JSON 对象
	var lineParsed []domainPipeline.QAPair
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var pair domainPipeline.QAPair
		if err := json.Unmarshal([]byte(line), &pair); err == nil {
			lineParsed = append(lineParsed, pair)
		}
	}
	if valid := filterValid(lineParsed); len(valid) > 0 {
		return valid, nil
	}

	// 正则兜底
	var regexParsed []domainPipeline.QAPair
	for _, match := range qaPairRegex.FindAllStringSubmatch(cleaned, -1) {
		question := unescapeJSONString(match[1])
		answer := unescapeJSONString(match[2])
		if question == "" || answer == "" {
			continue
		}
		regexParsed = append(regexParsed, domainPipeline.QAPair{Question: question, Answer: answer})
	}
	if len(regexParsed) > 0 {
		return regexParsed, nil
	}

	return nil, fmt.Errorf("no qa pairs found in llm output")
}

// stripCodeFence 去除 ```json ... ``` 代码围栏
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// 去掉围栏后的语言标记（json 等）
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// filterValid 过滤掉缺少问题或答案的条目
func filterValid(pairs []domainPipeline.QAPair) []domainPipeline.QAPair {
	var valid []domainPipeline.QAPair
	for _, p := range pairs {
		if strings.TrimSpace(p.Question) == "" || strings.TrimSpace(p.Answer) == "" {
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// unescapeJSONString 还原正则提取出的 JSON 字符串转义
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
