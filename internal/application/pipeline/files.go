package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// listTextFiles 列出目录下的文本文件名
// PDF 等二进制文件不参与 LLM 处理
func listTextFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md", ".json", ".csv", ".html":
			files = append(files, name)
		}
	}
	return files, nil
}

// hashContent 内容的 sha256 十六进制摘要
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// buildPrompt 将内容填入提示词模板
// 模板含 %s 占位符时格式化填入，否则内容追加在模板之后
func buildPrompt(template, content string) string {
	if strings.Contains(template, "%s") {
		return strings.Replace(template, "%s", content, 1)
	}
	return template + "\n\n" + content
}

// baseName 去掉扩展名的文件名
func baseName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}
