package crawl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"末尾斜杠被移除", "https://example.com/docs/", "https://example.com/docs"},
		{"根路径斜杠保留", "https://example.com/", "https://example.com/"},
		{"缺失协议时补全", "example.com/docs", "http://example.com/docs"},
		{"查询参数保留", "https://example.com/search?q=go", "https://example.com/search?q=go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeURL(tt.input))
		})
	}
}

func TestURLToFilename(t *testing.T) {
	assert.Equal(t, "example_com", URLToFilename("https://example.com/"))
	assert.Equal(t, "example_com_docs_intro_html", URLToFilename("https://example.com/docs/intro.html"))

	// 超长路径被截断到 200 字符
	long := "https://example.com/" + strings.Repeat("a/", 200)
	assert.LessOrEqual(t, len(URLToFilename(long)), 200)
}

func TestIsPDFURL(t *testing.T) {
	assert.True(t, IsPDFURL("https://example.com/manual.pdf"))
	assert.True(t, IsPDFURL("https://example.com/Manual.PDF"))
	assert.False(t, IsPDFURL("https://example.com/manual.html"))
	// 查询参数不影响判断
	assert.True(t, IsPDFURL("https://example.com/manual.pdf?version=2"))
}

func TestSameHost(t *testing.T) {
	assert.True(t, SameHost("https://example.com/a", "https://example.com/b"))
	assert.True(t, SameHost("https://EXAMPLE.com/a", "https://example.com/b"))
	assert.False(t, SameHost("https://example.com/a", "https://other.com/b"))
}

func TestIsAssetURL(t *testing.T) {
	assert.True(t, IsAssetURL("https://example.com/logo.png"))
	assert.True(t, IsAssetURL("https://example.com/app.js"))
	assert.False(t, IsAssetURL("https://example.com/docs/page.html"))
	assert.False(t, IsAssetURL("https://example.com/manual.pdf"))
}
