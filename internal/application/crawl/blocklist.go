package crawl

import (
	"regexp"
	"strings"
)

// blockPattern 单条屏蔽模式
// 正则编译失败时退化为子串匹配
type blockPattern struct {
	raw string
	re  *regexp.Regexp
}

// Blocklist 有序的 URL 屏蔽列表
// 匹配按模式顺序进行，首个命中生效，大小写敏感
type Blocklist struct {
	patterns []blockPattern
}

// NewBlocklist 编译屏蔽模式列表
func NewBlocklist(patterns []string) *Blocklist {
	bl := &Blocklist{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			// 非法正则按普通子串处理
			bl.patterns = append(bl.patterns, blockPattern{raw: p})
			continue
		}
		bl.patterns = append(bl.patterns, blockPattern{raw: p, re: re})
	}
	return bl
}

// Blocked 判断 URL 是否命中屏蔽列表
// 命中只阻止内容保存，不阻止该页面参与链接发现
func (bl *Blocklist) Blocked(url string) bool {
	for _, p := range bl.patterns {
		if p.re != nil {
			if p.re.MatchString(url) {
				return true
			}
			continue
		}
		if strings.Contains(url, p.raw) {
			return true
		}
	}
	return false
}
