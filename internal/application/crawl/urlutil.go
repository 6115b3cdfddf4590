package crawl

import (
	"net/url"
	"path"
	"strings"
)

// maxFilenameLen 文件名长度上限
const maxFilenameLen = 200

// assetExtensions 不作为页面爬取的资源扩展名
var assetExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {},
	".ico": {}, ".css": {}, ".js": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
	".zip": {}, ".gz": {}, ".tar": {}, ".rar": {}, ".7z": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".webm": {},
	".exe": {}, ".dmg": {}, ".iso": {},
}

// NormalizeURL 规范化 URL
// 补全协议、移除末尾斜杠与锚点，作为去重键使用
func NormalizeURL(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
		rawURL = "http://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	p := u.Path
	if strings.HasSuffix(p, "/") && len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}

	normalized := u.Scheme + "://" + u.Host + p
	if u.RawQuery != "" {
		normalized += "?" + u.RawQuery
	}

	return normalized
}

// URLToFilename 将 URL 映射为落盘文件名（不含扩展名）
// 域名和路径中的点号与斜杠替换为下划线，长度截断到 200 字符
func URLToFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return truncate(strings.NewReplacer(".", "_", "/", "_", ":", "_").Replace(rawURL))
	}

	domain := strings.ReplaceAll(u.Host, ".", "_")

	p := u.Path
	filename := domain
	if p != "" && p != "/" {
		p = strings.TrimPrefix(p, "/")
		p = strings.ReplaceAll(p, "/", "_")
		p = strings.ReplaceAll(p, ".", "_")
		filename = domain + "_" + p
	}

	return truncate(filename)
}

// truncate 截断文件名到长度上限
func truncate(s string) string {
	if len(s) > maxFilenameLen {
		return s[:maxFilenameLen]
	}
	return s
}

// IsPDFURL 判断 URL 是否指向 PDF 文件
func IsPDFURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// SameHost 判断两个 URL 是否同主机
func SameHost(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(ua.Host, ub.Host)
}

// IsAssetURL 判断 URL 是否指向静态资源文件
func IsAssetURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, ok := assetExtensions[ext]
	return ok
}
