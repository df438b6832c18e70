package view

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

// URL 匹配模式
const (
	ModeGlob   = "glob"
	ModePrefix = "prefix"
	ModeExact  = "exact"
	ModeRegex  = "regex"
)

// Match 判断交换是否满足过滤条件，空条件视为匹配
func Match(f model.Filter, ex traffic.Exchange) bool {
	if f.Text != "" && !matchText(ex, f.Text) {
		return false
	}
	if len(f.Methods) > 0 && !matchMethod(ex.Method, f.Methods) {
		return false
	}
	if f.URLPattern != "" && !matchURL(ex.URL, f.URLPattern, f.URLMode) {
		return false
	}
	return true
}

// matchText URL 或方法包含关键字，不区分大小写；也允许按状态码过滤
func matchText(ex traffic.Exchange, text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(ex.URL), needle) || strings.Contains(strings.ToLower(ex.Method), needle) {
		return true
	}
	return ex.Status != 0 && strconv.Itoa(ex.Status) == needle
}

func matchMethod(method string, values []string) bool {
	for _, v := range values {
		if strings.EqualFold(method, v) {
			return true
		}
	}
	return false
}

func matchURL(url, pattern, mode string) bool {
	switch mode {
	case ModePrefix:
		return strings.HasPrefix(url, pattern)
	case ModeRegex:
		return matchRegex(url, pattern)
	case ModeExact:
		return url == pattern
	default:
		return glob(url, pattern)
	}
}

// glob 支持任意位置的 * 通配，* 可匹配空串
func glob(s, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return strings.HasSuffix(s, last)
}

// regexCache 编译结果缓存，非法表达式同样缓存以免重复编译
var regexCache sync.Map

type compiled struct {
	re  *regexp.Regexp
	err error
}

func matchRegex(s, pattern string) bool {
	v, ok := regexCache.Load(pattern)
	if !ok {
		re, err := regexp.Compile(pattern)
		v, _ = regexCache.LoadOrStore(pattern, compiled{re: re, err: err})
	}
	c := v.(compiled)
	if c.err != nil {
		return false
	}
	return c.re.MatchString(s)
}
