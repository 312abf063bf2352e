package encoding

import (
	"strings"
	"sync"
)

// BaseEncodingFromLocale maps a remote locale string (e.g. the LC_CTYPE
// line of `locale` output, or "zh_CN.GB18030") onto a candidate encoding
// name. Pure function; callers cache the result per endpoint because a
// live connection's locale never changes.
func BaseEncodingFromLocale(locale string) string {
	l := strings.ToLower(strings.TrimSpace(locale))

	// Accept raw values as well as `LC_CTYPE="zh_CN.UTF-8"` lines.
	if i := strings.Index(l, "="); i >= 0 {
		l = strings.Trim(l[i+1:], `"`)
	}

	switch {
	case l == "" || l == "c" || l == "posix":
		return "utf-8"
	case strings.Contains(l, "utf-8") || strings.Contains(l, "utf8"):
		return "utf-8"
	case strings.Contains(l, "gb18030"):
		return "gb18030"
	case strings.Contains(l, "gbk"):
		return "gbk"
	case strings.Contains(l, "gb2312"):
		return "gb2312"
	case strings.Contains(l, "big5"):
		return "big5"
	case strings.Contains(l, "sjis") || strings.Contains(l, "shift_jis") || strings.Contains(l, "shift-jis") || strings.Contains(l, "eucjp") || strings.Contains(l, "euc-jp"):
		return "shift_jis"
	case strings.Contains(l, "8859-1") || strings.Contains(l, "latin1") || strings.Contains(l, "latin-1"):
		return "latin-1"
	}
	return "utf-8"
}

// LocaleCache remembers the detected base encoding per endpoint key.
type LocaleCache struct {
	mu sync.Mutex
	m  map[string]string
}

func NewLocaleCache() *LocaleCache {
	return &LocaleCache{m: map[string]string{}}
}

func (c *LocaleCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *LocaleCache) Put(key, enc string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = enc
}
