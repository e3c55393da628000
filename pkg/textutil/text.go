package textutil

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Preview 返回前 n 个字符（按 rune 计），不会截断多字节字符
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Abbrev 按显示宽度截断，用于日志中展示提示词等长文本。
// 中日韩字符占 2 个宽度，换行会被替换为空格。
func Abbrev(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "...")
}
