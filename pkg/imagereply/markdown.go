package imagereply

import (
	"strings"

	"github.com/xpzouying/openrouter-image-mcp/pkg/datauri"
)

const (
	markdownImageOpen = "!["
	markdownLinkOpen  = "]("
	markdownDataLink  = markdownLinkOpen + datauri.ImagePrefix
)

// ExtractMarkdownImages 从文本中剥离 ![alt](data:image/...) 形式的内联图像。
// alt 可以包含任意字符（包括 ']'），到下一个 "](data:image/" 为止；
// 在此之前又出现 "![" 时由后面的标记去匹配。
// 返回去除图像后的文本（首尾空白已裁剪）以及按出现顺序收集的 data URI。
// 不完整的 "![" 原样保留。
func ExtractMarkdownImages(text string) (string, []string) {
	if !strings.Contains(text, datauri.ImagePrefix) {
		return strings.TrimSpace(text), nil
	}

	var (
		out    strings.Builder
		images []string
		cursor int
		linkAt = -1 // 当前缓存的下一个 "](data:image/" 位置
	)

	for cursor < len(text) {
		idx := strings.Index(text[cursor:], markdownImageOpen)
		if idx < 0 {
			out.WriteString(text[cursor:])
			break
		}

		start := cursor + idx
		altStart := start + len(markdownImageOpen)
		out.WriteString(text[cursor:start])

		if linkAt < altStart {
			rel := strings.Index(text[altStart:], markdownDataLink)
			if rel < 0 {
				// 后面再没有 "](data:image/"，不可能再有完整的图像
				out.WriteString(text[start:])
				break
			}
			linkAt = altStart + rel
		}

		if strings.Contains(text[altStart:linkAt], markdownImageOpen) {
			out.WriteString(markdownImageOpen)
			cursor = altStart
			continue
		}

		uriStart := linkAt + len(markdownLinkOpen)
		uriEnd := closingParen(text, uriStart)
		if uriEnd < 0 {
			out.WriteString(text[start:])
			break
		}

		images = append(images, text[uriStart:uriEnd])
		cursor = uriEnd + 1
	}

	return strings.TrimSpace(out.String()), images
}

// closingParen 返回 from 之后第一个未转义的 ')'，不存在时返回 -1。
// 前面连续的反斜杠为奇数个时才算转义。
func closingParen(text string, from int) int {
	for i := from; i < len(text); i++ {
		if text[i] != ')' {
			continue
		}
		backslashes := 0
		for j := i - 1; j >= from && text[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return i
		}
	}
	return -1
}
