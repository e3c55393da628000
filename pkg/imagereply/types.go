package imagereply

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/xpzouying/openrouter-image-mcp/pkg/datauri"
)

// NoContentText 上游回复中没有任何文本片段时使用的占位文本
const NoContentText = "(no content)"

// ErrMalformedResponse 上游返回 2xx 且无 error 字段，但结构无法识别
var ErrMalformedResponse = errors.New("malformed response")

// UpstreamError 上游在 2xx 回复体中携带了 error 字段
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "API returned error: " + e.Message
}

// ImageDescriptor 回复中发现的一张图像。
// SourceURL 为 http(s) 链接或 data:image/...;base64,... 内联数据。
type ImageDescriptor struct {
	SourceURL string
	MIMEHint  string
}

func newDescriptor(source string) ImageDescriptor {
	d := ImageDescriptor{SourceURL: source}
	if mimeType, _, ok := datauri.Parse(source); ok {
		d.MIMEHint = mimeType
	}
	return d
}

// IsDataURI 图像是否以内联 data URI 的形式给出
func (d ImageDescriptor) IsDataURI() bool {
	return strings.HasPrefix(d.SourceURL, "data:")
}

// IsRemote 图像是否为需要下载的 http(s) 链接
func (d ImageDescriptor) IsRemote() bool {
	lower := strings.ToLower(d.SourceURL)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Usage 上游报告的 token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result 规范化后的回复：合并文本 + 图像列表
type Result struct {
	Text   string
	Images []ImageDescriptor
	Usage  *Usage
}
