package imagereply

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/xpzouying/openrouter-image-mcp/pkg/datauri"
)

// envelope 上游回复的顶层结构。
// 兼容 OpenAI 风格的 choices、Gemini 风格的 candidates 以及 images 接口的 data 数组。
type envelope struct {
	Error      json.RawMessage `json:"error"`
	Choices    json.RawMessage `json:"choices"`
	Candidates json.RawMessage `json:"candidates"`
	Data       json.RawMessage `json:"data"`
	Usage      json.RawMessage `json:"usage"`
}

// contentPart content/parts 数组中的一个元素
type contentPart struct {
	Type     string          `json:"type"`
	Text     *string         `json:"text"`
	ImageURL json.RawMessage `json:"image_url"`

	// Gemini 原生格式
	InlineData      *inlineData `json:"inlineData"`
	InlineDataSnake *inlineData `json:"inline_data"`
}

type inlineData struct {
	MimeType      string `json:"mimeType"`
	MimeTypeSnake string `json:"mime_type"`
	Data          string `json:"data"`
}

type dataEntry struct {
	B64JSON string `json:"b64_json"`
	URL     string `json:"url"`
}

type usagePayload struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`
}

// Normalize 将上游回复统一为 (文本, 图像列表)。
//
// 处理顺序：
//  1. error 字段优先，存在即返回 *UpstreamError
//  2. 定位消息容器：choices[0].message，其次 candidates[0].content
//  3. 在 content / parts / 容器本身中提取文本与图像，文本中的 markdown 内联图像一并提取
//  4. 追加容器上的 images 数组
//  5. 仍无图像时，回退到顶层 data 数组（b64_json / url）
func Normalize(body []byte) (*Result, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "decode reply: %v", err)
	}

	if err := parseUpstreamError(env.Error); err != nil {
		return nil, err
	}

	container, err := messageContainer(env)
	if err != nil {
		return nil, err
	}

	c := &collector{}
	c.scanContent(contentField(container))
	if obj, ok := asObject(container); ok {
		c.scanImageList(obj["images"])
	}
	if len(c.images) == 0 {
		c.scanDataArray(env.Data)
	}

	return &Result{
		Text:   c.text(),
		Images: c.images,
		Usage:  parseUsage(env.Usage),
	}, nil
}

func parseUpstreamError(raw json.RawMessage) error {
	if !present(raw) {
		return nil
	}

	message := "unknown error"

	var text string
	if err := json.Unmarshal(raw, &text); err == nil && text != "" {
		message = text
	} else if obj, ok := asObject(raw); ok {
		var m string
		if err := json.Unmarshal(obj["message"], &m); err == nil && m != "" {
			message = m
		}
	}

	return &UpstreamError{Message: message}
}

// messageContainer 按 choices → candidates 的优先级定位第一条消息
func messageContainer(env envelope) (json.RawMessage, error) {
	if list, ok := asArray(env.Choices); ok {
		return firstNested(list, "choices", "message")
	}
	if list, ok := asArray(env.Candidates); ok {
		return firstNested(list, "candidates", "content")
	}
	return nil, errors.Wrap(ErrMalformedResponse, "neither 'choices' nor 'candidates' found")
}

func firstNested(list []json.RawMessage, name, field string) (json.RawMessage, error) {
	if len(list) == 0 {
		return nil, errors.Wrapf(ErrMalformedResponse, "'%s' array is empty", name)
	}

	first, ok := asObject(list[0])
	if !ok {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s[0] is not an object", name)
	}

	nested, ok := first[field]
	if !ok || !present(nested) {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s[0].%s is missing", name, field)
	}
	return nested, nil
}

// contentField 优先 content 字段，其次 parts，否则容器本身
func contentField(container json.RawMessage) json.RawMessage {
	obj, ok := asObject(container)
	if !ok {
		return container
	}
	if v, ok := obj["content"]; ok {
		return v
	}
	if v, ok := obj["parts"]; ok {
		return v
	}
	return container
}

type collector struct {
	texts  []string
	images []ImageDescriptor
}

func (c *collector) text() string {
	if len(c.texts) == 0 {
		return NoContentText
	}
	return strings.Join(c.texts, "\n")
}

func (c *collector) addText(text string) {
	cleaned, embedded := ExtractMarkdownImages(text)
	if cleaned != "" {
		c.texts = append(c.texts, cleaned)
	}
	for _, uri := range embedded {
		c.images = append(c.images, newDescriptor(uri))
	}
}

func (c *collector) scanContent(raw json.RawMessage) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		c.addText(text)
		return
	}

	parts, ok := asArray(raw)
	if !ok {
		return
	}
	for _, rawPart := range parts {
		var part contentPart
		if err := json.Unmarshal(rawPart, &part); err != nil {
			continue
		}
		c.scanPart(part)
	}
}

func (c *collector) scanPart(part contentPart) {
	switch part.Type {
	case "text":
		if part.Text != nil {
			c.addText(*part.Text)
		}
	case "image_url":
		if d, ok := imageURLDescriptor(part.ImageURL); ok {
			c.images = append(c.images, d)
		}
	case "":
		if part.Text != nil {
			c.addText(*part.Text)
		}
		inline := part.InlineData
		if inline == nil {
			inline = part.InlineDataSnake
		}
		if inline != nil && inline.Data != "" {
			mimeType := inline.MimeType
			if mimeType == "" {
				mimeType = inline.MimeTypeSnake
			}
			if mimeType == "" {
				mimeType = "image/png"
			}
			c.images = append(c.images, newDescriptor("data:"+mimeType+";base64,"+inline.Data))
		}
	}
}

// scanImageList 处理消息容器上的 images 数组
func (c *collector) scanImageList(raw json.RawMessage) {
	entries, ok := asArray(raw)
	if !ok {
		return
	}
	for _, entry := range entries {
		obj, ok := asObject(entry)
		if !ok {
			continue
		}
		if d, ok := imageURLDescriptor(obj["image_url"]); ok {
			c.images = append(c.images, d)
		}
	}
}

// scanDataArray 处理 images 生成接口风格的顶层 data 数组
func (c *collector) scanDataArray(raw json.RawMessage) {
	entries, ok := asArray(raw)
	if !ok {
		return
	}
	for _, entry := range entries {
		var d dataEntry
		if err := json.Unmarshal(entry, &d); err != nil {
			continue
		}
		switch {
		case d.B64JSON != "":
			c.images = append(c.images, ImageDescriptor{
				SourceURL: datauri.ImagePrefix + "png;base64," + d.B64JSON,
				MIMEHint:  "image/png",
			})
		case d.URL != "":
			c.images = append(c.images, newDescriptor(d.URL))
		}
	}
}

// imageURLDescriptor image_url 可以是 {"url": "..."}，也可能直接是字符串
func imageURLDescriptor(raw json.RawMessage) (ImageDescriptor, bool) {
	if !present(raw) {
		return ImageDescriptor{}, false
	}

	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return newDescriptor(direct), true
	}

	var nested struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return ImageDescriptor{}, false
	}
	return newDescriptor(nested.URL), true
}

// parseUsage 三项 token 统计齐全时才返回
func parseUsage(raw json.RawMessage) *Usage {
	if !present(raw) {
		return nil
	}
	var u usagePayload
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil
	}
	if u.PromptTokens == nil || u.CompletionTokens == nil || u.TotalTokens == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     *u.PromptTokens,
		CompletionTokens: *u.CompletionTokens,
		TotalTokens:      *u.TotalTokens,
	}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if !present(raw) {
		return nil, false
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

func asObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	if !present(raw) {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}
