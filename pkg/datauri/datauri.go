package datauri

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

const (
	// ImagePrefix 内联图像 data URI 的前缀
	ImagePrefix = "data:image/"

	scheme = "data:"
)

// IsImage 判断字符串是否为 data:image/ 开头的内联图像
func IsImage(s string) bool {
	return strings.HasPrefix(s, ImagePrefix)
}

// Parse 拆分 data:<mime>[;base64],<payload>，返回 MIME 类型与逗号之后的负载
func Parse(uri string) (mimeType, payload string, ok bool) {
	if !strings.HasPrefix(uri, scheme) {
		return "", "", false
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return "", "", false
	}

	header := uri[len(scheme):comma]
	mimeType = header
	if semi := strings.IndexByte(header, ';'); semi >= 0 {
		mimeType = header[:semi]
	}
	return strings.ToLower(strings.TrimSpace(mimeType)), uri[comma+1:], true
}

// Encode 将字节编码为 base64 data URI
func Encode(mimeType string, data []byte) string {
	return scheme + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Decode 解码 data URI 的负载。
// 上游偶尔返回无填充或 URL-safe 的 base64，这里依次尝试。
func Decode(uri string) (mimeType string, data []byte, err error) {
	mimeType, payload, ok := Parse(uri)
	if !ok {
		return "", nil, errors.New("not a data URI")
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if data, err = enc.DecodeString(payload); err == nil {
			return mimeType, data, nil
		}
	}
	return mimeType, nil, errors.Wrap(err, "failed to decode base64 payload")
}
