package imageinput

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/openrouter-image-mcp/pkg/datauri"
)

// ErrInputUnrecognized 所有解析策略都失败
var ErrInputUnrecognized = errors.New("image input unrecognized")

// DefaultMIMEType 无法识别本地文件类型时使用的 MIME
const DefaultMIMEType = "image/png"

// ProbeExtensions 仅有文件名（无扩展名）时依次尝试的扩展名
var ProbeExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp"}

// Kind 输入图像的类别
type Kind string

const (
	KindURL               Kind = "url"
	KindBase64            Kind = "base64"
	KindLocalFileResolved Kind = "local_file_resolved"
)

// Input 分类后的输入图像。Payload 可直接作为 image_url.url 发送给上游。
type Input struct {
	Kind    Kind
	Payload string
	// Path 本地文件实际解析到的路径，仅本地文件有值
	Path string
}

// Resolver 一种解析策略；ok 为 false 表示本策略不适用，交给下一个
type Resolver interface {
	Resolve(raw, saveDir string) (in Input, ok bool, err error)
}

// ResolverFunc 函数形式的 Resolver
type ResolverFunc func(raw, saveDir string) (Input, bool, error)

func (f ResolverFunc) Resolve(raw, saveDir string) (Input, bool, error) {
	return f(raw, saveDir)
}

// Classifier 按顺序尝试各解析策略，第一个成功的生效
type Classifier struct {
	resolvers []Resolver
}

// NewClassifier 创建默认的分类器：URL → data URI → 本地路径 → 保存目录
func NewClassifier() *Classifier {
	return &Classifier{
		resolvers: []Resolver{
			ResolverFunc(resolveURL),
			ResolverFunc(resolveDataURI),
			ResolverFunc(resolveLocalFile),
			ResolverFunc(resolveInSaveDir),
		},
	}
}

// NewClassifierWithResolvers 使用自定义的策略列表
func NewClassifierWithResolvers(resolvers ...Resolver) *Classifier {
	return &Classifier{resolvers: resolvers}
}

// Classify 对一条调用方传入的图像字符串分类。saveDir 为本次调用读取到的保存目录。
func (c *Classifier) Classify(raw, saveDir string) (Input, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Input{}, errors.Wrap(ErrInputUnrecognized, "empty image input")
	}

	var lastErr error
	for _, r := range c.resolvers {
		in, ok, err := r.Resolve(raw, saveDir)
		if err != nil {
			logrus.Debugf("解析图像输入失败: %v", err)
			lastErr = err
			continue
		}
		if ok {
			return in, nil
		}
	}

	if lastErr != nil {
		return Input{}, errors.Wrapf(ErrInputUnrecognized, "%s: %v", raw, lastErr)
	}
	return Input{}, errors.Wrap(ErrInputUnrecognized, raw)
}

// IsLocalReference 判断输入是否既不是 URL 也不是 data URI
func IsLocalReference(raw string) bool {
	return !isURL(raw) && !datauri.IsImage(raw)
}

func isURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}

func resolveURL(raw, _ string) (Input, bool, error) {
	if !isURL(raw) {
		return Input{}, false, nil
	}
	return Input{Kind: KindURL, Payload: raw}, true, nil
}

func resolveDataURI(raw, _ string) (Input, bool, error) {
	if !datauri.IsImage(raw) {
		return Input{}, false, nil
	}
	return Input{Kind: KindBase64, Payload: raw}, true, nil
}

func resolveLocalFile(raw, _ string) (Input, bool, error) {
	payload, err := encodeFile(raw)
	if err != nil {
		return Input{}, false, err
	}
	return Input{Kind: KindBase64, Payload: payload, Path: raw}, true, nil
}

// resolveInSaveDir 在保存目录下查找：先 <saveDir>/<raw>，无扩展名时再逐个尝试常见图片扩展名
func resolveInSaveDir(raw, saveDir string) (Input, bool, error) {
	if saveDir == "" {
		return Input{}, false, nil
	}

	candidates := []string{filepath.Join(saveDir, raw)}
	if filepath.Ext(raw) == "" {
		for _, ext := range ProbeExtensions {
			candidates = append(candidates, filepath.Join(saveDir, raw+ext))
		}
	}

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		payload, err := encodeFile(path)
		if err != nil {
			return Input{}, false, err
		}
		logrus.Infof("在保存目录中找到图像: %s", path)
		return Input{Kind: KindLocalFileResolved, Payload: payload, Path: path}, true, nil
	}

	return Input{}, false, errors.Errorf("%s not found in save directory %s", raw, saveDir)
}

func encodeFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to stat image file")
	}
	if info.IsDir() {
		return "", errors.Errorf("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to read image file")
	}
	return datauri.Encode(DetectMIME(path, data), data), nil
}

// DetectMIME 先按内容识别，再按扩展名猜测，都失败时返回 DefaultMIMEType
func DetectMIME(path string, data []byte) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown && filetype.IsImage(data) {
		return kind.MIME.Value
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	if ext != "" {
		if t := filetype.GetType(ext); t != filetype.Unknown && strings.HasPrefix(t.MIME.Value, "image/") {
			return t.MIME.Value
		}
	}
	return DefaultMIMEType
}

// FileStem 返回去掉目录与扩展名后的文件名，用于编辑结果命名
func FileStem(raw string) string {
	base := filepath.Base(strings.ReplaceAll(raw, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
