package imagestore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/xpzouying/openrouter-image-mcp/pkg/datauri"
	"github.com/xpzouying/openrouter-image-mcp/pkg/downloader"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imagereply"
	"github.com/xpzouying/openrouter-image-mcp/pkg/textutil"
)

const (
	// PreviewLength SavedImage.SourcePreview 保留的字符数
	PreviewLength = 50

	// FallbackDirName 目标目录不可用时在系统临时目录下使用的子目录
	FallbackDirName = "image-mcp"

	defaultExtension = ".png"
	maxNameAttempts  = 5
)

// Fetcher 下载远程图片
type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) (*downloader.Image, error)
}

// SavedImage 一张图片的保存结果。SavedPath 为空表示保存失败，原因见 Diagnostic。
type SavedImage struct {
	SourcePreview string `json:"source_preview"`
	SavedPath     string `json:"saved_path,omitempty"`
	Diagnostic    string `json:"diagnostic,omitempty"`
}

// Saved 是否保存成功
func (s SavedImage) Saved() bool {
	return s.SavedPath != ""
}

// Store 将上游回复中的图片写入保存目录
type Store struct {
	fetcher Fetcher
	now     func() time.Time
}

// New 创建 Store，fetcher 用于下载 http(s) 图片
func New(fetcher Fetcher) *Store {
	return &Store{
		fetcher: fetcher,
		now:     time.Now,
	}
}

// SaveAll 逐张保存图片。单张失败只记录在 Diagnostic 中，不影响其他图片；
// 返回结果与输入一一对应、顺序一致。
func (s *Store) SaveAll(ctx context.Context, images []imagereply.ImageDescriptor, targetDir, baseName string, isEdit bool) []SavedImage {
	results := make([]SavedImage, len(images))
	if len(images) == 0 {
		return results
	}

	dir, dirNote := ensureDir(targetDir)
	stem := s.nameStem(baseName, isEdit)

	for i, img := range images {
		result := SavedImage{SourcePreview: textutil.Preview(img.SourceURL, PreviewLength)}

		if dir == "" {
			result.Diagnostic = dirNote
			results[i] = result
			continue
		}

		data, mimeType, err := s.load(ctx, img)
		if err != nil {
			result.Diagnostic = err.Error()
			logrus.Warnf("图像 %d 获取失败: %v", i+1, err)
			results[i] = result
			continue
		}

		name := stem
		if len(images) > 1 {
			name = fmt.Sprintf("%s_%d", stem, i+1)
		}
		ext := extensionFor(mimeType, img.SourceURL, data)

		savedPath, renamed, err := writeExclusive(dir, name, ext, data)
		if err != nil {
			result.Diagnostic = err.Error()
			logrus.Warnf("图像 %d 保存失败: %v", i+1, err)
			results[i] = result
			continue
		}

		result.SavedPath = savedPath
		result.Diagnostic = joinNotes(dirNote, renamed)
		logrus.Infof("图像 %d 已保存到: %s", i+1, savedPath)
		results[i] = result
	}

	return results
}

// nameStem 指定了 baseName 时直接使用（编辑时追加 _edited），否则生成带时间戳的名字
func (s *Store) nameStem(baseName string, isEdit bool) string {
	baseName = sanitizeName(baseName)
	if baseName != "" {
		if isEdit {
			return baseName + "_edited"
		}
		return baseName
	}

	marker := "generated"
	if isEdit {
		marker = "edited"
	}
	return marker + "_" + s.now().Format("20060102_150405")
}

func (s *Store) load(ctx context.Context, img imagereply.ImageDescriptor) ([]byte, string, error) {
	switch {
	case img.IsDataURI():
		mimeType, data, err := datauri.Decode(img.SourceURL)
		if err != nil {
			return nil, "", errors.Wrap(err, "decode failed")
		}
		if len(data) == 0 {
			return nil, "", errors.New("decode failed: empty payload")
		}
		if mimeType == "" {
			mimeType = img.MIMEHint
		}
		return data, mimeType, nil
	case img.IsRemote():
		if s.fetcher == nil {
			return nil, "", errors.New("fetch failed: no downloader configured")
		}
		fetched, err := s.fetcher.Fetch(ctx, img.SourceURL)
		if err != nil {
			return nil, "", errors.Wrap(err, "fetch failed")
		}
		mimeType := fetched.MIMEType
		if mimeType == "" {
			mimeType = img.MIMEHint
		}
		return fetched.Data, mimeType, nil
	case img.SourceURL == "":
		return nil, "", errors.New("image has no source URL")
	default:
		return nil, "", errors.Errorf("unsupported image source: %s", textutil.Preview(img.SourceURL, PreviewLength))
	}
}

// ensureDir 确保目标目录存在，失败时回退到系统临时目录
func ensureDir(targetDir string) (string, string) {
	if targetDir != "" {
		err := os.MkdirAll(targetDir, 0755)
		if err == nil {
			return targetDir, ""
		}
		logrus.Warnf("创建保存目录失败 %s: %v", targetDir, err)
	}

	fallback := filepath.Join(os.TempDir(), FallbackDirName)
	if err := os.MkdirAll(fallback, 0755); err != nil {
		return "", fmt.Sprintf("write failed: cannot create %q or fallback %q: %v", targetDir, fallback, err)
	}
	return fallback, fmt.Sprintf("save directory %q unavailable, used fallback %s", targetDir, fallback)
}

// writeExclusive 以 O_EXCL 创建文件，同名文件已存在时追加随机后缀重试，绝不覆盖
func writeExclusive(dir, name, ext string, data []byte) (string, string, error) {
	candidate := name
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		fullPath := filepath.Join(dir, candidate+ext)

		f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			if os.IsExist(err) {
				candidate = name + "_" + uuid.NewString()[:8]
				continue
			}
			return "", "", errors.Wrap(err, "write failed")
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(fullPath)
			return "", "", errors.Wrap(err, "write failed")
		}
		if err := f.Close(); err != nil {
			os.Remove(fullPath)
			return "", "", errors.Wrap(err, "write failed")
		}

		note := ""
		if candidate != name {
			note = fmt.Sprintf("name %s%s taken, saved as %s%s", name, ext, candidate, ext)
		}
		return fullPath, note, nil
	}
	return "", "", errors.Errorf("write failed: no free file name for %s%s", name, ext)
}

// extensionFor 依次按 MIME、URL 路径、文件内容推断扩展名，默认 .png
func extensionFor(mimeType, source string, data []byte) string {
	if ext := extensionForMIME(mimeType); ext != "" {
		return ext
	}
	if !strings.HasPrefix(source, "data:") {
		if u, err := url.Parse(source); err == nil {
			switch ext := strings.ToLower(path.Ext(u.Path)); ext {
			case ".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp":
				return ext
			}
		}
	}
	if kind, err := filetype.Match(data); err == nil && filetype.IsImage(data) {
		return "." + kind.Extension
	}
	return defaultExtension
}

func extensionForMIME(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	}
	return ""
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

func joinNotes(notes ...string) string {
	var kept []string
	for _, n := range notes {
		if n != "" {
			kept = append(kept, n)
		}
	}
	return strings.Join(kept, "; ")
}
