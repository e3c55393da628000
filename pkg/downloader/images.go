package downloader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
)

// maxImageBytes 单张图片的最大下载体积
const maxImageBytes = 32 << 20

// Image 下载得到的图片
type Image struct {
	Data     []byte
	MIMEType string
}

// ImageDownloader 图片下载器
type ImageDownloader struct {
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

// Option 下载器配置项
type Option func(*ImageDownloader)

// WithHTTPClient 使用自定义的 http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(d *ImageDownloader) {
		d.httpClient = c
	}
}

// WithRetry 设置重试次数与间隔
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(d *ImageDownloader) {
		d.attempts = attempts
		d.delay = delay
	}
}

// NewImageDownloader 创建图片下载器
func NewImageDownloader(opts ...Option) *ImageDownloader {
	d := &ImageDownloader{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		attempts: 3,
		delay:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch 下载图片，网络错误与 5xx 会重试，4xx 直接失败
func (d *ImageDownloader) Fetch(ctx context.Context, imageURL string) (*Image, error) {
	if !IsImageURL(imageURL) {
		return nil, errors.New("invalid image URL format")
	}

	return retry.DoWithData(
		func() (*Image, error) {
			return d.fetchOnce(ctx, imageURL)
		},
		retry.Context(ctx),
		retry.Attempts(d.attempts),
		retry.Delay(d.delay),
		retry.LastErrorOnly(true),
	)
}

func (d *ImageDownloader) fetchOnce(ctx context.Context, imageURL string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, retry.Unrecoverable(errors.Wrap(err, "failed to create request"))
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if parsedURL, _ := url.Parse(imageURL); parsedURL != nil {
		req.Header.Set("Referer", fmt.Sprintf("%s://%s/", parsedURL.Scheme, parsedURL.Host))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to download image from %s", imageURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("download failed with status %d", resp.StatusCode)
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, retry.Unrecoverable(statusErr)
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image data")
	}
	if len(data) > maxImageBytes {
		return nil, retry.Unrecoverable(errors.Errorf("image exceeds %d bytes", maxImageBytes))
	}
	if len(data) == 0 {
		return nil, retry.Unrecoverable(errors.New("downloaded image is empty"))
	}

	return &Image{
		Data:     data,
		MIMEType: detectMIME(resp.Header.Get("Content-Type"), data),
	}, nil
}

// detectMIME 优先使用响应头中的图片类型，否则按内容识别
func detectMIME(contentType string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	if kind, err := filetype.Match(data); err == nil && filetype.IsImage(data) {
		return kind.MIME.Value
	}
	return ""
}

// IsImageURL 判断字符串是否为图片URL
func IsImageURL(path string) bool {
	lower := strings.ToLower(path)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}

	parsedURL, err := url.Parse(path)
	if err != nil {
		return false
	}
	return parsedURL.Scheme != "" && parsedURL.Host != ""
}
