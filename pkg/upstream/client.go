package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const (
	// MaxTokens 与 Temperature 为每次请求固定携带的参数
	MaxTokens   = 1000
	Temperature = 0.7

	maxErrorBody = 4096
)

// TransportError 请求未能发出或未收到响应
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError 上游返回非 2xx 状态码
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API request failed, status: %d %s, error: %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Options 上游客户端配置
type Options struct {
	BaseURL     string
	APIKey      string
	HTTPReferer string
	XTitle      string
	HTTPClient  *http.Client
}

// Client chat/completions 兼容接口的客户端。
// 只负责发送请求与返回原始回复体，回复的解析交给 imagereply。
type Client struct {
	baseURL     string
	apiKey      string
	httpReferer string
	xTitle      string
	httpClient  *http.Client
}

// NewClient 创建上游客户端
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		httpReferer: opts.HTTPReferer,
		xTitle:      opts.XTitle,
		httpClient:  httpClient,
	}
}

// NewImageRequest 构造单条 user 消息的请求：文本在前，图像按顺序附后
func NewImageRequest(model, text string, imageURLs ...string) openai.ChatCompletionRequest {
	parts := make([]openai.ChatMessagePart, 0, len(imageURLs)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: text,
	})
	for _, u := range imageURLs {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: u},
		})
	}

	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		}},
		MaxTokens:   MaxTokens,
		Temperature: Temperature,
	}
}

// ChatCompletions 发送 POST {baseURL}/chat/completions，返回 2xx 的原始回复体
func (c *Client) ChatCompletions(ctx context.Context, req openai.ChatCompletionRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.httpReferer != "" {
		httpReq.Header.Set("HTTP-Referer", c.httpReferer)
	}
	if c.xTitle != "" {
		httpReq.Header.Set("X-Title", c.xTitle)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: errors.Wrap(err, "failed to read response body")}
	}

	logrus.Debugf("上游响应: status=%d, 耗时=%s, 大小=%d", resp.StatusCode, time.Since(start), len(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := strings.TrimSpace(string(body))
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody] + "..."
		}
		if text == "" {
			text = "unable to read error details"
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: text}
	}

	return body, nil
}
