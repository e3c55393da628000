package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpzouying/openrouter-image-mcp/configs"
	"github.com/xpzouying/openrouter-image-mcp/pkg/downloader"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imagereply"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imagestore"
	"github.com/xpzouying/openrouter-image-mcp/pkg/upstream"
)

const testModel = "google/gemini-2.5-flash-image-preview"

// pngBytes 最小的 PNG 文件头，足够让 filetype 识别
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type mockUpstream struct {
	server   *httptest.Server
	hits     atomic.Int32
	lastBody atomic.Value
}

func newMockUpstream(t *testing.T, status int, reply string) *mockUpstream {
	t.Helper()

	m := &mockUpstream{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		m.lastBody.Store(body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(m.server.Close)
	return m
}

// imageURLs 从最近一次请求中取出所有 image_url
func (m *mockUpstream) imageURLs(t *testing.T) []string {
	t.Helper()

	raw, ok := m.lastBody.Load().([]byte)
	require.True(t, ok, "upstream was never called")

	var req struct {
		Messages []struct {
			Content []struct {
				Type     string `json:"type"`
				ImageURL *struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(raw, &req))
	require.Len(t, req.Messages, 1)

	var urls []string
	for _, part := range req.Messages[0].Content {
		if part.ImageURL != nil {
			urls = append(urls, part.ImageURL.URL)
		}
	}
	return urls
}

func newTestService(t *testing.T, upstreamURL string) (*ImageService, string) {
	t.Helper()

	dir := t.TempDir()
	saveDir, err := configs.NewSaveDirectory(dir)
	require.NoError(t, err)

	client := upstream.NewClient(upstream.Options{
		BaseURL: upstreamURL,
		APIKey:  "test-key",
	})
	store := imagestore.New(downloader.NewImageDownloader(downloader.WithRetry(1, time.Millisecond)))

	return NewImageService(testModel, client, saveDir, store), saveDir.Get()
}

func TestGenerateImageEndToEnd(t *testing.T) {
	reply := `{
		"choices": [{"message": {"role": "assistant", "content": "here is your cat"}}],
		"data": [{"b64_json": "iVBORw0KGgoAAAANSUhEUg=="}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
	}`
	up := newMockUpstream(t, http.StatusOK, reply)
	svc, dir := newTestService(t, up.server.URL)

	report, err := svc.GenerateImage(context.Background(), "cat")
	require.NoError(t, err)

	require.Len(t, report.Images, 1)
	saved := report.Images[0]
	require.True(t, saved.Saved(), saved.Diagnostic)
	assert.Equal(t, dir, filepath.Dir(saved.SavedPath))
	assert.Equal(t, ".png", filepath.Ext(saved.SavedPath))

	data, err := os.ReadFile(saved.SavedPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))

	text := report.String()
	assert.Contains(t, text, "1 images")
	assert.Contains(t, text, "here is your cat")
	assert.Contains(t, text, saved.SavedPath)
	assert.Contains(t, text, "total tokens: 12")
	assert.Equal(t, int32(1), up.hits.Load())
}

func TestGenerateImageEmptyPrompt(t *testing.T) {
	up := newMockUpstream(t, http.StatusOK, `{}`)
	svc, _ := newTestService(t, up.server.URL)

	_, err := svc.GenerateImage(context.Background(), "  ")

	var usageErr *UsageError
	require.ErrorAs(t, err, &usageErr)
	assert.Equal(t, int32(0), up.hits.Load())
}

func TestEditImageRequiresImages(t *testing.T) {
	up := newMockUpstream(t, http.StatusOK, `{}`)
	svc, _ := newTestService(t, up.server.URL)

	for _, images := range [][]string{nil, {}, {"https://x/a.png", ""}} {
		_, err := svc.EditImage(context.Background(), "make it blue", images)

		var usageErr *UsageError
		require.ErrorAs(t, err, &usageErr)
		assert.Contains(t, err.Error(), "URL")
		assert.Contains(t, err.Error(), "base64")
		assert.Contains(t, err.Error(), "local file")
	}
	assert.Equal(t, int32(0), up.hits.Load())
}

func TestEditImageForwardsUnrecognizedInput(t *testing.T) {
	up := newMockUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"cannot load image"}}]}`)
	svc, _ := newTestService(t, up.server.URL)

	report, err := svc.EditImage(context.Background(), "describe", []string{"does-not-exist-anywhere"})
	require.NoError(t, err)

	assert.Equal(t, []string{"does-not-exist-anywhere"}, up.imageURLs(t))
	require.Len(t, report.Inputs, 1)
	assert.Equal(t, KindPassthrough, report.Inputs[0].Kind)
	assert.Empty(t, report.Images)
	assert.Equal(t, "cannot load image", report.Text)
}

func TestEditImageLocalInputNamesOutput(t *testing.T) {
	reply := `{"choices":[{"message":{"content":[
		{"type":"text","text":"done"},
		{"type":"image_url","image_url":{"url":"data:image/png;base64,iVBORw0KGgo="}}
	]}}]}`
	up := newMockUpstream(t, http.StatusOK, reply)
	svc, dir := newTestService(t, up.server.URL)

	src := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(src, pngBytes, 0644))

	report, err := svc.EditImage(context.Background(), "add a hat", []string{src, "https://example.com/ref.jpg"})
	require.NoError(t, err)

	urls := up.imageURLs(t)
	require.Len(t, urls, 2)
	assert.True(t, strings.HasPrefix(urls[0], "data:image/png;base64,"))
	assert.Equal(t, "https://example.com/ref.jpg", urls[1])

	require.Len(t, report.Images, 1)
	assert.Equal(t, filepath.Join(dir, "cat_edited.png"), report.Images[0].SavedPath)
	assert.Contains(t, report.String(), "**Input images:** 2 images")
}

func TestEditImageResolvesFromSaveDirectory(t *testing.T) {
	up := newMockUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"ok"}}]}`)
	svc, dir := newTestService(t, up.server.URL)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "previous.png"), pngBytes, 0644))

	report, err := svc.EditImage(context.Background(), "again", []string{"previous"})
	require.NoError(t, err)

	require.Len(t, report.Inputs, 1)
	assert.Equal(t, "local_file_resolved", report.Inputs[0].Kind)
	assert.Equal(t, filepath.Join(dir, "previous.png"), report.Inputs[0].Path)
}

func TestCompleteErrors(t *testing.T) {
	t.Run("HTTP错误", func(t *testing.T) {
		up := newMockUpstream(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`)
		svc, _ := newTestService(t, up.server.URL)

		_, err := svc.GenerateImage(context.Background(), "cat")

		var httpErr *upstream.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
		assert.Contains(t, err.Error(), "401")
		assert.Contains(t, err.Error(), "bad key")
	})

	t.Run("上游错误字段", func(t *testing.T) {
		up := newMockUpstream(t, http.StatusOK, `{"error":{"message":"model overloaded"},"choices":[]}`)
		svc, _ := newTestService(t, up.server.URL)

		_, err := svc.GenerateImage(context.Background(), "cat")

		var upstreamErr *imagereply.UpstreamError
		require.ErrorAs(t, err, &upstreamErr)
		assert.Equal(t, "model overloaded", upstreamErr.Message)
	})

	t.Run("回复格式错误", func(t *testing.T) {
		up := newMockUpstream(t, http.StatusOK, `{"choices":[]}`)
		svc, _ := newTestService(t, up.server.URL)

		_, err := svc.GenerateImage(context.Background(), "cat")
		assert.True(t, errors.Is(err, imagereply.ErrMalformedResponse))
	})

	t.Run("调用被取消", func(t *testing.T) {
		up := newMockUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"late"}}]}`)
		svc, dir := newTestService(t, up.server.URL)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.GenerateImage(ctx, "cat")
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestSaveDirectoryChangeAffectsLaterCalls(t *testing.T) {
	reply := `{"choices":[{"message":{"content":"![x](data:image/png;base64,iVBORw0KGgo=)"}}]}`
	up := newMockUpstream(t, http.StatusOK, reply)
	svc, _ := newTestService(t, up.server.URL)

	newDir := filepath.Join(t.TempDir(), "moved")
	abs, err := svc.SetSaveDirectory(newDir)
	require.NoError(t, err)
	assert.Equal(t, abs, svc.SaveDirectory())

	report, err := svc.GenerateImage(context.Background(), "cat")
	require.NoError(t, err)
	require.Len(t, report.Images, 1)
	assert.Equal(t, abs, filepath.Dir(report.Images[0].SavedPath))
	assert.Equal(t, imagereply.NoContentText, report.Text)

	_, err = svc.SetSaveDirectory(" ")
	require.Error(t, err)
	assert.Equal(t, abs, svc.SaveDirectory())
}
