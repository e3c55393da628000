package imagestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xpzouying/openrouter-image-mcp/pkg/downloader"
	"github.com/xpzouying/openrouter-image-mcp/pkg/imagereply"
)

type fakeFetcher struct {
	images map[string]*downloader.Image
}

func (f *fakeFetcher) Fetch(_ context.Context, imageURL string) (*downloader.Image, error) {
	img, ok := f.images[imageURL]
	if !ok {
		return nil, errors.New("status 404")
	}
	return img, nil
}

func newTestStore(fetcher Fetcher) *Store {
	s := New(fetcher)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }
	return s
}

func dataImage(payload string) imagereply.ImageDescriptor {
	return imagereply.ImageDescriptor{SourceURL: "data:image/png;base64," + payload, MIMEHint: "image/png"}
}

func TestSaveAllDataURI(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	results := newTestStore(nil).SaveAll(context.Background(),
		[]imagereply.ImageDescriptor{dataImage("aGVsbG8=")}, dir, "", false)

	require.Len(t, results, 1)
	require.True(t, results[0].Saved(), results[0].Diagnostic)
	assert.Equal(t, filepath.Join(dir, "generated_20261019_083000.png"), results[0].SavedPath)
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", results[0].SourcePreview)

	data, err := os.ReadFile(results[0].SavedPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestSaveAllSameBaseNameDoesNotCollide(t *testing.T) {
	dir := t.TempDir()
	images := []imagereply.ImageDescriptor{dataImage("QQ=="), dataImage("Qg==")}

	results := newTestStore(nil).SaveAll(context.Background(), images, dir, "photo", true)

	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(dir, "photo_edited_1.png"), results[0].SavedPath)
	assert.Equal(t, filepath.Join(dir, "photo_edited_2.png"), results[1].SavedPath)
	assert.NotEqual(t, results[0].SavedPath, results[1].SavedPath)
}

func TestSaveAllNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0644))

	s := newTestStore(nil)
	first := s.SaveAll(context.Background(), []imagereply.ImageDescriptor{dataImage("QQ==")}, dir, "photo", false)
	second := s.SaveAll(context.Background(), []imagereply.ImageDescriptor{dataImage("Qg==")}, dir, "photo", false)

	require.True(t, first[0].Saved())
	require.True(t, second[0].Saved())
	assert.NotEqual(t, existing, first[0].SavedPath)
	assert.NotEqual(t, first[0].SavedPath, second[0].SavedPath)
	assert.Contains(t, first[0].Diagnostic, "taken")

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestSaveAllConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(nil)

	const workers = 8
	paths := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results := s.SaveAll(context.Background(), []imagereply.ImageDescriptor{dataImage("QQ==")}, dir, "", false)
			paths[i] = results[0].SavedPath
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, p := range paths {
		require.NotEmpty(t, p)
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}

func TestSaveAllRecordsFailuresInOrder(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{images: map[string]*downloader.Image{
		"https://cdn.example.com/ok.webp": {Data: []byte("webp"), MIMEType: ""},
	}}

	images := []imagereply.ImageDescriptor{
		{SourceURL: "data:image/png;base64,!!!"},
		{SourceURL: "https://cdn.example.com/missing.png"},
		{SourceURL: "https://cdn.example.com/ok.webp"},
		{SourceURL: ""},
		{SourceURL: "ftp://example.com/x.png"},
	}

	results := newTestStore(fetcher).SaveAll(context.Background(), images, dir, "", true)

	require.Len(t, results, len(images))
	assert.Contains(t, results[0].Diagnostic, "decode failed")
	assert.Contains(t, results[1].Diagnostic, "fetch failed")
	require.True(t, results[2].Saved())
	assert.Equal(t, filepath.Join(dir, "edited_20261019_083000_3.webp"), results[2].SavedPath)
	assert.Contains(t, results[3].Diagnostic, "no source URL")
	assert.Contains(t, results[4].Diagnostic, "unsupported image source")

	for i, r := range results {
		if i != 2 {
			assert.False(t, r.Saved())
		}
	}
}

func TestSaveAllFallsBackWhenDirUnusable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	results := newTestStore(nil).SaveAll(context.Background(),
		[]imagereply.ImageDescriptor{dataImage("QQ==")}, filepath.Join(blocker, "sub"), "fallback_test", false)

	require.True(t, results[0].Saved(), results[0].Diagnostic)
	t.Cleanup(func() { os.Remove(results[0].SavedPath) })
	assert.True(t, strings.HasPrefix(results[0].SavedPath, filepath.Join(os.TempDir(), FallbackDirName)))
	assert.Contains(t, results[0].Diagnostic, "used fallback")
}

func TestSaveAllEmpty(t *testing.T) {
	assert.Empty(t, newTestStore(nil).SaveAll(context.Background(), nil, t.TempDir(), "", false))
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		name   string
		mime   string
		source string
		data   []byte
		want   string
	}{
		{name: "MIME优先", mime: "image/jpeg", source: "https://x/a.png", want: ".jpg"},
		{name: "URL扩展名", source: "https://x/a.webp?sig=1", want: ".webp"},
		{name: "内容识别", source: "https://x/a", data: []byte("GIF89a\x01\x00"), want: ".gif"},
		{name: "默认png", source: "https://x/a", data: []byte("??"), want: ".png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extensionFor(tt.mime, tt.source, tt.data))
		})
	}
}
