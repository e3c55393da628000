package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gifBytes = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(gifBytes)
	}))
	defer srv.Close()

	img, err := NewImageDownloader().Fetch(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, gifBytes, img.Data)
	assert.Equal(t, "image/gif", img.MIMEType)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("webp-bytes"))
	}))
	defer srv.Close()

	d := NewImageDownloader(WithRetry(3, time.Millisecond))
	img, err := d.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", img.MIMEType)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewImageDownloader(WithRetry(3, time.Millisecond))
	_, err := d.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestIsImageURL(t *testing.T) {
	assert.True(t, IsImageURL("https://example.com/a.png"))
	assert.True(t, IsImageURL("HTTP://example.com/a.png"))
	assert.False(t, IsImageURL("ftp://example.com/a.png"))
	assert.False(t, IsImageURL("data:image/png;base64,AA"))
	assert.False(t, IsImageURL("https://"))
}
