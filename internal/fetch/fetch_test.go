package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBodyAndMediaType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body><p>hi</p></body></html>"))
	}))
	defer ts.Close()

	page, err := NewHTTP("test-agent").Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "text/html", page.ContentType)
	assert.Contains(t, string(page.Body), "<p>hi</p>")
}

func TestFetchHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusNotFound, false},
		{http.StatusForbidden, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			_, err := NewHTTP("").Fetch(context.Background(), ts.URL)
			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, KindHTTP, fe.Kind)
			assert.Equal(t, tt.status, fe.Status)
			assert.Equal(t, tt.retryable, fe.Retryable())
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTP("").Fetch(ctx, ts.URL)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.True(t, fe.Retryable())
}

func TestFetchNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewHTTP("").Fetch(context.Background(), url)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNetwork, fe.Kind)
}

func TestMediaTypeFallsBackToExtension(t *testing.T) {
	tests := []struct {
		header, url, want string
	}{
		{"application/pdf", "https://x/doc", "application/pdf"},
		{"", "https://x/paper.PDF?dl=1", "application/pdf"},
		{"application/octet-stream", "https://x/notes.md", "text/markdown"},
		{"", "https://x/page", "text/html"},
		{"text/plain; charset=utf-8", "https://x/a.html", "text/plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mediaType(tt.header, tt.url), tt.url)
	}
}
