package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomski747/pvm/internal/apperr"
)

func TestDownloaderDownloadSuccess(t *testing.T) {
	t.Parallel()

	payload := []byte("hello pvm")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	var lastProgress atomic.Int64
	dl := NewDownloader(
		WithHTTPClient(server.Client()),
		WithRetryPolicy(fastRetry()),
		WithProgressFunc(func(done, total int64) {
			lastProgress.Store(done)
		}),
	)

	dest := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, dl.Download(context.Background(), server.URL, digestOf(payload), dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, data)
	require.EqualValues(t, len(payload), lastProgress.Load())
}

func TestDownloaderChecksumMismatchIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("tampered"))
	}))
	defer server.Close()

	dl := NewDownloader(WithHTTPClient(server.Client()), WithRetryPolicy(fastRetry()))
	err := dl.Download(context.Background(), server.URL, digestOf([]byte("original")), filepath.Join(t.TempDir(), "a"))
	require.Equal(t, apperr.DigestMismatch, apperr.KindOf(err))
	require.Equal(t, 5, apperr.ExitCode(err))
	require.EqualValues(t, 1, hits.Load())
}

func TestDownloaderRetriesServerErrors(t *testing.T) {
	t.Parallel()

	payload := []byte("eventually")
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dl := NewDownloader(WithHTTPClient(server.Client()), WithRetryPolicy(fastRetry()))
	require.NoError(t, dl.Download(context.Background(), server.URL, digestOf(payload), filepath.Join(t.TempDir(), "a")))
	require.EqualValues(t, 2, hits.Load())
}

func TestDownloaderNotFoundIsNetworkError(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	dl := NewDownloader(WithHTTPClient(server.Client()), WithRetryPolicy(fastRetry()))
	err := dl.Download(context.Background(), server.URL, digestOf([]byte("x")), filepath.Join(t.TempDir(), "a"))
	require.Equal(t, apperr.NetworkError, apperr.KindOf(err))
	require.EqualValues(t, 1, hits.Load())
}

func TestDownloaderRejectsMalformedDigest(t *testing.T) {
	t.Parallel()

	err := NewDownloader().Download(context.Background(), "http://unused", "sha256:xyz", filepath.Join(t.TempDir(), "a"))
	require.Equal(t, apperr.DigestMismatch, apperr.KindOf(err))
}
