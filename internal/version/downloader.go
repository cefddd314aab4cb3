package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/internal/remote"
)

const (
	defaultDownloadTimeout = 10 * time.Minute
	digestPrefix           = "sha256:"
)

// ProgressFunc 在下载过程中回调当前已完成的字节数以及总字节数。
type ProgressFunc func(downloaded, total int64)

// Downloader 负责下载版本压缩包并进行校验。
type Downloader struct {
	httpClient   remote.HTTPClient
	retry        remote.RetryPolicy
	timeout      time.Duration
	progressFunc ProgressFunc
	log          *logging.Logger
}

// DownloaderOption 配置 Downloader。
type DownloaderOption func(*Downloader)

// WithHTTPClient 指定自定义 HTTP 客户端。
func WithHTTPClient(client remote.HTTPClient) DownloaderOption {
	return func(d *Downloader) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithRetryPolicy 指定下载失败时的重试策略。
func WithRetryPolicy(p remote.RetryPolicy) DownloaderOption {
	return func(d *Downloader) {
		d.retry = p
	}
}

// WithDownloadTimeout 指定单次下载的超时时间。
func WithDownloadTimeout(timeout time.Duration) DownloaderOption {
	return func(d *Downloader) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithProgressFunc 指定进度回调。
func WithProgressFunc(fn ProgressFunc) DownloaderOption {
	return func(d *Downloader) {
		d.progressFunc = fn
	}
}

// WithDownloaderLogger 指定日志器。
func WithDownloaderLogger(l *logging.Logger) DownloaderOption {
	return func(d *Downloader) {
		d.log = logging.OrNop(l)
	}
}

// NewDownloader 创建 Downloader。
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: http.DefaultClient,
		retry:      remote.DefaultRetryPolicy(),
		timeout:    defaultDownloadTimeout,
		log:        logging.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download 将 url 指向的压缩包写入 destPath，并在写入的同时校验 sha256 摘要。
// 摘要不符时返回 DigestMismatch，且不会重试。
func (d *Downloader) Download(ctx context.Context, url, digest, destPath string) error {
	want, err := parseDigest(digest)
	if err != nil {
		return err
	}

	notify := func(err error, wait time.Duration) {
		d.log.Warn("download failed, retrying", "url", url, "wait", wait, "error", err)
	}
	_, err = remote.Retry(ctx, d.retry, notify, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.fetch(ctx, url, want, destPath)
	})
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) != apperr.Unknown {
		return err
	}
	return apperr.New(apperr.NetworkError, "downloader", "", fmt.Errorf("download %s: %w", url, err))
}

func (d *Downloader) fetch(ctx context.Context, url, want, destPath string) error {
	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return apperr.New(apperr.InvalidSpec, "downloader", "", fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "pvm")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &remote.StatusError{URL: url, Code: resp.StatusCode}
	}

	file, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.New(apperr.DiskError, "downloader", "", fmt.Errorf("create %s: %w", destPath, err))
	}
	defer file.Close()

	hasher := sha256.New()
	reader := d.wrapProgress(resp.Body, resp.ContentLength)
	if _, err := io.Copy(io.MultiWriter(file, hasher), reader); err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return apperr.New(apperr.DiskError, "downloader", "", fmt.Errorf("write file: %w", err))
		}
		return fmt.Errorf("read body: %w", err)
	}
	if err := file.Sync(); err != nil {
		return apperr.New(apperr.DiskError, "downloader", "", fmt.Errorf("sync file: %w", err))
	}

	actual := hex.EncodeToString(hasher.Sum(nil))
	if actual != want {
		return apperr.New(apperr.DigestMismatch, "downloader", "",
			fmt.Errorf("checksum mismatch for %s, got %s want %s", url, actual, want))
	}
	return nil
}

func (d *Downloader) wrapProgress(reader io.Reader, total int64) io.Reader {
	if d.progressFunc == nil {
		return reader
	}
	return &progressReader{r: reader, total: total, report: d.progressFunc}
}

// parseDigest 接受 "sha256:<hex>" 或纯十六进制，返回小写十六进制。
func parseDigest(digest string) (string, error) {
	hexPart := strings.ToLower(strings.TrimSpace(digest))
	hexPart = strings.TrimPrefix(hexPart, digestPrefix)
	if len(hexPart) != sha256.Size*2 {
		return "", apperr.Errorf(apperr.DigestMismatch, "downloader", "invalid sha256 digest %q", digest)
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return "", apperr.Errorf(apperr.DigestMismatch, "downloader", "invalid sha256 digest %q", digest)
	}
	return hexPart, nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read, p.total)
	}
	return n, err
}
