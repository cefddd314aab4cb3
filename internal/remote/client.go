package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/internal/mirror"
	"github.com/tomski747/pvm/internal/platform"
	"github.com/tomski747/pvm/pkg/models"
)

const (
	defaultCacheTTL = 24 * time.Hour
	defaultTimeout  = 60 * time.Second
	defaultPerPage  = 100
	maxPages        = 50
	userAgent       = "pvm"
	digestPrefix    = "sha256:"
)

// RemoteClient 定义远程版本源应具备的能力。
type RemoteClient interface {
	FetchVersions(ctx context.Context, refresh bool) ([]models.RegistryEntry, error)
	ResolveDigest(ctx context.Context, entry models.RegistryEntry) (string, error)
}

// HTTPClient 描述最小化的 HTTP 客户端接口，方便测试时替换。
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option 用于配置 Client。
type Option func(*Client)

// WithBaseURL 设置自定义 releases API 地址。
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = base
		}
	}
}

// WithHTTPClient 设置 HTTP 客户端。
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithCacheTTL 设置远程缓存时间，0 表示不缓存。
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithCacheFile 启用 releases.cache 磁盘缓存。
func WithCacheFile(path string) Option {
	return func(c *Client) {
		c.cacheFile = path
	}
}

// WithTarget 指定需要匹配的发布包平台。
func WithTarget(t platform.Target) Option {
	return func(c *Client) {
		c.target = t
	}
}

// WithMirror 指定下载源。
func WithMirror(m mirror.Config) Option {
	return func(c *Client) {
		c.mirror = m
		if m.APIBase != "" {
			c.baseURL = m.APIBase
		}
	}
}

// WithToken 为 GitHub API 请求附加令牌。
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// WithRetryPolicy 设置重试策略。
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithTimeout 设置单次请求超时。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger 设置日志器。
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.log = logging.OrNop(l)
	}
}

// Client 实现 RemoteClient，数据来自 GitHub releases API。
type Client struct {
	baseURL    string
	httpClient HTTPClient
	cacheTTL   time.Duration
	cacheFile  string
	target     platform.Target
	mirror     mirror.Config
	token      string
	retry      RetryPolicy
	timeout    time.Duration
	perPage    int
	log        *logging.Logger
	now        func() time.Time

	mu       sync.Mutex
	cached   []models.RegistryEntry
	cachedAt time.Time
}

// NewClient 创建远程版本源客户端。
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    mirror.GitHub.APIBase,
		httpClient: http.DefaultClient,
		cacheTTL:   defaultCacheTTL,
		target:     platform.Target{OS: "linux", Arch: "x64"},
		mirror:     mirror.GitHub,
		retry:      DefaultRetryPolicy(),
		timeout:    defaultTimeout,
		perPage:    defaultPerPage,
		log:        logging.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchVersions 返回当前平台可安装的发布版本，按版本号降序。
// refresh 为 true 时跳过内存与磁盘缓存。
func (c *Client) FetchVersions(ctx context.Context, refresh bool) ([]models.RegistryEntry, error) {
	if !refresh {
		if entries, ok := c.getCached(); ok {
			return entries, nil
		}
		if entries, ok := c.readDiskCache(); ok {
			c.log.Debug("using cached release list", "path", c.cacheFile, "count", len(entries))
			c.setCache(entries)
			return cloneEntries(entries), nil
		}
	}

	var all []release
	next := fmt.Sprintf("%s?per_page=%d&page=1", c.baseURL, c.perPage)
	for page := 1; next != "" && page <= maxPages; page++ {
		body, header, err := c.get(ctx, next, "application/vnd.github+json", true)
		if err != nil {
			return nil, apperr.New(apperr.NetworkError, "remote", "", fmt.Errorf("fetch releases page %d: %w", page, err))
		}
		var raw []json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, apperr.New(apperr.NetworkError, "remote", "", fmt.Errorf("decode releases page %d: %w", page, err))
		}
		if len(raw) == 0 {
			break
		}
		all = append(all, c.decodeReleases(page, raw)...)
		next = nextPageURL(header.Get("Link"))
	}

	entries := c.toEntries(all)
	c.setCache(entries)
	if err := c.writeDiskCache(entries); err != nil {
		c.log.Warn("failed to save release cache", "path", c.cacheFile, "error", err)
	}
	return cloneEntries(entries), nil
}

// ResolveDigest 返回条目的 sha256 摘要；发布记录缺失摘要时读取 checksums 文件。
func (c *Client) ResolveDigest(ctx context.Context, entry models.RegistryEntry) (string, error) {
	if entry.Digest != "" {
		return entry.Digest, nil
	}
	if entry.ChecksumsURL == "" {
		return "", apperr.Errorf(apperr.NotFound, "remote", "no digest published for %s", entry.FileName)
	}

	body, _, err := c.get(ctx, entry.ChecksumsURL, "text/plain", false)
	if err != nil {
		return "", apperr.New(apperr.NetworkError, "remote", entry.Number, fmt.Errorf("fetch checksums: %w", err))
	}
	digest, ok := findChecksum(body, entry.FileName)
	if !ok {
		return "", apperr.Errorf(apperr.NotFound, "remote", "checksums file has no entry for %s", entry.FileName)
	}
	return digest, nil
}

func (c *Client) get(ctx context.Context, url, accept string, api bool) ([]byte, http.Header, error) {
	type result struct {
		body   []byte
		header http.Header
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn("request failed, retrying", "url", url, "wait", wait, "error", err)
	}
	base, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	base.Header.Set("Accept", accept)
	base.Header.Set("User-Agent", userAgent)
	if api && c.token != "" {
		base.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := Retry(ctx, c.retry, notify, func(ctx context.Context) (result, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req := base.Clone(reqCtx)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return result{}, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			return result{}, &StatusError{URL: url, Code: resp.StatusCode}
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, fmt.Errorf("read body: %w", err)
		}
		return result{body: body, header: resp.Header}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return res.body, res.header, nil
}

// decodeReleases 逐条解码发布记录，格式错误的记录只跳过自身。
func (c *Client) decodeReleases(page int, raw []json.RawMessage) []release {
	releases := make([]release, 0, len(raw))
	for i, msg := range raw {
		var rel release
		if err := json.Unmarshal(msg, &rel); err != nil {
			c.log.Debug("skipping malformed release", "page", page, "index", i, "reason", err)
			continue
		}
		releases = append(releases, rel)
	}
	return releases
}

func (c *Client) toEntries(releases []release) []models.RegistryEntry {
	var entries []models.RegistryEntry
	for _, rel := range releases {
		if rel.Draft {
			continue
		}
		entry, err := c.toEntry(rel)
		if err != nil {
			c.log.Debug("skipping release", "tag", rel.TagName, "reason", err)
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return semver.Compare("v"+entries[i].Number, "v"+entries[j].Number) > 0
	})
	return entries
}

func (c *Client) toEntry(rel release) (models.RegistryEntry, error) {
	number := strings.TrimPrefix(strings.TrimSpace(rel.TagName), "v")
	if !isFullVersion(number) {
		return models.RegistryEntry{}, fmt.Errorf("tag %q is not a full semantic version", rel.TagName)
	}

	fileName := c.target.AssetName(number)
	var (
		asset     *releaseAsset
		checksums string
	)
	for i := range rel.Assets {
		switch rel.Assets[i].Name {
		case fileName:
			asset = &rel.Assets[i]
		case checksumsName(number):
			checksums = rel.Assets[i].BrowserDownloadURL
		}
	}
	if asset == nil {
		return models.RegistryEntry{}, fmt.Errorf("no asset %s", fileName)
	}

	downloadURL := c.mirror.DownloadURL(fileName, strings.TrimSpace(asset.BrowserDownloadURL))
	if downloadURL == "" {
		return models.RegistryEntry{}, fmt.Errorf("asset %s has no download URL", fileName)
	}

	digest := normalizeDigest(asset.Digest)
	if digest == "" && checksums == "" {
		return models.RegistryEntry{}, fmt.Errorf("asset %s has no digest and release has no checksums file", fileName)
	}

	return models.RegistryEntry{
		Number:       number,
		DownloadURL:  downloadURL,
		FileName:     fileName,
		Digest:       digest,
		ChecksumsURL: checksums,
		Prerelease:   rel.Prerelease || semver.Prerelease("v"+number) != "",
		PublishedAt:  rel.PublishedAt,
		OS:           c.target.OS,
		Arch:         c.target.Arch,
	}, nil
}

func (c *Client) getCached() ([]models.RegistryEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cached) == 0 {
		return nil, false
	}
	if c.cacheTTL > 0 && c.now().Sub(c.cachedAt) > c.cacheTTL {
		c.cached = nil
		return nil, false
	}
	return cloneEntries(c.cached), true
}

func (c *Client) setCache(entries []models.RegistryEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cached = cloneEntries(entries)
	c.cachedAt = c.now()
}

func cloneEntries(in []models.RegistryEntry) []models.RegistryEntry {
	out := make([]models.RegistryEntry, len(in))
	copy(out, in)
	return out
}

// isFullVersion 只接受完整的 MAJOR.MINOR.PATCH 形式，拒绝 3.10 这类简写。
func isFullVersion(number string) bool {
	if number == "" || !semver.IsValid("v"+number) {
		return false
	}
	return semver.Canonical("v"+number) == "v"+strings.SplitN(number, "+", 2)[0]
}

func checksumsName(version string) string {
	return fmt.Sprintf("pulumi-%s-checksums.txt", version)
}

func normalizeDigest(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if !strings.HasPrefix(raw, digestPrefix) || len(raw) == len(digestPrefix) {
		return ""
	}
	return raw
}

// findChecksum 解析 "<hex>  <file>" 格式的 checksums 文件。
func findChecksum(data []byte, fileName string) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		if strings.TrimPrefix(fields[1], "*") == fileName {
			return digestPrefix + strings.ToLower(fields[0]), true
		}
	}
	return "", false
}

// nextPageURL 从 Link 头中取出 rel="next" 的地址。
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		isNext := false
		for _, s := range segs[1:] {
			if strings.TrimSpace(s) == `rel="next"` {
				isNext = true
			}
		}
		if isNext {
			return strings.Trim(strings.TrimSpace(segs[0]), "<>")
		}
	}
	return ""
}

// release 表示 GitHub releases API 中的版本记录。
type release struct {
	TagName     string         `json:"tag_name"`
	Draft       bool           `json:"draft"`
	Prerelease  bool           `json:"prerelease"`
	PublishedAt time.Time      `json:"published_at"`
	Assets      []releaseAsset `json:"assets"`
}

// releaseAsset 表示 release 下的文件条目。
type releaseAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Digest             string `json:"digest"`
}
