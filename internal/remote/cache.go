package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/pkg/models"
)

// releaseCache 是 releases.cache 的磁盘格式。
type releaseCache struct {
	Timestamp time.Time              `json:"timestamp"`
	Target    string                 `json:"target"`
	Mirror    string                 `json:"mirror"`
	Entries   []models.RegistryEntry `json:"entries"`
}

func (c *Client) cacheKey() string {
	return c.target.OS + "-" + c.target.Arch
}

func (c *Client) readDiskCache() ([]models.RegistryEntry, bool) {
	if c.cacheFile == "" || c.cacheTTL <= 0 {
		return nil, false
	}
	data, err := os.ReadFile(c.cacheFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn("read release cache failed", "path", c.cacheFile, "error", err)
		}
		return nil, false
	}
	var cache releaseCache
	if err := json.Unmarshal(data, &cache); err != nil {
		c.log.Warn("ignoring unreadable release cache", "path", c.cacheFile, "error", err)
		return nil, false
	}
	if cache.Target != c.cacheKey() || cache.Mirror != c.mirror.Name {
		return nil, false
	}
	if c.now().Sub(cache.Timestamp) > c.cacheTTL {
		return nil, false
	}
	return cache.Entries, true
}

func (c *Client) writeDiskCache(entries []models.RegistryEntry) error {
	if c.cacheFile == "" || c.cacheTTL <= 0 {
		return nil
	}
	cache := releaseCache{
		Timestamp: c.now().UTC(),
		Target:    c.cacheKey(),
		Mirror:    c.mirror.Name,
		Entries:   entries,
	}
	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("remote: encode cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.cacheFile), 0o755); err != nil {
		return fmt.Errorf("remote: create cache dir: %w", err)
	}
	return storage.WriteFileAtomic(c.cacheFile, data, 0o644)
}
