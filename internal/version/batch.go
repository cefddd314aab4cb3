package version

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tomski747/pvm/internal/logging"
	"github.com/tomski747/pvm/pkg/models"
)

const defaultConcurrency = 3

// EntryInstaller 是 BatchInstaller 依赖的单版本安装能力。
type EntryInstaller interface {
	Install(ctx context.Context, entry models.RegistryEntry) (InstallResult, error)
}

// BatchResult 记录批量安装中单个版本的结果。
type BatchResult struct {
	Entry  models.RegistryEntry
	Result InstallResult
	Err    error
}

// BatchInstaller 以有限并发安装多个版本，单个失败不会取消其余安装。
type BatchInstaller struct {
	installer   EntryInstaller
	concurrency int
	log         *logging.Logger
}

// NewBatchInstaller 创建 BatchInstaller；concurrency 小于 1 时使用默认值 3。
func NewBatchInstaller(installer EntryInstaller, concurrency int, log *logging.Logger) *BatchInstaller {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &BatchInstaller{installer: installer, concurrency: concurrency, log: logging.OrNop(log)}
}

// InstallAll 安装全部条目，结果顺序与输入一致；返回的错误合并了所有失败。
func (b *BatchInstaller) InstallAll(ctx context.Context, entries []models.RegistryEntry) ([]BatchResult, error) {
	results := make([]BatchResult, len(entries))

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for idx, entry := range entries {
		results[idx].Entry = entry
		g.Go(func() error {
			childCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			res, err := b.installer.Install(childCtx, entry)
			results[idx].Result = res
			if err != nil {
				b.log.Warn("install failed", "version", entry.Number, "error", err)
				results[idx].Err = fmt.Errorf("install %s: %w", entry.Number, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var combined error
	for _, r := range results {
		combined = multierr.Append(combined, r.Err)
	}
	return results, combined
}
