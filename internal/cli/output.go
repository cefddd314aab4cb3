package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/tomski747/pvm/internal/version"
)

// palette 集中管理输出颜色，禁用时所有函数原样输出。
type palette struct {
	success *color.Color
	info    *color.Color
	warning *color.Color
	failure *color.Color
	current *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		success: color.New(color.FgGreen),
		info:    color.New(color.FgCyan),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed),
		current: color.New(color.FgGreen, color.Bold),
	}
	for _, c := range []*color.Color{p.success, p.info, p.warning, p.failure, p.current} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// IsTerminal 判断 w 是否连接到终端。
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ColorEnabled 综合 --no-color、NO_COLOR 与终端检测决定是否上色。
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return IsTerminal(w)
}

// PrintError 以统一格式输出命令错误。
func PrintError(w io.Writer, err error, noColor bool) {
	p := newPalette(ColorEnabled(w, noColor))
	fmt.Fprintln(w, p.failure.Sprint("error: ")+err.Error())
}

const progressInterval = 200 * time.Millisecond

// NewProgressPrinter 返回向终端输出下载进度的回调；w 不是终端时返回 nil。
func NewProgressPrinter(w io.Writer) version.ProgressFunc {
	if !IsTerminal(w) {
		return nil
	}
	var (
		mu   sync.Mutex
		last time.Time
	)
	return func(done, total int64) {
		mu.Lock()
		defer mu.Unlock()
		finished := total > 0 && done >= total
		if !finished && time.Since(last) < progressInterval {
			return
		}
		last = time.Now()
		if total > 0 {
			fmt.Fprintf(w, "\r  downloading %s / %s", humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)))
		} else {
			fmt.Fprintf(w, "\r  downloading %s", humanize.Bytes(uint64(done)))
		}
		if finished {
			fmt.Fprintln(w)
		}
	}
}
