// Package apperr 定义 pvm 对外暴露的错误分类与退出码。
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 是稳定、可被机器区分的错误类别。
type Kind int

const (
	Unknown Kind = iota
	InvalidSpec
	NotFound
	NetworkError
	DigestMismatch
	VersionNotInstalled
	StateCorruption
	DiskError
)

var kindNames = map[Kind]string{
	Unknown:             "Unknown",
	InvalidSpec:         "InvalidSpec",
	NotFound:            "NotFound",
	NetworkError:        "NetworkError",
	DigestMismatch:      "DigestMismatch",
	VersionNotInstalled: "VersionNotInstalled",
	StateCorruption:     "StateCorruption",
	DiskError:           "DiskError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ExitCode 返回该类别在 CLI 边界上的退出码。
func (k Kind) ExitCode() int {
	switch k {
	case InvalidSpec:
		return 2
	case NotFound:
		return 3
	case NetworkError:
		return 4
	case DigestMismatch:
		return 5
	case VersionNotInstalled:
		return 6
	case StateCorruption:
		return 7
	case DiskError:
		return 8
	default:
		return 1
	}
}

// Error 携带类别、操作与版本上下文。
type Error struct {
	Kind    Kind
	Op      string
	Version string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(strings.ToLower(e.Kind.String()))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 允许 errors.Is(err, apperr.DigestMismatch.Sentinel()) 之类的比较。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Err == nil && t.Op == "" && t.Kind == e.Kind
}

// Sentinel 返回仅包含类别的错误，用于 errors.Is 比较。
func (k Kind) Sentinel() error {
	return &Error{Kind: k}
}

// New 构造一个分类错误。
func New(kind Kind, op, version string, err error) error {
	return &Error{Kind: kind, Op: op, Version: version, Err: err}
}

// Errorf 按格式构造一个分类错误。
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf 返回错误链中第一个分类错误的类别。
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// ExitCode 将任意错误映射为进程退出码，nil 返回 0。
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
