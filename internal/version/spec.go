package version

import (
	"strings"

	"golang.org/x/mod/semver"

	"github.com/tomski747/pvm/internal/apperr"
)

// SpecKind 是版本说明符的解析策略。
type SpecKind int

const (
	SpecExact SpecKind = iota
	SpecPrefix
	SpecLatest
)

func (k SpecKind) String() string {
	switch k {
	case SpecExact:
		return "exact"
	case SpecPrefix:
		return "prefix"
	default:
		return "latest"
	}
}

// Spec 是解析后的版本说明符：精确版本、前缀（3 或 3.10）或 latest。
type Spec struct {
	Kind SpecKind
	Raw  string
	// canonical 带 v 前缀：精确版本为 semver.Canonical 结果，前缀为 v3 或 v3.10。
	canonical string
	parts     int
}

// ParseSpec 解析用户输入，允许可选的 v 前缀。
func ParseSpec(input string) (Spec, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Spec{}, apperr.Errorf(apperr.InvalidSpec, "spec", "version is required")
	}
	if strings.EqualFold(raw, "latest") {
		return Spec{Kind: SpecLatest, Raw: raw}, nil
	}

	v := "v" + strings.TrimPrefix(raw, "v")
	if !semver.IsValid(v) {
		return Spec{}, apperr.Errorf(apperr.InvalidSpec, "spec", "%q is not a version, prefix or \"latest\"", raw)
	}

	core := v[1:]
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Count(core, ".") + 1

	switch parts {
	case 3:
		return Spec{Kind: SpecExact, Raw: raw, canonical: semver.Canonical(v), parts: 3}, nil
	case 2:
		return Spec{Kind: SpecPrefix, Raw: raw, canonical: semver.MajorMinor(v), parts: 2}, nil
	default:
		return Spec{Kind: SpecPrefix, Raw: raw, canonical: semver.Major(v), parts: 1}, nil
	}
}

// MustParseSpec 用于常量输入，解析失败时 panic。
func MustParseSpec(input string) Spec {
	s, err := ParseSpec(input)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Spec) String() string {
	if s.Kind == SpecLatest {
		return "latest"
	}
	return strings.TrimPrefix(s.canonical, "v")
}

// Number 返回精确版本号；非精确说明符返回空字符串。
func (s Spec) Number() string {
	if s.Kind != SpecExact {
		return ""
	}
	return strings.TrimPrefix(s.canonical, "v")
}

// Matches 判断版本号是否满足说明符。前缀按分量匹配，3.9 不匹配 3.90.0。
func (s Spec) Matches(number string) bool {
	v := "v" + number
	if !semver.IsValid(v) {
		return false
	}
	switch s.Kind {
	case SpecExact:
		return semver.Compare(v, s.canonical) == 0
	case SpecPrefix:
		if s.parts == 1 {
			return semver.Major(v) == s.canonical
		}
		return semver.MajorMinor(v) == s.canonical
	default:
		return true
	}
}

// Select 从候选版本号中选出满足说明符的最高版本。
// 只要存在正式版本就排除预发布版本；精确说明符不受此限制。
func (s Spec) Select(numbers []string) (string, bool) {
	return s.SelectFunc(numbers, isPrereleaseNumber)
}

// SelectFunc 与 Select 相同，但由 prerelease 判断候选是否为预发布版本。
func (s Spec) SelectFunc(numbers []string, prerelease func(string) bool) (string, bool) {
	var bestStable, bestPre string
	for _, n := range numbers {
		if !s.Matches(n) {
			continue
		}
		if !prerelease(n) || s.Kind == SpecExact {
			if bestStable == "" || Compare(n, bestStable) > 0 {
				bestStable = n
			}
			continue
		}
		if bestPre == "" || Compare(n, bestPre) > 0 {
			bestPre = n
		}
	}
	if bestStable != "" {
		return bestStable, true
	}
	return bestPre, bestPre != ""
}

func isPrereleaseNumber(number string) bool {
	return semver.Prerelease("v"+number) != ""
}

// Compare 按语义化版本比较两个不带 v 前缀的版本号。
func Compare(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}
