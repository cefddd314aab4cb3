package version

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

const maxSuggestions = 3

// suggest 返回 " (did you mean a, b?)" 形式的提示，没有相近版本时返回空字符串。
func suggest(pattern string, candidates []string) string {
	if pattern == "" || len(candidates) == 0 {
		return ""
	}
	matches := fuzzy.Find(pattern, candidates)
	if len(matches) == 0 {
		return ""
	}
	var names []string
	for i, m := range matches {
		if i == maxSuggestions {
			break
		}
		names = append(names, m.Str)
	}
	return fmt.Sprintf(" (did you mean %s?)", strings.Join(names, ", "))
}
