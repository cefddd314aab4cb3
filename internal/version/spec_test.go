package version

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomski747/pvm/internal/apperr"
)

func TestParseSpec(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		kind  SpecKind
		str   string
	}{
		{"3.10.1", SpecExact, "3.10.1"},
		{"v3.10.1", SpecExact, "3.10.1"},
		{"3.11.0-alpha.1", SpecExact, "3.11.0-alpha.1"},
		{"3.10", SpecPrefix, "3.10"},
		{"3", SpecPrefix, "3"},
		{"latest", SpecLatest, "latest"},
		{"LATEST", SpecLatest, "latest"},
	}
	for _, tc := range cases {
		spec, err := ParseSpec(tc.input)
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.kind, spec.Kind, tc.input)
		require.Equal(t, tc.str, spec.String(), tc.input)
	}
}

func TestParseSpecRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "  ", "three", "3.x", "3.10.1.2", "~3.10"} {
		_, err := ParseSpec(input)
		require.Equal(t, apperr.InvalidSpec, apperr.KindOf(err), input)
		require.Equal(t, 2, apperr.ExitCode(err), input)
	}
}

func TestPrefixMatchesWholeComponents(t *testing.T) {
	t.Parallel()

	spec := MustParseSpec("3.9")
	require.True(t, spec.Matches("3.9.0"))
	require.True(t, spec.Matches("3.9.12"))
	require.False(t, spec.Matches("3.90.0"))
	require.False(t, spec.Matches("3.10.0"))

	major := MustParseSpec("3")
	require.True(t, major.Matches("3.100.0"))
	require.False(t, major.Matches("30.0.0"))
}

func TestSelectPicksHighestMatch(t *testing.T) {
	t.Parallel()

	numbers := []string{"3.9.0", "3.10.0", "3.10.1", "3.100.0", "2.25.2"}

	got, ok := MustParseSpec("3.10").Select(numbers)
	require.True(t, ok)
	require.Equal(t, "3.10.1", got)

	got, ok = MustParseSpec("latest").Select(numbers)
	require.True(t, ok)
	require.Equal(t, "3.100.0", got)

	got, ok = MustParseSpec("2").Select(numbers)
	require.True(t, ok)
	require.Equal(t, "2.25.2", got)

	_, ok = MustParseSpec("4").Select(numbers)
	require.False(t, ok)
}

func TestLatestExcludesPrereleases(t *testing.T) {
	t.Parallel()

	got, ok := MustParseSpec("latest").Select([]string{"3.10.1", "3.11.0-alpha.1"})
	require.True(t, ok)
	require.Equal(t, "3.10.1", got)

	// 只有预发布版本时才选择预发布版本。
	got, ok = MustParseSpec("3.11").Select([]string{"3.10.1", "3.11.0-alpha.1", "3.11.0-beta.1"})
	require.True(t, ok)
	require.Equal(t, "3.11.0-beta.1", got)

	got, ok = MustParseSpec("3.11.0-alpha.1").Select([]string{"3.11.0-alpha.1", "3.11.0"})
	require.True(t, ok)
	require.Equal(t, "3.11.0-alpha.1", got)
}

func TestSuggest(t *testing.T) {
	t.Parallel()

	require.Contains(t, suggest("3.10", []string{"3.10.0", "3.10.1", "3.9.0"}), "did you mean 3.10.")
	require.Empty(t, suggest("9.9", []string{"3.10.0"}))
	require.Empty(t, suggest("3.10", nil))
}
