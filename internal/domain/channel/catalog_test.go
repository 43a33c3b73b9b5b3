package channel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestResolve_SortsWithPEP440Precedence checks ordering of dev, pre, final and post releases.
func TestResolve_SortsWithPEP440Precedence(t *testing.T) {
	t.Parallel()

	c, err := Resolve([]string{"1.0.post1", "1.0", "2.0", "1.0.dev0", "1.0rc1", "1.0a1", "1.10", "1.9"}, nil)
	require.NoError(t, err)
	require.Equal(t,
		[]string{"1.0.dev0", "1.0a1", "1.0rc1", "1.0", "1.0.post1", "1.9", "1.10", "2.0"},
		c.Versions(),
	)
}

// TestResolve_Epoch ensures an epoch outranks any release segment.
func TestResolve_Epoch(t *testing.T) {
	t.Parallel()

	c, err := Resolve([]string{"1!0.1", "2021.4.0"}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"2021.4.0", "1!0.1"}, c.Versions())
}

// TestResolve_DeduplicatesNormalizedVersions keeps one spelling of equal versions.
func TestResolve_DeduplicatesNormalizedVersions(t *testing.T) {
	t.Parallel()

	c, err := Resolve([]string{"1.0.0", "1.0", "1.0", "2.0"}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"1.0", "2.0"}, c.Versions())
}

// TestResolve_Excluded drops matched versions and leaves the input untouched.
func TestResolve_Excluded(t *testing.T) {
	t.Parallel()

	excluded := []string{"1.1", "2.0.0"}
	raw := []string{"2.0", "1.0", "1.1"}

	c, err := Resolve(raw, excluded)
	require.NoError(t, err)
	require.Equal(t, []string{"1.0"}, c.Versions())

	require.Equal(t, []string{"1.1", "2.0.0"}, excluded)
	require.Equal(t, []string{"2.0", "1.0", "1.1"}, raw)

	_, err = Resolve(raw, []string{"1.1", "not-a-version"})
	require.ErrorIs(t, err, ErrInvalidVersion)
}

// TestMatchVersion compares by PEP 440 equality and by string for unparseable versions.
func TestMatchVersion(t *testing.T) {
	t.Parallel()

	match := MatchVersion("1.0")
	require.True(t, match("1.0"))
	require.True(t, match("1.0.0"))
	require.False(t, match("1.0.1"))
	require.False(t, match("nightly"))

	match = MatchVersion("nightly")
	require.True(t, match("nightly"))
	require.False(t, match("1.0"))
}

// TestResolve_InvalidVersion reports unparseable input instead of guessing an order.
func TestResolve_InvalidVersion(t *testing.T) {
	t.Parallel()

	_, err := Resolve([]string{"1.0", "banana split"}, nil)
	require.ErrorIs(t, err, ErrInvalidVersion)
}

// TestCatalog_Filter keeps only versions matching from the start of the string.
func TestCatalog_Filter(t *testing.T) {
	t.Parallel()

	c, err := Resolve([]string{"2.0", "1.5", "1.0", "11.0"}, nil)
	require.NoError(t, err)

	filtered, err := c.Filter(`1\.`)
	require.NoError(t, err)
	require.Equal(t, []string{"1.0", "1.5"}, filtered.Versions())

	// Not anchored at the end.
	filtered, err = c.Filter(`1`)
	require.NoError(t, err)
	require.Equal(t, []string{"1.0", "1.5", "11.0"}, filtered.Versions())

	all, err := c.Filter("")
	require.NoError(t, err)
	require.Equal(t, c.Versions(), all.Versions())

	_, err = c.Filter("(")
	require.Error(t, err)
}

// TestCatalog_PivotFrom covers present, absent, newest, oldest and empty baselines.
func TestCatalog_PivotFrom(t *testing.T) {
	t.Parallel()

	c, err := Resolve([]string{"1.0", "1.1", "2.0"}, nil)
	require.NoError(t, err)

	cases := []struct {
		name     string
		baseline string
		want     []string
	}{
		{name: "present", baseline: "1.1", want: []string{"1.1", "2.0"}},
		{name: "normalized", baseline: "1.1.0", want: []string{"1.1", "2.0"}},
		{name: "absent", baseline: "9.0", want: []string{"1.0", "1.1", "2.0"}},
		{name: "oldest", baseline: "1.0", want: []string{"1.0", "1.1", "2.0"}},
		{name: "newest", baseline: "2.0", want: []string{"2.0"}},
		{name: "empty", baseline: "", want: []string{"1.0", "1.1", "2.0"}},
		{name: "unparseable", baseline: "???", want: []string{"1.0", "1.1", "2.0"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, c.PivotFrom(tc.baseline).Versions())
		})
	}
}

// TestCatalog_Latest returns the newest version or false for an empty catalog.
func TestCatalog_Latest(t *testing.T) {
	t.Parallel()

	empty, err := Resolve(nil, nil)
	require.NoError(t, err)

	_, ok := empty.Latest()
	require.False(t, ok)
	require.Zero(t, empty.Len())

	c, err := Resolve([]string{"0.9", "1.0rc1"}, nil)
	require.NoError(t, err)

	latest, ok := c.Latest()
	require.True(t, ok)
	require.Equal(t, "1.0rc1", latest)
}
