package channel

import (
	"fmt"
	"regexp"
	"slices"
	"sort"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Catalog is an ascending, duplicate-free sequence of versions of one package.
// It is built fresh for every query and never persisted.
type Catalog struct {
	items []catalogItem
}

type catalogItem struct {
	raw    string
	parsed pep440.Version
}

// ParseVersion parses a raw version string with PEP 440 rules.
func ParseVersion(raw string) (pep440.Version, error) {
	v, err := pep440.Parse(raw)
	if err != nil {
		return pep440.Version{}, fmt.Errorf("%q: %w: %w", raw, ErrInvalidVersion, err)
	}

	return v, nil
}

// MatchVersion returns a predicate reporting whether a raw version is the
// same version as want. Versions compare by PEP 440 equality, and by exact
// string when either side does not parse.
func MatchVersion(want string) func(raw string) bool {
	parsed, err := pep440.Parse(want)
	if err != nil {
		return func(raw string) bool { return raw == want }
	}

	return func(raw string) bool {
		if raw == want {
			return true
		}

		v, err := pep440.Parse(raw)

		return err == nil && v.Compare(parsed) == 0
	}
}

// Resolve builds a Catalog from raw version strings. Versions that normalize
// equal are kept once, and any version equal to an excluded one is dropped.
// The excluded slice is only read. Unparseable raw or excluded versions fail
// with ErrInvalidVersion.
func Resolve(raw, excluded []string) (Catalog, error) {
	skip, err := newVersionSet(excluded)
	if err != nil {
		return Catalog{}, fmt.Errorf("excluded versions: %w", err)
	}

	candidates := slices.Clone(raw)
	// Lexical pre-sort makes the surviving spelling of equal versions deterministic.
	sort.Strings(candidates)

	items := make([]catalogItem, 0, len(candidates))

	for _, s := range candidates {
		parsed, err := ParseVersion(s)
		if err != nil {
			return Catalog{}, err
		}

		if skip.contains(parsed) {
			continue
		}

		items = append(items, catalogItem{raw: s, parsed: parsed})
	}

	slices.SortStableFunc(items, func(a, b catalogItem) int {
		return a.parsed.Compare(b.parsed)
	})

	items = slices.CompactFunc(items, func(a, b catalogItem) bool {
		return a.parsed.Compare(b.parsed) == 0
	})

	return Catalog{items: items}, nil
}

// Filter keeps the versions whose string form matches pattern starting at
// position 0. An empty pattern keeps everything.
func (c Catalog) Filter(pattern string) (Catalog, error) {
	if pattern == "" {
		return c, nil
	}

	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return Catalog{}, fmt.Errorf("compile version regex %q: %w", pattern, err)
	}

	items := make([]catalogItem, 0, len(c.items))

	for _, item := range c.items {
		if re.MatchString(item.raw) {
			items = append(items, item)
		}
	}

	return Catalog{items: items}, nil
}

// IndexOf returns the position of version in the catalog, or -1.
// Unparseable versions are looked up by exact string.
func (c Catalog) IndexOf(version string) int {
	parsed, err := pep440.Parse(version)
	if err != nil {
		return slices.IndexFunc(c.items, func(item catalogItem) bool {
			return item.raw == version
		})
	}

	return slices.IndexFunc(c.items, func(item catalogItem) bool {
		return item.parsed.Compare(parsed) == 0
	})
}

// PivotFrom returns baseline and every newer version. An empty or unknown
// baseline returns the whole catalog.
func (c Catalog) PivotFrom(baseline string) Catalog {
	if baseline == "" {
		return c
	}

	idx := c.IndexOf(baseline)
	if idx < 0 {
		return c
	}

	return Catalog{items: c.items[idx:]}
}

// Versions returns the raw version strings in ascending order.
func (c Catalog) Versions() []string {
	result := make([]string, 0, len(c.items))
	for _, item := range c.items {
		result = append(result, item.raw)
	}

	return result
}

// Len returns the number of versions in the catalog.
func (c Catalog) Len() int {
	return len(c.items)
}

// Latest returns the newest version.
func (c Catalog) Latest() (string, bool) {
	if len(c.items) == 0 {
		return "", false
	}

	return c.items[len(c.items)-1].raw, true
}

// versionSet matches versions by parsed equality.
type versionSet []pep440.Version

func newVersionSet(values []string) (versionSet, error) {
	set := make(versionSet, 0, len(values))

	for _, v := range values {
		parsed, err := ParseVersion(v)
		if err != nil {
			return nil, err
		}

		set = append(set, parsed)
	}

	return set, nil
}

func (s versionSet) contains(parsed pep440.Version) bool {
	return slices.ContainsFunc(s, func(v pep440.Version) bool {
		return v.Compare(parsed) == 0
	})
}
