// Package fimover implements the semver-2 value type and the (name,
// namespace, version) symbol identity used throughout the module core.
package fimover

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a semver-2 value. Build metadata is carried for display but
// never participates in ordering or compatibility.
type Version struct {
	Major uint64
	Minor uint64
	Patch uint64
	Pre   string
	Build string
}

// New constructs a Version with no pre-release or build metadata.
func New(major, minor, patch uint64) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// Parse parses a semver-2 string ("major.minor.patch[-pre][+build]").
func Parse(s string) (Version, error) {
	var v Version
	build := ""
	if i := strings.IndexByte(s, '+'); i >= 0 {
		build = s[i+1:]
		s = s[:i]
	}
	pre := ""
	if i := strings.IndexByte(s, '-'); i >= 0 {
		pre = s[i+1:]
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return v, fmt.Errorf("fimover: malformed version %q", s)
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return v, fmt.Errorf("fimover: malformed version %q: %w", s, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	v.Pre = pre
	v.Build = build
	return v, nil
}

// MustParse is Parse but panics on error; intended for literal constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version back to semver-2 form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Compare orders two versions, ignoring build metadata. Pre-release
// versions sort before their corresponding release (1.0.0-rc < 1.0.0),
// and an absent pre-release outranks a present one at equal major/minor/
// patch.
func (v Version) Compare(o Version) int {
	if c := cmpUint(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmpUint(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmpUint(v.Patch, o.Patch); c != 0 {
		return c
	}
	switch {
	case v.Pre == "" && o.Pre == "":
		return 0
	case v.Pre == "":
		return 1
	case o.Pre == "":
		return -1
	default:
		return strings.Compare(v.Pre, o.Pre)
	}
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether v sorts strictly before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// GreaterOrEqual reports whether v >= o under Compare.
func (v Version) GreaterOrEqual(o Version) bool { return v.Compare(o) >= 0 }

// Satisfies reports whether v (the version a module actually exports or
// runs) is compatible with required (the version a caller asked for), per
// spec: same major, and if major == 0 the minor must match exactly too,
// and v >= required.
func (v Version) Satisfies(required Version) bool {
	if v.Major != required.Major {
		return false
	}
	if required.Major == 0 && v.Minor != required.Minor {
		return false
	}
	return v.GreaterOrEqual(required)
}
