package semver

import (
	"errors"
	"fmt"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

var ErrVersionRejected = errors.New("semver: version rejected")

// Gate decides which component versions may register. A type-specific rule
// wins over the default rule. The zero Gate admits everything.
type Gate struct {
	byType   map[string]string
	fallback string
}

// NewGate parses input with ParseRules. Empty input yields an open gate.
func NewGate(input string) (*Gate, error) {
	rules, err := ParseRules(input)
	if err != nil {
		return nil, err
	}
	g := &Gate{byType: make(map[string]string)}
	for _, r := range rules {
		if r.Type == "" {
			g.fallback = r.Range
			continue
		}
		g.byType[r.Type] = r.Range
	}
	return g, nil
}

// Open reports whether the gate admits every version.
func (g *Gate) Open() bool {
	return g == nil || (g.fallback == "" && len(g.byType) == 0)
}

// RangeFor returns the range applied to componentType, or "".
func (g *Gate) RangeFor(componentType string) string {
	if g == nil {
		return ""
	}
	if r, ok := g.byType[strings.ToLower(componentType)]; ok {
		return r
	}
	return g.fallback
}

// Check admits an empty version and any version satisfying the applicable range.
func (g *Gate) Check(componentType, version string) error {
	rangeStr := g.RangeFor(componentType)
	if rangeStr == "" || version == "" {
		return nil
	}
	if !SatisfiesRange(version, rangeStr) {
		return fmt.Errorf("%s %q does not satisfy %q: %w", componentType, version, rangeStr, ErrVersionRejected)
	}
	return nil
}

// SatisfiesRange checks if a version string satisfies a range.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	if IsMajorOnly(rangeStr) {
		return int(sv.Major()) == ExtractMajorFromRange(rangeStr)
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// Compare orders two versions; unparsable versions sort first.
func Compare(a, b string) int {
	va, errA := masterminds.NewVersion(a)
	vb, errB := masterminds.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}
