// Package semver parses component version gates and checks versions against them.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:parser"

// Rule constrains the versions of one component type, or of every type
// when Type is empty.
type Rule struct {
	Type  string
	Range string
}

var (
	typeNameRegex     = regexp.MustCompile(`^[a-z][a-z0-9]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseRules parses a gate specification.
//
// Supported formats, separated by ';':
//   - >=2.0.0              (every type)
//   - 2                    (every type, major only)
//   - cellapp@^2.1.0       (one type)
//   - baseapp@~2.1.0;>=2   (one type plus a default)
func ParseRules(input string) ([]Rule, error) {
	var rules []Rule
	for _, part := range strings.Split(input, ";") {
		raw := strings.TrimSpace(part)
		if raw == "" {
			continue
		}
		rule := Rule{Range: raw}
		if at := strings.Index(raw, "@"); at >= 0 {
			rule.Type = strings.ToLower(strings.TrimSpace(raw[:at]))
			rule.Range = strings.TrimSpace(raw[at+1:])
			if !ValidateTypeName(rule.Type) {
				return nil, fmt.Errorf("%s - invalid component type in rule: %s", logPrefix, raw)
			}
		}
		if rule.Range == "" {
			return nil, fmt.Errorf("%s - empty version range in rule: %s", logPrefix, raw)
		}
		if !IsMajorOnly(rule.Range) {
			if _, err := masterminds.NewConstraint(rule.Range); err != nil {
				return nil, fmt.Errorf("%s - invalid version range %q: %w", logPrefix, rule.Range, err)
			}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// ValidateTypeName validates a short component type name (e.g. "cellapp").
func ValidateTypeName(name string) bool {
	return typeNameRegex.MatchString(name)
}
