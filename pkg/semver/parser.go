// Package semver parses API versions and checks them against client
// version requirements.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:parser"

var (
	majorOnlyRegex    = regexp.MustCompile(`^v?\d+$`)
	exactVersionRegex = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseVersion parses a version string such as "1.4.0" or "v2".
func ParseVersion(s string) (*masterminds.Version, error) {
	v, err := masterminds.NewVersion(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", logPrefix, s, err)
	}
	return v, nil
}

// Canonical returns the normalized "major.minor.patch[-pre]" form of s.
func Canonical(s string) (string, error) {
	v, err := ParseVersion(s)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// IsMajorOnly checks if a requirement is a bare major version (e.g., "3").
func IsMajorOnly(req string) bool {
	return majorOnlyRegex.MatchString(strings.TrimSpace(req))
}

// IsExactVersion checks if a requirement is an exact version (e.g., "3.2.1").
func IsExactVersion(req string) bool {
	return exactVersionRegex.MatchString(strings.TrimSpace(req))
}

// ExtractMajor returns the major version of a major-only requirement, or -1.
func ExtractMajor(req string) int {
	req = strings.TrimSpace(req)
	if !IsMajorOnly(req) {
		return -1
	}
	major, err := strconv.Atoi(strings.TrimPrefix(req, "v"))
	if err != nil {
		return -1
	}
	return major
}

// Satisfies reports whether version meets req. A bare major matches any
// version with that major; anything else is a Masterminds constraint such
// as "^1.2", "~1.4.0" or ">=1.0, <2".
func Satisfies(version, req string) (bool, error) {
	sv, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	if IsMajorOnly(req) {
		return int(sv.Major()) == ExtractMajor(req), nil
	}
	constraint, err := masterminds.NewConstraint(strings.TrimSpace(req))
	if err != nil {
		return false, fmt.Errorf("%s - invalid version requirement %q: %w", logPrefix, req, err)
	}
	return constraint.Check(sv), nil
}
