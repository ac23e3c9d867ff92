// Package version converts semantic version tags ("v1.2.3") into totally
// ordered integers and back.
//
// Encoding: major*1_000_000 + minor*1_000 + patch. Missing minor or patch
// components default to 0, so "v2" and "2.0.0" encode identically.
//
// The empty tag is not a version. Callers treat it as "the current head
// version" before reaching the codec.
package version

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	majorScale = 1_000_000
	minorScale = 1_000

	// MaxMajor is the largest major part whose encoding fits in an int64.
	MaxMajor = (math.MaxInt64 - (majorScale - 1)) / majorScale
)

// ErrInvalidVersion is returned for tags that cannot be encoded.
var ErrInvalidVersion = errors.New("invalid version")

// Parse encodes a version tag.
//
// The tag has 1 to 3 dot-separated numeric parts. A single leading "v" is
// stripped from the first part only. Minor and patch parts must be below
// 1000 and the major part at most MaxMajor, so distinct tags never share
// an encoding.
func Parse(tag string) (int64, error) {
	if tag == "" {
		return 0, fmt.Errorf("%w: empty tag", ErrInvalidVersion)
	}
	parts := strings.Split(tag, ".")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q has more than 3 parts", ErrInvalidVersion, tag)
	}
	parts[0] = strings.TrimPrefix(parts[0], "v")

	var nums [3]int64
	for i, p := range parts {
		n, err := parsePart(p)
		if err != nil {
			return 0, fmt.Errorf("%w: %q part %d: %v", ErrInvalidVersion, tag, i, err)
		}
		limit := int64(minorScale - 1)
		if i == 0 {
			limit = MaxMajor
		}
		if n > limit {
			return 0, fmt.Errorf("%w: %q part %d exceeds %d", ErrInvalidVersion, tag, i, limit)
		}
		nums[i] = n
	}
	return nums[0]*majorScale + nums[1]*minorScale + nums[2], nil
}

// parsePart accepts only unsigned decimal digits.
func parsePart(p string) (int64, error) {
	if p == "" {
		return 0, errors.New("empty")
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric %q", p)
		}
	}
	return strconv.ParseInt(p, 10, 64)
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(tag string) int64 {
	v, err := Parse(tag)
	if err != nil {
		panic(err)
	}
	return v
}

// Format renders an encoded version as "vMAJOR.MINOR.PATCH".
func Format(v int64) string {
	return fmt.Sprintf("v%d.%d.%d", v/majorScale, (v%majorScale)/minorScale, v%minorScale)
}
