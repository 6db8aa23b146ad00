// SPDX-License-Identifier: MPL-2.0

package window

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sign markers accepted in front of a count.
const (
	SignNone  Sign = 0
	SignPlus  Sign = '+'
	SignMinus Sign = '-'
)

type (
	// Sign is the optional prefix of a count operand.
	Sign byte

	// Count is a parsed -n/-c operand.
	Count struct {
		N    int64
		Sign Sign
	}

	// InvalidCountError reports an operand that is not a valid count.
	InvalidCountError struct {
		Unit  Unit
		Value string
	}
)

// multipliers maps size suffixes to their factor. "b" is a 512-byte block;
// bare letters and the iB forms are powers of 1024, the B forms powers of
// 1000.
var multipliers = map[string]float64{
	"":    1,
	"b":   512,
	"K":   1 << 10,
	"k":   1 << 10,
	"KiB": 1 << 10,
	"KB":  1e3,
	"kB":  1e3,
	"M":   1 << 20,
	"MiB": 1 << 20,
	"MB":  1e6,
	"G":   1 << 30,
	"GiB": 1 << 30,
	"GB":  1e9,
	"T":   1 << 40,
	"TiB": 1 << 40,
	"TB":  1e12,
	"P":   1 << 50,
	"PiB": 1 << 50,
	"PB":  1e15,
	"E":   1 << 60,
	"EiB": 1 << 60,
	"EB":  1e18,
}

// Error implements error using the coreutils wording, e.g.
// "invalid number of lines: '1X'".
func (e *InvalidCountError) Error() string {
	return fmt.Sprintf("invalid number of %s: '%s'", e.Unit, e.Value)
}

// ParseCount parses a count such as "10", "+3", "-2", "1.5K" or "2MiB".
// Fractional values are truncated after applying the suffix. Counts that
// do not fit an int64 but stay below 2^64 are clamped to math.MaxInt64,
// which no input reaches; larger counts are invalid.
func ParseCount(s string, unit Unit) (Count, error) {
	invalid := &InvalidCountError{Unit: unit, Value: s}

	var c Count
	rest := strings.TrimSpace(s)
	if rest != "" && (rest[0] == '+' || rest[0] == '-') {
		c.Sign = Sign(rest[0])
		rest = rest[1:]
	}

	end := 0
	for end < len(rest) && (rest[end] >= '0' && rest[end] <= '9' || rest[end] == '.') {
		end++
	}
	num, suffix := rest[:end], rest[end:]
	if num == "" {
		return Count{}, invalid
	}

	mult, ok := multipliers[suffix]
	if !ok {
		return Count{}, invalid
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Count{}, invalid
	}
	v := math.Floor(f * mult)
	switch {
	case v >= math.MaxUint64:
		return Count{}, invalid
	case v >= math.MaxInt64:
		c.N = math.MaxInt64
	default:
		c.N = int64(v)
	}
	return c, nil
}
