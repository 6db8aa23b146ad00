// SPDX-License-Identifier: MPL-2.0

package window

import (
	"errors"
	"math"
	"testing"
)

func TestParseCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Count
	}{
		{"10", Count{N: 10}},
		{"+3", Count{N: 3, Sign: SignPlus}},
		{"-2", Count{N: 2, Sign: SignMinus}},
		{"0", Count{N: 0}},
		{"1K", Count{N: 1024}},
		{"1.5K", Count{N: 1536}},
		{"2b", Count{N: 1024}},
		{"1KB", Count{N: 1000}},
		{"1kB", Count{N: 1000}},
		{"1KiB", Count{N: 1024}},
		{"3M", Count{N: 3 << 20}},
		{"1MB", Count{N: 1000000}},
		{"1G", Count{N: 1 << 30}},
		{"-1T", Count{N: 1 << 40, Sign: SignMinus}},
		{"1E", Count{N: 1 << 60}},
		{"7E", Count{N: 7 << 60}},
		{"8E", Count{N: math.MaxInt64}},
		{"9E", Count{N: math.MaxInt64}},
		{"-15E", Count{N: math.MaxInt64, Sign: SignMinus}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCount(tt.in, Lines)
			if err != nil {
				t.Fatalf("ParseCount(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseCount(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseCount_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		unit Unit
		msg  string
	}{
		{"1X", Bytes, "invalid number of bytes: '1X'"},
		{"1X", Lines, "invalid number of lines: '1X'"},
		{"", Lines, "invalid number of lines: ''"},
		{"abc", Bytes, "invalid number of bytes: 'abc'"},
		{"+", Lines, "invalid number of lines: '+'"},
		{"1.2.3", Lines, "invalid number of lines: '1.2.3'"},
		{"99E", Bytes, "invalid number of bytes: '99E'"},
		{"16E", Bytes, "invalid number of bytes: '16E'"},
	}
	for _, tt := range tests {
		_, err := ParseCount(tt.in, tt.unit)
		var ice *InvalidCountError
		if !errors.As(err, &ice) {
			t.Errorf("ParseCount(%q) error = %v, want InvalidCountError", tt.in, err)
			continue
		}
		if err.Error() != tt.msg {
			t.Errorf("ParseCount(%q) message = %q, want %q", tt.in, err.Error(), tt.msg)
		}
	}
}
