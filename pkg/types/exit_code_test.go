// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestExitCodeValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     ExitCode
		wantValid bool
	}{
		{name: "zero is valid", value: ExitSuccess, wantValid: true},
		{name: "failure is valid", value: ExitFailure, wantValid: true},
		{name: "interrupt is valid", value: ExitInterrupted, wantValid: true},
		{name: "broken pipe is valid", value: ExitBrokenPipe, wantValid: true},
		{name: "255 is valid", value: 255, wantValid: true},
		{name: "negative is invalid", value: -1, wantValid: false},
		{name: "256 is invalid", value: 256, wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.value.Validate()
			if (err == nil) != tt.wantValid {
				t.Fatalf("ExitCode(%d).Validate() error = %v, wantValid %v", tt.value, err, tt.wantValid)
			}
			if !tt.wantValid && !errors.Is(err, ErrInvalidExitCode) {
				t.Errorf("error does not wrap ErrInvalidExitCode: %v", err)
			}
		})
	}
}

func TestExitCodeFixedValues(t *testing.T) {
	t.Parallel()

	// Scripts and tests compare against these literal numbers.
	if ExitInterrupted != 130 {
		t.Errorf("ExitInterrupted = %d, want 130", ExitInterrupted)
	}
	if ExitBrokenPipe != 141 {
		t.Errorf("ExitBrokenPipe = %d, want 141", ExitBrokenPipe)
	}
}

func TestExitCodeIsSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ExitCode
		want bool
	}{
		{ExitSuccess, false},
		{ExitFailure, false},
		{128, false},
		{ExitInterrupted, true},
		{ExitBrokenPipe, true},
	}

	for _, tt := range tests {
		if got := tt.code.IsSignal(); got != tt.want {
			t.Errorf("ExitCode(%d).IsSignal() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestExitCodeString(t *testing.T) {
	t.Parallel()

	if got := ExitBrokenPipe.String(); got != "141" {
		t.Errorf("ExitBrokenPipe.String() = %q, want %q", got, "141")
	}
}
