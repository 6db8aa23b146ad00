// SPDX-License-Identifier: MPL-2.0

package follow

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// processAlive is the default PIDChecker.
func processAlive(ctx context.Context, pid int32) (bool, error) {
	return process.PidExistsWithContext(ctx, pid)
}

// ParsePID validates a --pid operand.
func ParsePID(s string) (int32, error) {
	pid, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil || pid < 0 {
		return 0, fmt.Errorf("invalid PID: '%s'", s)
	}
	return int32(pid), nil
}

// ParseInterval parses a -s operand: a non-negative number of seconds,
// optionally fractional.
func ParseInterval(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || secs < 0 || math.IsNaN(secs) || math.IsInf(secs, 0) || secs > math.MaxInt64/float64(time.Second) {
		return 0, fmt.Errorf("invalid number of seconds: '%s'", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
