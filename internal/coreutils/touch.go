// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	"github.com/spf13/pflag"
)

type (
	// touchCommand updates timestamps, creating missing files. Object
	// stores have no access time; only the modification time is kept.
	touchCommand struct {
		baseCommand
	}

	touchFlags struct {
		access    bool
		modify    bool
		noCreate  bool
		date      string
		reference string
		stamp     string
		timeWord  string
	}
)

// dateLayouts are the -d forms accepted, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.UnixDate,
	time.ANSIC,
}

func init() {
	RegisterDefault(newTouchCommand())
}

func newTouchCommand() *touchCommand {
	return &touchCommand{baseCommand{
		name:  "touch",
		usage: "[OPTION]... FILE...",
		about: "Update the access and modification times of each FILE to the current time. A FILE argument that does not exist is created empty, unless -c is supplied.",
	}}
}

func (c *touchCommand) flagSet(f *touchFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	fs.BoolVarP(&f.access, "a", "a", false, "change only the access time")
	fs.BoolVarP(&f.noCreate, "no-create", "c", false, "do not create any files")
	fs.StringVarP(&f.date, "date", "d", "", "parse STRING and use it instead of current time")
	fs.BoolVarP(&f.modify, "m", "m", false, "change only the modification time")
	fs.StringVarP(&f.reference, "reference", "r", "", "use this file's times instead of current time")
	fs.StringVarP(&f.stamp, "t", "t", "", "use [[CC]YY]MMDDhhmm[.ss] instead of current time")
	fs.StringVar(&f.timeWord, "time", "", "change the specified time: access, atime, use, modify, mtime")
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *touchCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&touchFlags{}))
}

// Run executes the touch command.
func (c *touchCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f touchFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}
	switch f.timeWord {
	case "":
	case "access", "atime", "use":
		f.access = true
	case "modify", "mtime":
		f.modify = true
	default:
		return in.usageError("invalid argument '%s' for '--time'", f.timeWord)
	}
	if !f.access && !f.modify {
		f.access, f.modify = true, true
	}
	if fs.NArg() == 0 {
		return in.usageError("missing file operand")
	}

	stamp, err := c.timestamp(ctx, in, &f)
	if err != nil {
		return err
	}

	paths, err := in.resolveAll(ctx, fs.Args(), "touch")
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.touch(ctx, &f, p, stamp); err != nil {
			if fatal(ctx, err) {
				return err
			}
			in.errorf("cannot touch '%s': %s", p, cloudpath.Describe(err))
		}
	}
	return in.result()
}

// timestamp picks the time to set from -r, -t, -d or the clock.
func (c *touchCommand) timestamp(ctx context.Context, in *invocation, f *touchFlags) (time.Time, error) {
	set := 0
	for _, v := range []string{f.reference, f.stamp, f.date} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return time.Time{}, in.usageError("cannot specify times from more than one source")
	}

	switch {
	case f.reference != "":
		ref, err := in.resolve(ctx, f.reference)
		if err != nil {
			return time.Time{}, err
		}
		info, err := ref.Stat(ctx)
		if err != nil {
			if errors.Is(err, cloudpath.ErrNotExist) {
				in.errorf("failed to get attributes of '%s': Reference file not found", f.reference)
				return time.Time{}, errReported
			}
			return time.Time{}, err
		}
		return info.ModTime, nil
	case f.stamp != "":
		t, err := parseStamp(f.stamp, in.hc.Now())
		if err != nil {
			in.errorf("invalid date format '%s'", f.stamp)
			return time.Time{}, errReported
		}
		return t, nil
	case f.date != "":
		t, err := parseDate(f.date, in.hc.Now())
		if err != nil {
			in.errorf("invalid date format '%s'", f.date)
			return time.Time{}, errReported
		}
		return t, nil
	default:
		return in.hc.Now(), nil
	}
}

func (c *touchCommand) touch(ctx context.Context, f *touchFlags, p cloudpath.Path, stamp time.Time) error {
	info, err := p.Stat(ctx)
	switch {
	case errors.Is(err, cloudpath.ErrNotExist):
		if f.noCreate {
			return nil
		}
		w, err := p.OpenWrite(ctx, false)
		if err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
	case err != nil:
		return err
	case info.IsDir && p.Scheme().IsCloud():
		return nil
	}

	if p.Ref().IsLocal() {
		var atime, mtime time.Time
		if f.access {
			atime = stamp
		}
		if f.modify {
			mtime = stamp
		}
		return os.Chtimes(p.Ref().Key, atime, mtime)
	}
	if !f.modify {
		return nil
	}
	return p.Touch(ctx, stamp)
}

// parseStamp parses the -t form [[CC]YY]MMDDhhmm[.ss] in local time.
func parseStamp(s string, now time.Time) (time.Time, error) {
	digits, secs, hasSecs := strings.Cut(s, ".")
	for _, r := range digits + secs {
		if r < '0' || r > '9' {
			return time.Time{}, fmt.Errorf("invalid stamp %q", s)
		}
	}
	if hasSecs && len(secs) != 2 {
		return time.Time{}, fmt.Errorf("invalid stamp %q", s)
	}

	year := now.Year()
	switch len(digits) {
	case 8:
	case 10:
		yy, _ := strconv.Atoi(digits[:2])
		if yy < 69 {
			year = 2000 + yy
		} else {
			year = 1900 + yy
		}
		digits = digits[2:]
	case 12:
		year, _ = strconv.Atoi(digits[:4])
		digits = digits[4:]
	default:
		return time.Time{}, fmt.Errorf("invalid stamp %q", s)
	}

	field := func(i int) int {
		v, _ := strconv.Atoi(digits[i : i+2])
		return v
	}
	month, day, hour, minute := field(0), field(2), field(4), field(6)
	sec := 0
	if hasSecs {
		sec, _ = strconv.Atoi(secs)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 60 {
		return time.Time{}, fmt.Errorf("invalid stamp %q", s)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.Local)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid stamp %q", s)
	}
	return t, nil
}

// parseDate parses a -d operand: "now", "@EPOCH" or one of dateLayouts.
func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || strings.EqualFold(s, "now"):
		return now, nil
	case strings.HasPrefix(s, "@"):
		secs, err := strconv.ParseFloat(s[1:], 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", s)
		}
		return time.Unix(0, int64(secs*float64(time.Second))), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
