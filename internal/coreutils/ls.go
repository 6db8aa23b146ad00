// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cloudsh/cloudsh/internal/tui"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"

	units "github.com/docker/go-units"
	"github.com/spf13/pflag"
	"github.com/u-root/u-root/pkg/core/ls"
)

// Sort orders of ls.
const (
	lsSortName = "name"
	lsSortSize = "size"
	lsSortTime = "time"
	lsSortNone = "none"
)

var humanSuffixes = []string{"", "K", "M", "G", "T", "P", "E"}

type (
	// lsCommand lists directory contents. Listings that touch a cloud
	// path, or ask for an order u-root cannot produce, are formatted here;
	// plain local listings run u-root's ls.
	lsCommand struct {
		baseCommand
	}

	lsFlags struct {
		all        bool
		almostAll  bool
		long       bool
		recursive  bool
		bySize     bool
		byTime     bool
		reverse    bool
		human      bool
		onePerLine bool
		directory  bool
		quoted     bool
		sort       string
	}

	lsEntry struct {
		path cloudpath.Path
		name string
		info cloudpath.Info
	}

	lsRun struct {
		in    *invocation
		flags lsFlags
		out   *bufio.Writer
		now   time.Time
		// width is the terminal width, zero when stdout is not a terminal.
		width int
		// printed is set once any block was written, for blank separators.
		printed bool
	}
)

func init() {
	RegisterDefault(newLsCommand())
}

func newLsCommand() *lsCommand {
	return &lsCommand{baseCommand{
		name:  "ls",
		usage: "[OPTION]... [FILE]...",
		about: "List information about the FILEs (the current directory by default). Cloud paths are listed by prefix.",
	}}
}

func (c *lsCommand) flagSet(f *lsFlags) *pflag.FlagSet {
	fs := c.newFlagSet()
	fs.BoolVarP(&f.all, "all", "a", false, "do not ignore entries starting with .")
	fs.BoolVarP(&f.almostAll, "almost-all", "A", false, "same as -a")
	fs.BoolVarP(&f.long, "l", "l", false, "use a long listing format")
	fs.BoolVarP(&f.recursive, "recursive", "R", false, "list subdirectories recursively")
	fs.BoolVarP(&f.bySize, "S", "S", false, "sort by file size, largest first")
	fs.BoolVarP(&f.byTime, "t", "t", false, "sort by time, newest first")
	fs.BoolVarP(&f.reverse, "reverse", "r", false, "reverse order while sorting")
	fs.BoolVarP(&f.human, "human-readable", "h", false, "with -l, print sizes like 1K 234M 2G")
	fs.BoolVarP(&f.onePerLine, "1", "1", false, "list one file per line")
	fs.BoolVarP(&f.directory, "directory", "d", false, "list directories themselves, not their contents")
	fs.BoolVarP(&f.quoted, "quote-name", "Q", false, "enclose entry names in double quotes")
	fs.StringVar(&f.sort, "sort", "", "sort by WORD instead of name: none, size, time")
	return fs
}

// SupportedFlags returns the flags supported by this command.
func (c *lsCommand) SupportedFlags() []FlagInfo {
	return flagInfos(c.flagSet(&lsFlags{}))
}

// Run executes the ls command.
func (c *lsCommand) Run(ctx context.Context, args []string) error {
	in := c.start(ctx)
	var f lsFlags
	fs := c.flagSet(&f)
	if err := in.parse(fs, args); err != nil {
		return err
	}
	switch f.sort {
	case "":
	case lsSortName, lsSortSize, lsSortTime, lsSortNone:
	default:
		return in.usageError("invalid argument '%s' for '--sort'", f.sort)
	}
	if f.sort == "" {
		switch {
		case f.bySize:
			f.sort = lsSortSize
		case f.byTime:
			f.sort = lsSortTime
		default:
			f.sort = lsSortName
		}
	}
	if f.almostAll {
		f.all = true
	}

	operands := fs.Args()
	if len(operands) == 0 {
		operands = []string{"."}
	}
	if c.nativeEligible(ctx, in, fs, operands) {
		return c.runNative(ctx, in, &f, operands)
	}

	r := &lsRun{in: in, flags: f, out: bufio.NewWriter(in.hc.Stdout), now: in.hc.Now()}
	if tui.IsTerminal(in.hc.Stdout) && !f.onePerLine {
		r.width, _ = tui.TerminalSize(in.hc.Stdout)
	}
	err := r.run(ctx, operands)
	if flushErr := r.out.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return err
	}
	return in.result()
}

// nativeEligible reports whether u-root's ls can serve the invocation:
// only flags it understands were given and every operand is an existing
// local path. Missing operands stay here for the usual diagnostics.
func (c *lsCommand) nativeEligible(ctx context.Context, in *invocation, fs *pflag.FlagSet, operands []string) bool {
	native := map[string]bool{"all": true, "l": true, "recursive": true, "human-readable": true, "quote-name": true}
	eligible := true
	fs.Visit(func(fl *pflag.Flag) {
		if !native[fl.Name] {
			eligible = false
		}
	})
	if !eligible {
		return false
	}
	for _, op := range operands {
		ref, err := cloudpath.Parse(op)
		if err != nil || !ref.IsLocal() || strings.HasPrefix(op, "file://") {
			return false
		}
		p, err := in.resolve(ctx, op)
		if err != nil {
			return false
		}
		if _, err := p.Stat(ctx); err != nil {
			return false
		}
	}
	return true
}

func (c *lsCommand) runNative(ctx context.Context, in *invocation, f *lsFlags, operands []string) error {
	cmd := ls.New()
	cmd.SetIO(in.hc.Stdin, in.hc.Stdout, in.hc.Stderr)
	cmd.SetWorkingDir(in.hc.Dir)
	cmd.SetLookupEnv(in.hc.LookupEnv)

	var cmdArgs []string
	for _, opt := range []struct {
		set  bool
		flag string
	}{
		{f.all, "-a"},
		{f.long, "-l"},
		{f.recursive, "-R"},
		{f.human, "-h"},
		{f.quoted, "-Q"},
	} {
		if opt.set {
			cmdArgs = append(cmdArgs, opt.flag)
		}
	}
	cmdArgs = append(cmdArgs, "--")
	cmdArgs = append(cmdArgs, operands...)

	if err := cmd.RunContext(ctx, cmdArgs...); err != nil {
		if fatal(ctx, err) {
			return err
		}
		in.errorf("%v", err)
		return errReported
	}
	return nil
}

func (r *lsRun) run(ctx context.Context, operands []string) error {
	paths, err := r.in.resolveAll(ctx, operands, "access")
	if err != nil {
		return err
	}

	var files, dirs []lsEntry
	for _, p := range paths {
		info, err := p.Stat(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			r.in.errorf("cannot access '%s': %s", p, cloudpath.Describe(err))
			continue
		}
		e := lsEntry{path: p, name: p.String(), info: info}
		if info.IsDir && !r.flags.directory {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}

	if len(files) > 0 {
		r.sortEntries(files)
		if err := r.printEntries(files, false); err != nil {
			return err
		}
		r.printed = true
	}
	r.sortEntries(dirs)
	titled := len(paths) > 1 || r.flags.recursive
	for _, d := range dirs {
		if err := r.listDir(ctx, d, titled); err != nil {
			return err
		}
	}
	return nil
}

// listDir prints the contents of dir and, with -R, of every directory
// below it in depth-first order.
func (r *lsRun) listDir(ctx context.Context, dir lsEntry, titled bool) error {
	stack := []lsEntry{dir}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := r.readDir(ctx, cur.path)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			r.in.errorf("cannot open directory '%s': %s", cur.name, cloudpath.Describe(err))
			continue
		}

		if r.printed {
			if err := r.out.WriteByte('\n'); err != nil {
				return err
			}
		}
		if titled {
			fmt.Fprintf(r.out, "%s:\n", cur.name)
		}
		if r.flags.long {
			fmt.Fprintf(r.out, "total %d\n", totalBlocks(entries))
		}
		if err := r.printEntries(entries, true); err != nil {
			return err
		}
		r.printed = true

		if !r.flags.recursive {
			continue
		}
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].info.IsDir {
				stack = append(stack, entries[i])
			}
		}
	}
	return nil
}

// readDir lists and stats the children of dir, hiding dot entries unless
// -a was given.
func (r *lsRun) readDir(ctx context.Context, dir cloudpath.Path) ([]lsEntry, error) {
	children, err := dir.Iterdir(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]lsEntry, 0, len(children))
	for _, child := range children {
		name := child.Name()
		if !r.flags.all && strings.HasPrefix(name, ".") {
			continue
		}
		info, err := child.Stat(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			r.in.errorf("cannot access '%s': %s", child, cloudpath.Describe(err))
			continue
		}
		entries = append(entries, lsEntry{path: child, name: child.String(), info: info})
	}
	r.sortEntries(entries)
	return entries, nil
}

func (r *lsRun) sortEntries(entries []lsEntry) {
	switch r.flags.sort {
	case lsSortNone:
		return
	case lsSortSize:
		slices.SortStableFunc(entries, func(a, b lsEntry) int {
			return cmp.Or(cmp.Compare(b.info.Size, a.info.Size), strings.Compare(a.name, b.name))
		})
	case lsSortTime:
		slices.SortStableFunc(entries, func(a, b lsEntry) int {
			return cmp.Or(b.info.ModTime.Compare(a.info.ModTime), strings.Compare(a.name, b.name))
		})
	default:
		slices.SortStableFunc(entries, func(a, b lsEntry) int {
			return strings.Compare(a.name, b.name)
		})
	}
	if r.flags.reverse {
		slices.Reverse(entries)
	}
}

// printEntries writes one block. Entries inside a directory are shown by
// their base name, operands as typed.
func (r *lsRun) printEntries(entries []lsEntry, inDir bool) error {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
		if inDir {
			names[i] = e.path.Name()
		}
		if r.flags.quoted {
			names[i] = strconv.Quote(names[i])
		}
	}

	if !r.flags.long {
		return writeColumns(r.out, names, r.width)
	}

	rows := make([][]string, len(entries))
	widths := make([]int, 5)
	for i, e := range entries {
		owner, group, links := ownerOf(e.path, e.info)
		rows[i] = []string{
			formatMode(e.info),
			strconv.FormatUint(links, 10),
			owner,
			group,
			r.formatSize(e.info.Size),
		}
		for j, col := range rows[i] {
			widths[j] = max(widths[j], len(col))
		}
	}
	for i, e := range entries {
		row := rows[i]
		_, err := fmt.Fprintf(r.out, "%s %*s %-*s %-*s %*s %s %s\n",
			row[0],
			widths[1], row[1],
			widths[2], row[2],
			widths[3], row[3],
			widths[4], row[4],
			formatTime(e.info.ModTime, r.now),
			names[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *lsRun) formatSize(size int64) string {
	if !r.flags.human || size < 1024 {
		return strconv.FormatInt(size, 10)
	}
	s := units.CustomSize("%.1f%s", float64(size), 1024.0, humanSuffixes)
	if len(strings.TrimRight(s, "KMGTPE")) > 3 {
		s = units.CustomSize("%.0f%s", float64(size), 1024.0, humanSuffixes)
	}
	return s
}

// formatMode renders the permission column. Object stores have no modes;
// their entries show as rw-r--r-- files and rwxr-xr-x directories.
func formatMode(info cloudpath.Info) string {
	mode := info.Mode
	if mode == 0 {
		mode = 0o644
		if info.IsDir {
			mode = fs.ModeDir | 0o755
		}
	}
	s := mode.String()
	switch {
	case mode&fs.ModeDir != 0:
		s = "d" + s[len(s)-9:]
	case mode&fs.ModeSymlink != 0:
		s = "l" + s[len(s)-9:]
	}
	return s
}

// formatTime follows ls: recent entries show the time of day, older ones
// (or ones in the future) the year.
func formatTime(t, now time.Time) string {
	if t.IsZero() {
		return "Jan  1  1970"
	}
	t = t.Local()
	const halfYear = 182 * 24 * time.Hour
	if t.After(now) || now.Sub(t) > halfYear {
		return t.Format("Jan _2  2006")
	}
	return t.Format("Jan _2 15:04")
}

// totalBlocks sums entry sizes in 1 KiB blocks, rounding each up.
func totalBlocks(entries []lsEntry) int64 {
	var total int64
	for _, e := range entries {
		total += (e.info.Size + 1023) / 1024
	}
	return total
}

// writeColumns prints names down-then-across within width. A zero width
// prints one name per line.
func writeColumns(w io.Writer, names []string, width int) error {
	if len(names) == 0 {
		return nil
	}
	if width <= 0 {
		for _, n := range names {
			if _, err := fmt.Fprintln(w, n); err != nil {
				return err
			}
		}
		return nil
	}

	const gap = 2
	longest := 0
	for _, n := range names {
		longest = max(longest, len(n))
	}
	cols := max(width/(longest+gap), 1)
	rows := (len(names) + cols - 1) / cols
	for row := range rows {
		var line strings.Builder
		for col := range cols {
			i := col*rows + row
			if i >= len(names) {
				break
			}
			line.WriteString(names[i])
			if (col+1)*rows+row < len(names) {
				line.WriteString(strings.Repeat(" ", longest+gap-len(names[i])))
			}
		}
		line.WriteByte('\n')
		if _, err := io.WriteString(w, line.String()); err != nil {
			return err
		}
	}
	return nil
}
