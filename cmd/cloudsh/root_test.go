// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/internal/provider"
	"github.com/cloudsh/cloudsh/internal/testutil"
	"github.com/cloudsh/cloudsh/internal/testutil/memstore"
	"github.com/cloudsh/cloudsh/pkg/cloudpath"
	"github.com/cloudsh/cloudsh/pkg/types"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

type (
	staticConfig struct {
		cfg *config.Config
		err error
	}

	cliFixture struct {
		dir    string
		store  *memstore.Store
		stdin  *strings.Reader
		stdout bytes.Buffer
		stderr bytes.Buffer
		app    *App
	}
)

func (s staticConfig) Load(context.Context, config.LoadOptions) (*config.Config, error) {
	return s.cfg, s.err
}

func newCLIFixture(t *testing.T, cfg config.Provider, opts ...provider.Option) *cliFixture {
	t.Helper()
	f := &cliFixture{
		dir:   t.TempDir(),
		store: memstore.New(cloudpath.SchemeGCS),
		stdin: strings.NewReader(""),
	}
	if cfg == nil {
		cfg = staticConfig{cfg: config.DefaultConfig()}
	}
	f.app = NewApp(Dependencies{
		Config: cfg,
		NewResolver: func(c *config.Config, dir string, logger *log.Logger) *provider.Resolver {
			all := append([]provider.Option{
				provider.WithProvider(f.store),
				provider.WithWorkDir(dir),
				provider.WithLogger(logger),
			}, opts...)
			return provider.NewResolver(c, all...)
		},
		Stdin:  f.stdin,
		Stdout: &f.stdout,
		Stderr: &f.stderr,
		Getwd:  func() (string, error) { return f.dir, nil },
	})
	return f
}

// execute runs argv the way Execute does, without fang and os.Exit.
func (f *cliFixture) execute(ctx context.Context, argv ...string) error {
	root := newRootCommand(f.app)
	args, err := hoistGlobalFlags(root.PersistentFlags(), argv)
	if err != nil {
		return err
	}
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func exitCode(err error) types.ExitCode {
	var exitErr *ExitError
	switch {
	case err == nil:
		return types.ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	default:
		return types.ExitFailure
	}
}

func TestUtility_ForwardsArgv(t *testing.T) {
	t.Parallel()

	f := newCLIFixture(t, nil)
	testutil.MustWriteFile(t, filepath.Join(f.dir, "local.txt"), "hello\n")

	if err := f.execute(t.Context(), "cp", "-v", "local.txt", "gs://b/copy.txt"); err != nil {
		t.Fatalf("cp error = %v; stderr %q", err, f.stderr.String())
	}
	if got := f.stdout.String(); got != "'local.txt' -> 'gs://b/copy.txt'\n" {
		t.Errorf("stdout = %q", got)
	}
	if data, err := f.store.ReadFile(cloudpath.MustParse("gs://b/copy.txt")); err != nil || string(data) != "hello\n" {
		t.Errorf("gs://b/copy.txt = %q, %v", data, err)
	}
}

func TestUtility_ExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		argv       []string
		want       types.ExitCode
		wantStderr string
	}{
		{"missing object", []string{"cat", "gs://b/missing"}, types.ExitFailure, "cloudsh cat: gs://b/missing: No such file or directory\n"},
		{"unknown utility", []string{"frobnicate", "x"}, types.ExitNotFound, "cloudsh: frobnicate: command not found\n"},
		{"usage error", []string{"mkdir"}, types.ExitFailure, "cloudsh mkdir: missing operand\nTry 'cloudsh mkdir --help' for more information.\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newCLIFixture(t, nil)
			err := f.execute(t.Context(), tt.argv...)
			if got := exitCode(err); got != tt.want {
				t.Errorf("exit code = %d, want %d (err %v)", got, tt.want, err)
			}
			var exitErr *ExitError
			if errors.As(err, &exitErr) && !exitErr.Reported {
				t.Error("ExitError.Reported = false for a message the utility printed")
			}
			if got := f.stderr.String(); got != tt.wantStderr {
				t.Errorf("stderr = %q, want %q", got, tt.wantStderr)
			}
		})
	}
}

func TestUtility_HelpIsHandledByUtility(t *testing.T) {
	t.Parallel()

	f := newCLIFixture(t, nil)
	if err := f.execute(t.Context(), "head", "--help"); err != nil {
		t.Fatalf("head --help error = %v", err)
	}
	if !strings.HasPrefix(f.stdout.String(), "Usage: cloudsh head ") {
		t.Errorf("stdout = %q, want the utility usage", f.stdout.String())
	}
}

func TestConfigLoadFailureFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	f := newCLIFixture(t, staticConfig{err: errors.New("bad config")})
	f.store.WriteFile(cloudpath.MustParse("gs://b/a"), []byte("data\n"))

	if err := f.execute(t.Context(), "cat", "gs://b/a"); err != nil {
		t.Fatalf("cat error = %v", err)
	}
	if got := f.stdout.String(); got != "data\n" {
		t.Errorf("stdout = %q", got)
	}
	if !strings.Contains(f.stderr.String(), "Warning: bad config") {
		t.Errorf("stderr = %q, want the load warning", f.stderr.String())
	}
}

func TestProviderInitFailureIsExplained(t *testing.T) {
	t.Parallel()

	f := newCLIFixture(t, nil, provider.WithFactory(cloudpath.SchemeS3, func(context.Context) (cloudpath.Provider, error) {
		return nil, errors.New("no credentials")
	}))

	err := f.execute(t.Context(), "--verbose", "cat", "s3://b/k")
	if got := exitCode(err); got != types.ExitFailure {
		t.Errorf("exit code = %d, want 1", got)
	}
	stderr := f.stderr.String()
	for _, want := range []string{
		"cloudsh cat: ",
		"failed to initialize storage client",
		"Run 'cloudsh guide credentials'",
		"no credentials",
	} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr = %q, want it to contain %q", stderr, want)
		}
	}
}

func TestSh_RunsScripts(t *testing.T) {
	t.Parallel()

	f := newCLIFixture(t, nil)
	f.store.WriteFile(cloudpath.MustParse("gs://b/in.txt"), []byte("one\ntwo\n"))
	testutil.MustWriteFile(t, filepath.Join(f.dir, "script.sh"), "head -n 1 \"$1\"\n")

	if err := f.execute(t.Context(), "sh", "-c", "tail -n 1 gs://b/in.txt"); err != nil {
		t.Fatalf("sh -c error = %v; stderr %q", err, f.stderr.String())
	}
	if err := f.execute(t.Context(), "sh", "script.sh", "gs://b/in.txt"); err != nil {
		t.Fatalf("sh FILE error = %v; stderr %q", err, f.stderr.String())
	}
	if got := f.stdout.String(); got != "two\none\n" {
		t.Errorf("stdout = %q", got)
	}

	err := f.execute(t.Context(), "sh", "-c", "exit 4")
	if got := exitCode(err); got != 4 {
		t.Errorf("exit code = %d, want 4", got)
	}
}

func TestSh_ScriptFromStdin(t *testing.T) {
	t.Parallel()

	f := newCLIFixture(t, nil)
	f.stdin.Reset("mkdir gs://b/d && ls -d gs://b/d\n")
	if err := f.execute(t.Context(), "sh"); err != nil {
		t.Fatalf("sh error = %v; stderr %q", err, f.stderr.String())
	}
	if got := f.stdout.String(); got != "gs://b/d\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestConfigShow_Defaults(t *testing.T) {
	t.Parallel()

	f := newCLIFixture(t, staticConfig{err: errors.New("never loaded")})
	if err := f.execute(t.Context(), "config", "show", "--defaults"); err != nil {
		t.Fatalf("config show error = %v", err)
	}
	out := f.stdout.String()
	for _, want := range []string{"Current Configuration", "log_level: warn", "tail.sleep_interval: 1s", "copy.chunk_size: 8388608"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.S3.SecretAccessKey = "hunter2"
	f := newCLIFixture(t, staticConfig{cfg: cfg})
	if err := f.execute(t.Context(), "config", "show"); err != nil {
		t.Fatalf("config show error = %v", err)
	}
	out := f.stdout.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("stdout leaks the secret:\n%s", out)
	}
	if !strings.Contains(out, "s3.secret_access_key: (set)") {
		t.Errorf("stdout = %s, want the masked key", out)
	}
}

func TestGuide(t *testing.T) {
	t.Parallel()

	f := newCLIFixture(t, nil)
	if err := f.execute(t.Context(), "guide"); err != nil {
		t.Fatalf("guide error = %v", err)
	}
	for name := range guideTopics {
		if !strings.Contains(f.stdout.String(), name) {
			t.Errorf("topic list misses %q", name)
		}
	}

	f.stdout.Reset()
	if err := f.execute(t.Context(), "guide", "credentials"); err != nil {
		t.Fatalf("guide credentials error = %v", err)
	}
	if !strings.Contains(f.stdout.String(), "No cloud credentials were found") {
		t.Errorf("stdout = %q", f.stdout.String())
	}

	if err := f.execute(t.Context(), "guide", "nope"); err == nil {
		t.Error("guide nope error = nil")
	}
}

func TestHoistGlobalFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantRest   []string
		wantConfig string
		wantDebug  bool
		wantErr    bool
	}{
		{"none", []string{"cp", "-v", "a", "b"}, []string{"cp", "-v", "a", "b"}, "", false, false},
		{"bool", []string{"--debug", "rm", "x"}, []string{"rm", "x"}, "", true, false},
		{"separate value", []string{"--config", "c.cue", "ls"}, []string{"ls"}, "c.cue", false, false},
		{"inline value", []string{"--config=c.cue", "--debug", "ls", "--debug"}, []string{"ls", "--debug"}, "c.cue", true, false},
		{"unknown stops", []string{"--help"}, []string{"--help"}, "", false, false},
		{"missing value", []string{"--config"}, nil, "", false, true},
		{"bad bool", []string{"--debug=maybe", "ls"}, nil, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				cfgPath string
				debug   bool
			)
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			fs.StringVar(&cfgPath, "config", "", "")
			fs.BoolVar(&debug, "debug", false, "")

			rest, err := hoistGlobalFlags(fs, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("hoistGlobalFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !slices.Equal(rest, tt.wantRest) {
				t.Errorf("rest = %q, want %q", rest, tt.wantRest)
			}
			if cfgPath != tt.wantConfig || debug != tt.wantDebug {
				t.Errorf("config = %q debug = %v, want %q %v", cfgPath, debug, tt.wantConfig, tt.wantDebug)
			}
		})
	}
}

func TestFirstSentence(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                      "",
		"Copy files.":           "Copy files.",
		"List things. And more": "List things.",
		"v1.2 is fine":          "v1.2 is fine",
	}
	for in, want := range tests {
		if got := firstSentence(in); got != want {
			t.Errorf("firstSentence(%q) = %q, want %q", in, got, want)
		}
	}
}
