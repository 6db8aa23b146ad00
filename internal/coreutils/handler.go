// SPDX-License-Identifier: MPL-2.0

package coreutils

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cloudsh/cloudsh/internal/config"
	"github.com/cloudsh/cloudsh/internal/provider"
	"github.com/cloudsh/cloudsh/internal/transfer"
	"github.com/cloudsh/cloudsh/internal/tui"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/interp"
)

type (
	// HandlerContext is the execution environment of one command.
	HandlerContext struct {
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
		// Dir anchors relative local operands.
		Dir string
		// LookupEnv retrieves environment variables.
		LookupEnv func(string) (string, bool)

		// Resolver turns operands into paths. A nil Resolver is built
		// from Config on first use.
		Resolver *provider.Resolver
		Config   *config.Config
		Logger   *log.Logger

		// NewPrompter builds the -i prompt of a command. Nil selects a
		// tui.Prompter on Stdin and Stderr.
		NewPrompter func(prefix string) transfer.Prompter
		// Pager shows content for less and more on a terminal. Nil
		// selects tui.Page.
		Pager func(ctx context.Context, opts tui.PagerOptions) error
		// Now is the clock used for timestamps.
		Now func() time.Time
		// Follow tunes tail -f; tests replace the clock through it.
		Follow FollowHooks
	}

	// handlerContextKey is the context key for storing HandlerContext.
	handlerContextKey struct{}
)

// ExtractHandlerContext builds a HandlerContext from the sh interpreter's
// handler context. Only the streams, directory and environment are set.
func ExtractHandlerContext(ctx context.Context) *HandlerContext {
	hc := interp.HandlerCtx(ctx)
	return &HandlerContext{
		Stdin:  hc.Stdin,
		Stdout: hc.Stdout,
		Stderr: hc.Stderr,
		Dir:    hc.Dir,
		LookupEnv: func(name string) (string, bool) {
			v := hc.Env.Get(name)
			return v.Str, v.Set
		},
	}
}

// WithHandlerContext stores a HandlerContext in the context.
func WithHandlerContext(ctx context.Context, hc *HandlerContext) context.Context {
	return context.WithValue(ctx, handlerContextKey{}, hc)
}

// GetHandlerContext retrieves the HandlerContext from the context with
// every unset field defaulted. Without one it falls back to the sh
// interpreter's handler context.
func GetHandlerContext(ctx context.Context) *HandlerContext {
	hc, ok := ctx.Value(handlerContextKey{}).(*HandlerContext)
	if !ok {
		hc = ExtractHandlerContext(ctx)
	}
	return hc.withDefaults()
}

// withDefaults fills unset fields in place and returns hc.
func (hc *HandlerContext) withDefaults() *HandlerContext {
	if hc.Stdin == nil {
		hc.Stdin = strings.NewReader("")
	}
	if hc.Stdout == nil {
		hc.Stdout = io.Discard
	}
	if hc.Stderr == nil {
		hc.Stderr = io.Discard
	}
	if hc.LookupEnv == nil {
		hc.LookupEnv = os.LookupEnv
	}
	if hc.Config == nil {
		hc.Config = config.DefaultConfig()
	}
	if hc.Logger == nil {
		hc.Logger = log.New(io.Discard)
	}
	if hc.Resolver == nil {
		hc.Resolver = provider.NewResolver(hc.Config, provider.WithWorkDir(hc.Dir), provider.WithLogger(hc.Logger))
	}
	if hc.Now == nil {
		hc.Now = time.Now
	}
	if hc.NewPrompter == nil {
		hc.NewPrompter = func(prefix string) transfer.Prompter {
			return tui.NewPrompter(prefix, hc.Stdin, hc.Stderr, hc.Config.UI.Accessible || tui.AccessibleFromEnv())
		}
	}
	if hc.Pager == nil {
		hc.Pager = tui.Page
	}
	return hc
}
