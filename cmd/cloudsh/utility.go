// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/cloudsh/cloudsh/internal/coreutils"

	"github.com/spf13/cobra"
)

const utilityGroup = "utilities"

// newUtilityCommand exposes one registry command. Flag parsing is left to
// the utility so GNU option syntax (-rf, -n5, --) reaches it untouched.
func newUtilityCommand(app *App, name string) *cobra.Command {
	short := ""
	if cmd, ok := app.Registry.Lookup(name); ok {
		if d, ok := cmd.(coreutils.Describer); ok {
			short = d.About()
		}
	}
	return &cobra.Command{
		Use:                name + " [OPTION]... [ARG]...",
		Short:              firstSentence(short),
		Long:               short + "\n\nRun 'cloudsh " + name + " --help' for the options.",
		GroupID:            utilityGroup,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runUtility(cmd, name, args)
		},
	}
}

// firstSentence trims a description to its first sentence for listings.
func firstSentence(s string) string {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '.' && s[i+1] == ' ' {
			return s[:i+1]
		}
	}
	return s
}
