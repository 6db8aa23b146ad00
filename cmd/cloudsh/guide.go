// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cloudsh/cloudsh/internal/issue"
	"github.com/cloudsh/cloudsh/internal/tui"

	"github.com/charmbracelet/glamour/styles"
	"github.com/spf13/cobra"
)

// guideTopics names the troubleshooting guides.
var guideTopics = map[string]issue.Id{
	"config":      issue.ConfigLoadFailedId,
	"credentials": issue.CredentialsMissingId,
	"schemes":     issue.UnsupportedSchemeId,
	"permissions": issue.PermissionDeniedId,
	"buckets":     issue.BucketNotFoundId,
}

// newGuideCommand creates the `cloudsh guide` command.
func newGuideCommand(app *App) *cobra.Command {
	topics := make([]string, 0, len(guideTopics))
	for name := range guideTopics {
		topics = append(topics, name)
	}
	slices.Sort(topics)

	return &cobra.Command{
		Use:       "guide [TOPIC]",
		Short:     "Show a troubleshooting guide",
		Long:      "Show a troubleshooting guide. Topics: " + strings.Join(topics, ", ") + ".",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: topics,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(app.stdout, TitleStyle.Render("Troubleshooting guides"))
				for _, name := range topics {
					fmt.Fprintf(app.stdout, "  %s\n", CmdStyle.Render(name))
				}
				return nil
			}
			id, ok := guideTopics[args[0]]
			if !ok {
				return fmt.Errorf("unknown topic %q (available: %s)", args[0], strings.Join(topics, ", "))
			}
			style := styles.NoTTYStyle
			if tui.IsTerminal(app.stdout) {
				style = styles.AutoStyle
			}
			rendered, err := issue.Get(id).Render(style)
			if err != nil {
				return fmt.Errorf("failed to render guide: %w", err)
			}
			fmt.Fprint(app.stdout, rendered)
			return nil
		},
	}
}
