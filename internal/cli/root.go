// Package cli implements the toolwired command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the toolwired root command with every subcommand.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:          "toolwired",
		Short:        "Real-time WebSocket tool server",
		SilenceUsage: true,
	}
	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("toolwired version %s\n", version))

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewCatalogCmd())
	root.AddCommand(NewTokenCmd())
	return root
}
