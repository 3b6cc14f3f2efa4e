package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ggoodman/toolwire/catalog"
	"github.com/ggoodman/toolwire/protocol"
)

type catalogDoc struct {
	Version   string                 `json:"version"`
	Tools     []protocol.ToolSummary `json:"tools"`
	Resources []string               `json:"resources"`
	Events    []string               `json:"events"`
	Features  []string               `json:"features"`
}

// NewCatalogCmd creates the "catalog" subcommand.
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the tool catalog and event list as JSON",
		Args:  cobra.NoArgs,
		RunE:  runCatalog,
	}
	cmd.Flags().Bool("compact", false, "Print without indentation")
	return cmd
}

func runCatalog(cmd *cobra.Command, _ []string) error {
	compact, _ := cmd.Flags().GetBool("compact")

	doc := catalogDoc{
		Version:   catalog.Version,
		Resources: catalog.Resources(),
		Events:    catalog.Events(),
		Features:  catalog.Features(),
	}
	for _, d := range catalog.Definitions() {
		doc.Tools = append(doc.Tools, protocol.ToolSummary{
			Name:        string(d.Name),
			Description: d.Description,
			Parameters:  d.Schema,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return exitError(exitRuntime, "encoding catalog: %v", err)
	}
	return nil
}
