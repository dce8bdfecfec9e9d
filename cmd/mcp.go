package cmd

import (
	"github.com/spf13/cobra"

	"github.com/SarangaVP/Car-Damage-Caption/internal/api"
	"github.com/SarangaVP/Car-Damage-Caption/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients drive the caption review loop natively. Configure
with:

  {
    "mcpServers": {
      "caprev": { "command": "caprev", "args": ["mcp"] }
    }
  }

Available tools: caprev_next_image, caprev_evaluate_caption,
caprev_save_review, caprev_dataset_stats, caprev_clear_dataset`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		lib, err := getLibrary()
		if err != nil {
			return err
		}

		var model api.CaptionModel
		if c := newLLMClient(); c != nil {
			model = c
		}

		return mcp.NewServer(s, lib, model).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
