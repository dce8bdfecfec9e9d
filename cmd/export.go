package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SarangaVP/Car-Damage-Caption/internal/export"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the caption dataset as a ZIP archive",
	Long: `Write the reviewed captions to a ZIP archive containing the
generated and manual caption JSON files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", export.ArchiveName, "Output archive path")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	captions, err := s.ListCaptions(context.Background())
	if err != nil {
		return err
	}
	if len(captions) == 0 {
		ui.Warning("No reviews saved yet, exporting an empty dataset")
	}

	if dryRun {
		ui.DryRunMsg("Would export %d reviews to %s", len(captions), exportOutput)
		return nil
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	if err := export.Archive(f, captions); err != nil {
		return err
	}

	ui.Success("Exported %d reviews to %s", len(captions), exportOutput)
	return nil
}
