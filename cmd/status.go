package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SarangaVP/Car-Damage-Caption/internal/output"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dataset dashboard",
	Long: `Show an overview of the caption dataset: how many images are
pending, how many reviews are saved, and the most recent reviews.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 15, "Number of recent reviews to show")
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	lib, err := getLibrary()
	if err != nil {
		return err
	}
	ctx := context.Background()

	reviewed, err := s.ReviewedPaths(ctx)
	if err != nil {
		return err
	}
	pending, err := lib.Pending(reviewed)
	if err != nil {
		return err
	}
	captions, err := s.ListCaptions(ctx)
	if err != nil {
		return err
	}

	manual := 0
	for _, c := range captions {
		if c.HasManual() {
			manual++
		}
	}

	ui.Info("Image folder: %s", output.Cyan(viper.GetString("data_dir")))
	fmt.Fprintf(ui.Out, "  pending:   %d\n", len(pending))
	fmt.Fprintf(ui.Out, "  reviewed:  %d (%d with manual captions)\n", len(captions), manual)
	fmt.Fprintln(ui.Out)

	if len(captions) == 0 {
		ui.Info("No reviews saved yet. Run 'caprev serve' and open the web UI, or 'caprev review'.")
		return nil
	}

	table := ui.Table([]string{"Image", "Generated", "Manual", "Reviewed"})
	// ListCaptions is oldest-first; show the tail so recent reviews appear.
	shown := captions
	if len(shown) > statusLimit {
		shown = shown[len(shown)-statusLimit:]
	}
	for _, c := range shown {
		manualScore := "-"
		if c.HasManual() {
			manualScore = output.ScoreColor(c.ManualScore)
		}
		table.Append([]string{
			c.ImagePath,
			output.ScoreColor(c.GeneratedScore),
			manualScore,
			c.ReviewedAt.Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}
