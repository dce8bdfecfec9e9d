package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all saved reviews",
	Long: `Delete every saved review from the database. All images become
pending again. This cannot be undone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return clearRun()
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "Skip confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func clearRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	n, err := s.CountCaptions(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		ui.Info("No saved reviews to clear")
		return nil
	}

	if dryRun {
		ui.DryRunMsg("Would delete %d saved reviews", n)
		return nil
	}

	if !clearForce {
		fmt.Fprintf(ui.Out, "Delete %d saved reviews? [y/N] ", n)
		reader := bufio.NewScanner(os.Stdin)
		if !reader.Scan() || strings.ToLower(strings.TrimSpace(reader.Text())) != "y" {
			ui.Info("Aborted")
			return nil
		}
	}

	deleted, err := s.ClearCaptions(ctx)
	if err != nil {
		return err
	}
	ui.Success("Cleared %d saved captions", deleted)
	return nil
}
