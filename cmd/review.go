package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SarangaVP/Car-Damage-Caption/internal/client"
	"github.com/SarangaVP/Car-Damage-Caption/internal/notify"
	"github.com/SarangaVP/Car-Damage-Caption/internal/output"
	"github.com/SarangaVP/Car-Damage-Caption/internal/session"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review captions interactively in the terminal",
	Long: `Walk the pending image queue in the terminal against a running
caprev server. For each image you can write a manual caption, have the
model score both captions, and save the review.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRun(cmd.Context())
	},
}

func init() {
	reviewCmd.Flags().String("server", "", "Server URL (default from config)")
	_ = viper.BindPFlag("server_url", reviewCmd.Flags().Lookup("server"))
	rootCmd.AddCommand(reviewCmd)
}

// terminalToasts prints each new toast as it appears, skipping sticky
// progress toasts that would just repeat the prompt.
func terminalToasts() *notify.Manager {
	seen := make(map[string]bool)
	return notify.NewManager(notify.WithOnChange(func(toasts []notify.Toast) {
		for _, t := range toasts {
			if seen[t.ID] || t.Sticky {
				continue
			}
			seen[t.ID] = true
			switch t.Kind {
			case notify.KindSuccess:
				ui.Success("%s", t.Message)
			case notify.KindError:
				ui.Error("%s", t.Message)
			case notify.KindWarning:
				ui.Warning("%s", t.Message)
			default:
				ui.Info("%s", t.Message)
			}
		}
	}))
}

func reviewRun(ctx context.Context) error {
	serverURL := viper.GetString("server_url")
	ctrl := session.NewController(client.New(serverURL), terminalToasts())

	ui.Info("Reviewing against %s", output.Cyan(serverURL))
	if err := ctrl.LoadNext(ctx); err != nil {
		return err
	}

	reader := bufio.NewScanner(os.Stdin)
	for ctrl.State() == session.StateReady {
		printItem(ctrl)

		fmt.Fprint(ui.Out, "[m]anual caption  [c]heck  [s]ave  [k]eep generated  [q]uit > ")
		if !reader.Scan() {
			return nil
		}

		switch strings.TrimSpace(strings.ToLower(reader.Text())) {
		case "m":
			fmt.Fprint(ui.Out, "Manual caption: ")
			if !reader.Scan() {
				return nil
			}
			ctrl.SetManualCaption(strings.TrimSpace(reader.Text()))
		case "c":
			if err := ctrl.Evaluate(ctx); err == nil {
				printScores(ctrl.Scores())
			}
		case "s", "k":
			// Errors are already reported through toasts; the item stays
			// current so the reviewer can retry.
			_ = ctrl.Save(ctx)
		case "q":
			return nil
		default:
			ui.Warning("Unknown command")
		}
	}

	return nil
}

func printItem(ctrl *session.Controller) {
	item := ctrl.Current()
	if item == nil {
		return
	}
	fmt.Fprintln(ui.Out)
	fmt.Fprintf(ui.Out, "%s  (%d remaining)\n", output.Cyan(item.ImagePath), item.Total)
	fmt.Fprintf(ui.Out, "  generated: %s\n", item.GeneratedCaption)
	if manual := ctrl.ManualCaption(); manual != "" {
		fmt.Fprintf(ui.Out, "  manual:    %s\n", manual)
	}
}

func printScores(scores *session.Scores) {
	if scores == nil {
		return
	}
	fmt.Fprintf(ui.Out, "  generated: %s  %s\n",
		output.ScoreColor(scores.Generated.Score), scores.Generated.Explanation)
	fmt.Fprintf(ui.Out, "  manual:    %s  %s\n",
		output.ScoreColor(scores.Manual.Score), scores.Manual.Explanation)
}
