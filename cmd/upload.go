package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SarangaVP/Car-Damage-Caption/internal/client"
	"github.com/SarangaVP/Car-Damage-Caption/internal/images"
	"github.com/SarangaVP/Car-Damage-Caption/internal/session"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <folder>",
	Short: "Upload a folder of images to the review server",
	Long: `Upload every image in a local folder (recursively) to a running
caprev server, preserving the folder structure.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return uploadRun(cmd, args[0])
	},
}

func init() {
	uploadCmd.Flags().String("server", "", "Server URL (default from config)")
	_ = viper.BindPFlag("server_url", uploadCmd.Flags().Lookup("server"))
	rootCmd.AddCommand(uploadCmd)
}

func uploadRun(cmd *cobra.Command, folder string) error {
	var files []session.UploadFile
	err := filepath.WalkDir(folder, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !images.IsImage(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(folder, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, session.UploadFile{
			Path: filepath.ToSlash(filepath.Join(filepath.Base(folder), rel)),
			Data: data,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan folder: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", folder)
	}

	if dryRun {
		ui.DryRunMsg("Would upload %d images from %s", len(files), folder)
		return nil
	}

	c := client.New(viper.GetString("server_url"))
	if err := c.Upload(cmd.Context(), files); err != nil {
		return err
	}
	ui.Success("Uploaded %d images from %s", len(files), folder)
	return nil
}
