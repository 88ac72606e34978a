package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bumpforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective settings to the settings file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		force, _ := cmd.Flags().GetBool("force")
		if config.Exists(path) && !force {
			return fmt.Errorf("%s exists, use --force to overwrite", path)
		}
		if err := config.Save(settings, path); err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().Bool("force", false, "Overwrite an existing settings file")
}
