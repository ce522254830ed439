package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crystal-viewer/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize crystalviewer configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the viewer and writes the config file (.crystalviewer.yml by default).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
