package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/crystal-viewer/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "crystalviewer",
	Short: "Web viewer for crystal structures loaded from a URL",
	Long: `Crystal Viewer serves a web page that loads a crystal structure file
named in its URL (structure-url, structure-format and an optional supercell),
parses it and hands it to the browser for display. The same resolution is
available from the command line and to AI agents via MCP.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
