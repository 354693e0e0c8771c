package main

import (
	"github.com/spf13/cobra"

	"scriptd/internal/version"
)

var (
	// configDir is the CLI --dir flag value; config and databases live there
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "scriptd",
	Short: "scriptd - script lifecycle and analysis engine",
	Long: `scriptd stores versioned scripts with AI-assisted analysis, safety
screening, semantic similarity search and audited execution, exposed over an
HTTP JSON API.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("scriptd version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configDir, "dir", ".scriptd",
		"Directory holding scriptd.json and the databases")
}
