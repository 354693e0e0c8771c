package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"scriptd/internal/config"
)

var (
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize scriptd configuration",
	Long:  "Creates the data directory with a default scriptd.json configuration",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := filepath.Join(configDir, "scriptd.json")

	if _, err := os.Stat(configPath); err == nil && !initForce {
		// Idempotent behavior: already initialized is success
		fmt.Println("scriptd already initialized.")
		fmt.Printf("Configuration at: %s\n", configPath)
		fmt.Println("\nRun 'scriptd init --force' to overwrite.")
		return nil
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(configDir); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}

	fmt.Printf("Initialized scriptd in %s\n", configDir)
	fmt.Printf("Configuration at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  scriptd user create --username <name> --email <email> --role admin")
	fmt.Println("  scriptd keys issue --user <user-id>")
	fmt.Println("  scriptd serve")
	return nil
}
