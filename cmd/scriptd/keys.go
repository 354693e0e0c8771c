package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"scriptd/internal/auth"
)

var (
	keysUserID string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue an API key for a user",
	Long:  "Issues a bearer token for the given user. The token is printed once and never stored in clear.",
	RunE:  runKeysIssue,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's API keys",
	RunE:  runKeysList,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

func init() {
	keysIssueCmd.Flags().StringVar(&keysUserID, "user", "", "User ID to issue the key for (required)")
	keysListCmd.Flags().StringVar(&keysUserID, "user", "", "User ID to list keys for (required)")
	keysCmd.AddCommand(keysIssueCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysRevokeCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysIssue(cmd *cobra.Command, args []string) error {
	if keysUserID == "" {
		return fmt.Errorf("--user is required")
	}

	db, logger, err := openStoreForCLI()
	if err != nil {
		return err
	}
	defer db.Close()

	key, token, err := auth.NewManager(db, logger).Issue(context.Background(), keysUserID)
	if err != nil {
		return fmt.Errorf("failed to issue key: %w", err)
	}

	fmt.Printf("Key ID: %s\n", key.KeyID)
	fmt.Printf("Token:  %s\n", token)
	fmt.Println("\nStore the token now; it cannot be shown again.")
	return nil
}

func runKeysList(cmd *cobra.Command, args []string) error {
	if keysUserID == "" {
		return fmt.Errorf("--user is required")
	}

	db, logger, err := openStoreForCLI()
	if err != nil {
		return err
	}
	defer db.Close()

	keys, err := auth.NewManager(db, logger).ListKeys(context.Background(), keysUserID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(keys) == 0 {
		fmt.Println("No keys found.")
		return nil
	}
	for _, key := range keys {
		status := "active"
		if key.RevokedAt != nil {
			status = "revoked"
		}
		lastUsed := "never"
		if key.LastUsedAt != nil {
			lastUsed = key.LastUsedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %s  created %s  last used %s\n",
			key.KeyID, status, key.CreatedAt.Format("2006-01-02"), lastUsed)
	}
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	db, logger, err := openStoreForCLI()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.NewManager(db, logger).Revoke(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	fmt.Printf("Revoked %s\n", args[0])
	return nil
}
