package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"scriptd/internal/config"
	"scriptd/internal/logging"
	"scriptd/internal/storage"
)

var (
	userUsername string
	userEmail    string
	userRole     string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Long:  "Creates a user row. Scripts are owned by users; API keys are issued per user.",
	RunE:  runUserCreate,
}

func init() {
	userCreateCmd.Flags().StringVar(&userUsername, "username", "", "Username (required)")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userCreateCmd.Flags().StringVar(&userRole, "role", storage.RoleUser, "Role: user or admin")
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}

// openStoreForCLI opens the main database the way serve does
func openStoreForCLI() (*storage.DB, *logging.Logger, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.WarnLevel,
	})

	dbDir := cfg.Database.Dir
	if dbDir == "" {
		dbDir = configDir
	}

	db, err := storage.Open(dbDir, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, logger, nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	if userUsername == "" {
		return fmt.Errorf("--username is required")
	}
	if userRole != storage.RoleUser && userRole != storage.RoleAdmin {
		return fmt.Errorf("--role must be %q or %q", storage.RoleUser, storage.RoleAdmin)
	}

	db, _, err := openStoreForCLI()
	if err != nil {
		return err
	}
	defer db.Close()

	users := storage.NewUserRepository(db)
	if existing, err := users.GetByUsername(db, userUsername); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("username %q is already taken", userUsername)
	}

	user := &storage.User{
		ID:        uuid.New().String(),
		Username:  userUsername,
		Email:     userEmail,
		Role:      userRole,
		CreatedAt: time.Now().UTC(),
	}
	if err := users.Create(db, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created %s %q\n", user.Role, user.Username)
	fmt.Printf("User ID: %s\n", user.ID)
	return nil
}
