// Command create-user provisions a local account directly against the
// database, for operators bootstrapping the first admin before any HTTP
// surface exists. A direct, idiomatic-Go port of bin/create_user.rs's
// flag set and existing-email check.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tansanrao/nexus/adapter/postgres"
	"github.com/tansanrao/nexus/core/auth"
	"github.com/tansanrao/nexus/core/domain"
	"github.com/tansanrao/nexus/pkg/logger"
)

func main() {
	var email, password, displayName, role string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a local mailarchive user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), email, password, displayName, role)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "plaintext password to hash and store (required)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name for the account")
	cmd.Flags().StringVar(&role, "role", "user", "role to assign: user or admin")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, rawEmail, password, displayName, rawRole string) error {
	email := strings.ToLower(strings.TrimSpace(rawEmail))
	if !strings.Contains(email, "@") {
		return fmt.Errorf("email must contain '@'")
	}

	var roleVal domain.Role
	switch strings.ToLower(strings.TrimSpace(rawRole)) {
	case "admin":
		roleVal = domain.RoleAdmin
	case "user":
		roleVal = domain.RoleUser
	default:
		return fmt.Errorf("unsupported role %q: use 'user' or 'admin'", rawRole)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	passwords := auth.NewPasswordService()
	hash, err := passwords.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tx, err := store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if existing, err := tx.GetUserByEmail(ctx, email); err != nil {
		return fmt.Errorf("check existing user: %w", err)
	} else if existing != nil {
		return fmt.Errorf("a user with email %q already exists", email)
	}

	userID, err := tx.CreateUser(ctx, domain.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         roleVal,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	logger.Info("created %s user %q with id %d", roleVal, email, userID)
	fmt.Printf("Created %s user %q with id %d\n", roleVal, email, userID)
	return nil
}
