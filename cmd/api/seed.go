package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"personachat/backend/internal/config"
	"personachat/backend/internal/logger"
	"personachat/backend/internal/store"
)

// seedCmd creates a funded demo user with tagged chats, or removes the tagged
// chats again with --cleanup.
func seedCmd() *cobra.Command {
	var (
		userID  string
		email   string
		balance float64
		chats   int
		tag     string
		cleanup bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo user and chats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cfg.UsesMemoryStore() {
				return fmt.Errorf("seed needs STORE_DRIVER=postgres")
			}
			ctx := cmd.Context()
			st, closeStore, err := openStore(ctx, cfg, logger.Nop())
			if err != nil {
				return err
			}
			defer closeStore()

			tag = strings.TrimSpace(tag)
			if tag == "" {
				return fmt.Errorf("--tag must not be empty")
			}
			if cleanup {
				return cleanupSeed(ctx, cmd, st, userID, tag)
			}
			if strings.TrimSpace(userID) == "" {
				userID = uuid.NewString()
			}

			user, err := st.CreateUser(ctx, store.User{
				ID:      userID,
				Email:   email,
				Name:    "demo-" + userID[:min(8, len(userID))],
				Balance: balance,
			})
			if err != nil {
				return fmt.Errorf("seed user: %w", err)
			}
			for i := range chats {
				if _, err := st.CreateChat(ctx, user.ID, fmt.Sprintf("Demo chat %d", i+1), []string{tag}); err != nil {
					return fmt.Errorf("seed chat: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded user=%s balance=%.2f chats=%d tag=%s\n", user.ID, user.Balance, chats, tag)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "user id, normally the JWT sub (default: random uuid)")
	cmd.Flags().StringVar(&email, "email", "demo@example.com", "user email")
	cmd.Flags().Float64Var(&balance, "balance", 100, "starting balance for a new user")
	cmd.Flags().IntVar(&chats, "chats", 3, "number of chats to create")
	cmd.Flags().StringVar(&tag, "tag", "demo_seed", "tag put on seeded chats and used by --cleanup")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "permanently delete the user's chats carrying --tag")
	return cmd
}

func cleanupSeed(ctx context.Context, cmd *cobra.Command, st store.Store, userID, tag string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("--cleanup needs --user-id")
	}
	seeded, err := st.ListChats(ctx, userID, store.ChatFilter{Tag: tag})
	if err != nil {
		return fmt.Errorf("list seeded chats: %w", err)
	}
	for _, chat := range seeded {
		if err := st.DeleteChat(ctx, userID, chat.ID, true); err != nil {
			return fmt.Errorf("delete chat %s: %w", chat.ID, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d chats tagged %s\n", len(seeded), tag)
	return nil
}
