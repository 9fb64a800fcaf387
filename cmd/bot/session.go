package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/xaenox/scan-bot/internal/models"
	"github.com/xaenox/scan-bot/internal/session"
	"github.com/xaenox/scan-bot/internal/storage"
	"github.com/xaenox/scan-bot/pkg/config"
	"go.uber.org/zap"
)

func newSessionCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset stored user sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's session without revealing the API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd.Context(), *configPath, func(ctx context.Context, sessions *session.Store) error {
				userID, err := parseUserID(args[0])
				if err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), sessions.Get(ctx, userID))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear <user-id>",
		Short: "Remove a user's session, unlinking their API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd.Context(), *configPath, func(ctx context.Context, sessions *session.Store) error {
				userID, err := parseUserID(args[0])
				if err != nil {
					return err
				}
				if err := sessions.Clear(ctx, userID); err != nil {
					return fmt.Errorf("failed to clear session: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "session %d cleared\n", userID)
				return nil
			})
		},
	})

	return cmd
}

func withSessions(ctx context.Context, configPath string, fn func(context.Context, *session.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.Driver == storage.DriverMemory {
		return fmt.Errorf("storage driver %q keeps sessions inside the bot process; nothing to inspect", cfg.Storage.Driver)
	}

	// Keep operator output clean; storage errors surface as returned errors.
	log := zap.NewNop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	cipher, err := session.NewCipher(cfg.Session.Secret)
	if err != nil {
		return err
	}

	return fn(ctx, session.NewStore(store, cipher, log))
}

func parseUserID(raw string) (int64, error) {
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return userID, nil
}

func printSession(w io.Writer, sess *models.UserSession) {
	fmt.Fprintf(w, "user_id:        %d\n", sess.UserID)
	fmt.Fprintf(w, "has_credential: %t\n", sess.HasCredential())
	fmt.Fprintf(w, "last_prompt:    %q\n", sess.LastPrompt)
	linked := "-"
	if sess.LinkedAt != nil {
		linked = sess.LinkedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "linked_at:      %s\n", linked)
}
