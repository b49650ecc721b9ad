package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lothbrok303/lazabot-ubu/pkg/crypto"
	"github.com/Lothbrok303/lazabot-ubu/pkg/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage persisted sessions",
}

func sessionManager(cmd *cobra.Command) (*session.Manager, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := crypto.Init(); err != nil {
		return nil, err
	}
	envelope, err := crypto.Default()
	if err != nil {
		return nil, err
	}
	return session.NewManager(
		cfg.Bot.SessionsDir,
		envelope,
		cfg.Bot.BaseURL+"/login",
		cfg.Bot.BaseURL+"/account",
	)
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := sessionManager(cmd)
		if err != nil {
			return err
		}

		ids, err := manager.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No sessions.")
			return nil
		}

		for _, id := range ids {
			sess, err := manager.Restore(id)
			if err != nil {
				fmt.Printf("%s  (unreadable: %v)\n", id, err)
				continue
			}
			state := "invalid"
			if sess.Valid {
				state = "valid"
			}
			fmt.Printf("%s  %s  user=%s  last-used=%s\n",
				id, state, sess.Credentials.Username, sess.LastUsedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var sessionValidateCmd = &cobra.Command{
	Use:   "validate SESSION_ID",
	Short: "Check a session against the retailer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := sessionManager(cmd)
		if err != nil {
			return err
		}

		sess, err := manager.Restore(args[0])
		if err != nil {
			return err
		}

		if manager.Validate(cmd.Context(), sess) {
			fmt.Println("Session is valid.")
		} else {
			fmt.Println("Session is no longer valid.")
		}
		return manager.Persist(sess)
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete SESSION_ID",
	Short: "Delete a persisted session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := sessionManager(cmd)
		if err != nil {
			return err
		}
		if err := manager.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired and unreadable sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := sessionManager(cmd)
		if err != nil {
			return err
		}

		maxAgeDays, _ := cmd.Flags().GetInt("max-age-days")
		deleted, err := manager.CleanupExpired(time.Duration(maxAgeDays) * 24 * time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d sessions.\n", deleted)
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionValidateCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)

	sessionCleanupCmd.Flags().Int("max-age-days", 7, "Delete sessions unused for this many days")
}
