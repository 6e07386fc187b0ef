package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/spf13/cobra"

	"github.com/tgmirror/tgmirror/pkg/models"
	"github.com/tgmirror/tgmirror/pkg/transport/telegram"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage fleet sessions",
	Long: `Manage the impersonating client sessions of the fleet.

A session is one Telegram account identified by its phone number. Sessions
must be logged in once ("session login") before the engine can connect them.
Registered sessions are picked up by a running engine on the next start; use
pause/resume for operator-controlled downtime.

Examples:
  tgmirror session login --phone +15551234567
  tgmirror session list
  tgmirror session pause +15551234567 --reason maintenance
  tgmirror session resume +15551234567
  tgmirror session remove +15551234567`,
}

var sessionLoginPhone string

var sessionLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate a session and store its credential",
	Long: `Run the Telegram code login flow for a phone number.

Telegram sends a login code to the account; enter it when prompted. On
success the opaque session credential is stored in the database and the
session is registered (paused) so the engine can connect it.`,
	RunE: runSessionLogin,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sessions",
	RunE:  runSessionList,
}

var sessionAddCmd = &cobra.Command{
	Use:   "add <phone>",
	Short: "Register a session without logging in",
	Long: `Register a phone number without running the login flow.

The session stays paused until a credential exists for it; use
"session login" to authenticate.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionAdd,
}

var sessionRemoveCmd = &cobra.Command{
	Use:   "remove <phone>",
	Short: "Delete a session and its credential",
	Long: `Delete a session, its stored credential and its quarantine state.

Ledger rows written by the session remain, but copies it delivered can no
longer be revoked.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionRemove,
}

var sessionPauseReason string

var sessionPauseCmd = &cobra.Command{
	Use:   "pause <phone>",
	Short: "Pause a session",
	Long: `Pause a session on operator request.

Operator pauses are never auto-resumed; the session stays down until
"session resume".`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionPause,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <phone>",
	Short: "Resume a paused or errored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionResume,
}

func init() {
	sessionLoginCmd.Flags().StringVar(&sessionLoginPhone, "phone", "", "Phone number in international format (required)")
	_ = sessionLoginCmd.MarkFlagRequired("phone")

	sessionPauseCmd.Flags().StringVar(&sessionPauseReason, "reason", "operator", "Reason recorded with the pause")

	sessionCmd.AddCommand(sessionLoginCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionAddCmd)
	sessionCmd.AddCommand(sessionRemoveCmd)
	sessionCmd.AddCommand(sessionPauseCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
}

// terminalCode prompts for the login code on stdin.
func terminalCode(phone string) auth.CodeAuthenticator {
	return auth.CodeAuthenticatorFunc(func(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
		fmt.Printf("Login code sent to %s.\nEnter code: ", phone)
		reader := bufio.NewReader(os.Stdin)
		code, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read code: %w", err)
		}
		return strings.TrimSpace(code), nil
	})
}

func runSessionLogin(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if cfg.Transport.APIID == 0 || cfg.Transport.APIHash == "" {
		return fmt.Errorf("transport.api_id and transport.api_hash are not configured\n\nObtain credentials at https://my.telegram.org/apps and add them to the config file")
	}

	phone := strings.TrimSpace(sessionLoginPhone)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Register first so the credential written by the login flow has a
	// session row to attach to.
	err = st.CreateSession(ctx, &models.Session{Phone: phone, Status: models.SessionPaused})
	if err != nil && !errors.Is(err, models.ErrDuplicateSession) {
		return fmt.Errorf("failed to register session: %w", err)
	}

	dialer := &telegram.Dialer{
		APIID:    cfg.Transport.APIID,
		APIHash:  cfg.Transport.APIHash,
		Sessions: st,
	}

	userID, err := dialer.Login(ctx, phone, terminalCode(phone))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := st.SetSessionActive(ctx, phone, userID); err != nil {
		return fmt.Errorf("failed to activate session: %w", err)
	}

	fmt.Printf("\nLogged in as user %d. Session %s is ready.\n", userID, phone)
	fmt.Println("Run 'tgmirror start' (or restart the engine) to connect it.")
	return nil
}

func runSessionList(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions registered. Use 'tgmirror session login --phone ...' to add one.")
		return nil
	}

	fmt.Printf("%-18s %-10s %-12s %s\n", "PHONE", "STATUS", "USER ID", "DETAIL")
	for _, s := range sessions {
		detail := ""
		switch {
		case s.Status == models.SessionError && s.LastError != "":
			detail = s.LastError
		case s.AutoPaused && s.PenaltyUntil != nil:
			detail = fmt.Sprintf("%s until %s", s.PauseReason, s.PenaltyUntil.Format(time.RFC3339))
		case s.PauseReason != "":
			detail = s.PauseReason
		}
		userID := ""
		if s.UserID != 0 {
			userID = fmt.Sprintf("%d", s.UserID)
		}
		fmt.Printf("%-18s %-10s %-12s %s\n", s.Phone, s.Status, userID, detail)
	}
	return nil
}

func runSessionAdd(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	phone := strings.TrimSpace(args[0])
	err = st.CreateSession(ctx, &models.Session{Phone: phone, Status: models.SessionPaused})
	if errors.Is(err, models.ErrDuplicateSession) {
		fmt.Printf("Session %s already registered\n", phone)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}
	fmt.Printf("Session %s registered (paused). Use 'tgmirror session login --phone %s' to authenticate.\n", phone, phone)
	return nil
}

func runSessionRemove(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	phone := strings.TrimSpace(args[0])
	if err := st.DeleteSession(ctx, phone); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	fmt.Printf("Session %s removed\n", phone)
	return nil
}

func runSessionPause(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	phone := strings.TrimSpace(args[0])
	if err := st.PauseSession(ctx, phone, sessionPauseReason, false, nil); err != nil {
		return fmt.Errorf("failed to pause session: %w", err)
	}
	fmt.Printf("Session %s paused (%s)\n", phone, sessionPauseReason)
	fmt.Println("Restart the engine (or wait for its next reconcile) to disconnect it.")
	return nil
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	_, st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	phone := strings.TrimSpace(args[0])
	sess, err := st.GetSession(ctx, phone)
	if err != nil {
		return err
	}
	if err := st.SetSessionActive(ctx, phone, sess.UserID); err != nil {
		return fmt.Errorf("failed to resume session: %w", err)
	}
	fmt.Printf("Session %s marked active\n", phone)
	fmt.Println("Restart the engine to connect it.")
	return nil
}
