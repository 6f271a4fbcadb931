package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusdesk/cli/cmd/cmdutil"
	"github.com/campusdesk/cli/internal/format"
	"github.com/campusdesk/cli/internal/models"
)

// AuthCmd represents the auth command
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Portal login and session commands",
	Long: `Portal login and session commands.

Logging in stores the password in the OS keyring so that an expired portal
session can be renewed automatically.`,
}

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the portal",
	Long: `Authenticate with the portal. The password is taken from --password, the
CAMPUSDESK_PASSWORD environment variable, or an interactive prompt.

The login CAPTCHA is solved with a local model read from captcha.model_path
(default $HOME/.campusdesk.d/captcha.model). campusdesk does not ship trained
weights; place a CDCM model file there before logging in.`,
	RunE: runLogin,
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget the stored password",
	Long:  "End the portal session and remove the stored password and tokens. The selected term is kept unless --all is given.",
	RunE:  runLogout,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE:  runStatus,
}

type statusView struct {
	UserID    string    `json:"user_id" yaml:"user_id"`
	LoggedIn  bool      `json:"logged_in" yaml:"logged_in"`
	LastLogin time.Time `json:"last_login" yaml:"last_login"`
	Session   bool      `json:"session" yaml:"session"`
	Term      string    `json:"term" yaml:"term"`
}

func runLogin(cmd *cobra.Command, args []string) error {
	userID, _ := cmd.Flags().GetString("user")
	flagPassword, _ := cmd.Flags().GetString("password")

	password, err := cmdutil.PasswordSource{
		Flag:   flagPassword,
		Getenv: os.Getenv,
		Stdin:  os.Stdin,
		Prompt: cmd.ErrOrStderr(),
	}.Resolve()
	if err != nil {
		return err
	}

	svc, err := cmdutil.Service()
	if err != nil {
		return err
	}

	format.PrintInfo("Logging in as %s...", userID)
	res := svc.Login(cmd.Context(), userID, password)
	if !res.Success {
		return fmt.Errorf("login failed: %s", res.Error)
	}
	format.PrintSuccess("✓ Successfully logged in as %s", userID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")

	svc, err := cmdutil.Service()
	if err != nil {
		return err
	}

	res := svc.Logout(cmd.Context(), all)
	if !res.Success {
		return fmt.Errorf("logout failed: %s", res.Error)
	}
	format.PrintSuccess("✓ Successfully logged out")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := cmdutil.Service()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var view statusView
	res := svc.GetAuthState(ctx)
	if !res.Success {
		return fmt.Errorf("failed to read auth state: %s", res.Error)
	}
	if state, ok := res.Data.(*models.AuthState); ok {
		view.UserID = state.UserID
		view.LoggedIn = state.LoggedIn
		view.LastLogin = state.LastLogin
	}

	res = svc.GetSessionTokens(ctx)
	if !res.Success {
		return fmt.Errorf("failed to read session: %s", res.Error)
	}
	view.Session = res.Data != nil

	res = svc.GetTerm(ctx)
	if !res.Success {
		return fmt.Errorf("failed to read term: %s", res.Error)
	}
	if term, ok := res.Data.(*models.Term); ok {
		view.Term = term.ID
	}

	return format.Print(view)
}

func init() {
	loginCmd.Flags().StringP("user", "u", "", "Portal user id (registration number)")
	loginCmd.Flags().StringP("password", "p", "", "Password (prefer the prompt or "+cmdutil.PasswordEnv+")")
	_ = loginCmd.MarkFlagRequired("user")

	logoutCmd.Flags().Bool("all", false, "Also clear the selected term")

	AuthCmd.AddCommand(loginCmd)
	AuthCmd.AddCommand(logoutCmd)
	AuthCmd.AddCommand(statusCmd)
}
