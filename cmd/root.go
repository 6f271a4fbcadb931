package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/campusdesk/cli/cmd/auth"
	"github.com/campusdesk/cli/cmd/captcha"
	"github.com/campusdesk/cli/cmd/cmdutil"
	"github.com/campusdesk/cli/cmd/config"
	"github.com/campusdesk/cli/cmd/fetch"
	"github.com/campusdesk/cli/cmd/term"
	appConfig "github.com/campusdesk/cli/internal/config"
	"github.com/campusdesk/cli/internal/logging"
)

var (
	cfgFile   string
	debug     bool
	output    string
	logCloser io.Closer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "campusdesk",
	Short: "campusdesk - command-line client for the university student portal",
	Long: `campusdesk signs in to the university student portal, solving the login
CAPTCHA locally, and keeps the session alive so that attendance, grades,
timetable and other pages can be fetched without logging in again.

The password is kept in the operating system keyring, never in the
configuration file.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := appConfig.Initialize(cfgFile); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		cfg := appConfig.Get()
		if debug {
			appConfig.SetDebug(true)
			cfg.Log.Level = "debug"
		}
		if output != "" {
			appConfig.SetOutputFormat(output)
		}

		closer, err := logging.Init(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logCloser = closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return shutdown()
	},
}

func shutdown() error {
	err := cmdutil.Close()
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
	return err
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		// PersistentPostRunE is skipped when RunE fails
		_ = shutdown()
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.campusdesk.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output format (table, json, json-compact, yaml, text)")

	rootCmd.AddCommand(auth.AuthCmd)
	rootCmd.AddCommand(term.TermCmd)
	rootCmd.AddCommand(fetch.FetchCmd)
	rootCmd.AddCommand(captcha.CaptchaCmd)
	rootCmd.AddCommand(config.ConfigCmd)
}
