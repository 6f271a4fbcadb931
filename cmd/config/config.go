package config

import (
	"github.com/spf13/cobra"

	appConfig "github.com/campusdesk/cli/internal/config"
	"github.com/campusdesk/cli/internal/format"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "CLI configuration commands",
	Long: `CLI configuration commands.

Settings are read from $HOME/.campusdesk.yaml and can be overridden with
CAMPUSDESK_ environment variables, for example CAMPUSDESK_PORTAL_BASE_URL.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// nested sections do not fit a two column table
		outputFormat := appConfig.GetOutputFormat()
		if outputFormat == "table" {
			outputFormat = "yaml"
		}
		return format.Fprint(cmd.OutOrStdout(), outputFormat, appConfig.Get())
	},
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}
