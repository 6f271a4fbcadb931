package fetch

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campusdesk/cli/cmd/cmdutil"
	"github.com/campusdesk/cli/internal/format"
	"github.com/campusdesk/cli/internal/portal"
)

// FetchCmd represents the fetch command
var FetchCmd = &cobra.Command{
	Use:   "fetch <operation>",
	Short: "Fetch an authenticated portal page",
	Long: `Fetch an authenticated portal page and print its HTML. An expired session
is renewed once with the stored password.

Run "fetch list" for the available operations.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var fetchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return format.Print(portal.Operations())
	},
}

func runFetch(cmd *cobra.Command, args []string) error {
	outFile, _ := cmd.Flags().GetString("out")

	svc, err := cmdutil.Service()
	if err != nil {
		return err
	}

	res := svc.Fetch(cmd.Context(), args[0])
	if !res.Success {
		return fmt.Errorf("fetch %s failed: %s", args[0], res.Error)
	}

	if outFile == "" {
		return format.Print(res.Data)
	}
	if err := os.WriteFile(outFile, []byte(res.Data.(string)), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", outFile, err)
	}
	format.PrintSuccess("✓ Saved %s to %s", args[0], outFile)
	return nil
}

func init() {
	FetchCmd.Flags().String("out", "", "Write the page to a file instead of stdout")
	FetchCmd.AddCommand(fetchListCmd)
}
