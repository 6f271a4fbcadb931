package term

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/campusdesk/cli/cmd/cmdutil"
	"github.com/campusdesk/cli/internal/format"
	"github.com/campusdesk/cli/internal/models"
)

// TermCmd represents the term command
var TermCmd = &cobra.Command{
	Use:   "term",
	Short: "Select the semester used by term scoped pages",
}

var termSetCmd = &cobra.Command{
	Use:   "set <semester-id>",
	Short: "Select a semester",
	Args:  cobra.ExactArgs(1),
	RunE:  runTermSet,
}

var termShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the selected semester",
	RunE:  runTermShow,
}

var termClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the selected semester",
	RunE:  runTermClear,
}

func runTermSet(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")

	svc, err := cmdutil.Service()
	if err != nil {
		return err
	}
	res := svc.SetTerm(cmd.Context(), models.Term{ID: args[0], Name: name})
	if !res.Success {
		return fmt.Errorf("failed to set term: %s", res.Error)
	}
	format.PrintSuccess("✓ Term set to %s", args[0])
	return nil
}

func runTermShow(cmd *cobra.Command, args []string) error {
	svc, err := cmdutil.Service()
	if err != nil {
		return err
	}
	res := svc.GetTerm(cmd.Context())
	if res.Success && res.Data == nil {
		format.PrintWarning("No term selected")
		return nil
	}
	return cmdutil.Render(res)
}

func runTermClear(cmd *cobra.Command, args []string) error {
	svc, err := cmdutil.Service()
	if err != nil {
		return err
	}
	res := svc.ClearTerm(cmd.Context())
	if !res.Success {
		return fmt.Errorf("failed to clear term: %s", res.Error)
	}
	format.PrintSuccess("✓ Term cleared")
	return nil
}

func init() {
	termSetCmd.Flags().String("name", "", "Display name of the semester")

	TermCmd.AddCommand(termSetCmd)
	TermCmd.AddCommand(termShowCmd)
	TermCmd.AddCommand(termClearCmd)
}
