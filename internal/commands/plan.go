// internal/commands/plan.go
package commands

import (
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/spf13/cobra"
)

// planCmd implements 'plan', which turns a report into a page plan.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a page plan from a report",
	Long:  `The 'plan' command streams a structural plan for the page from the report read from --report (or stdin) and writes it to --out (or stdout).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reportPath, _ := cmd.Flags().GetString("report")
		outPath, _ := cmd.Flags().GetString("out")
		stream, _ := cmd.Flags().GetBool("stream")
		return runPlan(cmd, reportPath, outPath, stream)
	},
}

func init() {
	planCmd.Flags().StringP("report", "r", "", "report file (default: stdin)")
	planCmd.Flags().StringP("out", "o", "", "write the plan to this file (default: stdout)")
	planCmd.Flags().Bool("stream", false, "echo the plan to stderr while it streams")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, reportPath, outPath string, stream bool) error {
	report, err := readInput(cmd, reportPath)
	if err != nil {
		return err
	}

	env, err := openRunEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			logging.LogEvent("[CLI] close provider: %v", err)
		}
	}()

	listener, finish := echoListener(cmd, stream)
	controller, err := env.controller(listener)
	if err != nil {
		return err
	}
	release := stopOnInterrupt(cmd.Context(), controller)
	defer release()

	controller.SetReport(report)
	err = controller.GeneratePlan(cmd.Context())
	finish()
	if err := reportResult(cmd.ErrOrStderr(), "Plan generation", err); err != nil {
		return err
	}
	return writeOutput(cmd, outPath, controller.Snapshot().Plan)
}
