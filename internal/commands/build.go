// internal/commands/build.go
package commands

import (
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/spf13/cobra"
)

// buildCmd implements 'build', which renders the HTML document from a report
// and an existing plan.
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Generate the HTML page from a report and a plan",
	Long:  `The 'build' command generates a single-file HTML document from the report and a plan file, which may have been edited by hand after 'plan'.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reportPath, _ := cmd.Flags().GetString("report")
		planPath, _ := cmd.Flags().GetString("plan")
		outPath, _ := cmd.Flags().GetString("out")
		stream, _ := cmd.Flags().GetBool("stream")
		return runBuild(cmd, reportPath, planPath, outPath, stream)
	},
}

func init() {
	buildCmd.Flags().StringP("report", "r", "", "report file (default: stdin)")
	buildCmd.Flags().StringP("plan", "p", "", "plan file")
	buildCmd.Flags().StringP("out", "o", "page.html", "write the HTML document to this file")
	buildCmd.Flags().Bool("stream", false, "echo the document to stderr while it streams")
	_ = buildCmd.MarkFlagRequired("plan")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, reportPath, planPath, outPath string, stream bool) error {
	report, err := readInput(cmd, reportPath)
	if err != nil {
		return err
	}
	plan, err := readInput(cmd, planPath)
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
	if err := controller.EditPlan(plan); err != nil {
		return reportResult(cmd.ErrOrStderr(), "HTML generation", err)
	}
	err = controller.GenerateHTMLFromPlan(cmd.Context(), plan)
	finish()
	if err := reportResult(cmd.ErrOrStderr(), "HTML generation", err); err != nil {
		return err
	}
	return writeOutput(cmd, outPath, controller.Snapshot().HTML)
}
