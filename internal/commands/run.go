// internal/commands/run.go
package commands

import (
	"fmt"

	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/spf13/cobra"
)

// runCmd implements 'run', the whole report to page pipeline in one go.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run report -> plan -> HTML, then apply refinements",
	Long: `The 'run' command generates a plan from the report, builds the HTML page from it, and then applies each --refine instruction in order through the HTML refinement chat.

A failed refinement keeps the last good document and stops the run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reportPath, _ := cmd.Flags().GetString("report")
		outPath, _ := cmd.Flags().GetString("out")
		planOut, _ := cmd.Flags().GetString("planOut")
		refinements, _ := cmd.Flags().GetStringArray("refine")
		stream, _ := cmd.Flags().GetBool("stream")
		return runPipeline(cmd, pipelineRun{
			reportPath:  reportPath,
			outPath:     outPath,
			planOut:     planOut,
			refinements: refinements,
			stream:      stream,
		})
	},
}

type pipelineRun struct {
	reportPath  string
	outPath     string
	planOut     string
	refinements []string
	stream      bool
}

func init() {
	runCmd.Flags().StringP("report", "r", "", "report file (default: stdin)")
	runCmd.Flags().StringP("out", "o", "page.html", "write the HTML document to this file")
	runCmd.Flags().String("planOut", "", "also write the generated plan to this file")
	runCmd.Flags().StringArray("refine", nil, "refinement instruction for the HTML document (repeatable)")
	runCmd.Flags().Bool("stream", false, "echo artifacts to stderr while they stream")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, opts pipelineRun) error {
	report, err := readInput(cmd, opts.reportPath)
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

	listener, finish := echoListener(cmd, opts.stream)
	controller, err := env.controller(listener)
	if err != nil {
		return err
	}
	release := stopOnInterrupt(cmd.Context(), controller)
	defer release()

	status := cmd.ErrOrStderr()
	controller.SetReport(report)

	err = controller.GeneratePlan(cmd.Context())
	finish()
	if err := reportResult(status, "Plan generation", err); err != nil {
		return err
	}
	plan := controller.Snapshot().Plan
	if opts.planOut != "" {
		if err := writeOutput(cmd, opts.planOut, plan); err != nil {
			return err
		}
	}

	err = controller.GenerateHTMLFromPlan(cmd.Context(), plan)
	finish()
	if err := reportResult(status, "HTML generation", err); err != nil {
		return err
	}

	for i, instruction := range opts.refinements {
		err = controller.SendChatMessage(cmd.Context(), instruction)
		finish()
		if err := reportResult(status, fmt.Sprintf("Refinement %d/%d", i+1, len(opts.refinements)), err); err != nil {
			// Keep the last accepted document.
			if writeErr := writeOutput(cmd, opts.outPath, controller.Snapshot().HTML); writeErr != nil {
				logging.LogEvent("[CLI] write partial result: %v", writeErr)
			}
			return err
		}
	}

	return writeOutput(cmd, opts.outPath, controller.Snapshot().HTML)
}
