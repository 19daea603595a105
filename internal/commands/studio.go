// internal/commands/studio.go
package commands

import (
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/mwiater/pagesmith/internal/tui"
	"github.com/spf13/cobra"
)

// startStudio runs the interactive studio. Tests replace it.
var startStudio = tui.Run

// studioCmd implements 'studio', the interactive terminal UI.
var studioCmd = &cobra.Command{
	Use:   "studio",
	Short: "Open the interactive studio",
	Long:  `The 'studio' command opens a terminal UI where the report is pasted, the plan and page are generated and refined through chat, and the finished HTML is saved.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")

		env, err := openRunEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if err := env.Close(); err != nil {
				logging.LogEvent("[CLI] close provider: %v", err)
			}
		}()

		return startStudio(cmd.Context(), env.cfg, env.provider, outPath)
	},
}

func init() {
	studioCmd.Flags().StringP("out", "o", "page.html", "file written by the save key")
	rootCmd.AddCommand(studioCmd)
}
