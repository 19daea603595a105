// internal/commands/show.go
package commands

import (
	"fmt"

	"github.com/k0kubun/pp"
	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// showCmd groups the informational subcommands.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying configuration and metrics",
	Long:  `The 'show' command groups subcommands that display information related to pagesmith.`,
}

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON config is loaded properly and overridden by environment variables and flags accordingly. API keys are masked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("configuration is not loaded")
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), cfg.ConfigPath, *cfg, verbose)
		return nil
	},
}

// showMetricsCmd implements 'show metrics', a table of the recorded per-model stream metrics.
var showMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show recorded model metrics",
	Long:  `Show the per-model stream metrics recorded while --metrics (or "metrics": true) is enabled.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		path := viper.GetString("metricsFile")
		if cfg := GetConfig(); cfg != nil {
			path = cfg.MetricsFilePath()
		}

		metricsSlice, err := metrics.Load(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Metrics file: %s\n\n", path)
		if err := metrics.WriteReport(cmd.OutOrStdout(), metricsSlice); err != nil {
			return err
		}
		if verbose && len(metricsSlice) > 0 {
			fmt.Fprintln(cmd.OutOrStdout())
			pp.Fprintln(cmd.OutOrStdout(), metricsSlice)
		}
		return nil
	},
}

func init() {
	showConfigCmd.Flags().BoolP("verbose", "v", false, "also dump the merged configuration struct")
	showMetricsCmd.Flags().BoolP("verbose", "v", false, "also dump the raw metrics")

	showCmd.AddCommand(showConfigCmd)
	showCmd.AddCommand(showMetricsCmd)
	rootCmd.AddCommand(showCmd)
}
