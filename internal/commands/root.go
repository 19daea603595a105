// internal/commands/root.go
package commands

import (
	"fmt"
	"os"

	"github.com/mwiater/pagesmith/internal/appconfig"
	"github.com/mwiater/pagesmith/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// credentialEnv maps config keys to the environment variables that may supply them.
var credentialEnv = map[string]string{
	"geminiApiKey":     appconfig.EnvGeminiAPIKey,
	"openrouterApiKey": appconfig.EnvOpenRouterAPIKey,
	"openaiApiKey":     appconfig.EnvOpenAIAPIKey,
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "pagesmith",
	Short:         "pagesmith turns a written report into a single-file HTML page with an LLM",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := ensureConfigLoaded()
		if err != nil {
			return err
		}

		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		if loaded {
			cfg.ConfigPath = viper.ConfigFileUsed()
		}
		currentConfig = &cfg

		// The studio owns the terminal, so debug output only goes to the log file there.
		console := cmd.ErrOrStderr()
		if !cfg.Debug || cmd.Name() == "studio" {
			console = nil
		}
		if err := logging.Init(currentConfig.LogFilePath(), console); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.LogEvent("[CONFIG] command=%s model=%s config=%q", cmd.CommandPath(), cfg.SelectedModel(), cfg.ConfigPath)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		_ = logging.Close()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	rootCmd.PersistentFlags().StringP("model", "m", "", "model identifier, e.g. gemini-2.5-flash or openrouter/<vendor>/<model>")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("metrics", false, "record per-model stream metrics")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")
	rootCmd.PersistentFlags().Int("timeout", 0, "seconds allowed for one generation (0 = default)")

	for _, name := range []string{"model", "debug", "metrics", "logFile", "timeout"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	for key, env := range credentialEnv {
		_ = viper.BindEnv(key, env)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// ensureConfigLoaded validates and reads the config file. A missing file is
// not an error; defaults, environment and flags still apply.
func ensureConfigLoaded() (bool, error) {
	if cfgFile == "" {
		return false, nil
	}
	if _, err := os.Stat(cfgFile); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat config: %w", err)
	}
	if err := appconfig.ValidateFile(cfgFile); err != nil {
		return false, err
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return false, fmt.Errorf("failed to load config: %w", err)
	}
	return true, nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
