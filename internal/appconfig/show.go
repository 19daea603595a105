package appconfig

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
	"github.com/mwiater/pagesmith/internal/util"
)

// ShowConfig prints the current configuration summary. Credentials are masked.
// With verbose set, the full merged struct is dumped as well.
func ShowConfig(out io.Writer, file string, cfg Config, verbose bool) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	minChars, maxChars := cfg.ReportBounds()
	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Model:              %s\n", cfg.SelectedModel())
	fmt.Fprintf(out, "  %-19s %s\n", EnvGeminiAPIKey+":", util.MaskSecret(cfg.GeminiAPIKey))
	fmt.Fprintf(out, "  %-19s %s\n", EnvOpenRouterAPIKey+":", util.MaskSecret(cfg.OpenRouterAPIKey))
	fmt.Fprintf(out, "  %-19s %s\n", EnvOpenAIAPIKey+":", util.MaskSecret(cfg.OpenAIAPIKey))
	fmt.Fprintf(out, "  OpenRouter URL:     %s\n", cfg.OpenRouterURL())
	fmt.Fprintf(out, "  OpenAI URL:         %s\n", cfg.OpenAIURL())
	fmt.Fprintf(out, "  Request Timeout:    %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Report Bounds:      %d-%d characters\n", minChars, maxChars)
	fmt.Fprintf(out, "  Language:           %s\n", valueOr(cfg.Language, "auto"))
	fmt.Fprintf(out, "  Theme:              %s\n", valueOr(cfg.Theme, "auto"))
	fmt.Fprintf(out, "  Output Type:        %s\n", valueOr(cfg.OutputType, "webpage"))
	fmt.Fprintf(out, "  Log File:           %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Debug:              %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Metrics:            %v\n", cfg.Metrics)
	if cfg.Metrics {
		fmt.Fprintf(out, "  Metrics File:       %s\n", cfg.MetricsFilePath())
	}

	if verbose {
		masked := cfg
		masked.GeminiAPIKey = util.MaskSecret(cfg.GeminiAPIKey)
		masked.OpenRouterAPIKey = util.MaskSecret(cfg.OpenRouterAPIKey)
		masked.OpenAIAPIKey = util.MaskSecret(cfg.OpenAIAPIKey)
		fmt.Fprintln(out)
		pp.Fprintln(out, masked)
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
