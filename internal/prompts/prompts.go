// Package prompts builds the prompt text sent to the model for each pipeline stage.
package prompts

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/mwiater/pagesmith/internal/session"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// Acknowledgements used as the synthetic assistant turn of a chat seed.
const (
	planSeedReply = "Understood. Tell me what to change and I will reply with the full revised plan."
	htmlSeedReply = "Understood. Tell me what to change and I will reply with the full revised HTML document."
)

// Settings are the user preferences carried into every prompt.
type Settings struct {
	Language   string
	Theme      string
	OutputType string
}

// WithDefaults fills empty fields.
func (s Settings) WithDefaults() Settings {
	if strings.TrimSpace(s.Language) == "" {
		s.Language = "English"
	}
	if strings.TrimSpace(s.Theme) == "" {
		s.Theme = "auto"
	}
	if strings.TrimSpace(s.OutputType) == "" {
		s.OutputType = "webpage"
	}
	return s
}

type data struct {
	Settings Settings
	Report   string
	Plan     string
	HTML     string
}

// PlanPrompt returns the prompt that turns a report into a plan.
func PlanPrompt(report string, settings Settings) string {
	return render("plan", data{Settings: settings.WithDefaults(), Report: report})
}

// HTMLPrompt returns the prompt that turns a report and plan into an HTML document.
func HTMLPrompt(report, plan string, settings Settings) string {
	return render("html", data{Settings: settings.WithDefaults(), Report: report, Plan: plan})
}

// PlanChatSeed returns the seed exchange for a plan-refinement session.
func PlanChatSeed(plan string, settings Settings) session.Seed {
	d := data{Settings: settings.WithDefaults(), Plan: plan}
	return session.Seed{
		System:    render("plan_system", d),
		User:      render("plan_seed", d),
		Assistant: planSeedReply,
	}
}

// HTMLChatSeed returns the seed exchange for an HTML-refinement session.
func HTMLChatSeed(report, plan, html string, settings Settings) session.Seed {
	d := data{Settings: settings.WithDefaults(), Report: report, Plan: plan, HTML: html}
	return session.Seed{
		System:    render("html_system", d),
		User:      render("html_seed", d),
		Assistant: htmlSeedReply,
	}
}

func render(name string, d data) string {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, d); err != nil {
		// The templates are embedded and only reference fields of data.
		panic(fmt.Sprintf("prompts: render %s: %v", name, err))
	}
	return strings.TrimSpace(b.String())
}
