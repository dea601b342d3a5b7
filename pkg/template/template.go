// Package template renders email subjects and bodies from node configuration.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// Renderer expands a template string with per-lead variables.
type Renderer interface {
	Render(templateStr string, variables map[string]string) (string, error)
}

// TextRenderer is a text/template based Renderer. Variables are addressed as
// {{.name}}, {{.email}}, etc.; missing keys render as empty strings.
type TextRenderer struct{}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) Render(templateStr string, variables map[string]string) (string, error) {
	tmpl, err := template.
		New("email").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, variables)
	if err != nil {
		return "", fmt.Errorf("failed to execute template %q: %w", templateStr, err)
	}

	return buf.String(), nil
}
