// Package prompt expands expert prompt templates. It lives in internal
// to avoid committing to public API stability prematurely.
package prompt

import (
	"bytes"
	"strings"
	"text/template"
)

// Vars holds the values an expert template can reference.
type Vars struct {
	// Prompt is the original request text.
	Prompt string
	// ModelKey identifies the model the expert targets.
	ModelKey string
	// AgentName labels the expert task.
	AgentName string
}

// Render expands template markers in text. Text without markers is
// returned unchanged so plain prefixes skip the template machinery.
func Render(text string, vars Vars) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("expert").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", err
	}

	return buf.String(), nil
}
