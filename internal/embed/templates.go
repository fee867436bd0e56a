// Package embed holds the prompt templates compiled into the binary.
package embed

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// Prompt template names
const (
	SolutionSystem = "solution_system.tmpl"
	SolutionPrompt = "solution.tmpl"
	EditSystem     = "edit_system.tmpl"
	EditPrompt     = "edit.tmpl"
)

var prompts = template.Must(template.New("prompts").ParseFS(promptFS, "prompts/*.tmpl"))

// RenderPrompt executes the named template with data
func RenderPrompt(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// PromptNames lists every embedded template
func PromptNames() []string {
	var names []string
	for _, t := range prompts.Templates() {
		if strings.HasSuffix(t.Name(), ".tmpl") {
			names = append(names, t.Name())
		}
	}
	return names
}
