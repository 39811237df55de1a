package prompt

import (
	"bytes"
	"fmt"
	"text/template"
)

// Render instantiates the named template against data. Fields referenced
// by a template but absent from data render as empty strings rather than
// failing, since callers may omit optional fields (e.g. ToolCalls on the
// critique template).
func (l *Loader) Render(name Name, data map[string]string) (string, error) {
	text, err := l.Get(name)
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(string(name)).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("prompt: parsing template %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompt: rendering template %q: %w", name, err)
	}
	return buf.String(), nil
}
