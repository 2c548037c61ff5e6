package card

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// templateFuncs are available to cli args and rest paths.
var templateFuncs = template.FuncMap{
	"join": func(v any, sep string) string {
		switch items := v.(type) {
		case []string:
			return strings.Join(items, sep)
		case []any:
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = fmt.Sprint(item)
			}
			return strings.Join(parts, sep)
		}
		return fmt.Sprint(v)
	},
}

// ParseTemplate parses a cli arg or rest path template. Referencing an
// input field that is absent is an error at render time; optional fields
// are read with index.
func ParseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
}

// Render parses and executes text against input.
func Render(name, text string, input map[string]any) (string, error) {
	tmpl, err := ParseTemplate(name, text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderArgs renders every cli arg against input, dropping arguments that
// render empty.
func (c *CLISpec) RenderArgs(input map[string]any) ([]string, error) {
	args := strings.Fields(c.Command)
	for i, a := range c.Args {
		s, err := Render(fmt.Sprintf("args[%d]", i), a, input)
		if err != nil {
			return nil, fmt.Errorf("render cli arg %d: %w", i, err)
		}
		if s == "" {
			continue
		}
		args = append(args, s)
	}
	return args, nil
}
