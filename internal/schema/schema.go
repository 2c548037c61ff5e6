// Package schema compiles the JSON Schemas carried by operation cards and
// validates input and output values against them.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Schema is a compiled JSON Schema.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// Issue is one validation failure.
type Issue struct {
	// Path is a JSON pointer into the instance ("" for the root).
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every issue found in one value.
type ValidationError struct {
	Schema string
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		p := is.Path
		if p == "" {
			p = "/"
		}
		parts = append(parts, p+": "+is.Message)
	}
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(parts, "; "))
}

// Compile compiles doc under name. An empty doc accepts everything.
func Compile(name string, doc map[string]any) (*Schema, error) {
	if doc == nil {
		doc = map[string]any{}
	}
	normalized, err := normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, normalized); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustCompile is Compile for schemas known to be valid.
func MustCompile(name string, doc map[string]any) *Schema {
	s, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks v against the schema. Failures are *ValidationError.
func (s *Schema) Validate(v any) error {
	instance, err := normalize(v)
	if err != nil {
		return &ValidationError{Schema: s.name, Issues: []Issue{{Message: err.Error()}}}
	}
	err = s.compiled.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{Schema: s.name, Issues: []Issue{{Message: err.Error()}}}
	}
	issues := flatten(verr, nil)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
	return &ValidationError{Schema: s.name, Issues: issues}
}

// flatten collects the leaf causes; interior nodes only restate their
// children ("allOf failed" and the like).
func flatten(e *jsonschema.ValidationError, out []Issue) []Issue {
	if len(e.Causes) == 0 {
		return append(out, Issue{
			Path:    pointer(e.InstanceLocation),
			Message: e.ErrorKind.LocalizedString(printer),
		})
	}
	for _, c := range e.Causes {
		out = flatten(c, out)
	}
	return out
}

func pointer(loc []string) string {
	if len(loc) == 0 {
		return ""
	}
	escaped := make([]string, len(loc))
	for i, seg := range loc {
		seg = strings.ReplaceAll(seg, "~", "~0")
		escaped[i] = strings.ReplaceAll(seg, "/", "~1")
	}
	return "/" + strings.Join(escaped, "/")
}

// normalize converts v into the shapes the validator understands: YAML
// decoding and callers hand us int, []string and friends.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
