// Package composite expands a composite card invocation into the flat,
// ordered list of concrete GraphQL operations it stands for.
package composite

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aryeko/ghx-router-sub004/internal/card"
	"github.com/aryeko/ghx-router-sub004/internal/gql"
)

// Operation is one concrete operation produced by expansion.
type Operation struct {
	CapabilityID string
	Alias        string
	Document     string
	Variables    map[string]any
}

// GQL returns the operation in the batch builder's shape.
func (o Operation) GQL() gql.Operation {
	return gql.Operation{Alias: o.Alias, Document: o.Document, Variables: o.Variables}
}

// Builder produces the document and variables for one step invocation.
type Builder interface {
	Build(params map[string]any) (document string, variables map[string]any, err error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(params map[string]any) (string, map[string]any, error)

// Build calls f.
func (f BuilderFunc) Build(params map[string]any) (string, map[string]any, error) {
	return f(params)
}

// DocumentBuilder builds a fixed document, passing through every parameter
// the document declares as a variable.
func DocumentBuilder(document string) Builder {
	return BuilderFunc(func(params map[string]any) (string, map[string]any, error) {
		names, err := gql.VariableNames(document)
		if err != nil {
			return "", nil, err
		}
		vars := make(map[string]any, len(names))
		for _, name := range names {
			if v, ok := params[name]; ok {
				vars[name] = v
			}
		}
		return document, vars, nil
	})
}

// Expander holds the builders composite steps may reference.
type Expander struct {
	builders map[string]Builder
}

// NewExpander returns an Expander with the given builders registered.
func NewExpander(builders map[string]Builder) *Expander {
	e := &Expander{builders: make(map[string]Builder, len(builders))}
	for id, b := range builders {
		e.Register(id, b)
	}
	return e
}

// Register adds or replaces the builder for capability id.
func (e *Expander) Register(id string, b Builder) {
	e.builders[id] = b
}

// Has reports whether id has a builder.
func (e *Expander) Has(id string) bool {
	_, ok := e.builders[id]
	return ok
}

// Expand produces the operations for spec invoked with params, in step
// order and, within a foreach step, item order.
func (e *Expander) Expand(spec *card.CompositeSpec, params map[string]any) ([]Operation, error) {
	if spec == nil {
		return nil, fmt.Errorf("composite: nil spec")
	}

	known := knownActions(spec)
	var ops []Operation

	emit := func(step card.CompositeStep, source map[string]any) error {
		b, ok := e.builders[step.CapabilityID]
		if !ok {
			return fmt.Errorf("composite: no builder registered for %q", step.CapabilityID)
		}
		doc, vars, err := b.Build(stepParams(step, source, params))
		if err != nil {
			return fmt.Errorf("composite: build %s: %w", step.CapabilityID, err)
		}
		ops = append(ops, Operation{
			CapabilityID: step.CapabilityID,
			Alias:        strings.ReplaceAll(step.CapabilityID, ".", "_") + "_" + strconv.Itoa(len(ops)),
			Document:     doc,
			Variables:    vars,
		})
		return nil
	}

	for _, step := range spec.Steps {
		if step.Foreach == "" {
			if !hasAny(step.RequiresAnyOf, params, nil) {
				continue
			}
			if err := emit(step, nil); err != nil {
				return nil, err
			}
			continue
		}

		items, err := foreachItems(step.Foreach, params)
		if err != nil {
			return nil, err
		}
		for i, item := range items {
			if len(known) > 0 {
				action, _ := item["action"].(string)
				if !known[action] {
					return nil, fmt.Errorf("composite: %s[%d]: unknown action %q (known: %s)",
						step.Foreach, i, action, strings.Join(sortedKeys(known), ", "))
				}
				if len(step.Actions) > 0 && !contains(step.Actions, action) {
					continue
				}
			}
			if !hasAny(step.RequiresAnyOf, item, params) {
				continue
			}
			if err := emit(step, item); err != nil {
				return nil, err
			}
		}
	}
	return ops, nil
}

func foreachItems(field string, params map[string]any) ([]map[string]any, error) {
	raw, ok := params[field].([]any)
	if !ok {
		return nil, fmt.Errorf("composite: foreach field %q must be an array", field)
	}
	items := make([]map[string]any, len(raw))
	for i, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("composite: %s[%d] must be an object", field, i)
		}
		items[i] = obj
	}
	return items, nil
}

// stepParams maps builder parameters to their source fields, reading the
// foreach item first and the invocation params second. Without a params_map
// the builder sees params overlaid with the item.
func stepParams(step card.CompositeStep, item, params map[string]any) map[string]any {
	out := make(map[string]any)
	if len(step.ParamsMap) == 0 {
		for k, v := range params {
			out[k] = v
		}
		for k, v := range item {
			out[k] = v
		}
		return out
	}
	for param, field := range step.ParamsMap {
		if v, ok := item[field]; ok {
			out[param] = v
		} else if v, ok := params[field]; ok {
			out[param] = v
		}
	}
	return out
}

func hasAny(fields []string, primary, secondary map[string]any) bool {
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		if v, ok := primary[f]; ok && v != nil {
			return true
		}
		if v, ok := secondary[f]; ok && v != nil {
			return true
		}
	}
	return false
}

func knownActions(spec *card.CompositeSpec) map[string]bool {
	known := make(map[string]bool)
	for _, s := range spec.Steps {
		for _, a := range s.Actions {
			known[a] = true
		}
	}
	return known
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
