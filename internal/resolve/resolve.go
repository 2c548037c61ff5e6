// Package resolve turns lookup results and caller input into mutation
// variables.
//
// A resolution lookup answers a question the caller cannot (the node id of
// issue #7, the ids of the labels named "bug" and "p1"); injection writes
// those answers into the variables of the dependent mutation. Any value that
// cannot be produced is a *Error, which the engine reports as a resolution
// failure that retrying cannot fix.
package resolve

import (
	"fmt"
	"strings"

	"github.com/aryeko/ghx-router-sub004/internal/card"
	"github.com/aryeko/ghx-router-sub004/internal/gql"
)

// Error reports a value injection could not produce.
type Error struct {
	Target  string
	Message string
}

func (e *Error) Error() string {
	if e.Target == "" {
		return "resolution failed: " + e.Message
	}
	return fmt.Sprintf("resolution failed for %q: %s", e.Target, e.Message)
}

// ApplyInject produces the value for one inject spec. lookup is the
// root-field-wrapped lookup payload; it may be nil for sources that do not
// read it.
func ApplyInject(spec card.InjectSpec, lookup map[string]any, input map[string]any) (map[string]any, error) {
	switch spec.Source {
	case card.SourceNullLiteral:
		return map[string]any{spec.Target: nil}, nil

	case card.SourceScalar:
		v, ok := Path(lookup, spec.Path)
		if !ok || v == nil {
			return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("no value at lookup path %q", spec.Path)}
		}
		return map[string]any{spec.Target: v}, nil

	case card.SourceInput:
		v, ok := input[spec.From]
		if !ok || v == nil {
			return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("input field %q is missing", spec.From)}
		}
		return map[string]any{spec.Target: v}, nil

	case card.SourceMapArray:
		ids, err := mapArray(spec, lookup, input)
		if err != nil {
			return nil, err
		}
		return map[string]any{spec.Target: ids}, nil
	}

	return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("unknown inject source %q", spec.Source)}
}

// ApplyAll applies specs in order and merges their values. Later specs
// overwrite earlier ones on the same target.
func ApplyAll(specs []card.InjectSpec, lookup map[string]any, input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(specs))
	for _, spec := range specs {
		vals, err := ApplyInject(spec, lookup, input)
		if err != nil {
			return nil, err
		}
		for k, v := range vals {
			out[k] = v
		}
	}
	return out, nil
}

// mapArray resolves every name in the input array to a node id. A connection
// that reports more pages is a failure: an id missing from the first page
// must never be silently dropped or confused with another.
func mapArray(spec card.InjectSpec, lookup map[string]any, input map[string]any) ([]any, error) {
	rawNames, ok := input[spec.From]
	if !ok || rawNames == nil {
		return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("input field %q is missing", spec.From)}
	}
	names, ok := rawNames.([]any)
	if !ok {
		if strs, isStrings := rawNames.([]string); isStrings {
			names = make([]any, len(strs))
			for i, s := range strs {
				names[i] = s
			}
		} else {
			return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("input field %q must be an array", spec.From)}
		}
	}

	rawNodes, ok := Path(lookup, spec.NodesPath)
	if !ok {
		return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("no node list at lookup path %q", spec.NodesPath)}
	}
	nodes, ok := rawNodes.([]any)
	if !ok {
		return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("lookup path %q is not a list", spec.NodesPath)}
	}

	if hasNextPage(lookup, spec.NodesPath) {
		return nil, &Error{
			Target:  spec.Target,
			Message: fmt.Sprintf("lookup list at %q is paginated (hasNextPage=true); refusing to match against a partial list", spec.NodesPath),
		}
	}

	index := make(map[string]any, len(nodes))
	for _, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		key, ok := node[spec.MatchField].(string)
		if !ok {
			continue
		}
		if _, dup := index[strings.ToLower(key)]; !dup {
			index[strings.ToLower(key)] = node[spec.ExtractField]
		}
	}

	ids := make([]any, 0, len(names))
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("entry %v in %q is not a string", n, spec.From)}
		}
		id, found := index[strings.ToLower(name)]
		if !found || id == nil {
			return nil, &Error{Target: spec.Target, Message: fmt.Sprintf("%q not found in lookup list %q", name, spec.NodesPath)}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// hasNextPage checks pageInfo.hasNextPage on the connection that owns
// nodesPath ("repository.labels.nodes" → "repository.labels.pageInfo").
func hasNextPage(lookup map[string]any, nodesPath string) bool {
	parent := ""
	if i := strings.LastIndex(nodesPath, "."); i >= 0 {
		parent = nodesPath[:i]
	}
	pageInfoPath := "pageInfo.hasNextPage"
	if parent != "" {
		pageInfoPath = parent + "." + pageInfoPath
	}
	v, ok := Path(lookup, pageInfoPath)
	if !ok {
		return false
	}
	more, _ := v.(bool)
	return more
}

// Path walks a dotted path through nested maps. ok is false when any
// segment is missing or traverses a non-object.
func Path(root map[string]any, path string) (any, bool) {
	if path == "" {
		return root, root != nil
	}
	var cur any = root
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LookupVars projects input fields into lookup variables. vars maps lookup
// variable name to input field name. It returns the names of the input
// fields that are absent or null.
func LookupVars(vars map[string]string, input map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(vars))
	var missing []string
	for lookupVar, field := range vars {
		v, ok := input[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		out[lookupVar] = v
	}
	return out, missing
}

// BuildMutationVars builds the variables for document: every declared
// variable present in input is passed through, then resolved values are
// overlaid. Resolved values win over raw input.
func BuildMutationVars(document string, input map[string]any, resolved map[string]any) (map[string]any, error) {
	names, err := gql.VariableNames(document)
	if err != nil {
		return nil, err
	}
	vars := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := input[name]; ok {
			vars[name] = v
		}
	}
	for k, v := range resolved {
		vars[k] = v
	}
	return vars, nil
}
