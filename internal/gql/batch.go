package gql

import (
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
)

// ErrEmptyBatch is returned when a batch is built from zero operations.
var ErrEmptyBatch = errors.New("batch requires at least one operation")

// Names of the merged operations.
const (
	BatchQueryName    = "BatchQuery"
	BatchMutationName = "BatchMutation"
)

// Operation is one document to merge. Document must hold a single
// operation, optionally followed by fragment definitions.
type Operation struct {
	Alias     string
	Document  string
	Variables map[string]any
}

// Batch is the merged document and its namespaced variables.
type Batch struct {
	Document  string
	Variables map[string]any
}

// PrefixedName is the name a variable takes inside a batch.
func PrefixedName(alias, variable string) string {
	return alias + "_" + variable
}

// BuildBatchQuery merges query operations into one query document.
func BuildBatchQuery(ops []Operation) (Batch, error) {
	return build(ast.Query, BatchQueryName, ops)
}

// BuildBatchMutation merges mutation operations into one mutation document.
func BuildBatchMutation(ops []Operation) (Batch, error) {
	return build(ast.Mutation, BatchMutationName, ops)
}

func build(kind ast.Operation, name string, ops []Operation) (Batch, error) {
	if len(ops) == 0 {
		return Batch{}, ErrEmptyBatch
	}

	merged := &ast.OperationDefinition{Operation: kind, Name: name}
	out := &ast.QueryDocument{Operations: ast.OperationList{merged}}
	vars := make(map[string]any)
	aliases := make(map[string]bool, len(ops))
	fragments := make(map[string]bool)

	for _, op := range ops {
		if !ValidName(op.Alias) {
			return Batch{}, fmt.Errorf("invalid batch alias %q", op.Alias)
		}
		if aliases[op.Alias] {
			return Batch{}, fmt.Errorf("duplicate batch alias %q", op.Alias)
		}
		aliases[op.Alias] = true

		doc, def, err := singleOperation(op.Document)
		if err != nil {
			return Batch{}, fmt.Errorf("batch operation %s: %w", op.Alias, err)
		}
		opKind := def.Operation
		if opKind == "" {
			opKind = ast.Query
		}
		if opKind != kind {
			return Batch{}, fmt.Errorf("batch operation %s is a %s, expected %s", op.Alias, opKind, kind)
		}

		declared := make(map[string]bool, len(def.VariableDefinitions))
		for _, vd := range def.VariableDefinitions {
			declared[vd.Variable] = true
			if v, ok := op.Variables[vd.Variable]; ok {
				vars[PrefixedName(op.Alias, vd.Variable)] = v
			}
			vd.Variable = PrefixedName(op.Alias, vd.Variable)
			merged.VariableDefinitions = append(merged.VariableDefinitions, vd)
		}

		renameSelectionSet(def.SelectionSet, op.Alias, declared)
		aliasRootFields(def.SelectionSet, op.Alias)
		merged.SelectionSet = append(merged.SelectionSet, def.SelectionSet...)

		for _, frag := range doc.Fragments {
			if fragments[frag.Name] {
				continue
			}
			fragments[frag.Name] = true
			out.Fragments = append(out.Fragments, frag)
		}
	}

	return Batch{Document: Print(out), Variables: vars}, nil
}

// aliasRootFields gives the first root field the batch alias. Any further
// root fields are keyed alias_<responseKey> so they cannot collide with
// another operation's fields.
func aliasRootFields(set ast.SelectionSet, alias string) {
	first := true
	for _, sel := range set {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		if first {
			field.Alias = alias
			first = false
			continue
		}
		field.Alias = alias + "_" + responseKey(field)
	}
}

func renameSelectionSet(set ast.SelectionSet, alias string, declared map[string]bool) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			renameArguments(s.Arguments, alias, declared)
			renameDirectives(s.Directives, alias, declared)
			renameSelectionSet(s.SelectionSet, alias, declared)
		case *ast.InlineFragment:
			renameDirectives(s.Directives, alias, declared)
			renameSelectionSet(s.SelectionSet, alias, declared)
		case *ast.FragmentSpread:
			renameDirectives(s.Directives, alias, declared)
		}
	}
}

func renameDirectives(dirs ast.DirectiveList, alias string, declared map[string]bool) {
	for _, d := range dirs {
		renameArguments(d.Arguments, alias, declared)
	}
}

func renameArguments(args ast.ArgumentList, alias string, declared map[string]bool) {
	for _, arg := range args {
		renameValue(arg.Value, alias, declared)
	}
}

func renameValue(v *ast.Value, alias string, declared map[string]bool) {
	if v == nil {
		return
	}
	if v.Kind == ast.Variable && declared[v.Raw] {
		v.Raw = PrefixedName(alias, v.Raw)
	}
	for _, child := range v.Children {
		renameValue(child.Value, alias, declared)
	}
}
