package gql

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// Parse parses a GraphQL executable document.
func Parse(document string) (*ast.QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "document", Input: document})
	if err != nil {
		return nil, fmt.Errorf("parse graphql document: %w", err)
	}
	return doc, nil
}

// Print renders doc back to GraphQL text.
func Print(doc *ast.QueryDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)
	return buf.String()
}

// singleOperation parses document and returns its only operation.
func singleOperation(document string) (*ast.QueryDocument, *ast.OperationDefinition, error) {
	doc, err := Parse(document)
	if err != nil {
		return nil, nil, err
	}
	if len(doc.Operations) != 1 {
		return nil, nil, fmt.Errorf("graphql document must contain exactly one operation, found %d", len(doc.Operations))
	}
	return doc, doc.Operations[0], nil
}

// OperationType returns "query", "mutation" or "subscription" for a
// single-operation document.
func OperationType(document string) (string, error) {
	_, op, err := singleOperation(document)
	if err != nil {
		return "", err
	}
	if op.Operation == "" {
		return string(ast.Query), nil
	}
	return string(op.Operation), nil
}

// OperationName returns the declared name of a single-operation document.
func OperationName(document string) (string, error) {
	_, op, err := singleOperation(document)
	if err != nil {
		return "", err
	}
	return op.Name, nil
}

// VariableNames returns the variables declared in the operation header, in
// declaration order.
func VariableNames(document string) ([]string, error) {
	_, op, err := singleOperation(document)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		names = append(names, def.Variable)
	}
	return names, nil
}

// ExtractRootFieldName returns the response key of the first field directly
// inside the operation's selection set: the alias when the document aliases
// it, the field name otherwise. ok is false when the document has no
// selection set to look into.
func ExtractRootFieldName(document string) (string, bool) {
	doc, err := Parse(document)
	if err != nil || len(doc.Operations) == 0 {
		return "", false
	}
	for _, sel := range doc.Operations[0].SelectionSet {
		if field, isField := sel.(*ast.Field); isField {
			return responseKey(field), true
		}
	}
	return "", false
}

func responseKey(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

var namePattern = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// ValidName reports whether s is a valid GraphQL name, usable as an alias.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}
