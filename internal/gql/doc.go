// Package gql parses, rewrites and prints GraphQL operation documents.
//
// The batch builder merges several self-contained operations into a single
// document so independent lookups or mutations cost one network round
// trip. Each operation's root field is re-emitted under a caller-chosen
// alias and every declared variable is renamed to alias_name, both in the
// operation header and at every use inside the selection set. Fragment
// definitions are carried over once per fragment name.
//
// Documents are handled as ASTs (github.com/vektah/gqlparser/v2) and never
// spliced as text.
package gql
