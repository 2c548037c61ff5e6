// Package cards embeds the default operation card set.
package cards

import (
	"embed"
	"io/fs"
)

//go:embed cards/*.yaml graphql/*.graphql
var files embed.FS

// FS returns the default card documents. Card files live under cards/ and
// reference their GraphQL documents as graphql/<name>.graphql.
func FS() fs.FS {
	return files
}
