// Package testutil provides fixtures shared by package tests: the built-in
// card registry, ad hoc registries and a recording GraphQL server.
package testutil

import (
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/aryeko/ghx-router-sub004/internal/cards"
	"github.com/aryeko/ghx-router-sub004/internal/registry"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Registry loads the built-in cards.
func Registry(t testing.TB) *registry.Registry {
	t.Helper()
	r, err := registry.Load(cards.FS(), registry.WithLogger(QuietLogger()))
	require.NoError(t, err, "built-in cards must load")
	return r
}

// RegistryFrom loads a registry from in-memory files keyed by path.
func RegistryFrom(t testing.TB, files map[string]string) *registry.Registry {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, data := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(data)}
	}
	r, err := registry.Load(fsys, registry.WithLogger(QuietLogger()))
	require.NoError(t, err)
	return r
}
