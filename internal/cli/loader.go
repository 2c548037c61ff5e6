package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aryeko/ghx-router-sub004/internal/cards"
	"github.com/aryeko/ghx-router-sub004/internal/engine"
	"github.com/aryeko/ghx-router-sub004/internal/registry"
	"github.com/aryeko/ghx-router-sub004/internal/store"
)

// cardsFS returns the card source: dir when set, the embedded cards
// otherwise.
func cardsFS(dir string) (fs.FS, error) {
	if dir == "" {
		return cards.FS(), nil
	}
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("cards directory not found: %s", dir), err)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot access cards directory", err)
	}
	if !info.IsDir() {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("not a directory: %s", dir))
	}
	return os.DirFS(dir), nil
}

// loadRegistry loads the configured cards. Card problems come back as a
// *registry.LoadError.
func loadRegistry(opts *RootOptions, logger *slog.Logger) (*registry.Registry, error) {
	fsys, err := cardsFS(opts.CardsDir)
	if err != nil {
		return nil, err
	}
	return registry.Load(fsys, registry.WithLogger(logger))
}

// cardsError turns a registry failure into a command error.
func cardsError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitCommandError, "invalid cards (run ghx validate for details)", err)
}

// session is an engine wired to an environment for one command.
type session struct {
	engine *engine.Engine
	env    *Environment
	store  *store.Store
	logger *slog.Logger
}

func (s *session) Close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing trace database", "error", err)
	}
}

// newSession loads cards, resolves the environment and opens the trace
// database when one is configured. Callers must Close the session.
func newSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	reg, err := loadRegistry(opts, logger)
	if err != nil {
		return nil, cardsError(err)
	}

	env := opts.Env
	if env == nil {
		env = detectEnvironment(ctx, logger)
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if env.GraphQL != nil {
		engineOpts = append(engineOpts, engine.WithGraphQLClient(env.GraphQL))
	}
	if env.REST != nil {
		engineOpts = append(engineOpts, engine.WithRESTClient(env.REST))
	}
	if env.Runner != nil {
		engineOpts = append(engineOpts, engine.WithCommandRunner(env.Runner))
	}
	if env.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(env.IDs))
	}

	s := &session{env: env, logger: logger}
	if opts.TraceDB != "" {
		logger.Debug("opening trace database", "path", opts.TraceDB)
		st, err := store.Open(opts.TraceDB)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open trace database", err)
		}
		s.store = st
		engineOpts = append(engineOpts, engine.WithRecorder(st))
	}

	s.engine = engine.New(reg, engineOpts...)
	return s, nil
}

// commandContext returns the command's context, or Background when it
// runs outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
