package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/aryeko/ghx-router-sub004/internal/engine"
	"github.com/aryeko/ghx-router-sub004/internal/transport"
)

// Environment is everything a command needs to talk to GitHub.
type Environment struct {
	GraphQL engine.GraphQLClient
	REST    engine.RESTClient
	Runner  engine.CommandRunner
	Route   engine.RouteContext

	// IDs generates request ids. Nil means UUIDv7.
	IDs engine.IDGenerator
}

// lookupToken returns the first non-empty of GITHUB_TOKEN and GH_TOKEN.
func lookupToken() string {
	for _, name := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// detectEnvironment builds the real transports from the process
// environment and probes the local gh installation.
func detectEnvironment(ctx context.Context, logger *slog.Logger) *Environment {
	token := lookupToken()

	clientOpts := []transport.Option{transport.WithLogger(logger)}
	if u := os.Getenv("GHX_API_URL"); u != "" {
		clientOpts = append(clientOpts, transport.WithBaseURL(u))
	}
	client := transport.NewClient(token, clientOpts...)

	runnerOpts := []transport.RunnerOption{transport.WithRunnerLogger(logger)}
	if token != "" {
		runnerOpts = append(runnerOpts, transport.WithGHToken(token))
	}
	runner := transport.NewCLIRunner(runnerOpts...)

	rc := engine.RouteContext{HasCredential: token != ""}
	if os.Getenv("GHX_SKIP_GH_PREFLIGHT") != "" {
		rc.SkipCLIPreflight = true
	} else {
		status := runner.Detect(ctx)
		rc.CLIAvailable = status.Available
		rc.CLIAuthenticated = status.Authenticated
	}
	logger.Debug("environment detected",
		"credential", rc.HasCredential,
		"gh_available", rc.CLIAvailable,
		"gh_authenticated", rc.CLIAuthenticated,
		"gh_preflight_skipped", rc.SkipCLIPreflight)

	return &Environment{GraphQL: client, REST: client, Runner: runner, Route: rc}
}

// newLogger writes text logs to w: warnings by default, everything when
// verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
