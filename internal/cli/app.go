package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/palabria/internal/config"
	"github.com/roach88/palabria/internal/engine"
	"github.com/roach88/palabria/internal/model"
	"github.com/roach88/palabria/internal/store"
)

// app bundles the configured store and engine for one command invocation.
type app struct {
	cfg    *config.Config
	store  *store.Store
	engine *engine.Engine
	logger *slog.Logger
	out    *OutputFormatter
}

// openApp loads configuration, opens the ledger and builds the engine.
// Callers must Close the returned app.
func openApp(opts *RootOptions, cmd *cobra.Command, extra ...engine.Option) (*app, error) {
	cfg, err := config.Load(config.Options{
		File:  opts.ConfigFile,
		Flags: cmd.Flags(),
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg, opts.Verbose)

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
	}

	logger.Debug("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithPolicy(engine.SessionPolicy{
			IdleGrace:   cfg.IdleGrace,
			IdleSlack:   cfg.IdleSlack,
			MinDuration: cfg.MinSession,
			MaxDuration: cfg.MaxSession,
		}),
		engine.WithReconcileOnHeartbeat(cfg.ReconcileOnHeartbeat),
	}
	eng, err := engine.New(st, append(engineOpts, extra...)...)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	return &app{
		cfg:    cfg,
		store:  st,
		engine: eng,
		logger: logger,
		out:    newFormatter(opts, cmd),
	}, nil
}

// Close closes the database.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

// user resolves a username argument.
func (a *app) user(cmd *cobra.Command, username string) (model.User, error) {
	u, err := a.engine.ResolveUser(cmd.Context(), username)
	if err != nil {
		return model.User{}, a.out.Fail("failed to resolve user", err)
	}
	return u, nil
}

// newLogger builds the text logger on stderr. --verbose forces debug.
func newLogger(w io.Writer, cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// atFlag is the --at timestamp accepted by the session commands.
type atFlag struct {
	value string
}

func (f *atFlag) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.value, "at", "", "event time (RFC 3339 or epoch seconds; default now)")
}

// resolve returns the parsed --at time, or the engine clock's now.
func (f *atFlag) resolve(eng *engine.Engine) (time.Time, error) {
	if f.value == "" {
		return eng.Now(), nil
	}
	return parseAt(f.value)
}

func parseAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	// Epoch seconds must fit in int64 nanoseconds.
	if err != nil || math.IsNaN(secs) || math.Abs(secs) >= math.MaxInt64/1e9 {
		return time.Time{}, NewExitError(ExitCommandError,
			fmt.Sprintf("invalid --at %q: want RFC 3339 or epoch seconds", s))
	}
	return time.Unix(0, int64(secs*1e9)).UTC(), nil
}

// parseID parses a positive numeric id argument.
func parseID(what, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", what, s))
	}
	return id, nil
}

// isExitError reports whether err already carries an exit code.
func isExitError(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}
