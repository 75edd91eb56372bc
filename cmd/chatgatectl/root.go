package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/memohai/chatgate/internal/admin"
	"github.com/memohai/chatgate/internal/backend"
	"github.com/memohai/chatgate/internal/boot"
	"github.com/memohai/chatgate/internal/config"
	"github.com/memohai/chatgate/internal/logger"
	"github.com/memohai/chatgate/internal/version"
)

// errQuietFailure reports a failed --quiet operation; it is never printed.
var errQuietFailure = errors.New("operation failed")

type rootOptions struct {
	configPath string
	quiet      bool
	output     string
	team       string
}

// app is what every subcommand runs with once the config is loaded.
type app struct {
	opts    *rootOptions
	cfg     config.Config
	runtime *boot.RuntimeConfig
	logger  *slog.Logger
	out     io.Writer
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	a := &app{opts: opts, out: os.Stdout}

	root := &cobra.Command{
		Use:           "chatgatectl",
		Short:         "Administer the chat backend behind chatgate",
		Version:       version.GetInfo(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			if opts.configPath == "" {
				opts.configPath = os.Getenv("CONFIG_PATH")
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rc, err := boot.ProvideRuntimeConfig(cfg)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.runtime = rc
			a.logger = logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if opts.quiet {
				a.logger = logger.Discard()
			}
			a.out = cmd.OutOrStdout()
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.toml)")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "report failure only through the exit status")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "yaml", "output format: yaml or json")
	root.PersistentFlags().StringVar(&opts.team, "team", "", "team name or ID (default: the configured default team)")

	root.AddCommand(
		newUserCommand(a),
		newTeamCommand(a),
		newChannelCommand(a),
		newListenCommand(a),
	)
	return root
}

// admin logs the configured admin account in and returns its operations.
func (a *app) admin(ctx context.Context) (*admin.Operations, error) {
	conn, err := backend.NewConnector(a.logger, backend.Options{
		BaseURL:     a.runtime.BackendURL,
		Timeout:     a.runtime.BackendTimeout,
		RateLimit:   a.cfg.Backend.RateLimit,
		Burst:       a.cfg.Backend.Burst,
		MaxInFlight: a.cfg.Backend.MaxInFlight,
	})
	if err != nil {
		return nil, err
	}
	session, err := conn.Login(ctx, a.runtime.BackendAdminLogin, a.runtime.BackendAdminPassword)
	if err != nil {
		return nil, fmt.Errorf("admin login: %w", err)
	}
	return admin.New(a.logger, session, a.runtime.DefaultTeam), nil
}

// run executes an admin operation. With --quiet it uses the Try form and turns false into
// errQuietFailure.
func (a *app) run(cmd *cobra.Command, strict func(*admin.Operations) error, try func(*admin.Operations) bool) error {
	ops, err := a.admin(cmd.Context())
	if err != nil {
		if a.opts.quiet {
			return errQuietFailure
		}
		return err
	}
	if a.opts.quiet {
		if !try(ops) {
			return errQuietFailure
		}
		return nil
	}
	return strict(ops)
}

// print renders v in the selected output format.
func (a *app) print(v any) error {
	switch strings.ToLower(a.opts.output) {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", a.opts.output)
	}
}

func (a *app) done(format string, args ...any) {
	if !a.opts.quiet {
		fmt.Fprintf(a.out, format+"\n", args...)
	}
}
