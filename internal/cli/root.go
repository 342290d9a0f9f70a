// Package cli implements the dyntables command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dyntables/internal/app"
	"dyntables/internal/config"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Version is set at build time with -ldflags.
var Version = "dev"

type rootFlags struct {
	configDir string
}

// NewRootCmd creates the top-level "dyntables" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	var flags rootFlags
	v := config.New()

	root := &cobra.Command{
		Use:   "dyntables",
		Short: "User-defined databases materialized as real SQL tables",
		Long: "dyntables stores user-defined databases as wide SQL tables and serves\n" +
			"them to agents over MCP: rows, columns, CSV imports, tasks and events.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: $HOME/.config/dyntables)")
	pf.String("driver", "", "backend driver: sqlite, postgres or mysql")
	pf.String("db", "", "sqlite database file")
	pf.String("owner", "", "owner id tool calls act for")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	_ = v.BindPFlag("backend.driver", pf.Lookup("driver"))
	_ = v.BindPFlag("backend.path", pf.Lookup("db"))
	_ = v.BindPFlag("owner_id", pf.Lookup("owner"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))

	env := &environment{v: v, flags: &flags}
	root.AddCommand(newServeCmd(env))
	root.AddCommand(newImportCmd(env))
	root.AddCommand(newSchemaCmd(env))
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if _, ok := err.(*sysError); ok {
			os.Exit(exitSysError)
		}
		os.Exit(exitUserError)
	}
	os.Exit(exitSuccess)
}

// sysError marks failures of the environment rather than of the input.
type sysError struct{ err error }

func (e *sysError) Error() string { return e.err.Error() }
func (e *sysError) Unwrap() error { return e.err }

// environment lazily loads configuration and the app for subcommands.
type environment struct {
	v     *viper.Viper
	flags *rootFlags
}

func (e *environment) configDir() string {
	if e.flags.configDir != "" {
		return e.flags.configDir
	}
	if d := os.Getenv("DYNTABLES_CONFIG_DIR"); d != "" {
		return d
	}
	return config.DefaultConfigDir()
}

// open loads the configuration, builds the logger and opens the app.
// The returned func closes both.
func (e *environment) open(ctx context.Context) (*app.App, *zap.SugaredLogger, func(), error) {
	cfg, err := config.Load(e.v, e.configDir())
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("log.level: %w", err)
	}
	log := logger.Sugar()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, &sysError{err}
	}
	return a, log, func() {
		if err := a.Close(); err != nil {
			log.Warnw("close", "error", err)
		}
		_ = logger.Sync()
	}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
