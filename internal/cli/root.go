// Package cli implements the pointsctl command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/pointsledger/internal/adapters/repository"
	service "github.com/okian/pointsledger/internal/app"
	"github.com/okian/pointsledger/internal/config"
	"github.com/okian/pointsledger/pkg/logger"
)

// DefaultAccount is used when --account is not given.
const DefaultAccount = "default"

// Flags are the persistent flags shared by every command.
type Flags struct {
	Account  string
	Driver   string
	DSN      string
	LogLevel string
}

// Factory opens a service for one command invocation. The returned closer
// releases whatever the service holds.
type Factory func(ctx context.Context, f Flags) (*service.Service, io.Closer, error)

// Option configures the command tree.
type Option func(*root)

// WithFactory replaces how commands obtain their service.
func WithFactory(f Factory) Option {
	return func(r *root) {
		if f != nil {
			r.factory = f
		}
	}
}

type root struct {
	flags   Flags
	factory Factory
}

// New builds the pointsctl command tree.
func New(opts ...Option) *cobra.Command {
	r := &root{factory: Open}
	for _, opt := range opts {
		opt(r)
	}

	cmd := &cobra.Command{
		Use:           "pointsctl",
		Short:         "pointsctl imports participant lists and manages the points ledger.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&r.flags.Account, "account", "a", DefaultAccount, "Account the command operates on.")
	pf.StringVar(&r.flags.Driver, "driver", "", "Database driver (sqlite or postgres); overrides POINTS_DATABASE_DRIVER.")
	pf.StringVar(&r.flags.DSN, "db", "", "Database DSN; overrides POINTS_DATABASE_DSN.")
	pf.StringVar(&r.flags.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error.")

	cmd.AddCommand(
		r.importCmd(),
		r.refreshCmd(),
		r.nextRefreshCmd(),
		r.participantsCmd(),
		r.historyCmd(),
		r.statsCmd(),
		r.purgeCmd(),
	)
	return cmd
}

// withService opens a service, runs fn and closes it again.
func (r *root) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, closer, err := r.factory(ctx, r.flags)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	return fn(ctx, svc)
}

// Open is the default Factory: configuration comes from POINTS_* and the
// flags, and profiles are resolved over the network.
func Open(ctx context.Context, f Flags) (*service.Service, io.Closer, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if f.Driver != "" {
		cfg.DatabaseDriver = f.Driver
	}
	if f.DSN != "" {
		cfg.DatabaseDSN = f.DSN
	}

	if err := logger.InitWithWriter(cfg.LogFormat, os.Stderr); err != nil {
		return nil, nil, fmt.Errorf("initializing logging: %w", err)
	}
	level := cfg.LogLevel
	if f.LogLevel != "" {
		level = f.LogLevel
	}
	if err := logger.SetLevelString(level); err != nil {
		return nil, nil, err
	}
	log := logger.Named("pointsctl")

	dialect, err := repository.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, nil, err
	}
	store, err := repository.Open(ctx, dialect, cfg.DatabaseDSN, repository.WithLogger(log.Named("ledger")))
	if err != nil {
		return nil, nil, err
	}
	return service.NewFromConfig(cfg, store, log), store, nil
}

// ExecuteContext runs the command tree and returns the process exit code.
func ExecuteContext(ctx context.Context, cmd *cobra.Command, stderr io.Writer) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}
